// Package cmd defines and implements the CLI commands for the pipeline
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/api"
	"github.com/madun/platform-nlp-dqm/internal/app"
	"github.com/madun/platform-nlp-dqm/internal/config"
	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// Services is the application surface commands use. It allows injecting a
// mock container during tests.
type Services interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Orchestrator() *pipeline.Orchestrator
	Acquirer(platform pipeline.Platform) (pipeline.Acquirer, error)
	APIServer() *api.Server
}

// newServices is the container factory, swappable in tests.
var newServices = func(ctx context.Context, cfg config.Config) (Services, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Acquisition, quality gate, and enrichment pipeline for MBG social posts",
		Long: `pipeline acquires public social posts about the Makan Bergizi Gratis
program, filters them through a weighted quality gate, and enriches the
survivors with Indonesian sentiment analysis and keyword extraction.`,

		// Build the service container after flags are parsed and before any
		// subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			services, err := newServices(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, services))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if services, ok := cmd.Context().Value(appKey).(Services); ok && services != nil {
				services.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional)")

	cmd.AddCommand(newAcquireCmd())
	cmd.AddCommand(newEnrichCmd())
	cmd.AddCommand(newAggregateCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveServices(ctx context.Context) (Services, error) {
	services, ok := ctx.Value(appKey).(Services)
	if !ok || services == nil {
		return nil, errors.New("application services not initialized")
	}
	return services, nil
}

func parsePlatform(value string) (pipeline.Platform, error) {
	switch value {
	case string(pipeline.PlatformTwitter):
		return pipeline.PlatformTwitter, nil
	case string(pipeline.PlatformYouTube):
		return pipeline.PlatformYouTube, nil
	default:
		return "", fmt.Errorf("unknown platform %q (expected twitter or youtube)", value)
	}
}

// Execute is the main entry point. A SIGINT or SIGTERM cancels the command
// context so in-flight runs finish as CANCELLED with durable run records.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
