package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEnrichCmd() *cobra.Command {
	var platformFlag string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Processes one batch of pending enrichment rows",
		Long: `Loads up to one batch of items that passed the quality gate but have not
been analyzed yet, and runs sentiment analysis and keyword extraction on
them. Run repeatedly to drain the backlog.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			platform, err := parsePlatform(platformFlag)
			if err != nil {
				return err
			}

			run, err := services.Orchestrator().RunEnrichment(cmd.Context(), platform)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("enrichment run %s: %w", run.ID, err)
			}
			services.Logger().Info("enrichment finished",
				zap.String("run_id", run.ID.String()),
				zap.String("status", string(run.Status)),
				zap.Int("processed", run.Counters.Acquired),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "platform to enrich (twitter or youtube)")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}
