package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAcquireCmd() *cobra.Command {
	var platformFlag string

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Runs one acquisition pass for a platform",
		Long: `Acquires posts from the platform's configured sources, stores new ones,
and evaluates each against the quality gate. The run record is persisted
whether the run completes, fails, or is cancelled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			platform, err := parsePlatform(platformFlag)
			if err != nil {
				return err
			}
			acquirer, err := services.Acquirer(platform)
			if err != nil {
				return fmt.Errorf("build %s engine: %w", platform, err)
			}

			run, err := services.Orchestrator().RunAcquisition(cmd.Context(), acquirer)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("acquisition run %s: %w", run.ID, err)
			}
			services.Logger().Info("acquisition finished",
				zap.String("run_id", run.ID.String()),
				zap.String("status", string(run.Status)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "platform to acquire from (twitter or youtube)")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}
