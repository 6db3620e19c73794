package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAggregateCmd() *cobra.Command {
	var (
		platformFlag string
		dayFlag      string
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recomputes the daily rollup for a platform and day",
		Long: `Recomputes the per-day sentiment distribution and top keywords from the
stored enriched items. The rollup is replaced wholesale, so the command is
safe to re-run for any day.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			platform, err := parsePlatform(platformFlag)
			if err != nil {
				return err
			}
			day := time.Now().UTC()
			if dayFlag != "" {
				day, err = time.ParseInLocation("2006-01-02", dayFlag, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --day %q, format YYYY-MM-DD", dayFlag)
				}
			}

			agg, err := services.Orchestrator().RunAggregation(cmd.Context(), platform, day)
			if err != nil {
				return fmt.Errorf("aggregation: %w", err)
			}
			services.Logger().Info("aggregation finished",
				zap.String("platform", string(agg.Platform)),
				zap.Time("day", agg.Date),
				zap.Int("collected", agg.Collected),
				zap.Int("analyzed", agg.Analyzed),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "platform to aggregate (twitter or youtube)")
	cmd.Flags().StringVar(&dayFlag, "day", "", "UTC day to aggregate, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}
