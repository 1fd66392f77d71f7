package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/internal/config"
	"github.com/uatu-sec/riskgate/internal/observability"
	"github.com/uatu-sec/riskgate/internal/trend"
)

// newTrendCmd creates and configures the `trend` command.
func newTrendCmd() *cobra.Command {
	var (
		window  int
		showSVG bool
	)

	trendCmd := &cobra.Command{
		Use:   "trend [contract-id]",
		Short: "Show the recorded score history and direction for a contract or the portfolio",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if window > 0 {
				cfg.SetTrendWindow(window)
			}

			id := "portfolio"
			if len(args) == 1 {
				id = args[0]
			}
			return runTrend(logger, cfg, id, showSVG)
		},
	}

	trendCmd.Flags().IntVarP(&window, "window", "n", 0, "History window size. Overrides config.")
	trendCmd.Flags().BoolVar(&showSVG, "svg", false, "Print SVG polyline points for the history sparkline")

	return trendCmd
}

// runTrend contains the core, testable logic of the trend command.
func runTrend(logger *zap.Logger, cfg config.Interface, id string, showSVG bool) error {
	tracker := trend.NewTracker(cfg.Trend(), logger)

	samples, err := tracker.Series(id)
	if err != nil {
		return fmt.Errorf("failed to load history for %s: %w", id, err)
	}
	direction, err := tracker.Direction(id)
	if err != nil {
		return fmt.Errorf("failed to compute trend for %s: %w", id, err)
	}

	logger.Debug("Loaded history", zap.String("id", id), zap.Int("samples", len(samples)))

	if len(samples) == 0 {
		fmt.Printf("%s: no recorded history\n", id)
		return nil
	}

	fmt.Printf("%s: %d sample(s), trend %s\n", id, len(samples), direction)
	for _, s := range samples {
		fmt.Printf("  %s  %.2f\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Overall)
	}
	if showSVG {
		fmt.Printf("sparkline: %s\n", trend.Points(samples, 0, 0))
	}
	return nil
}
