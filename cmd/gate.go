package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
	"github.com/uatu-sec/riskgate/internal/gate"
	"github.com/uatu-sec/riskgate/internal/observability"
	"github.com/uatu-sec/riskgate/internal/trend"
)

// newGateCmd creates and configures the `gate` command.
func newGateCmd() *cobra.Command {
	var (
		portfolioPath string
		contractPath  string
		softFail      bool
	)

	gateCmd := &cobra.Command{
		Use:   "gate",
		Short: "Evaluate gate rules against a risk record and fail on violations",
		Long: `Evaluates the configured gate rules against a portfolio snapshot (or a
single contract record) produced by 'riskgate score'. Exits non-zero when the
gate fails, making it suitable as a CI merge check. With soft-fail enabled
(--soft-fail or RISKGATE_GATE_SOFT_FAIL=true) violations are reported as
warnings and the command exits zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("soft-fail") {
				cfg.SetGateSoftFail(softFail)
			}

			return runGate(logger, cfg, portfolioPath, contractPath)
		},
	}

	gateCmd.Flags().StringVar(&portfolioPath, "portfolio", "out/portfolio.json", "Portfolio snapshot to evaluate")
	gateCmd.Flags().StringVar(&contractPath, "contract", "", "Evaluate a single contract record instead of the portfolio")
	gateCmd.Flags().BoolVar(&softFail, "soft-fail", false, "Report violations without failing. Overrides config.")

	return gateCmd
}

// runGate contains the core, testable logic of the gate command.
func runGate(logger *zap.Logger, cfg config.Interface, portfolioPath, contractPath string) error {
	target, err := loadGateTarget(portfolioPath, contractPath)
	if err != nil {
		return err
	}

	// The percentile rule compares against the target's own recorded history.
	tracker := trend.NewTracker(cfg.Trend(), logger)
	history, err := tracker.Series(target.ID)
	if err != nil {
		return fmt.Errorf("failed to load history for %s: %w", target.ID, err)
	}

	evaluator := gate.New(cfg.Gate(), logger)
	verdict := evaluator.Evaluate(target, history)

	switch {
	case verdict.Pass && !verdict.SoftFail:
		fmt.Printf("GATE PASS: %s\n", target.ID)
	case verdict.SoftFail:
		fmt.Printf("GATE SOFT FAIL: %s\n", target.ID)
	default:
		fmt.Printf("GATE FAIL: %s\n", target.ID)
	}
	for _, reason := range verdict.Reasons {
		fmt.Printf("  - %s\n", reason)
	}

	if !verdict.Pass {
		return fmt.Errorf("gate failed for %s with %d violation(s)", target.ID, len(verdict.Reasons))
	}
	return nil
}

// loadGateTarget reads the record under evaluation. A contract path, when
// given, takes precedence over the portfolio snapshot.
func loadGateTarget(portfolioPath, contractPath string) (gate.Target, error) {
	if contractPath != "" {
		var risk schemas.ContractRisk
		if err := readJSONFile(contractPath, &risk); err != nil {
			return gate.Target{}, err
		}
		return gate.ContractTarget(&risk), nil
	}

	var snap schemas.PortfolioSnapshot
	if err := readJSONFile(portfolioPath, &snap); err != nil {
		return gate.Target{}, err
	}
	return gate.PortfolioTarget(&snap), nil
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
