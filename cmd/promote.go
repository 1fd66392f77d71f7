package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/baseline"
	"github.com/uatu-sec/riskgate/internal/config"
	"github.com/uatu-sec/riskgate/internal/observability"
)

// newPromoteCmd creates and configures the `promote` command.
func newPromoteCmd() *cobra.Command {
	var (
		portfolioPath string
		branch        string
		actor         string
		pullRequest   bool
		gatePassed    bool
	)

	promoteCmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote a scored run to be the new baseline",
		Long: `Promotes the portfolio snapshot and every contract record it contains to
be the baselines future runs diff against. Promotion is only authorized from
a protected branch, outside pull-request context, after a passing gate; an
unauthorized promotion is rejected before anything is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			pctx := baseline.PromotionContext{
				Branch:      branch,
				PullRequest: pullRequest,
				GatePassed:  gatePassed,
				Actor:       actor,
			}
			return runPromote(logger, cfg, portfolioPath, pctx)
		},
	}

	promoteCmd.Flags().StringVar(&portfolioPath, "portfolio", "out/portfolio.json", "Portfolio snapshot to promote")
	promoteCmd.Flags().StringVar(&branch, "branch", "", "CI branch the promotion runs on (required)")
	_ = promoteCmd.MarkFlagRequired("branch")
	promoteCmd.Flags().StringVar(&actor, "actor", "", "CI identity performing the promotion")
	promoteCmd.Flags().BoolVar(&pullRequest, "pull-request", false, "Whether this is a pull-request build")
	promoteCmd.Flags().BoolVar(&gatePassed, "gate-passed", false, "Whether the gate passed for this run")

	return promoteCmd
}

// runPromote contains the core, testable logic of the promote command.
func runPromote(logger *zap.Logger, cfg config.Interface, portfolioPath string, pctx baseline.PromotionContext) error {
	var snap schemas.PortfolioSnapshot
	if err := readJSONFile(portfolioPath, &snap); err != nil {
		return err
	}

	store := baseline.NewStore(cfg.Baseline().Dir, baseline.Policy{ProtectedBranches: cfg.Baseline().ProtectedBranches}, logger)

	if err := store.PromotePortfolio(pctx, &snap); err != nil {
		return fmt.Errorf("portfolio promotion rejected: %w", err)
	}
	for _, c := range snap.ByContract {
		rec := c
		if err := store.PromoteContract(pctx, &rec); err != nil {
			return fmt.Errorf("contract %s promotion failed: %w", rec.ContractID, err)
		}
	}

	logger.Info("Baselines promoted",
		zap.String("run_id", snap.RunID),
		zap.Int("contracts", len(snap.ByContract)),
		zap.String("branch", pctx.Branch),
		zap.String("actor", pctx.Actor),
	)
	fmt.Printf("Promoted run %s (%d contract baselines + portfolio)\n", snap.RunID, len(snap.ByContract))
	return nil
}
