package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/baseline"
	"github.com/uatu-sec/riskgate/internal/config"
	"github.com/uatu-sec/riskgate/internal/engine"
	"github.com/uatu-sec/riskgate/internal/observability"
	"github.com/uatu-sec/riskgate/internal/reporting"
	"github.com/uatu-sec/riskgate/internal/store"
	"github.com/uatu-sec/riskgate/internal/trend"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// findingsSuffix is the file naming convention the collaborating scanners
// use when dropping per-contract records into the findings directory.
const findingsSuffix = ".findings.json"

// runStore is the slice of the persistence layer the score command needs.
type runStore interface {
	PersistSnapshot(ctx context.Context, snap *schemas.PortfolioSnapshot) error
}

// storeProvider defines an interface for components that can create a run
// store. This abstraction allows tests to inject a mock store instead of a
// live database connection.
type storeProvider interface {
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

// defaultStoreProvider is the production storeProvider; it connects to the
// PostgreSQL database named in the configuration.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// newScoreCmd creates and configures the `score` command.
func newScoreCmd(provider storeProvider) *cobra.Command {
	var (
		findingsDir  string
		manifestPath string
		outputDir    string
		format       string
		mode         string
		concurrency  int
	)

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score collected findings and produce contract and portfolio risk records",
		Long: `Reads per-contract findings records from the findings directory, scores
every function, reduces to contract and portfolio records with deltas against
the promoted baselines, appends to the trend history, and writes reports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			if concurrency > 0 {
				cfg.SetEngineWorkerConcurrency(concurrency)
			}
			if mode != "" {
				m := schemas.WeightingMode(strings.ToLower(mode))
				if !m.Valid() {
					return fmt.Errorf("invalid weighting mode: %q", mode)
				}
				cfg.SetPortfolioMode(m)
			}

			// Delegate to the testable core logic function.
			return runScore(ctx, logger, cfg, findingsDir, manifestPath, outputDir, format, provider)
		},
	}

	scoreCmd.Flags().StringVar(&findingsDir, "findings", "findings", "Directory containing per-contract *.findings.json records")
	scoreCmd.Flags().StringVar(&manifestPath, "manifest", "", "JSON array of expected contract ids. If unset, the findings directory defines the portfolio.")
	scoreCmd.Flags().StringVarP(&outputDir, "output", "o", "out", "Directory for generated reports")
	scoreCmd.Flags().StringVarP(&format, "format", "f", "json", "Report format ('json' or 'csv')")
	scoreCmd.Flags().StringVar(&mode, "mode", "", "Portfolio weighting mode (average, median, max, weighted). Overrides config.")
	scoreCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of concurrent contract pipelines. Overrides config.")

	return scoreCmd
}

// runScore contains the core, testable logic of the score command.
func runScore(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	findingsDir, manifestPath, outputDir, format string,
	provider storeProvider,
) error {
	records, err := loadFindings(findingsDir)
	if err != nil {
		return err
	}

	manifest, err := resolveManifest(manifestPath, records)
	if err != nil {
		return err
	}

	weights, err := loadWeightMap(cfg.Portfolio())
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	logger.Info("Starting scoring run",
		zap.String("run_id", runID),
		zap.Int("contracts", len(records)),
		zap.Int("manifest", len(manifest)),
		zap.String("mode", cfg.Portfolio().Mode),
	)

	baselines := baseline.NewStore(cfg.Baseline().Dir, baseline.Policy{ProtectedBranches: cfg.Baseline().ProtectedBranches}, logger)
	trends := trend.NewTracker(cfg.Trend(), logger)
	pipeline := engine.New(cfg, baselines, trends, logger)

	snap, err := pipeline.Run(ctx, engine.RunInput{
		Manifest: manifest,
		Records:  records,
		Mode:     schemas.WeightingMode(cfg.Portfolio().Mode),
		Weights:  weights,
	}, runID, time.Now())
	if err != nil {
		return fmt.Errorf("scoring run failed: %w", err)
	}

	reporter, err := reporting.New(format, outputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.WritePortfolio(snap); err != nil {
		return err
	}
	for _, c := range snap.ByContract {
		rec := c
		if err := reporter.WriteContract(&rec); err != nil {
			return err
		}
	}
	logger.Info("Reports written", zap.String("dir", outputDir), zap.String("format", format))

	// Database persistence is optional; a run without a configured database
	// still produces its file reports.
	if cfg.Database().URL != "" {
		storeService, cleanup, err := provider.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		if err := storeService.PersistSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("failed to persist run: %w", err)
		}
	}

	fmt.Printf("Run Complete. Run ID: %s\n", runID)
	fmt.Printf("Portfolio: %.2f (%s)\n", snap.Summary.Overall, snap.Summary.Grade)
	if len(snap.MissingContracts) > 0 {
		fmt.Printf("Missing contracts: %s\n", strings.Join(snap.MissingContracts, ", "))
	}
	return nil
}

// loadFindings reads every findings record in dir, keyed by contract id.
func loadFindings(dir string) (map[string]*schemas.FindingsRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read findings directory %s: %w", dir, err)
	}

	records := make(map[string]*schemas.FindingsRecord)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), findingsSuffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read findings record %s: %w", path, err)
		}
		var rec schemas.FindingsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse findings record %s: %w", path, err)
		}
		if rec.ContractID == "" {
			rec.ContractID = strings.TrimSuffix(entry.Name(), findingsSuffix)
		}
		records[rec.ContractID] = &rec
	}
	return records, nil
}

// resolveManifest loads the manifest file, or derives the manifest from the
// records present when no file was given.
func resolveManifest(path string, records map[string]*schemas.FindingsRecord) ([]string, error) {
	if path == "" {
		ids := make([]string, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return ids, nil
}

// loadWeightMap reads the configured contract weight map, if any.
func loadWeightMap(cfg config.PortfolioConfig) (map[string]float64, error) {
	if cfg.WeightMapFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.WeightMapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read weight map %s: %w", cfg.WeightMapFile, err)
	}
	weights := make(map[string]float64)
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to parse weight map %s: %w", cfg.WeightMapFile, err)
	}
	return weights, nil
}
