// Package engine runs the scoring pipeline: independent per-contract fan-out
// feeding a single-threaded aggregation barrier. Each contract pipeline owns
// its signals, scores, and history; the only shared resource is the baseline
// store, which is read-only here.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/baseline"
	"github.com/uatu-sec/riskgate/internal/config"
	"github.com/uatu-sec/riskgate/internal/normalize"
	"github.com/uatu-sec/riskgate/internal/portfolio"
	"github.com/uatu-sec/riskgate/internal/risk"
	"github.com/uatu-sec/riskgate/internal/trend"
)

// RunInput is everything one scoring run consumes.
type RunInput struct {
	// Manifest lists every contract id the run is expected to cover.
	Manifest []string
	// Records maps contract id to its collaborator findings record. A
	// manifest id with no record is a missing contract, not an error.
	Records map[string]*schemas.FindingsRecord
	// Mode and Weights configure the portfolio reduction.
	Mode    schemas.WeightingMode
	Weights map[string]float64
}

// Pipeline wires the scoring stages together.
type Pipeline struct {
	cfg        config.Interface
	logger     *zap.Logger
	normalizer *normalize.Normalizer
	scorer     *risk.Scorer
	reducer    *risk.Reducer
	baselines  *baseline.Store
	trends     *trend.Tracker
	aggregator *portfolio.Aggregator
}

// New assembles a Pipeline from configuration and the shared stores.
func New(cfg config.Interface, baselines *baseline.Store, trends *trend.Tracker, logger *zap.Logger) *Pipeline {
	log := logger.With(zap.String("component", "engine"))
	return &Pipeline{
		cfg:        cfg,
		logger:     log,
		normalizer: normalize.New(cfg.Weights(), log),
		scorer:     risk.NewScorer(cfg.Weights(), log),
		reducer:    risk.NewReducer(cfg.Blend()),
		baselines:  baselines,
		trends:     trends,
		aggregator: portfolio.New(cfg.Portfolio().TopContracts, cfg.Blend().TopFunctions, log),
	}
}

// Run executes the full fan-out/fan-in flow and returns the portfolio
// snapshot. Contract pipelines run in parallel, bounded by the configured
// worker concurrency; aggregation waits for all of them. Missing contracts
// degrade the snapshot; only an empty report set is fatal.
func (p *Pipeline) Run(ctx context.Context, in RunInput, runID string, now time.Time) (*schemas.PortfolioSnapshot, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Engine().WorkerConcurrency)

	results := make(chan schemas.ContractRisk, len(in.Manifest))
	for _, id := range in.Manifest {
		rec, ok := in.Records[id]
		if !ok || rec == nil {
			// Task never reported; the aggregator records it as missing.
			p.logger.Warn("Contract produced no findings record", zap.String("contract_id", id))
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results <- p.scoreContract(rec, now)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("contract fan-out aborted: %w", err)
	}
	close(results)

	// Single-threaded reduce barrier.
	reported := make(map[string]schemas.ContractRisk, len(in.Manifest))
	for c := range results {
		reported[c.ContractID] = c
	}

	snapshot, err := p.aggregator.Aggregate(portfolio.Input{
		Manifest:  in.Manifest,
		Contracts: reported,
		Mode:      in.Mode,
		Weights:   in.Weights,
	}, runID, now)
	if err != nil {
		return nil, err
	}

	if base := baseline.LoadPortfolioForDiff(p.baselines, p.logger); base != nil {
		snapshot.Summary.DeltaOverall = baseline.Delta(snapshot.Summary.Overall, &base.Summary.Overall)
	}
	p.appendHistory(baseline.PortfolioID, now, snapshot.Summary.Overall)

	p.logger.Info("Run complete",
		zap.String("run_id", runID),
		zap.Int("contracts", len(reported)),
		zap.Int("missing", len(snapshot.MissingContracts)),
		zap.Float64("overall", snapshot.Summary.Overall),
		zap.Bool("degraded", snapshot.Degraded))
	return snapshot, nil
}

// scoreContract runs one contract's pipeline: normalize, score, reduce, diff,
// record history. Pure in-memory computation aside from the baseline read and
// history append.
func (p *Pipeline) scoreContract(rec *schemas.FindingsRecord, now time.Time) schemas.ContractRisk {
	normalized := p.normalizer.Normalize(rec)
	byFunction := p.scorer.ScoreAll(rec.ContractID, normalized.Signals)
	contract := p.reducer.Reduce(rec.ContractID, byFunction, normalized.Degraded, now)

	base := baseline.LoadContractForDiff(p.baselines, rec.ContractID, p.logger)
	baseline.ApplyContractDelta(&contract, base)

	p.appendHistory(rec.ContractID, now, contract.Overall)

	p.logger.Debug("Contract scored",
		zap.String("contract_id", rec.ContractID),
		zap.Float64("overall", contract.Overall),
		zap.String("grade", string(contract.Grade)),
		zap.Strings("degraded", contract.Degraded))
	return contract
}

// appendHistory records a trend sample. History is best-effort here; a write
// failure degrades trend data but never fails the run.
func (p *Pipeline) appendHistory(id string, ts time.Time, overall float64) {
	if p.trends == nil {
		return
	}
	if err := p.trends.Append(id, ts, overall); err != nil {
		p.logger.Warn("Failed to record history sample",
			zap.String("id", id), zap.Error(err))
	}
}
