package baseline

import (
	"errors"

	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
)

// Delta returns current minus prior, or nil when there is no prior record.
// A nil delta is the only way a first run is represented; it is never
// conflated with a zero delta.
func Delta(current float64, prior *float64) *float64 {
	if prior == nil {
		return nil
	}
	d := current - *prior
	return &d
}

// ApplyContractDelta fills in the delta fields of a freshly built contract
// record against its baseline. A nil base leaves every delta nil.
func ApplyContractDelta(current *schemas.ContractRisk, base *schemas.ContractRisk) {
	if current == nil || base == nil {
		return
	}
	current.Delta = Delta(current.Overall, &base.Overall)

	prior := make(map[string]float64, len(base.ByFunction))
	for _, f := range base.ByFunction {
		prior[f.FunctionName] = f.Score
	}
	for i := range current.ByFunction {
		if p, ok := prior[current.ByFunction[i].FunctionName]; ok {
			current.ByFunction[i].Delta = Delta(current.ByFunction[i].Score, &p)
		}
	}
	for i := range current.TopRisky {
		if p, ok := prior[current.TopRisky[i].FunctionName]; ok {
			current.TopRisky[i].Delta = Delta(current.TopRisky[i].Score, &p)
		}
	}
}

// LoadContractForDiff loads the baseline used for delta computation.
// Both ErrNotFound and ErrBaselineCorrupt resolve to first-run semantics; the
// corrupt case is surfaced with a warning rather than silently trusted.
func LoadContractForDiff(store *Store, id string, logger *zap.Logger) *schemas.ContractRisk {
	base, err := store.LoadContract(id)
	switch {
	case err == nil:
		return base
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, ErrBaselineCorrupt):
		logger.Warn("Baseline is corrupt; treating as first run",
			zap.String("id", id), zap.Error(err))
		return nil
	default:
		logger.Warn("Baseline unreadable; treating as first run",
			zap.String("id", id), zap.Error(err))
		return nil
	}
}

// LoadPortfolioForDiff mirrors LoadContractForDiff for the portfolio baseline.
func LoadPortfolioForDiff(store *Store, logger *zap.Logger) *schemas.PortfolioSnapshot {
	base, err := store.LoadPortfolio()
	switch {
	case err == nil:
		return base
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, ErrBaselineCorrupt):
		logger.Warn("Portfolio baseline is corrupt; treating as first run", zap.Error(err))
		return nil
	default:
		logger.Warn("Portfolio baseline unreadable; treating as first run", zap.Error(err))
		return nil
	}
}
