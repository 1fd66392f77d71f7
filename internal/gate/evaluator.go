// Package gate applies threshold and percentile rules to a risk record and
// produces the pass/fail/soft-fail verdict a CI pipeline consumes.
package gate

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

// Target is the gate's view of whatever is being judged: a contract record or
// a portfolio snapshot, reduced to the fields the rules inspect.
type Target struct {
	ID      string
	Overall float64
	Delta   *float64
}

// ContractTarget adapts a contract risk record for evaluation.
func ContractTarget(c *schemas.ContractRisk) Target {
	return Target{ID: c.ContractID, Overall: c.Overall, Delta: c.Delta}
}

// PortfolioTarget adapts a portfolio snapshot for evaluation.
func PortfolioTarget(s *schemas.PortfolioSnapshot) Target {
	return Target{ID: "portfolio", Overall: s.Summary.Overall, Delta: s.Summary.DeltaOverall}
}

// Evaluator holds the configured rule set.
type Evaluator struct {
	cfg    config.GateConfig
	logger *zap.Logger
}

// New creates an Evaluator.
func New(cfg config.GateConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		logger: logger.Named("gate"),
	}
}

// Evaluate applies every rule and returns a verdict whose reasons enumerate
// all tripped rules, not just the first, so a single verdict can explain
// multiple simultaneous violations. history feeds the optional percentile
// rule and may be nil.
//
// With soft-fail enabled a would-be failure is downgraded to pass=true,
// softFail=true with the failing reasons kept, so callers can warn without
// blocking.
func (e *Evaluator) Evaluate(t Target, history []schemas.HistorySample) schemas.GateVerdict {
	maxOverall, maxDelta := e.thresholdsFor(t.ID)

	var reasons []string
	if t.Overall > maxOverall {
		reasons = append(reasons, fmt.Sprintf("overall %s > max %s",
			formatScore(t.Overall), formatScore(maxOverall)))
	}
	if t.Delta != nil && *t.Delta > maxDelta {
		reasons = append(reasons, fmt.Sprintf("delta %s > max %s",
			formatScore(*t.Delta), formatScore(maxDelta)))
	}
	if e.cfg.Percentile.Enabled {
		if threshold, ok := Percentile(history, e.cfg.Percentile.P); ok && t.Overall > threshold {
			reasons = append(reasons, fmt.Sprintf("overall %s > p%s %s of history window",
				formatScore(t.Overall), formatScore(e.cfg.Percentile.P), formatScore(threshold)))
		}
	}

	verdict := schemas.GateVerdict{Pass: len(reasons) == 0, Reasons: reasons}
	if !verdict.Pass && e.cfg.SoftFail {
		verdict.Pass = true
		verdict.SoftFail = true
	}

	if len(reasons) > 0 {
		e.logger.Warn("Gate rules tripped",
			zap.String("id", t.ID),
			zap.Bool("soft_fail", verdict.SoftFail),
			zap.Strings("reasons", reasons))
	}
	return verdict
}

// thresholdsFor resolves the effective thresholds for an id, applying any
// per-contract override on top of the global pair.
func (e *Evaluator) thresholdsFor(id string) (maxOverall, maxDelta float64) {
	maxOverall, maxDelta = e.cfg.MaxOverall, e.cfg.MaxDelta
	override, ok := e.cfg.Overrides[id]
	if !ok {
		return maxOverall, maxDelta
	}
	if override.MaxOverall != nil {
		maxOverall = *override.MaxOverall
	}
	if override.MaxDelta != nil {
		maxDelta = *override.MaxDelta
	}
	return maxOverall, maxDelta
}

// Percentile computes the nearest-rank Pth percentile of the window's overall
// values. ok is false for an empty window.
func Percentile(history []schemas.HistorySample, p float64) (value float64, ok bool) {
	if len(history) == 0 {
		return 0, false
	}
	values := make([]float64, len(history))
	for i, s := range history {
		values[i] = s.Overall
	}
	sort.Float64s(values)

	rank := int(math.Ceil(p / 100 * float64(len(values))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(values) {
		rank = len(values)
	}
	return values[rank-1], true
}

// formatScore renders a score compactly: integral values print without a
// decimal point, everything else rounds to two places.
func formatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
