// Package risk computes per-function risk scores from normalized signals and
// reduces them into contract level records. All tunables come from the weight
// and blend configuration; the package itself holds no hidden constants.
package risk

import (
	"sort"

	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

// Scorer computes a 0-100 risk score and grade per function.
type Scorer struct {
	weights config.WeightsConfig
	logger  *zap.Logger
}

// NewScorer creates a Scorer bound to the given weight tables.
func NewScorer(weights config.WeightsConfig, logger *zap.Logger) *Scorer {
	return &Scorer{
		weights: weights,
		logger:  logger.Named("scorer"),
	}
}

// ScoreFunction converts one function's signal set into a FunctionRisk.
// A function with zero signals scores 0 and grades Info. Incomplete-test
// signals accumulate separately and are capped, so an unavailable tool can
// never push a function into the High or Critical bands on its own.
func (s *Scorer) ScoreFunction(contractID, functionName string, signals []schemas.Signal) schemas.FunctionRisk {
	var points, incompletePoints float64
	categories := make(map[schemas.StrideCategory]bool)

	for _, sig := range signals {
		contribution := float64(sig.Severity) * sig.Weight
		if sig.Source == schemas.SourceTestIncomplete {
			incompletePoints += contribution
		} else {
			points += contribution
		}
		if sig.Category != "" {
			categories[sig.Category] = true
		}
	}

	if incompletePoints > s.weights.IncompleteCap {
		incompletePoints = s.weights.IncompleteCap
	}

	score := clamp(points+incompletePoints, 0, 100)

	return schemas.FunctionRisk{
		ContractID:       contractID,
		FunctionName:     functionName,
		Score:            score,
		Grade:            schemas.GradeFor(score),
		StrideCategories: sortedCategories(categories),
	}
}

// ScoreAll scores every function in a normalized signal map and returns the
// records ordered by score descending, ties broken by function name ascending.
func (s *Scorer) ScoreAll(contractID string, signals map[string][]schemas.Signal) []schemas.FunctionRisk {
	out := make([]schemas.FunctionRisk, 0, len(signals))
	for fn, sigs := range signals {
		out = append(out, s.ScoreFunction(contractID, fn, sigs))
	}
	SortByRisk(out)
	return out
}

// SortByRisk orders function records by score descending, name ascending.
// This is the single tie-break rule shared by contract and portfolio views.
func SortByRisk(fns []schemas.FunctionRisk) {
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].Score != fns[j].Score {
			return fns[i].Score > fns[j].Score
		}
		return fns[i].FunctionName < fns[j].FunctionName
	})
}

func sortedCategories(set map[schemas.StrideCategory]bool) []schemas.StrideCategory {
	if len(set) == 0 {
		return nil
	}
	out := make([]schemas.StrideCategory, 0, len(set))
	for cat := range set {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
