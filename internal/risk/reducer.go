package risk

import (
	"time"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

// Reducer combines function scores into one contract level record.
//
// The combination rule is a convex blend of mean and max:
//
//	overall = clamp(MeanWeight*mean(scores) + MaxWeight*max(scores), 0, 100)
//
// The max term keeps a single catastrophic function from being diluted to
// invisibility by many benign ones; the constants are configuration values.
type Reducer struct {
	blend config.BlendConfig
}

// NewReducer creates a Reducer bound to the given blend constants.
func NewReducer(blend config.BlendConfig) *Reducer {
	return &Reducer{blend: blend}
}

// Overall applies the blend rule to a set of function scores. An empty set
// reduces to 0.
func (r *Reducer) Overall(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum, max float64
	for _, s := range scores {
		sum += s
		if s > max {
			max = s
		}
	}
	mean := sum / float64(len(scores))
	return clamp(r.blend.MeanWeight*mean+r.blend.MaxWeight*max, 0, 100)
}

// Reduce builds the ContractRisk for one contract from its scored functions.
// byFunction is re-sorted under the shared score-desc/name-asc rule; topRisky
// is its first TopFunctions entries. The record takes exclusive ownership of
// the byFunction slice.
func (r *Reducer) Reduce(contractID string, byFunction []schemas.FunctionRisk, degraded []string, generatedAt time.Time) schemas.ContractRisk {
	SortByRisk(byFunction)

	scores := make([]float64, len(byFunction))
	for i, f := range byFunction {
		scores[i] = f.Score
	}
	overall := r.Overall(scores)

	topN := r.blend.TopFunctions
	if topN > len(byFunction) {
		topN = len(byFunction)
	}
	topRisky := make([]schemas.FunctionRisk, topN)
	copy(topRisky, byFunction[:topN])

	return schemas.ContractRisk{
		ContractID:  contractID,
		Overall:     overall,
		Grade:       schemas.GradeFor(overall),
		ByFunction:  byFunction,
		TopRisky:    topRisky,
		Degraded:    degraded,
		GeneratedAt: generatedAt.UTC(),
	}
}
