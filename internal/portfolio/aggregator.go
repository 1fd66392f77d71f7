// Package portfolio reduces all contract level results of a run into one
// portfolio-wide snapshot under a selectable weighting mode. Aggregation is a
// single-threaded reduce step; it runs only after every contract pipeline has
// either reported or been recorded as missing.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/risk"
)

// ErrEmptyPortfolio means zero contracts reported. There is nothing to
// aggregate, so the run aborts; a partially reported run does not.
var ErrEmptyPortfolio = errors.New("empty portfolio: no contracts reported")

// Input is everything the aggregation step consumes.
type Input struct {
	// Manifest is the full set of contract ids the run was expected to cover.
	Manifest []string
	// Contracts maps each reporting contract id to its risk record.
	Contracts map[string]schemas.ContractRisk
	// Mode selects the weighting rule.
	Mode schemas.WeightingMode
	// Weights is the optional external per-contract weight map (for example
	// total-value-locked) consumed by the weighted mode.
	Weights map[string]float64
}

// Aggregator builds portfolio snapshots.
type Aggregator struct {
	topContracts int
	topFunctions int
	logger       *zap.Logger
}

// New creates an Aggregator. topContracts and topFunctions bound the summary
// leaderboards.
func New(topContracts, topFunctions int, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		topContracts: topContracts,
		topFunctions: topFunctions,
		logger:       logger.Named("portfolio"),
	}
}

// Aggregate reduces the reported contracts into one snapshot. Contracts in the
// manifest that produced no result are recorded as missing and mark the
// snapshot degraded; only an entirely empty report set is fatal.
func (a *Aggregator) Aggregate(in Input, runID string, generatedAt time.Time) (*schemas.PortfolioSnapshot, error) {
	if len(in.Contracts) == 0 {
		return nil, ErrEmptyPortfolio
	}

	missing := missingIDs(in.Manifest, in.Contracts)
	var notes []string
	if len(missing) > 0 {
		notes = append(notes, fmt.Sprintf("missing contracts excluded from aggregation: %v", missing))
		a.logger.Warn("Aggregating a degraded portfolio",
			zap.Strings("missing_contracts", missing),
			zap.Int("reported", len(in.Contracts)))
	}

	overall, weightNotes, err := a.combine(in)
	if err != nil {
		return nil, err
	}
	notes = append(notes, weightNotes...)

	degraded := len(missing) > 0
	buckets := make(map[schemas.Grade]int, len(schemas.Grades))
	for _, g := range schemas.Grades {
		buckets[g] = 0
	}
	var allFunctions []schemas.FunctionRisk
	for _, c := range in.Contracts {
		buckets[c.Grade]++
		allFunctions = append(allFunctions, c.ByFunction...)
		if len(c.Degraded) > 0 {
			degraded = true
		}
	}

	risk.SortByRisk(allFunctions)
	if len(allFunctions) > a.topFunctions {
		allFunctions = allFunctions[:a.topFunctions]
	}

	return &schemas.PortfolioSnapshot{
		RunID: runID,
		Summary: schemas.PortfolioSummary{
			Overall:      overall,
			Grade:        schemas.GradeFor(overall),
			Buckets:      buckets,
			TopContracts: a.topContractRefs(in.Contracts),
			TopFunctions: allFunctions,
		},
		ByContract:       in.Contracts,
		WeightingMode:    in.Mode,
		MissingContracts: missing,
		Notes:            notes,
		Degraded:         degraded,
		GeneratedAt:      generatedAt.UTC(),
	}, nil
}

// combine applies the selected weighting mode to the reported overalls.
func (a *Aggregator) combine(in Input) (float64, []string, error) {
	scores := make([]float64, 0, len(in.Contracts))
	for _, c := range in.Contracts {
		scores = append(scores, c.Overall)
	}
	sort.Float64s(scores)

	switch in.Mode {
	case schemas.WeightingAverage:
		return mean(scores), nil, nil

	case schemas.WeightingMedian:
		return median(scores), nil, nil

	case schemas.WeightingMax:
		return scores[len(scores)-1], nil, nil

	case schemas.WeightingWeighted:
		return a.weighted(in)

	default:
		return 0, nil, fmt.Errorf("unknown weighting mode %q", in.Mode)
	}
}

// weighted computes sum(overall*weight)/sum(weight). Contracts missing from
// the weight map default to weight 0 and drop out of the denominator; every
// exclusion is reported in the notes, never silently dropped.
func (a *Aggregator) weighted(in Input) (float64, []string, error) {
	var numerator, denominator float64
	var excluded []string
	for _, id := range sortedIDs(in.Contracts) {
		w := in.Weights[id]
		if w <= 0 {
			excluded = append(excluded, id)
			continue
		}
		numerator += in.Contracts[id].Overall * w
		denominator += w
	}

	var notes []string
	for _, id := range excluded {
		notes = append(notes, fmt.Sprintf("contract %s excluded from weighted aggregation: no positive weight", id))
	}
	if denominator == 0 {
		return 0, nil, fmt.Errorf("weighted aggregation: no reporting contract has a positive weight")
	}
	return numerator / denominator, notes, nil
}

// topContractRefs sorts contracts overall-descending with id-ascending
// tie-break, the same deterministic rule used for function leaderboards.
func (a *Aggregator) topContractRefs(contracts map[string]schemas.ContractRisk) []schemas.ContractRef {
	refs := make([]schemas.ContractRef, 0, len(contracts))
	for _, c := range contracts {
		refs = append(refs, schemas.ContractRef{
			ContractID: c.ContractID,
			Overall:    c.Overall,
			Grade:      c.Grade,
			Delta:      c.Delta,
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Overall != refs[j].Overall {
			return refs[i].Overall > refs[j].Overall
		}
		return refs[i].ContractID < refs[j].ContractID
	})
	if len(refs) > a.topContracts {
		refs = refs[:a.topContracts]
	}
	return refs
}

func missingIDs(manifest []string, reported map[string]schemas.ContractRisk) []string {
	var missing []string
	for _, id := range manifest {
		if _, ok := reported[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func sortedIDs(contracts map[string]schemas.ContractRisk) []string {
	ids := make([]string, 0, len(contracts))
	for id := range contracts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func mean(sorted []float64) float64 {
	var sum float64
	for _, s := range sorted {
		sum += s
	}
	return sum / float64(len(sorted))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
