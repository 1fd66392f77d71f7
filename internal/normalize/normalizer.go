// Package normalize converts the heterogeneous signals handed over by the
// static-analysis and test-execution collaborators into a uniform per-function
// signal set. Normalization never fails on missing input: an absent source
// yields zero signals from that source plus a degraded marker.
package normalize

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

// Degraded-source markers recorded on a normalization result.
const (
	DegradedStatic = "static-analysis unavailable"
	DegradedTests  = "tests unavailable"
)

// severityOrdinals aliases the severity spellings of the supported tools onto
// the uniform 0..4 ordinal scale. Unknown spellings map to 0 (informational).
var severityOrdinals = map[string]int{
	"critical":      4,
	"severe":        4,
	"high":          3,
	"medium":        2,
	"med":           2,
	"low":           1,
	"info":          0,
	"informational": 0,
}

// SeverityOrdinal maps a raw tool severity onto the 0..4 scale.
func SeverityOrdinal(raw schemas.RawSeverity) int {
	return severityOrdinals[strings.ToLower(strings.TrimSpace(string(raw)))]
}

// Result is the normalized signal set for one contract.
type Result struct {
	ContractID string
	// Signals maps every known function name to its signal list. Functions
	// with no findings and no test results map to an empty slice.
	Signals map[string][]schemas.Signal
	// Degraded lists the sources that were unavailable for this record.
	Degraded []string
}

// Normalizer is a pure transform from collaborator records to signal sets.
type Normalizer struct {
	weights config.WeightsConfig
	logger  *zap.Logger
}

// New creates a Normalizer using the configured weight tables.
func New(weights config.WeightsConfig, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		weights: weights,
		logger:  logger.Named("normalizer"),
	}
}

// Normalize converts one findings record into a per-function signal set.
// rec may have nil sources; a fully nil record still yields a valid, fully
// degraded result.
func (n *Normalizer) Normalize(rec *schemas.FindingsRecord) *Result {
	res := &Result{Signals: make(map[string][]schemas.Signal)}
	if rec == nil {
		res.Degraded = []string{DegradedStatic, DegradedTests}
		return res
	}
	res.ContractID = rec.ContractID

	// Every extracted function participates, even when no source reported on
	// it; a function with zero signals later scores zero.
	for _, fn := range rec.Functions {
		res.Signals[fn] = []schemas.Signal{}
	}

	if rec.StaticAnalysis == nil {
		res.Degraded = append(res.Degraded, DegradedStatic)
	} else {
		n.normalizeStatic(rec, res)
	}

	if rec.Tests == nil {
		res.Degraded = append(res.Degraded, DegradedTests)
	} else {
		n.normalizeTests(rec.Tests, res)
	}

	return res
}

// normalizeStatic emits one severity signal per finding and one presence
// signal per (function, STRIDE category) pair. Findings the tool could only
// resolve to the contract level apply to every known function.
func (n *Normalizer) normalizeStatic(rec *schemas.FindingsRecord, res *Result) {
	// categorySeen tracks which (function, category) presence signals have
	// already been emitted; STRIDE weighting is presence based, not per hit.
	categorySeen := make(map[string]map[schemas.StrideCategory]bool)

	apply := func(fn string, f schemas.StaticFinding) {
		sig := schemas.Signal{
			Severity: SeverityOrdinal(f.Severity),
			Source:   schemas.SourceStaticAnalysis,
			Weight:   n.weights.Static,
			Rule:     f.Check,
		}
		if f.Stride.Valid() {
			sig.Category = f.Stride
		} else if f.Stride != "" {
			n.logger.Warn("Dropping unknown STRIDE category on finding",
				zap.String("contract_id", rec.ContractID),
				zap.String("check", f.Check),
				zap.String("category", string(f.Stride)))
		}
		res.Signals[fn] = append(res.Signals[fn], sig)

		if sig.Category == "" {
			return
		}
		if categorySeen[fn] == nil {
			categorySeen[fn] = make(map[schemas.StrideCategory]bool)
		}
		if categorySeen[fn][sig.Category] {
			return
		}
		categorySeen[fn][sig.Category] = true
		res.Signals[fn] = append(res.Signals[fn], schemas.Signal{
			Category: sig.Category,
			Severity: 1,
			Source:   schemas.SourceStaticAnalysis,
			Weight:   n.weights.Stride[string(sig.Category)],
			Rule:     f.Check,
		})
	}

	for _, f := range rec.StaticAnalysis.Findings {
		if f.FunctionName != "" {
			if _, known := res.Signals[f.FunctionName]; !known {
				res.Signals[f.FunctionName] = []schemas.Signal{}
			}
			apply(f.FunctionName, f)
			continue
		}
		// Contract-level finding: charge it to every extracted function.
		for _, fn := range sortedFunctions(res.Signals) {
			apply(fn, f)
		}
	}
}

// normalizeTests emits one signal per failed or incomplete generated test.
// Passed tests contribute nothing.
func (n *Normalizer) normalizeTests(report *schemas.TestReport, res *Result) {
	for _, tr := range report.Results {
		if tr.FunctionName == "" {
			continue
		}
		if _, known := res.Signals[tr.FunctionName]; !known {
			res.Signals[tr.FunctionName] = []schemas.Signal{}
		}
		switch tr.Status {
		case schemas.TestFailed:
			res.Signals[tr.FunctionName] = append(res.Signals[tr.FunctionName], schemas.Signal{
				Severity: 1,
				Source:   schemas.SourceTestFailure,
				Weight:   n.weights.Tests[string(tr.Suite)],
				Rule:     tr.Name,
			})
		case schemas.TestIncomplete:
			res.Signals[tr.FunctionName] = append(res.Signals[tr.FunctionName], schemas.Signal{
				Severity: 1,
				Source:   schemas.SourceTestIncomplete,
				Weight:   n.weights.Incomplete,
				Rule:     tr.Name,
			})
		}
	}
}

// sortedFunctions returns the map keys in deterministic order so contract
// level findings apply identically across runs.
func sortedFunctions(signals map[string][]schemas.Signal) []string {
	fns := make([]string, 0, len(signals))
	for fn := range signals {
		fns = append(fns, fn)
	}
	sort.Strings(fns)
	return fns
}
