package schemas

import (
	"time"
)

// -- Risk Schemas --

// Grade represents the discretized risk band derived from a numeric score.
// Grades are never stored independently of the score that produced them; use
// GradeFor to derive one.
type Grade string

// Constants defining the standard risk grades, ordered from least to most severe.
const (
	GradeInfo     Grade = "Info"
	GradeLow      Grade = "Low"
	GradeMedium   Grade = "Medium"
	GradeHigh     Grade = "High"
	GradeCritical Grade = "Critical"
)

// Grades lists every grade in ascending severity order. Useful for building
// bucket maps with stable iteration order.
var Grades = []Grade{GradeInfo, GradeLow, GradeMedium, GradeHigh, GradeCritical}

// GradeFor maps a risk score in [0,100] to its grade band. The mapping is the
// single source of truth for score/grade agreement across the whole pipeline.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeCritical
	case score >= 70:
		return GradeHigh
	case score >= 50:
		return GradeMedium
	case score >= 20:
		return GradeLow
	default:
		return GradeInfo
	}
}

// StrideCategory is one of the six STRIDE threat taxonomy tags.
type StrideCategory string

// Constants for the six STRIDE categories. The values are lowercase snake case
// to match the persisted record format.
const (
	StrideSpoofing              StrideCategory = "spoofing"
	StrideTampering             StrideCategory = "tampering"
	StrideRepudiation           StrideCategory = "repudiation"
	StrideInformationDisclosure StrideCategory = "information_disclosure"
	StrideDenialOfService       StrideCategory = "denial_of_service"
	StrideElevationOfPrivilege  StrideCategory = "elevation_of_privilege"
)

// StrideCategories lists all six tags in canonical order.
var StrideCategories = []StrideCategory{
	StrideSpoofing,
	StrideTampering,
	StrideRepudiation,
	StrideInformationDisclosure,
	StrideDenialOfService,
	StrideElevationOfPrivilege,
}

// Valid reports whether the category is one of the six known STRIDE tags.
func (c StrideCategory) Valid() bool {
	for _, known := range StrideCategories {
		if c == known {
			return true
		}
	}
	return false
}

// SignalSource identifies which external collaborator produced a signal.
type SignalSource string

// Constants for the supported signal sources.
const (
	SourceStaticAnalysis SignalSource = "static-analysis"
	SourceTestFailure    SignalSource = "test-failure"
	SourceTestIncomplete SignalSource = "test-incomplete"
)

// Signal is one detected fact about a function, normalized to a uniform shape.
// Signals are immutable once created; the scorer only reads them.
type Signal struct {
	// Category is the STRIDE tag attached to the signal, or empty when the
	// source did not classify it.
	Category StrideCategory `json:"category,omitempty"`
	// Severity is an ordinal in [0,4], 0 = informational, 4 = critical.
	Severity int `json:"severity"`
	// Source records which collaborator emitted the signal.
	Source SignalSource `json:"source"`
	// Weight is the configured multiplier applied to Severity during scoring.
	Weight float64 `json:"weight"`
	// Rule is the originating check or test name, kept for evidence output.
	Rule string `json:"rule,omitempty"`
}

// FunctionRisk is the scored risk record for a single contract function.
// A new instance is produced on every audit run; instances are never mutated.
type FunctionRisk struct {
	ContractID   string `json:"contract_id"`
	FunctionName string `json:"function_name"`
	// Score is the clamped risk score in [0,100].
	Score float64 `json:"score"`
	Grade Grade   `json:"grade"`
	// StrideCategories is the sorted set of tags observed on this function.
	StrideCategories []StrideCategory `json:"stride_categories,omitempty"`
	// Delta is current score minus the baseline score, or nil on a first run
	// with no baseline entry.
	Delta *float64 `json:"delta"`
}

// ContractRisk is the reduced, contract level risk record. It owns its
// FunctionRisk list exclusively.
type ContractRisk struct {
	ContractID string   `json:"contract_id"`
	Overall    float64  `json:"overall"`
	Grade      Grade    `json:"grade"`
	Delta      *float64 `json:"delta"`
	// ByFunction is ordered by score descending, ties broken by function name
	// ascending.
	ByFunction []FunctionRisk `json:"by_function"`
	// TopRisky is the top-N prefix of ByFunction under the same ordering.
	TopRisky []FunctionRisk `json:"top_risky"`
	// Degraded lists the signal sources that were unavailable for this run.
	// A non-empty list marks the record as degraded-but-valid.
	Degraded    []string  `json:"degraded,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// WeightingMode selects how contract scores combine into the portfolio score.
type WeightingMode string

// Supported portfolio weighting modes.
const (
	WeightingAverage  WeightingMode = "average"
	WeightingMedian   WeightingMode = "median"
	WeightingMax      WeightingMode = "max"
	WeightingWeighted WeightingMode = "weighted"
)

// Valid reports whether the mode is one of the supported weighting modes.
func (m WeightingMode) Valid() bool {
	switch m {
	case WeightingAverage, WeightingMedian, WeightingMax, WeightingWeighted:
		return true
	}
	return false
}

// ContractRef is the compact per-contract entry used in portfolio summaries.
type ContractRef struct {
	ContractID string   `json:"contract_id"`
	Overall    float64  `json:"overall"`
	Grade      Grade    `json:"grade"`
	Delta      *float64 `json:"delta"`
}

// PortfolioSummary is the roll-up block of a portfolio snapshot.
type PortfolioSummary struct {
	Overall      float64        `json:"overall"`
	Grade        Grade          `json:"grade"`
	DeltaOverall *float64       `json:"delta_overall"`
	Buckets      map[Grade]int  `json:"buckets"`
	TopContracts []ContractRef  `json:"top_contracts"`
	TopFunctions []FunctionRisk `json:"top_functions"`
}

// PortfolioSnapshot is the portfolio wide risk view for one run, derived
// entirely from the current set of ContractRisk plus optional external weights.
type PortfolioSnapshot struct {
	RunID   string           `json:"run_id"`
	Summary PortfolioSummary `json:"summary"`
	// ByContract maps contract id to its full risk record.
	ByContract    map[string]ContractRisk `json:"by_contract"`
	WeightingMode WeightingMode           `json:"weighting_mode"`
	// MissingContracts lists manifest ids that produced no ContractRisk.
	MissingContracts []string `json:"missing_contracts,omitempty"`
	// Notes carries aggregation metadata such as weighted-mode exclusions.
	Notes []string `json:"notes,omitempty"`
	// Degraded is true when any contract record was degraded or missing, so a
	// degraded run is always distinguishable from a clean pass.
	Degraded    bool      `json:"degraded"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GateVerdict is the outcome of a gate evaluation. It is ephemeral, produced
// fresh on every evaluation, and never persisted as a baseline.
type GateVerdict struct {
	Pass     bool `json:"pass"`
	SoftFail bool `json:"soft_fail"`
	// Reasons enumerates every rule that tripped, in evaluation order.
	Reasons []string `json:"reasons,omitempty"`
}

// HistorySample is one (timestamp, overall) point in a trend window.
type HistorySample struct {
	Timestamp time.Time `json:"ts"`
	Overall   float64   `json:"overall"`
}
