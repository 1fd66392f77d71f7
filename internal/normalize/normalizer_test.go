package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

func testWeights() config.WeightsConfig {
	return config.NewDefaultConfig().Weights()
}

func TestSeverityOrdinal(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw      schemas.RawSeverity
		expected int
	}{
		{"critical", 4},
		{"Critical", 4},
		{"SEVERE", 4},
		{"high", 3},
		{" High ", 3},
		{"medium", 2},
		{"med", 2},
		{"low", 1},
		{"info", 0},
		{"informational", 0},
		{"", 0},
		{"banana", 0},
	}
	for _, tc := range testCases {
		assert.Equalf(t, tc.expected, SeverityOrdinal(tc.raw), "raw %q", tc.raw)
	}
}

func TestNormalizeNilRecord(t *testing.T) {
	t.Parallel()

	n := New(testWeights(), zap.NewNop())
	res := n.Normalize(nil)

	require.NotNil(t, res)
	assert.Empty(t, res.Signals)
	assert.Equal(t, []string{DegradedStatic, DegradedTests}, res.Degraded)
}

func TestNormalizeMissingSources(t *testing.T) {
	t.Parallel()

	n := New(testWeights(), zap.NewNop())
	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw", "deposit"},
	})

	// Every extracted function participates even with no sources at all.
	require.Len(t, res.Signals, 2)
	assert.Empty(t, res.Signals["withdraw"])
	assert.Empty(t, res.Signals["deposit"])
	assert.ElementsMatch(t, []string{DegradedStatic, DegradedTests}, res.Degraded)
}

func TestNormalizeStaticFindings(t *testing.T) {
	t.Parallel()

	weights := testWeights()
	n := New(weights, zap.NewNop())

	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw"},
		StaticAnalysis: &schemas.StaticReport{Findings: []schemas.StaticFinding{
			{FunctionName: "withdraw", Check: "reentrancy-eth", Severity: "high", Stride: schemas.StrideElevationOfPrivilege},
		}},
		Tests: &schemas.TestReport{},
	})

	require.Empty(t, res.Degraded)
	sigs := res.Signals["withdraw"]
	require.Len(t, sigs, 2, "one severity signal plus one presence signal")

	// Severity signal: ordinal 3 at the static multiplier.
	assert.Equal(t, 3, sigs[0].Severity)
	assert.Equal(t, weights.Static, sigs[0].Weight)
	assert.Equal(t, schemas.SourceStaticAnalysis, sigs[0].Source)
	assert.Equal(t, "reentrancy-eth", sigs[0].Rule)

	// Presence signal: once per (function, category) at the category weight.
	assert.Equal(t, 1, sigs[1].Severity)
	assert.Equal(t, weights.Stride[string(schemas.StrideElevationOfPrivilege)], sigs[1].Weight)
	assert.Equal(t, schemas.StrideElevationOfPrivilege, sigs[1].Category)
}

func TestNormalizeStridePresenceEmittedOncePerCategory(t *testing.T) {
	t.Parallel()

	n := New(testWeights(), zap.NewNop())
	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw"},
		StaticAnalysis: &schemas.StaticReport{Findings: []schemas.StaticFinding{
			{FunctionName: "withdraw", Check: "a", Severity: "low", Stride: schemas.StrideTampering},
			{FunctionName: "withdraw", Check: "b", Severity: "low", Stride: schemas.StrideTampering},
		}},
	})

	var presence int
	for _, sig := range res.Signals["withdraw"] {
		if sig.Category == schemas.StrideTampering && sig.Severity == 1 && sig.Source == schemas.SourceStaticAnalysis && sig.Weight == testWeights().Stride["tampering"] {
			presence++
		}
	}
	assert.Equal(t, 1, presence, "repeated hits in one category add one presence signal")
}

func TestNormalizeContractLevelFindingFansOut(t *testing.T) {
	t.Parallel()

	n := New(testWeights(), zap.NewNop())
	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw", "deposit"},
		StaticAnalysis: &schemas.StaticReport{Findings: []schemas.StaticFinding{
			{Check: "pragma-version", Severity: "info"},
		}},
	})

	require.Len(t, res.Signals["withdraw"], 1)
	require.Len(t, res.Signals["deposit"], 1)
}

func TestNormalizeUnknownStrideDropped(t *testing.T) {
	t.Parallel()

	n := New(testWeights(), zap.NewNop())
	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw"},
		StaticAnalysis: &schemas.StaticReport{Findings: []schemas.StaticFinding{
			{FunctionName: "withdraw", Check: "x", Severity: "high", Stride: "buffer_overflow"},
		}},
	})

	// Severity signal survives; the bogus category yields no presence signal.
	require.Len(t, res.Signals["withdraw"], 1)
	assert.Empty(t, res.Signals["withdraw"][0].Category)
}

func TestNormalizeTests(t *testing.T) {
	t.Parallel()

	weights := testWeights()
	n := New(weights, zap.NewNop())

	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw"},
		Tests: &schemas.TestReport{Results: []schemas.TestResult{
			{FunctionName: "withdraw", Name: "test_eop_1", Suite: schemas.SuiteEoP, Status: schemas.TestFailed},
			{FunctionName: "withdraw", Name: "test_happy_1", Suite: schemas.SuiteHappy, Status: schemas.TestPassed},
			{FunctionName: "withdraw", Name: "test_stress_1", Suite: schemas.SuiteStress, Status: schemas.TestIncomplete},
		}},
	})

	sigs := res.Signals["withdraw"]
	require.Len(t, sigs, 2, "passed tests contribute nothing")

	assert.Equal(t, schemas.SourceTestFailure, sigs[0].Source)
	assert.Equal(t, weights.Tests[string(schemas.SuiteEoP)], sigs[0].Weight)

	assert.Equal(t, schemas.SourceTestIncomplete, sigs[1].Source)
	assert.Equal(t, weights.Incomplete, sigs[1].Weight)
}

func TestNormalizeUnknownFunctionFromSourceIsAdded(t *testing.T) {
	t.Parallel()

	n := New(testWeights(), zap.NewNop())
	res := n.Normalize(&schemas.FindingsRecord{
		ContractID: "vault",
		Functions:  []string{"withdraw"},
		Tests: &schemas.TestReport{Results: []schemas.TestResult{
			{FunctionName: "fallback", Name: "test_neg_1", Suite: schemas.SuiteNegative, Status: schemas.TestFailed},
		}},
	})

	require.Contains(t, res.Signals, "fallback")
	require.Len(t, res.Signals["fallback"], 1)
}
