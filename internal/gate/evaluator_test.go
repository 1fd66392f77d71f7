package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

func floatPtr(v float64) *float64 { return &v }

func TestEvaluatePasses(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 70, MaxDelta: 10}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 42, Delta: floatPtr(3)}, nil)

	assert.True(t, verdict.Pass)
	assert.False(t, verdict.SoftFail)
	assert.Empty(t, verdict.Reasons)
}

func TestEvaluateOverallRule(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 30, MaxDelta: 5}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 32, Delta: floatPtr(3)}, nil)

	assert.False(t, verdict.Pass)
	assert.Equal(t, []string{"overall 32 > max 30"}, verdict.Reasons,
		"only the tripped rule appears, a passing delta does not")
}

func TestEvaluateSoftFail(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 30, MaxDelta: 5, SoftFail: true}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 32, Delta: floatPtr(3)}, nil)

	assert.True(t, verdict.Pass, "soft-fail downgrades the failure")
	assert.True(t, verdict.SoftFail)
	assert.Equal(t, []string{"overall 32 > max 30"}, verdict.Reasons, "reasons survive the downgrade")
}

func TestEvaluateAllTrippedRulesReported(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 30, MaxDelta: 5}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 45, Delta: floatPtr(12)}, nil)

	assert.False(t, verdict.Pass)
	require.Len(t, verdict.Reasons, 2, "one verdict explains every simultaneous violation")
	assert.Equal(t, "overall 45 > max 30", verdict.Reasons[0])
	assert.Equal(t, "delta 12 > max 5", verdict.Reasons[1])
}

func TestEvaluateNilDeltaSkipsDeltaRule(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 70, MaxDelta: 0}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 42, Delta: nil}, nil)

	assert.True(t, verdict.Pass, "a first run has no delta and cannot trip the delta rule")
}

func TestEvaluateBoundaryIsNotAViolation(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 70, MaxDelta: 10}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 70, Delta: floatPtr(10)}, nil)

	assert.True(t, verdict.Pass, "thresholds are inclusive; only strictly-greater trips")
}

func TestEvaluateOverrides(t *testing.T) {
	t.Parallel()

	cfg := config.GateConfig{
		MaxOverall: 70,
		MaxDelta:   10,
		Overrides: map[string]config.ThresholdOverride{
			"treasury": {MaxOverall: floatPtr(40)},
		},
	}
	e := New(cfg, zap.NewNop())

	// The override tightens the overall threshold for one contract only.
	assert.False(t, e.Evaluate(Target{ID: "treasury", Overall: 50}, nil).Pass)
	assert.True(t, e.Evaluate(Target{ID: "vault", Overall: 50}, nil).Pass)

	// The untouched delta threshold falls back to the global value.
	assert.True(t, e.Evaluate(Target{ID: "treasury", Overall: 30, Delta: floatPtr(8)}, nil).Pass)
}

func TestEvaluatePercentileRule(t *testing.T) {
	t.Parallel()

	history := historyOf(10, 20, 30, 40, 50, 60, 70, 80, 90, 100)
	cfg := config.GateConfig{
		MaxOverall: 200,
		MaxDelta:   200,
		Percentile: config.PercentileConfig{Enabled: true, P: 90},
	}
	e := New(cfg, zap.NewNop())

	// p90 of the window is 90; 95 trips, 85 does not.
	verdict := e.Evaluate(Target{ID: "vault", Overall: 95}, history)
	assert.False(t, verdict.Pass)
	require.Len(t, verdict.Reasons, 1)
	assert.Equal(t, "overall 95 > p90 90 of history window", verdict.Reasons[0])

	assert.True(t, e.Evaluate(Target{ID: "vault", Overall: 85}, history).Pass)
}

func TestEvaluatePercentileEmptyHistory(t *testing.T) {
	t.Parallel()

	cfg := config.GateConfig{
		MaxOverall: 200,
		MaxDelta:   200,
		Percentile: config.PercentileConfig{Enabled: true, P: 90},
	}
	e := New(cfg, zap.NewNop())

	assert.True(t, e.Evaluate(Target{ID: "vault", Overall: 95}, nil).Pass,
		"no history means the percentile rule cannot trip")
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		overalls []float64
		p        float64
		expected float64
	}{
		{"median of odd window", []float64{30, 10, 20}, 50, 20},
		{"p90 of ten", []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, 90, 90},
		{"p100 is the max", []float64{10, 20, 30}, 100, 30},
		{"tiny p clamps to first rank", []float64{10, 20, 30}, 0.1, 10},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Percentile(historyOf(tc.overalls...), tc.p)
			require.True(t, ok)
			assert.Equal(t, tc.expected, got)
		})
	}

	_, ok := Percentile(nil, 90)
	assert.False(t, ok)
}

func TestReasonScoreFormatting(t *testing.T) {
	t.Parallel()

	e := New(config.GateConfig{MaxOverall: 30.5, MaxDelta: 5}, zap.NewNop())
	verdict := e.Evaluate(Target{ID: "vault", Overall: 32.456}, nil)

	require.Len(t, verdict.Reasons, 1)
	assert.Equal(t, "overall 32.46 > max 30.5", verdict.Reasons[0],
		"scores round to two places and drop trailing zeros")
}

func historyOf(overalls ...float64) []schemas.HistorySample {
	out := make([]schemas.HistorySample, len(overalls))
	for i, o := range overalls {
		out[i] = schemas.HistorySample{
			Timestamp: time.Date(2026, 8, 1, 0, i, 0, 0, time.UTC),
			Overall:   o,
		}
	}
	return out
}
