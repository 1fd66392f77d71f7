package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uatu-sec/riskgate/api/schemas"
	"github.com/uatu-sec/riskgate/internal/config"
)

func testBlend() config.BlendConfig {
	return config.NewDefaultConfig().Blend()
}

func TestOverallEmpty(t *testing.T) {
	t.Parallel()

	r := NewReducer(testBlend())
	assert.Equal(t, 0.0, r.Overall(nil))
	assert.Equal(t, 0.0, r.Overall([]float64{}))
}

func TestOverallBlendExceedsMean(t *testing.T) {
	t.Parallel()

	r := NewReducer(testBlend())
	scores := []float64{10, 55, 92}

	mean := (10.0 + 55.0 + 92.0) / 3.0
	overall := r.Overall(scores)

	// 0.5*52.33 + 0.5*92 = 72.17: the max term keeps one critical function
	// from being averaged away.
	assert.InDelta(t, 72.1666, overall, 0.001)
	assert.Greater(t, overall, mean)
	assert.Equal(t, schemas.GradeHigh, schemas.GradeFor(overall))
}

func TestOverallSingleScore(t *testing.T) {
	t.Parallel()

	r := NewReducer(testBlend())
	// mean == max, so any convex blend returns the score itself.
	assert.InDelta(t, 88.0, r.Overall([]float64{88}), 1e-9)
}

func TestOverallClamped(t *testing.T) {
	t.Parallel()

	r := NewReducer(config.BlendConfig{MeanWeight: 1, MaxWeight: 1, TopFunctions: 5})
	assert.Equal(t, 100.0, r.Overall([]float64{90, 95, 100}))
}

func TestReduce(t *testing.T) {
	t.Parallel()

	r := NewReducer(config.BlendConfig{MeanWeight: 0.5, MaxWeight: 0.5, TopFunctions: 2})
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	byFn := []schemas.FunctionRisk{
		{ContractID: "vault", FunctionName: "deposit", Score: 10, Grade: schemas.GradeInfo},
		{ContractID: "vault", FunctionName: "withdraw", Score: 92, Grade: schemas.GradeCritical},
		{ContractID: "vault", FunctionName: "transfer", Score: 55, Grade: schemas.GradeMedium},
	}

	rec := r.Reduce("vault", byFn, []string{"tests unavailable"}, now)

	assert.Equal(t, "vault", rec.ContractID)
	assert.InDelta(t, 72.1666, rec.Overall, 0.001)
	assert.Equal(t, schemas.GradeHigh, rec.Grade)

	require.Len(t, rec.ByFunction, 3)
	assert.Equal(t, "withdraw", rec.ByFunction[0].FunctionName)

	require.Len(t, rec.TopRisky, 2)
	assert.Equal(t, "withdraw", rec.TopRisky[0].FunctionName)
	assert.Equal(t, "transfer", rec.TopRisky[1].FunctionName)

	assert.Equal(t, []string{"tests unavailable"}, rec.Degraded)
	assert.Equal(t, time.UTC, rec.GeneratedAt.Location())
}

func TestReduceNoFunctions(t *testing.T) {
	t.Parallel()

	r := NewReducer(testBlend())
	rec := r.Reduce("empty", nil, nil, time.Now())

	assert.Equal(t, 0.0, rec.Overall)
	assert.Equal(t, schemas.GradeInfo, rec.Grade)
	assert.Empty(t, rec.TopRisky)
}
