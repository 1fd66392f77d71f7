package trend

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uatu-sec/riskgate/api/schemas"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, Normalize(nil))
	})

	t.Run("flat series maps to mid band", func(t *testing.T) {
		t.Parallel()
		out := Normalize([]float64{42, 42, 42})
		assert.Equal(t, []float64{0.5, 0.5, 0.5}, out)
	})

	t.Run("scales to unit interval", func(t *testing.T) {
		t.Parallel()
		out := Normalize([]float64{10, 30, 50})
		require.Len(t, out, 3)
		assert.Equal(t, 0.0, out[0])
		assert.Equal(t, 0.5, out[1])
		assert.Equal(t, 1.0, out[2])
	})
}

func samplesOf(overalls ...float64) []schemas.HistorySample {
	out := make([]schemas.HistorySample, len(overalls))
	for i, o := range overalls {
		out[i] = schemas.HistorySample{
			Timestamp: time.Date(2026, 8, 29, 10, i, 0, 0, time.UTC),
			Overall:   o,
		}
	}
	return out
}

func TestPoints(t *testing.T) {
	t.Parallel()

	t.Run("empty series", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", Points(nil, 0, 0))
	})

	t.Run("point count matches sample count", func(t *testing.T) {
		t.Parallel()
		got := Points(samplesOf(10, 20, 30, 25), 0, 0)
		assert.Len(t, strings.Split(got, " "), 4)
	})

	t.Run("higher risk plots lower on screen", func(t *testing.T) {
		t.Parallel()
		got := Points(samplesOf(0, 100), 140, 24)
		points := strings.Split(got, " ")
		require.Len(t, points, 2)

		// With padding 4 and height 24, risk 0 sits at y=20 and risk 100 at y=4.
		assert.Equal(t, "4.0,20.0", points[0])
		assert.Equal(t, "136.0,4.0", points[1])
	})

	t.Run("single sample sits at left edge", func(t *testing.T) {
		t.Parallel()
		got := Points(samplesOf(55), 140, 24)
		assert.True(t, strings.HasPrefix(got, "4.0,"), got)
	})
}
