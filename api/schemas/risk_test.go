package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradeFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		score    float64
		expected Grade
	}{
		{0, GradeInfo},
		{19, GradeInfo},
		{19.99, GradeInfo},
		{20, GradeLow},
		{49.99, GradeLow},
		{50, GradeMedium},
		{69.99, GradeMedium},
		{70, GradeHigh},
		{89.99, GradeHigh},
		{90, GradeCritical},
		{100, GradeCritical},
	}

	for _, tc := range testCases {
		assert.Equalf(t, tc.expected, GradeFor(tc.score), "score %.2f", tc.score)
	}
}

func TestWeightingModeValid(t *testing.T) {
	t.Parallel()

	for _, m := range []WeightingMode{WeightingAverage, WeightingMedian, WeightingMax, WeightingWeighted} {
		assert.True(t, m.Valid(), string(m))
	}
	assert.False(t, WeightingMode("harmonic").Valid())
	assert.False(t, WeightingMode("").Valid())
}

func TestStrideCategoryValid(t *testing.T) {
	t.Parallel()

	for _, c := range StrideCategories {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, StrideCategory("buffer_overflow").Valid())
	assert.False(t, StrideCategory("").Valid())
}
