package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_ZeroFindingsIsPerfect(t *testing.T) {
	assert.Equal(t, 100, Score(0, 0, 0, 0))
	assert.Equal(t, "A", GradeForCounts(0, 0, 0, 0))
}

func TestScore_SeverityWeighting(t *testing.T) {
	// One critical outweighs many lows.
	oneCritical := Score(1, 0, 0, 0)
	manyLows := Score(0, 0, 0, 20)
	assert.Less(t, oneCritical, manyLows)

	// Score never escapes the 0-100 band.
	assert.Equal(t, 0, Score(10, 10, 10, 10))
	assert.GreaterOrEqual(t, Score(0, 0, 0, 1), 0)
}

func TestScore_Monotonic(t *testing.T) {
	// Adding findings never raises the score.
	prev := Score(0, 0, 0, 0)
	for low := 1; low <= 60; low++ {
		cur := Score(0, 0, 0, low)
		assert.LessOrEqual(t, cur, prev, "low=%d", low)
		prev = cur
	}
}

func TestGradeFor_Bands(t *testing.T) {
	tests := []struct {
		weighted int
		grade    string
	}{
		{0, "A"},
		{19, "A"},
		{20, "B"},
		{39, "B"},
		{40, "C"},
		{60, "D"},
		{80, "F"},
		{500, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.grade, GradeFor(tt.weighted), "weighted=%d", tt.weighted)
	}
}

func TestGradeForCounts_UsesUnclampedTotal(t *testing.T) {
	// Both of these clamp to score 0, but the grades still differ because
	// grading reads the raw weighted total.
	assert.Equal(t, "F", GradeForCounts(4, 0, 0, 0))
	assert.Equal(t, "D", GradeForCounts(0, 6, 0, 0))
	assert.Equal(t, 0, Score(0, 6, 0, 0))
}

func TestTrend(t *testing.T) {
	prev := 50
	assert.Equal(t, TrendInitial, Trend(80, nil))
	assert.Equal(t, TrendImproved, Trend(80, &prev))
	assert.Equal(t, TrendDeclined, Trend(20, &prev))
	assert.Equal(t, TrendUnchanged, Trend(50, &prev))
}
