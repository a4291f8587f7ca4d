package revision

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

var base = time.Date(2024, time.March, 10, 14, 30, 0, 0, time.UTC)

func TestComputeNextRevision_Ladder(t *testing.T) {
	tests := []struct {
		name  string
		level models.ConfidenceLevel
		way   models.WayOfSolving
		count int
		want  int
	}{
		{"low first step", models.ConfidenceLow, models.WayTookHints, 0, 1},
		{"low last step", models.ConfidenceLow, models.WayTookHints, 4, 15},
		{"medium second step", models.ConfidenceMedium, models.WayTookHints, 1, 7},
		{"high third step", models.ConfidenceHigh, models.WayTookHints, 2, 30},
		{"self solve boost", models.ConfidenceMedium, models.WaySolvedSelf, 0, 5},
		{"ai penalty", models.ConfidenceHigh, models.WayUsedAI, 0, 5},
		{"watched solution penalty", models.ConfidenceMedium, models.WayWatchedSolution, 1, 4},
		{"unknown way is neutral", models.ConfidenceMedium, models.WayOfSolving("PAIR_PROGRAMMED"), 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeNextRevision(tt.level, tt.way, tt.count, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.IntervalUsed)
			assert.Equal(t, base.AddDate(0, 0, tt.want), got.NextRevisionAt)
		})
	}
}

func TestComputeNextRevision_LadderExhaustionGrowth(t *testing.T) {
	got, err := ComputeNextRevision(models.ConfidenceLow, models.WayTookHints, 5, base)
	require.NoError(t, err)
	assert.Equal(t, 23, got.IntervalUsed)

	// two full cycles: 15 * 1.5^2 = 33.75
	got, err = ComputeNextRevision(models.ConfidenceLow, models.WayTookHints, 10, base)
	require.NoError(t, err)
	assert.Equal(t, 34, got.IntervalUsed)

	// HIGH, 4 revisions: 60 * 1.5 * 1.5 = 135
	got, err = ComputeNextRevision(models.ConfidenceHigh, models.WaySolvedSelf, 4, base)
	require.NoError(t, err)
	assert.Equal(t, 135, got.IntervalUsed)
}

func TestComputeNextRevision_GrowthIsMonotonicPastLadder(t *testing.T) {
	prev := 0
	for count := 0; count < 40; count++ {
		got, err := ComputeNextRevision(models.ConfidenceHigh, models.WayTookHints, count, base)
		require.NoError(t, err)
		if count >= 4 {
			assert.GreaterOrEqual(t, got.IntervalUsed, prev, "count %d", count)
		}
		prev = got.IntervalUsed
	}
}

func TestComputeNextRevision_LongRunIsCapped(t *testing.T) {
	ways := []models.WayOfSolving{models.WaySolvedSelf, models.WayTookHints, models.WayWatchedSolution}
	counts := []int{20, 40, 150, 200, 280, 505, 1000, 20000, math.MaxInt32}

	for _, way := range ways {
		prev := 0
		for _, count := range counts {
			got, err := ComputeNextRevision(models.ConfidenceLow, way, count, base)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, got.IntervalUsed, prev, "way %s count %d", way, count)
			assert.LessOrEqual(t, got.IntervalUsed, MaxIntervalDays, "way %s count %d", way, count)
			assert.Equal(t, base.AddDate(0, 0, got.IntervalUsed), got.NextRevisionAt)
			assert.Less(t, got.NextRevisionAt.Year(), base.Year()+101)
			prev = got.IntervalUsed
		}
		// the ladder stops growing at the cap, slower ways keep their discount
		want := int(math.Round(MaxIntervalDays * min(Modifier(way), 1)))
		assert.Equal(t, want, prev, "way %s", way)
	}
}

func TestBaseInterval_Capped(t *testing.T) {
	got, err := BaseInterval(models.ConfidenceHigh, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, float64(MaxIntervalDays), got)
}

func TestComputeNextRevision_MinimumOneDay(t *testing.T) {
	levels := []models.ConfidenceLevel{models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh}
	ways := []models.WayOfSolving{models.WaySolvedSelf, models.WayTookHints, models.WayUsedAI, models.WayWatchedSolution, "?"}

	for _, level := range levels {
		for _, way := range ways {
			for count := 0; count < 12; count++ {
				got, err := ComputeNextRevision(level, way, count, base)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got.IntervalUsed, 1, "%s/%s/%d", level, way, count)
			}
		}
	}

	// LOW first step watched: round(0.5) = 1
	got, err := ComputeNextRevision(models.ConfidenceLow, models.WayWatchedSolution, 0, base)
	require.NoError(t, err)
	assert.Equal(t, 1, got.IntervalUsed)
}

func TestComputeNextRevision_Deterministic(t *testing.T) {
	a, err := ComputeNextRevision(models.ConfidenceMedium, models.WayUsedAI, 3, base)
	require.NoError(t, err)
	b, err := ComputeNextRevision(models.ConfidenceMedium, models.WayUsedAI, 3, base)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeNextRevision_InvalidConfidence(t *testing.T) {
	for _, level := range []models.ConfidenceLevel{"", "low", "VERY_HIGH"} {
		_, err := ComputeNextRevision(level, models.WaySolvedSelf, 0, base)
		require.ErrorIs(t, err, ErrInvalidConfidenceLevel)
	}
}

func TestComputeAfterRevision_RegressionReset(t *testing.T) {
	got, err := ComputeAfterRevision(models.ConfidenceLow, models.WayWatchedSolution, 7, base)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EffectiveRevisionCount)
	assert.False(t, got.ShouldIncrementCount)
	assert.Equal(t, 1, got.IntervalUsed)
}

func TestComputeAfterRevision_PartialRegression(t *testing.T) {
	got, err := ComputeAfterRevision(models.ConfidenceLow, models.WayUsedAI, 3, base)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EffectiveRevisionCount)
	assert.False(t, got.ShouldIncrementCount)
	// LOW[2] = 4 * 0.7 = 2.8
	assert.Equal(t, 3, got.IntervalUsed)

	got, err = ComputeAfterRevision(models.ConfidenceLow, models.WayUsedAI, 0, base)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EffectiveRevisionCount)
}

func TestComputeAfterRevision_SelfSolveAlwaysProgresses(t *testing.T) {
	got, err := ComputeAfterRevision(models.ConfidenceLow, models.WaySolvedSelf, 0, base)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EffectiveRevisionCount)
	assert.True(t, got.ShouldIncrementCount)
	assert.Equal(t, 3, got.IntervalUsed)
	assert.Equal(t, base.AddDate(0, 0, 3), got.NextRevisionAt)
}

func TestComputeAfterRevision_OtherCombinationsProgress(t *testing.T) {
	tests := []struct {
		level models.ConfidenceLevel
		way   models.WayOfSolving
	}{
		{models.ConfidenceMedium, models.WayWatchedSolution},
		{models.ConfidenceHigh, models.WayUsedAI},
		{models.ConfidenceLow, models.WayTookHints},
		{models.ConfidenceHigh, models.WayOfSolving("SOMETHING_NEW")},
	}

	for _, tt := range tests {
		got, err := ComputeAfterRevision(tt.level, tt.way, 2, base)
		require.NoError(t, err)
		assert.Equal(t, 3, got.EffectiveRevisionCount, "%s/%s", tt.level, tt.way)
		assert.True(t, got.ShouldIncrementCount)
	}
}

func TestComputeAfterRevision_InvalidConfidence(t *testing.T) {
	_, err := ComputeAfterRevision("MAYBE", models.WayWatchedSolution, 4, base)
	require.ErrorIs(t, err, ErrInvalidConfidenceLevel)
}

func TestIntervals_ReturnsCopy(t *testing.T) {
	ladder, err := Intervals(models.ConfidenceLow)
	require.NoError(t, err)
	ladder[0] = 100

	again, err := Intervals(models.ConfidenceLow)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4, 7, 15}, again)
}
