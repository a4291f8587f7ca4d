package revision

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
	"github.com/romanzh1/dsa-revision-tracker/pkg/utils"
)

var ErrInvalidConfidenceLevel = errors.New("invalid confidence level")

// growthFactor stretches the last ladder step once per full pass over the ladder.
const growthFactor = 1.5

// MaxIntervalDays bounds every scheduled interval (about a century) so the
// growth phase stays representable as a date and as an INTEGER column.
const MaxIntervalDays = 36500

var baseIntervals = map[models.ConfidenceLevel][]int{
	models.ConfidenceLow:    {1, 2, 4, 7, 15},
	models.ConfidenceMedium: {3, 7, 15, 30},
	models.ConfidenceHigh:   {7, 15, 30, 60},
}

// Modifier returns the interval multiplier for a way of solving.
func Modifier(way models.WayOfSolving) float64 {
	switch way.Kind() {
	case models.WaySolvedSelf:
		return 1.5
	case models.WayUsedAI:
		return 0.7
	case models.WayWatchedSolution:
		return 0.5
	default:
		// TOOK_HINTS and anything unknown
		return 1.0
	}
}

// Intervals returns a copy of the ladder for a confidence level.
func Intervals(level models.ConfidenceLevel) ([]int, error) {
	ladder, ok := baseIntervals[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConfidenceLevel, level)
	}
	return append([]int(nil), ladder...), nil
}

// BaseInterval is the unmodified interval in days for the given position.
// While revisionCount is inside the ladder the value is read from it; past the
// end the last step grows by 50% per full cycle until MaxIntervalDays.
func BaseInterval(level models.ConfidenceLevel, revisionCount int) (float64, error) {
	ladder, ok := baseIntervals[level]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidConfidenceLevel, level)
	}
	if revisionCount < 0 {
		revisionCount = 0
	}

	if revisionCount < len(ladder) {
		return float64(ladder[revisionCount]), nil
	}

	cycles := revisionCount / len(ladder)
	grown := float64(ladder[len(ladder)-1]) * math.Pow(growthFactor, float64(cycles))
	return min(grown, MaxIntervalDays), nil
}

type Schedule struct {
	NextRevisionAt time.Time
	IntervalUsed   int
}

// ComputeNextRevision schedules the next revision counted from baseDate.
func ComputeNextRevision(level models.ConfidenceLevel, way models.WayOfSolving, revisionCount int, baseDate time.Time) (Schedule, error) {
	base, err := BaseInterval(level, revisionCount)
	if err != nil {
		return Schedule{}, err
	}

	interval := int(math.Round(min(base*Modifier(way), MaxIntervalDays)))
	if interval < 1 {
		interval = 1
	}

	return Schedule{
		NextRevisionAt: utils.AddDays(baseDate, interval),
		IntervalUsed:   interval,
	}, nil
}

type Result struct {
	Schedule
	ShouldIncrementCount   bool
	EffectiveRevisionCount int
}

// ComputeAfterRevision decides how an attempt moves the question along its
// ladder and schedules the next revision from revisionDate. Low confidence
// after watching a solution restarts the ladder; low confidence with AI help
// steps back once. Everything else moves forward.
func ComputeAfterRevision(level models.ConfidenceLevel, way models.WayOfSolving, currentRevisionCount int, revisionDate time.Time) (Result, error) {
	if !level.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidConfidenceLevel, level)
	}
	if currentRevisionCount < 0 {
		currentRevisionCount = 0
	}

	res := Result{ShouldIncrementCount: true, EffectiveRevisionCount: currentRevisionCount + 1}

	switch {
	case way == models.WayWatchedSolution && level == models.ConfidenceLow:
		res.ShouldIncrementCount = false
		res.EffectiveRevisionCount = 0
	case way == models.WayUsedAI && level == models.ConfidenceLow:
		res.ShouldIncrementCount = false
		res.EffectiveRevisionCount = max(0, currentRevisionCount-1)
	}

	schedule, err := ComputeNextRevision(level, way, res.EffectiveRevisionCount, revisionDate)
	if err != nil {
		return Result{}, err
	}
	res.Schedule = schedule

	return res, nil
}
