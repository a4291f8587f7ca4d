package plan

import (
	"cmp"
	"slices"
	"time"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
	"github.com/romanzh1/dsa-revision-tracker/pkg/utils"
)

// maxOverdueWeight bounds how much staleness can lower a priority score.
// DaysOverdue itself is reported uncapped.
const maxOverdueWeight = 30

type Entry struct {
	Question    *models.TrackedQuestion
	Priority    int
	DaysOverdue int
}

type Stats struct {
	Total            int
	LowConfidence    int
	MediumConfidence int
	HighConfidence   int
	Overdue          int
	NeedsPractice    int
}

type DailyPlan struct {
	Questions   []Entry
	Stats       Stats
	GeneratedAt time.Time
}

func confidenceWeight(level models.ConfidenceLevel) int {
	switch level {
	case models.ConfidenceLow:
		return 0
	case models.ConfidenceMedium:
		return 10
	default:
		return 20
	}
}

func wayWeight(way models.WayOfSolving) int {
	switch way.Kind() {
	case models.WayWatchedSolution:
		return 0
	case models.WayUsedAI:
		return 2
	case models.WayTookHints:
		return 5
	default:
		return 10
	}
}

// IsDue reports whether q should be revised on the day starting at todayStart.
// Questions without a date are always due.
func IsDue(q *models.TrackedQuestion, todayStart time.Time) bool {
	return q.NextRevisionAt == nil || !q.NextRevisionAt.After(todayStart)
}

// DaysOverdue is the whole number of days since the question fell due.
func DaysOverdue(q *models.TrackedQuestion, todayStart time.Time) int {
	if q.NextRevisionAt == nil {
		return 0
	}
	return utils.DaysBetween(*q.NextRevisionAt, todayStart)
}

// Priority scores a question; lower means it should be shown sooner.
func Priority(q *models.TrackedQuestion, todayStart time.Time) int {
	priority := confidenceWeight(q.ConfidenceLevel) + wayWeight(q.WayOfSolving)

	if q.NextRevisionAt != nil {
		priority -= min(DaysOverdue(q, todayStart), maxOverdueWeight)
	}

	return priority - q.RevisionCount
}

func compareNextRevision(a, b *models.TrackedQuestion) int {
	switch {
	case a.NextRevisionAt == nil && b.NextRevisionAt == nil:
		return 0
	case a.NextRevisionAt == nil:
		return -1
	case b.NextRevisionAt == nil:
		return 1
	}
	return a.NextRevisionAt.Compare(*b.NextRevisionAt)
}

// BuildDailyPlan selects the due questions of a single user and orders them by
// priority. Equal priorities keep the oldest due date first. The input slice
// and its records are left untouched.
func BuildDailyPlan(questions []*models.TrackedQuestion, today time.Time) DailyPlan {
	todayStart := utils.StartOfDay(today)

	due := make([]*models.TrackedQuestion, 0, len(questions))
	for _, q := range questions {
		if q != nil && IsDue(q, todayStart) {
			due = append(due, q)
		}
	}
	slices.SortStableFunc(due, compareNextRevision)

	entries := make([]Entry, 0, len(due))
	for _, q := range due {
		entries = append(entries, Entry{
			Question:    q,
			Priority:    Priority(q, todayStart),
			DaysOverdue: DaysOverdue(q, todayStart),
		})
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	return DailyPlan{
		Questions:   entries,
		Stats:       computeStats(entries),
		GeneratedAt: todayStart,
	}
}

func computeStats(entries []Entry) Stats {
	stats := Stats{Total: len(entries)}

	for _, e := range entries {
		switch e.Question.ConfidenceLevel {
		case models.ConfidenceLow:
			stats.LowConfidence++
		case models.ConfidenceMedium:
			stats.MediumConfidence++
		case models.ConfidenceHigh:
			stats.HighConfidence++
		}

		if e.DaysOverdue > 0 {
			stats.Overdue++
		}

		switch e.Question.WayOfSolving {
		case models.WayWatchedSolution, models.WayUsedAI:
			stats.NeedsPractice++
		}
	}

	return stats
}
