package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type User struct {
	TelegramID      int64      `db:"telegram_id"`
	Username        string     `db:"username"`
	Timezone        string     `db:"timezone"`
	ReminderTime    string     `db:"reminder_time"`
	PlanGeneratedAt *time.Time `db:"plan_generated_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// Valid reports whether c is one of the three known levels.
func (c ConfidenceLevel) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// WayOfSolving records how much outside help an attempt needed. Values outside
// the four known ones are kept as-is and treated as WayOther by the scheduler.
type WayOfSolving string

const (
	WaySolvedSelf      WayOfSolving = "SOLVED_SELF"
	WayTookHints       WayOfSolving = "TOOK_HINTS"
	WayUsedAI          WayOfSolving = "USED_AI"
	WayWatchedSolution WayOfSolving = "WATCHED_SOLUTION"
	WayOther           WayOfSolving = "OTHER"
)

// Kind folds unrecognised values into WayOther.
func (w WayOfSolving) Kind() WayOfSolving {
	switch w {
	case WaySolvedSelf, WayTookHints, WayUsedAI, WayWatchedSolution:
		return w
	}
	return WayOther
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CompanyTags maps a company name to the tags it was asked under.
// Stored as JSONB.
type CompanyTags map[string][]string

// Companies returns the company names in sorted order.
func (ct CompanyTags) Companies() []string {
	names := make([]string, 0, len(ct))
	for name := range ct {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ct CompanyTags) Value() (driver.Value, error) {
	if ct == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string][]string(ct))
	if err != nil {
		return nil, fmt.Errorf("marshal company tags: %w", err)
	}
	return b, nil
}

func (ct *CompanyTags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*ct = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan company tags: unsupported type %T", src)
	}

	m := make(map[string][]string)
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("unmarshal company tags: %w", err)
	}
	if len(m) == 0 {
		*ct = nil
		return nil
	}
	*ct = m
	return nil
}

type TrackedQuestion struct {
	ID          string      `db:"id"`
	UserID      int64       `db:"user_id"`
	Title       string      `db:"title"`
	Platform    string      `db:"platform"`
	Difficulty  Difficulty  `db:"difficulty"`
	Slug        *string     `db:"slug"`
	Tags        []string    `db:"-"`
	Companies   []string    `db:"-"`
	CompanyTags CompanyTags `db:"company_tags"`

	ConfidenceLevel ConfidenceLevel `db:"confidence_level"`
	WayOfSolving    WayOfSolving    `db:"way_of_solving"`
	LastConfidence  ConfidenceLevel `db:"last_confidence"`
	LastSolvedAt    time.Time       `db:"last_solved_at"`
	NextRevisionAt  *time.Time      `db:"next_revision_at"`
	RevisionCount   int             `db:"revision_count"`

	RevisionHistory []RevisionEntry `db:"-"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type RevisionEntry struct {
	QuestionID      string          `db:"question_id"`
	Position        int             `db:"position"`
	RevisedAt       time.Time       `db:"revised_at"`
	ConfidenceLevel ConfidenceLevel `db:"confidence_level"`
	WayOfSolving    WayOfSolving    `db:"way_of_solving"`
	IntervalUsed    int             `db:"interval_used"`
}

// RevisionOutcome describes how a single attempt went.
type RevisionOutcome struct {
	ConfidenceLevel ConfidenceLevel
	WayOfSolving    WayOfSolving
}

type NewQuestion struct {
	UserID      int64
	Title       string
	Platform    string
	Difficulty  Difficulty
	Slug        string
	Tags        []string
	Companies   []string
	CompanyTags CompanyTags
	Outcome     RevisionOutcome
}
