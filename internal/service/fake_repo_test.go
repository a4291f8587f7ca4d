package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

// fakeRepo is an in-memory models.Repository. Reads hand out copies so tests
// can tell what was actually persisted.
type fakeRepo struct {
	mu        sync.Mutex
	users     map[int64]models.User
	questions map[string]models.TrackedQuestion
	order     []string
	history   map[string][]models.RevisionEntry

	planGenerated map[int64]int

	// beforeCreate runs ahead of CreateQuestion, outside the lock.
	beforeCreate func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[int64]models.User),
		questions:     make(map[string]models.TrackedQuestion),
		history:       make(map[string][]models.RevisionEntry),
		planGenerated: make(map[int64]int),
	}
}

func (f *fakeRepo) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.TelegramID]; ok {
		return fmt.Errorf("duplicate user %d", user.TelegramID)
	}
	f.users[user.TelegramID] = *user
	return nil
}

func (f *fakeRepo) GetUser(_ context.Context, telegramID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, models.ErrNotFound)
	}
	return &u, nil
}

func (f *fakeRepo) UserExists(_ context.Context, telegramID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[telegramID]
	return ok, nil
}

func (f *fakeRepo) UpdateUserTimezone(_ context.Context, telegramID int64, timezone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[telegramID]
	u.Timezone = timezone
	f.users[telegramID] = u
	return nil
}

func (f *fakeRepo) UpdateReminderTime(_ context.Context, telegramID int64, reminderTime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[telegramID]
	u.ReminderTime = reminderTime
	f.users[telegramID] = u
	return nil
}

func (f *fakeRepo) GetAllUsersWithReminders(_ context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []*models.User
	for _, u := range f.users {
		if u.ReminderTime == "" {
			continue
		}
		u := u
		users = append(users, &u)
	}
	return users, nil
}

func (f *fakeRepo) SetPlanGeneratedAt(_ context.Context, telegramID int64, generatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[telegramID]
	u.PlanGeneratedAt = &generatedAt
	f.users[telegramID] = u
	f.planGenerated[telegramID]++
	return nil
}

func (f *fakeRepo) RunInTx(_ context.Context, fn func(models.Repository) error) error {
	return fn(f)
}

// sameProblem mirrors the unique indexes on questions.
func sameProblem(a, b models.TrackedQuestion) bool {
	if a.UserID != b.UserID || !strings.EqualFold(a.Platform, b.Platform) {
		return false
	}
	if a.Slug != nil && b.Slug != nil && *a.Slug == *b.Slug {
		return true
	}
	return strings.EqualFold(a.Title, b.Title)
}

func (f *fakeRepo) CreateQuestion(_ context.Context, question *models.TrackedQuestion) error {
	if hook := f.beforeCreate; hook != nil {
		f.beforeCreate = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions {
		if sameProblem(q, *question) {
			return fmt.Errorf("create question (title: %s): %w", question.Title, models.ErrDuplicate)
		}
	}
	f.questions[question.ID] = *question
	f.order = append(f.order, question.ID)
	return nil
}

func (f *fakeRepo) GetQuestion(_ context.Context, questionID string) (*models.TrackedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[questionID]
	if !ok {
		return nil, fmt.Errorf("get question (question_id: %s): %w", questionID, models.ErrNotFound)
	}
	return &q, nil
}

func (f *fakeRepo) GetQuestionForUpdate(ctx context.Context, questionID string) (*models.TrackedQuestion, error) {
	return f.GetQuestion(ctx, questionID)
}

func (f *fakeRepo) find(match func(q models.TrackedQuestion) bool) (*models.TrackedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		q, ok := f.questions[id]
		if ok && match(q) {
			return &q, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) FindQuestionBySlug(_ context.Context, userID int64, platform, slug string) (*models.TrackedQuestion, error) {
	return f.find(func(q models.TrackedQuestion) bool {
		return q.UserID == userID && strings.EqualFold(q.Platform, platform) && q.Slug != nil && *q.Slug == slug
	})
}

func (f *fakeRepo) FindQuestionByTitle(_ context.Context, userID int64, platform, title string) (*models.TrackedQuestion, error) {
	return f.find(func(q models.TrackedQuestion) bool {
		return q.UserID == userID && strings.EqualFold(q.Platform, platform) &&
			strings.EqualFold(strings.TrimSpace(q.Title), strings.TrimSpace(title))
	})
}

func (f *fakeRepo) ListUserQuestions(_ context.Context, userID int64) ([]*models.TrackedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TrackedQuestion
	for _, id := range f.order {
		q, ok := f.questions[id]
		if ok && q.UserID == userID {
			out = append(out, &q)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateQuestionSchedule(_ context.Context, question *models.TrackedQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[question.ID]
	if !ok {
		return models.ErrNotFound
	}
	q.ConfidenceLevel = question.ConfidenceLevel
	q.LastConfidence = question.LastConfidence
	q.WayOfSolving = question.WayOfSolving
	q.LastSolvedAt = question.LastSolvedAt
	q.NextRevisionAt = question.NextRevisionAt
	q.RevisionCount = question.RevisionCount
	f.questions[question.ID] = q
	return nil
}

func (f *fakeRepo) UpdateQuestionConfidence(_ context.Context, questionID string, level models.ConfidenceLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[questionID]
	if !ok {
		return models.ErrNotFound
	}
	q.ConfidenceLevel = level
	q.LastConfidence = level
	f.questions[questionID] = q
	return nil
}

func (f *fakeRepo) DeleteUserQuestions(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	kept := f.order[:0]
	for _, id := range f.order {
		if f.questions[id].UserID == userID {
			delete(f.questions, id)
			delete(f.history, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	f.order = kept
	return deleted, nil
}

func (f *fakeRepo) AppendRevisionHistory(_ context.Context, entry models.RevisionEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.Position != len(f.history[entry.QuestionID]) {
		return fmt.Errorf("position %d taken", entry.Position)
	}
	f.history[entry.QuestionID] = append(f.history[entry.QuestionID], entry)
	return nil
}

func (f *fakeRepo) GetRevisionHistory(_ context.Context, questionID string) ([]models.RevisionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RevisionEntry(nil), f.history[questionID]...), nil
}
