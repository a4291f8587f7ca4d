package models

import (
	"context"
	"time"
)

type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	UserExists(ctx context.Context, telegramID int64) (bool, error)
	UpdateUserTimezone(ctx context.Context, telegramID int64, timezone string) error
	UpdateReminderTime(ctx context.Context, telegramID int64, reminderTime string) error
	GetAllUsersWithReminders(ctx context.Context) ([]*User, error)
	SetPlanGeneratedAt(ctx context.Context, telegramID int64, generatedAt time.Time) error
	RunInTx(ctx context.Context, fn func(Repository) error) error

	CreateQuestion(ctx context.Context, question *TrackedQuestion) error
	GetQuestion(ctx context.Context, questionID string) (*TrackedQuestion, error)
	GetQuestionForUpdate(ctx context.Context, questionID string) (*TrackedQuestion, error)
	FindQuestionBySlug(ctx context.Context, userID int64, platform, slug string) (*TrackedQuestion, error)
	FindQuestionByTitle(ctx context.Context, userID int64, platform, title string) (*TrackedQuestion, error)
	ListUserQuestions(ctx context.Context, userID int64) ([]*TrackedQuestion, error)
	UpdateQuestionSchedule(ctx context.Context, question *TrackedQuestion) error
	UpdateQuestionConfidence(ctx context.Context, questionID string, level ConfidenceLevel) error
	DeleteUserQuestions(ctx context.Context, userID int64) (int64, error)

	AppendRevisionHistory(ctx context.Context, entry RevisionEntry) error
	GetRevisionHistory(ctx context.Context, questionID string) ([]RevisionEntry, error)
}
