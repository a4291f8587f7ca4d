package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
	"github.com/romanzh1/dsa-revision-tracker/internal/service/plan"
	"github.com/romanzh1/dsa-revision-tracker/internal/service/revision"
	"github.com/romanzh1/dsa-revision-tracker/pkg/utils"
)

const defaultReminderTime = "09:00"

type Service struct {
	repo            models.Repository
	defaultTimezone string
	now             func() time.Time
}

func NewService(repo models.Repository, defaultTimezone string) *Service {
	return &Service{
		repo:            repo,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

func (s *Service) RegisterUser(ctx context.Context, telegramID int64, username string) error {
	exists, err := s.repo.UserExists(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("check user exists (telegram_id: %d): %w", telegramID, err)
	}

	if exists {
		return fmt.Errorf("register user (telegram_id: %d): %w", telegramID, ErrUserExists)
	}

	user := &models.User{
		TelegramID:   telegramID,
		Username:     username,
		Timezone:     s.defaultTimezone,
		ReminderTime: defaultReminderTime,
		CreatedAt:    s.now(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user (telegram_id: %d, username: %s): %w", telegramID, username, err)
	}

	return nil
}

func (s *Service) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, telegramID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, ErrUserNotFound)
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	return s.repo.UserExists(ctx, telegramID)
}

func (s *Service) GetAllUsersForReminders(ctx context.Context) ([]*models.User, error) {
	return s.repo.GetAllUsersWithReminders(ctx)
}

func (s *Service) UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error {
	timezone = strings.TrimSpace(timezone)
	if timezone == "" {
		return fmt.Errorf("update timezone (telegram_id: %d): %w", telegramID, ErrInvalidTimezone)
	}
	if _, err := utils.LoadLocation(timezone); err != nil {
		return fmt.Errorf("update timezone (telegram_id: %d, timezone: %s): %w", telegramID, timezone, ErrInvalidTimezone)
	}

	if err := s.repo.UpdateUserTimezone(ctx, telegramID, timezone); err != nil {
		return fmt.Errorf("update timezone (telegram_id: %d): %w", telegramID, err)
	}
	return nil
}

// UpdateReminderTime sets the daily reminder clock ("HH:MM"); "off" disables reminders.
func (s *Service) UpdateReminderTime(ctx context.Context, telegramID int64, reminderTime string) error {
	reminderTime = strings.TrimSpace(reminderTime)

	normalized := ""
	if !strings.EqualFold(reminderTime, "off") {
		hour, minute, err := utils.ParseClock(reminderTime)
		if err != nil {
			return fmt.Errorf("update reminder time (telegram_id: %d, value: %s): %w", telegramID, reminderTime, ErrInvalidReminderTime)
		}
		normalized = fmt.Sprintf("%02d:%02d", hour, minute)
	}

	if err := s.repo.UpdateReminderTime(ctx, telegramID, normalized); err != nil {
		return fmt.Errorf("update reminder time (telegram_id: %d): %w", telegramID, err)
	}
	return nil
}

// AddQuestion records a newly solved problem and schedules its first revision.
func (s *Service) AddQuestion(ctx context.Context, in models.NewQuestion) (*models.TrackedQuestion, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Platform = strings.TrimSpace(in.Platform)
	in.Slug = strings.TrimSpace(in.Slug)

	in.Companies = mergeCompanies(in.Companies, in.CompanyTags)

	if in.Title == "" || in.Platform == "" {
		return nil, fmt.Errorf("add question (user_id: %d): title and platform: %w", in.UserID, ErrMissingField)
	}
	if !in.Difficulty.Valid() {
		return nil, fmt.Errorf("add question (user_id: %d, difficulty: %q): %w", in.UserID, in.Difficulty, ErrInvalidDifficulty)
	}

	now := s.now()
	schedule, err := revision.ComputeNextRevision(in.Outcome.ConfidenceLevel, in.Outcome.WayOfSolving, 0, now)
	if err != nil {
		return nil, fmt.Errorf("add question (user_id: %d): %w", in.UserID, err)
	}

	existing, err := s.findDuplicate(ctx, in)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateQuestionError{Existing: existing}
	}

	var slug *string
	if in.Slug != "" {
		slug = &in.Slug
	}
	next := schedule.NextRevisionAt

	question := &models.TrackedQuestion{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Title:           in.Title,
		Platform:        in.Platform,
		Difficulty:      in.Difficulty,
		Slug:            slug,
		Tags:            in.Tags,
		Companies:       in.Companies,
		CompanyTags:     in.CompanyTags,
		ConfidenceLevel: in.Outcome.ConfidenceLevel,
		WayOfSolving:    in.Outcome.WayOfSolving,
		LastConfidence:  in.Outcome.ConfidenceLevel,
		LastSolvedAt:    now,
		NextRevisionAt:  &next,
		RevisionCount:   0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateQuestion(ctx, question); err != nil {
		// a concurrent add of the same problem won the unique index
		if errors.Is(err, models.ErrDuplicate) {
			if existing, findErr := s.findDuplicate(ctx, in); findErr == nil && existing != nil {
				return nil, &DuplicateQuestionError{Existing: existing}
			}
		}
		return nil, fmt.Errorf("create question (user_id: %d, title: %s): %w", in.UserID, in.Title, err)
	}

	zap.L().Info("question added",
		zap.Int64("telegram_id", in.UserID),
		zap.String("question_id", question.ID),
		zap.Int("interval_days", schedule.IntervalUsed))

	return question, nil
}

// mergeCompanies appends companies that only appear in the tag map, dropping
// repeated names.
func mergeCompanies(companies []string, tags models.CompanyTags) []string {
	seen := make(map[string]bool, len(companies))
	var out []string
	for _, name := range slices.Concat(companies, tags.Companies()) {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (s *Service) findDuplicate(ctx context.Context, in models.NewQuestion) (*models.TrackedQuestion, error) {
	if in.Slug != "" {
		existing, err := s.repo.FindQuestionBySlug(ctx, in.UserID, in.Platform, in.Slug)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("check duplicate by slug (user_id: %d): %w", in.UserID, err)
		}
	}

	existing, err := s.repo.FindQuestionByTitle(ctx, in.UserID, in.Platform, in.Title)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("check duplicate by title (user_id: %d): %w", in.UserID, err)
	}

	return nil, nil
}

// ReviseQuestion records a revision attempt. The question row stays locked
// for the whole read-modify-write so concurrent revisions cannot lose an update
// to the revision counter.
func (s *Service) ReviseQuestion(ctx context.Context, telegramID int64, questionID string, outcome models.RevisionOutcome) (*models.TrackedQuestion, revision.Result, error) {
	var (
		updated *models.TrackedQuestion
		result  revision.Result
	)

	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		question, err := tx.GetQuestionForUpdate(ctx, questionID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("revise question (question_id: %s): %w", questionID, ErrQuestionNotFound)
			}
			return err
		}

		if question.UserID != telegramID {
			return fmt.Errorf("revise question (question_id: %s, telegram_id: %d): %w", questionID, telegramID, ErrForbidden)
		}

		revisedAt := s.now()
		result, err = revision.ComputeAfterRevision(outcome.ConfidenceLevel, outcome.WayOfSolving, question.RevisionCount, revisedAt)
		if err != nil {
			return fmt.Errorf("revise question (question_id: %s): %w", questionID, err)
		}

		history, err := tx.GetRevisionHistory(ctx, questionID)
		if err != nil {
			return err
		}

		next := result.NextRevisionAt
		question.ConfidenceLevel = outcome.ConfidenceLevel
		question.LastConfidence = outcome.ConfidenceLevel
		question.WayOfSolving = outcome.WayOfSolving
		question.LastSolvedAt = revisedAt
		question.NextRevisionAt = &next
		question.RevisionCount = result.EffectiveRevisionCount

		if err := tx.UpdateQuestionSchedule(ctx, question); err != nil {
			return err
		}

		entry := models.RevisionEntry{
			QuestionID:      questionID,
			Position:        len(history),
			RevisedAt:       revisedAt,
			ConfidenceLevel: outcome.ConfidenceLevel,
			WayOfSolving:    outcome.WayOfSolving,
			IntervalUsed:    result.IntervalUsed,
		}
		if err := tx.AppendRevisionHistory(ctx, entry); err != nil {
			return err
		}

		question.RevisionHistory = append(history, entry)
		updated = question
		return nil
	})
	if err != nil {
		return nil, revision.Result{}, err
	}

	if !result.ShouldIncrementCount {
		zap.L().Info("revision regressed",
			zap.Int64("telegram_id", telegramID),
			zap.String("question_id", questionID),
			zap.Int("revision_count", result.EffectiveRevisionCount))
	}

	return updated, result, nil
}

// UpdateConfidence changes the recorded confidence without touching the schedule.
func (s *Service) UpdateConfidence(ctx context.Context, telegramID int64, questionID string, level models.ConfidenceLevel) error {
	if !level.Valid() {
		return fmt.Errorf("update confidence (question_id: %s): %w: %q", questionID, revision.ErrInvalidConfidenceLevel, level)
	}

	if _, err := s.ownedQuestion(ctx, telegramID, questionID); err != nil {
		return err
	}

	if err := s.repo.UpdateQuestionConfidence(ctx, questionID, level); err != nil {
		return fmt.Errorf("update confidence (question_id: %s): %w", questionID, err)
	}
	return nil
}

// GetQuestion returns a question of the user together with its revision history.
func (s *Service) GetQuestion(ctx context.Context, telegramID int64, questionID string) (*models.TrackedQuestion, error) {
	question, err := s.ownedQuestion(ctx, telegramID, questionID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.GetRevisionHistory(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("get question history (question_id: %s): %w", questionID, err)
	}
	question.RevisionHistory = history

	return question, nil
}

func (s *Service) ownedQuestion(ctx context.Context, telegramID int64, questionID string) (*models.TrackedQuestion, error) {
	question, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("get question (question_id: %s): %w", questionID, ErrQuestionNotFound)
		}
		return nil, err
	}

	if question.UserID != telegramID {
		return nil, fmt.Errorf("get question (question_id: %s, telegram_id: %d): %w", questionID, telegramID, ErrForbidden)
	}

	return question, nil
}

func (s *Service) ListQuestions(ctx context.Context, telegramID int64) ([]*models.TrackedQuestion, error) {
	questions, err := s.repo.ListUserQuestions(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("list questions (telegram_id: %d): %w", telegramID, err)
	}
	return questions, nil
}

// ResetQuestions deletes every tracked question of the user.
func (s *Service) ResetQuestions(ctx context.Context, telegramID int64) (int64, error) {
	deleted, err := s.repo.DeleteUserQuestions(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("reset questions (telegram_id: %d): %w", telegramID, err)
	}

	zap.L().Info("questions reset", zap.Int64("telegram_id", telegramID), zap.Int64("deleted", deleted))
	return deleted, nil
}

// userNow returns the current time in the user's timezone, falling back to
// the service default when the stored zone cannot be loaded.
func (s *Service) userNow(user *models.User) time.Time {
	now := s.now()

	t, err := utils.ToUserTimezone(now, user.Timezone)
	if err == nil {
		return t
	}

	zap.L().Warn("failed to load user timezone, using default",
		zap.String("timezone", user.Timezone),
		zap.Int64("telegram_id", user.TelegramID),
		zap.Error(err))

	t, err = utils.ToUserTimezone(now, s.defaultTimezone)
	if err != nil {
		return now.UTC()
	}
	return t
}

func (s *Service) GetTodayPlan(ctx context.Context, telegramID int64) (plan.DailyPlan, error) {
	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return plan.DailyPlan{}, err
	}

	return s.buildPlan(ctx, user)
}

func (s *Service) buildPlan(ctx context.Context, user *models.User) (plan.DailyPlan, error) {
	questions, err := s.repo.ListUserQuestions(ctx, user.TelegramID)
	if err != nil {
		return plan.DailyPlan{}, fmt.Errorf("load questions for plan (telegram_id: %d): %w", user.TelegramID, err)
	}

	return plan.BuildDailyPlan(questions, s.userNow(user)), nil
}

// GenerateTodayPlan builds the same plan as GetTodayPlan and records when it was generated.
func (s *Service) GenerateTodayPlan(ctx context.Context, telegramID int64) (plan.DailyPlan, error) {
	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return plan.DailyPlan{}, err
	}

	return s.generatePlan(ctx, user)
}

func (s *Service) generatePlan(ctx context.Context, user *models.User) (plan.DailyPlan, error) {
	dailyPlan, err := s.buildPlan(ctx, user)
	if err != nil {
		return plan.DailyPlan{}, err
	}

	if err := s.repo.SetPlanGeneratedAt(ctx, user.TelegramID, s.now()); err != nil {
		return plan.DailyPlan{}, fmt.Errorf("record plan generation (telegram_id: %d): %w", user.TelegramID, err)
	}

	return dailyPlan, nil
}

// RunDailyCron generates today's plan for every user that does not have one yet.
func (s *Service) RunDailyCron(ctx context.Context) error {
	users, err := s.repo.GetAllUsersWithReminders(ctx)
	if err != nil {
		return fmt.Errorf("get all users: %w", err)
	}

	for _, user := range users {
		today := s.userNow(user)

		if user.PlanGeneratedAt != nil {
			generated := user.PlanGeneratedAt.In(today.Location())
			if utils.DatesEqual(generated, today) {
				zap.L().Info("skipping user with plan already generated today", zap.Int64("telegram_id", user.TelegramID))
				continue
			}
		}

		dailyPlan, err := s.generatePlan(ctx, user)
		if err != nil {
			zap.L().Error("generate plan in daily cron", zap.Error(err), zap.Int64("telegram_id", user.TelegramID))
			continue
		}

		zap.L().Info("daily plan generated",
			zap.Int64("telegram_id", user.TelegramID),
			zap.Int("due", dailyPlan.Stats.Total),
			zap.Int("overdue", dailyPlan.Stats.Overdue))
	}

	return nil
}
