package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

const userColumns = "telegram_id, username, timezone, reminder_time, plan_generated_at, created_at"

func (r Postgres) CreateUser(ctx context.Context, user *models.User) error {
	query := r.psql.Insert("users").
		Columns("telegram_id", "username", "timezone", "reminder_time", "created_at").
		Values(user.TelegramID, user.Username, user.Timezone, user.ReminderTime, user.CreatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", user.TelegramID, err)
	}

	_, err = r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("create user (telegram_id: %d, username: %s): %w", user.TelegramID, user.Username, err)
	}
	return nil
}

func (r Postgres) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	var user models.User
	if err := r.GetContext(ctx, &user, query, telegramID); err != nil {
		return nil, notFound(err, "get user (telegram_id: %d)", telegramID)
	}

	return &user, nil
}

func (r Postgres) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	query := r.psql.Select("COUNT(*)").From("users").Where("telegram_id = ?", telegramID)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	var count int
	err = r.QueryRowxContext(ctx, sql, args...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check user exists (telegram_id: %d): %w", telegramID, err)
	}
	return count > 0, nil
}

func (r Postgres) UpdateUserTimezone(ctx context.Context, telegramID int64, timezone string) error {
	query := r.psql.Update("users").
		Set("timezone", timezone).
		Where("telegram_id = ?", telegramID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d, timezone: %s): %w", telegramID, timezone, err)
	}

	_, err = r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user timezone (telegram_id: %d, timezone: %s): %w", telegramID, timezone, err)
	}
	return nil
}

func (r Postgres) UpdateReminderTime(ctx context.Context, telegramID int64, reminderTime string) error {
	query := r.psql.Update("users").
		Set("reminder_time", reminderTime).
		Where("telegram_id = ?", telegramID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	_, err = r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update reminder time (telegram_id: %d, reminder_time: %s): %w", telegramID, reminderTime, err)
	}
	return nil
}

func (r Postgres) GetAllUsersWithReminders(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reminder_time <> '' ORDER BY telegram_id`

	var users []*models.User
	if err := r.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	return users, nil
}

func (r Postgres) SetPlanGeneratedAt(ctx context.Context, telegramID int64, generatedAt time.Time) error {
	query := r.psql.Update("users").
		Set("plan_generated_at", generatedAt).
		Where("telegram_id = ?", telegramID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", telegramID, err)
	}

	_, err = r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set plan generated at (telegram_id: %d): %w", telegramID, err)
	}
	return nil
}
