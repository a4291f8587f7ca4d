package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

// Array columns are read back in their text form so pq.StringArray can parse them.
const questionColumns = `id, user_id, title, platform, difficulty, slug, tags::text AS tags, companies::text AS companies, company_tags,
	confidence_level, way_of_solving, last_confidence, last_solved_at, next_revision_at, revision_count,
	created_at, updated_at`

// questionRow carries the array columns that models.TrackedQuestion keeps as plain slices.
type questionRow struct {
	models.TrackedQuestion
	Tags      pq.StringArray `db:"tags"`
	Companies pq.StringArray `db:"companies"`
}

func (row *questionRow) toModel() *models.TrackedQuestion {
	q := row.TrackedQuestion
	q.Tags = []string(row.Tags)
	q.Companies = []string(row.Companies)
	return &q
}

func (r Postgres) CreateQuestion(ctx context.Context, question *models.TrackedQuestion) error {
	query := r.psql.Insert("questions").
		Columns("id", "user_id", "title", "platform", "difficulty", "slug", "tags", "companies", "company_tags",
			"confidence_level", "way_of_solving", "last_confidence", "last_solved_at", "next_revision_at", "revision_count",
			"created_at", "updated_at").
		Values(question.ID, question.UserID, question.Title, question.Platform, question.Difficulty, question.Slug,
			pq.Array(nonNil(question.Tags)), pq.Array(nonNil(question.Companies)), question.CompanyTags,
			question.ConfidenceLevel, question.WayOfSolving, question.LastConfidence, question.LastSolvedAt,
			question.NextRevisionAt, question.RevisionCount, question.CreatedAt, question.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %d, question_id: %s): %w", question.UserID, question.ID, err)
	}

	_, err = r.ExecContext(ctx, sql, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("create question (user_id: %d, title: %s): %w", question.UserID, question.Title, models.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create question (user_id: %d, title: %s): %w", question.UserID, question.Title, err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// checkQuestionID rejects ids Postgres would fail to cast to uuid.
func checkQuestionID(questionID string) error {
	if _, err := uuid.Parse(questionID); err != nil {
		return fmt.Errorf("parse question id (question_id: %q): %w", questionID, models.ErrNotFound)
	}
	return nil
}

func (r Postgres) GetQuestion(ctx context.Context, questionID string) (*models.TrackedQuestion, error) {
	if err := checkQuestionID(questionID); err != nil {
		return nil, err
	}

	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`

	var row questionRow
	if err := r.GetContext(ctx, &row, query, questionID); err != nil {
		return nil, notFound(err, "get question (question_id: %s)", questionID)
	}

	return row.toModel(), nil
}

// GetQuestionForUpdate locks the row until the surrounding transaction ends.
func (r Postgres) GetQuestionForUpdate(ctx context.Context, questionID string) (*models.TrackedQuestion, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("get question for update (question_id: %s): no active transaction", questionID)
	}
	if err := checkQuestionID(questionID); err != nil {
		return nil, err
	}

	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1 FOR UPDATE`

	var row questionRow
	if err := r.GetContext(ctx, &row, query, questionID); err != nil {
		return nil, notFound(err, "get question for update (question_id: %s)", questionID)
	}

	return row.toModel(), nil
}

func (r Postgres) FindQuestionBySlug(ctx context.Context, userID int64, platform, slug string) (*models.TrackedQuestion, error) {
	query := r.psql.Select(questionColumns).
		From("questions").
		Where("user_id = ? AND LOWER(platform) = ? AND slug = ?", userID, strings.ToLower(platform), slug).
		Limit(1)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query (user_id: %d, slug: %s): %w", userID, slug, err)
	}

	var row questionRow
	if err := r.GetContext(ctx, &row, sql, args...); err != nil {
		return nil, notFound(err, "find question by slug (user_id: %d, slug: %s)", userID, slug)
	}

	return row.toModel(), nil
}

func (r Postgres) FindQuestionByTitle(ctx context.Context, userID int64, platform, title string) (*models.TrackedQuestion, error) {
	query := r.psql.Select(questionColumns).
		From("questions").
		Where("user_id = ? AND LOWER(platform) = ? AND LOWER(title) = ?", userID, strings.ToLower(platform), strings.ToLower(strings.TrimSpace(title))).
		Limit(1)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query (user_id: %d, title: %s): %w", userID, title, err)
	}

	var row questionRow
	if err := r.GetContext(ctx, &row, sql, args...); err != nil {
		return nil, notFound(err, "find question by title (user_id: %d, title: %s)", userID, title)
	}

	return row.toModel(), nil
}

// ListUserQuestions returns every question of the user, oldest first.
func (r Postgres) ListUserQuestions(ctx context.Context, userID int64) ([]*models.TrackedQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE user_id = $1 ORDER BY created_at ASC, id ASC`

	var rows []questionRow
	if err := r.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list user questions (user_id: %d): %w", userID, err)
	}

	questions := make([]*models.TrackedQuestion, 0, len(rows))
	for i := range rows {
		questions = append(questions, rows[i].toModel())
	}

	return questions, nil
}

// UpdateQuestionSchedule writes the scheduling state together with its mirrors.
func (r Postgres) UpdateQuestionSchedule(ctx context.Context, question *models.TrackedQuestion) error {
	query := r.psql.Update("questions").
		Set("confidence_level", question.ConfidenceLevel).
		Set("last_confidence", question.LastConfidence).
		Set("way_of_solving", question.WayOfSolving).
		Set("last_solved_at", question.LastSolvedAt).
		Set("next_revision_at", question.NextRevisionAt).
		Set("revision_count", question.RevisionCount).
		Set("updated_at", time.Now()).
		Where("id = ?", question.ID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (question_id: %s): %w", question.ID, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update question schedule (question_id: %s, revision_count: %d): %w", question.ID, question.RevisionCount, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update question schedule (question_id: %s): %w", question.ID, models.ErrNotFound)
	}
	return nil
}

func (r Postgres) UpdateQuestionConfidence(ctx context.Context, questionID string, level models.ConfidenceLevel) error {
	query := r.psql.Update("questions").
		Set("confidence_level", level).
		Set("last_confidence", level).
		Set("updated_at", time.Now()).
		Where("id = ?", questionID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (question_id: %s): %w", questionID, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update question confidence (question_id: %s, level: %s): %w", questionID, level, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update question confidence (question_id: %s): %w", questionID, models.ErrNotFound)
	}
	return nil
}

func (r Postgres) DeleteUserQuestions(ctx context.Context, userID int64) (int64, error) {
	query := r.psql.Delete("questions").Where("user_id = ?", userID)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build SQL query (user_id: %d): %w", userID, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete user questions (user_id: %d): %w", userID, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted questions (user_id: %d): %w", userID, err)
	}
	return deleted, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
