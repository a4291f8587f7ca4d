//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

// Run with: POSTGRES_TEST_DSN=... go test -tags integration ./internal/repository/
func newTestDB(t *testing.T) (*Postgres, int64) {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN is not set")
	}

	repo, err := NewDB(dsn, 2, 4)
	require.NoError(t, err)
	require.NoError(t, repo.Up(""))

	ctx := context.Background()
	userID := time.Now().UnixNano()
	require.NoError(t, repo.CreateUser(ctx, &models.User{
		TelegramID:   userID,
		Username:     "integration",
		Timezone:     "UTC",
		ReminderTime: "09:00",
		CreatedAt:    time.Now(),
	}))

	t.Cleanup(func() {
		_, err := repo.db.ExecContext(context.Background(), `DELETE FROM users WHERE telegram_id = $1`, userID)
		assert.NoError(t, err)
		assert.NoError(t, repo.Close())
	})

	return repo, userID
}

func newStoredQuestion(userID int64, title string) *models.TrackedQuestion {
	now := time.Now().UTC().Truncate(time.Second)
	next := now.AddDate(0, 0, 3)
	slug := "two-sum"

	return &models.TrackedQuestion{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           title,
		Platform:        "LeetCode",
		Difficulty:      models.DifficultyEasy,
		Slug:            &slug,
		Tags:            []string{"array", "hash table"},
		Companies:       []string{"Google", "Meta"},
		CompanyTags:     models.CompanyTags{"Google": {"array"}},
		ConfidenceLevel: models.ConfidenceMedium,
		WayOfSolving:    models.WayTookHints,
		LastConfidence:  models.ConfidenceMedium,
		LastSolvedAt:    now,
		NextRevisionAt:  &next,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPostgres_QuestionRoundTrip(t *testing.T) {
	repo, userID := newTestDB(t)
	ctx := context.Background()

	q := newStoredQuestion(userID, "Two Sum")
	require.NoError(t, repo.CreateQuestion(ctx, q))

	got, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Title, got.Title)
	assert.Equal(t, q.Tags, got.Tags)
	assert.Equal(t, q.Companies, got.Companies)
	assert.Equal(t, q.CompanyTags, got.CompanyTags)
	require.NotNil(t, got.Slug)
	assert.Equal(t, *q.Slug, *got.Slug)
	require.NotNil(t, got.NextRevisionAt)
	assert.True(t, q.NextRevisionAt.Equal(*got.NextRevisionAt))

	bySlug, err := repo.FindQuestionBySlug(ctx, userID, "leetcode", "two-sum")
	require.NoError(t, err)
	assert.Equal(t, q.ID, bySlug.ID)

	byTitle, err := repo.FindQuestionByTitle(ctx, userID, "LEETCODE", " two SUM ")
	require.NoError(t, err)
	assert.Equal(t, q.ID, byTitle.ID)

	listed, err := repo.ListUserQuestions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, q.Tags, listed[0].Tags)

	_, err = repo.GetQuestion(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgres_UniqueQuestion(t *testing.T) {
	repo, userID := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateQuestion(ctx, newStoredQuestion(userID, "Two Sum")))

	sameTitle := newStoredQuestion(userID, "TWO SUM")
	sameTitle.Slug = nil
	assert.ErrorIs(t, repo.CreateQuestion(ctx, sameTitle), models.ErrDuplicate)

	sameSlug := newStoredQuestion(userID, "Two Sum (again)")
	assert.ErrorIs(t, repo.CreateQuestion(ctx, sameSlug), models.ErrDuplicate)

	otherPlatform := newStoredQuestion(userID, "Two Sum")
	otherPlatform.Platform = "Codeforces"
	assert.NoError(t, repo.CreateQuestion(ctx, otherPlatform))
}

func TestPostgres_ReviseInTx(t *testing.T) {
	repo, userID := newTestDB(t)
	ctx := context.Background()

	q := newStoredQuestion(userID, "Two Sum")
	require.NoError(t, repo.CreateQuestion(ctx, q))

	_, err := repo.GetQuestionForUpdate(ctx, q.ID)
	assert.Error(t, err, "row lock needs a transaction")

	revisedAt := time.Now().UTC().Truncate(time.Second)
	err = repo.RunInTx(ctx, func(tx models.Repository) error {
		locked, err := tx.GetQuestionForUpdate(ctx, q.ID)
		if err != nil {
			return err
		}

		next := revisedAt.AddDate(0, 0, 7)
		locked.RevisionCount = 1
		locked.NextRevisionAt = &next
		locked.LastSolvedAt = revisedAt
		if err := tx.UpdateQuestionSchedule(ctx, locked); err != nil {
			return err
		}

		return tx.AppendRevisionHistory(ctx, models.RevisionEntry{
			QuestionID:      q.ID,
			Position:        0,
			RevisedAt:       revisedAt,
			ConfidenceLevel: models.ConfidenceMedium,
			WayOfSolving:    models.WayTookHints,
			IntervalUsed:    7,
		})
	})
	require.NoError(t, err)

	// the (question_id, position) key rejects a second entry for the same slot
	err = repo.AppendRevisionHistory(ctx, models.RevisionEntry{
		QuestionID:      q.ID,
		Position:        0,
		RevisedAt:       revisedAt,
		ConfidenceLevel: models.ConfidenceLow,
		WayOfSolving:    models.WayUsedAI,
		IntervalUsed:    1,
	})
	assert.Error(t, err)

	history, err := repo.GetRevisionHistory(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 7, history[0].IntervalUsed)

	stored, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RevisionCount)

	deleted, err := repo.DeleteUserQuestions(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	history, err = repo.GetRevisionHistory(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
