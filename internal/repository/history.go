package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

// AppendRevisionHistory inserts one entry. Entries are never updated; the
// (question_id, position) key rejects a second writer for the same slot.
func (r Postgres) AppendRevisionHistory(ctx context.Context, entry models.RevisionEntry) error {
	query := r.psql.Insert("revision_history").
		Columns("question_id", "position", "revised_at", "confidence_level", "way_of_solving", "interval_used").
		Values(entry.QuestionID, entry.Position, entry.RevisedAt, entry.ConfidenceLevel, entry.WayOfSolving, entry.IntervalUsed)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (question_id: %s): %w", entry.QuestionID, err)
	}

	_, err = r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("append revision history (question_id: %s, position: %d, revised_at: %s): %w",
			entry.QuestionID, entry.Position, entry.RevisedAt.Format(time.RFC3339), err)
	}
	return nil
}

func (r Postgres) GetRevisionHistory(ctx context.Context, questionID string) ([]models.RevisionEntry, error) {
	query := `
		SELECT question_id, position, revised_at, confidence_level, way_of_solving, interval_used
		FROM revision_history
		WHERE question_id = $1
		ORDER BY position ASC
	`

	var history []models.RevisionEntry
	if err := r.SelectContext(ctx, &history, query, questionID); err != nil {
		return nil, fmt.Errorf("get revision history (question_id: %s): %w", questionID, err)
	}

	return history, nil
}
