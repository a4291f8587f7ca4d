package service

import (
	"errors"
	"fmt"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
)

var (
	ErrQuestionNotFound    = errors.New("question not found")
	ErrForbidden           = errors.New("question belongs to another user")
	ErrInvalidDifficulty   = errors.New("invalid difficulty")
	ErrInvalidTimezone     = errors.New("invalid timezone")
	ErrInvalidReminderTime = errors.New("invalid reminder time")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrMissingField        = errors.New("missing required field")
)

// DuplicateQuestionError is returned when the user already tracks the problem.
type DuplicateQuestionError struct {
	Existing *models.TrackedQuestion
}

func (e *DuplicateQuestionError) Error() string {
	return fmt.Sprintf("question already tracked (question_id: %s, title: %s)", e.Existing.ID, e.Existing.Title)
}
