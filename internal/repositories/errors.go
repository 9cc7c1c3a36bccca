package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Common repository errors
var (
	ErrSurveyNotFound   = errors.New("survey not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrHistoryNotFound  = errors.New("history not found")
	ErrReviewNotFound   = errors.New("review not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateEntry   = errors.New("duplicate entry")
)

// NotFoundError wraps a not-found condition with entity context
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.Entity, e.ID)
}

// IsNotFoundError reports whether err represents a missing record,
// either one of the sentinel errors above or gorm's record-not-found.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}

	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return true
	}

	switch {
	case errors.Is(err, ErrSurveyNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrAnswerNotFound),
		errors.Is(err, ErrHistoryNotFound),
		errors.Is(err, ErrReviewNotFound),
		errors.Is(err, ErrUserNotFound):
		return true
	}

	return false
}

// IsDuplicateError reports whether err indicates a unique constraint violation.
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDuplicateEntry) || errors.Is(err, gorm.ErrDuplicatedKey)
}
