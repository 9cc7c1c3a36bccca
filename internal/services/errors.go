package services

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced to handlers for status mapping.
var (
	ErrSurveyNotFound       = errors.New("survey not found")
	ErrSurveyInactive       = errors.New("survey is not active")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrSessionExpired       = errors.New("session time limit exceeded")
	ErrSessionNotCompleted  = errors.New("session is not completed")
	ErrActiveSessionExists  = errors.New("an active session already exists for this survey")
	ErrMaxAttemptsExceeded  = errors.New("maximum attempts exceeded")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrQuestionNotInSession = errors.New("question is not part of this session")
	ErrEmptyQuestionPool    = errors.New("no questions available for this survey")
	ErrInvalidChoice        = errors.New("selected choice does not belong to the question")
	ErrHistoryNotFound      = errors.New("history not found")
	ErrReviewExists         = errors.New("session has already been reviewed")
	ErrReviewNotFound       = errors.New("review not found")
	ErrProctoringDisabled   = errors.New("proctoring is not enabled for this session")
	ErrUserNotFound         = errors.New("user not found")
)

// ValidationServiceError carries field-level validation failures out of the
// service layer.
type ValidationServiceError struct {
	Message string
	Errors  interface{}
}

func (e *ValidationServiceError) Error() string {
	return e.Message
}

func NewValidationError(message string, errs interface{}) *ValidationServiceError {
	return &ValidationServiceError{Message: message, Errors: errs}
}

// PermissionError indicates the caller is not allowed to perform an action
// on a resource.
type PermissionError struct {
	UserID   string
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s: %s", e.UserID, e.Action, e.Resource, e.Reason)
}

func NewPermissionError(userID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// IsPermissionError reports whether err is a permission failure.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidationError reports whether err carries validation failures.
func IsValidationError(err error) bool {
	var ve *ValidationServiceError
	return errors.As(err, &ve)
}

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(i int) *int              { return &i }
func boolPtr(b bool) *bool           { return &b }
func float64Ptr(f float64) *float64  { return &f }
