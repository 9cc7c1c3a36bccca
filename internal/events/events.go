package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the survey service.
const (
	EventSessionStarted   = "session.started"
	EventSessionCompleted = "session.completed"
	EventSessionExpired   = "session.expired"
	EventSessionCancelled = "session.cancelled"
	EventSessionFlagged   = "session.flagged_for_review"
	EventSessionReviewed  = "session.reviewed"
	EventRetakeGranted    = "session.retake_granted"
)

// Event is the envelope put on the wire for every domain event.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with a fresh ID and the service source tag.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "survey-service",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// SessionLifecycleEvent is the payload for session start/complete/expire/cancel.
type SessionLifecycleEvent struct {
	SessionID     string   `json:"session_id"`
	UserID        string   `json:"user_id"`
	SurveyID      uint     `json:"survey_id"`
	AttemptNumber int      `json:"attempt_number"`
	Status        string   `json:"status"`
	Score         *int     `json:"score,omitempty"`
	Percentage    *float64 `json:"percentage,omitempty"`
	IsPassed      *bool    `json:"is_passed,omitempty"`
}

// SessionFlaggedEvent is the payload emitted when proctoring violations cross
// the review threshold.
type SessionFlaggedEvent struct {
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	SurveyID        uint   `json:"survey_id"`
	ViolationsCount int    `json:"violations_count"`
	LastViolation   string `json:"last_violation,omitempty"`
}

// SessionReviewedEvent is the payload for a moderator review decision.
type SessionReviewedEvent struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	SurveyID   uint   `json:"survey_id"`
	Decision   string `json:"decision"`
	ReviewerID string `json:"reviewer_id"`
}

// RetakeGrantedEvent is the payload emitted when a moderator grants an
// additional attempt past the survey limit.
type RetakeGrantedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	SurveyID  uint   `json:"survey_id"`
	Reason    string `json:"reason"`
	GrantedBy string `json:"granted_by"`
}
