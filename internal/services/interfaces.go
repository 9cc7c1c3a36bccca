package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateSurveyRequest = validator.SurveyCreateRequest
type UpdateSurveyRequest = validator.SurveyUpdateRequest
type CreateQuestionRequest = validator.QuestionCreateRequest
type StartSessionRequest = validator.StartSessionRequest
type SubmitAnswerRequest = validator.AnswerSubmitRequest
type HeartbeatRequest = validator.HeartbeatRequest
type ReviewRequest = validator.ReviewRequest
type GrantRetakeRequest = validator.GrantRetakeRequest

type SurveyResponse struct {
	*models.Survey
	UserAttempts int  `json:"user_attempts"`
	CanStart     bool `json:"can_start"`
}

type SurveyListResponse struct {
	Surveys []*SurveyResponse `json:"surveys"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	Size    int               `json:"size"`
}

type QuestionResponse struct {
	*models.Question
}

// ChoiceForSession is a choice as shown to the employee taking the survey.
// Correctness flags never leave the service layer.
type ChoiceForSession struct {
	ID    uint   `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// QuestionForSession is one ordered question in a running session, localized
// to the employee's language.
type QuestionForSession struct {
	QuestionID uint                    `json:"question_id"`
	Order      int                     `json:"order"`
	Type       models.QuestionType     `json:"type"`
	Category   models.QuestionCategory `json:"category"`
	Text       string                  `json:"text"`
	Points     int                     `json:"points"`
	IsAnswered bool                    `json:"is_answered"`
	Choices    []ChoiceForSession      `json:"choices,omitempty"`
}

type SessionResponse struct {
	*models.SurveySession
	TimeRemainingSeconds int                  `json:"time_remaining_seconds"`
	AnsweredCount        int                  `json:"answered_count"`
	TotalQuestions       int                  `json:"total_questions"`
	Questions            []QuestionForSession `json:"questions,omitempty"`
}

// SessionResultResponse is the outcome of a finished session.
type SessionResultResponse struct {
	SessionID        uuid.UUID            `json:"session_id"`
	SurveyID         uint                 `json:"survey_id"`
	Status           models.SessionStatus `json:"status"`
	Score            int                  `json:"score"`
	TotalPoints      int                  `json:"total_points"`
	Percentage       float64              `json:"percentage"`
	IsPassed         bool                 `json:"is_passed"`
	FlaggedForReview bool                 `json:"flagged_for_review"`
	CompletedAt      *time.Time           `json:"completed_at"`
}

// AnswerResponse reports what a submitted answer did to the session.
type AnswerResponse struct {
	QuestionID     uint                   `json:"question_id"`
	AnsweredCount  int                    `json:"answered_count"`
	TotalQuestions int                    `json:"total_questions"`
	Completed      bool                   `json:"completed"`
	Result         *SessionResultResponse `json:"result,omitempty"`
}

type SessionProgressResponse struct {
	SessionID            uuid.UUID            `json:"session_id"`
	Status               models.SessionStatus `json:"status"`
	AnsweredCount        int                  `json:"answered_count"`
	TotalQuestions       int                  `json:"total_questions"`
	TimeRemainingSeconds int                  `json:"time_remaining_seconds"`
	NextQuestionOrder    *int                 `json:"next_question_order,omitempty"`
}

type SessionListResponse struct {
	Sessions []*models.SurveySession `json:"sessions"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	Size     int                     `json:"size"`
}

type HistoryResponse struct {
	*models.UserSurveyHistory
}

// ProgressReport is the per-user rollup across all surveys.
type ProgressReport struct {
	UserID         string             `json:"user_id"`
	TotalSurveys   int                `json:"total_surveys"`
	CompletedCount int                `json:"completed_count"`
	PassedCount    int                `json:"passed_count"`
	InProgress     int                `json:"in_progress"`
	Histories      []*HistoryResponse `json:"histories"`
}

type HeartbeatResponse struct {
	SessionID        uuid.UUID `json:"session_id"`
	ViolationsCount  int       `json:"violations_count"`
	FlaggedForReview bool      `json:"flagged_for_review"`
}

type ReviewResponse struct {
	*models.ProctorReview
	SessionResult *SessionResultResponse `json:"session_result,omitempty"`
}

// ===== SERVICE INTERFACES =====

type SurveyService interface {
	Create(ctx context.Context, req *CreateSurveyRequest, creatorID string) (*SurveyResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*SurveyResponse, error)
	Update(ctx context.Context, id uint, req *UpdateSurveyRequest, userID string) (*SurveyResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.SurveyFilters, userID string) (*SurveyListResponse, error)

	// CanStart checks attempt limits, retake grants and survey state.
	CanStart(ctx context.Context, surveyID uint, userID string) (bool, error)
}

type QuestionService interface {
	Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*QuestionResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*QuestionResponse, error)
	ListBySurvey(ctx context.Context, surveyID uint, userID string) ([]*QuestionResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
}

type SessionService interface {
	// Start creates a new attempt: picks questions for the employee's domain
	// and level, freezes the order and starts the clock.
	Start(ctx context.Context, req *StartSessionRequest, userID string) (*SessionResponse, error)

	GetByID(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionResponse, error)
	GetCurrent(ctx context.Context, surveyID uint, userID string) (*SessionResponse, error)
	GetProgress(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionProgressResponse, error)

	// SubmitAnswer scores and stores one answer; completes the session when
	// the last question is answered.
	SubmitAnswer(ctx context.Context, sessionID uuid.UUID, req *SubmitAnswerRequest, userID string) (*AnswerResponse, error)

	// Finish completes the session early, scoring only what was answered.
	Finish(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionResultResponse, error)
	Cancel(ctx context.Context, sessionID uuid.UUID, userID string) error

	// List is the moderator view over sessions.
	List(ctx context.Context, filters repositories.SessionFilters, userID string) (*SessionListResponse, error)
}

type HistoryService interface {
	GetMyHistory(ctx context.Context, userID string) ([]*HistoryResponse, error)
	GetUserSurveyHistory(ctx context.Context, userID string, surveyID uint) (*HistoryResponse, error)
	GetProgressReport(ctx context.Context, userID string) (*ProgressReport, error)

	// Recompute rebuilds the rollup from the underlying session set.
	// Moderator-only audit operation.
	Recompute(ctx context.Context, userID string, surveyID uint, moderatorID string) (*HistoryResponse, error)
}

type ProctoringService interface {
	// Heartbeat records one face-verification capture during an active
	// session and escalates when violations cross the threshold.
	Heartbeat(ctx context.Context, sessionID uuid.UUID, req *HeartbeatRequest, userID string) (*HeartbeatResponse, error)

	ListVerifications(ctx context.Context, sessionID uuid.UUID, userID string) ([]*models.FaceVerification, error)

	// Review records a moderator decision on a completed session. Rejection
	// forces the session result to failed.
	Review(ctx context.Context, sessionID uuid.UUID, req *ReviewRequest, reviewerID string) (*ReviewResponse, error)
	GetReview(ctx context.Context, sessionID uuid.UUID, userID string) (*models.ProctorReview, error)

	// GrantRetake allows one extra attempt past the survey limit.
	GrantRetake(ctx context.Context, sessionID uuid.UUID, req *GrantRetakeRequest, moderatorID string) error

	ListFlagged(ctx context.Context, filters repositories.SessionFilters, userID string) (*SessionListResponse, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Survey() SurveyService
	Question() QuestionService
	Session() SessionService
	History() HistoryService
	Proctoring() ProctoringService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
