package validator

import (
	"github.com/gtf-training/survey-service/internal/models"
)

// SurveyCreateRequest represents the request structure for creating surveys
type SurveyCreateRequest struct {
	Title              string  `json:"title" validate:"required,survey_title"`
	Description        *string `json:"description" validate:"omitempty,max=1000"`
	TimeLimitMinutes   int     `json:"time_limit_minutes" validate:"required,time_limit_minutes"`
	QuestionsCount     int     `json:"questions_count" validate:"required,min=1,max=200"`
	PassingScore       int     `json:"passing_score" validate:"passing_score"`
	MaxAttempts        int     `json:"max_attempts" validate:"required,max_attempts"`
	ProfessionalWeight int     `json:"professional_weight" validate:"min=0,max=100"`
	SafetyWeight       int     `json:"safety_weight" validate:"min=0,max=100"`
	// Per-level overrides of questions_count, keyed by employee level.
	LevelQuestionCounts map[string]int `json:"level_question_counts" validate:"omitempty,dive,keys,employee_level,endkeys,min=1,max=200"`
	ProctoringRequired  bool           `json:"proctoring_required"`
	IsActive            bool           `json:"is_active"`
}

// SurveyUpdateRequest represents the request structure for updating surveys
type SurveyUpdateRequest struct {
	Title               *string        `json:"title" validate:"omitempty,survey_title"`
	Description         *string        `json:"description" validate:"omitempty,max=1000"`
	TimeLimitMinutes    *int           `json:"time_limit_minutes" validate:"omitempty,time_limit_minutes"`
	QuestionsCount      *int           `json:"questions_count" validate:"omitempty,min=1,max=200"`
	PassingScore        *int           `json:"passing_score" validate:"omitempty,passing_score"`
	MaxAttempts         *int           `json:"max_attempts" validate:"omitempty,max_attempts"`
	ProfessionalWeight  *int           `json:"professional_weight" validate:"omitempty,min=0,max=100"`
	SafetyWeight        *int           `json:"safety_weight" validate:"omitempty,min=0,max=100"`
	LevelQuestionCounts map[string]int `json:"level_question_counts" validate:"omitempty,dive,keys,employee_level,endkeys,min=1,max=200"`
	ProctoringRequired  *bool          `json:"proctoring_required"`
	IsActive            *bool          `json:"is_active"`
}

// ChoiceRequest is one answer option on a choice question
type ChoiceRequest struct {
	TextUz     string `json:"text_uz" validate:"required,min=1,max=500"`
	TextUzCyrl string `json:"text_uz_cyrl" validate:"omitempty,max=500"`
	TextRu     string `json:"text_ru" validate:"omitempty,max=500"`
	IsCorrect  bool   `json:"is_correct"`
	Order      int    `json:"order" validate:"min=0"`
}

// QuestionCreateRequest represents the request structure for creating questions
type QuestionCreateRequest struct {
	SurveyID   uint                    `json:"survey_id" validate:"required"`
	Type       models.QuestionType     `json:"type" validate:"required,question_type"`
	Category   models.QuestionCategory `json:"category" validate:"required,question_category"`
	WorkDomain models.WorkDomain       `json:"work_domain" validate:"omitempty,work_domain"`
	TextUz     string                  `json:"text_uz" validate:"required,min=1,max=2000"`
	TextUzCyrl string                  `json:"text_uz_cyrl" validate:"omitempty,max=2000"`
	TextRu     string                  `json:"text_ru" validate:"omitempty,max=2000"`
	Points     int                     `json:"points" validate:"required,min=1,max=100"`
	IsActive   bool                    `json:"is_active"`
	Choices    []ChoiceRequest         `json:"choices" validate:"omitempty,max=10,dive"`
}

// StartSessionRequest starts a new attempt on a survey. RequestedCount and
// Language override the profile-derived defaults when set.
type StartSessionRequest struct {
	SurveyID       uint             `json:"survey_id" validate:"required"`
	RequestedCount *int             `json:"requested_count" validate:"omitempty,min=1,max=200"`
	Language       *models.Language `json:"language" validate:"omitempty,oneof=uz uz-cyrl ru"`
	ReferenceImage *string          `json:"reference_image" validate:"omitempty,max=1000"`
}

// AnswerSubmitRequest submits or replaces the answer for one session question.
// ForceFinish completes the session after this answer, scoring the remaining
// questions as unanswered.
type AnswerSubmitRequest struct {
	QuestionID        uint    `json:"question_id" validate:"required"`
	SelectedChoiceIDs []uint  `json:"selected_choice_ids" validate:"omitempty,max=10"`
	TextAnswer        *string `json:"text_answer" validate:"omitempty,max=5000"`
	ForceFinish       bool    `json:"force_finish"`
}

// HeartbeatRequest reports one proctoring capture during an active session
type HeartbeatRequest struct {
	IsViolation      bool                   `json:"is_violation"`
	ViolationType    *models.ViolationType  `json:"violation_type" validate:"omitempty,violation_type"`
	DetectionMetrics map[string]interface{} `json:"detection_metrics"`
	Evidence         *string                `json:"evidence" validate:"omitempty,max=1000"`
}

// ReviewRequest records a moderator decision on a flagged session
type ReviewRequest struct {
	Decision models.ReviewDecision `json:"decision" validate:"required,review_decision"`
	Notes    *string               `json:"notes" validate:"omitempty,max=2000"`
}

// GrantRetakeRequest allows one extra attempt past the survey limit
type GrantRetakeRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}
