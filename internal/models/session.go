package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStarted    SessionStatus = "started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionExpired    SessionStatus = "expired"
	SessionCancelled  SessionStatus = "cancelled"
)

// IsTerminal reports whether no further submissions are admissible.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionExpired || s == SessionCancelled
}

// IsActive reports whether the session still accepts answers (modulo expiry).
func (s SessionStatus) IsActive() bool {
	return s == SessionStarted || s == SessionInProgress
}

type SurveySession struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID   string    `json:"user_id" gorm:"not null;size:255;index;uniqueIndex:idx_user_survey_attempt,priority:1"`
	SurveyID uint      `json:"survey_id" gorm:"not null;index;uniqueIndex:idx_user_survey_attempt,priority:2"`

	Status        SessionStatus `json:"status" gorm:"not null;size:15;default:started;index"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_user_survey_attempt,priority:3"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`

	// Scoring results; only set once the session completes.
	Score       *int     `json:"score"`
	TotalPoints *int     `json:"total_points"`
	Percentage  *float64 `json:"percentage"`
	IsPassed    *bool    `json:"is_passed"`

	Language Language `json:"language" gorm:"size:10;default:uz"`

	// Retake grant fields, set by a moderator when max attempts are exhausted.
	CanRetake       bool    `json:"can_retake" gorm:"not null;default:false"`
	RetakeReason    string  `json:"retake_reason" gorm:"type:text"`
	RetakeGrantedBy *string `json:"retake_granted_by" gorm:"size:255"`

	// Proctoring state.
	ProctoringEnabled bool    `json:"proctoring_enabled" gorm:"not null;default:false"`
	ViolationsCount   int     `json:"violations_count" gorm:"not null;default:0"`
	FlaggedForReview  bool    `json:"flagged_for_review" gorm:"not null;default:false;index"`
	ReferenceImage    *string `json:"reference_image" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Survey            Survey             `json:"survey,omitempty" gorm:"foreignKey:SurveyID"`
	SessionQuestions  []SessionQuestion  `json:"session_questions,omitempty" gorm:"foreignKey:SessionID"`
	Answers           []Answer           `json:"answers,omitempty" gorm:"foreignKey:SessionID"`
	FaceVerifications []FaceVerification `json:"-" gorm:"foreignKey:SessionID"`
}

func (SurveySession) TableName() string {
	return "survey_sessions"
}

// IsExpired reports lazy expiry: past the deadline and not already terminal
// by completion or cancellation. Expired status itself still reports true.
func (s *SurveySession) IsExpired(now time.Time) bool {
	if s.Status == SessionCompleted || s.Status == SessionCancelled {
		return false
	}
	return now.After(s.ExpiresAt)
}

// DurationMinutes returns the elapsed minutes for a completed session.
func (s *SurveySession) DurationMinutes() *int {
	if s.CompletedAt == nil {
		return nil
	}
	minutes := int(s.CompletedAt.Sub(s.StartedAt).Minutes())
	return &minutes
}

type SessionQuestion struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SessionID  uuid.UUID `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:idx_session_order,priority:1;index"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`
	Order      int       `json:"order" gorm:"not null;uniqueIndex:idx_session_order,priority:2"`

	IsAnswered   bool `json:"is_answered" gorm:"not null;default:false"`
	PointsEarned int  `json:"points_earned" gorm:"not null;default:0"`

	// Relations
	Session  SurveySession `json:"-" gorm:"foreignKey:SessionID"`
	Question Question      `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (SessionQuestion) TableName() string {
	return "session_questions"
}

type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SessionID  uuid.UUID `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:idx_session_question,priority:1"`
	QuestionID uint      `json:"question_id" gorm:"not null;uniqueIndex:idx_session_question,priority:2"`

	// Selected choices for single/multiple questions.
	SelectedChoices []Choice `json:"selected_choices,omitempty" gorm:"many2many:answer_choices"`

	// Free text for open questions.
	TextAnswer string `json:"text_answer" gorm:"type:text"`

	// Derived by the scorer. IsCorrect stays nil for open answers.
	IsCorrect    *bool `json:"is_correct"`
	PointsEarned int   `json:"points_earned" gorm:"not null;default:0"`

	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`

	// Relations
	Session  SurveySession `json:"-" gorm:"foreignKey:SessionID"`
	Question Question      `json:"-" gorm:"foreignKey:QuestionID"`
}

func (Answer) TableName() string {
	return "answers"
}

// SelectedChoiceIDs returns the ids of the submitted choices.
func (a *Answer) SelectedChoiceIDs() []uint {
	ids := make([]uint, 0, len(a.SelectedChoices))
	for _, c := range a.SelectedChoices {
		ids = append(ids, c.ID)
	}
	return ids
}

type HistoryStatus string

const (
	HistoryNotStarted HistoryStatus = "not_started"
	HistoryInProgress HistoryStatus = "in_progress"
	HistoryCompleted  HistoryStatus = "completed"
	HistoryCancelled  HistoryStatus = "cancelled"
	HistoryExpired    HistoryStatus = "expired"
)

// UserSurveyHistory is a per-(user, survey) rollup. It is never a source of
// truth on its own and is always written in the transaction of the session
// change that triggered it.
type UserSurveyHistory struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	UserID   string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_user_survey,priority:1"`
	SurveyID uint   `json:"survey_id" gorm:"not null;uniqueIndex:idx_user_survey,priority:2"`

	TotalAttempts  int           `json:"total_attempts" gorm:"not null;default:0"`
	BestScore      *int          `json:"best_score"`
	BestPercentage *float64      `json:"best_percentage"`
	LastAttemptAt  *time.Time    `json:"last_attempt_at"`
	IsPassed       bool          `json:"is_passed" gorm:"not null;default:false"`
	CurrentStatus  HistoryStatus `json:"current_status" gorm:"size:15;not null;default:not_started"`
	CanContinue    bool          `json:"can_continue" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Survey Survey `json:"survey,omitempty" gorm:"foreignKey:SurveyID"`
}

func (UserSurveyHistory) TableName() string {
	return "user_survey_histories"
}
