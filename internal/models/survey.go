package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Survey struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	IsActive    bool    `json:"is_active" gorm:"default:true;index"`

	TimeLimitMinutes int `json:"time_limit_minutes" gorm:"not null;default:60" validate:"required,min=1,max=240"`
	QuestionsCount   int `json:"questions_count" gorm:"not null;default:30" validate:"required,min=1,max=100"`
	PassingScore     int `json:"passing_score" gorm:"not null;default:70" validate:"min=0,max=100"`
	MaxAttempts      int `json:"max_attempts" gorm:"not null;default:3" validate:"min=1"`

	// Category mix for session composition. Percent of the session drawn from
	// each category; the two together must not exceed 100.
	ProfessionalWeight int `json:"professional_weight" gorm:"not null;default:60" validate:"min=0,max=100"`
	SafetyWeight       int `json:"safety_weight" gorm:"not null;default:40" validate:"min=0,max=100"`

	// Per-employee-level question count overrides, e.g. {"junior": 20, "engineer": 40}.
	LevelQuestionCounts datatypes.JSON `json:"level_question_counts" gorm:"type:jsonb"`

	// Sessions on this survey must run with face verification.
	ProctoringRequired bool `json:"proctoring_required" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []Question      `json:"questions,omitempty" gorm:"foreignKey:SurveyID"`
	Sessions  []SurveySession `json:"-" gorm:"foreignKey:SurveyID"`

	// Computed fields (not stored)
	TotalQuestions int  `json:"total_questions" gorm:"-"`
	UserAttempts   int  `json:"user_attempts" gorm:"-"`
	CanStart       bool `json:"can_start" gorm:"-"`
}

func (Survey) TableName() string {
	return "surveys"
}

// QuestionCountFor resolves the target question count for an employee level,
// falling back to the survey default when no override exists.
func (s *Survey) QuestionCountFor(level EmployeeLevel) int {
	if len(s.LevelQuestionCounts) == 0 {
		return s.QuestionsCount
	}

	var overrides map[string]int
	if err := json.Unmarshal(s.LevelQuestionCounts, &overrides); err != nil {
		return s.QuestionsCount
	}

	if count, ok := overrides[string(level)]; ok && count > 0 {
		return count
	}
	return s.QuestionsCount
}
