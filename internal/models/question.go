package models

import (
	"time"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single"
	MultipleChoice QuestionType = "multiple"
	OpenAnswer     QuestionType = "open"
)

type QuestionCategory string

const (
	CategoryProfessional QuestionCategory = "professional"
	CategorySafety       QuestionCategory = "safety_logic_psychology"
)

type WorkDomain string

const (
	DomainNaturalGas WorkDomain = "natural_gas"
	DomainLPGGas     WorkDomain = "lpg_gas"
)

type Language string

const (
	LangUzbek         Language = "uz"
	LangUzbekCyrillic Language = "uz-cyrl"
	LangRussian       Language = "ru"
)

type Question struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	SurveyID uint         `json:"survey_id" gorm:"not null;index"`
	Type     QuestionType `json:"type" gorm:"not null;size:10;index" validate:"required,oneof=single multiple open"`

	// Multilingual text; uz is the base language, the others fall back to it.
	TextUz     string `json:"text_uz" gorm:"type:text;not null" validate:"required"`
	TextUzCyrl string `json:"text_uz_cyrl" gorm:"type:text"`
	TextRu     string `json:"text_ru" gorm:"type:text"`

	Points   int              `json:"points" gorm:"not null;default:1" validate:"min=1"`
	Order    int              `json:"order" gorm:"not null;default:0"`
	Category QuestionCategory `json:"category" gorm:"not null;size:50;index" validate:"required,oneof=professional safety_logic_psychology"`

	// Blank means the question applies to every work domain.
	WorkDomain WorkDomain `json:"work_domain" gorm:"size:50;index"`

	IsActive bool `json:"is_active" gorm:"default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Survey  Survey   `json:"-" gorm:"foreignKey:SurveyID"`
	Choices []Choice `json:"choices,omitempty" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

// Text returns the question text for the requested language, falling back to
// Uzbek Latin when the translation is missing.
func (q *Question) Text(lang Language) string {
	switch lang {
	case LangUzbekCyrillic:
		if q.TextUzCyrl != "" {
			return q.TextUzCyrl
		}
	case LangRussian:
		if q.TextRu != "" {
			return q.TextRu
		}
	}
	return q.TextUz
}

// AppliesTo reports whether the question is relevant for a work domain.
func (q *Question) AppliesTo(domain WorkDomain) bool {
	return q.WorkDomain == "" || q.WorkDomain == domain
}

// CorrectChoiceIDs returns the ids of all correct choices.
func (q *Question) CorrectChoiceIDs() []uint {
	var ids []uint
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type Choice struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`

	TextUz     string `json:"text_uz" gorm:"size:500;not null" validate:"required,max=500"`
	TextUzCyrl string `json:"text_uz_cyrl" gorm:"size:500"`
	TextRu     string `json:"text_ru" gorm:"size:500"`

	IsCorrect bool `json:"-" gorm:"not null;default:false"`
	Order     int  `json:"order" gorm:"not null;default:0"`

	// Relations
	Question Question `json:"-" gorm:"foreignKey:QuestionID"`
}

func (Choice) TableName() string {
	return "choices"
}

// Text returns the choice text for the requested language with uz fallback.
func (c *Choice) Text(lang Language) string {
	switch lang {
	case LangUzbekCyrillic:
		if c.TextUzCyrl != "" {
			return c.TextUzCyrl
		}
	case LangRussian:
		if c.TextRu != "" {
			return c.TextRu
		}
	}
	return c.TextUz
}
