package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gtf-training/survey-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()
	registerCustomRules(validate)

	return &BusinessValidator{validate: validate}
}

// Validate validates struct tags for any request
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateSurveyCreate validates survey creation business rules
func (bv *BusinessValidator) ValidateSurveyCreate(req *SurveyCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, bv.validateCategoryWeights(req.ProfessionalWeight, req.SafetyWeight)...)

	return errors
}

// ValidateSurveyUpdate validates survey update business rules
func (bv *BusinessValidator) ValidateSurveyUpdate(req *SurveyUpdateRequest, existing *models.Survey) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	professional := existing.ProfessionalWeight
	safety := existing.SafetyWeight
	if req.ProfessionalWeight != nil {
		professional = *req.ProfessionalWeight
	}
	if req.SafetyWeight != nil {
		safety = *req.SafetyWeight
	}
	errors = append(errors, bv.validateCategoryWeights(professional, safety)...)

	return errors
}

// ValidateQuestionCreate validates question creation business rules
func (bv *BusinessValidator) ValidateQuestionCreate(req *QuestionCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	correct := 0
	for _, choice := range req.Choices {
		if choice.IsCorrect {
			correct++
		}
	}

	switch req.Type {
	case models.SingleChoice:
		if len(req.Choices) < 2 {
			errors = append(errors, ValidationError{
				Field:   "choices",
				Message: "single choice questions need at least two choices",
				Value:   len(req.Choices),
				Rule:    "business_logic",
			})
		}
		if correct != 1 {
			errors = append(errors, ValidationError{
				Field:   "choices",
				Message: "single choice questions need exactly one correct choice",
				Value:   correct,
				Rule:    "business_logic",
			})
		}
	case models.MultipleChoice:
		if len(req.Choices) < 2 {
			errors = append(errors, ValidationError{
				Field:   "choices",
				Message: "multiple choice questions need at least two choices",
				Value:   len(req.Choices),
				Rule:    "business_logic",
			})
		}
		if correct < 1 {
			errors = append(errors, ValidationError{
				Field:   "choices",
				Message: "multiple choice questions need at least one correct choice",
				Value:   correct,
				Rule:    "business_logic",
			})
		}
	case models.OpenAnswer:
		if len(req.Choices) > 0 {
			errors = append(errors, ValidationError{
				Field:   "choices",
				Message: "open questions cannot have choices",
				Value:   len(req.Choices),
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// ValidateSessionStart validates session start preconditions
func (bv *BusinessValidator) ValidateSessionStart(survey *models.Survey, attemptCount int, canRetake bool) ValidationErrors {
	var errors ValidationErrors

	if !survey.IsActive {
		errors = append(errors, ValidationError{
			Field:   "survey",
			Message: "survey is not active",
			Value:   survey.ID,
			Rule:    "business_logic",
		})
	}

	if attemptCount >= survey.MaxAttempts && !canRetake {
		errors = append(errors, ValidationError{
			Field:   "attempts",
			Message: "maximum attempts exceeded",
			Value:   attemptCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateAnswerSubmit validates the answer payload against the question type
func (bv *BusinessValidator) ValidateAnswerSubmit(req *AnswerSubmitRequest, question *models.Question) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	switch question.Type {
	case models.SingleChoice:
		// Extra selections are accepted and scored as incorrect.
		if len(req.SelectedChoiceIDs) == 0 {
			errors = append(errors, ValidationError{
				Field:   "selected_choice_ids",
				Message: "single choice questions require at least one selected choice",
				Value:   len(req.SelectedChoiceIDs),
				Rule:    "business_logic",
			})
		}
	case models.MultipleChoice:
		if len(req.SelectedChoiceIDs) == 0 {
			errors = append(errors, ValidationError{
				Field:   "selected_choice_ids",
				Message: "multiple choice questions require at least one selected choice",
				Value:   len(req.SelectedChoiceIDs),
				Rule:    "business_logic",
			})
		}
	case models.OpenAnswer:
		if len(req.SelectedChoiceIDs) > 0 {
			errors = append(errors, ValidationError{
				Field:   "selected_choice_ids",
				Message: "open questions do not accept choice selections",
				Value:   len(req.SelectedChoiceIDs),
				Rule:    "business_logic",
			})
		}
		if req.TextAnswer == nil || strings.TrimSpace(*req.TextAnswer) == "" {
			errors = append(errors, ValidationError{
				Field:   "text_answer",
				Message: "open questions require a text answer",
				Rule:    "business_logic",
			})
		}
	}

	// Reject duplicate selections early so scoring sees a clean set.
	seen := make(map[uint]bool, len(req.SelectedChoiceIDs))
	for _, id := range req.SelectedChoiceIDs {
		if seen[id] {
			errors = append(errors, ValidationError{
				Field:   "selected_choice_ids",
				Message: "duplicate choice selection",
				Value:   id,
				Rule:    "business_logic",
			})
			break
		}
		seen[id] = true
	}

	return errors
}

// ValidateReview validates moderator review submissions
func (bv *BusinessValidator) ValidateReview(req *ReviewRequest, session *models.SurveySession) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	if session.Status != models.SessionCompleted {
		errors = append(errors, ValidationError{
			Field:   "session",
			Message: "only completed sessions can be reviewed",
			Value:   session.Status,
			Rule:    "business_logic",
		})
	}

	if req.Decision == models.ReviewRejected && (req.Notes == nil || strings.TrimSpace(*req.Notes) == "") {
		errors = append(errors, ValidationError{
			Field:   "notes",
			Message: "rejection requires review notes",
			Rule:    "business_logic",
		})
	}

	return errors
}

func (bv *BusinessValidator) validateCategoryWeights(professional, safety int) ValidationErrors {
	var errors ValidationErrors

	if professional+safety > 100 {
		errors = append(errors, ValidationError{
			Field:   "category_weights",
			Message: "professional and safety weights cannot exceed 100 combined",
			Value:   professional + safety,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerCustomRules registers custom business rule validators
func registerCustomRules(v *validator.Validate) {
	// Session time limit (1-240 minutes)
	v.RegisterValidation("time_limit_minutes", func(fl validator.FieldLevel) bool {
		minutes := fl.Field().Int()
		return minutes >= 1 && minutes <= 240
	})

	// Passing score validation (0-100)
	v.RegisterValidation("passing_score", func(fl validator.FieldLevel) bool {
		score := fl.Field().Int()
		return score >= 0 && score <= 100
	})

	// Max attempts validation (1-10)
	v.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 1 && attempts <= 10
	})

	// Title validation (1-200 characters)
	v.RegisterValidation("survey_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	v.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.SingleChoice, models.MultipleChoice, models.OpenAnswer:
			return true
		}
		return false
	})

	v.RegisterValidation("question_category", func(fl validator.FieldLevel) bool {
		switch models.QuestionCategory(fl.Field().String()) {
		case models.CategoryProfessional, models.CategorySafety:
			return true
		}
		return false
	})

	v.RegisterValidation("work_domain", func(fl validator.FieldLevel) bool {
		switch models.WorkDomain(fl.Field().String()) {
		case models.DomainNaturalGas, models.DomainLPGGas, "":
			return true
		}
		return false
	})

	v.RegisterValidation("employee_level", func(fl validator.FieldLevel) bool {
		switch models.EmployeeLevel(fl.Field().String()) {
		case models.LevelJunior, models.LevelEngineer:
			return true
		}
		return false
	})

	v.RegisterValidation("violation_type", func(fl validator.FieldLevel) bool {
		switch models.ViolationType(fl.Field().String()) {
		case models.ViolationNoFace, models.ViolationMultipleFaces,
			models.ViolationMobileDevice, models.ViolationLookingAway:
			return true
		}
		return false
	})

	v.RegisterValidation("review_decision", func(fl validator.FieldLevel) bool {
		switch models.ReviewDecision(fl.Field().String()) {
		case models.ReviewApproved, models.ReviewRejected, models.ReviewFlagged:
			return true
		}
		return false
	})
}
