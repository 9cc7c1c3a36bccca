package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

type surveyService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewSurveyService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) SurveyService {
	return &surveyService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== CATALOG MANAGEMENT =====

func (s *surveyService) Create(ctx context.Context, req *CreateSurveyRequest, creatorID string) (*SurveyResponse, error) {
	s.logger.Info("Creating survey", "title", req.Title, "creator_id", creatorID)

	if err := s.requireAdmin(ctx, creatorID, "create"); err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateSurveyCreate(req); errs.HasErrors() {
		return nil, NewValidationError("validation failed", errs)
	}

	survey := &models.Survey{
		Title:              req.Title,
		Description:        req.Description,
		IsActive:           req.IsActive,
		TimeLimitMinutes:   req.TimeLimitMinutes,
		QuestionsCount:     req.QuestionsCount,
		PassingScore:       req.PassingScore,
		MaxAttempts:        req.MaxAttempts,
		ProfessionalWeight: req.ProfessionalWeight,
		SafetyWeight:       req.SafetyWeight,
		ProctoringRequired: req.ProctoringRequired,
	}
	if len(req.LevelQuestionCounts) > 0 {
		overrides, err := json.Marshal(req.LevelQuestionCounts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode level overrides: %w", err)
		}
		survey.LevelQuestionCounts = datatypes.JSON(overrides)
	}

	if err := s.repo.Survey().Create(ctx, nil, survey); err != nil {
		return nil, fmt.Errorf("failed to create survey: %w", err)
	}

	s.logger.Info("Survey created", "survey_id", survey.ID)
	return &SurveyResponse{Survey: survey}, nil
}

func (s *surveyService) GetByID(ctx context.Context, id uint, userID string) (*SurveyResponse, error) {
	survey, err := s.repo.Survey().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSurveyNotFound
		}
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}

	return s.toResponse(ctx, survey, userID)
}

func (s *surveyService) Update(ctx context.Context, id uint, req *UpdateSurveyRequest, userID string) (*SurveyResponse, error) {
	s.logger.Info("Updating survey", "survey_id", id, "user_id", userID)

	if err := s.requireAdmin(ctx, userID, "update"); err != nil {
		return nil, err
	}

	survey, err := s.repo.Survey().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSurveyNotFound
		}
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}

	if errs := s.validator.ValidateSurveyUpdate(req, survey); errs.HasErrors() {
		return nil, NewValidationError("validation failed", errs)
	}

	if req.Title != nil {
		survey.Title = *req.Title
	}
	if req.Description != nil {
		survey.Description = req.Description
	}
	if req.TimeLimitMinutes != nil {
		survey.TimeLimitMinutes = *req.TimeLimitMinutes
	}
	if req.QuestionsCount != nil {
		survey.QuestionsCount = *req.QuestionsCount
	}
	if req.PassingScore != nil {
		survey.PassingScore = *req.PassingScore
	}
	if req.MaxAttempts != nil {
		survey.MaxAttempts = *req.MaxAttempts
	}
	if req.ProfessionalWeight != nil {
		survey.ProfessionalWeight = *req.ProfessionalWeight
	}
	if req.SafetyWeight != nil {
		survey.SafetyWeight = *req.SafetyWeight
	}
	if req.ProctoringRequired != nil {
		survey.ProctoringRequired = *req.ProctoringRequired
	}
	if req.IsActive != nil {
		survey.IsActive = *req.IsActive
	}
	if req.LevelQuestionCounts != nil {
		overrides, err := json.Marshal(req.LevelQuestionCounts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode level overrides: %w", err)
		}
		survey.LevelQuestionCounts = datatypes.JSON(overrides)
	}

	if err := s.repo.Survey().Update(ctx, nil, survey); err != nil {
		return nil, fmt.Errorf("failed to update survey: %w", err)
	}

	return &SurveyResponse{Survey: survey}, nil
}

func (s *surveyService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting survey", "survey_id", id, "user_id", userID)

	if err := s.requireAdmin(ctx, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Survey().Delete(ctx, nil, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrSurveyNotFound
		}
		return fmt.Errorf("failed to delete survey: %w", err)
	}
	return nil
}

func (s *surveyService) List(ctx context.Context, filters repositories.SurveyFilters, userID string) (*SurveyListResponse, error) {
	surveys, total, err := s.repo.Survey().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}

	out := make([]*SurveyResponse, 0, len(surveys))
	for i := range surveys {
		resp, err := s.toResponse(ctx, &surveys[i], userID)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}

	return &SurveyListResponse{
		Surveys: out,
		Total:   total,
		Page:    page,
		Size:    len(out),
	}, nil
}

// CanStart reports whether the user may begin a new attempt right now.
func (s *surveyService) CanStart(ctx context.Context, surveyID uint, userID string) (bool, error) {
	survey, err := s.repo.Survey().GetByID(ctx, nil, surveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrSurveyNotFound
		}
		return false, fmt.Errorf("failed to get survey: %w", err)
	}
	if !survey.IsActive {
		return false, nil
	}

	active, err := s.repo.Session().GetActiveForUpdate(ctx, nil, userID, surveyID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return false, fmt.Errorf("failed to check active session: %w", err)
	}
	if active != nil && active.Status.IsActive() {
		return false, nil
	}

	count, err := s.repo.Session().CountByUserAndSurvey(ctx, nil, userID, surveyID)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	if int(count) < survey.MaxAttempts {
		return true, nil
	}

	latest, err := s.repo.Session().GetLatest(ctx, nil, userID, surveyID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to get latest session: %w", err)
	}
	return latest.CanRetake, nil
}

// ===== HELPERS =====

func (s *surveyService) toResponse(ctx context.Context, survey *models.Survey, userID string) (*SurveyResponse, error) {
	resp := &SurveyResponse{Survey: survey}

	count, err := s.repo.Session().CountByUserAndSurvey(ctx, nil, userID, survey.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	resp.UserAttempts = int(count)
	survey.UserAttempts = int(count)

	canStart, err := s.CanStart(ctx, survey.ID, userID)
	if err != nil {
		return nil, err
	}
	resp.CanStart = canStart
	survey.CanStart = canStart

	return resp, nil
}

func (s *surveyService) requireAdmin(ctx context.Context, userID, action string) error {
	isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !isAdmin {
		return NewPermissionError(userID, "survey", action, "admin role required")
	}
	return nil
}
