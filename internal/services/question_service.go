package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

func (s *questionService) Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*QuestionResponse, error) {
	s.logger.Info("Creating question",
		"survey_id", req.SurveyID,
		"type", req.Type,
		"creator_id", creatorID)

	if err := s.requireAdmin(ctx, creatorID, "create"); err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateQuestionCreate(req); errs.HasErrors() {
		return nil, NewValidationError("validation failed", errs)
	}

	var question *models.Question
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if _, err := txRepo.Survey().GetByID(ctx, nil, req.SurveyID); err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSurveyNotFound
			}
			return fmt.Errorf("failed to get survey: %w", err)
		}

		question = &models.Question{
			SurveyID:   req.SurveyID,
			Type:       req.Type,
			Category:   req.Category,
			WorkDomain: req.WorkDomain,
			TextUz:     req.TextUz,
			TextUzCyrl: req.TextUzCyrl,
			TextRu:     req.TextRu,
			Points:     req.Points,
			IsActive:   req.IsActive,
		}
		for _, c := range req.Choices {
			question.Choices = append(question.Choices, models.Choice{
				TextUz:     c.TextUz,
				TextUzCyrl: c.TextUzCyrl,
				TextRu:     c.TextRu,
				IsCorrect:  c.IsCorrect,
				Order:      c.Order,
			})
		}

		return txRepo.Question().Create(ctx, nil, question)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Question created", "question_id", question.ID)
	return &QuestionResponse{Question: question}, nil
}

func (s *questionService) GetByID(ctx context.Context, id uint, userID string) (*QuestionResponse, error) {
	if err := s.requireModerator(ctx, userID, "read"); err != nil {
		return nil, err
	}

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &QuestionResponse{Question: question}, nil
}

func (s *questionService) ListBySurvey(ctx context.Context, surveyID uint, userID string) ([]*QuestionResponse, error) {
	if err := s.requireModerator(ctx, userID, "list"); err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().ListActive(ctx, nil, repositories.QuestionFilters{SurveyID: surveyID})
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	out := make([]*QuestionResponse, len(questions))
	for i := range questions {
		out[i] = &QuestionResponse{Question: &questions[i]}
	}
	return out, nil
}

func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting question", "question_id", id, "user_id", userID)

	if err := s.requireAdmin(ctx, userID, "delete"); err != nil {
		return err
	}

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	refs, err := s.repo.Question().CountSessionReferences(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to count question references: %w", err)
	}
	if refs > 0 {
		// Answers in past sessions must stay resolvable, so a referenced
		// question is deactivated instead of removed.
		question.IsActive = false
		if err := s.repo.Question().Update(ctx, nil, question); err != nil {
			return fmt.Errorf("failed to deactivate question: %w", err)
		}
		s.logger.Info("Question referenced by sessions, deactivated instead of deleted",
			"question_id", id,
			"references", refs)
		return nil
	}

	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

func (s *questionService) requireAdmin(ctx context.Context, userID, action string) error {
	isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !isAdmin {
		return NewPermissionError(userID, "question", action, "admin role required")
	}
	return nil
}

// Reads are open to moderators so flagged sessions can be reviewed against
// the full question bank; admins pass any role check.
func (s *questionService) requireModerator(ctx context.Context, userID, action string) error {
	isModerator, err := s.repo.User().HasRole(ctx, userID, models.RoleModerator)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !isModerator {
		return NewPermissionError(userID, "question", action, "moderator role required")
	}
	return nil
}
