package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

type answerRepository struct {
	db *gorm.DB
}

func (r *answerRepository) Create(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	if err := getDB(ctx, r.db, tx).Create(answer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicateEntry
		}
		return fmt.Errorf("create answer: %w", err)
	}
	return nil
}

func (r *answerRepository) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	if err := getDB(ctx, r.db, tx).Save(answer).Error; err != nil {
		return fmt.Errorf("update answer %d: %w", answer.ID, err)
	}
	return nil
}

func (r *answerRepository) GetBySessionAndQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, questionID uint) (*models.Answer, error) {
	var answer models.Answer
	err := getDB(ctx, r.db, tx).
		Preload("SelectedChoices").
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&answer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrAnswerNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return &answer, nil
}

func (r *answerRepository) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.Answer, error) {
	var answers []models.Answer
	err := getDB(ctx, r.db, tx).
		Preload("SelectedChoices").
		Where("session_id = ?", sessionID).
		Order("answered_at ASC").
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("get answers for session %s: %w", sessionID, err)
	}
	return answers, nil
}

// ReplaceChoices swaps the full set of selected choices on a resubmitted answer.
func (r *answerRepository) ReplaceChoices(ctx context.Context, tx *gorm.DB, answer *models.Answer, choices []models.Choice) error {
	db := getDB(ctx, r.db, tx)
	if err := db.Model(answer).Association("SelectedChoices").Replace(choices); err != nil {
		return fmt.Errorf("replace answer choices: %w", err)
	}
	return nil
}
