package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

type historyRepository struct {
	db *gorm.DB
}

func (r *historyRepository) GetByUserAndSurvey(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.UserSurveyHistory, error) {
	var history models.UserSurveyHistory
	err := getDB(ctx, r.db, tx).
		Where("user_id = ? AND survey_id = ?", userID, surveyID).
		First(&history).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrHistoryNotFound
		}
		return nil, fmt.Errorf("get history: %w", err)
	}
	return &history, nil
}

func (r *historyRepository) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserSurveyHistory, error) {
	var histories []models.UserSurveyHistory
	err := getDB(ctx, r.db, tx).
		Preload("Survey").
		Where("user_id = ?", userID).
		Order("last_attempt_at DESC NULLS LAST").
		Find(&histories).Error
	if err != nil {
		return nil, fmt.Errorf("list histories for user %s: %w", userID, err)
	}
	return histories, nil
}

func (r *historyRepository) Create(ctx context.Context, tx *gorm.DB, history *models.UserSurveyHistory) error {
	if err := getDB(ctx, r.db, tx).Create(history).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicateEntry
		}
		return fmt.Errorf("create history: %w", err)
	}
	return nil
}

func (r *historyRepository) Update(ctx context.Context, tx *gorm.DB, history *models.UserSurveyHistory) error {
	if err := getDB(ctx, r.db, tx).Save(history).Error; err != nil {
		return fmt.Errorf("update history %d: %w", history.ID, err)
	}
	return nil
}
