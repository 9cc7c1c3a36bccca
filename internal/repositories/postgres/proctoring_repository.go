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

type proctoringRepository struct {
	db *gorm.DB
}

func (r *proctoringRepository) CreateVerification(ctx context.Context, tx *gorm.DB, v *models.FaceVerification) error {
	if err := getDB(ctx, r.db, tx).Create(v).Error; err != nil {
		return fmt.Errorf("create face verification: %w", err)
	}
	return nil
}

func (r *proctoringRepository) ListVerifications(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.FaceVerification, error) {
	var verifications []models.FaceVerification
	err := getDB(ctx, r.db, tx).
		Where("session_id = ?", sessionID).
		Order("captured_at ASC").
		Find(&verifications).Error
	if err != nil {
		return nil, fmt.Errorf("list verifications for session %s: %w", sessionID, err)
	}
	return verifications, nil
}

func (r *proctoringRepository) CountViolations(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := getDB(ctx, r.db, tx).
		Model(&models.FaceVerification{}).
		Where("session_id = ? AND is_violation = ?", sessionID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count violations for session %s: %w", sessionID, err)
	}
	return count, nil
}

func (r *proctoringRepository) CreateReview(ctx context.Context, tx *gorm.DB, review *models.ProctorReview) error {
	if err := getDB(ctx, r.db, tx).Create(review).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicateEntry
		}
		return fmt.Errorf("create proctor review: %w", err)
	}
	return nil
}

func (r *proctoringRepository) GetReviewBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*models.ProctorReview, error) {
	var review models.ProctorReview
	err := getDB(ctx, r.db, tx).
		Where("session_id = ?", sessionID).
		First(&review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrReviewNotFound
		}
		return nil, fmt.Errorf("get review for session %s: %w", sessionID, err)
	}
	return &review, nil
}

func (r *proctoringRepository) UpdateReview(ctx context.Context, tx *gorm.DB, review *models.ProctorReview) error {
	if err := getDB(ctx, r.db, tx).Save(review).Error; err != nil {
		return fmt.Errorf("update review %d: %w", review.ID, err)
	}
	return nil
}
