package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/cache"
	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

const surveyCacheTTL = 10 * time.Minute

type surveyRepository struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	// inTx is set when db is a transaction handle; reads then bypass the
	// cache so they see uncommitted writes.
	inTx bool
}

func (r *surveyRepository) cacheable(tx *gorm.DB) bool {
	return !r.inTx && tx == nil && r.cacheManager != nil
}

func (r *surveyRepository) Create(ctx context.Context, tx *gorm.DB, survey *models.Survey) error {
	if err := getDB(ctx, r.db, tx).Create(survey).Error; err != nil {
		return fmt.Errorf("create survey: %w", err)
	}
	r.invalidate(ctx, survey.ID)
	return nil
}

func (r *surveyRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Survey, error) {
	if r.cacheable(tx) {
		var cached models.Survey
		key := fmt.Sprintf("id:%d", id)
		if err := r.cacheManager.Survey.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	var survey models.Survey
	err := getDB(ctx, r.db, tx).First(&survey, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrSurveyNotFound
		}
		return nil, fmt.Errorf("get survey %d: %w", id, err)
	}

	if r.cacheable(tx) {
		key := fmt.Sprintf("id:%d", id)
		_ = r.cacheManager.Survey.Set(ctx, key, &survey, surveyCacheTTL)
	}

	return &survey, nil
}

func (r *surveyRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.SurveyFilters) ([]models.Survey, int64, error) {
	query := getDB(ctx, r.db, tx).Model(&models.Survey{})

	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count surveys: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var surveys []models.Survey
	if err := query.Order("created_at DESC").Find(&surveys).Error; err != nil {
		return nil, 0, fmt.Errorf("list surveys: %w", err)
	}

	return surveys, total, nil
}

func (r *surveyRepository) Update(ctx context.Context, tx *gorm.DB, survey *models.Survey) error {
	if err := getDB(ctx, r.db, tx).Save(survey).Error; err != nil {
		return fmt.Errorf("update survey %d: %w", survey.ID, err)
	}
	r.invalidate(ctx, survey.ID)
	return nil
}

func (r *surveyRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	result := getDB(ctx, r.db, tx).Delete(&models.Survey{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete survey %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrSurveyNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *surveyRepository) invalidate(ctx context.Context, id uint) {
	if r.cacheManager == nil {
		return
	}
	_ = r.cacheManager.InvalidateSurvey(ctx, id)
}
