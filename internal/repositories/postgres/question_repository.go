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

const questionCacheTTL = 15 * time.Minute

type questionRepository struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	// inTx is set when db is a transaction handle; reads then bypass the
	// cache so they see uncommitted writes.
	inTx bool
}

func (r *questionRepository) cacheable(tx *gorm.DB) bool {
	return !r.inTx && tx == nil && r.cacheManager != nil
}

func (r *questionRepository) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := getDB(ctx, r.db, tx).Create(question).Error; err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	r.invalidate(ctx, question)
	return nil
}

func (r *questionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	err := getDB(ctx, r.db, tx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.order ASC, choices.id ASC")
		}).
		First(&question, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question %d: %w", id, err)
	}
	return &question, nil
}

func (r *questionRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var questions []models.Question
	err := getDB(ctx, r.db, tx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.order ASC, choices.id ASC")
		}).
		Where("id IN ?", ids).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("get questions by ids: %w", err)
	}
	return questions, nil
}

// ListActive returns the active question pool for a survey, optionally
// restricted to one category. Work-domain filtering is done by the caller
// because the blank-domain fallback is a selection rule, not a storage rule.
func (r *questionRepository) ListActive(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]models.Question, error) {
	key := fmt.Sprintf("pool:%d:%s", filters.SurveyID, filters.Category)
	if r.cacheable(tx) && filters.WorkDomain == "" {
		var cached []models.Question
		if err := r.cacheManager.Question.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	query := getDB(ctx, r.db, tx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.order ASC, choices.id ASC")
		}).
		Where("survey_id = ?", filters.SurveyID)

	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	} else {
		query = query.Where("is_active = ?", true)
	}
	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}
	if filters.WorkDomain != "" {
		query = query.Where("work_domain = ? OR work_domain = ''", filters.WorkDomain)
	}

	var questions []models.Question
	if err := query.Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("list questions for survey %d: %w", filters.SurveyID, err)
	}

	if r.cacheable(tx) && filters.WorkDomain == "" {
		_ = r.cacheManager.Question.Set(ctx, key, questions, questionCacheTTL)
	}

	return questions, nil
}

func (r *questionRepository) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := getDB(ctx, r.db, tx).Save(question).Error; err != nil {
		return fmt.Errorf("update question %d: %w", question.ID, err)
	}
	r.invalidate(ctx, question)
	return nil
}

func (r *questionRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	var question models.Question
	db := getDB(ctx, r.db, tx)
	if err := db.First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.ErrQuestionNotFound
		}
		return fmt.Errorf("get question %d: %w", id, err)
	}
	if err := db.Delete(&question).Error; err != nil {
		return fmt.Errorf("delete question %d: %w", id, err)
	}
	r.invalidate(ctx, &question)
	return nil
}

func (r *questionRepository) CountSessionReferences(ctx context.Context, tx *gorm.DB, questionID uint) (int64, error) {
	var count int64
	err := getDB(ctx, r.db, tx).
		Model(&models.SessionQuestion{}).
		Where("question_id = ?", questionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count session references for question %d: %w", questionID, err)
	}
	return count, nil
}

func (r *questionRepository) invalidate(ctx context.Context, question *models.Question) {
	if r.cacheManager == nil {
		return
	}
	_ = r.cacheManager.InvalidateQuestion(ctx, question.ID, question.SurveyID)
}
