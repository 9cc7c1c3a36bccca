package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, tx *gorm.DB, session *models.SurveySession) error {
	if err := getDB(ctx, r.db, tx).Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicateEntry
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SurveySession, error) {
	var session models.SurveySession
	err := getDB(ctx, r.db, tx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &session, nil
}

func (r *sessionRepository) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SurveySession, error) {
	var session models.SurveySession
	err := getDB(ctx, r.db, tx).
		Preload("Survey").
		Preload("SessionQuestions", func(db *gorm.DB) *gorm.DB {
			return db.Order("session_questions.order ASC")
		}).
		Preload("SessionQuestions.Question.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.order ASC, choices.id ASC")
		}).
		Preload("Answers").
		Preload("Answers.SelectedChoices").
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s with details: %w", id, err)
	}
	return &session, nil
}

// activeSessionScope narrows a query to the user's running session on a
// survey and takes a row lock, so concurrent starts cannot both see "no
// active session".
func activeSessionScope(userID string, surveyID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND survey_id = ? AND status IN ?", userID, surveyID,
				[]models.SessionStatus{models.SessionStarted, models.SessionInProgress}).
			Order("started_at DESC")
	}
}

// GetActiveForUpdate fetches the user's active session for a survey with a
// row lock held for the remainder of the surrounding transaction.
func (r *sessionRepository) GetActiveForUpdate(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.SurveySession, error) {
	var session models.SurveySession
	err := getDB(ctx, r.db, tx).
		Scopes(activeSessionScope(userID, surveyID)).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) GetLatest(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.SurveySession, error) {
	var session models.SurveySession
	err := getDB(ctx, r.db, tx).
		Where("user_id = ? AND survey_id = ?", userID, surveyID).
		Order("attempt_number DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) CountByUserAndSurvey(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (int64, error) {
	var count int64
	err := getDB(ctx, r.db, tx).
		Model(&models.SurveySession{}).
		Where("user_id = ? AND survey_id = ?", userID, surveyID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (r *sessionRepository) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (int, error) {
	var max *int
	err := getDB(ctx, r.db, tx).
		Model(&models.SurveySession{}).
		Where("user_id = ? AND survey_id = ?", userID, surveyID).
		Select("MAX(attempt_number)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("max attempt number: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *sessionRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]models.SurveySession, int64, error) {
	query := getDB(ctx, r.db, tx).Model(&models.SurveySession{})

	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.SurveyID != nil {
		query = query.Where("survey_id = ?", *filters.SurveyID)
	}
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.FlaggedForReview != nil {
		query = query.Where("flagged_for_review = ?", *filters.FlaggedForReview)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var sessions []models.SurveySession
	if err := query.Preload("Survey").Order("started_at DESC").Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, total, nil
}

func (r *sessionRepository) Update(ctx context.Context, tx *gorm.DB, session *models.SurveySession) error {
	if err := getDB(ctx, r.db, tx).Save(session).Error; err != nil {
		return fmt.Errorf("update session %s: %w", session.ID, err)
	}
	return nil
}

func (r *sessionRepository) CreateSessionQuestions(ctx context.Context, tx *gorm.DB, questions []models.SessionQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	if err := getDB(ctx, r.db, tx).CreateInBatches(questions, 100).Error; err != nil {
		return fmt.Errorf("create session questions: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetSessionQuestions(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.SessionQuestion, error) {
	var sqs []models.SessionQuestion
	err := getDB(ctx, r.db, tx).
		Preload("Question.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.order ASC, choices.id ASC")
		}).
		Where("session_id = ?", sessionID).
		Order("\"order\" ASC").
		Find(&sqs).Error
	if err != nil {
		return nil, fmt.Errorf("get session questions: %w", err)
	}
	return sqs, nil
}

func (r *sessionRepository) GetSessionQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, questionID uint) (*models.SessionQuestion, error) {
	var sq models.SessionQuestion
	err := getDB(ctx, r.db, tx).
		Preload("Question.Choices").
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&sq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get session question: %w", err)
	}
	return &sq, nil
}

func (r *sessionRepository) UpdateSessionQuestion(ctx context.Context, tx *gorm.DB, sq *models.SessionQuestion) error {
	if err := getDB(ctx, r.db, tx).Save(sq).Error; err != nil {
		return fmt.Errorf("update session question %d: %w", sq.ID, err)
	}
	return nil
}

func (r *sessionRepository) CountUnanswered(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := getDB(ctx, r.db, tx).
		Model(&models.SessionQuestion{}).
		Where("session_id = ? AND is_answered = ?", sessionID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unanswered: %w", err)
	}
	return count, nil
}
