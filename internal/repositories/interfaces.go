package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
)

// SurveyFilters narrows survey listings.
type SurveyFilters struct {
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// QuestionFilters narrows the pool used for session assembly.
type QuestionFilters struct {
	SurveyID   uint
	Category   models.QuestionCategory
	WorkDomain models.WorkDomain
	IsActive   *bool
}

// SessionFilters narrows session listings for users and moderators.
type SessionFilters struct {
	UserID           string
	SurveyID         *uint
	Statuses         []models.SessionStatus
	FlaggedForReview *bool
	Limit            int
	Offset           int
}

// SurveyRepository provides access to survey definitions.
type SurveyRepository interface {
	Create(ctx context.Context, tx *gorm.DB, survey *models.Survey) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Survey, error)
	List(ctx context.Context, tx *gorm.DB, filters SurveyFilters) ([]models.Survey, int64, error)
	Update(ctx context.Context, tx *gorm.DB, survey *models.Survey) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
}

// QuestionRepository provides access to the question pool.
type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]models.Question, error)
	ListActive(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// CountSessionReferences reports how many session questions point at the
	// question. Referenced questions must not be hard-deleted.
	CountSessionReferences(ctx context.Context, tx *gorm.DB, questionID uint) (int64, error)
}

// SessionRepository manages survey sessions and their ordered questions.
type SessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.SurveySession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SurveySession, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SurveySession, error)
	GetActiveForUpdate(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.SurveySession, error)
	GetLatest(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.SurveySession, error)
	CountByUserAndSurvey(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (int64, error)
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (int, error)
	List(ctx context.Context, tx *gorm.DB, filters SessionFilters) ([]models.SurveySession, int64, error)
	Update(ctx context.Context, tx *gorm.DB, session *models.SurveySession) error

	CreateSessionQuestions(ctx context.Context, tx *gorm.DB, questions []models.SessionQuestion) error
	GetSessionQuestions(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.SessionQuestion, error)
	GetSessionQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, questionID uint) (*models.SessionQuestion, error)
	UpdateSessionQuestion(ctx context.Context, tx *gorm.DB, sq *models.SessionQuestion) error
	CountUnanswered(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
}

// AnswerRepository manages submitted answers and their choice selections.
type AnswerRepository interface {
	Create(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	GetBySessionAndQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, questionID uint) (*models.Answer, error)
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.Answer, error)
	ReplaceChoices(ctx context.Context, tx *gorm.DB, answer *models.Answer, choices []models.Choice) error
}

// HistoryRepository manages per-user per-survey rollups.
type HistoryRepository interface {
	GetByUserAndSurvey(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.UserSurveyHistory, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserSurveyHistory, error)
	Create(ctx context.Context, tx *gorm.DB, history *models.UserSurveyHistory) error
	Update(ctx context.Context, tx *gorm.DB, history *models.UserSurveyHistory) error
}

// ProctoringRepository manages face verifications and moderator reviews.
type ProctoringRepository interface {
	CreateVerification(ctx context.Context, tx *gorm.DB, v *models.FaceVerification) error
	ListVerifications(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.FaceVerification, error)
	CountViolations(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)

	CreateReview(ctx context.Context, tx *gorm.DB, review *models.ProctorReview) error
	GetReviewBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*models.ProctorReview, error)
	UpdateReview(ctx context.Context, tx *gorm.DB, review *models.ProctorReview) error
}

// UserRepository resolves user profiles from the identity provider.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, userIDs []string) (map[string]*models.User, error)
	ExistsByID(ctx context.Context, userID string) (bool, error)
	HasRole(ctx context.Context, userID string, role models.UserRole) (bool, error)
}
