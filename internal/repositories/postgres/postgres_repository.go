package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/cache"
	"github.com/gtf-training/survey-service/internal/repositories"
)

// postgresRepository is the gorm-backed implementation of repositories.Repository.
// User lookups are delegated to the identity-provider repository given at
// construction time; everything else lives in PostgreSQL.
type postgresRepository struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager

	survey     *surveyRepository
	question   *questionRepository
	session    *sessionRepository
	answer     *answerRepository
	history    *historyRepository
	proctoring *proctoringRepository
	user       repositories.UserRepository
}

// NewRepository creates the aggregate repository over the given database handle.
func NewRepository(db *gorm.DB, cacheManager *cache.CacheManager, userRepo repositories.UserRepository) repositories.Repository {
	return &postgresRepository{
		db:           db,
		cacheManager: cacheManager,
		survey:       &surveyRepository{db: db, cacheManager: cacheManager},
		question:     &questionRepository{db: db, cacheManager: cacheManager},
		session:      &sessionRepository{db: db},
		answer:       &answerRepository{db: db},
		history:      &historyRepository{db: db},
		proctoring:   &proctoringRepository{db: db},
		user:         userRepo,
	}
}

func (r *postgresRepository) Survey() repositories.SurveyRepository         { return r.survey }
func (r *postgresRepository) Question() repositories.QuestionRepository     { return r.question }
func (r *postgresRepository) Session() repositories.SessionRepository       { return r.session }
func (r *postgresRepository) Answer() repositories.AnswerRepository         { return r.answer }
func (r *postgresRepository) History() repositories.HistoryRepository       { return r.history }
func (r *postgresRepository) Proctoring() repositories.ProctoringRepository { return r.proctoring }
func (r *postgresRepository) User() repositories.UserRepository             { return r.user }

// WithTransaction runs fn with a Repository whose queries all go through the
// same database transaction.
func (r *postgresRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &postgresRepository{
			db:           tx,
			cacheManager: r.cacheManager,
			survey:       &surveyRepository{db: tx, cacheManager: r.cacheManager, inTx: true},
			question:     &questionRepository{db: tx, cacheManager: r.cacheManager, inTx: true},
			session:      &sessionRepository{db: tx},
			answer:       &answerRepository{db: tx},
			history:      &historyRepository{db: tx},
			proctoring:   &proctoringRepository{db: tx},
			user:         r.user,
		}
		return fn(txRepo)
	})
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *postgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

// getDB resolves the effective handle for a call: the explicit transaction
// when one is passed, the repository's own handle otherwise.
func getDB(ctx context.Context, db *gorm.DB, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
