package repositories

import (
	"context"
)

// Repository aggregates all data access interfaces behind a single handle.
// Implementations are expected to be safe for concurrent use.
type Repository interface {
	Survey() SurveyRepository
	Question() QuestionRepository
	Session() SessionRepository
	Answer() AnswerRepository
	History() HistoryRepository
	Proctoring() ProctoringRepository
	User() UserRepository

	// WithTransaction runs fn inside a database transaction. The Repository
	// passed to fn is bound to that transaction; the transaction commits when
	// fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}
