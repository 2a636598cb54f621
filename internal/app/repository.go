package app

import (
	"context"
	"time"

	"converseiq-service/internal/domain"
)

// SessionReader is the read side of the storage gateway.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	// ListAnswers returns a session's answers in creation order.
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)
	// ListEvents returns a session's audit events in creation order.
	ListEvents(ctx context.Context, sessionID string) ([]domain.Event, error)
}

// UserStore is the subset of a transaction the identity resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	// FindUserByEmail reports false when no user owns the email.
	FindUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	CreateUser(ctx context.Context, user domain.User) error
	SetUserDisplayName(ctx context.Context, userID, displayName string) error
}

// EventStore appends audit events.
type EventStore interface {
	CreateEvent(ctx context.Context, event domain.Event) error
}

// Tx is a unit of work against the storage gateway.
type Tx interface {
	SessionReader
	UserStore
	EventStore

	// LockSession loads a session and holds it until the transaction ends.
	LockSession(ctx context.Context, sessionID string) (domain.Session, error)
	CreateSession(ctx context.Context, session domain.Session) error
	CompleteSession(ctx context.Context, sessionID string, at time.Time) (domain.Session, error)
	// CreateAnswer fails with domain.ErrAnswerExists when the question was already answered.
	CreateAnswer(ctx context.Context, answer domain.Answer) error
	CountAnswers(ctx context.Context, sessionID string) (int, error)
}

// Store abstracts the durable record store (in-memory, Postgres).
type Store interface {
	SessionReader
	// WithinTx runs fn atomically; any error rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// QuestionCatalog serves the active questions sorted by order.
type QuestionCatalog interface {
	ActiveQuestions(ctx context.Context) ([]domain.Question, error)
}

// EventPublisher fans committed events out to live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
