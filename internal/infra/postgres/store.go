package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"converseiq-service/internal/app"
	"converseiq-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID          string    `bun:"id,pk"`
	Email       *string   `bun:"email"`
	DisplayName *string   `bun:"display_name"`
	CreatedAt   time.Time `bun:"created_at"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions"`

	ID          string     `bun:"id,pk"`
	UserID      *string    `bun:"user_id"`
	Status      string     `bun:"status"`
	CreatedAt   time.Time  `bun:"created_at"`
	CompletedAt *time.Time `bun:"completed_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	ID         string    `bun:"id,pk"`
	SessionID  string    `bun:"session_id"`
	QuestionID string    `bun:"question_id"`
	Response   string    `bun:"response"`
	CreatedAt  time.Time `bun:"created_at"`
}

type eventRow struct {
	bun.BaseModel `bun:"table:conversation_events"`

	ID        string         `bun:"id,pk"`
	SessionID string         `bun:"session_id"`
	EventType string         `bun:"event_type"`
	Metadata  map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at"`
}

// Store persists conversations in Postgres through bun.
type Store struct {
	queries
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{queries: queries{db: db}, db: db}
}

// WithinTx runs fn in a database transaction; fn's error triggers a rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txStore{queries: queries{db: tx}})
	})
}

// queries holds the statements shared by the pool and transactions.
type queries struct {
	db bun.IDB
}

type txStore struct {
	queries
}

func (q queries) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var row sessionRow
	err := q.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx)
	if err != nil {
		return domain.Session{}, mapNoRows(err, domain.ErrSessionNotFound, "get session")
	}
	return row.toDomain(), nil
}

func (q queries) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := q.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).OrderExpr("seq ASC").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		answers = append(answers, row.toDomain())
	}
	return answers, nil
}

func (q queries) ListEvents(ctx context.Context, sessionID string) ([]domain.Event, error) {
	var rows []eventRow
	err := q.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).OrderExpr("seq ASC").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toDomain())
	}
	return events, nil
}

func (t *txStore) LockSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var row sessionRow
	err := t.db.NewSelect().Model(&row).Where("id = ?", sessionID).For("UPDATE").Scan(ctx)
	if err != nil {
		return domain.Session{}, mapNoRows(err, domain.ErrSessionNotFound, "lock session")
	}
	return row.toDomain(), nil
}

func (t *txStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var row userRow
	err := t.db.NewSelect().Model(&row).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		return domain.User{}, mapNoRows(err, domain.ErrUserNotFound, "get user")
	}
	return row.toDomain(), nil
}

func (t *txStore) FindUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var row userRow
	err := t.db.NewSelect().Model(&row).Where("email = ?", email).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("find user by email: %w", err)
	}
	return row.toDomain(), true, nil
}

func (t *txStore) CreateUser(ctx context.Context, user domain.User) error {
	row := userRow{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName, CreatedAt: user.CreatedAt}
	if _, err := t.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapUniqueViolation(err, domain.ErrEmailTaken, "create user")
	}
	return nil
}

func (t *txStore) SetUserDisplayName(ctx context.Context, userID, displayName string) error {
	_, err := t.db.NewUpdate().Model((*userRow)(nil)).
		Set("display_name = ?", displayName).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set user display name: %w", err)
	}
	return nil
}

func (t *txStore) CreateSession(ctx context.Context, session domain.Session) error {
	row := sessionRow{
		ID:          session.ID,
		UserID:      session.UserID,
		Status:      string(session.Status),
		CreatedAt:   session.CreatedAt,
		CompletedAt: session.CompletedAt,
	}
	if _, err := t.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (t *txStore) CompleteSession(ctx context.Context, sessionID string, at time.Time) (domain.Session, error) {
	res, err := t.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.SessionCompleted)).
		Set("completed_at = ?", at).
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return t.GetSession(ctx, sessionID)
}

func (t *txStore) CreateAnswer(ctx context.Context, answer domain.Answer) error {
	row := answerRow{
		ID:         answer.ID,
		SessionID:  answer.SessionID,
		QuestionID: answer.QuestionID,
		Response:   answer.Response,
		CreatedAt:  answer.CreatedAt,
	}
	if _, err := t.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapUniqueViolation(err, domain.ErrAnswerExists, "create answer")
	}
	return nil
}

func (t *txStore) CountAnswers(ctx context.Context, sessionID string) (int, error) {
	n, err := t.db.NewSelect().Model((*answerRow)(nil)).Where("session_id = ?", sessionID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

func (t *txStore) CreateEvent(ctx context.Context, event domain.Event) error {
	row := eventRow{
		ID:        event.ID,
		SessionID: event.SessionID,
		EventType: string(event.Type),
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	}
	if _, err := t.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:          r.ID,
		UserID:      r.UserID,
		Status:      domain.SessionStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Email: r.Email, DisplayName: r.DisplayName, CreatedAt: r.CreatedAt}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:         r.ID,
		SessionID:  r.SessionID,
		QuestionID: r.QuestionID,
		Response:   r.Response,
		CreatedAt:  r.CreatedAt,
	}
}

func (r eventRow) toDomain() domain.Event {
	return domain.Event{
		ID:        r.ID,
		SessionID: r.SessionID,
		Type:      domain.EventType(r.EventType),
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
}

func mapNoRows(err error, notFound error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// uniqueViolation is the SQLSTATE Postgres reports for unique constraint failures.
const uniqueViolation = "23505"

func mapUniqueViolation(err error, conflict error, op string) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return conflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
