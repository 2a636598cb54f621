package memory

import (
	"context"
	"sync"
	"time"

	"converseiq-service/internal/app"
	"converseiq-service/internal/domain"
)

// Store is an in-memory implementation of app.Store.
// Transactions are serialized and work on a copy of the state that replaces
// the live state only when the transaction function succeeds.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state
}

type state struct {
	users    map[string]domain.User
	sessions map[string]domain.Session
	answers  map[string][]domain.Answer
	events   map[string][]domain.Event
}

func newState() *state {
	return &state{
		users:    make(map[string]domain.User),
		sessions: make(map[string]domain.Session),
		answers:  make(map[string][]domain.Answer),
		events:   make(map[string][]domain.Event),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.answers {
		c.answers[k] = append([]domain.Answer(nil), v...)
	}
	for k, v := range s.events {
		c.events[k] = append([]domain.Event(nil), v...)
	}
	return c
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getSession(sessionID)
}

func (s *Store) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.state.answers[sessionID]...), nil
}

func (s *Store) ListEvents(_ context.Context, sessionID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.state.events[sessionID]...), nil
}

// GetUser is exposed for inspection in tests and tooling.
func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getUser(userID)
}

// UserCount reports how many users exist.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.users)
}

func (st *state) getSession(sessionID string) (domain.Session, error) {
	session, ok := st.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (st *state) getUser(userID string) (domain.User, error) {
	user, ok := st.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// tx operates on a private copy of the store state.
type tx struct {
	state *state
}

func (t *tx) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	return t.state.getSession(sessionID)
}

func (t *tx) LockSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return t.GetSession(ctx, sessionID)
}

func (t *tx) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	return append([]domain.Answer(nil), t.state.answers[sessionID]...), nil
}

func (t *tx) ListEvents(_ context.Context, sessionID string) ([]domain.Event, error) {
	return append([]domain.Event(nil), t.state.events[sessionID]...), nil
}

func (t *tx) GetUser(_ context.Context, userID string) (domain.User, error) {
	return t.state.getUser(userID)
}

func (t *tx) FindUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	for _, user := range t.state.users {
		if user.Email != nil && *user.Email == email {
			return user, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (t *tx) CreateUser(ctx context.Context, user domain.User) error {
	if user.Email != nil {
		if _, ok, _ := t.FindUserByEmail(ctx, *user.Email); ok {
			return domain.ErrEmailTaken
		}
	}
	t.state.users[user.ID] = user
	return nil
}

func (t *tx) SetUserDisplayName(_ context.Context, userID, displayName string) error {
	user, err := t.state.getUser(userID)
	if err != nil {
		return err
	}
	user.DisplayName = &displayName
	t.state.users[userID] = user
	return nil
}

func (t *tx) CreateSession(_ context.Context, session domain.Session) error {
	if session.UserID != nil {
		if _, err := t.state.getUser(*session.UserID); err != nil {
			return err
		}
	}
	t.state.sessions[session.ID] = session
	return nil
}

func (t *tx) CompleteSession(_ context.Context, sessionID string, at time.Time) (domain.Session, error) {
	session, err := t.state.getSession(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	session.Status = domain.SessionCompleted
	session.CompletedAt = &at
	t.state.sessions[sessionID] = session
	return session, nil
}

func (t *tx) CreateAnswer(_ context.Context, answer domain.Answer) error {
	if _, err := t.state.getSession(answer.SessionID); err != nil {
		return err
	}
	for _, existing := range t.state.answers[answer.SessionID] {
		if existing.QuestionID == answer.QuestionID {
			return domain.ErrAnswerExists
		}
	}
	t.state.answers[answer.SessionID] = append(t.state.answers[answer.SessionID], answer)
	return nil
}

func (t *tx) CountAnswers(_ context.Context, sessionID string) (int, error) {
	return len(t.state.answers[sessionID]), nil
}

func (t *tx) CreateEvent(_ context.Context, event domain.Event) error {
	if _, err := t.state.getSession(event.SessionID); err != nil {
		return err
	}
	t.state.events[event.SessionID] = append(t.state.events[event.SessionID], event)
	return nil
}
