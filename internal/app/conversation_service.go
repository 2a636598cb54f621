package app

import (
	"context"
	"log"
	"strings"
	"time"

	"converseiq-service/internal/domain"
	"github.com/google/uuid"
)

// SessionProgress is a session together with the question it is waiting on.
// NextQuestion is nil once every active question has been answered.
type SessionProgress struct {
	Session      domain.Session   `json:"session"`
	NextQuestion *domain.Question `json:"nextQuestion"`
}

// AnswerOutcome is the result of recording one answer.
type AnswerOutcome struct {
	Answer       domain.Answer    `json:"answer"`
	Session      domain.Session   `json:"session"`
	NextQuestion *domain.Question `json:"nextQuestion"`
}

// ConversationService drives sessions through the question catalog.
type ConversationService struct {
	store     Store
	catalog   QuestionCatalog
	publisher EventPublisher
	identity  *IdentityResolver
	now       func() time.Time
	newID     func() string
}

// Option customizes a ConversationService.
type Option func(*ConversationService)

// WithClock overrides the time source (tests use it for deterministic timestamps).
func WithClock(now func() time.Time) Option {
	return func(s *ConversationService) { s.now = now }
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *ConversationService) { s.newID = newID }
}

// WithPublisher forwards committed events to p.
func WithPublisher(p EventPublisher) Option {
	return func(s *ConversationService) { s.publisher = p }
}

func NewConversationService(store Store, catalog QuestionCatalog, opts ...Option) *ConversationService {
	s := &ConversationService{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.identity = NewIdentityResolver(s.newID, s.now)
	return s
}

// StartSession opens a new ACTIVE session, optionally bound to a user, and asks the first question.
func (s *ConversationService) StartSession(ctx context.Context, user *domain.UserDescriptor) (SessionProgress, error) {
	questions, err := s.catalog.ActiveQuestions(ctx)
	if err != nil {
		return SessionProgress{}, err
	}

	var (
		progress SessionProgress
		events   []domain.Event
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		recorder := NewEventRecorder(tx, s.newID, s.now)

		userID, err := s.identity.ResolveUserID(ctx, tx, user)
		if err != nil {
			return err
		}

		session := domain.Session{
			ID:        s.newID(),
			UserID:    userID,
			Status:    domain.SessionActive,
			CreatedAt: s.now(),
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		if _, err := recorder.Record(ctx, session.ID, domain.EventSessionStarted, map[string]any{
			"userId": userID,
		}); err != nil {
			return err
		}

		next := nextPending(questions, nil)
		if next != nil {
			if _, err := recorder.Record(ctx, session.ID, domain.EventQuestionAsked, map[string]any{
				"questionId": next.ID,
			}); err != nil {
				return err
			}
		}

		progress = SessionProgress{Session: session, NextQuestion: next}
		events = recorder.Recorded()
		return nil
	})
	if err != nil {
		return SessionProgress{}, err
	}

	s.publish(ctx, events)
	return progress, nil
}

// GetNextQuestion reports the pending question of a session without recording anything.
func (s *ConversationService) GetNextQuestion(ctx context.Context, sessionID string) (SessionProgress, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionProgress{}, domain.ErrSessionIDRequired
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionProgress{}, err
	}
	if session.Status == domain.SessionCompleted {
		return SessionProgress{Session: session}, nil
	}

	questions, err := s.catalog.ActiveQuestions(ctx)
	if err != nil {
		return SessionProgress{}, err
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return SessionProgress{}, err
	}
	return SessionProgress{Session: session, NextQuestion: nextPending(questions, answers)}, nil
}

// RecordAnswer stores the response to the session's pending question and
// advances the session, completing it when nothing is left to ask.
// Answers must arrive strictly in catalog order.
func (s *ConversationService) RecordAnswer(ctx context.Context, sessionID, questionID string, raw any) (AnswerOutcome, error) {
	sessionID = strings.TrimSpace(sessionID)
	if strings.TrimSpace(questionID) == "" {
		return AnswerOutcome{}, domain.ErrQuestionIDRequired
	}
	if raw == nil {
		return AnswerOutcome{}, domain.ErrResponseRequired
	}
	if sessionID == "" {
		return AnswerOutcome{}, domain.ErrSessionIDRequired
	}

	questions, err := s.catalog.ActiveQuestions(ctx)
	if err != nil {
		return AnswerOutcome{}, err
	}

	var (
		outcome AnswerOutcome
		events  []domain.Event
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		recorder := NewEventRecorder(tx, s.newID, s.now)

		session, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		answers, err := tx.ListAnswers(ctx, sessionID)
		if err != nil {
			return err
		}
		// A caller that lost the race for the same question sees it answered here.
		for _, a := range answers {
			if a.QuestionID == questionID {
				return domain.ErrAnswerExists
			}
		}
		if session.Status != domain.SessionActive {
			return domain.ErrSessionNotActive
		}

		expected := nextPending(questions, answers)
		if expected == nil {
			return domain.ErrAllQuestionsAnswered
		}
		if expected.ID != questionID {
			return domain.ErrQuestionOutOfOrder
		}

		response, err := NormalizeResponse(raw, expected.InputType)
		if err != nil {
			return err
		}
		answer := domain.Answer{
			ID:         s.newID(),
			SessionID:  sessionID,
			QuestionID: questionID,
			Response:   response,
			CreatedAt:  s.now(),
		}
		if err := tx.CreateAnswer(ctx, answer); err != nil {
			return err
		}
		if _, err := recorder.Record(ctx, sessionID, domain.EventAnswerRecorded, map[string]any{
			"answerId":   answer.ID,
			"questionId": questionID,
		}); err != nil {
			return err
		}

		next := nextPending(questions, append(answers, answer))
		if next != nil {
			if _, err := recorder.Record(ctx, sessionID, domain.EventQuestionAsked, map[string]any{
				"questionId": next.ID,
			}); err != nil {
				return err
			}
		} else {
			session, err = tx.CompleteSession(ctx, sessionID, s.now())
			if err != nil {
				return err
			}
			count, err := tx.CountAnswers(ctx, sessionID)
			if err != nil {
				return err
			}
			if _, err := recorder.Record(ctx, sessionID, domain.EventSessionCompleted, map[string]any{
				"answerCount": count,
			}); err != nil {
				return err
			}
		}

		outcome = AnswerOutcome{Answer: answer, Session: session, NextQuestion: next}
		events = recorder.Recorded()
		return nil
	})
	if err != nil {
		return AnswerOutcome{}, err
	}

	s.publish(ctx, events)
	return outcome, nil
}

// ListEvents returns the audit trail of a session.
func (s *ConversationService) ListEvents(ctx context.Context, sessionID string) ([]domain.Event, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrSessionIDRequired
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, sessionID)
}

// publish runs after commit; a failing publisher never undoes recorded state.
func (s *ConversationService) publish(ctx context.Context, events []domain.Event) {
	if s.publisher == nil {
		return
	}
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Printf("publish %s for session %s: %v", event.Type, event.SessionID, err)
		}
	}
}

// nextPending returns the lowest-order active question without an answer.
// questions must be sorted by order.
func nextPending(questions []domain.Question, answers []domain.Answer) *domain.Question {
	answered := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = struct{}{}
	}
	for i := range questions {
		q := questions[i]
		if !q.IsActive {
			continue
		}
		if _, ok := answered[q.ID]; ok {
			continue
		}
		return &q
	}
	return nil
}
