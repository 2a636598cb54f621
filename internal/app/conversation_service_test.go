package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"converseiq-service/internal/app"
	"converseiq-service/internal/domain"
	"converseiq-service/internal/infra/memory"
)

var fixedNow = time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

func TestStartSessionAsksFirstQuestion(t *testing.T) {
	ctx := context.Background()
	service, store, questions := newTestService(t)

	progress, err := service.StartSession(ctx, &domain.UserDescriptor{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if progress.Session.Status != domain.SessionActive {
		t.Fatalf("expected active session, got %s", progress.Session.Status)
	}
	if progress.Session.UserID != nil {
		t.Fatalf("expected anonymous session, got user %q", *progress.Session.UserID)
	}
	if progress.NextQuestion == nil || progress.NextQuestion.FieldKey != "full_name" {
		t.Fatalf("expected full_name first, got %+v", progress.NextQuestion)
	}

	events, _ := store.ListEvents(ctx, progress.Session.ID)
	assertEventTypes(t, events, domain.EventSessionStarted, domain.EventQuestionAsked)
	if events[1].Metadata["questionId"] != questions[0].ID {
		t.Fatalf("expected question asked for %s, got %+v", questions[0].ID, events[1].Metadata)
	}
}

func TestRecordAnswerAdvancesToNextQuestion(t *testing.T) {
	ctx := context.Background()
	service, store, questions := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)

	outcome, err := service.RecordAnswer(ctx, progress.Session.ID, questions[0].ID, "Ada Lovelace")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if outcome.Answer.Response != "Ada Lovelace" {
		t.Fatalf("expected verbatim response, got %q", outcome.Answer.Response)
	}
	if outcome.NextQuestion == nil || outcome.NextQuestion.FieldKey != "email" {
		t.Fatalf("expected email next, got %+v", outcome.NextQuestion)
	}
	if outcome.Session.Status != domain.SessionActive {
		t.Fatalf("expected still active, got %s", outcome.Session.Status)
	}

	events, _ := store.ListEvents(ctx, progress.Session.ID)
	assertEventTypes(t, events,
		domain.EventSessionStarted, domain.EventQuestionAsked,
		domain.EventAnswerRecorded, domain.EventQuestionAsked)
	if events[2].Metadata["answerId"] != outcome.Answer.ID {
		t.Fatalf("expected answer id in metadata, got %+v", events[2].Metadata)
	}
}

func TestAnsweringAllQuestionsCompletesSession(t *testing.T) {
	ctx := context.Background()
	service, store, questions := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)
	sessionID := progress.Session.ID

	responses := []any{"Ada Lovelace", "ada@example.com", "Analytical Engines", 12, map[string]any{"goal": "compute"}}
	var outcome app.AnswerOutcome
	for i, q := range questions {
		next, err := service.GetNextQuestion(ctx, sessionID)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if next.Session.Status != domain.SessionActive || next.NextQuestion == nil {
			t.Fatalf("expected active session with pending question before answer %d", i)
		}
		outcome, err = service.RecordAnswer(ctx, sessionID, q.ID, responses[i])
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	if outcome.Session.Status != domain.SessionCompleted {
		t.Fatalf("expected completed, got %s", outcome.Session.Status)
	}
	if outcome.Session.CompletedAt == nil || !outcome.Session.CompletedAt.Equal(fixedNow) {
		t.Fatalf("expected completedAt set, got %v", outcome.Session.CompletedAt)
	}
	if outcome.NextQuestion != nil {
		t.Fatalf("expected no next question, got %+v", outcome.NextQuestion)
	}

	events, _ := store.ListEvents(ctx, sessionID)
	last := events[len(events)-1]
	if last.Type != domain.EventSessionCompleted {
		t.Fatalf("expected completion event last, got %s", last.Type)
	}
	if last.Metadata["answerCount"] != 5 {
		t.Fatalf("expected answerCount 5, got %v", last.Metadata["answerCount"])
	}

	answers, _ := store.ListAnswers(ctx, sessionID)
	if answers[3].Response != "12" {
		t.Fatalf("expected numeric answer normalized, got %q", answers[3].Response)
	}
	if answers[4].Response != `{"goal":"compute"}` {
		t.Fatalf("expected JSON answer, got %q", answers[4].Response)
	}
	for i, a := range answers {
		if a.QuestionID != questions[i].ID {
			t.Fatalf("answer %d out of catalog order", i)
		}
	}

	next, err := service.GetNextQuestion(ctx, sessionID)
	if err != nil {
		t.Fatalf("next after completion: %v", err)
	}
	if next.NextQuestion != nil || next.Session.Status != domain.SessionCompleted {
		t.Fatalf("expected completed with no next question, got %+v", next)
	}

	_, err = service.RecordAnswer(ctx, sessionID, questions[0].ID, "again")
	if !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected answer exists, got %v", err)
	}
	_, err = service.RecordAnswer(ctx, sessionID, "unknown-question", "again")
	if !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected session not active, got %v", err)
	}
}

func TestGetNextQuestionIsReadOnly(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)
	before, _ := store.ListEvents(ctx, progress.Session.ID)

	first, err := service.GetNextQuestion(ctx, progress.Session.ID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, err := service.GetNextQuestion(ctx, progress.Session.ID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.NextQuestion.ID != second.NextQuestion.ID {
		t.Fatalf("expected same next question, got %s and %s", first.NextQuestion.ID, second.NextQuestion.ID)
	}

	after, _ := store.ListEvents(ctx, progress.Session.ID)
	if len(after) != len(before) {
		t.Fatalf("expected no new events, had %d now %d", len(before), len(after))
	}
}

func TestGetNextQuestionUnknownSession(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.GetNextQuestion(context.Background(), "missing")
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordAnswerRejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	service, store, questions := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)
	before, _ := store.ListEvents(ctx, progress.Session.ID)

	_, err := service.RecordAnswer(ctx, progress.Session.ID, questions[2].ID, "skip ahead")
	if !errors.Is(err, domain.ErrQuestionOutOfOrder) {
		t.Fatalf("expected out of order, got %v", err)
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation kind, got %v", domain.KindOf(err))
	}

	answers, _ := store.ListAnswers(ctx, progress.Session.ID)
	after, _ := store.ListEvents(ctx, progress.Session.ID)
	if len(answers) != 0 || len(after) != len(before) {
		t.Fatalf("expected no side effects, answers=%d events=%d->%d", len(answers), len(before), len(after))
	}
}

func TestRecordAnswerMatchesQuestionIDExactly(t *testing.T) {
	ctx := context.Background()
	service, store, questions := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)

	_, err := service.RecordAnswer(ctx, progress.Session.ID, " "+questions[0].ID+" ", "Ada")
	if !errors.Is(err, domain.ErrQuestionOutOfOrder) {
		t.Fatalf("expected padded id to be rejected, got %v", err)
	}
	if answers, _ := store.ListAnswers(ctx, progress.Session.ID); len(answers) != 0 {
		t.Fatalf("expected no answers, got %d", len(answers))
	}
}

func TestRecordAnswerRejectsBackfill(t *testing.T) {
	ctx := context.Background()
	service, _, questions := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)

	if _, err := service.RecordAnswer(ctx, progress.Session.ID, questions[0].ID, "Ada"); err != nil {
		t.Fatalf("record: %v", err)
	}
	_, err := service.RecordAnswer(ctx, progress.Session.ID, questions[0].ID, "Ada again")
	if !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected answer exists on re-answer, got %v", err)
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict kind, got %v", domain.KindOf(err))
	}
}

func TestConcurrentAnswersToSameQuestionConflict(t *testing.T) {
	ctx := context.Background()
	service, store, questions := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)

	const callers = 2
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.RecordAnswer(ctx, progress.Session.ID, questions[0].ID, "Ada")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case domain.KindOf(err) == domain.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got %d and %d", succeeded, conflicts)
	}
	answers, _ := store.ListAnswers(ctx, progress.Session.ID)
	if len(answers) != 1 {
		t.Fatalf("expected exactly one answer, got %d", len(answers))
	}
}

// failingEventStore rejects one event type so the surrounding transaction rolls back.
type failingEventStore struct {
	*memory.Store
	failOn domain.EventType
}

func (s failingEventStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return fn(ctx, failingEventTx{Tx: tx, failOn: s.failOn})
	})
}

type failingEventTx struct {
	app.Tx
	failOn domain.EventType
}

func (tx failingEventTx) CreateEvent(ctx context.Context, event domain.Event) error {
	if event.Type == tx.failOn {
		return errors.New("event store unavailable")
	}
	return tx.Tx.CreateEvent(ctx, event)
}

func TestRecordAnswerRollsBackWhenCompletionEventFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	loader := memory.NewStaticQuestionLoader(domain.DefaultCatalog())
	questions, _ := loader.LoadActiveQuestions(ctx)
	service := app.NewConversationService(
		failingEventStore{Store: store, failOn: domain.EventSessionCompleted},
		memory.NewQuestionCatalog(loader, time.Minute),
		app.WithClock(func() time.Time { return fixedNow }),
	)

	progress, err := service.StartSession(ctx, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	responses := []any{"Ada", "ada@example.com", "Engines", 12}
	for i, r := range responses {
		if _, err := service.RecordAnswer(ctx, progress.Session.ID, questions[i].ID, r); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	before, _ := store.ListEvents(ctx, progress.Session.ID)

	if _, err := service.RecordAnswer(ctx, progress.Session.ID, questions[4].ID, "compute"); err == nil {
		t.Fatalf("expected completion failure")
	}

	session, _ := store.GetSession(ctx, progress.Session.ID)
	if session.Status != domain.SessionActive || session.CompletedAt != nil {
		t.Fatalf("expected session still active, got %+v", session)
	}
	answers, _ := store.ListAnswers(ctx, progress.Session.ID)
	if len(answers) != 4 {
		t.Fatalf("expected last answer rolled back, got %d answers", len(answers))
	}
	after, _ := store.ListEvents(ctx, progress.Session.ID)
	if len(after) != len(before) {
		t.Fatalf("expected no new events, had %d now %d", len(before), len(after))
	}
	next, _ := service.GetNextQuestion(ctx, progress.Session.ID)
	if next.NextQuestion == nil || next.NextQuestion.ID != questions[4].ID {
		t.Fatalf("expected last question still pending, got %+v", next.NextQuestion)
	}
}

func TestRecordAnswerValidatesInput(t *testing.T) {
	ctx := context.Background()
	service, _, questions := newTestService(t)

	if _, err := service.RecordAnswer(ctx, "s1", "", "x"); !errors.Is(err, domain.ErrQuestionIDRequired) {
		t.Fatalf("expected questionId required, got %v", err)
	}
	if _, err := service.RecordAnswer(ctx, "s1", questions[0].ID, nil); !errors.Is(err, domain.ErrResponseRequired) {
		t.Fatalf("expected response required, got %v", err)
	}
	if _, err := service.RecordAnswer(ctx, "missing", questions[0].ID, "x"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestRecordAnswerWithEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	catalog := memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(nil), time.Minute)
	service := app.NewConversationService(store, catalog, app.WithClock(func() time.Time { return fixedNow }))

	progress, err := service.StartSession(ctx, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if progress.NextQuestion != nil {
		t.Fatalf("expected no question, got %+v", progress.NextQuestion)
	}
	_, err = service.RecordAnswer(ctx, progress.Session.ID, "q1", "x")
	if !errors.Is(err, domain.ErrAllQuestionsAnswered) {
		t.Fatalf("expected all answered, got %v", err)
	}
}

func TestInactiveQuestionsAreSkipped(t *testing.T) {
	ctx := context.Background()
	qs := []domain.Question{
		{ID: "q1", FieldKey: "a", Order: 1, InputType: domain.InputText, IsActive: true},
		{ID: "q2", FieldKey: "b", Order: 2, InputType: domain.InputText, IsActive: false},
		{ID: "q3", FieldKey: "c", Order: 3, InputType: domain.InputText, IsActive: true},
	}
	service := app.NewConversationService(memory.NewStore(),
		memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(qs), time.Minute))

	progress, _ := service.StartSession(ctx, nil)
	outcome, err := service.RecordAnswer(ctx, progress.Session.ID, "q1", "x")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if outcome.NextQuestion == nil || outcome.NextQuestion.ID != "q3" {
		t.Fatalf("expected q3 next, got %+v", outcome.NextQuestion)
	}
}

func TestStartSessionReusesUserByEmail(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService(t)

	first, err := service.StartSession(ctx, &domain.UserDescriptor{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("start 1: %v", err)
	}
	second, err := service.StartSession(ctx, &domain.UserDescriptor{Email: "a@b.com", DisplayName: "A"})
	if err != nil {
		t.Fatalf("start 2: %v", err)
	}
	if first.Session.UserID == nil || second.Session.UserID == nil || *first.Session.UserID != *second.Session.UserID {
		t.Fatalf("expected same user for both sessions")
	}
	if store.UserCount() != 1 {
		t.Fatalf("expected one user, got %d", store.UserCount())
	}
	user, _ := store.GetUser(ctx, *first.Session.UserID)
	if user.DisplayName == nil || *user.DisplayName != "A" {
		t.Fatalf("expected backfilled display name, got %v", user.DisplayName)
	}
}

func TestStartSessionUnknownUserIDLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService(t)

	_, err := service.StartSession(ctx, &domain.UserDescriptor{UserID: "ghost"})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if store.UserCount() != 0 {
		t.Fatalf("expected no users created")
	}
}

func TestPublisherReceivesCommittedEvents(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewEventBus()
	store := memory.NewStore()
	loader := memory.NewStaticQuestionLoader(domain.DefaultCatalog())
	service := app.NewConversationService(store, memory.NewQuestionCatalog(loader, time.Minute), app.WithPublisher(bus))
	questions, _ := loader.LoadActiveQuestions(ctx)

	progress, _ := service.StartSession(ctx, nil)
	ch, cancel, _ := bus.Subscribe(ctx, progress.Session.ID)
	defer cancel()

	if _, err := service.RecordAnswer(ctx, progress.Session.ID, questions[1].ID, "wrong"); err == nil {
		t.Fatalf("expected out of order error")
	}
	if _, err := service.RecordAnswer(ctx, progress.Session.ID, questions[0].ID, "Ada"); err != nil {
		t.Fatalf("record: %v", err)
	}

	got := []domain.EventType{(<-ch).Type, (<-ch).Type}
	if got[0] != domain.EventAnswerRecorded || got[1] != domain.EventQuestionAsked {
		t.Fatalf("unexpected published events %v", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)
	progress, _ := service.StartSession(ctx, nil)

	events, err := service.ListEvents(ctx, progress.Session.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertEventTypes(t, events, domain.EventSessionStarted, domain.EventQuestionAsked)

	if _, err := service.ListEvents(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newTestService(t *testing.T) (*app.ConversationService, *memory.Store, []domain.Question) {
	t.Helper()
	store := memory.NewStore()
	loader := memory.NewStaticQuestionLoader(domain.DefaultCatalog())
	questions, err := loader.LoadActiveQuestions(context.Background())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	seq := 0
	service := app.NewConversationService(store, memory.NewQuestionCatalog(loader, 5*time.Minute),
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return service, store, questions
}

func assertEventTypes(t *testing.T, events []domain.Event, want ...domain.EventType) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], e.Type)
		}
	}
}
