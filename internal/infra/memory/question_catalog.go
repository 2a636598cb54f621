package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"converseiq-service/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches the active catalog from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadActiveQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionCatalog caches the active questions with TTL to avoid repeated DB hits.
type QuestionCatalog struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions []domain.Question
	expiresAt time.Time
}

const catalogFlightKey = "active"

func NewQuestionCatalog(loader QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCatalog) ActiveQuestions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.cached(c.clock()); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(catalogFlightKey, func() (interface{}, error) {
		now := c.clock()
		if qs, ok := c.cached(now); ok {
			return qs, nil
		}

		qs, err := c.loader.LoadActiveQuestions(ctx)
		if err != nil {
			return nil, err
		}
		qs = SortActive(qs)

		c.mu.Lock()
		c.questions = qs
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCatalog) cached(now time.Time) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.questions != nil && c.expiresAt.After(now) {
		return c.questions, true
	}
	return nil, false
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves a fixed catalog (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

// NewStaticQuestionLoader copies questions, assigning ids to any that lack one.
func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = uuid.NewString()
		}
	}
	return &StaticQuestionLoader{questions: qs}
}

func (l *StaticQuestionLoader) LoadActiveQuestions(_ context.Context) ([]domain.Question, error) {
	return SortActive(l.questions), nil
}

// SortActive returns the active questions of qs ordered by Order.
func SortActive(qs []domain.Question) []domain.Question {
	active := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if q.IsActive {
			active = append(active, q)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })
	return active
}
