package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"converseiq-service/internal/domain"
	"converseiq-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const catalogKey = "converse:catalog:active"

// QuestionCatalog caches the active question list in Redis and falls back to
// a loader on cache miss, so every instance shares one snapshot.
// The snapshot is stored as: SET converse:catalog:active <json array>
type QuestionCatalog struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCatalog(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCatalog) ActiveQuestions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.fromCache(ctx); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.fromCache(ctx); ok {
			return qs, nil
		}

		qs, err := c.loader.LoadActiveQuestions(ctx)
		if err != nil {
			return nil, err
		}
		qs = memory.SortActive(qs)

		raw, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, catalogKey, raw, c.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache question catalog: %v", err)
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the shared snapshot, e.g. after reseeding.
func (c *QuestionCatalog) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogKey).Err()
}

func (c *QuestionCatalog) fromCache(ctx context.Context) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read question catalog cache: %v", err)
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
