package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-client/internal/domain"
)

// CatalogLoader fetches the quiz listing from the backend.
type CatalogLoader interface {
	QuizSubjects(ctx context.Context) ([]domain.QuizSummary, error)
}

const catalogKey = "subjects"

// QuizCatalog caches the quiz listing with a TTL so dashboard refreshes do
// not hit the backend every time. Concurrent misses share one fetch.
type QuizCatalog struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.QuizSummary
	expiresAt time.Time
	version   uint64
}

// NewQuizCatalog wraps loader; a non-positive ttl disables caching.
func NewQuizCatalog(loader CatalogLoader, ttl time.Duration) *QuizCatalog {
	return &QuizCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCatalog) QuizSubjects(ctx context.Context) ([]domain.QuizSummary, error) {
	if c.ttl <= 0 {
		return c.loader.QuizSubjects(ctx)
	}
	if quizzes, ok := c.lookup(); ok {
		return quizzes, nil
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		if quizzes, ok := c.lookup(); ok {
			return quizzes, nil
		}

		c.mu.RLock()
		version := c.version
		c.mu.RUnlock()

		quizzes, err := c.loader.QuizSubjects(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// an Invalidate during the fetch wins
		if c.version == version {
			c.cached = quizzes
			c.expiresAt = c.clock().Add(c.ttlWithJitter())
		}
		c.mu.Unlock()
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]domain.QuizSummary)), nil
}

// Invalidate drops the cached listing.
func (c *QuizCatalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.expiresAt = time.Time{}
	c.version++
}

func (c *QuizCatalog) lookup() ([]domain.QuizSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached != nil && c.expiresAt.After(c.clock()) {
		return clone(c.cached), true
	}
	return nil, false
}

func (c *QuizCatalog) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func clone(quizzes []domain.QuizSummary) []domain.QuizSummary {
	out := make([]domain.QuizSummary, len(quizzes))
	copy(out, quizzes)
	return out
}
