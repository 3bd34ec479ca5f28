package memory

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
)

// CachedCatalog caches question sets with TTL to avoid repeated catalog hits.
// Every other catalog call passes straight through.
type CachedCatalog struct {
	catalog.Service
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedCatalog(backing catalog.Service, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		Service: backing,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuestions),
	}
}

func (c *CachedCatalog) FetchQuestions(ctx context.Context, quizIDs []string, limit int) ([]domain.Question, error) {
	key := questionsKey(quizIDs, limit)
	if qs, ok := c.lookup(key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if qs, ok := c.lookup(key); ok {
			return qs, nil
		}
		qs, err := c.Service.FetchQuestions(ctx, quizIDs, limit)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = cachedQuestions{
			questions: qs,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return copyQuestions(result.([]domain.Question)), nil
}

func (c *CachedCatalog) lookup(key string) ([]domain.Question, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		return copyQuestions(entry.questions), true
	}
	return nil, false
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(quizIDs []string, limit int) string {
	ids := append([]string(nil), quizIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ",") + "|" + strconv.Itoa(limit)
}

func copyQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	return out
}
