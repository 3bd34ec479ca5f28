package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
)

// CachedCatalog caches question sets in Redis and falls back to the backing
// catalog on a miss. Question sets are stored as JSON:
// SET catalog:questions:{sorted quiz ids}|{limit} <json> EX ttl
type CachedCatalog struct {
	catalog.Service
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCachedCatalog(client *redis.Client, backing catalog.Service, ttl time.Duration, log logrus.FieldLogger) *CachedCatalog {
	return &CachedCatalog{
		Service: backing,
		client:  client,
		ttl:     ttl,
		log:     log,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedCatalog) FetchQuestions(ctx context.Context, quizIDs []string, limit int) ([]domain.Question, error) {
	key := c.questionsKey(quizIDs, limit)
	if qs, ok := c.lookup(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.lookup(ctx, key); ok {
			return qs, nil
		}
		qs, err := c.Service.FetchQuestions(ctx, quizIDs, limit)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(qs); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err(); err != nil {
				c.log.WithError(err).Warn("cache question set")
			}
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *CachedCatalog) lookup(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("read cached question set")
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *CachedCatalog) questionsKey(quizIDs []string, limit int) string {
	ids := append([]string(nil), quizIDs...)
	sort.Strings(ids)
	return "catalog:questions:" + strings.Join(ids, ",") + "|" + strconv.Itoa(limit)
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
