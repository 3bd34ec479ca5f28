package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/infra/memory"
)

func TestCachedCatalogCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	log, _ := test.NewNullLogger()
	backing := &countingCatalog{Catalog: memory.NewCatalog(catalog.DemoSeed())}
	cached := NewCachedCatalog(newClient(mr), backing, time.Minute, log)
	req := catalog.Request{Courses: []string{"Mathematics"}}

	first, err := catalog.Load(context.Background(), cached, req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if backing.calls != 1 {
		t.Fatalf("expected backing called once, got %d", backing.calls)
	}

	// Second call should hit cache, backing not incremented.
	second, err := catalog.Load(context.Background(), cached, req)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if backing.calls != 1 {
		t.Fatalf("expected cache hit, backing calls=%d", backing.calls)
	}
	if len(second.Questions) != len(first.Questions) || second.Questions[0].CorrectOption != first.Questions[0].CorrectOption {
		t.Fatalf("cached questions differ: %+v vs %+v", second.Questions, first.Questions)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := catalog.Load(context.Background(), cached, req); err != nil {
		t.Fatalf("load 3: %v", err)
	}
	if backing.calls != 2 {
		t.Fatalf("expected refetch after expiry, backing calls=%d", backing.calls)
	}
}

func TestCachedCatalogSurvivesRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	log, _ := test.NewNullLogger()
	backing := &countingCatalog{Catalog: memory.NewCatalog(catalog.DemoSeed())}
	cached := NewCachedCatalog(client, backing, time.Minute, log)
	if _, err := catalog.Load(context.Background(), cached, catalog.Request{Courses: []string{"English"}}); err != nil {
		t.Fatalf("expected fallback to backing catalog, got %v", err)
	}
}

type countingCatalog struct {
	*memory.Catalog
	calls int
}

func (c *countingCatalog) FetchQuestions(ctx context.Context, quizIDs []string, limit int) ([]domain.Question, error) {
	c.calls++
	return c.Catalog.FetchQuestions(ctx, quizIDs, limit)
}
