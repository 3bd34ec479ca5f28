package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"proctored-quiz-engine/internal/domain"
)

// InfractionLog appends infractions to a per-session list:
// RPUSH proctor:infractions:{sessionID} <json>
type InfractionLog struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInfractionLog(client *redis.Client, ttl time.Duration) *InfractionLog {
	return &InfractionLog{client: client, ttl: ttl}
}

func (l *InfractionLog) Record(ctx context.Context, sessionID string, infraction domain.Infraction) error {
	raw, err := json.Marshal(infraction)
	if err != nil {
		return fmt.Errorf("encode infraction: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.key(sessionID), raw)
	if l.ttl > 0 {
		pipe.Expire(ctx, l.key(sessionID), l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record infraction: %w", err)
	}
	return nil
}

// List returns the recorded infractions of a session in order.
func (l *InfractionLog) List(ctx context.Context, sessionID string) ([]domain.Infraction, error) {
	items, err := l.client.LRange(ctx, l.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list infractions: %w", err)
	}
	out := make([]domain.Infraction, 0, len(items))
	for _, item := range items {
		var inf domain.Infraction
		if err := json.Unmarshal([]byte(item), &inf); err != nil {
			return nil, fmt.Errorf("decode infraction: %w", err)
		}
		out = append(out, inf)
	}
	return out, nil
}

func (l *InfractionLog) key(sessionID string) string {
	return "proctor:infractions:" + sessionID
}
