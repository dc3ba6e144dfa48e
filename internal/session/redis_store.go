package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore persists contexts in Redis. The key TTL doubles as the idle
// timeout: every Update refreshes it, so abandoned sessions expire on their
// own with no sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a redis-backed session store with the given idle TTL.
func NewRedisStore(client *redis.Client, idleTimeout time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &RedisStore{
		client: client,
		ttl:    idleTimeout,
		tracer: otel.Tracer("concierge.internal.session"),
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("workflow:session:%s", id)
}

// GetOrCreate loads the session's context, creating an idle one on miss.
func (s *RedisStore) GetOrCreate(ctx context.Context, sessionID string) (*Context, error) {
	ctx, span := s.tracer.Start(ctx, "session.get_or_create")
	defer span.End()

	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c := NewContext(sessionID)
			if err := s.Update(ctx, c); err != nil {
				span.RecordError(err)
				return nil, err
			}
			return c, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: load context: %w", err)
	}

	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: decode context: %w", err)
	}
	return &c, nil
}

// Update writes the context back and refreshes the idle TTL.
func (s *RedisStore) Update(ctx context.Context, c *Context) error {
	ctx, span := s.tracer.Start(ctx, "session.update")
	defer span.End()

	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: encode context: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(c.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: persist context: %w", err)
	}
	return nil
}

// Delete evicts the session's context.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete context: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
