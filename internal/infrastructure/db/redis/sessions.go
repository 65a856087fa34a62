package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
)

const defaultSessionTTL = 24 * time.Hour

// SessionRepository stores sessions as JSON values that expire after a
// fixed TTL. Key format: session:<hashed session id>
type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository wraps client. A ttl <= 0 uses defaultSessionTTL.
func NewSessionRepository(client *redis.Client, ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionRepository{client: client, ttl: ttl}
}

// CreateSession stores session unless its id is already taken.
func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(session.ID), raw, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return domain.ErrConflict
	}
	return nil
}

func (r *SessionRepository) FindSession(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) key(id string) string {
	return "session:" + id
}
