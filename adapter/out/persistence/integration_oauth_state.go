package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"integration_server/core/domain"
	"integration_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OAuthStateKey Redis key prefix for OAuth state
const OAuthStateKey = "oauth:state:"

// RedisOAuthStateStore keeps pending authorizations in Redis. Expiry is
// left to the key TTL.
type RedisOAuthStateStore struct {
	client *redis.Client
}

var _ out.OAuthStateStore = (*RedisOAuthStateStore)(nil)

func NewRedisOAuthStateStore(client *redis.Client) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

func (s *RedisOAuthStateStore) Store(ctx context.Context, state string, pending *domain.PendingAuthorization, ttl time.Duration) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if pending == nil || pending.UserID == uuid.Nil {
		return errors.New("userID cannot be nil")
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode OAuth state: %w", err)
	}
	if err := s.client.Set(ctx, OAuthStateKey+state, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// Consume reads and deletes the state in one GETDEL so it cannot be
// replayed.
func (s *RedisOAuthStateStore) Consume(ctx context.Context, state string) (*domain.PendingAuthorization, error) {
	if state == "" {
		return nil, out.ErrStateNotFound
	}

	data, err := s.client.GetDel(ctx, OAuthStateKey+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, out.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate OAuth state: %w", err)
	}
	return decodePending(data)
}

func decodePending(data []byte) (*domain.PendingAuthorization, error) {
	var pending domain.PendingAuthorization
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("invalid OAuth state payload: %w", err)
	}
	if pending.UserID == uuid.Nil {
		return nil, out.ErrStateNotFound
	}
	return &pending, nil
}
