package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"petcare/internal/domain/messaging"
)

const keyPrefix = "chat:selection:"

// RedisStore persists the selection per user for headless clients that
// restart without a URL.
type RedisStore struct {
	client redis.UniversalClient
	user   messaging.UserID
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, user messaging.UserID, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("selection: redis client required")
	}
	if user == "" {
		return nil, errors.New("selection: user id required")
	}
	return &RedisStore{client: client, user: user, ttl: ttl}, nil
}

// Key is the redis key holding a user's selection.
func Key(user messaging.UserID) string {
	return keyPrefix + string(user)
}

func (s *RedisStore) Load(ctx context.Context) (messaging.ConversationID, error) {
	val, err := s.client.Get(ctx, Key(s.user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get selection: %w", err)
	}
	return messaging.ConversationID(val), nil
}

func (s *RedisStore) Save(ctx context.Context, id messaging.ConversationID) error {
	if id == "" {
		return s.Clear(ctx)
	}
	if err := s.client.Set(ctx, Key(s.user), string(id), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set selection: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, Key(s.user)).Err(); err != nil {
		return fmt.Errorf("redis del selection: %w", err)
	}
	return nil
}

// Ping is used by the readiness check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
