package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionStore issues and resolves opaque bearer tokens. Tokens are the
// portal's session cookies; deleting one revokes the session immediately.
type SessionStore interface {
	Create(ctx context.Context, ident Identity) (string, error)
	Get(ctx context.Context, token string) (*Identity, error)
	Delete(ctx context.Context, token string) error
}

type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore keeps session identities under a per token Redis key
// with a sliding TTL.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (s *redisSessionStore) Create(ctx context.Context, ident Identity) (string, error) {
	token := uuid.NewString()

	data, err := json.Marshal(ident)
	if err != nil {
		return "", fmt.Errorf("marshal session identity: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return token, nil
}

func (s *redisSessionStore) Get(ctx context.Context, token string) (*Identity, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var ident Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil, fmt.Errorf("decode session identity: %w", err)
	}
	if _, err := ParseRole(string(ident.Role)); err != nil {
		return nil, fmt.Errorf("session identity: %w", err)
	}

	// Sliding expiry so active sessions stay alive.
	_ = s.client.Expire(ctx, sessionKey(token), s.ttl).Err()

	return &ident, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
