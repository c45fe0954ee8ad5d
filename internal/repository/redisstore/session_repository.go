package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assistant-proxy-be/pkg/identity"

	"github.com/redis/go-redis/v9"
)

// SessionRepository keeps session-scoped key/values in Redis so that every
// instance behind the load balancer sees the same correlation id.
type SessionRepository struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

func NewSessionRepository(rdb *redis.Client, namespace string, ttl time.Duration) *SessionRepository {
	if namespace == "" {
		namespace = "assistant:session"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionRepository{rdb: rdb, namespace: namespace, ttl: ttl}
}

// Scope returns the storage of one browser session, or nil when no session key
// or no Redis client is available.
func (r *SessionRepository) Scope(sessionKey string) identity.SessionStorage {
	if r == nil || r.rdb == nil || sessionKey == "" {
		return nil
	}
	return &sessionScope{repo: r, sessionKey: sessionKey}
}

func (r *SessionRepository) key(sessionKey, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.namespace, sessionKey, key)
}

type sessionScope struct {
	repo       *SessionRepository
	sessionKey string
}

func (s *sessionScope) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := s.repo.rdb.Get(ctx, s.repo.key(s.sessionKey, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", identity.ErrStorageUnavailable, err)
	}
	return val, true, nil
}

func (s *sessionScope) SetItemIfAbsent(ctx context.Context, key, value string) (string, error) {
	k := s.repo.key(s.sessionKey, key)
	ok, err := s.repo.rdb.SetNX(ctx, k, value, s.repo.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", identity.ErrStorageUnavailable, err)
	}
	if ok {
		return value, nil
	}
	// lost the race, read the winner
	existing, err := s.repo.rdb.Get(ctx, k).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", identity.ErrStorageUnavailable, err)
	}
	return existing, nil
}
