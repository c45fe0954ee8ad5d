package memory

import (
	"context"
	"sync"
	"time"

	"assistant-proxy-be/pkg/identity"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps session-scoped key/values in process memory. Items
// expire with the session.
type SessionRepository struct {
	cache *cache.Cache
	mu    sync.Mutex
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	// purge expired sessions every 10 minutes
	c := cache.New(ttl, 10*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

// Scope returns the storage of one browser session. An empty session key has
// no storage, which keeps the conversation inert.
func (r *SessionRepository) Scope(sessionKey string) identity.SessionStorage {
	if sessionKey == "" {
		return nil
	}
	return &sessionScope{repo: r, prefix: sessionKey + ":"}
}

type sessionScope struct {
	repo   *SessionRepository
	prefix string
}

func (s *sessionScope) GetItem(_ context.Context, key string) (string, bool, error) {
	if x, found := s.repo.cache.Get(s.prefix + key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

func (s *sessionScope) SetItemIfAbsent(_ context.Context, key, value string) (string, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()

	if err := s.repo.cache.Add(s.prefix+key, value, cache.DefaultExpiration); err != nil {
		// already set by an earlier caller
		if x, found := s.repo.cache.Get(s.prefix + key); found {
			return x.(string), nil
		}
		return "", err
	}
	return value, nil
}
