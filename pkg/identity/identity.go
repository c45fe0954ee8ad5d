// Package identity issues the per-session correlation id that keys a
// conversation with the upstream assistant.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// StorageKey is the session storage key holding the correlation id.
const StorageKey = "assistant_user_id"

// ErrStorageUnavailable is returned by storages that cannot be reached yet.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// SessionStorage is storage scoped to one browsing session.
type SessionStorage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	// SetItemIfAbsent stores value only when key is empty and returns the value
	// that ends up stored.
	SetItemIfAbsent(ctx context.Context, key, value string) (string, error)
}

// Manager hands out the correlation id of one session.
type Manager struct {
	storage SessionStorage
	newID   func() string
}

func NewManager(storage SessionStorage) *Manager {
	return &Manager{
		storage: storage,
		newID:   func() string { return uuid.New().String() },
	}
}

// GetOrCreateID returns the session's correlation id, creating it on first use.
// ok is false when no storage is available yet; callers treat that as "not
// ready" rather than as a failure.
func (m *Manager) GetOrCreateID(ctx context.Context) (string, bool) {
	if m == nil || m.storage == nil {
		return "", false
	}

	id, found, err := m.storage.GetItem(ctx, StorageKey)
	if err != nil {
		return "", false
	}
	if found && id != "" {
		return id, true
	}

	stored, err := m.storage.SetItemIfAbsent(ctx, StorageKey, m.newID())
	if err != nil || stored == "" {
		return "", false
	}
	return stored, true
}
