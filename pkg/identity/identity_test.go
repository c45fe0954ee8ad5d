package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStorage struct {
	mu     sync.Mutex
	items  map[string]string
	writes int
	err    error
}

func newMapStorage() *mapStorage {
	return &mapStorage{items: map[string]string{}}
}

func (s *mapStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *mapStorage) SetItemIfAbsent(_ context.Context, key, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if v, ok := s.items[key]; ok {
		return v, nil
	}
	s.items[key] = value
	s.writes++
	return value, nil
}

func TestGetOrCreateIDCreatesOnce(t *testing.T) {
	storage := newMapStorage()
	m := NewManager(storage)

	first, ok := m.GetOrCreateID(context.Background())
	require.True(t, ok)
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	second, ok := m.GetOrCreateID(context.Background())
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, storage.writes)
}

func TestGetOrCreateIDSurvivesNewManager(t *testing.T) {
	storage := newMapStorage()
	first, _ := NewManager(storage).GetOrCreateID(context.Background())

	// a page reload builds a new manager over the same session storage
	second, ok := NewManager(storage).GetOrCreateID(context.Background())
	require.True(t, ok)
	assert.Equal(t, first, second)

	// a new session gets a different id
	third, ok := NewManager(newMapStorage()).GetOrCreateID(context.Background())
	require.True(t, ok)
	assert.NotEqual(t, first, third)
}

func TestGetOrCreateIDWithoutStorage(t *testing.T) {
	id, ok := NewManager(nil).GetOrCreateID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)

	var nilManager *Manager
	id, ok = nilManager.GetOrCreateID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestGetOrCreateIDStorageUnavailable(t *testing.T) {
	storage := newMapStorage()
	storage.err = ErrStorageUnavailable

	id, ok := NewManager(storage).GetOrCreateID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, 0, storage.writes)
}

func TestGetOrCreateIDConcurrentFirstCalls(t *testing.T) {
	storage := newMapStorage()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = NewManager(storage).GetOrCreateID(context.Background())
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, storage.writes)
}
