package memory

import (
	"context"
	"testing"
	"time"

	"assistant-proxy-be/pkg/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryScopes(t *testing.T) {
	repo := NewSessionRepository(time.Hour)

	assert.Nil(t, repo.Scope(""))

	tabA := identity.NewManager(repo.Scope("browser-a"))
	idA, ok := tabA.GetOrCreateID(context.Background())
	require.True(t, ok)

	reloadA, ok := identity.NewManager(repo.Scope("browser-a")).GetOrCreateID(context.Background())
	require.True(t, ok)
	assert.Equal(t, idA, reloadA)

	idB, ok := identity.NewManager(repo.Scope("browser-b")).GetOrCreateID(context.Background())
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)
}

func TestSessionScopeFirstWriteWins(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	scope := repo.Scope("s1")

	stored, err := scope.SetItemIfAbsent(context.Background(), "k", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", stored)

	stored, err = scope.SetItemIfAbsent(context.Background(), "k", "second")
	require.NoError(t, err)
	assert.Equal(t, "first", stored)

	value, found, err := scope.GetItem(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "first", value)
}
