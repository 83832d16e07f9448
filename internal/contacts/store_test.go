package contacts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "contacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

func TestReplaceAllAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, []model.Contact{
		{Email: "alice@example.com", Name: "Alice", SendCount: 5},
		{Email: "bob@example.com", Name: "Bob", SendCount: 1},
	}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice@example.com", all[0].Email, "most used first")
	assert.NotEmpty(t, all[0].ID, "missing ids are assigned")

	// A second snapshot replaces, never accumulates.
	require.NoError(t, s.ReplaceAll(ctx, []model.Contact{
		{Email: "carol@example.com", Name: "Carol"},
	}))
	all, err = s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "carol@example.com", all[0].Email)
}

func TestSearchByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, []model.Contact{
		{Email: "alice@example.com", Name: "Alice", SendCount: 1},
		{Email: "albert@example.com", Name: "Albert", SendCount: 9},
		{Email: "bob@example.com", Name: "Bob"},
	}))

	got, err := s.Search(ctx, "al")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "albert@example.com", got[0].Email)

	// Name prefixes match too.
	got, err = s.Search(ctx, "Bob")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob@example.com", got[0].Email)
}

func TestBumpExistingAndNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, []model.Contact{
		{Email: "alice@example.com", Name: "Alice", SendCount: 1},
	}))

	require.NoError(t, s.Bump(ctx, "alice@example.com"))
	got, err := s.Search(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].SendCount)

	// Bumping an unknown address inserts it.
	require.NoError(t, s.Bump(ctx, "new@example.com"))
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
