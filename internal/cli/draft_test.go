package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/contacts"
	"github.com/dtran/mailflow/internal/model"
)

func newTestContacts(t *testing.T) *contacts.Store {
	t.Helper()

	db, err := contacts.NewStore(filepath.Join(t.TempDir(), "contacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	require.NoError(t, db.ReplaceAll(context.Background(), []model.Contact{
		{Email: "bob@example.com", Name: "Bob", SendCount: 9},
		{Email: "bobby@example.com", Name: "Bobby", SendCount: 2},
		{Email: "carol@example.com", Name: "Carol", SendCount: 5},
	}))
	return db
}

func TestResolveRecipientPassesThroughFullAddress(t *testing.T) {
	db := newTestContacts(t)

	got, err := resolveRecipient(context.Background(), db, "dave@example.com")
	require.NoError(t, err)
	assert.Equal(t, "dave@example.com", got, "full addresses are not rewritten")
}

func TestResolveRecipientExpandsPrefix(t *testing.T) {
	db := newTestContacts(t)

	got, err := resolveRecipient(context.Background(), db, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got, "most used match wins")
}

func TestResolveRecipientUnknownPrefix(t *testing.T) {
	db := newTestContacts(t)

	_, err := resolveRecipient(context.Background(), db, "zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contact matches")
}
