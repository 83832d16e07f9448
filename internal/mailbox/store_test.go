package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/model"
)

func msg(id string, receivedAt time.Time) model.Message {
	return model.Message{
		ID:         id,
		Folder:     model.FolderInbox,
		Sender:     "Alice",
		Subject:    "subject " + id,
		ReceivedAt: receivedAt,
	}
}

func snapshot(ids ...string) []model.Message {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]model.Message, len(ids))
	for i, id := range ids {
		// Newest first, matching server order.
		out[i] = msg(id, base.Add(-time.Duration(i)*time.Minute))
	}
	return out
}

func TestLoadReplacesCache(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a", "b", "c"))

	require.True(t, s.Loaded())
	assert.Equal(t, model.FolderInbox, s.Folder())
	assert.Equal(t, 3, s.Len())

	s.Load(model.FolderTrash, snapshot("x"))
	assert.Equal(t, model.FolderTrash, s.Folder())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestResetMarksUnloaded(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a"))
	s.Reset(model.FolderSent)

	assert.False(t, s.Loaded())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, model.FolderSent, s.Folder())
}

func TestReconcileDropsAbsentAndAddsNew(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a", "b"))

	s.Reconcile(snapshot("b", "c"))

	_, ok := s.Get("a")
	assert.False(t, ok, "message absent from snapshot should disappear")
	_, ok = s.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestReconcilePreservesPendingStar(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a"))
	require.NoError(t, s.ApplyStar("a", true))

	// Server has not seen the mutation yet.
	s.Reconcile(snapshot("a"))
	m, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, m.IsStarred, "pending star must survive a stale snapshot")

	// Server caught up; the pending flag clears and later snapshots win.
	confirmed := snapshot("a")
	confirmed[0].IsStarred = true
	s.Reconcile(confirmed)

	unstarred := snapshot("a")
	s.Reconcile(unstarred)
	m, _ = s.Get("a")
	assert.False(t, m.IsStarred, "after confirmation the server value is authoritative")
}

func TestRollbackStar(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a"))
	require.NoError(t, s.ApplyStar("a", true))

	s.RollbackStar("a")
	m, _ := s.Get("a")
	assert.False(t, m.IsStarred)

	// Snapshot no longer fights a pending value.
	s.Reconcile(snapshot("a"))
	m, _ = s.Get("a")
	assert.False(t, m.IsStarred)
}

func TestApplyStarUnknownID(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a"))
	assert.Error(t, s.ApplyStar("nope", true))
}

func TestRemoveShieldsFromResurrection(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a", "b"))

	_, ok := s.Remove("a")
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())

	// A stale snapshot still lists the removed message; it must stay hidden.
	s.Reconcile(snapshot("a", "b"))
	_, ok = s.Get("a")
	assert.False(t, ok)

	// The server confirms the removal; the tombstone is dropped, so a later
	// reappearance (e.g. restored elsewhere) shows up again.
	s.Reconcile(snapshot("b"))
	s.Reconcile(snapshot("a", "b"))
	_, ok = s.Get("a")
	assert.True(t, ok)
}

func TestUnremoveReinsertsInReceivedOrder(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a", "b", "c"))

	_, ok := s.Remove("b")
	require.True(t, ok)

	s.Unremove("b")
	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)
}

func TestRemoveAll(t *testing.T) {
	s := New()
	s.Load(model.FolderInbox, snapshot("a", "b", "c"))

	removed := s.RemoveAll([]string{"a", "c", "missing"})
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, s.Len())
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	s := New()
	msgs := snapshot("a", "b", "c")
	msgs[2].IsRead = true
	s.Load(model.FolderInbox, msgs)

	assert.Equal(t, 2, s.UnreadCount())
	s.MarkRead("a")
	assert.Equal(t, 1, s.UnreadCount())
}

func TestClearEmptiesCache(t *testing.T) {
	s := New()
	s.Load(model.FolderTrash, snapshot("a", "b"))
	s.Remove("a")

	s.Clear()
	assert.Equal(t, 0, s.Len())

	// After clearing, the next snapshot is authoritative even for the
	// previously tombstoned id.
	s.Reconcile(snapshot("a"))
	assert.Equal(t, 1, s.Len())
}
