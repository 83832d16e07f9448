package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/mailbox"
	"github.com/dtran/mailflow/internal/model"
)

type fakeActionAPI struct {
	deleted    []string
	restored   []string
	purged     []string
	markedRead []string
	emptied    int

	failIDs map[string]error
}

func (f *fakeActionAPI) failFor(id string) error {
	if err, ok := f.failIDs[id]; ok {
		return err
	}
	return nil
}

func (f *fakeActionAPI) Delete(ctx context.Context, id string) error {
	if err := f.failFor(id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeActionAPI) Restore(ctx context.Context, id string) error {
	if err := f.failFor(id); err != nil {
		return err
	}
	f.restored = append(f.restored, id)
	return nil
}

func (f *fakeActionAPI) PermanentDelete(ctx context.Context, id string) error {
	if err := f.failFor(id); err != nil {
		return err
	}
	f.purged = append(f.purged, id)
	return nil
}

func (f *fakeActionAPI) MarkRead(ctx context.Context, id string) error {
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeActionAPI) EmptyTrash(ctx context.Context) error {
	f.emptied++
	return nil
}

func loadedStore(ids ...string) *mailbox.Store {
	s := mailbox.New()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := make([]model.Message, len(ids))
	for i, id := range ids {
		msgs[i] = model.Message{ID: id, Folder: model.FolderInbox, ReceivedAt: base.Add(-time.Duration(i) * time.Minute)}
	}
	s.Load(model.FolderInbox, msgs)
	return s
}

func TestToggleAndExitSemantics(t *testing.T) {
	c := New(&fakeActionAPI{}, loadedStore("a", "b"), nil)

	c.EnterWith("a")
	assert.True(t, c.Active())
	assert.True(t, c.Selected("a"))

	c.Toggle("b")
	assert.Equal(t, 2, c.Count())

	c.Toggle("b")
	assert.True(t, c.Active(), "one message still selected")

	// Deselecting the last message exits selection mode.
	c.Toggle("a")
	assert.False(t, c.Active())
	assert.Equal(t, 0, c.Count())
}

func TestStageEmptySelection(t *testing.T) {
	c := New(&fakeActionAPI{}, loadedStore(), nil)
	c.Enter()

	_, err := c.Stage(ActionDelete)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	// Empty trash ignores the selection.
	batch, err := c.Stage(ActionEmptyTrash)
	require.NoError(t, err)
	assert.True(t, batch.RequiresConfirmation)
}

func TestStageConfirmationFlags(t *testing.T) {
	c := New(&fakeActionAPI{}, loadedStore("a"), nil)
	c.EnterWith("a")

	for action, wantConfirm := range map[Action]bool{
		ActionDelete:          false,
		ActionRestore:         false,
		ActionMarkRead:        false,
		ActionPermanentDelete: true,
	} {
		batch, err := c.Stage(action)
		require.NoError(t, err)
		assert.Equal(t, wantConfirm, batch.RequiresConfirmation, action.String())
	}
}

func TestExecuteRejectsUnconfirmed(t *testing.T) {
	api := &fakeActionAPI{}
	c := New(api, loadedStore("a"), nil)
	c.EnterWith("a")

	batch, err := c.Stage(ActionPermanentDelete)
	require.NoError(t, err)

	err = c.Execute(context.Background(), batch)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Empty(t, api.purged)

	batch.Confirm()
	require.NoError(t, c.Execute(context.Background(), batch))
	assert.Equal(t, []string{"a"}, api.purged)
}

func TestExecuteDeleteRemovesAndCallsPerID(t *testing.T) {
	api := &fakeActionAPI{}
	mail := loadedStore("a", "b", "c")
	c := New(api, mail, nil)
	c.EnterWith("a")
	c.Toggle("c")

	batch, err := c.Stage(ActionDelete)
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), batch))

	assert.Equal(t, []string{"a", "c"}, api.deleted, "server calls follow selection order")
	assert.Equal(t, 1, mail.Len())
	assert.False(t, c.Active(), "selection mode ends after execution")
}

func TestExecuteRollsBackFailedIDs(t *testing.T) {
	api := &fakeActionAPI{failIDs: map[string]error{"b": errors.New("boom")}}
	mail := loadedStore("a", "b", "c")
	c := New(api, mail, nil)
	c.EnterWith("a")
	c.Toggle("b")
	c.Toggle("c")

	batch, err := c.Stage(ActionDelete)
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), batch))

	assert.Equal(t, []string{"a", "c"}, api.deleted)
	// The failed id comes back; the others stay gone.
	_, ok := mail.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, mail.Len())
}

func TestExecuteEmptyTrash(t *testing.T) {
	api := &fakeActionAPI{}
	mail := loadedStore("a", "b")
	c := New(api, mail, nil)

	batch, err := c.Stage(ActionEmptyTrash)
	require.NoError(t, err)
	batch.Confirm()
	require.NoError(t, c.Execute(context.Background(), batch))

	assert.Equal(t, 1, api.emptied)
	assert.Equal(t, 0, mail.Len())
}

func TestExecuteMarkRead(t *testing.T) {
	api := &fakeActionAPI{}
	mail := loadedStore("a", "b")
	c := New(api, mail, nil)
	c.EnterWith("a")
	c.Toggle("b")

	batch, err := c.Stage(ActionMarkRead)
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), batch))

	assert.Equal(t, []string{"a", "b"}, api.markedRead)
	assert.Equal(t, 0, mail.UnreadCount())
}
