// Package selection manages multi-select mode over the message list and
// executes batched actions against the server.
package selection

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dtran/mailflow/internal/mailbox"
)

// Action is a batch operation over selected messages.
type Action int

const (
	// ActionDelete moves messages to trash. Reversible, no confirmation.
	ActionDelete Action = iota
	// ActionRestore moves trashed messages back to their folder.
	ActionRestore
	// ActionPermanentDelete erases trashed messages. Irreversible and
	// confirm-gated.
	ActionPermanentDelete
	// ActionMarkRead marks messages as read.
	ActionMarkRead
	// ActionEmptyTrash erases the whole trash folder. Irreversible and
	// confirm-gated; it ignores the selection.
	ActionEmptyTrash
)

// String returns a short label for the action.
func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionRestore:
		return "restore"
	case ActionPermanentDelete:
		return "permanent-delete"
	case ActionMarkRead:
		return "mark-read"
	case ActionEmptyTrash:
		return "empty-trash"
	}
	return "unknown"
}

// ErrNotConfirmed is returned when an irreversible batch reaches Execute
// without having been confirmed.
var ErrNotConfirmed = errors.New("selection: batch not confirmed")

// ErrEmptyBatch is returned when a batch is staged with nothing selected.
var ErrEmptyBatch = errors.New("selection: nothing selected")

// ActionAPI is the slice of the server client the coordinator consumes.
type ActionAPI interface {
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	PermanentDelete(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	EmptyTrash(ctx context.Context) error
}

// Batch is a staged action over a fixed set of ids. Irreversible batches
// must pass through Confirm before Execute accepts them.
type Batch struct {
	Action               Action
	IDs                  []string
	RequiresConfirmation bool
	confirmed            bool
}

// Confirm marks the batch as user-approved.
func (b *Batch) Confirm() {
	b.confirmed = true
}

// Coordinator tracks selection mode and runs batches. Selection order is
// preserved so the batch hits the server in the order the user picked.
type Coordinator struct {
	api  ActionAPI
	mail *mailbox.Store
	log  *slog.Logger

	mu       sync.Mutex
	active   bool
	order    []string
	selected map[string]struct{}
}

// New creates a Coordinator. log may be nil.
func New(api ActionAPI, mail *mailbox.Store, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		api:      api,
		mail:     mail,
		log:      log,
		selected: make(map[string]struct{}),
	}
}

// Active reports whether selection mode is on.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Enter switches selection mode on with nothing selected.
func (c *Coordinator) Enter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
}

// EnterWith switches selection mode on with id already selected, the
// long-press entry path.
func (c *Coordinator) EnterWith(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.addLocked(id)
}

// Toggle flips id's membership. Deselecting the last message exits
// selection mode.
func (c *Coordinator) Toggle(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		for i, sid := range c.order {
			if sid == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		if len(c.selected) == 0 {
			c.active = false
		}
		return
	}
	c.addLocked(id)
}

func (c *Coordinator) addLocked(id string) {
	if _, ok := c.selected[id]; ok {
		return
	}
	c.selected[id] = struct{}{}
	c.order = append(c.order, id)
}

// Selected reports whether id is selected.
func (c *Coordinator) Selected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[id]
	return ok
}

// Count returns the number of selected messages.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected)
}

// Exit leaves selection mode and clears the selection.
func (c *Coordinator) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Clear drops the selection, e.g. on folder change. Same as Exit.
func (c *Coordinator) Clear() {
	c.Exit()
}

func (c *Coordinator) clearLocked() {
	c.active = false
	c.order = nil
	c.selected = make(map[string]struct{})
}

// Stage builds a batch for the current selection. Irreversible actions come
// back flagged for confirmation; Execute rejects them until confirmed.
func (c *Coordinator) Stage(action Action) (*Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if action != ActionEmptyTrash && len(c.order) == 0 {
		return nil, ErrEmptyBatch
	}
	ids := make([]string, len(c.order))
	copy(ids, c.order)

	return &Batch{
		Action:               action,
		IDs:                  ids,
		RequiresConfirmation: action == ActionPermanentDelete || action == ActionEmptyTrash,
	}, nil
}

// Execute runs the batch: optimistic local update first, then one server
// call per id. A failed call rolls its message back; other ids proceed
// regardless. Selection mode ends either way.
func (c *Coordinator) Execute(ctx context.Context, batch *Batch) error {
	if batch.RequiresConfirmation && !batch.confirmed {
		return ErrNotConfirmed
	}
	defer c.Exit()

	switch batch.Action {
	case ActionEmptyTrash:
		c.mail.Clear()
		if err := c.api.EmptyTrash(ctx); err != nil {
			c.log.Warn("empty trash failed", "err", err)
			return err
		}
		return nil

	case ActionMarkRead:
		for _, id := range batch.IDs {
			c.mail.MarkRead(id)
			if err := c.api.MarkRead(ctx, id); err != nil {
				c.log.Warn("mark read failed", "id", id, "err", err)
			}
		}
		return nil

	case ActionDelete, ActionRestore, ActionPermanentDelete:
		c.mail.RemoveAll(batch.IDs)
		for _, id := range batch.IDs {
			if err := c.call(ctx, batch.Action, id); err != nil {
				c.log.Warn("batch action failed", "action", batch.Action, "id", id, "err", err)
				c.mail.Unremove(id)
			}
		}
		return nil
	}
	return nil
}

func (c *Coordinator) call(ctx context.Context, action Action, id string) error {
	switch action {
	case ActionDelete:
		return c.api.Delete(ctx, id)
	case ActionRestore:
		return c.api.Restore(ctx, id)
	case ActionPermanentDelete:
		return c.api.PermanentDelete(ctx, id)
	}
	return nil
}
