// Package mailbox holds the folder-scoped message cache. The store keeps one
// cache, for the folder currently being viewed; switching folders replaces it
// wholesale. Local mutations (star, delete, restore) apply immediately and are
// remembered as pending until a later server snapshot confirms them.
package mailbox

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dtran/mailflow/internal/model"
)

// Store is the folder-scoped message cache.
type Store struct {
	mu     sync.Mutex
	folder model.Folder
	order  []string
	byID   map[string]*entry
	// removed holds messages optimistically deleted or restored out of this
	// folder, keyed by id. They are hidden from reads and shielded from
	// resurrection by Reconcile until a snapshot arrives without them, which
	// confirms the move server-side.
	removed map[string]model.Message
	loaded  bool
}

type entry struct {
	msg model.Message

	// pendingStar is the locally desired star value awaiting server
	// confirmation, nil when no star mutation is in flight.
	pendingStar *bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*entry),
		removed: make(map[string]model.Message),
	}
}

// Folder returns the folder the cache currently holds.
func (s *Store) Folder() model.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folder
}

// Loaded reports whether at least one snapshot has been applied since the
// last folder switch.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Load replaces the cache with a fresh snapshot of the given folder. All
// pending mutation state is discarded: a folder switch abandons any in-flight
// optimistic bookkeeping for the previous folder.
func (s *Store) Load(folder model.Folder, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.folder = folder
	s.order = s.order[:0]
	s.byID = make(map[string]*entry, len(msgs))
	s.removed = make(map[string]model.Message)
	s.loaded = true

	for _, m := range msgs {
		if _, dup := s.byID[m.ID]; dup {
			continue
		}
		s.order = append(s.order, m.ID)
		s.byID[m.ID] = &entry{msg: m}
	}
}

// Reset empties the store and marks it unloaded, used when switching folders
// before the first snapshot of the new folder arrives.
func (s *Store) Reset(folder model.Folder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folder = folder
	s.order = s.order[:0]
	s.byID = make(map[string]*entry)
	s.removed = make(map[string]model.Message)
	s.loaded = false
}

// Reconcile merges a successfully fetched server snapshot for the current
// folder into the cache. Entries present in both keep the server's fields,
// except that a pending star mutation keeps the locally desired value until
// the server reports it (at which point the pending flag clears). Entries
// absent from the snapshot are dropped, so folder moves surface as
// disappearance. Entries removed optimistically are skipped until the server
// snapshot confirms their absence.
//
// Callers must only pass snapshots from successful fetches: an empty result
// from a failed request must never reach Reconcile, or it would wipe the
// cache.
func (s *Store) Reconcile(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inSnapshot := make(map[string]bool, len(msgs))
	newOrder := make([]string, 0, len(msgs))
	newByID := make(map[string]*entry, len(msgs))

	for _, m := range msgs {
		inSnapshot[m.ID] = true

		// Still awaiting confirmation of an optimistic removal; do not
		// resurrect it.
		if _, gone := s.removed[m.ID]; gone {
			continue
		}

		e := &entry{msg: m}
		if prev, ok := s.byID[m.ID]; ok && prev.pendingStar != nil {
			if m.IsStarred == *prev.pendingStar {
				// Server caught up with the mutation.
			} else {
				e.msg.IsStarred = *prev.pendingStar
				e.pendingStar = prev.pendingStar
			}
		}
		newOrder = append(newOrder, m.ID)
		newByID[m.ID] = e
	}

	// A removal the server no longer reports is confirmed; forget it.
	for id := range s.removed {
		if !inSnapshot[id] {
			delete(s.removed, id)
		}
	}

	s.order = newOrder
	s.byID = newByID
	s.loaded = true
}

// Messages returns a copy of the visible cache in display order.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].msg)
	}
	return out
}

// Get returns the visible message with the given id.
func (s *Store) Get(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return model.Message{}, false
	}
	return e.msg, true
}

// Len returns the number of visible messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// UnreadCount counts visible unread messages.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.order {
		if !s.byID[id].msg.IsRead {
			n++
		}
	}
	return n
}

// MarkRead flags a message read locally (opening it).
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		e.msg.IsRead = true
	}
}

// ApplyStar optimistically sets the star flag and marks the entry pending
// until a server snapshot confirms the value.
func (s *Store) ApplyStar(id string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("message %s not in %s cache", id, s.folder)
	}
	e.msg.IsStarred = starred
	want := starred
	e.pendingStar = &want
	return nil
}

// RollbackStar undoes an optimistic star mutation after the network call
// failed. Unlike chat sends, failed mailbox mutations roll back.
func (s *Store) RollbackStar(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok || e.pendingStar == nil {
		return
	}
	e.msg.IsStarred = !*e.pendingStar
	e.pendingStar = nil
}

// Remove optimistically takes a message out of the cache for a delete or
// restore. The removed copy is retained so the mutation can be rolled back,
// and Reconcile will not re-add the id until the server confirms the move.
func (s *Store) Remove(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// RemoveAll applies Remove to each id, returning the messages actually
// removed. Used by batch destructive actions.
func (s *Store) RemoveAll(ids []string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.removeLocked(id); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) removeLocked(id string) (model.Message, bool) {
	e, ok := s.byID[id]
	if !ok {
		return model.Message{}, false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.removed[id] = e.msg
	return e.msg, true
}

// Unremove rolls back an optimistic removal after the network call failed,
// reinserting the message in received-time order.
func (s *Store) Unremove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.removed[id]
	if !ok {
		return
	}
	delete(s.removed, id)
	s.byID[id] = &entry{msg: m}
	s.order = append(s.order, id)
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.byID[s.order[i]].msg.ReceivedAt.After(s.byID[s.order[j]].msg.ReceivedAt)
	})
}

// Clear empties the visible cache (emptying trash). Removal bookkeeping is
// dropped too: the next snapshot is authoritative.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.byID = make(map[string]*entry)
	s.removed = make(map[string]model.Message)
}
