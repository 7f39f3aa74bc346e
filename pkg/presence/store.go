// Package presence maintains the live mapping from resource ID to the set of
// users currently viewing that resource. The server holds the authoritative
// copy; each client holds a derived copy patched from broadcast events.
package presence

import (
	"sync"

	"workspace-service/pkg/protocol"
)

// Snapshot maps resource ID to the users currently viewing that resource.
// A (resourceId, userId) pair appears at most once.
type Snapshot map[string][]protocol.ResourcePresence

// Listener is invoked after every mutation with the new snapshot reference.
type Listener func(Snapshot)

// Store holds one presence snapshot. Mutations install a fresh top-level map
// so that consumers relying on reference-equality change detection see every
// update.
type Store struct {
	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []Listener
}

func NewStore() *Store {
	return &Store{snapshot: make(Snapshot)}
}

// Subscribe registers a listener for snapshot changes. Listeners are invoked
// synchronously from the mutating call, outside the store lock.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Get returns the presence entries for a resource, never nil.
func (s *Store) Get(resourceID string) []protocol.ResourcePresence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.snapshot[resourceID]
	if !ok {
		return []protocol.ResourcePresence{}
	}
	out := make([]protocol.ResourcePresence, len(entries))
	copy(out, entries)
	return out
}

// Snapshot returns the current snapshot reference. Callers must treat it as
// read-only; the store never mutates an installed snapshot in place.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Entries flattens the snapshot into a single list, suitable for a
// presence_sync payload.
func (s *Store) Entries() []protocol.ResourcePresence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.ResourcePresence, 0, len(s.snapshot))
	for _, entries := range s.snapshot {
		out = append(out, entries...)
	}
	return out
}

// ApplyFullSync replaces the whole snapshot with the given entries, grouped by
// resource ID. Used on presence_sync.
func (s *Store) ApplyFullSync(entries []protocol.ResourcePresence) {
	s.mu.Lock()
	next := make(Snapshot, len(entries))
	for _, entry := range entries {
		next[entry.ResourceID] = append(next[entry.ResourceID], entry)
	}
	s.snapshot = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
}

// ApplyJoin inserts an entry unless the user already has one for that
// resource (idempotent join).
func (s *Store) ApplyJoin(entry protocol.ResourcePresence) {
	s.mu.Lock()
	for _, existing := range s.snapshot[entry.ResourceID] {
		if existing.UserID == entry.UserID {
			s.mu.Unlock()
			return
		}
	}

	next := s.clone()
	next[entry.ResourceID] = append(next[entry.ResourceID], entry)
	s.snapshot = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
}

// ApplyLeave removes the user's entry for a resource. An empty resource list
// is removed wholesale to keep the mapping sparse.
func (s *Store) ApplyLeave(resourceID, userID string) {
	s.mu.Lock()
	entries, ok := s.snapshot[resourceID]
	if !ok {
		s.mu.Unlock()
		return
	}

	remaining := make([]protocol.ResourcePresence, 0, len(entries))
	for _, entry := range entries {
		if entry.UserID != userID {
			remaining = append(remaining, entry)
		}
	}
	if len(remaining) == len(entries) {
		s.mu.Unlock()
		return
	}

	next := s.clone()
	if len(remaining) == 0 {
		delete(next, resourceID)
	} else {
		next[resourceID] = remaining
	}
	s.snapshot = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
}

// ApplyResourceDeleted drops the resource key wholesale; presence for a
// deleted resource is meaningless.
func (s *Store) ApplyResourceDeleted(resourceID string) {
	s.mu.Lock()
	if _, ok := s.snapshot[resourceID]; !ok {
		s.mu.Unlock()
		return
	}

	next := s.clone()
	delete(next, resourceID)
	s.snapshot = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
}

// Clear empties the snapshot. Called on deliberate client teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	next := make(Snapshot)
	s.snapshot = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
}

// clone copies the top-level map; entry slices are shared with the previous
// snapshot until individually replaced. Caller must hold the lock.
func (s *Store) clone() Snapshot {
	next := make(Snapshot, len(s.snapshot))
	for resourceID, entries := range s.snapshot {
		next[resourceID] = entries
	}
	return next
}

func notify(listeners []Listener, snapshot Snapshot) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
