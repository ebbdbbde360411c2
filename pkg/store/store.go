// The store package holds the in-memory index of replaceable events,
// keyed by (kind, pubkey, d). Only the latest event per key is retained,
// where "latest" means the larger (created_at, id) pair.
// The index is not persisted: a restart starts from an empty view.
package store

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nsyte/gateway/pkg/events"
)

// Key addresses a replaceable event.
// D is the value of the first "d" tag, "" when absent.
type Key struct {
	Kind   int
	Pubkey string
	D      string
}

// KeyOf derives the replaceable-event key of an event.
func KeyOf(event *nostr.Event) Key {
	key := Key{Kind: event.Kind, Pubkey: event.PubKey}
	if nostr.IsAddressableKind(event.Kind) {
		key.D, _ = events.Find(event.Tags, "d")
	}
	return key
}

type Store struct {
	mu     sync.RWMutex
	latest map[Key]*nostr.Event
}

func New() *Store {
	return &Store{latest: make(map[Key]*nostr.Event)}
}

// Save folds the event into the index, keeping the one with the larger
// (created_at, id). It reports whether the stored event for its key changed.
func (s *Store) Save(event *nostr.Event) bool {
	key := KeyOf(event)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.latest[key]
	if ok && !Newer(event, current) {
		return false
	}

	s.latest[key] = event
	return true
}

// Replaceable returns the latest event for (kind, pubkey, d), if any.
func (s *Store) Replaceable(kind int, pubkey, d string) (*nostr.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.latest[Key{Kind: kind, Pubkey: pubkey, D: d}]
	return event, ok
}

// Size returns the number of keys in the index.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}

// Newer reports whether a supersedes b, comparing (created_at, id).
// The id tiebreak makes the order total, so concurrent folds converge
// on the same winner regardless of arrival order.
func Newer(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}
