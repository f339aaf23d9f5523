package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// Outcome reports what Apply did with an order.
type Outcome int

const (
	// Inserted means the id was unknown and the order became the first entry.
	Inserted Outcome = iota + 1
	// Replaced means a known order was overwritten in place.
	Replaced
	// Unchanged means the stored order was already identical.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Unchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ChangeKind classifies a Change delivered to subscribers.
type ChangeKind int

const (
	ChangeInserted ChangeKind = iota + 1
	ChangeReplaced
	ChangeRemoved
)

// Change describes one entry that changed. Before is nil for inserts and
// After is nil for removals.
type Change struct {
	Kind   ChangeKind
	Before *order.Order
	After  *order.Order
}

// Summary counts the effect of a ReplaceAll.
type Summary struct {
	Inserted  int `json:"inserted"`
	Replaced  int `json:"replaced"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

type entry struct {
	order       order.Order
	fingerprint string
}

// Store is a keyed, ordered collection of orders.
//
// Thread-safety: all methods are safe for concurrent use. Subscribers run
// on the goroutine that made the change, after the lock is released.
type Store struct {
	mu      sync.RWMutex
	ids     []string
	entries map[string]entry

	subMu sync.Mutex
	subs  []func(Change)
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Subscribe registers fn to receive every change. There is no unsubscribe;
// subscribers live as long as the store.
func (s *Store) Subscribe(fn func(Change)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Apply inserts or replaces a single order.
// Invalid orders are rejected and leave the store untouched.
func (s *Store) Apply(o order.Order) (Outcome, error) {
	if err := order.Validate(o); err != nil {
		return 0, err
	}
	fp, err := order.Fingerprint(o)
	if err != nil {
		return 0, err
	}
	o = o.Clone()

	s.mu.Lock()
	prev, exists := s.entries[o.ID]
	switch {
	case exists && prev.fingerprint == fp:
		s.mu.Unlock()
		return Unchanged, nil
	case exists:
		s.entries[o.ID] = entry{order: o, fingerprint: fp}
		s.mu.Unlock()
		s.notify([]Change{replaced(prev.order, o)})
		return Replaced, nil
	default:
		s.ids = append([]string{o.ID}, s.ids...)
		s.entries[o.ID] = entry{order: o, fingerprint: fp}
		s.mu.Unlock()
		s.notify([]Change{inserted(o)})
		return Inserted, nil
	}
}

// ReplaceAll makes the snapshot the entire content of the store, in
// snapshot order. Orders missing from the snapshot are removed. A repeated
// id keeps its first occurrence. If any order is invalid the store is left
// untouched.
func (s *Store) ReplaceAll(snapshot []order.Order) (Summary, error) {
	ids := make([]string, 0, len(snapshot))
	next := make(map[string]entry, len(snapshot))
	for _, o := range snapshot {
		if _, dup := next[o.ID]; dup {
			continue
		}
		if err := order.Validate(o); err != nil {
			return Summary{}, err
		}
		fp, err := order.Fingerprint(o)
		if err != nil {
			return Summary{}, err
		}
		ids = append(ids, o.ID)
		next[o.ID] = entry{order: o.Clone(), fingerprint: fp}
	}

	var sum Summary
	var changes []Change

	s.mu.Lock()
	for _, id := range ids {
		e := next[id]
		prev, exists := s.entries[id]
		switch {
		case !exists:
			sum.Inserted++
			changes = append(changes, inserted(e.order))
		case prev.fingerprint != e.fingerprint:
			sum.Replaced++
			changes = append(changes, replaced(prev.order, e.order))
		default:
			sum.Unchanged++
		}
	}
	for _, id := range s.ids {
		if _, kept := next[id]; !kept {
			sum.Removed++
			changes = append(changes, removed(s.entries[id].order))
		}
	}
	s.ids = ids
	s.entries = next
	s.mu.Unlock()

	s.notify(changes)
	return sum, nil
}

// Get returns a copy of the order with the given id.
func (s *Store) Get(id string) (order.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return order.Order{}, false
	}
	return e.order.Clone(), true
}

// All returns copies of every order in iteration order.
func (s *Store) All() []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]order.Order, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.entries[id].order.Clone()
	}
	return out
}

// Len returns the number of orders held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Store) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

// Subscribers get their own copies so they cannot reach stored data.
func inserted(o order.Order) Change {
	after := o.Clone()
	return Change{Kind: ChangeInserted, After: &after}
}

func replaced(prev, o order.Order) Change {
	before, after := prev.Clone(), o.Clone()
	return Change{Kind: ChangeReplaced, Before: &before, After: &after}
}

func removed(prev order.Order) Change {
	before := prev.Clone()
	return Change{Kind: ChangeRemoved, Before: &before}
}
