package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs hands out predictable request ids: "<prefix>-1", "<prefix>-2"...
//
// Thread-safety: SequenceIDs is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "req".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next id.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
