package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable document ids: prefix-1, prefix-2, ...
//
// Unlike store.FixedGenerator, SequenceIDs never runs out and can be reset
// so the same seed produces identical ids across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceIDs creates a generator starting at 0. An empty prefix
// defaults to "doc".
//
// The first call to Generate() returns "<prefix>-1".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "doc"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Current returns the number of ids generated so far.
func (g *SequenceIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next call to Generate() returns
// "<prefix>-1".
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
