package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIDs_StartsAtZero(t *testing.T) {
	ids := NewSequenceIDs("p")
	assert.Equal(t, int64(0), ids.Current())
}

func TestSequenceIDs_Increments(t *testing.T) {
	ids := NewSequenceIDs("p")

	assert.Equal(t, "p-1", ids.Generate())
	assert.Equal(t, "p-2", ids.Generate())
	assert.Equal(t, "p-3", ids.Generate())
	assert.Equal(t, int64(3), ids.Current())
}

func TestSequenceIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "doc-1", NewSequenceIDs("").Generate())
}

func TestSequenceIDs_Reset(t *testing.T) {
	ids := NewSequenceIDs("c")
	ids.Generate()
	ids.Generate()

	ids.Reset()
	assert.Equal(t, int64(0), ids.Current())
	assert.Equal(t, "c-1", ids.Generate())
}

func TestSequenceIDs_ThreadSafe(t *testing.T) {
	ids := NewSequenceIDs("t")
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	results := make([][]string, numGoroutines)
	for i := range numGoroutines {
		results[i] = make([]string, callsPerGoroutine)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := range callsPerGoroutine {
				results[idx][j] = ids.Generate()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, row := range results {
		for _, id := range row {
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), ids.Current())
}
