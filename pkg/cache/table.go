// Package cache is the transposition cache shared by search invocations.
//
// Lookups go straight to the table under a read lock. Every structural change
// (insert, eviction, clear, resize) is made by a single Maintainer goroutine
// that receives requests over a channel, so concurrent searches never block
// each other on writes.
package cache

import (
	"sort"
	"sync"
)

// Bound says how Score relates to the true value of the position.
type Bound uint8

const (
	BoundExact Bound = iota
	BoundLower
	BoundUpper
)

// Entry is one cached search result.
type Entry struct {
	Key   Key    `cbor:"1,keyasint"`
	Depth int    `cbor:"2,keyasint"`
	Score int    `cbor:"3,keyasint"`
	Bound Bound  `cbor:"4,keyasint"`
	Move  string `cbor:"5,keyasint,omitempty"`
}

// DefaultCapacity is the number of entries a table holds unless configured.
const DefaultCapacity = 1 << 20

// evictionSample is how many entries are inspected to pick an eviction victim.
const evictionSample = 8

// Table is the shared store. Readers use Lookup; writers must go through a
// Maintainer.
type Table struct {
	mu       sync.RWMutex
	entries  map[Key]Entry
	capacity int
}

// NewTable creates an empty table holding at most capacity entries.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		entries:  make(map[Key]Entry),
		capacity: capacity,
	}
}

// Lookup returns the entry stored under key.
func (t *Table) Lookup(key Key) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

// Len returns the number of stored entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Capacity returns the configured maximum number of entries.
func (t *Table) Capacity() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.capacity
}

// insert stores e using depth-preferred replacement: an existing entry for
// the same key is only overwritten by an equal or deeper result, or by an
// exact score at the same depth.
func (t *Table) insert(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[e.Key]; ok {
		if e.Depth < old.Depth {
			return
		}
		if e.Depth == old.Depth && old.Bound == BoundExact && e.Bound != BoundExact {
			return
		}
		t.entries[e.Key] = e
		return
	}
	for len(t.entries) >= t.capacity {
		t.evictLocked()
	}
	t.entries[e.Key] = e
}

// evictLocked drops the shallowest entry out of a small random sample.
func (t *Table) evictLocked() {
	var (
		victim  Key
		depth   int
		sampled int
	)
	for k, e := range t.entries {
		if sampled == 0 || e.Depth < depth {
			victim, depth = k, e.Depth
		}
		sampled++
		if sampled >= evictionSample {
			break
		}
	}
	if sampled > 0 {
		delete(t.entries, victim)
	}
}

func (t *Table) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[Key]Entry)
}

func (t *Table) resize(capacity int) {
	if capacity <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capacity = capacity
	for len(t.entries) > t.capacity {
		t.evictLocked()
	}
}

func (t *Table) snapshotEntries() ([]Entry, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out, t.capacity
}

// restore replaces the contents with entries, keeping the configured
// capacity. Deeper entries win when the snapshot does not fit.
func (t *Table) restore(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Depth > entries[j].Depth })
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[Key]Entry, len(entries))
	for _, e := range entries {
		if len(t.entries) >= t.capacity {
			break
		}
		t.entries[e.Key] = e
	}
}
