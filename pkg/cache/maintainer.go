package cache

import (
	"context"
	"sync/atomic"
)

// DefaultQueueSize bounds the number of pending maintenance requests.
const DefaultQueueSize = 4096

type requestKind int

const (
	requestStore requestKind = iota
	requestClear
	requestResize
	requestFlush
)

type request struct {
	kind     requestKind
	entry    Entry
	capacity int
	done     chan struct{}
}

// Maintainer is the only writer of a Table. Run must be running for stores,
// clears and resizes to take effect.
type Maintainer struct {
	table    *Table
	requests chan request
	stopped  chan struct{}
	dropped  atomic.Uint64
	applied  atomic.Uint64
}

// NewMaintainer creates a maintainer for table with a request queue of the
// given size.
func NewMaintainer(table *Table, queueSize int) *Maintainer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Maintainer{
		table:    table,
		requests: make(chan request, queueSize),
		stopped:  make(chan struct{}),
	}
}

// Run applies maintenance requests until ctx is cancelled.
func (m *Maintainer) Run(ctx context.Context) error {
	defer close(m.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.requests:
			m.apply(req)
		}
	}
}

func (m *Maintainer) apply(req request) {
	switch req.kind {
	case requestStore:
		m.table.insert(req.entry)
		m.applied.Add(1)
	case requestClear:
		m.table.clear()
	case requestResize:
		m.table.resize(req.capacity)
	}
	if req.done != nil {
		close(req.done)
	}
}

// Handle returns the handle searches use to reach the cache.
func (m *Maintainer) Handle() *Handle {
	return &Handle{m: m}
}

// Stats reports request counters.
type Stats struct {
	Entries  int
	Capacity int
	Applied  uint64
	Dropped  uint64
}

// Stats returns a point-in-time view of the table and the request counters.
func (m *Maintainer) Stats() Stats {
	return Stats{
		Entries:  m.table.Len(),
		Capacity: m.table.Capacity(),
		Applied:  m.applied.Load(),
		Dropped:  m.dropped.Load(),
	}
}

// Handle is the opaque view of the cache passed into a search. It is safe to
// use from any number of goroutines.
type Handle struct {
	m *Maintainer
}

// Lookup reads an entry without waiting on the maintainer.
func (h *Handle) Lookup(key Key) (Entry, bool) {
	return h.m.table.Lookup(key)
}

// Store queues e for insertion. It never blocks: when the queue is full the
// entry is dropped and false is returned.
func (h *Handle) Store(e Entry) bool {
	select {
	case h.m.requests <- request{kind: requestStore, entry: e}:
		return true
	default:
		h.m.dropped.Add(1)
		return false
	}
}

// Clear removes every entry. It returns once the maintainer has applied the
// request, or immediately if the maintainer is no longer running.
func (h *Handle) Clear() {
	h.send(request{kind: requestClear})
}

// Resize changes the table capacity, evicting entries if it shrinks.
func (h *Handle) Resize(capacity int) {
	h.send(request{kind: requestResize, capacity: capacity})
}

// Flush waits until every request queued before it has been applied.
func (h *Handle) Flush() {
	h.send(request{kind: requestFlush})
}

func (h *Handle) send(req request) {
	req.done = make(chan struct{})
	select {
	case h.m.requests <- req:
	case <-h.m.stopped:
		return
	}
	select {
	case <-req.done:
	case <-h.m.stopped:
	}
}
