package cache

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
)

func startMaintainer(t *testing.T, table *Table, queue int) *Maintainer {
	t.Helper()
	m := NewMaintainer(table, queue)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return m
}

func TestKeyOfFENIgnoresMoveCounters(t *testing.T) {
	a := KeyOfFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	b := KeyOfFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 7 31")
	if a != b {
		t.Fatalf("keys differ for same position: %s vs %s", a, b)
	}
	c := KeyOfFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e3 0 1")
	if a == c {
		t.Fatal("keys equal for different side to move")
	}
}

func TestTableDepthPreferredReplacement(t *testing.T) {
	table := NewTable(16)
	key := KeyOfFEN("8/8/8/8/8/8/8/K6k w - - 0 1")

	table.insert(Entry{Key: key, Depth: 4, Score: 10, Bound: BoundLower})
	table.insert(Entry{Key: key, Depth: 2, Score: 99, Bound: BoundExact})
	if e, _ := table.Lookup(key); e.Depth != 4 {
		t.Fatalf("shallower entry replaced deeper one: %+v", e)
	}

	table.insert(Entry{Key: key, Depth: 4, Score: 20, Bound: BoundExact})
	table.insert(Entry{Key: key, Depth: 4, Score: 30, Bound: BoundUpper})
	e, _ := table.Lookup(key)
	if e.Score != 20 || e.Bound != BoundExact {
		t.Fatalf("exact entry not kept at equal depth: %+v", e)
	}
}

func TestTableEvictsAtCapacity(t *testing.T) {
	table := NewTable(4)
	for i := 0; i < 20; i++ {
		var k Key
		k[0] = byte(i)
		table.insert(Entry{Key: k, Depth: i})
	}
	if table.Len() != 4 {
		t.Fatalf("Len = %d, want 4", table.Len())
	}
}

func TestMaintainerAppliesRequests(t *testing.T) {
	table := NewTable(8)
	m := startMaintainer(t, table, 16)
	h := m.Handle()

	key := KeyOfFEN("8/8/8/8/8/8/8/K6k w - - 0 1")
	if !h.Store(Entry{Key: key, Depth: 3, Score: 5, Move: "a1a2"}) {
		t.Fatal("Store dropped with an empty queue")
	}
	h.Flush()
	e, ok := h.Lookup(key)
	if !ok || e.Move != "a1a2" {
		t.Fatalf("Lookup after flush = %+v, %v", e, ok)
	}

	h.Resize(2)
	if table.Capacity() != 2 {
		t.Fatalf("Capacity = %d, want 2", table.Capacity())
	}

	h.Clear()
	if _, ok := h.Lookup(key); ok {
		t.Fatal("entry survived Clear")
	}
	if st := m.Stats(); st.Applied != 1 || st.Entries != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestStoreDropsWhenQueueFull(t *testing.T) {
	m := NewMaintainer(NewTable(8), 1)
	h := m.Handle()
	if !h.Store(Entry{Depth: 1}) {
		t.Fatal("first Store should fit in the queue")
	}
	if h.Store(Entry{Depth: 2}) {
		t.Fatal("second Store should be dropped")
	}
	if got := m.Stats().Dropped; got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestHandleDoesNotBlockAfterStop(t *testing.T) {
	m := NewMaintainer(NewTable(8), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = m.Run(ctx)
	m.Handle().Clear()
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snap")
	src := NewTable(32)
	for i := 0; i < 10; i++ {
		var k Key
		k[0], k[31] = byte(i), byte(i*3)
		src.insert(Entry{Key: k, Depth: i % 4, Score: i * 7, Bound: Bound(i % 3), Move: "e2e4"})
	}
	if err := src.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	dst := NewTable(32)
	n, err := dst.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if n != 10 {
		t.Fatalf("loaded %d entries, want 10", n)
	}
	var k Key
	k[0], k[31] = 5, 15
	e, ok := dst.Lookup(k)
	if !ok || e.Score != 35 || e.Depth != 1 || e.Bound != BoundUpper {
		t.Fatalf("restored entry = %+v, %v", e, ok)
	}

	info, err := ReadSnapshotInfo(path)
	if err != nil {
		t.Fatalf("ReadSnapshotInfo failed: %v", err)
	}
	if info.Entries != 10 || info.Capacity != 32 || info.MaxDepth != 3 || info.ByDepth[0] != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestLoadSnapshotKeepsDeepestWhenTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snap")
	src := NewTable(8)
	for i := 0; i < 8; i++ {
		var k Key
		k[0] = byte(i)
		src.insert(Entry{Key: k, Depth: i})
	}
	if err := src.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	dst := NewTable(2)
	if _, err := dst.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	for _, depth := range []int{6, 7} {
		var k Key
		k[0] = byte(depth)
		if _, ok := dst.Lookup(k); !ok {
			t.Fatalf("depth %d entry missing after restore", depth)
		}
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	_, err := NewTable(8).LoadSnapshot(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
