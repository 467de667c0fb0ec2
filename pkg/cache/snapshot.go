package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// snapshotVersion is bumped whenever Entry or Key derivation changes.
const snapshotVersion = 1

type snapshotFile struct {
	Version  int     `cbor:"1,keyasint"`
	Capacity int     `cbor:"2,keyasint"`
	Entries  []Entry `cbor:"3,keyasint"`
}

var (
	encMode     cbor.EncMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// SaveSnapshot writes the table to path as zstd-compressed CBOR. The file is
// replaced atomically.
func (t *Table) SaveSnapshot(path string) error {
	entries, capacity := t.snapshotEntries()
	raw, err := encMode.Marshal(snapshotFile{
		Version:  snapshotVersion,
		Capacity: capacity,
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}
	data := zstdEncoder.EncodeAll(raw, nil)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create cache snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace cache snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the table contents with the snapshot at path and
// returns the number of entries loaded. It must be called before the
// table's Maintainer starts.
func (t *Table) LoadSnapshot(path string) (int, error) {
	snap, err := readSnapshot(path)
	if err != nil {
		return 0, err
	}
	t.restore(snap.Entries)
	return t.Len(), nil
}

// SnapshotInfo summarises a snapshot file.
type SnapshotInfo struct {
	Version         int
	Capacity        int
	Entries         int
	CompressedBytes int
	MaxDepth        int
	ByDepth         map[int]int
}

// ReadSnapshotInfo reads a snapshot without loading it into a table.
func ReadSnapshotInfo(path string) (SnapshotInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to read cache snapshot: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return SnapshotInfo{}, err
	}
	info := SnapshotInfo{
		Version:         snap.Version,
		Capacity:        snap.Capacity,
		Entries:         len(snap.Entries),
		CompressedBytes: len(data),
		ByDepth:         make(map[int]int),
	}
	for _, e := range snap.Entries {
		info.ByDepth[e.Depth]++
		info.MaxDepth = max(info.MaxDepth, e.Depth)
	}
	return info, nil
}

func readSnapshot(path string) (snapshotFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshotFile{}, fmt.Errorf("failed to read cache snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data []byte) (snapshotFile, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return snapshotFile{}, fmt.Errorf("failed to decompress cache snapshot: %w", err)
	}
	var snap snapshotFile
	if err := cbor.Unmarshal(raw, &snap); err != nil {
		return snapshotFile{}, fmt.Errorf("failed to decode cache snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return snapshotFile{}, fmt.Errorf("unsupported cache snapshot version %d", snap.Version)
	}
	return snap, nil
}
