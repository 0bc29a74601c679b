package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	pool "github.com/libp2p/go-buffer-pool"

	"github.com/thunur/roadtopo/pkg/geom"
	"github.com/thunur/roadtopo/pkg/topology"
	"github.com/thunur/roadtopo/pkg/zone"
)

// CheckpointStore is the shared-filesystem zone checkpoint store
// (spec.md §4.7): one zstd-compressed file per zone, written
// atomically via temp-file-then-rename so a crash mid-write never
// leaves a corrupt checkpoint behind, plus a local, rank-private
// badger/v4 presence cache so a resuming rank can answer "do I already
// have zone N" without a filesystem stat storm across a large
// schedule. The cache only ever reflects a subset of what's really on
// disk; a cache miss falls through to a Stat, never the other way
// around, so a stale/missing cache is never unsafe, only slower.
type CheckpointStore struct {
	dir   string
	h     *geom.Handle
	level zstd.EncoderLevel

	presence *badger.DB

	encMu sync.Mutex
	enc   *zstd.Encoder
	decMu sync.Mutex
	dec   *zstd.Decoder
}

// NewCheckpointStore opens (creating if necessary) a checkpoint store
// rooted at dir, with its presence cache at dir/.presence. level is the
// zstd compression level (SPEC_FULL.md's checkpoint_compression_level
// tuning knob); 0 uses the package default.
func NewCheckpointStore(dir string, h *geom.Handle, level int) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating checkpoint dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, ".presence"))
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20
	opts.SyncWrites = false
	presence, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: opening presence cache: %w", err)
	}

	lvl := zstd.EncoderLevelFromZstd(level)
	if level <= 0 {
		lvl = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		presence.Close()
		return nil, fmt.Errorf("store: creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		presence.Close()
		return nil, fmt.Errorf("store: creating zstd decoder: %w", err)
	}

	return &CheckpointStore{dir: dir, h: h, level: lvl, presence: presence, enc: enc, dec: dec}, nil
}

func (c *CheckpointStore) Close() error {
	c.dec.Close()
	return c.presence.Close()
}

func (c *CheckpointStore) path(id zone.ID) string {
	return filepath.Join(c.dir, strconv.Itoa(int(id))+".zone")
}

func (c *CheckpointStore) presenceKey(id zone.ID) []byte {
	return []byte("zone:" + strconv.Itoa(int(id)))
}

// Has reports whether a checkpoint for id is known to exist, consulting
// the presence cache first and falling back to a Stat on a cache miss.
func (c *CheckpointStore) Has(id zone.ID) bool {
	err := c.presence.View(func(txn *badger.Txn) error {
		_, err := txn.Get(c.presenceKey(id))
		return err
	})
	if err == nil {
		return true
	}
	if _, statErr := os.Stat(c.path(id)); statErr == nil {
		c.markPresent(id)
		return true
	}
	return false
}

func (c *CheckpointStore) markPresent(id zone.ID) {
	_ = c.presence.Update(func(txn *badger.Txn) error {
		return txn.Set(c.presenceKey(id), []byte{1})
	})
}

// Load implements pkg/merge.Store: it restores the topology
// checkpointed for id, reporting (nil, false, nil) if none exists.
func (c *CheckpointStore) Load(ctx context.Context, id zone.ID) (*topology.Topology, bool, error) {
	if !c.Has(id) {
		return nil, false, nil
	}

	compressed, err := os.ReadFile(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: reading checkpoint %d: %w", id, err)
	}

	c.decMu.Lock()
	raw, err := c.dec.DecodeAll(compressed, pool.Get(len(compressed)*4)[:0])
	c.decMu.Unlock()
	if err != nil {
		return nil, false, fmt.Errorf("store: decompressing checkpoint %d: %w", id, err)
	}

	top, err := topology.Decode(bytes.NewReader(raw), c.h)
	if err != nil {
		return nil, false, fmt.Errorf("store: decoding checkpoint %d: %w", id, err)
	}
	return top, true, nil
}

// Save implements pkg/merge.Store: it atomically writes t's checkpoint
// for id, via a temp file in the same directory followed by a rename
// (rename is atomic on the same filesystem, so a reader never observes
// a partially written file), then marks the presence cache.
func (c *CheckpointStore) Save(ctx context.Context, id zone.ID, t *topology.Topology) error {
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		return fmt.Errorf("store: encoding checkpoint %d: %w", id, err)
	}

	c.encMu.Lock()
	compressed := c.enc.EncodeAll(buf.Bytes(), nil)
	c.encMu.Unlock()

	tmp, err := os.CreateTemp(c.dir, fmt.Sprintf("zone-%d-*.tmp", id))
	if err != nil {
		return fmt.Errorf("store: creating temp checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing temp checkpoint file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: syncing temp checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing temp checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, c.path(id)); err != nil {
		return fmt.Errorf("store: renaming checkpoint %d into place: %w", id, err)
	}
	c.markPresent(id)
	return nil
}

// Size reports the on-disk (compressed) size of id's checkpoint, for
// progress log lines ("checkpointed zone %d (%s)", humanize.Bytes(...)).
func (c *CheckpointStore) Size(id zone.ID) (string, error) {
	info, err := os.Stat(c.path(id))
	if err != nil {
		return "", err
	}
	return humanize.Bytes(uint64(info.Size())), nil
}
