// Package db adapts the concurrent B+ tree and chunk store into the
// single-call Put/Get/Contains shape a content-defined-chunking
// filesystem backend expects, accepting Container values instead of raw
// bytes and keeping a chunk store lifecycle bound to the tree's.
//
// An open flag guarded by a mutex wraps an index (bptree.Tree) and a
// data layer (chunkstore.Store) behind Put/Get/Close.
package db

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ssargent/chunktree/pkg/bptree"
	"github.com/ssargent/chunktree/pkg/chunkstore"
	"github.com/ssargent/chunktree/pkg/treemetrics"
)

// Config controls how Open creates or reopens a Database.
type Config struct {
	DataDir        string
	T              int
	MaxSegmentSize uint64
	FsyncInterval  time.Duration
}

func (c Config) chunkstoreConfig() chunkstore.Config {
	return chunkstore.Config{
		DataDir:        c.DataDir,
		MaxSegmentSize: c.MaxSegmentSize,
		FsyncInterval:  c.FsyncInterval,
	}
}

func bytesCompare(a, b []byte) int { return bytes.Compare(a, b) }

// Database is a byte-keyed store backed by a bptree.Tree and its
// chunkstore.Store. It is safe for concurrent use.
type Database struct {
	mu     sync.Mutex
	tree   *bptree.Tree[[]byte]
	chunks *chunkstore.Store
	isOpen bool
}

// Open creates a new database in cfg.DataDir, or attaches to an existing
// one (the chunk store resumes from its highest-numbered segment; the
// tree itself starts empty, since there is no tree state on disk without
// a snapshot — see OpenFromSnapshot).
func Open(cfg Config) (*Database, error) {
	chunks, err := chunkstore.Open(cfg.chunkstoreConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open chunk store: %w", err)
	}
	tree := bptree.New[[]byte](cfg.T, bytesCompare, bptree.BytesKeyCodec{}, chunks)
	return &Database{tree: tree, chunks: chunks, isOpen: true}, nil
}

// OpenFromSnapshot restores a database previously persisted by Save.
func OpenFromSnapshot(snapshotPath string, cfg Config) (*Database, error) {
	tree, err := bptree.Load[[]byte](snapshotPath, cfg.T, bptree.LoadOptions[[]byte]{
		Compare:       bytesCompare,
		Codec:         bptree.BytesKeyCodec{},
		ChunkStoreCfg: cfg.chunkstoreConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("db: load snapshot: %w", err)
	}
	return &Database{tree: tree, chunks: tree.Chunks(), isOpen: true}, nil
}

// SetMetrics attaches tree and chunk-store metrics sinks.
func (d *Database) SetMetrics(tree *treemetrics.Tree, chunks *treemetrics.ChunkStore) {
	d.tree.SetMetrics(tree)
	d.chunks.SetMetrics(chunks)
}

// Put stores value under key. Only the chunk-bytes Container variant can
// be persisted; anything else returns ErrUnsupportedContainer.
func (d *Database) Put(key []byte, value Container) error {
	d.mu.Lock()
	if !d.isOpen {
		d.mu.Unlock()
		return errClosed
	}
	d.mu.Unlock()

	chunk, err := value.Extract()
	if err != nil {
		return err
	}
	return d.tree.Insert(key, chunk)
}

// Get retrieves the Container stored under key.
func (d *Database) Get(key []byte) (Container, error) {
	d.mu.Lock()
	if !d.isOpen {
		d.mu.Unlock()
		return Container{}, errClosed
	}
	d.mu.Unlock()

	chunk, err := d.tree.Get(key)
	if err != nil {
		return Container{}, err
	}
	return NewChunkContainer(chunk), nil
}

// Contains reports whether key is present.
func (d *Database) Contains(key []byte) bool {
	return d.tree.Contains(key)
}

// Scan returns an iterator over all entries in key order.
func (d *Database) Scan() *bptree.Iterator[[]byte] {
	return d.tree.Iterator()
}

// Save persists the tree to path.
func (d *Database) Save(path string) error {
	return d.tree.Save(path)
}

// Close flushes and closes the backing chunk store. The database must
// not be used afterward.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isOpen {
		return nil
	}
	d.isOpen = false
	return d.chunks.Close()
}

var errClosed = fmt.Errorf("db: database is not open")
