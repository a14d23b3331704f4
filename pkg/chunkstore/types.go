package chunkstore

import "time"

// DefaultMaxSegmentSize is the default upper bound on a segment file's
// size (2 MiB).
const DefaultMaxSegmentSize = 2 << 20

// Config holds the parameters needed to open a chunk store.
type Config struct {
	// DataDir is the directory holding segment files. Created if absent.
	DataDir string
	// MaxSegmentSize bounds the size a segment is allowed to reach before
	// rotation is considered. A single write may still push a segment past
	// this bound; see Store.Write.
	MaxSegmentSize uint64
	// FsyncInterval, if non-zero, batches fsyncs on a timer instead of
	// syncing after every write.
	FsyncInterval time.Duration
}

// ChunkHandle locates a previously written chunk: the segment it lives in,
// its byte offset within that segment, and its length.
type ChunkHandle struct {
	Segment string
	Offset  uint64
	Size    uint64
}

// StoreError is a lightweight sentinel error type: a fixed message behind
// a named type, so callers can match with errors.Is against one of the
// package-level Err* values.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string { return e.Message }

// Sentinel errors surfaced at the chunk-store boundary.
var (
	ErrNotFound  = &StoreError{"chunk segment not found"}
	ErrShortRead = &StoreError{"short read: segment truncated or handle out of range"}
)
