// Package chunkstore implements an append-only, segment-rotating chunk
// data store: a directory of fixed-maximum-size segment files, written
// sequentially, read back by positional I/O.
//
// Writes go through a buffered, mutex-guarded writer for the current
// segment; reads open a fresh file handle per call and seek to the
// requested offset, so reads never contend with the writer's buffer.
package chunkstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ssargent/chunktree/pkg/treemetrics"
)

// Store is the append-only chunk data store for a single data directory.
// Writers serialize on a single mutex protecting the current-segment
// triple (index, offset, file); readers open files fresh per call and
// never block on, or block, a writer.
type Store struct {
	dataDir        string
	maxSegmentSize uint64
	fsyncInterval  time.Duration

	mu         sync.Mutex
	segIndex   uint64
	offset     uint64
	file       *os.File
	writer     *bufio.Writer
	fsyncTimer *time.Timer

	metrics *treemetrics.ChunkStore
}

// Open creates the data directory if absent and opens segment "0" (or the
// highest-numbered existing segment) for appending.
func Open(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, &StoreError{"data directory must be set"}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("chunkstore: create data dir: %w", err)
	}

	maxSize := cfg.MaxSegmentSize
	if maxSize == 0 {
		maxSize = DefaultMaxSegmentSize
	}

	segIndex, err := highestSegmentIndex(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dataDir:        cfg.DataDir,
		maxSegmentSize: maxSize,
		fsyncInterval:  cfg.FsyncInterval,
	}
	if err := s.openSegment(segIndex); err != nil {
		return nil, err
	}
	return s, nil
}

// SetMetrics attaches a metrics sink. Safe to call once, before first use.
func (s *Store) SetMetrics(m *treemetrics.ChunkStore) { s.metrics = m }

func highestSegmentIndex(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("chunkstore: list data dir: %w", err)
	}
	var max uint64
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue // not a segment file, ignore
		}
		if !found || n > max {
			max = n
			found = true
		}
	}
	return max, nil
}

func (s *Store) segmentPath(index uint64) string {
	return filepath.Join(s.dataDir, strconv.FormatUint(index, 10))
}

// openSegment opens (creating if needed) the segment at index for append,
// replacing any segment currently open for writing. Must be called with
// s.mu held, or during construction before the store is published.
func (s *Store) openSegment(index uint64) error {
	path := s.segmentPath(index)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("chunkstore: open segment %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return fmt.Errorf("chunkstore: seek segment %s: %w", path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("chunkstore: stat segment %s: %w", path, err)
	}

	s.segIndex = index
	s.offset = uint64(stat.Size())
	s.file = file
	s.writer = bufio.NewWriterSize(file, 64*1024)
	return nil
}

// rotate creates a fresh segment file, truncating any previous file of
// that name.
func (s *Store) rotate() error {
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("chunkstore: close segment for rotation: %w", err)
	}

	nextIndex := s.segIndex + 1
	path := s.segmentPath(nextIndex)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("chunkstore: create segment %s: %w", path, err)
	}

	s.segIndex = nextIndex
	s.offset = 0
	s.file = file
	s.writer = bufio.NewWriterSize(file, 64*1024)
	if s.metrics != nil {
		s.metrics.ObserveRotation()
	}
	return nil
}

// Write appends value to the current segment, rotating first if the
// current cursor is already at or past maxSegmentSize. Rotation is
// checked before, not after, the write: a single value may therefore
// exceed maxSegmentSize, and the next rotation only happens on the
// following call.
func (s *Store) Write(value []byte) (ChunkHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offset >= s.maxSegmentSize {
		if err := s.rotate(); err != nil {
			return ChunkHandle{}, err
		}
	}

	n, err := s.writer.Write(value)
	if err != nil {
		return ChunkHandle{}, fmt.Errorf("chunkstore: write: %w", err)
	}

	handle := ChunkHandle{
		Segment: strconv.FormatUint(s.segIndex, 10),
		Offset:  s.offset,
		Size:    uint64(n),
	}
	s.offset += uint64(n)

	if s.fsyncInterval == 0 {
		if err := s.flushLocked(); err != nil {
			return ChunkHandle{}, err
		}
	} else {
		if err := s.writer.Flush(); err != nil {
			return ChunkHandle{}, fmt.Errorf("chunkstore: flush: %w", err)
		}
		s.scheduleFsync()
	}

	if s.metrics != nil {
		s.metrics.ObserveWrite(n)
	}
	return handle, nil
}

func (s *Store) scheduleFsync() {
	if s.fsyncTimer != nil {
		s.fsyncTimer.Reset(s.fsyncInterval)
		return
	}
	s.fsyncTimer = time.AfterFunc(s.fsyncInterval, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.flushLocked()
	})
}

// flushLocked flushes the buffered writer and fsyncs the file. Must be
// called with s.mu held.
func (s *Store) flushLocked() error {
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("chunkstore: flush: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("chunkstore: sync: %w", err)
	}
	return nil
}

// Read opens the handle's segment afresh and performs a positional read
// of exactly handle.Size bytes at handle.Offset. Readers never share file
// state with the writer or with each other.
func (s *Store) Read(handle ChunkHandle) ([]byte, error) {
	path := filepath.Join(s.dataDir, handle.Segment)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chunkstore: open segment %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, handle.Size)
	n, err := file.ReadAt(buf, int64(handle.Offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("chunkstore: read segment %s: %w", path, err)
	}
	if uint64(n) != handle.Size {
		return nil, ErrShortRead
	}
	if s.metrics != nil {
		s.metrics.ObserveRead()
	}
	return buf, nil
}

// CurrentSegmentIndex returns the index of the segment currently open for
// writing.
func (s *Store) CurrentSegmentIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segIndex
}

// CurrentOffset returns the write cursor within the current segment.
func (s *Store) CurrentOffset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// MaxSegmentSize returns the configured rotation threshold.
func (s *Store) MaxSegmentSize() uint64 {
	return s.maxSegmentSize
}

// DataDir returns the directory backing this store.
func (s *Store) DataDir() string { return s.dataDir }

// Close flushes and closes the currently open segment.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsyncTimer != nil {
		s.fsyncTimer.Stop()
	}
	if err := s.flushLocked(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// Reopen reattaches a Store to an existing data directory at a known
// segment index and offset, used when restoring a snapshot: the snapshot
// records the segment/offset pair, and the chunk data itself lives
// untouched on disk.
func Reopen(cfg Config, segIndex, offset uint64) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, &StoreError{"data directory must be set"}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("chunkstore: create data dir: %w", err)
	}
	maxSize := cfg.MaxSegmentSize
	if maxSize == 0 {
		maxSize = DefaultMaxSegmentSize
	}
	s := &Store{
		dataDir:        cfg.DataDir,
		maxSegmentSize: maxSize,
		fsyncInterval:  cfg.FsyncInterval,
	}
	if err := s.openSegment(segIndex); err != nil {
		return nil, err
	}
	// Trust the recorded offset over whatever the file's current length
	// happens to be; the snapshot is the source of truth for where the
	// tree believes the cursor sits.
	if _, err := s.file.Seek(int64(offset), io.SeekStart); err != nil {
		s.file.Close()
		return nil, fmt.Errorf("chunkstore: seek segment to recorded offset: %w", err)
	}
	s.offset = offset
	return s, nil
}
