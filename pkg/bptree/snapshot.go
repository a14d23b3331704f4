package bptree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/chunktree/pkg/chunkstore"
)

// Save serializes the tree to path. It writes to a ksuid-suffixed
// temporary file in the same directory and renames it into place, so a
// reader never observes a partially written snapshot and a crash mid-save
// leaves the previous snapshot (if any) untouched.
//
// Nodes are assigned IDs breadth-first and written as length-prefixed
// binary fields. Per-node latches are taken briefly while visiting each
// node, on top of the tree-level lock already held for the duration.
// Parent and sibling (next) pointers are not persisted, since nothing on
// disk needs them until Load reconstructs the tree in memory — see Load.
func (tr *Tree[K]) Save(path string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), ksuid.New().String()))

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("bptree: create snapshot temp file: %w", err)
	}
	w := bufio.NewWriterSize(file, 64*1024)

	if err := tr.writeSnapshot(w); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bptree: flush snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bptree: sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bptree: close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bptree: rename snapshot into place: %w", err)
	}
	return nil
}

func (tr *Tree[K]) writeSnapshot(w *bufio.Writer) error {
	var nodes []*node[K]
	nodeID := make(map[*node[K]]uint32)

	queue := []*node[K]{tr.root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, seen := nodeID[current]; seen {
			continue
		}
		current.mu.Lock()
		id := uint32(len(nodes))
		nodeID[current] = id
		nodes = append(nodes, current)
		if !current.isLeaf() {
			queue = append(queue, current.children...)
		}
		current.mu.Unlock()
	}

	if err := writeUint32(w, uint32(tr.t)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(nodes))); err != nil {
		return err
	}
	if err := writeUint32(w, nodeID[tr.root]); err != nil {
		return err
	}
	if err := writeUint64(w, tr.chunks.CurrentSegmentIndex()); err != nil {
		return err
	}
	if err := writeUint64(w, tr.chunks.CurrentOffset()); err != nil {
		return err
	}

	for _, n := range nodes {
		n.mu.Lock()
		err := tr.writeNode(w, n, nodeID)
		n.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (tr *Tree[K]) writeNode(w *bufio.Writer, n *node[K], nodeID map[*node[K]]uint32) error {
	isLeaf := uint8(0)
	if n.isLeaf() {
		isLeaf = 1
	}
	if err := w.WriteByte(isLeaf); err != nil {
		return err
	}

	if n.isLeaf() {
		if err := writeUint32(w, uint32(len(n.entries))); err != nil {
			return err
		}
		for _, e := range n.entries {
			keyBytes, err := tr.codec.Marshal(e.key)
			if err != nil {
				return fmt.Errorf("bptree: marshal key: %w", err)
			}
			if err := writeBytes(w, keyBytes); err != nil {
				return err
			}
			if err := writeBytes(w, []byte(e.handle.Segment)); err != nil {
				return err
			}
			if err := writeUint64(w, e.handle.Offset); err != nil {
				return err
			}
			if err := writeUint64(w, e.handle.Size); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeUint32(w, uint32(len(n.keys))); err != nil {
		return err
	}
	for _, k := range n.keys {
		keyBytes, err := tr.codec.Marshal(k)
		if err != nil {
			return fmt.Errorf("bptree: marshal key: %w", err)
		}
		if err := writeBytes(w, keyBytes); err != nil {
			return err
		}
	}
	for _, c := range n.children {
		if err := writeUint32(w, nodeID[c]); err != nil {
			return err
		}
	}
	return nil
}

// LoadOptions supplies everything Load needs that isn't recorded in the
// snapshot itself: how to compare and encode keys, and where the chunk
// data referenced by the snapshot lives.
type LoadOptions[K any] struct {
	Compare       Compare[K]
	Codec         KeyCodec[K]
	ChunkStoreCfg chunkstore.Config
}

// Load deserializes a tree previously written by Save. The chunk store is
// reopened at the segment/offset the snapshot recorded rather than
// whatever the segment file's current length happens to be, so appends
// made after the snapshot but before a crash are left unreferenced and are
// overwritten by later writes, rather than corrupting the resumed write
// cursor.
//
// Leaf next links are not part of the wire format (see Save); Load
// rebuilds the chain by sorting leaves by their first key after
// deserializing, which only works because leaves never overlap in key
// range.
func Load[K any](path string, t int, opts LoadOptions[K]) (*Tree[K], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bptree: open snapshot: %w", err)
	}
	defer file.Close()
	r := bufio.NewReaderSize(file, 64*1024)

	fileT, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("bptree: read t: %w", err)
	}
	nodeCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("bptree: read node count: %w", err)
	}
	rootID, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("bptree: read root id: %w", err)
	}
	segIndex, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("bptree: read segment index: %w", err)
	}
	offset, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("bptree: read offset: %w", err)
	}

	chunks, err := chunkstore.Reopen(opts.ChunkStoreCfg, segIndex, offset)
	if err != nil {
		return nil, fmt.Errorf("bptree: reopen chunk store: %w", err)
	}

	tr := &Tree[K]{
		t:      int(fileT),
		cmp:    opts.Compare,
		codec:  opts.Codec,
		chunks: chunks,
	}
	if tr.t == 0 {
		tr.t = t
	}

	if nodeCount == 0 {
		tr.root = newLeaf[K]()
		return tr, nil
	}

	type tempNode struct {
		isLeaf      bool
		keys        []K
		handles     []chunkstore.ChunkHandle
		childrenIDs []uint32
	}

	temps := make([]tempNode, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		isLeafByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("bptree: read node %d kind: %w", i, err)
		}
		count, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("bptree: read node %d count: %w", i, err)
		}

		var tn tempNode
		tn.isLeaf = isLeafByte == 1

		if tn.isLeaf {
			tn.keys = make([]K, count)
			tn.handles = make([]chunkstore.ChunkHandle, count)
			for j := uint32(0); j < count; j++ {
				keyBytes, err := readBytes(r)
				if err != nil {
					return nil, fmt.Errorf("bptree: read node %d key %d: %w", i, j, err)
				}
				key, err := opts.Codec.Unmarshal(keyBytes)
				if err != nil {
					return nil, fmt.Errorf("bptree: unmarshal key: %w", err)
				}
				segBytes, err := readBytes(r)
				if err != nil {
					return nil, fmt.Errorf("bptree: read node %d handle segment %d: %w", i, j, err)
				}
				off, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("bptree: read node %d handle offset %d: %w", i, j, err)
				}
				size, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("bptree: read node %d handle size %d: %w", i, j, err)
				}
				tn.keys[j] = key
				tn.handles[j] = chunkstore.ChunkHandle{Segment: string(segBytes), Offset: off, Size: size}
			}
		} else {
			tn.keys = make([]K, count)
			for j := uint32(0); j < count; j++ {
				keyBytes, err := readBytes(r)
				if err != nil {
					return nil, fmt.Errorf("bptree: read node %d key %d: %w", i, j, err)
				}
				key, err := opts.Codec.Unmarshal(keyBytes)
				if err != nil {
					return nil, fmt.Errorf("bptree: unmarshal key: %w", err)
				}
				tn.keys[j] = key
			}
			tn.childrenIDs = make([]uint32, count+1)
			for j := range tn.childrenIDs {
				id, err := readUint32(r)
				if err != nil {
					return nil, fmt.Errorf("bptree: read node %d child %d: %w", i, j, err)
				}
				tn.childrenIDs[j] = id
			}
		}
		temps[i] = tn
	}

	nodes := make([]*node[K], nodeCount)
	var leaves []*node[K]
	for i, tn := range temps {
		if tn.isLeaf {
			n := newLeaf[K]()
			n.entries = make([]entry[K], len(tn.keys))
			for j := range tn.keys {
				n.entries[j] = entry[K]{key: tn.keys[j], handle: tn.handles[j]}
			}
			nodes[i] = n
			leaves = append(leaves, n)
		} else {
			nodes[i] = newInternal(tn.keys, make([]*node[K], len(tn.childrenIDs)))
		}
	}
	for i, tn := range temps {
		if tn.isLeaf {
			continue
		}
		for j, childID := range tn.childrenIDs {
			nodes[i].children[j] = nodes[childID]
		}
	}

	sort.Slice(leaves, func(i, j int) bool {
		if len(leaves[i].entries) == 0 || len(leaves[j].entries) == 0 {
			return len(leaves[i].entries) < len(leaves[j].entries)
		}
		return opts.Compare(leaves[i].entries[0].key, leaves[j].entries[0].key) < 0
	})
	for i := 0; i+1 < len(leaves); i++ {
		leaves[i].next = leaves[i+1]
	}

	tr.root = nodes[rootID]
	return tr, nil
}

func writeUint32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w *bufio.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
