package bptree

import (
	"sync"

	"github.com/ssargent/chunktree/pkg/chunkstore"
)

// kind tags which variant a node is: internal nodes route by separator
// keys, leaf nodes hold data entries.
type kind uint8

const (
	leafKind kind = iota
	internalKind
)

// entry is a single (key, chunk handle) pair stored in a leaf.
type entry[K any] struct {
	key    K
	handle chunkstore.ChunkHandle
}

// node is a single node in the tree. Both variants share one struct,
// tagged by kind, rather than an interface-based sum type; only the
// fields relevant to the tagged kind are populated.
//
// Every node carries its own reader/writer latch (mu). Go's garbage
// collector stands in for a reference-counted shared ownership scheme:
// nodes are referenced by plain pointers and stay alive exactly as long as
// something reaches them. See DESIGN.md.
type node[K any] struct {
	mu   sync.RWMutex
	kind kind

	// Leaf fields.
	entries []entry[K]
	next    *node[K]

	// Internal fields.
	keys     []K
	children []*node[K]
}

func newLeaf[K any]() *node[K] {
	return &node[K]{kind: leafKind}
}

func newInternal[K any](keys []K, children []*node[K]) *node[K] {
	return &node[K]{kind: internalKind, keys: keys, children: children}
}

func (n *node[K]) isLeaf() bool { return n.kind == leafKind }

// overfull reports whether n holds enough keys/entries that it must split
// before its writer latch can be released: 2t entries for a leaf, 2t-1
// keys for an internal node.
func (n *node[K]) overfull(t int) bool {
	if n.isLeaf() {
		return len(n.entries) >= 2*t
	}
	return len(n.keys) >= 2*t-1
}

// hasRoomForOneMore reports whether inserting one more key (without a
// split first) would keep n below its overfull threshold, used by the
// optimistic fast path.
func (n *node[K]) hasRoomForOneMore(t int) bool {
	return len(n.entries) < 2*t-1
}
