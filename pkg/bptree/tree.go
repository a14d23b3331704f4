// Package bptree implements a persistent, concurrent B+ tree with
// latch-crabbing: a descent-and-restructuring protocol with an optimistic
// fast path for non-splitting inserts, a pessimistic write-latch-crab path
// for everything else, and a sibling-linked leaf level supporting ordered
// scans.
//
// A tree-level RWMutex guards the root pointer;
// every node additionally carries its own RWMutex for hand-over-hand
// latch coupling during descent. Keys are compared with a caller-supplied
// Compare function rather than a fixed type, and leaf values are
// chunkstore.ChunkHandle rather than inline bytes.
package bptree

import (
	"sync"

	"github.com/ssargent/chunktree/pkg/chunkstore"
	"github.com/ssargent/chunktree/pkg/treemetrics"
)

// Tree is a concurrent, persistent B+ tree mapping keys of type K to
// chunkstore.ChunkHandle values. It is safe for concurrent use by multiple
// goroutines.
type Tree[K any] struct {
	t     int
	cmp   Compare[K]
	codec KeyCodec[K]

	mu   sync.RWMutex // tree-level latch: protects root swaps
	root *node[K]

	chunks  *chunkstore.Store
	metrics *treemetrics.Tree
}

// New creates an empty tree with branching parameter t (minimum fanout).
// t must be >= 2.
func New[K any](t int, cmp Compare[K], codec KeyCodec[K], chunks *chunkstore.Store) *Tree[K] {
	if t < 2 {
		t = 2
	}
	return &Tree[K]{
		t:      t,
		cmp:    cmp,
		codec:  codec,
		root:   newLeaf[K](),
		chunks: chunks,
	}
}

// SetMetrics attaches a metrics sink. Safe to call once, before first use.
func (tr *Tree[K]) SetMetrics(m *treemetrics.Tree) { tr.metrics = m }

// T returns the tree's branching parameter.
func (tr *Tree[K]) T() int { return tr.t }

// Chunks returns the chunk store backing this tree's leaf values.
func (tr *Tree[K]) Chunks() *chunkstore.Store { return tr.chunks }

// pathFrame records one step of a pessimistic descent: the internal node
// visited and the index of the child chosen, so that a split carried up
// from below knows exactly where to insert the new separator.
type pathFrame[K any] struct {
	node     *node[K]
	childIdx int
}

// Insert adds or overwrites the value for key. It first attempts the
// optimistic fast path; if that aborts because the target leaf has no
// room, it falls through to the pessimistic latch-crabbing path.
func (tr *Tree[K]) Insert(key K, value []byte) error {
	handle, err := tr.chunks.Write(value)
	if err != nil {
		return err
	}

	if tr.insertOptimistic(key, handle) {
		if tr.metrics != nil {
			tr.metrics.ObserveOptimisticInsert()
		}
		return nil
	}

	if tr.metrics != nil {
		tr.metrics.ObserveOptimisticAbort()
	}
	tr.insertPessimistic(key, handle)
	if tr.metrics != nil {
		tr.metrics.ObservePessimisticInsert()
	}
	return nil
}

// insertOptimistic is the optimistic fast path. It returns false if the
// attempt aborted and the caller must fall back to the pessimistic path.
func (tr *Tree[K]) insertOptimistic(key K, handle chunkstore.ChunkHandle) bool {
	tr.mu.RLock()
	current := tr.root
	current.mu.RLock() // acquire root latch before dropping the tree latch
	tr.mu.RUnlock()

	for !current.isLeaf() {
		idx := routeChild(current.keys, key, tr.cmp)
		child := current.children[idx]
		child.mu.RLock()
		current.mu.RUnlock()
		current = child
	}

	// current is a leaf, held under a read latch. Upgrade to a write
	// latch; another writer may intervene in the gap, so move right along
	// the sibling chain until we're looking at the leaf that actually
	// bounds key (the B-link "move right" step).
	current.mu.RUnlock()
	current.mu.Lock()
	current = moveRightLocked(current, key, tr.cmp)

	if !current.hasRoomForOneMore(tr.t) {
		current.mu.Unlock()
		return false
	}

	idx, found := searchLeaf(current.entries, key, tr.cmp)
	if found {
		current.entries[idx].handle = handle
		current.mu.Unlock()
		return true
	}
	current.entries = insertEntryAt(current.entries, idx, entry[K]{key: key, handle: handle})
	current.mu.Unlock()
	if tr.metrics != nil {
		tr.metrics.SetKeyCount(tr.approximateKeyCountLocked())
	}
	return true
}

// moveRightLocked walks the leaf-sibling chain while key belongs strictly
// to the right of leaf, transferring the write latch as it goes. leaf must
// be held under a write latch on entry; the returned node is held under a
// write latch on return.
func moveRightLocked[K any](leaf *node[K], key K, cmp Compare[K]) *node[K] {
	for leaf.next != nil && len(leaf.next.entries) > 0 && cmp(leaf.next.entries[0].key, key) <= 0 {
		next := leaf.next
		next.mu.Lock()
		leaf.mu.Unlock()
		leaf = next
	}
	return leaf
}

func insertEntryAt[K any](entries []entry[K], idx int, e entry[K]) []entry[K] {
	entries = append(entries, entry[K]{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

func insertKeyChildAt[K any](keys []K, children []*node[K], idx int, key K, right *node[K]) ([]K, []*node[K]) {
	keys = append(keys, key)
	copy(keys[idx+1:], keys[idx:])
	keys[idx] = key

	children = append(children, nil)
	copy(children[idx+2:], children[idx+1:])
	children[idx+1] = right

	return keys, children
}

// insertPessimistic is the write-latch-crabbing path.
func (tr *Tree[K]) insertPessimistic(key K, handle chunkstore.ChunkHandle) {
	tr.mu.Lock()
	current := tr.root
	current.mu.Lock()
	tr.mu.Unlock()

	var retained []pathFrame[K]

	for !current.isLeaf() {
		idx := routeChild(current.keys, key, tr.cmp)
		child := current.children[idx]
		child.mu.Lock()

		// Safe-node optimization: if current would not overflow from a
		// split carried up out of child, every ancestor held so far is
		// safe to release.
		if len(current.keys) != 2*tr.t-2 {
			for _, f := range retained {
				f.node.mu.Unlock()
			}
			retained = retained[:0]
		}
		retained = append(retained, pathFrame[K]{node: current, childIdx: idx})
		current = child
	}

	leaf := current
	idx, found := searchLeaf(leaf.entries, key, tr.cmp)
	if found {
		leaf.entries[idx].handle = handle
		leaf.mu.Unlock()
		for _, f := range retained {
			f.node.mu.Unlock()
		}
		return
	}
	leaf.entries = insertEntryAt(leaf.entries, idx, entry[K]{key: key, handle: handle})

	if !leaf.overfull(tr.t) {
		leaf.mu.Unlock()
		for _, f := range retained {
			f.node.mu.Unlock()
		}
		if tr.metrics != nil {
			tr.metrics.SetKeyCount(tr.approximateKeyCountLocked())
		}
		return
	}

	right, median := splitLeaf(leaf, tr.t)
	if tr.metrics != nil {
		tr.metrics.ObserveSplit("leaf")
	}

	tr.propagateSplit(retained, leaf, median, right)

	if tr.metrics != nil {
		tr.metrics.SetKeyCount(tr.approximateKeyCountLocked())
	}
}

// propagateSplit carries (median, right) up through the retained ancestor
// frames, splitting further as needed, and grows the root if the split
// reaches the top. left is the node that just split (still write-latched
// on entry); every frame in retained is likewise write-latched on entry.
// All of these latches are unlocked by this function before it returns.
//
// The node destined to become the new root (left, or the top-most
// retained ancestor once it splits in turn) is kept write-latched until
// after tr.root has been swapped, so that a concurrent optimistic reader
// can never observe tr.root pointing at a half-updated node with no path
// to the new right sibling.
func (tr *Tree[K]) propagateSplit(retained []pathFrame[K], left *node[K], median K, right *node[K]) {
	if len(retained) == 0 {
		tr.mu.Lock()
		tr.root = newInternal([]K{median}, []*node[K]{left, right})
		tr.mu.Unlock()
		left.mu.Unlock()
		return
	}

	for i := len(retained) - 1; i >= 0; i-- {
		parent := retained[i].node
		idx := retained[i].childIdx

		parent.keys, parent.children = insertKeyChildAt(parent.keys, parent.children, idx, median, right)
		left.mu.Unlock()

		if !parent.overfull(tr.t) {
			parent.mu.Unlock()
			for j := i - 1; j >= 0; j-- {
				retained[j].node.mu.Unlock()
			}
			return
		}

		newRight, newMedian := splitInternal(parent, tr.t)
		if tr.metrics != nil {
			tr.metrics.ObserveSplit("internal")
		}

		if i == 0 {
			tr.mu.Lock()
			tr.root = newInternal([]K{newMedian}, []*node[K]{parent, newRight})
			tr.mu.Unlock()
			parent.mu.Unlock()
			return
		}

		left, median, right = parent, newMedian, newRight
	}
}

// approximateKeyCountLocked walks the tree to count leaf entries. It is
// only used for the metrics gauge and tolerates being slightly stale; it
// takes its own read latches rather than assuming the caller holds any.
func (tr *Tree[K]) approximateKeyCountLocked() int {
	tr.mu.RLock()
	root := tr.root
	tr.mu.RUnlock()

	count := 0
	var walk func(n *node[K])
	walk = func(n *node[K]) {
		n.mu.RLock()
		defer n.mu.RUnlock()
		if n.isLeaf() {
			count += len(n.entries)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	return count
}

// Get performs a read-only, latch-crabbed lookup.
func (tr *Tree[K]) Get(key K) ([]byte, error) {
	tr.mu.RLock()
	current := tr.root
	current.mu.RLock()
	tr.mu.RUnlock()

	for !current.isLeaf() {
		idx := routeChild(current.keys, key, tr.cmp)
		if idx >= len(current.children) {
			// Routing fell off the right edge: treated as not-found for
			// reads.
			current.mu.RUnlock()
			if tr.metrics != nil {
				tr.metrics.ObserveGet(false)
			}
			return nil, ErrNotFound
		}
		child := current.children[idx]
		child.mu.RLock()
		current.mu.RUnlock()
		current = child
	}

	idx, found := searchLeaf(current.entries, key, tr.cmp)
	if !found {
		current.mu.RUnlock()
		if tr.metrics != nil {
			tr.metrics.ObserveGet(false)
		}
		return nil, ErrNotFound
	}
	handle := current.entries[idx].handle
	current.mu.RUnlock()

	bytes, err := tr.chunks.Read(handle)
	if err != nil {
		return nil, err
	}
	if tr.metrics != nil {
		tr.metrics.ObserveGet(true)
	}
	return bytes, nil
}

// Contains reports whether a subsequent Get would succeed.
func (tr *Tree[K]) Contains(key K) bool {
	_, err := tr.Get(key)
	return err == nil
}

// Remove is reserved for a future deletion implementation: the
// leaf-linkage and arity invariants are designed to support borrow-from-
// sibling and merge steps, but this version does not implement them.
func (tr *Tree[K]) Remove(key K) error {
	return ErrUnsupported
}
