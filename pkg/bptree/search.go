package bptree

import "sort"

// Compare orders two keys: negative if a < b, zero if equal, positive if
// a > b. The tree never compares keys except through this function, so any
// application-defined comparable value works as a key, not just types with
// a native ordering.
type Compare[K any] func(a, b K) int

// routeChild returns the child index to descend into for searchKey against
// an internal node's separator keys. Equal keys always route right,
// matching the separator-equals-right-subtree-minimum invariant. This is
// exactly the upper-bound index (first key strictly greater than
// searchKey); routing through the upper bound already sends an exact
// separator match to the child on its right, so there is no need to
// special-case the match (see DESIGN.md).
func routeChild[K any](keys []K, searchKey K, cmp Compare[K]) int {
	return sort.Search(len(keys), func(i int) bool {
		return cmp(keys[i], searchKey) > 0
	})
}

// searchLeaf returns the index of searchKey in a leaf's sorted entries, and
// whether it was found. When not found, idx is the position at which the
// key should be inserted to keep entries sorted.
func searchLeaf[K any](entries []entry[K], searchKey K, cmp Compare[K]) (idx int, found bool) {
	idx = sort.Search(len(entries), func(i int) bool {
		return cmp(entries[i].key, searchKey) >= 0
	})
	found = idx < len(entries) && cmp(entries[idx].key, searchKey) == 0
	return idx, found
}
