package db

import "errors"

// ErrUnsupportedContainer is returned when a Container holds a variant
// this store does not persist.
var ErrUnsupportedContainer = errors.New("db: container variant not supported")

// containerKind tags which variant a Container holds.
type containerKind uint8

const (
	// chunkKind holds raw chunk bytes, the only variant this store
	// actually writes to the tree.
	chunkKind containerKind = iota
	// targetChunkKind is the post-processed "target" chunk variant;
	// accepted as a value shape but never backed by data here.
	targetChunkKind
)

// Container is the value type this store accepts: a value is either
// literal chunk bytes, or the target-chunk variant, which carries no data.
// Only the former can be written through this store.
type Container struct {
	kind  containerKind
	chunk []byte
}

// NewChunkContainer wraps raw chunk bytes for storage.
func NewChunkContainer(data []byte) Container {
	return Container{kind: chunkKind, chunk: data}
}

// NewTargetChunkContainer constructs the unsupported target-chunk
// variant. It exists so callers that only have a Container (not knowing
// which variant) can still be type-checked against this store's
// interface; inserting one always fails with ErrUnsupportedContainer.
func NewTargetChunkContainer() Container {
	return Container{kind: targetChunkKind}
}

// Extract returns the chunk bytes, or ErrUnsupportedContainer if c holds
// a variant this store cannot persist.
func (c Container) Extract() ([]byte, error) {
	if c.kind != chunkKind {
		return nil, ErrUnsupportedContainer
	}
	return c.chunk, nil
}
