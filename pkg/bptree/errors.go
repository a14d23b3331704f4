package bptree

// TreeError is a lightweight sentinel error type: a fixed message behind
// a named type, so callers can match with errors.Is against one of the
// package-level Err* values below.
type TreeError struct {
	Message string
}

func (e *TreeError) Error() string { return e.Message }

// Sentinel errors surfaced at the tree boundary. Load does not return
// ErrCorruption: a truncated or malformed snapshot is reported as the
// wrapped read or decode error instead.
var (
	ErrNotFound    = &TreeError{"key not found"}
	ErrCorruption  = &TreeError{"snapshot decode failure"}
	ErrUnsupported = &TreeError{"operation not supported"}
)
