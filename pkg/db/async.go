package db

import (
	"sync"
	"time"
)

// AsyncBridge lets callers fire off an insert without waiting for the
// tree descent to finish, while still guaranteeing that a Get issued for
// the same key afterward observes the insert rather than racing it.
// Insert spawns the actual write in its own goroutine and records the key
// in a concurrent set for the duration; Get busy-waits while the key is
// in that set, then reads.
type AsyncBridge struct {
	db           *Database
	pending      sync.Map // key (string) -> struct{}
	pollInterval time.Duration
}

// NewAsyncBridge wraps db. pollInterval controls how often Get re-checks
// whether an in-flight insert for the same key has finished; a
// non-positive value defaults to 10ms.
func NewAsyncBridge(database *Database, pollInterval time.Duration) *AsyncBridge {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &AsyncBridge{db: database, pollInterval: pollInterval}
}

// Insert marks key as in-flight and spawns the actual write. errs, if
// non-nil, receives the outcome; callers that don't need it may pass nil
// and let the goroutine report only via the in-flight set clearing.
func (b *AsyncBridge) Insert(key []byte, value Container, errs chan<- error) {
	k := string(key)
	b.pending.Store(k, struct{}{})

	go func() {
		defer b.pending.Delete(k)
		err := b.db.Put(key, value)
		if errs != nil {
			errs <- err
		}
	}()
}

// Get waits out any in-flight insert for key, then reads it.
func (b *AsyncBridge) Get(key []byte) (Container, error) {
	k := string(key)
	for {
		if _, inFlight := b.pending.Load(k); !inFlight {
			break
		}
		time.Sleep(b.pollInterval)
	}
	return b.db.Get(key)
}
