package bptree

import "time"

// Checkpointer periodically saves a tree to a fixed path in the
// background, so a crash loses at most one interval's worth of inserts
// instead of everything since the last explicit Save.
type Checkpointer[K any] struct {
	tree   *Tree[K]
	path   string
	ticker *time.Ticker
	done   chan struct{}
}

// StartCheckpoint begins saving tr to path every interval. Each call starts
// an independent Checkpointer; one already running for tr is not stopped.
func StartCheckpoint[K any](tr *Tree[K], path string, interval time.Duration) *Checkpointer[K] {
	c := &Checkpointer[K]{
		tree:   tr,
		path:   path,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-c.ticker.C:
				c.tree.Save(c.path)
			case <-c.done:
				return
			}
		}
	}()

	return c
}

// Stop halts the checkpoint goroutine. Safe to call once.
func (c *Checkpointer[K]) Stop() {
	c.ticker.Stop()
	close(c.done)
}
