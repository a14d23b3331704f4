package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncBridge_GetWaitsForInFlightInsert(t *testing.T) {
	database := newTestDatabase(t)
	bridge := NewAsyncBridge(database, time.Millisecond)

	done := make(chan error, 1)
	bridge.Insert([]byte("k"), NewChunkContainer([]byte("v")), done)

	got, err := bridge.Get([]byte("k"))
	require.NoError(t, err)
	value, err := got.Extract()
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, <-done)
}

func TestAsyncBridge_ManyConcurrentInsertsAllObservable(t *testing.T) {
	database := newTestDatabase(t)
	bridge := NewAsyncBridge(database, time.Millisecond)

	const n = 100
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		key := []byte{byte(i)}
		bridge.Insert(key, NewChunkContainer(key), errs)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	for i := 0; i < n; i++ {
		key := []byte{byte(i)}
		got, err := bridge.Get(key)
		require.NoError(t, err)
		value, err := got.Extract()
		require.NoError(t, err)
		assert.Equal(t, key, value)
	}
}
