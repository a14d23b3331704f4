package bptree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/chunktree/pkg/chunkstore"
)

// Each worker owns a disjoint key range, so every insert is expected to
// succeed and every subsequent read from that worker must find it.
func TestTree_ConcurrentDisjointInsertAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := chunkstore.Open(chunkstore.Config{DataDir: dir})
	require.NoError(t, err)
	defer store.Close()

	tr := New[[]byte](4, bytesCompare, BytesKeyCodec{}, store)

	const workers = 32
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := []byte(fmt.Sprintf("w%03d-k%04d", w, i))
				val := []byte(fmt.Sprintf("w%03d-v%04d", w, i))
				require.NoError(t, tr.Insert(key, val))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			key := []byte(fmt.Sprintf("w%03d-k%04d", w, i))
			want := []byte(fmt.Sprintf("w%03d-v%04d", w, i))
			got, err := tr.Get(key)
			require.NoError(t, err, "key %s", key)
			assert.Equal(t, want, got)
		}
	}
}

// Concurrent readers must never see a torn split: every Get either finds
// the key with its correct value or returns ErrNotFound, never a wrong
// value or a panic, while inserts are actively splitting nodes.
func TestTree_ConcurrentReadsDuringSplits(t *testing.T) {
	dir := t.TempDir()
	store, err := chunkstore.Open(chunkstore.Config{DataDir: dir})
	require.NoError(t, err)
	defer store.Close()

	tr := New[[]byte](2, bytesCompare, BytesKeyCodec{}, store)

	const total = 2000
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			key := []byte(fmt.Sprintf("key-%05d", i))
			require.NoError(t, tr.Insert(key, []byte(fmt.Sprintf("val-%05d", i))))
		}
	}()

	stop := make(chan struct{})
	var readerWG sync.WaitGroup
	for r := 0; r < 8; r++ {
		readerWG.Add(1)
		go func(r int) {
			defer readerWG.Done()
			i := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				key := []byte(fmt.Sprintf("key-%05d", i%total))
				v, err := tr.Get(key)
				if err == nil {
					assert.Equal(t, []byte(fmt.Sprintf("val-%05d", i%total)), v)
				} else {
					assert.ErrorIs(t, err, ErrNotFound)
				}
				i++
			}
		}(r)
	}

	wg.Wait()
	close(stop)
	readerWG.Wait()

	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		v, err := tr.Get(key)
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("val-%05d", i)), v)
	}
}

// Concurrent overwrites of the same key must never corrupt the leaf: the
// final value must be one of the written values, and the entry count must
// not grow (an overwrite is not an insert).
func TestTree_ConcurrentOverwriteSameKey(t *testing.T) {
	dir := t.TempDir()
	store, err := chunkstore.Open(chunkstore.Config{DataDir: dir})
	require.NoError(t, err)
	defer store.Close()

	tr := New[[]byte](2, bytesCompare, BytesKeyCodec{}, store)
	key := []byte("shared")

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				require.NoError(t, tr.Insert(key, []byte(fmt.Sprintf("w%d-%d", w, i))))
			}
		}(w)
	}
	wg.Wait()

	v, err := tr.Get(key)
	require.NoError(t, err)
	assert.Regexp(t, `^w\d+-\d+$`, string(v))

	count := 0
	it := tr.Iterator()
	for it.Next() {
		count++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 1, count)
}
