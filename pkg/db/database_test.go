package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	database, err := Open(Config{DataDir: dir, T: 3})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestDatabase_PutGet(t *testing.T) {
	database := newTestDatabase(t)

	require.NoError(t, database.Put([]byte("a"), NewChunkContainer([]byte("chunk-a"))))

	got, err := database.Get([]byte("a"))
	require.NoError(t, err)
	value, err := got.Extract()
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-a"), value)
}

func TestDatabase_PutRejectsTargetChunkContainer(t *testing.T) {
	database := newTestDatabase(t)

	err := database.Put([]byte("a"), NewTargetChunkContainer())
	assert.ErrorIs(t, err, ErrUnsupportedContainer)
	assert.False(t, database.Contains([]byte("a")))
}

func TestDatabase_ContainsReflectsInsertsOnly(t *testing.T) {
	database := newTestDatabase(t)

	assert.False(t, database.Contains([]byte("missing")))
	require.NoError(t, database.Put([]byte("present"), NewChunkContainer([]byte("v"))))
	assert.True(t, database.Contains([]byte("present")))
}

func TestDatabase_ScanYieldsEntriesInOrder(t *testing.T) {
	database := newTestDatabase(t)

	keys := [][]byte{[]byte("c"), []byte("a"), []byte("b")}
	for _, k := range keys {
		require.NoError(t, database.Put(k, NewChunkContainer(k)))
	}

	var seen []string
	it := database.Scan()
	for it.Next() {
		seen = append(seen, string(it.Key()))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestDatabase_SaveAndOpenFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	database, err := Open(Config{DataDir: dir, T: 3})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		key := []byte{byte(i)}
		require.NoError(t, database.Put(key, NewChunkContainer(key)))
	}

	snapshotPath := filepath.Join(dir, "snapshot.db")
	require.NoError(t, database.Save(snapshotPath))
	require.NoError(t, database.Close())

	restored, err := OpenFromSnapshot(snapshotPath, Config{DataDir: dir, T: 3})
	require.NoError(t, err)
	defer restored.Close()

	for i := 0; i < 20; i++ {
		key := []byte{byte(i)}
		got, err := restored.Get(key)
		require.NoError(t, err)
		value, err := got.Extract()
		require.NoError(t, err)
		assert.Equal(t, key, value)
	}
}

func TestDatabase_OperationsAfterCloseFail(t *testing.T) {
	database := newTestDatabase(t)
	require.NoError(t, database.Close())

	err := database.Put([]byte("a"), NewChunkContainer([]byte("v")))
	assert.Error(t, err)

	_, err = database.Get([]byte("a"))
	assert.Error(t, err)
}
