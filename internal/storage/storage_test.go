package storage

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/db"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/db/migrate"
)

func newSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reader.db")
	require.NoError(t, migrate.Run(path, "up"))
	conn, err := db.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLiteKV(conn)
}

func exerciseKV(t *testing.T, kv KV) {
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "device.id")
	require.NoError(t, err)
	assert.False(t, ok, "missing key")

	require.NoError(t, kv.Set(ctx, "device.id", "abc"))
	v, ok, err := kv.Get(ctx, "device.id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, kv.Set(ctx, "device.id", "def"), "overwrite")
	v, _, _ = kv.Get(ctx, "device.id")
	assert.Equal(t, "def", v)

	require.NoError(t, kv.Delete(ctx, "device.id"))
	_, ok, err = kv.Get(ctx, "device.id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Delete(ctx, "device.id"), "deleting a missing key is not an error")
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestSQLiteKV(t *testing.T) {
	exerciseKV(t, newSQLiteKV(t))
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reader.db")
	require.NoError(t, migrate.Run(path, "up"))

	conn, err := db.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, NewSQLiteKV(conn).Set(ctx, "device.id", "persisted"))
	require.NoError(t, conn.Close())

	conn, err = db.OpenSQLite(path)
	require.NoError(t, err)
	defer conn.Close()
	v, ok, err := NewSQLiteKV(conn).Get(ctx, "device.id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)
}

func TestMemoryKV_ConcurrentAccess(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			_ = kv.Set(ctx, "k"+strconv.Itoa(id), "v")
		}(i)
		go func(id int) {
			defer wg.Done()
			_, _, _ = kv.Get(ctx, "k"+strconv.Itoa(id))
		}(i)
	}
	wg.Wait()
}
