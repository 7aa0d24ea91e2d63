package sqlite_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/storage/sqlite"
	"github.com/mtlprog/offlinecache/internal/storage/storagetest"
)

func openStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestStore_Caches(t *testing.T) {
	store, _ := openStore(t)
	storagetest.RunCaches(t, store)
}

func TestStore_EventLog(t *testing.T) {
	store, _ := openStore(t)
	storagetest.RunEventLog(t, store)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	store, path := openStore(t)

	require.NoError(t, store.PutAll(ctx, "asistencia-v2", []domain.Entry{
		{URL: "/", Response: storagetest.NewResponse("/", http.StatusOK, "root")},
	}))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	resp, err := reopened.MatchIn(ctx, "asistencia-v2", "/")
	require.NoError(t, err)
	assert.Equal(t, "root", string(resp.Body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestStore_PutAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	store, _ := openStore(t)

	err := store.PutAll(ctx, "atomic-v1", []domain.Entry{
		{URL: "/", Response: storagetest.NewResponse("/", http.StatusOK, "root")},
		{URL: "/broken"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidResponse)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.NotContains(t, keys, "atomic-v1")

	_, err = store.Match(ctx, "/")
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}
