package main

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/storage/memory"
	"github.com/mtlprog/offlinecache/internal/storage/sqlite"
	"github.com/mtlprog/offlinecache/internal/storage/storagetest"
)

func TestOpenBackend_Memory(t *testing.T) {
	backend, err := openBackend(context.Background(), "", "")
	require.NoError(t, err)
	defer backend.Close()

	_, ok := backend.Caches.(*memory.Store)
	assert.True(t, ok)
	assert.NoError(t, backend.Health.Ping(context.Background()))
}

func TestOpenBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	backend, err := openBackend(context.Background(), "", path)
	require.NoError(t, err)
	defer backend.Close()

	_, ok := backend.Caches.(*sqlite.Store)
	assert.True(t, ok)
}

func TestOpenBackend_BadDatabaseURL(t *testing.T) {
	_, err := openBackend(context.Background(), "postgres://offlinecache@127.0.0.1:1/offlinecache?connect_timeout=1&sslmode=disable", "")
	assert.Error(t, err)
}

func TestPrintCaches(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Open(ctx, "asistencia-v1"))
	require.NoError(t, store.PutAll(ctx, "asistencia-v2", []domain.Entry{
		{URL: "/", Response: storagetest.NewResponse("/", http.StatusOK, "<html>home</html>")},
	}))

	var out bytes.Buffer
	require.NoError(t, printCaches(ctx, &out, store, "asistencia-v2"))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "CACHE")
	assert.Contains(t, string(lines[1]), "asistencia-v1")
	assert.Contains(t, string(lines[2]), "asistencia-v2 (current)")
	assert.Contains(t, string(lines[2]), "17 B")
}
