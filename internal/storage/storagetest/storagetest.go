// Package storagetest holds the behavior every storage.Caches and
// storage.EventLog implementation must share.
package storagetest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/storage"
)

// NewResponse builds a response fixture.
func NewResponse(url string, status int, body string) *domain.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	return &domain.Response{
		URL:    url,
		Status: status,
		Header: h,
		Body:   []byte(body),
	}
}

// RunCaches exercises a fresh, empty storage.Caches.
func RunCaches(t *testing.T, caches storage.Caches) {
	t.Helper()
	ctx := context.Background()

	t.Run("open creates empty container", func(t *testing.T) {
		require.NoError(t, caches.Open(ctx, "open-v1"))
		require.NoError(t, caches.Open(ctx, "open-v1"))

		keys, err := caches.Keys(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, "open-v1")

		entries, err := caches.Entries(ctx, "open-v1")
		require.NoError(t, err)
		assert.Empty(t, entries)

		_, err = caches.Delete(ctx, "open-v1")
		require.NoError(t, err)
	})

	t.Run("open rejects empty name", func(t *testing.T) {
		err := caches.Open(ctx, "")
		assert.ErrorIs(t, err, domain.ErrEmptyCacheName)
	})

	t.Run("put and match", func(t *testing.T) {
		err := caches.PutAll(ctx, "put-v1", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "<html>root</html>")},
			{URL: "/about?x=1", Response: NewResponse("/about?x=1", http.StatusOK, "about")},
		})
		require.NoError(t, err)

		resp, err := caches.MatchIn(ctx, "put-v1", "/")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "<html>root</html>", string(resp.Body))
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.False(t, resp.StoredAt.IsZero())

		resp, err = caches.Match(ctx, "/about?x=1")
		require.NoError(t, err)
		assert.Equal(t, "about", string(resp.Body))

		_, err = caches.Match(ctx, "/about")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		entries, err := caches.Entries(ctx, "put-v1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "/", entries[0].URL)
		assert.Equal(t, int64(len("<html>root</html>")), entries[0].Size)

		_, err = caches.Delete(ctx, "put-v1")
		require.NoError(t, err)
	})

	t.Run("put replaces existing entry", func(t *testing.T) {
		require.NoError(t, caches.PutAll(ctx, "replace-v1", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "old")},
		}))
		require.NoError(t, caches.PutAll(ctx, "replace-v1", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "new")},
		}))

		resp, err := caches.MatchIn(ctx, "replace-v1", "/")
		require.NoError(t, err)
		assert.Equal(t, "new", string(resp.Body))

		_, err = caches.Delete(ctx, "replace-v1")
		require.NoError(t, err)
	})

	t.Run("match in missing container", func(t *testing.T) {
		_, err := caches.MatchIn(ctx, "never-created", "/")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		_, err = caches.Entries(ctx, "never-created")
		assert.ErrorIs(t, err, domain.ErrCacheNotFound)
	})

	t.Run("match prefers oldest container", func(t *testing.T) {
		require.NoError(t, caches.PutAll(ctx, "order-v1", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "from v1")},
		}))
		// Creation timestamps must differ for stores with coarse clocks.
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, caches.PutAll(ctx, "order-v2", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "from v2")},
		}))

		keys, err := caches.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"order-v1", "order-v2"}, keys)

		resp, err := caches.Match(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, "from v1", string(resp.Body))

		existed, err := caches.Delete(ctx, "order-v1")
		require.NoError(t, err)
		assert.True(t, existed)

		resp, err = caches.Match(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, "from v2", string(resp.Body))

		_, err = caches.Delete(ctx, "order-v2")
		require.NoError(t, err)
	})

	t.Run("delete missing container", func(t *testing.T) {
		existed, err := caches.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("delete drops entries", func(t *testing.T) {
		require.NoError(t, caches.PutAll(ctx, "drop-v1", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "root")},
		}))
		_, err := caches.Delete(ctx, "drop-v1")
		require.NoError(t, err)

		_, err = caches.Match(ctx, "/")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		keys, err := caches.Keys(ctx)
		require.NoError(t, err)
		assert.NotContains(t, keys, "drop-v1")
	})

	t.Run("concurrent readers", func(t *testing.T) {
		require.NoError(t, caches.PutAll(ctx, "read-v1", []domain.Entry{
			{URL: "/", Response: NewResponse("/", http.StatusOK, "root")},
		}))

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := caches.Match(ctx, "/"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		_, err := caches.Delete(ctx, "read-v1")
		require.NoError(t, err)
	})
}

// RunEventLog exercises a fresh, empty storage.EventLog.
func RunEventLog(t *testing.T, events storage.EventLog) {
	t.Helper()
	ctx := context.Background()

	first := &domain.LifecycleEvent{
		ID:        uuid.NewString(),
		Type:      domain.EventTypeInstall,
		CacheName: "log-v1",
		Succeeded: true,
		Detail:    "cached 1 url",
	}
	require.NoError(t, events.RecordEvent(ctx, first))
	assert.False(t, first.CreatedAt.IsZero())

	time.Sleep(5 * time.Millisecond)
	second := &domain.LifecycleEvent{
		ID:        uuid.NewString(),
		Type:      domain.EventTypeActivate,
		CacheName: "log-v1",
		Succeeded: false,
		Detail:    "boom",
	}
	require.NoError(t, events.RecordEvent(ctx, second))

	list, err := events.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, domain.EventTypeActivate, list[0].Type)
	assert.False(t, list[0].Succeeded)
	assert.Equal(t, "boom", list[0].Detail)
	assert.Equal(t, first.ID, list[1].ID)

	list, err = events.ListEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	for i := 0; i < storage.DefaultEventLimit; i++ {
		require.NoError(t, events.RecordEvent(ctx, &domain.LifecycleEvent{
			ID:        uuid.NewString(),
			Type:      domain.EventTypeInstall,
			CacheName: "log-v2",
			Succeeded: true,
		}))
	}

	list, err = events.ListEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, storage.DefaultEventLimit, "limit <= 0 falls back to the default page size")
}
