// Package worker implements the offline cache worker: it keeps the origin's
// root document in a named cache container and serves from that cache when
// the network is unreachable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/lifecycle"
	"github.com/mtlprog/offlinecache/internal/storage"
)

// Worker handles install, fetch and activate for one cache version.
type Worker struct {
	cacheName   string
	urlsToCache []string
	caches      storage.Caches
	events      storage.EventLog
	network     lifecycle.Fetcher
}

// Params configures a Worker.
type Params struct {
	CacheName   string
	URLsToCache []string
	Caches      storage.Caches
	Events      storage.EventLog // optional
	Network     lifecycle.Fetcher
}

// New creates a Worker. URLs to cache are normalized to request keys.
func New(p Params) (*Worker, error) {
	if p.CacheName == "" {
		return nil, domain.ErrEmptyCacheName
	}
	if p.Caches == nil {
		return nil, errors.New("cache storage is required")
	}
	if p.Network == nil {
		return nil, errors.New("network fetcher is required")
	}

	urls := make([]string, 0, len(p.URLsToCache))
	for _, raw := range p.URLsToCache {
		key, err := domain.ParseRequestKey(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("url to cache %q: %w", raw, err)
		}
		urls = append(urls, key)
	}

	return &Worker{
		cacheName:   p.CacheName,
		urlsToCache: urls,
		caches:      p.Caches,
		events:      p.Events,
		network:     p.Network,
	}, nil
}

// CacheName returns the current cache version name.
func (w *Worker) CacheName() string {
	return w.cacheName
}

// URLsToCache returns the request keys stored at install.
func (w *Worker) URLsToCache() []string {
	return append([]string(nil), w.urlsToCache...)
}

// Register attaches the worker's handlers to d.
func (w *Worker) Register(d *lifecycle.Dispatcher) {
	d.OnInstall(func(e *lifecycle.ExtendableEvent) {
		e.WaitUntil(w.Install)
	})
	d.OnFetch(func(e *lifecycle.FetchEvent) {
		_ = e.RespondWith(func(ctx context.Context) (*domain.Response, error) {
			return w.Fetch(ctx, e.Request), nil
		})
	})
	d.OnActivate(func(e *lifecycle.ExtendableEvent) {
		e.WaitUntil(w.Activate)
	})
}

// Install opens the current container and adds every URL to cache. Failures
// are logged and recorded, never returned: the install event always resolves.
func (w *Worker) Install(ctx context.Context) error {
	err := w.install(ctx)
	if err != nil {
		slog.Error("offline cache install failed",
			"cache_name", w.cacheName,
			"error", err,
		)
		w.record(ctx, domain.EventTypeInstall, false, err.Error())
		return nil
	}

	slog.Info("offline cache installed",
		"cache_name", w.cacheName,
		"urls", len(w.urlsToCache),
	)
	w.record(ctx, domain.EventTypeInstall, true, fmt.Sprintf("cached %d url(s)", len(w.urlsToCache)))
	return nil
}

func (w *Worker) install(ctx context.Context) error {
	if err := w.caches.Open(ctx, w.cacheName); err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	slog.Info("saving offline cache", "cache_name", w.cacheName, "urls", w.urlsToCache)

	entries, err := w.fetchAll(ctx, w.urlsToCache)
	if err != nil {
		return err
	}

	if err := w.caches.PutAll(ctx, w.cacheName, entries); err != nil {
		return fmt.Errorf("store responses: %w", err)
	}
	return nil
}

// fetchAll fetches every key concurrently. All responses must be 2xx,
// otherwise nothing is returned.
func (w *Worker) fetchAll(ctx context.Context, keys []string) ([]domain.Entry, error) {
	entries := make([]domain.Entry, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, key, nil)
			if err != nil {
				return fmt.Errorf("build request for %s: %w", key, err)
			}

			resp, err := w.network.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", key, err)
			}
			if !resp.OK() {
				return fmt.Errorf("%w: %s returned status %d", domain.ErrInvalidResponse, key, resp.Status)
			}

			entries[i] = domain.Entry{URL: key, Response: resp}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Fetch answers req network-first. When the live fetch fails it falls back
// to the cached entry for the exact request, then to the cached root
// document. A nil result means nothing is available.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) *domain.Response {
	resp, err := w.network.Fetch(ctx, req)
	if err == nil {
		resp.Source = domain.SourceNetwork
		return resp
	}

	slog.Debug("live fetch failed, falling back to cache",
		"method", req.Method,
		"url", domain.RequestKey(req.URL),
		"error", err,
	)

	if req.Method == http.MethodGet {
		if cached := w.match(ctx, domain.RequestKey(req.URL)); cached != nil {
			cached.Source = domain.SourceCache
			return cached
		}
	}

	if root := w.match(ctx, domain.RootURL); root != nil {
		root.Source = domain.SourceFallback
		return root
	}

	slog.Warn("no offline response available",
		"method", req.Method,
		"url", domain.RequestKey(req.URL),
	)
	return nil
}

// match treats storage errors as a miss.
func (w *Worker) match(ctx context.Context, key string) *domain.Response {
	resp, err := w.caches.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrEntryNotFound) {
			slog.Error("cache lookup failed", "url", key, "error", err)
		}
		return nil
	}
	return resp
}

// Activate deletes every container whose name is not the current cache name.
// Deletions run concurrently; the first failure is returned.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.caches.Keys(ctx)
	if err != nil {
		err = fmt.Errorf("list caches: %w", err)
		w.record(ctx, domain.EventTypeActivate, false, err.Error())
		return err
	}

	var stale []string
	for _, name := range names {
		if name != w.cacheName {
			stale = append(stale, name)
		}
	}

	var g errgroup.Group
	for _, name := range stale {
		g.Go(func() error {
			if _, err := w.caches.Delete(ctx, name); err != nil {
				return fmt.Errorf("delete cache %s: %w", name, err)
			}
			slog.Info("stale offline cache deleted", "cache_name", name)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("offline cache activate failed", "cache_name", w.cacheName, "error", err)
		w.record(ctx, domain.EventTypeActivate, false, err.Error())
		return err
	}

	slog.Info("offline cache activated", "cache_name", w.cacheName, "deleted", len(stale))
	w.record(ctx, domain.EventTypeActivate, true, fmt.Sprintf("deleted %d stale cache(s)", len(stale)))
	return nil
}

func (w *Worker) record(ctx context.Context, t domain.EventType, ok bool, detail string) {
	if w.events == nil {
		return
	}
	event := &domain.LifecycleEvent{
		ID:        uuid.NewString(),
		Type:      t,
		CacheName: w.cacheName,
		Succeeded: ok,
		Detail:    detail,
	}
	if err := w.events.RecordEvent(ctx, event); err != nil {
		slog.Error("failed to record lifecycle event", "type", t, "error", err)
	}
}
