package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/offlinecache/internal/config"
	"github.com/mtlprog/offlinecache/internal/database"
	"github.com/mtlprog/offlinecache/internal/lifecycle"
	"github.com/mtlprog/offlinecache/internal/network"
	"github.com/mtlprog/offlinecache/internal/repository"
	"github.com/mtlprog/offlinecache/internal/storage"
	"github.com/mtlprog/offlinecache/internal/storage/memory"
	"github.com/mtlprog/offlinecache/internal/storage/sqlite"
	"github.com/mtlprog/offlinecache/internal/worker"
)

// workerRuntime is the wired worker shared by every command.
type workerRuntime struct {
	cfg        config.Worker
	backend    storage.Backend
	worker     *worker.Worker
	dispatcher *lifecycle.Dispatcher
}

func (rt *workerRuntime) Close() {
	if rt.backend.Close != nil {
		rt.backend.Close()
	}
}

func newRuntime(ctx context.Context, c *cli.Context) (*workerRuntime, error) {
	cfg, err := config.LoadWorker()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	backend, err := openBackend(ctx, c.String("database-url"), c.String("sqlite-path"))
	if err != nil {
		return nil, err
	}

	client, err := network.New(cfg.OriginURL, network.Options{
		Timeout:      cfg.FetchTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create network client: %w", err)
	}

	w, err := worker.New(worker.Params{
		CacheName:   cfg.CacheName,
		URLsToCache: cfg.URLsToCache,
		Caches:      backend.Caches,
		Events:      backend.Events,
		Network:     client,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create worker: %w", err)
	}

	d := lifecycle.NewDispatcher(client)
	w.Register(d)

	return &workerRuntime{cfg: cfg, backend: backend, worker: w, dispatcher: d}, nil
}

// openBackend picks PostgreSQL, then SQLite, then memory.
func openBackend(ctx context.Context, databaseURL, sqlitePath string) (storage.Backend, error) {
	switch {
	case databaseURL != "":
		db, err := database.New(ctx, databaseURL)
		if err != nil {
			return storage.Backend{}, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(ctx, db.Pool()); err != nil {
			db.Close()
			return storage.Backend{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		return storage.Backend{
			Caches: repository.NewCacheRepository(db.Pool()),
			Events: repository.NewLifecycleEventRepository(db.Pool()),
			Health: db,
			Close:  db.Close,
		}, nil

	case sqlitePath != "":
		store, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			return storage.Backend{}, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return storage.Backend{
			Caches: store,
			Events: store,
			Health: store,
			Close: func() {
				if err := store.Close(); err != nil {
					slog.Error("failed to close sqlite storage", "error", err)
				}
			},
		}, nil

	default:
		slog.Warn("no database configured, cache storage is in memory and lost on exit")
		store := memory.New()
		return storage.Backend{Caches: store, Events: store, Health: store, Close: func() {}}, nil
	}
}

func printCaches(ctx context.Context, out io.Writer, caches storage.Caches, current string) error {
	names, err := caches.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CACHE\tURL\tSTATUS\tSIZE\tSTORED")
	for _, name := range names {
		infos, err := caches.Entries(ctx, name)
		if err != nil {
			return fmt.Errorf("list entries of %s: %w", name, err)
		}

		label := name
		if name == current {
			label += " (current)"
		}
		if len(infos) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", label)
			continue
		}
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				label, info.URL, info.Status, humanize.Bytes(uint64(info.Size)), humanize.Time(info.StoredAt))
		}
	}
	return tw.Flush()
}
