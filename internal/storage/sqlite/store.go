// Package sqlite provides SQLite-backed cache storage for single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store provides SQLite-backed persistence for cache containers and lifecycle events.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens and migrates a cache SQLite store.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := store.runMigrations(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("sqlite cache storage opened", "path", path)
	return store, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}

	slog.Info("cache storage migrations completed", "dialect", "sqlite", "applied", len(results), "version", version)
	return nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Open creates the named container if it does not exist.
func (s *Store) Open(ctx context.Context, name string) error {
	if name == "" {
		return domain.ErrEmptyCacheName
	}
	return s.open(ctx, s.sqlDB, name)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) open(ctx context.Context, db execer, name string) error {
	query, args, err := sq.
		Insert("cache_containers").
		Columns("name", "created_at").
		Values(name, s.now().UnixNano()).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("open cache %s: %w", name, err)
	}
	return nil
}

// PutAll stores every entry in one transaction.
func (s *Store) PutAll(ctx context.Context, name string, entries []domain.Entry) error {
	if name == "" {
		return domain.ErrEmptyCacheName
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := s.open(ctx, tx, name); err != nil {
		return err
	}

	storedAt := s.now().UnixNano()
	for _, e := range entries {
		if e.Response == nil {
			return fmt.Errorf("entry %s: %w", e.URL, domain.ErrInvalidResponse)
		}

		header := e.Response.Header
		if header == nil {
			header = http.Header{}
		}
		headerJSON, err := json.Marshal(header)
		if err != nil {
			return fmt.Errorf("encode header for %s: %w", e.URL, err)
		}
		body := e.Response.Body
		if body == nil {
			body = []byte{}
		}

		query, args, err := sq.
			Insert("cache_entries").
			Columns("cache_name", "request_url", "status", "header", "body", "stored_at").
			Values(name, e.URL, e.Response.Status, string(headerJSON), body, storedAt).
			Suffix(`ON CONFLICT (cache_name, request_url) DO UPDATE SET
				status = excluded.status,
				header = excluded.header,
				body = excluded.body,
				stored_at = excluded.stored_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("put cache entry %s: %w", e.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var entryColumns = []string{"e.request_url", "e.status", "e.header", "e.body", "e.stored_at"}

func scanResponse(row *sql.Row) (*domain.Response, error) {
	var resp domain.Response
	var headerJSON string
	var storedAt int64
	if err := row.Scan(&resp.URL, &resp.Status, &headerJSON, &resp.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	resp.Header = http.Header{}
	if err := json.Unmarshal([]byte(headerJSON), &resp.Header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	resp.StoredAt = time.Unix(0, storedAt)
	return &resp, nil
}

// Match finds the entry for key in the oldest container holding it.
func (s *Store) Match(ctx context.Context, key string) (*domain.Response, error) {
	query, args, err := sq.
		Select(entryColumns...).
		From("cache_entries e").
		Join("cache_containers c ON c.name = e.cache_name").
		Where(sq.Eq{"e.request_url": key}).
		OrderBy("c.created_at ASC", "c.name ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return scanResponse(s.sqlDB.QueryRowContext(ctx, query, args...))
}

// MatchIn finds the entry for key in the named container.
func (s *Store) MatchIn(ctx context.Context, name, key string) (*domain.Response, error) {
	query, args, err := sq.
		Select(entryColumns...).
		From("cache_entries e").
		Where(sq.Eq{"e.cache_name": name, "e.request_url": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return scanResponse(s.sqlDB.QueryRowContext(ctx, query, args...))
}

// Keys lists container names in creation order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	query, args, err := sq.
		Select("name").
		From("cache_containers").
		OrderBy("created_at ASC", "name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return names, nil
}

// Delete removes the named container and its entries.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	// Entries are removed explicitly in case foreign keys are disabled on this connection.
	entriesQuery, entriesArgs, err := sq.Delete("cache_entries").Where(sq.Eq{"cache_name": name}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, entriesQuery, entriesArgs...); err != nil {
		return false, fmt.Errorf("delete cache entries %s: %w", name, err)
	}

	query, args, err := sq.Delete("cache_containers").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return affected > 0, nil
}

// Entries describes the entries of the named container, sorted by URL.
func (s *Store) Entries(ctx context.Context, name string) ([]domain.EntryInfo, error) {
	var exists int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cache_containers WHERE name = ?)`, name,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check cache %s: %w", name, err)
	}
	if exists == 0 {
		return nil, domain.ErrCacheNotFound
	}

	query, args, err := sq.
		Select("request_url", "status", "length(body)", "stored_at").
		From("cache_entries").
		Where(sq.Eq{"cache_name": name}).
		OrderBy("request_url ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	infos := []domain.EntryInfo{}
	for rows.Next() {
		var info domain.EntryInfo
		var storedAt int64
		if err := rows.Scan(&info.URL, &info.Status, &info.Size, &storedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		info.StoredAt = time.Unix(0, storedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return infos, nil
}

// RecordEvent inserts a lifecycle event and fills in its ID and creation time.
func (s *Store) RecordEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	query, args, err := sq.
		Insert("lifecycle_events").
		Columns("id", "type", "cache_name", "succeeded", "detail", "created_at").
		Values(event.ID, string(event.Type), event.CacheName, event.Succeeded, event.Detail, event.CreatedAt.UnixNano()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create lifecycle event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events, newest first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error) {
	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}

	query, args, err := sq.
		Select("id", "type", "cache_name", "succeeded", "detail", "created_at").
		From("lifecycle_events").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle events: %w", err)
	}
	defer rows.Close()

	var events []*domain.LifecycleEvent
	for rows.Next() {
		var event domain.LifecycleEvent
		var eventType string
		var createdAt int64
		if err := rows.Scan(&event.ID, &eventType, &event.CacheName, &event.Succeeded, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		event.Type = domain.EventType(eventType)
		event.CreatedAt = time.Unix(0, createdAt)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}
