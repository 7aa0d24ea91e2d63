package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/offlinecache/internal/domain"
)

// entryColumns is the shared list of columns for response queries.
var entryColumns = []string{"e.request_url", "e.status", "e.header", "e.body", "e.stored_at"}

// CacheRepository handles database operations for cache containers and their entries.
type CacheRepository struct {
	pool *pgxpool.Pool
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(pool *pgxpool.Pool) *CacheRepository {
	return &CacheRepository{pool: pool}
}

// scanResponse scans a single row into a Response.
func scanResponse(row pgx.Row) (*domain.Response, error) {
	var resp domain.Response
	var headerJSON []byte
	err := row.Scan(
		&resp.URL,
		&resp.Status,
		&headerJSON,
		&resp.Body,
		&resp.StoredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	resp.Header = http.Header{}
	if err := json.Unmarshal(headerJSON, &resp.Header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	return &resp, nil
}

// Open creates the named container if it does not exist.
func (r *CacheRepository) Open(ctx context.Context, name string) error {
	if name == "" {
		return domain.ErrEmptyCacheName
	}
	return r.open(ctx, r.pool, name)
}

func (r *CacheRepository) open(ctx context.Context, db execer, name string) error {
	query, args, err := psql.
		Insert("cache_containers").
		Columns("name").
		Values(name).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("open cache %s: %w", name, err)
	}
	return nil
}

// PutAll stores every entry in one transaction.
func (r *CacheRepository) PutAll(ctx context.Context, name string, entries []domain.Entry) error {
	if name == "" {
		return domain.ErrEmptyCacheName
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := r.open(ctx, tx, name); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Response == nil {
			return fmt.Errorf("entry %s: %w", e.URL, domain.ErrInvalidResponse)
		}

		headerJSON, err := json.Marshal(headerOrEmpty(e.Response.Header))
		if err != nil {
			return fmt.Errorf("encode header for %s: %w", e.URL, err)
		}
		body := e.Response.Body
		if body == nil {
			body = []byte{}
		}

		query, args, err := psql.
			Insert("cache_entries").
			Columns("cache_name", "request_url", "status", "header", "body").
			Values(name, e.URL, e.Response.Status, string(headerJSON), body).
			Suffix(`ON CONFLICT (cache_name, request_url) DO UPDATE SET
				status = EXCLUDED.status,
				header = EXCLUDED.header,
				body = EXCLUDED.body,
				stored_at = EXCLUDED.stored_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("put cache entry %s: %w", e.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Match finds the entry for key in the oldest container holding it.
func (r *CacheRepository) Match(ctx context.Context, key string) (*domain.Response, error) {
	query, args, err := psql.
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

	return scanResponse(r.pool.QueryRow(ctx, query, args...))
}

// MatchIn finds the entry for key in the named container.
func (r *CacheRepository) MatchIn(ctx context.Context, name, key string) (*domain.Response, error) {
	query, args, err := psql.
		Select(entryColumns...).
		From("cache_entries e").
		Where(sq.Eq{"e.cache_name": name, "e.request_url": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return scanResponse(r.pool.QueryRow(ctx, query, args...))
}

// Keys lists container names in creation order.
func (r *CacheRepository) Keys(ctx context.Context) ([]string, error) {
	query, args, err := psql.
		Select("name").
		From("cache_containers").
		OrderBy("created_at ASC", "name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache names: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect cache names: %w", err)
	}
	return names, nil
}

// Delete removes the named container. Entries go with it (ON DELETE CASCADE).
func (r *CacheRepository) Delete(ctx context.Context, name string) (bool, error) {
	query, args, err := psql.
		Delete("cache_containers").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Entries describes the entries of the named container, sorted by URL.
func (r *CacheRepository) Entries(ctx context.Context, name string) ([]domain.EntryInfo, error) {
	exists, err := r.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrCacheNotFound
	}

	query, args, err := psql.
		Select("request_url", "status", "octet_length(body)", "stored_at").
		From("cache_entries").
		Where(sq.Eq{"cache_name": name}).
		OrderBy("request_url ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	infos := []domain.EntryInfo{}
	for rows.Next() {
		var info domain.EntryInfo
		if err := rows.Scan(&info.URL, &info.Status, &info.Size, &info.StoredAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return infos, nil
}

func (r *CacheRepository) exists(ctx context.Context, name string) (bool, error) {
	query, args, err := psql.
		Select("1").
		Prefix("SELECT EXISTS (").
		From("cache_containers").
		Where(sq.Eq{"name": name}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check cache %s: %w", name, err)
	}
	return exists, nil
}

func headerOrEmpty(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h
}
