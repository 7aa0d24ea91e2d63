package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/storage"
)

// LifecycleEventRepository handles database operations for lifecycle events.
type LifecycleEventRepository struct {
	pool *pgxpool.Pool
}

// NewLifecycleEventRepository creates a new LifecycleEventRepository.
func NewLifecycleEventRepository(pool *pgxpool.Pool) *LifecycleEventRepository {
	return &LifecycleEventRepository{pool: pool}
}

// RecordEvent inserts a lifecycle event and fills in its ID and creation time.
func (r *LifecycleEventRepository) RecordEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query, args, err := psql.
		Insert("lifecycle_events").
		Columns("id", "type", "cache_name", "succeeded", "detail").
		Values(event.ID, event.Type, event.CacheName, event.Succeeded, event.Detail).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&event.CreatedAt); err != nil {
		return fmt.Errorf("create lifecycle event: %w", err)
	}

	return nil
}

// ListEvents returns the most recent events, newest first.
func (r *LifecycleEventRepository) ListEvents(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error) {
	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}

	query, args, err := psql.
		Select("id", "type", "cache_name", "succeeded", "detail", "created_at").
		From("lifecycle_events").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle events: %w", err)
	}
	defer rows.Close()

	var events []*domain.LifecycleEvent
	for rows.Next() {
		var event domain.LifecycleEvent
		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.CacheName,
			&event.Succeeded,
			&event.Detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}
