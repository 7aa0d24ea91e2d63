// Package storage defines the cache storage contract the offline worker runs on.
//
// A cache storage holds named containers. Each container maps a request key
// (path plus query) to the response captured when the entry was added.
// Implementations live in internal/repository (PostgreSQL), storage/sqlite and
// storage/memory.
package storage

import (
	"context"

	"github.com/mtlprog/offlinecache/internal/domain"
)

// Caches is the named cache container API.
type Caches interface {
	// Open opens the named container, creating it when missing.
	Open(ctx context.Context, name string) error
	// PutAll stores every entry in the named container, creating it when
	// missing. Either all entries are stored or none are.
	PutAll(ctx context.Context, name string, entries []domain.Entry) error
	// Match looks the key up across all containers, oldest container first.
	// Returns domain.ErrEntryNotFound when no container holds it.
	Match(ctx context.Context, key string) (*domain.Response, error)
	// MatchIn looks the key up in one container.
	MatchIn(ctx context.Context, name, key string) (*domain.Response, error)
	// Keys lists container names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a container and its entries. Reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Entries describes the entries of one container.
	Entries(ctx context.Context, name string) ([]domain.EntryInfo, error)
}

// DefaultEventLimit is the page size ListEvents uses when limit <= 0.
const DefaultEventLimit = 50

// EventLog records lifecycle dispatches.
type EventLog interface {
	RecordEvent(ctx context.Context, event *domain.LifecycleEvent) error
	ListEvents(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error)
}

// Pinger reports whether the storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend bundles one storage implementation's facets.
type Backend struct {
	Caches Caches
	Events EventLog
	Health Pinger
	Close  func()
}
