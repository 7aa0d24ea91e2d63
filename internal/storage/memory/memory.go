// Package memory keeps cache containers in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mtlprog/offlinecache/internal/domain"
	"github.com/mtlprog/offlinecache/internal/storage"
)

type container struct {
	createdAt time.Time
	entries   map[string]*domain.Response
}

// Store is an in-memory cache storage and event log. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	containers map[string]*container
	order      []string
	events     []*domain.LifecycleEvent
	now        func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		containers: make(map[string]*container),
		now:        time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Open opens the named container, creating it when missing.
func (s *Store) Open(ctx context.Context, name string) error {
	if name == "" {
		return domain.ErrEmptyCacheName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(name)
	return nil
}

func (s *Store) openLocked(name string) *container {
	c, ok := s.containers[name]
	if !ok {
		c = &container{createdAt: s.now(), entries: make(map[string]*domain.Response)}
		s.containers[name] = c
		s.order = append(s.order, name)
	}
	return c
}

// PutAll stores all entries under one lock.
func (s *Store) PutAll(ctx context.Context, name string, entries []domain.Entry) error {
	if name == "" {
		return domain.ErrEmptyCacheName
	}
	for _, e := range entries {
		if e.Response == nil {
			return fmt.Errorf("entry %s: %w", e.URL, domain.ErrInvalidResponse)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.openLocked(name)
	storedAt := s.now()
	for _, e := range entries {
		resp := e.Response.Clone()
		resp.URL = e.URL
		resp.StoredAt = storedAt
		resp.Source = ""
		c.entries[e.URL] = resp
	}
	return nil
}

// Match searches containers in creation order.
func (s *Store) Match(ctx context.Context, key string) (*domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.order {
		if resp, ok := s.containers[name].entries[key]; ok {
			return resp.Clone(), nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

// MatchIn looks the key up in one container.
func (s *Store) MatchIn(ctx context.Context, name, key string) (*domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[name]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	resp, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return resp.Clone(), nil
}

// Keys lists container names in creation order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.order...), nil
}

// Delete removes a container.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containers[name]; !ok {
		return false, nil
	}
	delete(s.containers, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Entries describes the entries of one container, sorted by URL.
func (s *Store) Entries(ctx context.Context, name string) ([]domain.EntryInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[name]
	if !ok {
		return nil, domain.ErrCacheNotFound
	}
	infos := make([]domain.EntryInfo, 0, len(c.entries))
	for url, resp := range c.entries {
		infos = append(infos, domain.EntryInfo{
			URL:      url,
			Status:   resp.Status,
			Size:     int64(len(resp.Body)),
			StoredAt: resp.StoredAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].URL < infos[j].URL })
	return infos, nil
}

// RecordEvent appends a lifecycle event.
func (s *Store) RecordEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	e := *event
	s.events = append(s.events, &e)
	return nil
}

// ListEvents returns up to limit events, newest first. A limit <= 0 means
// storage.DefaultEventLimit.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}
	if limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]*domain.LifecycleEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := *s.events[i]
		out = append(out, &e)
	}
	return out, nil
}
