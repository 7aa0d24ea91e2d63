package dto

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mtlprog/offlinecache/internal/domain"
)

// CacheListResponse represents the response for GET /_offline/caches.
type CacheListResponse struct {
	Current string   `json:"current"`
	Caches  []string `json:"caches"`
}

// CacheDetailResponse lists the entries of one cache container.
type CacheDetailResponse struct {
	Name    string          `json:"name"`
	Current bool            `json:"current"`
	Entries []EntryResponse `json:"entries"`
}

// EntryResponse describes one stored response.
type EntryResponse struct {
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	StoredAt  time.Time `json:"stored_at"`
}

// LifecycleEventResponse is one lifecycle audit record.
type LifecycleEventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CacheName string    `json:"cache_name"`
	Succeeded bool      `json:"succeeded"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// EventsResponse represents the response for GET /_offline/events.
type EventsResponse struct {
	Events []LifecycleEventResponse `json:"events"`
}

// NewCacheDetailResponse converts entry infos.
func NewCacheDetailResponse(name, current string, infos []domain.EntryInfo) CacheDetailResponse {
	entries := make([]EntryResponse, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, EntryResponse{
			URL:       info.URL,
			Status:    info.Status,
			Size:      info.Size,
			SizeHuman: humanize.Bytes(uint64(info.Size)),
			StoredAt:  info.StoredAt,
		})
	}
	return CacheDetailResponse{
		Name:    name,
		Current: name == current,
		Entries: entries,
	}
}

// NewEventsResponse converts lifecycle events.
func NewEventsResponse(events []*domain.LifecycleEvent) EventsResponse {
	out := make([]LifecycleEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, LifecycleEventResponse{
			ID:        e.ID,
			Type:      string(e.Type),
			CacheName: e.CacheName,
			Succeeded: e.Succeeded,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	return EventsResponse{Events: out}
}
