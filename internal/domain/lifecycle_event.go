package domain

import "time"

// EventType represents the type of lifecycle event.
type EventType string

const (
	EventTypeInstall  EventType = "install"
	EventTypeActivate EventType = "activate"
	EventTypeFetch    EventType = "fetch"
)

// LifecycleEvent is an audit log entry for an install or activate dispatch.
type LifecycleEvent struct {
	ID        string
	Type      EventType
	CacheName string
	Succeeded bool
	Detail    string
	CreatedAt time.Time
}
