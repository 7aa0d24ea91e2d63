package domain

import "errors"

// Domain-specific errors for cache storage and the offline worker.
var (
	// Cache storage errors
	ErrCacheNotFound  = errors.New("cache not found")
	ErrEntryNotFound  = errors.New("cache entry not found")
	ErrEmptyCacheName = errors.New("cache name is required")

	// Network errors
	ErrNetwork         = errors.New("network request failed")
	ErrInvalidResponse = errors.New("invalid network response")

	// Lifecycle errors
	ErrAlreadyResponded = errors.New("fetch event already has a response")
)
