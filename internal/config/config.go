package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultDatabaseURL is empty; without it (or a SQLite path) caches live in memory.
	DefaultDatabaseURL = ""

	// DefaultCacheName is the cache version the worker installs.
	DefaultCacheName = "asistencia-v2"
)

// Worker holds the offline worker settings read from the environment.
type Worker struct {
	CacheName    string        `env:"CACHE_NAME" envDefault:"asistencia-v2"`
	URLsToCache  []string      `env:"URLS_TO_CACHE" envDefault:"/" envSeparator:","`
	OriginURL    string        `env:"ORIGIN_URL" envDefault:"http://localhost:8000"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" envDefault:"33554432"`
	AdminToken   string        `env:"ADMIN_TOKEN"`
}

// LoadWorker parses Worker settings from environment variables.
func LoadWorker() (Worker, error) {
	var cfg Worker
	if err := env.Parse(&cfg); err != nil {
		return Worker{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Worker{}, err
	}
	return cfg, nil
}

// Validate checks the settings are usable.
func (w Worker) Validate() error {
	if w.CacheName == "" {
		return errors.New("CACHE_NAME must not be empty")
	}
	if len(w.URLsToCache) == 0 {
		return errors.New("URLS_TO_CACHE must list at least one URL")
	}
	if w.OriginURL == "" {
		return errors.New("ORIGIN_URL must not be empty")
	}
	if w.FetchTimeout < 0 {
		return errors.New("FETCH_TIMEOUT must not be negative")
	}
	return nil
}
