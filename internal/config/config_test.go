package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/offlinecache/internal/config"
)

func TestLoadWorker_Defaults(t *testing.T) {
	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultCacheName, cfg.CacheName)
	assert.Equal(t, []string{"/"}, cfg.URLsToCache)
	assert.Equal(t, "http://localhost:8000", cfg.OriginURL)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, int64(32<<20), cfg.MaxBodyBytes)
	assert.Empty(t, cfg.AdminToken)
}

func TestLoadWorker_FromEnv(t *testing.T) {
	t.Setenv("CACHE_NAME", "asistencia-v3")
	t.Setenv("URLS_TO_CACHE", "/,/offline")
	t.Setenv("ORIGIN_URL", "https://asistencia.example")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	assert.Equal(t, "asistencia-v3", cfg.CacheName)
	assert.Equal(t, []string{"/", "/offline"}, cfg.URLsToCache)
	assert.Equal(t, "https://asistencia.example", cfg.OriginURL)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "secret", cfg.AdminToken)
}

func TestLoadWorker_InvalidDuration(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "soon")

	_, err := config.LoadWorker()
	assert.Error(t, err)
}

func TestWorker_Validate(t *testing.T) {
	valid := config.Worker{CacheName: "v1", URLsToCache: []string{"/"}, OriginURL: "http://localhost"}
	require.NoError(t, valid.Validate())

	noName := valid
	noName.CacheName = ""
	assert.Error(t, noName.Validate())

	noURLs := valid
	noURLs.URLsToCache = nil
	assert.Error(t, noURLs.Validate())

	negative := valid
	negative.FetchTimeout = -time.Second
	assert.Error(t, negative.Validate())
}
