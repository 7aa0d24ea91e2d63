package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mtlprog/offlinecache/internal/handler/dto"
	"github.com/mtlprog/offlinecache/internal/lifecycle"
	"github.com/mtlprog/offlinecache/internal/middleware"
	"github.com/mtlprog/offlinecache/internal/static"
	"github.com/mtlprog/offlinecache/internal/storage"
	"github.com/mtlprog/offlinecache/internal/worker"
)

// SourceHeader tells clients where a proxied response came from.
const SourceHeader = "X-Offline-Cache"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dispatcher     *lifecycle.Dispatcher
	worker         *worker.Worker
	caches         storage.Caches
	events         storage.EventLog
	health         storage.Pinger
	authMiddleware *middleware.AuthMiddleware
	serviceWorker  []byte
}

// Params holds Handler dependencies.
type Params struct {
	Dispatcher *lifecycle.Dispatcher
	Worker     *worker.Worker
	Backend    storage.Backend
	AdminToken string
}

// New creates a new Handler instance with all dependencies.
func New(p Params) (*Handler, error) {
	if p.Dispatcher == nil || p.Worker == nil {
		return nil, errors.New("dispatcher and worker are required")
	}
	if p.Backend.Caches == nil || p.Backend.Events == nil {
		return nil, errors.New("cache storage and event log are required")
	}

	script, err := static.RenderServiceWorker(static.ServiceWorkerParams{
		CacheName:   p.Worker.CacheName(),
		URLsToCache: p.Worker.URLsToCache(),
	})
	if err != nil {
		return nil, fmt.Errorf("render service worker: %w", err)
	}

	return &Handler{
		dispatcher:     p.Dispatcher,
		worker:         p.Worker,
		caches:         p.Backend.Caches,
		events:         p.Backend.Events,
		health:         p.Backend.Health,
		authMiddleware: middleware.NewAuthMiddleware(p.AdminToken),
		serviceWorker:  script,
	}, nil
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	// Browser worker script
	mux.HandleFunc("GET /sw.js", h.handleServiceWorker)

	// Admin API
	mux.Handle("GET /_offline/caches", h.authMiddleware.Authenticate(http.HandlerFunc(h.handleListCaches)))
	mux.Handle("GET /_offline/caches/{name}", h.authMiddleware.Authenticate(http.HandlerFunc(h.handleGetCache)))
	mux.Handle("POST /_offline/install", h.authMiddleware.Authenticate(http.HandlerFunc(h.handleInstall)))
	mux.Handle("POST /_offline/activate", h.authMiddleware.Authenticate(http.HandlerFunc(h.handleActivate)))
	mux.Handle("GET /_offline/events", h.authMiddleware.Authenticate(http.HandlerFunc(h.handleListEvents)))

	// Everything else goes through the worker
	mux.HandleFunc("/", h.handleFetch)
}

// handleHealthz returns 200 OK if the cache storage is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Ping(r.Context()); err != nil {
		slog.Error("storage health check failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleServiceWorker serves the browser worker script. It must be served
// from the root path so its scope covers the whole origin.
func (h *Handler) handleServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Service-Worker-Allowed", "/")
	w.WriteHeader(http.StatusOK)
	w.Write(h.serviceWorker)
}

// Ping checks if the cache storage is reachable.
func (h *Handler) Ping(ctx context.Context) error {
	if h.health == nil {
		return nil
	}
	return h.health.Ping(ctx)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.NewErrorResponse(code, message))
}
