package handler

import (
	"net/http"
	"strconv"

	"github.com/mtlprog/offlinecache/internal/handler/dto"
)

const maxEventsLimit = 200

// handleListCaches returns every cache container name.
func (h *Handler) handleListCaches(w http.ResponseWriter, r *http.Request) {
	names, err := h.caches.Keys(r.Context())
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}
	if names == nil {
		names = []string{}
	}

	respondJSON(w, http.StatusOK, dto.CacheListResponse{
		Current: h.worker.CacheName(),
		Caches:  names,
	})
}

// handleGetCache lists the entries of one container.
func (h *Handler) handleGetCache(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "cache name is required")
		return
	}

	infos, err := h.caches.Entries(r.Context(), name)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCacheDetailResponse(name, h.worker.CacheName(), infos))
}

// handleInstall dispatches an install event and reports the current container.
// Install failures are logged by the worker; the container is then empty.
func (h *Handler) handleInstall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.dispatcher.DispatchInstall(ctx); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	infos, err := h.caches.Entries(ctx, h.worker.CacheName())
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCacheDetailResponse(h.worker.CacheName(), h.worker.CacheName(), infos))
}

// handleActivate dispatches an activate event and returns the remaining containers.
func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.dispatcher.DispatchActivate(ctx); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	h.handleListCaches(w, r)
}

// handleListEvents returns recent lifecycle events, newest first.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventsLimit {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	events, err := h.events.ListEvents(r.Context(), limit)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewEventsResponse(events))
}
