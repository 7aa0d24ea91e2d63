package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mtlprog/offlinecache/internal/handler/dto"
)

// handleFetch dispatches a fetch event for the request and writes whatever
// response the worker produced.
func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.dispatcher.DispatchFetch(ctx, r)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}
	if resp == nil {
		respondError(w, http.StatusGatewayTimeout, "OFFLINE_UNAVAILABLE", "origin unreachable and nothing cached")
		return
	}

	header := w.Header()
	for name, values := range resp.Header {
		header[name] = append([]string(nil), values...)
	}
	if r.Method != http.MethodHead || header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	header.Set(SourceHeader, string(resp.Source))

	w.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		slog.Debug("failed to write response body", "url", r.URL.Path, "error", err)
	}
}
