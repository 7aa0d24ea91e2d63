package dto

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mtlprog/offlinecache/internal/domain"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResponse creates a new error response.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// MapDomainError maps domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code string, message string) {
	message = err.Error()

	switch {
	// Cache storage errors
	case errors.Is(err, domain.ErrCacheNotFound):
		return http.StatusNotFound, "CACHE_NOT_FOUND", message
	case errors.Is(err, domain.ErrEntryNotFound):
		return http.StatusNotFound, "ENTRY_NOT_FOUND", message
	case errors.Is(err, domain.ErrEmptyCacheName):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", message

	// Network errors
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway, "NETWORK_ERROR", message
	case errors.Is(err, domain.ErrInvalidResponse):
		return http.StatusBadGateway, "INVALID_RESPONSE", message

	// Default: internal server error
	default:
		slog.Error("unmapped domain error returned to client",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
		)
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}
