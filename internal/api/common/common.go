package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/catalog-cache/internal/service"
)

// DataResponse wraps every successful API response
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteData writes data inside the {"data": ...} envelope
func WriteData(w http.ResponseWriter, data any, statusCode int) {
	WriteJSONResponse(w, DataResponse{Data: data}, statusCode)
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// WriteServiceError writes a command error with the status its code maps to.
// Only the user-facing message is sent; the cause is logged.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	err = service.Translate(err)
	var svcErr *service.Error
	errors.As(err, &svcErr)

	status := StatusFor(svcErr.Code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", svcErr.Code,
			"request_id", middleware.GetReqID(r.Context()),
			"error", svcErr.Err)
	}
	WriteJSONResponse(w, ErrorResponse{Error: svcErr.Message, Code: string(svcErr.Code)}, status)
}

// StatusFor maps an error code to an HTTP status
func StatusFor(code service.Code) int {
	switch code {
	case service.CodeProfileNotFound, service.CodeItemNotFound:
		return http.StatusNotFound
	case service.CodeAlreadyActive, service.CodeNotActive:
		return http.StatusConflict
	case service.CodeInvalidSettings, service.CodeInvalidQuery, service.CodeCredentialsMissing:
		return http.StatusBadRequest
	case service.CodeNetwork, service.CodeRemoteAuth:
		return http.StatusBadGateway
	case service.CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
