// Package api provides HTTP handlers for the VARK gateway.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/vark-gateway/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

// ErrorBody is the error member of a failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error writes a JSON error response in the gateway's uniform shape.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, struct {
		OK    bool      `json:"ok"`
		Error ErrorBody `json:"error"`
	}{Error: ErrorBody{Code: code, Message: message}})
}
