// Package api provides HTTP response utilities for Shepherd.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/haventree/shepherd/internal/models"
)

// Pre-marshaled fallback response to avoid runtime JSON encoding failures.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeDomainError maps core sentinel errors onto HTTP statuses, surfacing
// the specific reason to the caller.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConversationClosed),
		errors.Is(err, models.ErrTrainingIncomplete),
		errors.Is(err, models.ErrBackgroundCheckIncomplete):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrUnknownCategory),
		errors.Is(err, models.ErrEmptyMessage),
		errors.Is(err, models.ErrInvalidSender),
		errors.Is(err, models.ErrDescriptionTooLong),
		errors.Is(err, models.ErrEmptyName),
		errors.Is(err, models.ErrNameTooLong),
		errors.Is(err, models.ErrNoExpertise),
		errors.Is(err, models.ErrUnknownModule):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		slog.Error("Server: unhandled domain error", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
