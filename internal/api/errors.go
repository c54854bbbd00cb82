package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/insights"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// httpError converts a service error into a huma status error. Anything
// unrecognised is logged and reported as a 500 without detail.
func httpError(logger *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		return huma.Error401Unauthorized(err.Error())
	case errors.Is(err, auth.ErrAccountDisabled):
		return huma.Error401Unauthorized(auth.ErrAccountDisabled.Error())
	case errors.Is(err, auth.ErrForbidden):
		return huma.Error403Forbidden(err.Error())

	// Foreign records are reported exactly like missing ones.
	case errors.Is(err, upload.ErrNotFound), errors.Is(err, upload.ErrUnauthorized):
		return huma.Error404NotFound(upload.ErrNotFound.Error())
	case errors.Is(err, upload.ErrUserNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, trigger.ErrPluginNotFound):
		return huma.Error404NotFound(err.Error())

	case errors.Is(err, upload.ErrDecode),
		errors.Is(err, upload.ErrValidation),
		errors.Is(err, auth.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())

	case errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, trigger.ErrPluginExists):
		return huma.Error409Conflict(err.Error())

	case errors.Is(err, insights.ErrUnavailable):
		logger.Warn("insights unavailable", "op", op, "error", err)
		return huma.Error502BadGateway(insights.ErrUnavailable.Error())
	}

	logger.Error("request failed", "op", op, "error", err)
	return huma.Error500InternalServerError("internal server error")
}

func parseID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest("invalid " + name)
	}
	return id, nil
}
