package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/insights"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"key": "value"}
	writeJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}

	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["key"] != "value" {
		t.Errorf("body: got %v", got)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "invalid input" {
		t.Errorf("error message: got %q, want %q", resp.Error, "invalid input")
	}
}

func TestHTTPError_Mapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrAccountDisabled, http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{upload.ErrNotFound, http.StatusNotFound},
		{upload.ErrUnauthorized, http.StatusNotFound},
		{upload.ErrUserNotFound, http.StatusNotFound},
		{trigger.ErrPluginNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad header", upload.ErrDecode), http.StatusBadRequest},
		{fmt.Errorf("%w: bucket", upload.ErrValidation), http.StatusBadRequest},
		{auth.ErrInvalidInput, http.StatusBadRequest},
		{auth.ErrUsernameTaken, http.StatusConflict},
		{trigger.ErrPluginExists, http.StatusConflict},
		{fmt.Errorf("%w: timeout", insights.ErrUnavailable), http.StatusBadGateway},
		{fmt.Errorf("%w: pool closed", upload.ErrStorage), http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := httpError(testLogger(), "test", tt.err)
		var se huma.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("%v: not a status error", tt.err)
		}
		if se.GetStatus() != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, se.GetStatus(), tt.want)
		}
	}
}

func TestHTTPError_ForeignAndMissingLookAlike(t *testing.T) {
	missing := httpError(testLogger(), "test", upload.ErrNotFound)
	foreign := httpError(testLogger(), "test", upload.ErrUnauthorized)
	if missing.Error() != foreign.Error() {
		t.Errorf("messages differ: %q vs %q", missing.Error(), foreign.Error())
	}
}

func TestHTTPError_InternalHidesDetail(t *testing.T) {
	err := httpError(testLogger(), "test", errors.New("password=hunter2"))
	if err.Error() != "internal server error" {
		t.Errorf("got %q", err.Error())
	}
}
