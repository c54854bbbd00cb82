package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
)

func setupPluginTestServer(t *testing.T) (*testEnv, string) {
	env := newTestEnv(t)
	_, token := env.user(t, "root", record.RoleAdmin)
	return env, token
}

func TestRegisterPlugin_Success(t *testing.T) {
	env, token := setupPluginTestServer(t)

	w := env.do(t, http.MethodPost, "/admin/plugins", token, map[string]any{
		"name":              "test-plugin",
		"endpoint":          "http://localhost:9000/rpc",
		"subscribed_events": []string{"upload.processed", "upload.deleted"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp PluginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "test-plugin" {
		t.Errorf("Name: got %q", resp.Name)
	}
	if resp.Status != "active" {
		t.Errorf("Status: got %q", resp.Status)
	}
	if resp.ID == uuid.Nil {
		t.Error("expected non-nil ID")
	}
	if len(resp.SubscribedEvents) != 2 {
		t.Errorf("SubscribedEvents: got %v", resp.SubscribedEvents)
	}
}

func TestRegisterPlugin_Validation(t *testing.T) {
	env, token := setupPluginTestServer(t)

	bodies := map[string]map[string]any{
		"missing name": {
			"endpoint":          "http://localhost:9000/rpc",
			"subscribed_events": []string{"upload.processed"},
		},
		"missing events": {
			"name":     "test-plugin",
			"endpoint": "http://localhost:9000/rpc",
		},
		"unknown event": {
			"name":              "test-plugin",
			"endpoint":          "http://localhost:9000/rpc",
			"subscribed_events": []string{"cell.written"},
		},
		"relative endpoint": {
			"name":              "test-plugin",
			"endpoint":          "/rpc",
			"subscribed_events": []string{"upload.processed"},
		},
	}
	for name, body := range bodies {
		w := env.do(t, http.MethodPost, "/admin/plugins", token, body)
		if w.Code < 400 || w.Code >= 500 {
			t.Errorf("%s: got %d, want 4xx\nbody: %s", name, w.Code, w.Body.String())
		}
	}
}

func TestRegisterPlugin_DuplicateName(t *testing.T) {
	env, token := setupPluginTestServer(t)
	body := map[string]any{
		"name":              "dup",
		"endpoint":          "http://localhost:9000/rpc",
		"subscribed_events": []string{"upload.failed"},
	}

	if w := env.do(t, http.MethodPost, "/admin/plugins", token, body); w.Code != http.StatusCreated {
		t.Fatalf("first register: got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/admin/plugins", token, body); w.Code != http.StatusConflict {
		t.Errorf("second register: got %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestListPlugins_Empty(t *testing.T) {
	env, token := setupPluginTestServer(t)

	w := env.do(t, http.MethodGet, "/admin/plugins", token, nil)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusOK)
	}

	var resp []PluginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("expected empty list, got %d", len(resp))
	}
}

func TestGetPlugin_Success(t *testing.T) {
	env, token := setupPluginTestServer(t)

	p := &trigger.Plugin{
		Name:             "test",
		Endpoint:         "http://localhost:9000/rpc",
		SubscribedEvents: []trigger.Event{trigger.EventUploadProcessed},
	}
	if err := env.plugins.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	w := env.do(t, http.MethodGet, "/admin/plugins/"+p.ID.String(), token, nil)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d\nbody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp PluginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != p.ID {
		t.Errorf("ID: got %s, want %s", resp.ID, p.ID)
	}
}

func TestGetPlugin_NotFound(t *testing.T) {
	env, token := setupPluginTestServer(t)

	w := env.do(t, http.MethodGet, "/admin/plugins/"+uuid.New().String(), token, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetPlugin_InvalidID(t *testing.T) {
	env, token := setupPluginTestServer(t)

	w := env.do(t, http.MethodGet, "/admin/plugins/not-a-uuid", token, nil)

	if w.Code < 400 || w.Code >= 500 {
		t.Errorf("status: got %d, want 4xx", w.Code)
	}
}

func TestDeletePlugin_Success(t *testing.T) {
	env, token := setupPluginTestServer(t)

	p := &trigger.Plugin{
		Name:             "test",
		Endpoint:         "http://localhost:9000/rpc",
		SubscribedEvents: []trigger.Event{trigger.EventUploadDeleted},
	}
	if err := env.plugins.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	w := env.do(t, http.MethodDelete, "/admin/plugins/"+p.ID.String(), token, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want %d\nbody: %s", w.Code, http.StatusNoContent, w.Body.String())
	}
	if len(env.plugins.List()) != 0 {
		t.Error("expected registry to be empty after delete")
	}
}

func TestDeletePlugin_NotFound(t *testing.T) {
	env, token := setupPluginTestServer(t)

	w := env.do(t, http.MethodDelete, "/admin/plugins/"+uuid.New().String(), token, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}
