package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, calls *atomic.Int32, prompts chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && len(req.Messages) > 0 && prompts != nil {
			prompts <- req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"North leads."}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInsights_FromUpload(t *testing.T) {
	var calls atomic.Int32
	prompts := make(chan string, 1)
	srv := completionServer(t, &calls, prompts)
	env := newTestEnv(t, withInsights(srv.URL, "key"))
	_, token := env.user(t, "alice", record.RoleUser)
	id := env.mustUpload(t, token, "regions.csv", regionsCSV)

	w := env.do(t, http.MethodPost, "/ai/generate-insights", token, map[string]string{"uploadId": id.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "North leads.", decode[InsightsResponse](t, w).Summary)
	assert.Contains(t, <-prompts, "north")
}

func TestInsights_InlineTable(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, &calls, nil)
	env := newTestEnv(t, withInsights(srv.URL, "key"))
	_, token := env.user(t, "alice", record.RoleUser)

	w := env.do(t, http.MethodPost, "/ai/generate-insights", token, map[string]any{
		"tableData": []map[string]any{{"region": "north", "units": 12}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestInsights_ForeignUploadLooksMissing(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, &calls, nil)
	env := newTestEnv(t, withInsights(srv.URL, "key"))
	_, aliceToken := env.user(t, "alice", record.RoleUser)
	_, bobToken := env.user(t, "bob", record.RoleUser)
	id := env.mustUpload(t, aliceToken, "regions.csv", regionsCSV)

	w := env.do(t, http.MethodPost, "/ai/generate-insights", bobToken, map[string]string{"uploadId": id.String()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, "/ai/generate-insights", bobToken, map[string]string{"uploadId": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, calls.Load())
}

func TestInsights_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice", record.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/ai/generate-insights", "", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/ai/generate-insights", token, map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/ai/generate-insights", token, map[string]string{"uploadId": "nope"}).Code)
}

func TestInsights_UpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	env := newTestEnv(t, withInsights(srv.URL, "key"))
	_, token := env.user(t, "alice", record.RoleUser)

	w := env.do(t, http.MethodPost, "/ai/generate-insights", token, map[string]any{"tableData": []int{1, 2}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "overloaded"), "upstream detail should not leak")
}

func TestInsights_NoAPIKey(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice", record.RoleUser)

	w := env.do(t, http.MethodPost, "/ai/generate-insights", token, map[string]any{"tableData": []int{1}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
