package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/artifact"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/circuitbreaker"
	"github.com/ryanbastic/go-sheetviz/internal/insights"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage/storagetest"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
	"github.com/stretchr/testify/require"
)

const testMaxUpload = 1 << 20

type testEnv struct {
	handler http.Handler
	store   *storagetest.Store
	tokens  *auth.TokenIssuer
	plugins *trigger.PluginRegistry
}

type envOption func(*Deps)

func withBackends(b map[string]Pinger) envOption {
	return func(d *Deps) { d.Backends = b }
}

func withInsights(url, key string) envOption {
	return func(d *Deps) {
		d.Insights = insights.NewClient(insights.Options{
			URL:     url,
			APIKey:  key,
			Model:   "test-model",
			Timeout: 5 * time.Second,
			MaxRows: 10,
		}, circuitbreaker.New(3, time.Minute))
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := testLogger()
	store := storagetest.New()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	artifacts, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	uploads, err := upload.NewService(store, store, artifacts, logger, upload.Options{CacheSize: 16})
	require.NoError(t, err)

	plugins := trigger.NewPluginRegistry(nil)
	d := Deps{
		Logger:         logger,
		Tokens:         tokens,
		Auth:           auth.NewService(store, tokens, logger),
		Uploads:        uploads,
		Plugins:        plugins,
		MaxUploadBytes: testMaxUpload,
	}
	withInsights("http://127.0.0.1:1", "")(&d)
	for _, o := range opts {
		o(&d)
	}
	return &testEnv{handler: NewServer(d), store: store, tokens: tokens, plugins: plugins}
}

// user creates an account directly in the store and returns a bearer token for it.
func (e *testEnv) user(t *testing.T, name string, role record.Role) (*record.User, string) {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), record.NewUser{
		Username: name,
		Email:    name + "@example.com",
		Role:     role,
	})
	require.NoError(t, err)
	token, _, err := e.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, token, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// mustUpload ingests a CSV through the API and returns the new id.
func (e *testEnv) mustUpload(t *testing.T, token, fileName, content string) uuid.UUID {
	t.Helper()
	w := e.upload(t, token, fileName, []byte(content))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp CreateUploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.UploadID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}
