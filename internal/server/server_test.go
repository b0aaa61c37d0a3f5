package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-master/internal/config"
)

func testConfig(storage, dbPath string) *config.Config {
	return &config.Config{
		Port:             8080,
		Storage:          storage,
		DBPath:           dbPath,
		JWTSecret:        "integration-test-secret",
		LogLevel:         "error",
		BcryptCost:       4,
		ReminderDelay:    time.Second,
		ReminderInterval: time.Minute,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

// client is a tiny API client that sends the bearer token once it has one.
type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, raw
}

func (c *client) authenticate(path string, body map[string]string, wantStatus int) {
	c.t.Helper()
	status, raw := c.do(http.MethodPost, path, body)
	require.Equal(c.t, wantStatus, status, string(raw))

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(c.t, json.Unmarshal(raw, &resp))
	require.NotEmpty(c.t, resp.Token)
	c.token = resp.Token
}

func TestServer_EndToEnd(t *testing.T) {
	ts := newTestServer(t, testConfig(config.StorageMemory, ""))
	ann := &client{t: t, base: ts.URL}

	// Anonymous requests are rejected.
	status, _ := ann.do(http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	ann.authenticate("/auth/register", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "Secret#123",
	}, http.StatusCreated)

	status, raw := ann.do(http.MethodPost, "/api/tasks", map[string]string{"text": "Buy milk", "category": "Shopping"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var task struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &task))

	status, _ = ann.do(http.MethodPost, "/api/tasks/"+task.ID+"/toggle", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw = ann.do(http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"total":1,"active":0,"completed":1,"overdue":0,"byCategory":[{"name":"Shopping","count":1}]}`, string(raw))

	status, raw = ann.do(http.MethodDelete, "/api/categories/Shopping", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["Personal","Work","Health","Other"]`, string(raw))

	// Bob logs in: the single session moves to him and Ann's token stops working.
	bob := &client{t: t, base: ts.URL}
	bob.authenticate("/auth/register", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "Secret#456",
	}, http.StatusCreated)

	status, _ = ann.do(http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw = bob.do(http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))

	// Ann comes back and sees her own data.
	ann.authenticate("/auth/login", map[string]string{
		"email": "ann@example.com", "password": "Secret#123",
	}, http.StatusOK)
	status, raw = ann.do(http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "Buy milk")

	status, _ = ann.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = ann.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_RestoresSessionAfterRestart(t *testing.T) {
	cfg := testConfig(config.StorageSQLite, filepath.Join(t.TempDir(), "data", "tm.db"))

	first, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(first.Handler())
	ann := &client{t: t, base: ts.URL}
	ann.authenticate("/auth/register", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "Secret#123",
	}, http.StatusCreated)
	status, _ := ann.do(http.MethodPost, "/api/tasks", map[string]string{"text": "Survive restart"})
	require.Equal(t, http.StatusCreated, status)
	ts.Close()
	require.NoError(t, first.Close())

	// Same secret and same database: the old token is still valid and the
	// persisted session points the Task Store at Ann's partition.
	second := newTestServer(t, cfg)
	ann.base = second.URL

	status, raw := ann.do(http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), "Survive restart")

	status, raw = ann.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":"ann_example_com","name":"Ann","email":"ann@example.com"}`, string(raw))
}

func TestNew_RejectsBadConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig(config.StorageMemory, "")
	cfg.JWTSecret = "short"
	_, err := New(cfg, logger)
	assert.Error(t, err)

	cfg = testConfig("redis", "")
	_, err = New(cfg, logger)
	assert.Error(t, err)
}
