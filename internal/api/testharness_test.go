package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/serverdb"
)

const testAPIKey = "rx_test_static_key"

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *serverdb.ServerDB
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

// newTestHarness creates a TestHarness with a real HTTP server on a random port.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	store, err := serverdb.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}

	cfg := Config{
		ListenAddr:       ":0",
		APIKeys:          []string{testAPIKey},
		RateLimitWrite:   100000,
		RateLimitRead:    100000,
		RateLimitChanges: 100000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.routes())

	h := &TestHarness{
		t:       t,
		Server:  srv,
		Store:   store,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
		httpSrv: httpSrv,
	}

	t.Cleanup(func() {
		srv.hub.Close()
		httpSrv.Close()
		store.Close()
	})

	return h
}

// remoteClient returns a remote.Client for the harness acting as deviceID.
func (h *TestHarness) remoteClient(deviceID string) *remote.Client {
	c := remote.New(h.BaseURL, testAPIKey, deviceID)
	c.HTTP = h.httpSrv.Client()
	return c
}

// do sends an authenticated JSON request as device "dev-test".
func (h *TestHarness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	return h.doWithKey(method, path, testAPIKey, body)
}

func (h *TestHarness) doWithKey(method, path, key string, body any) *http.Response {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.BaseURL+path, reader)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(remote.DeviceHeader, "dev-test")
	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// decode reads a JSON response body into v and closes it.
func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
