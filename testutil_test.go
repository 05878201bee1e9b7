package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperkishore/home-internet/logger"
	"github.com/hyperkishore/home-internet/monitor"
	"github.com/hyperkishore/home-internet/stats"
	"github.com/hyperkishore/home-internet/storage"
)

type testAPI struct {
	srv   *httptest.Server
	store *storage.SQLiteStore
	logs  *logger.Logger
}

// newTestAPI serves the full route table over an in-memory store.
func newTestAPI(t *testing.T, mutate func(*Config)) *testAPI {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Server.RateLimitEnabled = false
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.NewSQLiteStore(":memory:", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	store.SetLimits(cfg.ListLimits())
	t.Cleanup(func() { store.Close() })

	engine, err := stats.NewEngine(store, cfg.EngineOptions())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	hub, live := newLiveFeed(cfg.Server.CORSAllowOrigin)
	t.Cleanup(hub.Stop)

	svc, err := monitor.New(store, engine, monitor.Options{Feed: hub})
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}

	logs := logger.New(logger.DEBUG, "", 100)
	logs.SetConsoleWriter(nil)

	api := &apiServer{svc: svc, cfg: cfg, logs: logs, live: live}
	if cfg.Server.RateLimitEnabled {
		api.limiter = NewIPRateLimiter(cfg.Server.RateLimitRequests, cfg.RateLimitWindow())
		t.Cleanup(api.limiter.Stop)
	}

	srv := httptest.NewServer(api.routes())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: store, logs: logs}
}

func (a *testAPI) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(a.srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testAPI) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(a.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decode(t, resp, &body)
	return body.Error.Code
}
