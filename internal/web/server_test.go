package web

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/joestump/sqlitekit/internal/config"
	"github.com/joestump/sqlitekit/internal/db"
)

type testEnv struct {
	srv *Server
	db  *db.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.Initialize(); err != nil {
		t.Fatalf("initialize test db: %v", err)
	}

	cfg := &config.Config{
		DBPath:     dbPath,
		ListenAddr: "127.0.0.1:0",
	}
	return &testEnv{srv: New(cfg, database), db: database}
}

func TestNewUsesListenAddr(t *testing.T) {
	e := newTestEnv(t)
	if e.srv.server.Addr != "127.0.0.1:0" {
		t.Fatalf("expected addr 127.0.0.1:0, got %q", e.srv.server.Addr)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if id := w.Header().Get("X-Request-Id"); len(id) != 36 {
		t.Fatalf("expected uuid request id, got %q", id)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("expected client request id, got %q", got)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("GET", "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
