package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/advisor-console/internal/service/backend"
	"github.com/zhouzirui/advisor-console/internal/service/backend/backendtest"
	consoleService "github.com/zhouzirui/advisor-console/internal/service/console"
)

func newTestRouter(t *testing.T, origins []string) http.Handler {
	t.Helper()

	srv := backendtest.New()
	t.Cleanup(srv.Close)

	ctrl := consoleService.New(backend.NewClient(srv.URL, 0), nil, nil, consoleService.Options{})
	t.Cleanup(ctrl.Close)
	return NewRouter(ctrl, Options{AllowedOrigins: origins})
}

func TestRouterPing(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRouterMountsAPI(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil || originChecker([]string{"*"}) != nil {
		t.Fatal("wildcard origins must accept every origin")
	}

	check := originChecker([]string{"http://localhost:3000"})
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	if !check(req) {
		t.Fatal("requests without Origin must pass")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Fatal("allowed origin rejected")
	}
	req.Header.Set("Origin", "http://other.example")
	if check(req) {
		t.Fatal("unknown origin accepted")
	}
}
