package admin

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/testutil/testlog"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s := New(Config{NodeID: "cookies-a", Role: "cookie-server"}, nil)

	rr := get(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["node"] != "cookies-a" || body["role"] != "cookie-server" {
		t.Fatalf("unexpected health body %#v", body)
	}

	if rr := get(t, s, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rr.Code)
	}
	s.SetReady(true)
	if rr := get(t, s, "/ready"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", rr.Code)
	}
}

func TestCookiesReportHidesValues(t *testing.T) {
	testlog.Start(t)
	cfg := cookie.DefaultConfig()
	cfg.Rand = rand.New(rand.NewSource(7))
	store := cookie.NewStore(cfg)
	granted := store.Admit("cp://10.0.0.5:5000")
	if !granted.Success {
		t.Fatalf("admit: %+v", granted)
	}
	s := New(Config{NodeID: "cookies-a"}, store)

	rr := get(t, s, "/cookies")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), strconv.Itoa(granted.Value)) {
		t.Fatalf("cookie value leaked: %s", rr.Body.String())
	}
	var report CookieReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Capacity != cookie.DefaultCapacity || report.Active != 1 || len(report.Clients) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Clients[0].Client != "cp://10.0.0.5:5000" || report.Clients[0].Remaining == "" {
		t.Fatalf("unexpected client entry %+v", report.Clients[0])
	}
}

func TestCookiesWithoutStore(t *testing.T) {
	testlog.Start(t)
	s := New(Config{NodeID: "commands-a"}, nil)
	if rr := get(t, s, "/cookies"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a store, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New(Config{NodeID: "metrics-a"}, nil)
	_ = get(t, s, "/health")

	rr := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cpnet_admin_http_requests_total") {
		t.Fatalf("expected admin request counter in metrics output")
	}
}
