package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/malwarebo/orderbridge/metrics"
	"github.com/malwarebo/orderbridge/store"
)

func TestHandleHealthReportsDBStatus(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	srv := httptest.NewServer(New(s, reg).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.DBOK || body.Status != "healthy" {
		t.Fatalf("body = %+v, want healthy/db_ok", body)
	}
}

func TestHandleHealthReportsUnhealthyAfterClose(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	s.Close()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	srv := httptest.NewServer(New(s, reg).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 after store closed", resp.StatusCode)
	}
}

func TestHandleStatsReturnsGoroutineCount(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	srv := httptest.NewServer(New(s, reg).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats error = %v", err)
	}
	defer resp.Body.Close()

	var body StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.GoRoutines <= 0 {
		t.Fatalf("GoRoutines = %d, want > 0", body.GoRoutines)
	}
}

func TestHandleMetricsExposesRegisteredSeries(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metrics.CyclesTotal.WithLabelValues("acme", "ok").Inc()

	srv := httptest.NewServer(New(s, reg).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
