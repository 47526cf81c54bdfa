// Package httpapi is the small ops surface the engine exposes alongside its
// polling goroutines: a liveness/readiness probe and a Prometheus scrape
// endpoint. It follows the same mux-routed, JSON-envelope handler shape as
// the payment gateway's own health endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/malwarebo/orderbridge/store"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	DBOK      bool      `json:"db_ok"`
}

type StatsResponse struct {
	GoRoutines int    `json:"goroutines"`
	Uptime     string `json:"uptime"`
}

var startTime = time.Now()

// Server wires the health/stats/metrics routes onto a mux.Router. It holds
// only a Store reference to ping on /health; the poller goroutines and the
// HTTP server share no other state.
type Server struct {
	store    *store.Store
	registry *prometheus.Registry
}

func New(s *store.Store, registry *prometheus.Registry) *Server {
	return &Server{store: s, registry: registry}
}

func (srv *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", srv.handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(srv.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := srv.pingDB() == nil

	status := "healthy"
	code := http.StatusOK
	if !dbOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		DBOK:      dbOK,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (srv *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		GoRoutines: runtime.NumGoroutine(),
		Uptime:     time.Since(startTime).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (srv *Server) pingDB() error {
	return srv.store.Ping()
}
