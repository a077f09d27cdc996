// Package api implements the dashboard HTTP surface: the InfluxDB query
// proxy, health and version endpoints, Prometheus metrics, and the static
// frontend.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/unilens/unilens/internal/config"
)

// Version is reported by /api/version. The binary overwrites it at startup.
var Version = "dev"

// Router handles HTTP routing for the dashboard server.
type Router struct {
	router  *mux.Router
	config  *config.Config
	proxy   *QueryProxy
	started time.Time
}

// NewRouter creates the dashboard handler.
func NewRouter(cfg *config.Config) http.Handler {
	r := &Router{
		router:  mux.NewRouter(),
		config:  cfg,
		proxy:   NewQueryProxy(cfg),
		started: time.Now(),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	api := r.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/query", r.proxy.HandleQuery).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/health", r.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/version", r.handleVersion).Methods(http.MethodGet)

	r.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Everything else is the frontend build
	r.router.PathPrefix("/").Handler(spaHandler{staticDir: r.config.FrontendDir})
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	if strings.HasPrefix(req.URL.Path, "/api/") {
		addSecurityHeaders(w)
	}

	start := time.Now()
	r.router.ServeHTTP(w, req)
	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", requestID).
		Dur("duration", time.Since(start)).
		Msg("Request handled")
}

func addSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

// handleHealth reports server liveness and InfluxDB reachability.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	influxUp := r.proxy.Ping(req.Context())

	status := "healthy"
	if !influxUp {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":         status,
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": time.Since(r.started).Seconds(),
		"influxdb":       influxUp,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Error().Err(err).Msg("Failed to encode health response")
	}
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	version := map[string]interface{}{
		"version": Version,
		"runtime": "go",
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(version); err != nil {
		log.Error().Err(err).Msg("Failed to encode version response")
	}
}
