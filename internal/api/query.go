package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/unilens/unilens/internal/config"
	"github.com/unilens/unilens/internal/metrics"
)

// QueryProxy forwards dashboard queries to the InfluxDB /query endpoint,
// injecting the database name and credentials so the browser never sees
// them.
type QueryProxy struct {
	queryURL string
	pingURL  string
	database string
	username string
	password string
	client   *http.Client
}

// NewQueryProxy builds a proxy for the configured InfluxDB instance.
func NewQueryProxy(cfg *config.Config) *QueryProxy {
	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := strings.TrimSuffix(cfg.InfluxURL, "/")
	return &QueryProxy{
		queryURL: base + "/query",
		pingURL:  base + "/ping",
		database: cfg.InfluxDB,
		username: cfg.InfluxUser,
		password: cfg.InfluxPass,
		client:   &http.Client{Timeout: timeout},
	}
}

// HandleQuery proxies a single query. The q parameter is required; epoch is
// forwarded when present so dashboards can pick their timestamp precision.
func (p *QueryProxy) HandleQuery(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	query := req.FormValue("q")
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, "missing q parameter")
		metrics.RecordQuery(http.StatusBadRequest, time.Since(start))
		return
	}

	params := url.Values{}
	params.Set("db", p.database)
	params.Set("q", query)
	if epoch := req.FormValue("epoch"); epoch != "" {
		params.Set("epoch", epoch)
	}

	upstream, err := http.NewRequestWithContext(req.Context(), http.MethodGet, p.queryURL+"?"+params.Encode(), nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to build upstream request")
		metrics.RecordQuery(http.StatusInternalServerError, time.Since(start))
		return
	}
	if p.username != "" {
		upstream.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.client.Do(upstream)
	if err != nil {
		log.Warn().Err(err).Msg("Query proxy request failed")
		writeJSONError(w, http.StatusBadGateway, "time-series store unreachable")
		metrics.RecordQuery(http.StatusBadGateway, time.Since(start))
		return
	}
	defer resp.Body.Close()

	// Pass the store's verdict through untouched, including query errors
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debug().Err(err).Msg("Query response copy interrupted")
	}

	metrics.RecordQuery(resp.StatusCode, time.Since(start))
}

// Ping reports whether InfluxDB answers its liveness endpoint.
func (p *QueryProxy) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.pingURL, nil)
	if err != nil {
		return false
	}
	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
