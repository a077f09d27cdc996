package influx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unilens/unilens/pkg/tlsutil"
	"github.com/unilens/unilens/pkg/unifi"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second

	// maxBatchSize bounds one write POST; batches never split a point.
	maxBatchSize = 500
)

// WriteError reports a write the store rejected on every attempt.
type WriteError struct {
	Status int
	Body   string
}

func (e *WriteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("influxdb write failed (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("influxdb write failed (status %d)", e.Status)
}

// TimeoutError reports a store call that exceeded its configured bound.
type TimeoutError struct {
	Target string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.Target, e.Limit)
}

type Config struct {
	URL         string
	Database    string
	Username    string
	Password    string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	BatchSize   int
}

// Writer delivers line-protocol batches to an InfluxDB 1.x instance over its
// HTTP API at nanosecond precision.
type Writer struct {
	writeURL   string
	pingURL    string
	httpClient *http.Client
	config     Config
}

func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influxdb url is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("influxdb database is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}

	base := strings.TrimSuffix(cfg.URL, "/")

	params := url.Values{}
	params.Set("db", cfg.Database)
	params.Set("precision", "ns")

	return &Writer{
		writeURL:   base + "/write?" + params.Encode(),
		pingURL:    base + "/ping",
		httpClient: tlsutil.NewHTTPClient(true, "", cfg.Timeout),
		config:     cfg,
	}, nil
}

// WriteBatch joins lines with newlines and posts them as one write request,
// retrying failures with a delay of attempt × RetryDelay between tries. It
// returns the number of lines written; the batch either lands fully or the
// last error is surfaced. An empty batch is a no-op.
func (w *Writer) WriteBatch(ctx context.Context, lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	body := strings.Join(lines, "\n")

	var lastErr error
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		err := w.post(ctx, body)
		if err == nil {
			return len(lines), nil
		}
		lastErr = err

		log.Warn().
			Err(err).
			Int("lines", len(lines)).
			Int("attempt", attempt).
			Int("maxAttempts", w.config.MaxAttempts).
			Msg("InfluxDB write failed")

		if attempt < w.config.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * w.config.RetryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}

	return 0, lastErr
}

// WriteSeq drains a point sequence into batches of at most the configured
// size, flushing each full batch as it fills and the remainder at the end.
// It returns the total number of points written. A failed batch aborts the
// drain; points from batches already flushed stay persisted.
func (w *Writer) WriteSeq(ctx context.Context, points iter.Seq[string]) (int, error) {
	batch := make([]string, 0, w.config.BatchSize)
	total := 0

	for line := range points {
		batch = append(batch, line)
		if len(batch) >= w.config.BatchSize {
			n, err := w.WriteBatch(ctx, batch)
			if err != nil {
				return total, err
			}
			total += n
			batch = batch[:0]
		}
	}

	n, err := w.WriteBatch(ctx, batch)
	if err != nil {
		return total, err
	}
	return total + n, nil
}

// WriteTrafficByApp encodes and writes the per-client application usage
// dataset, returning the number of points written.
func (w *Writer) WriteTrafficByApp(ctx context.Context, data *unifi.TrafficData, timestampMs int64) (int, error) {
	return w.WriteSeq(ctx, ClientAppPoints(data, timestampMs))
}

// WriteTotalUsageByApp encodes and writes the site-wide application usage
// dataset, returning the number of points written.
func (w *Writer) WriteTotalUsageByApp(ctx context.Context, data *unifi.TrafficData, timestampMs int64) (int, error) {
	return w.WriteSeq(ctx, TotalAppPoints(data, timestampMs))
}

// WriteTrafficByCountry encodes and writes the per-country usage dataset,
// returning the number of points written.
func (w *Writer) WriteTrafficByCountry(ctx context.Context, data *unifi.CountryData, timestampMs int64) (int, error) {
	return w.WriteSeq(ctx, CountryPoints(data, timestampMs))
}

// Ping probes the store's liveness endpoint under the same retry policy as
// writes. It never returns an error; persistent failure degrades to false so
// callers can gate on reachability without exception handling.
func (w *Writer) Ping(ctx context.Context) bool {
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		ok, err := w.ping(ctx)
		if ok {
			return true
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", w.config.MaxAttempts).
			Msg("InfluxDB ping failed")

		if attempt < w.config.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * w.config.RetryDelay):
			case <-ctx.Done():
				return false
			}
		}
	}

	return false
}

func (w *Writer) ping(ctx context.Context) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, w.pingURL, nil)
	if err != nil {
		return false, err
	}
	if w.config.Username != "" {
		req.SetBasicAuth(w.config.Username, w.config.Password)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("ping returned status %d", resp.StatusCode)
	}
	return true, nil
}

func (w *Writer) post(ctx context.Context, body string) error {
	reqCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.writeURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if w.config.Username != "" {
		req.SetBasicAuth(w.config.Username, w.config.Password)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &TimeoutError{Target: "/write", Limit: w.config.Timeout}
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &WriteError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
