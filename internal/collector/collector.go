// Package collector drives the periodic collection cycle: fetch traffic
// datasets from the controller, encode them as line protocol, and write
// them to InfluxDB.
package collector

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/unilens/unilens/internal/config"
	internalerrors "github.com/unilens/unilens/internal/errors"
	"github.com/unilens/unilens/internal/metrics"
	"github.com/unilens/unilens/pkg/influx"
	"github.com/unilens/unilens/pkg/unifi"
)

// Collector owns the controller session and the InfluxDB writer and runs
// collection cycles on a timer.
type Collector struct {
	mu       sync.Mutex
	client   *unifi.Client
	writer   *influx.Writer
	interval time.Duration
	lookback time.Duration
	host     string
}

// New builds a collector from the loaded configuration.
func New(cfg *config.Config) (*Collector, error) {
	c := &Collector{}
	if err := c.configure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) configure(cfg *config.Config) error {
	client, err := unifi.NewClient(unifi.ClientConfig{
		Host:        cfg.UnifiURL,
		User:        cfg.UnifiUser,
		Password:    cfg.UnifiPass,
		Site:        cfg.UnifiSite,
		Fingerprint: cfg.UnifiFingerprint,
		VerifySSL:   cfg.UnifiVerifySSL,
		Timeout:     cfg.ConnectionTimeout,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	})
	if err != nil {
		return err
	}

	writer, err := influx.NewWriter(influx.Config{
		URL:         cfg.InfluxURL,
		Database:    cfg.InfluxDB,
		Username:    cfg.InfluxUser,
		Password:    cfg.InfluxPass,
		Timeout:     cfg.ConnectionTimeout,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		BatchSize:   cfg.BatchSize,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.client
	c.client = client
	c.writer = writer
	c.interval = cfg.PollInterval
	c.lookback = cfg.PollLookback
	c.host = cfg.UnifiURL
	c.mu.Unlock()

	if old != nil {
		// Tear the old session down in the background so a reload never
		// blocks on a slow controller.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			old.Logout(ctx)
		}()
	}

	return nil
}

// Reload swaps in clients built from updated configuration. A cycle already
// in flight finishes with the old clients; the next one uses the new ones.
func (c *Collector) Reload(cfg *config.Config) {
	if err := c.configure(cfg); err != nil {
		log.Error().Err(err).Msg("Config reload failed, keeping previous clients")
		return
	}
	log.Info().Msg("Collector reconfigured")
}

// Run executes collection cycles until ctx is canceled. The first cycle
// starts immediately.
func (c *Collector) Run(ctx context.Context) error {
	c.checkInflux(ctx)

	c.RunOnce(ctx)

	interval := c.currentInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-ticker.C:
			c.RunOnce(ctx)
			if next := c.currentInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				log.Info().Dur("interval", interval).Msg("Poll interval updated")
			}
		}
	}
}

// RunOnce executes a single collection cycle and returns the classified
// failure, if any. Failures are recorded and logged here; callers only need
// the error for one-shot mode.
func (c *Collector) RunOnce(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	writer := c.writer
	lookback := c.lookback
	host := c.host
	c.mu.Unlock()

	cycleStart := time.Now()
	windowEnd := cycleStart.UnixMilli()
	windowStart := cycleStart.Add(-lookback).UnixMilli()

	err := collect(ctx, client, writer, host, windowStart, windowEnd)
	duration := time.Since(cycleStart)

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown in progress, not a collection failure
			return err
		}
		metrics.RecordCycle(false, duration)

		var colErr *internalerrors.CollectError
		if errors.As(err, &colErr) {
			metrics.RecordFailure(string(colErr.Type))
			log.Error().
				Err(err).
				Str("op", colErr.Op).
				Bool("retryable", colErr.Retryable).
				Dur("duration", duration).
				Msg("Collection cycle failed")
		} else {
			metrics.RecordFailure(string(internalerrors.ErrorTypeInternal))
			log.Error().Err(err).Dur("duration", duration).Msg("Collection cycle failed")
		}
		return err
	}

	metrics.RecordCycle(true, duration)
	log.Debug().
		Dur("duration", duration).
		Int64("window_start_ms", windowStart).
		Int64("window_end_ms", windowEnd).
		Msg("Collection cycle completed")
	return nil
}

// collect runs one cycle's fetch and write steps in order, stopping at the
// first failure. The cycle end doubles as the timestamp for every point so
// all three datasets land on the same instant.
func collect(ctx context.Context, client *unifi.Client, writer *influx.Writer, host string, startMs, endMs int64) error {
	traffic, err := client.TrafficByApp(ctx, startMs, endMs)
	if err != nil {
		return classify("fetch_traffic_by_app", host, err)
	}

	n, err := writer.WriteTrafficByApp(ctx, traffic, endMs)
	if err != nil {
		return classify("write_traffic_by_app", host, err)
	}
	metrics.RecordPoints(influx.MeasurementTrafficByApp, n)

	n, err = writer.WriteTotalUsageByApp(ctx, traffic, endMs)
	if err != nil {
		return classify("write_total_traffic_by_app", host, err)
	}
	metrics.RecordPoints(influx.MeasurementTotalTrafficApp, n)

	countries, err := client.TrafficByCountry(ctx, startMs, endMs)
	if err != nil {
		return classify("fetch_traffic_by_country", host, err)
	}

	n, err = writer.WriteTrafficByCountry(ctx, countries, endMs)
	if err != nil {
		return classify("write_traffic_by_country", host, err)
	}
	metrics.RecordPoints(influx.MeasurementTrafficByCountry, n)

	return nil
}

// classify wraps a step failure in a CollectError so metrics and logs agree
// on the failure category.
func classify(op, target string, err error) *internalerrors.CollectError {
	var (
		authErr      *unifi.AuthError
		apiErr       *unifi.APIError
		apiTimeout   *unifi.TimeoutError
		writeErr     *influx.WriteError
		writeTimeout *influx.TimeoutError
	)

	switch {
	case errors.As(err, &authErr):
		return internalerrors.NewCollectError(internalerrors.ErrorTypeAuth, op, target, err).WithStatusCode(authErr.Status)
	case errors.As(err, &apiErr):
		errType := internalerrors.ErrorTypeAPI
		if apiErr.Status == 401 || apiErr.Status == 403 {
			errType = internalerrors.ErrorTypeAuth
		}
		return internalerrors.NewCollectError(errType, op, target, err).WithStatusCode(apiErr.Status)
	case errors.As(err, &apiTimeout) || errors.As(err, &writeTimeout):
		return internalerrors.NewCollectError(internalerrors.ErrorTypeTimeout, op, target, err)
	case errors.As(err, &writeErr):
		return internalerrors.NewCollectError(internalerrors.ErrorTypeWrite, op, target, err).WithStatusCode(writeErr.Status)
	case errors.Is(err, context.DeadlineExceeded):
		return internalerrors.NewCollectError(internalerrors.ErrorTypeTimeout, op, target, err)
	default:
		// Transport-level errors: timeout takes precedence over generic
		// connection failures.
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return internalerrors.NewCollectError(internalerrors.ErrorTypeTimeout, op, target, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) || errors.As(err, &urlErr) {
			return internalerrors.NewCollectError(internalerrors.ErrorTypeConnection, op, target, err)
		}
		return internalerrors.NewCollectError(internalerrors.ErrorTypeInternal, op, target, err)
	}
}

// checkInflux pings InfluxDB once at startup so reachability problems show
// up before the first write.
func (c *Collector) checkInflux(ctx context.Context) {
	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()

	up := writer.Ping(ctx)
	metrics.RecordInfluxUp(up)
	if up {
		log.Info().Msg("InfluxDB is reachable")
	} else {
		log.Warn().Msg("InfluxDB is not reachable, writes will be retried each cycle")
	}
}

// Close ends the controller session. Run calls it on shutdown; one-shot
// callers should call it after their cycle.
func (c *Collector) Close() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client.Logout(ctx)
	log.Info().Msg("Collector stopped")
}

func (c *Collector) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}
