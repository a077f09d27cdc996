package collector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unilens/unilens/internal/config"
	internalerrors "github.com/unilens/unilens/internal/errors"
)

const trafficPayload = `{
	"client_usage_by_app": [
		{
			"client": {"mac": "aa:bb:cc:dd:ee:01", "name": "Desk", "is_wired": true},
			"usage_by_app": [
				{"application": 65, "category": 4, "bytes_received": 100, "bytes_transmitted": 50}
			]
		}
	],
	"total_usage_by_app": [
		{"application": 65, "category": 4, "bytes_received": 100, "bytes_transmitted": 50, "client_count": 1}
	]
}`

const countryPayload = `{
	"usage_by_country": [
		{"country": "DE", "bytes_received": 10, "bytes_transmitted": 20}
	]
}`

// stubController fakes the controller endpoints the collector touches and
// counts how often each is hit.
type stubController struct {
	srv *httptest.Server

	mu           sync.Mutex
	loginCalls   int
	appCalls     int
	countryCalls int
	logoutCalls  int

	appStatus int // 0 means 200
}

func newStubController(t *testing.T) *stubController {
	t.Helper()
	sc := &stubController{}
	sc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc.mu.Lock()
		defer sc.mu.Unlock()

		switch {
		case r.URL.Path == "/api/auth/login":
			sc.loginCalls++
			w.Header().Add("Set-Cookie", "TOKEN=abc; Path=/")
			w.Header().Set("X-Csrf-Token", "csrf-1")
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/api/auth/logout":
			sc.logoutCalls++
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/traffic/app-usage"):
			sc.appCalls++
			if sc.appStatus != 0 {
				http.Error(w, "dpi engine unavailable", sc.appStatus)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(trafficPayload))
		case strings.HasSuffix(r.URL.Path, "/traffic/country-usage"):
			sc.countryCalls++
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(countryPayload))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(sc.srv.Close)
	return sc
}

func (sc *stubController) counts() (login, app, country, logout int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.loginCalls, sc.appCalls, sc.countryCalls, sc.logoutCalls
}

// stubInflux fakes /write and /ping and records write bodies.
type stubInflux struct {
	srv *httptest.Server

	mu          sync.Mutex
	bodies      []string
	writeStatus int // 0 means 204
}

func newStubInflux(t *testing.T) *stubInflux {
	t.Helper()
	si := &stubInflux{}
	si.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/write":
			body, _ := io.ReadAll(r.Body)
			si.mu.Lock()
			status := si.writeStatus
			if status == 0 {
				si.bodies = append(si.bodies, string(body))
			}
			si.mu.Unlock()
			if status != 0 {
				http.Error(w, "disk full", status)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(si.srv.Close)
	return si
}

func (si *stubInflux) written() []string {
	si.mu.Lock()
	defer si.mu.Unlock()
	out := make([]string, len(si.bodies))
	copy(out, si.bodies)
	return out
}

func testConfig(controllerURL, influxURL string) *config.Config {
	return &config.Config{
		UnifiURL:          controllerURL,
		UnifiUser:         "viewer",
		UnifiPass:         "hunter2",
		UnifiSite:         "default",
		InfluxURL:         influxURL,
		InfluxDB:          "unilens",
		PollInterval:      time.Hour,
		PollLookback:      time.Minute,
		ConnectionTimeout: 5 * time.Second,
		MaxAttempts:       1,
		RetryDelay:        time.Millisecond,
		BatchSize:         500,
	}
}

func TestRunOnceWritesAllDatasets(t *testing.T) {
	t.Parallel()

	controller := newStubController(t)
	influxdb := newStubInflux(t)

	c, err := New(testConfig(controller.srv.URL, influxdb.srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	bodies := influxdb.written()
	if len(bodies) != 3 {
		t.Fatalf("expected 3 write batches, got %d: %q", len(bodies), bodies)
	}
	if !strings.HasPrefix(bodies[0], "traffic_by_app,client_mac=aa:bb:cc:dd:ee:01") {
		t.Errorf("unexpected per-client batch: %q", bodies[0])
	}
	if !strings.HasPrefix(bodies[1], "total_traffic_by_app,app=65") {
		t.Errorf("unexpected totals batch: %q", bodies[1])
	}
	if !strings.HasPrefix(bodies[2], "traffic_by_country,country=DE") {
		t.Errorf("unexpected country batch: %q", bodies[2])
	}

	login, app, country, _ := controller.counts()
	if login != 1 || app != 1 || country != 1 {
		t.Errorf("unexpected controller calls: login=%d app=%d country=%d", login, app, country)
	}
}

func TestRunOnceFetchFailureSkipsWrites(t *testing.T) {
	t.Parallel()

	controller := newStubController(t)
	controller.appStatus = http.StatusInternalServerError
	influxdb := newStubInflux(t)

	c, err := New(testConfig(controller.srv.URL, influxdb.srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected RunOnce to fail")
	}

	var colErr *internalerrors.CollectError
	if !errors.As(err, &colErr) {
		t.Fatalf("expected CollectError, got %T: %v", err, err)
	}
	if colErr.Type != internalerrors.ErrorTypeAPI {
		t.Errorf("expected api error type, got %q", colErr.Type)
	}
	if colErr.Op != "fetch_traffic_by_app" {
		t.Errorf("unexpected op %q", colErr.Op)
	}

	if got := influxdb.written(); len(got) != 0 {
		t.Errorf("expected no writes after failed fetch, got %q", got)
	}
	if _, _, country, _ := controller.counts(); country != 0 {
		t.Errorf("country fetch should be skipped, got %d calls", country)
	}
}

func TestRunOnceAuthFailureClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	influxdb := newStubInflux(t)

	c, err := New(testConfig(srv.URL, influxdb.srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.RunOnce(context.Background())
	var colErr *internalerrors.CollectError
	if !errors.As(err, &colErr) {
		t.Fatalf("expected CollectError, got %T: %v", err, err)
	}
	if colErr.Type != internalerrors.ErrorTypeAuth {
		t.Errorf("expected auth error type, got %q", colErr.Type)
	}
	if colErr.Retryable {
		t.Error("auth failures should not be marked retryable")
	}
}

func TestRunOnceWriteFailureClassified(t *testing.T) {
	t.Parallel()

	controller := newStubController(t)
	influxdb := newStubInflux(t)
	influxdb.writeStatus = http.StatusInternalServerError

	c, err := New(testConfig(controller.srv.URL, influxdb.srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.RunOnce(context.Background())
	var colErr *internalerrors.CollectError
	if !errors.As(err, &colErr) {
		t.Fatalf("expected CollectError, got %T: %v", err, err)
	}
	if colErr.Type != internalerrors.ErrorTypeWrite {
		t.Errorf("expected write error type, got %q", colErr.Type)
	}
	if colErr.Op != "write_traffic_by_app" {
		t.Errorf("unexpected op %q", colErr.Op)
	}
}

func TestReloadSwitchesTargets(t *testing.T) {
	t.Parallel()

	controllerA := newStubController(t)
	controllerB := newStubController(t)
	influxdb := newStubInflux(t)

	c, err := New(testConfig(controllerA.srv.URL, influxdb.srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	c.Reload(testConfig(controllerB.srv.URL, influxdb.srv.URL))

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce after reload: %v", err)
	}

	if _, app, _, _ := controllerA.counts(); app != 1 {
		t.Errorf("old controller should not be polled after reload, got %d app calls", app)
	}
	if _, app, _, _ := controllerB.counts(); app != 1 {
		t.Errorf("new controller should be polled after reload, got %d app calls", app)
	}
}

func TestRunLogsOutOnCancel(t *testing.T) {
	t.Parallel()

	controller := newStubController(t)
	influxdb := newStubInflux(t)

	c, err := New(testConfig(controller.srv.URL, influxdb.srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Wait for the immediate first cycle to finish before canceling
	deadline := time.Now().Add(5 * time.Second)
	for {
		if len(influxdb.written()) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for first cycle")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, _, _, logout := controller.counts(); logout != 1 {
		t.Errorf("expected one logout on shutdown, got %d", logout)
	}
}
