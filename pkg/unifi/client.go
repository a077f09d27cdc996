// Package unifi is a client for the UniFi controller's proxied network API.
// It maintains a cookie-plus-CSRF session, re-authenticates when the
// controller expires it, and retries transient failures with a linearly
// increasing delay before surfacing the last error.
package unifi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unilens/unilens/pkg/tlsutil"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
	defaultSite        = "default"

	loginPath  = "/api/auth/login"
	logoutPath = "/api/auth/logout"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	config     ClientConfig
	mu         sync.Mutex
	session    *session
}

type ClientConfig struct {
	Host        string
	User        string
	Password    string
	Site        string
	Fingerprint string
	VerifySSL   bool
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// session is the authenticated state for one controller. A nil session on
// the client means unauthenticated; staleness is only discovered when the
// controller answers 401.
type session struct {
	cookies   string
	csrfToken string
}

// Response is the outcome of one authenticated controller call. Non-2xx
// statuses are returned as-is; the typed accessors decide how to treat them.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("controller host is required")
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
	if cfg.Site == "" {
		cfg.Site = defaultSite
	}

	if !strings.HasPrefix(cfg.Host, "http://") && !strings.HasPrefix(cfg.Host, "https://") {
		cfg.Host = "https://" + cfg.Host
	}

	if strings.HasPrefix(cfg.Host, "http://") {
		log.Warn().Str("host", cfg.Host).Msg("Using HTTP for controller connection - consider enabling HTTPS")
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.Host, "/"),
		httpClient: tlsutil.NewHTTPClient(cfg.VerifySSL, cfg.Fingerprint, cfg.Timeout),
		config:     cfg,
	}, nil
}

// Login authenticates against the controller and stores the issued cookies
// plus the CSRF token when one is returned. It does not retry; retry policy
// lives in Request.
func (c *Client) Login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.config.User,
		"password": c.config.Password,
	})
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &TimeoutError{Target: loginPath, Limit: c.config.Timeout}
		}
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{Status: resp.StatusCode, StatusText: resp.Status}
	}

	cookies := strings.Join(resp.Header.Values("Set-Cookie"), "; ")
	csrf := resp.Header.Get("X-Csrf-Token")

	c.mu.Lock()
	c.session = &session{cookies: cookies, csrfToken: csrf}
	c.mu.Unlock()

	log.Debug().
		Str("site", c.config.Site).
		Bool("csrfToken", csrf != "").
		Msg("Authenticated to controller")

	return nil
}

// Request performs an authenticated call, logging in first when no session is
// held. A 401-class answer triggers exactly one re-login and one resend of
// the original request. Transport failures are retried up to MaxAttempts with
// a delay of attempt × RetryDelay between tries; responses, including non-2xx
// ones, are returned whole.
func (c *Client) Request(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.attempt(ctx, method, path, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Controller state is unknown after a failure; the next attempt
		// starts from a fresh login.
		c.clearSession()

		log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Int("maxAttempts", c.config.MaxAttempts).
			Msg("Controller request failed")

		if attempt < c.config.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * c.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte) (*Response, error) {
	if c.currentSession() == nil {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		log.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Session rejected by controller, re-authenticating")

		c.clearSession()
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		return c.send(ctx, method, path, body)
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	if s := c.currentSession(); s != nil {
		if s.cookies != "" {
			req.Header.Set("Cookie", s.cookies)
		}
		if s.csrfToken != "" {
			req.Header.Set("X-Csrf-Token", s.csrfToken)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Target: path, Limit: c.config.Timeout}
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Target: path, Limit: c.config.Timeout}
		}
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}, nil
}

// Logout ends the controller session. Remote failures are logged and
// swallowed; local session state is always cleared.
func (c *Client) Logout(ctx context.Context) {
	if c.currentSession() == nil {
		return
	}

	resp, err := c.send(ctx, http.MethodPost, logoutPath, nil)
	switch {
	case err != nil:
		log.Debug().Err(err).Msg("Controller logout failed")
	case !resp.OK():
		log.Debug().Int("status", resp.StatusCode).Msg("Controller logout rejected")
	}

	c.clearSession()
}

// TrafficByApp fetches the per-client and site-wide application usage
// breakdowns for the window [startMs, endMs] in unix milliseconds.
func (c *Client) TrafficByApp(ctx context.Context, startMs, endMs int64) (*TrafficData, error) {
	var data TrafficData
	if err := c.getJSON(ctx, "traffic by app", c.trafficPath("app-usage", startMs, endMs), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// TrafficByCountry fetches the site-wide per-country usage aggregate for the
// window [startMs, endMs] in unix milliseconds.
func (c *Client) TrafficByCountry(ctx context.Context, startMs, endMs int64) (*CountryData, error) {
	var data CountryData
	if err := c.getJSON(ctx, "traffic by country", c.trafficPath("country-usage", startMs, endMs), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ClientTraffic fetches the application usage breakdown for a single client.
func (c *Client) ClientTraffic(ctx context.Context, mac string, startMs, endMs int64) (*TrafficData, error) {
	path := fmt.Sprintf("/proxy/network/v2/api/site/%s/traffic/client-usage/%s?%s",
		url.PathEscape(c.config.Site), url.PathEscape(mac), windowParams(startMs, endMs))

	var data TrafficData
	if err := c.getJSON(ctx, "client traffic", path, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) trafficPath(dataset string, startMs, endMs int64) string {
	return fmt.Sprintf("/proxy/network/v2/api/site/%s/traffic/%s?%s",
		url.PathEscape(c.config.Site), dataset, windowParams(startMs, endMs))
}

func windowParams(startMs, endMs int64) string {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(startMs, 10))
	params.Set("end", strconv.FormatInt(endMs, 10))
	return params.Encode()
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if !resp.OK() {
		return &APIError{Op: op, Status: resp.StatusCode, Detail: strings.TrimSpace(string(resp.Body))}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	return nil
}

func (c *Client) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
