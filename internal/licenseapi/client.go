// Package licenseapi is the client for the remote license server. It is the
// only package that performs network I/O on behalf of the license subsystem.
package licenseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

const (
	// DefaultBaseURL is the production license API.
	DefaultBaseURL = "https://api.licensegate.app/v1"

	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Observer is told the outcome of each request so it can track
// reachability. A nil error means the server answered.
type Observer interface {
	Observe(err error)
}

// Client is a client for the license API.
type Client struct {
	baseURL    string
	appVersion string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   Observer
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAppVersion sets the version sent in the user agent and request body.
func WithAppVersion(v string) Option {
	return func(c *Client) { c.appVersion = v }
}

// WithActivationLimiter throttles Activate. A nil limiter disables
// throttling.
func WithActivationLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithObserver reports request outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithClock sets the time source used for activation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new license API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		appVersion: "dev",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(5*time.Second), 3),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "licenseapi")
	return c
}

// UserAgent returns the User-Agent header sent with every request.
func (c *Client) UserAgent() string {
	return fmt.Sprintf("licensegate/%s (%s; %s)", c.appVersion, runtime.GOOS, runtime.GOARCH)
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// ValidationResult is the server's answer to a validation request.
type ValidationResult struct {
	Valid    bool
	Snapshot *license.Snapshot
	Message  string
}

// Activate binds key to this machine and returns the resulting license. The
// license roster holds only this machine.
func (c *Client) Activate(ctx context.Context, key, hardwareID, machineName string) (*license.License, error) {
	if err := license.ValidateKey(key); err != nil {
		return nil, err
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, &APIError{Kind: KindRateLimited, Message: "too many activation attempts, try again shortly"}
	}

	var env envelope
	err := c.post(ctx, "/license/activate", activateRequest{
		LicenseKey:  key,
		HardwareID:  hardwareID,
		MachineName: machineName,
		AppVersion:  c.appVersion,
	}, &env)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &APIError{Kind: KindServerError, Code: "ACTIVATION_FAILED", Message: env.Message}
	}
	snap, err := env.snapshot()
	if err != nil {
		return nil, err
	}
	return license.FromSnapshot(*snap, key, hardwareID, machineName, c.now()), nil
}

// Validate asks the server whether key is still good for this machine.
// A server that answers valid=false yields a result, not an error.
func (c *Client) Validate(ctx context.Context, key, hardwareID string) (*ValidationResult, error) {
	if err := license.ValidateKey(key); err != nil {
		return nil, err
	}

	var env envelope
	err := c.post(ctx, "/license/validate", machineRequest{
		LicenseKey: key,
		HardwareID: hardwareID,
		AppVersion: c.appVersion,
	}, &env)
	if err != nil {
		return nil, err
	}
	if !env.Valid {
		return &ValidationResult{Message: env.Message}, nil
	}
	snap, err := env.snapshot()
	if err != nil {
		return nil, err
	}
	return &ValidationResult{Valid: true, Snapshot: snap, Message: env.Message}, nil
}

// Deactivate releases this machine's slot on key.
func (c *Client) Deactivate(ctx context.Context, key, hardwareID string) (bool, error) {
	if err := license.ValidateKey(key); err != nil {
		return false, err
	}

	var env envelope
	err := c.post(ctx, "/license/deactivate", machineRequest{
		LicenseKey: key,
		HardwareID: hardwareID,
		AppVersion: c.appVersion,
	}, &env)
	if err != nil {
		return false, err
	}
	return env.Success, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out *envelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &APIError{Kind: KindDecodingError, Message: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &APIError{Kind: KindNetworkError, Message: "creating request", Err: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.UserAgent())
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := &APIError{Kind: KindNetworkError, Message: "sending request", Err: err}
		if ctx.Err() == nil {
			c.observe(apiErr)
		}
		c.logger.Debug("license api request failed", "path", path, "request_id", requestID, "error", err)
		return apiErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		apiErr := &APIError{Kind: KindNetworkError, Message: "reading response", Err: err}
		if ctx.Err() == nil {
			c.observe(apiErr)
		}
		return apiErr
	}
	c.observe(nil)
	c.logger.Debug("license api request",
		"path", path,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{Kind: KindRateLimited, Code: strconv.Itoa(resp.StatusCode), Message: "license server is throttling requests"}
	}

	decodeErr := json.Unmarshal(data, out)
	if decodeErr == nil && out.ErrorCode != "" {
		return errorForCode(out.ErrorCode, out.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Message
		if decodeErr != nil {
			msg = strings.TrimSpace(string(data))
		}
		return &APIError{Kind: KindServerError, Code: strconv.Itoa(resp.StatusCode), Message: msg}
	}
	if decodeErr != nil {
		return &APIError{Kind: KindDecodingError, Message: "parsing response", Err: decodeErr}
	}
	return nil
}

func (c *Client) observe(err error) {
	if c.observer == nil {
		return
	}
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Kind == KindNetworkError) {
		err = nil
	}
	c.observer.Observe(err)
}
