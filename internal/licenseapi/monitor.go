package licenseapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync/atomic"
	"time"
)

// DefaultProbeInterval is how often a running Monitor re-checks reachability.
const DefaultProbeInterval = time.Minute

// Monitor tracks whether the license server is reachable so callers can
// skip requests that would only time out.
type Monitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	online   atomic.Bool
	logger   *slog.Logger
}

// NewMonitor returns a Monitor that dials addr (host:port). The monitor
// reports offline until the first successful probe or request.
func NewMonitor(addr string, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &net.Dialer{}
	return &Monitor{
		addr:     addr,
		interval: interval,
		timeout:  5 * time.Second,
		dial:     d.DialContext,
		logger:   logger.With("component", "reachability"),
	}
}

// HostPort returns the host:port a Monitor should probe for baseURL.
func HostPort(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// IsNetworkAvailable reports the last known reachability.
func (m *Monitor) IsNetworkAvailable() bool {
	return m.online.Load()
}

// Check probes the server once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		m.set(false, err)
		return false
	}
	_ = conn.Close()
	m.set(true, nil)
	return true
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Observe records the outcome of a request. Only network errors mark the
// server unreachable.
func (m *Monitor) Observe(err error) {
	if err == nil {
		m.set(true, nil)
		return
	}
	if errors.Is(err, ErrNetwork) {
		m.set(false, err)
	}
}

func (m *Monitor) set(online bool, cause error) {
	if m.online.Swap(online) == online {
		return
	}
	if online {
		m.logger.Info("license server reachable", "addr", m.addr)
	} else {
		m.logger.Warn("license server unreachable", "addr", m.addr, "error", cause)
	}
}
