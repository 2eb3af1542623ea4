package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/orchestrator"
)

type fakeEngine struct {
	mu         sync.Mutex
	status     license.Status
	result     orchestrator.ActivationResult
	keys       []string
	refreshErr error
	refreshes  atomic.Int32
}

func (f *fakeEngine) Status() license.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) Report() orchestrator.Report {
	s := f.Status()
	return orchestrator.Report{State: s.State.String(), Valid: s.IsValid(), Summary: s.String(), Tier: s.Tier}
}

func (f *fakeEngine) Activate(_ context.Context, key string) orchestrator.ActivationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.result.OK() {
		f.status = license.Licensed(f.result.Tier)
	}
	return f.result
}

func (f *fakeEngine) Deactivate(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = license.Expired()
	return true
}

func (f *fakeEngine) Refresh(context.Context) error {
	f.refreshes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, e *fakeEngine) *httptest.Server {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("licensegate_status 1\n"))
	})
	a := New(e, Options{Metrics: metrics, Logger: quietLogger()})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStatus(t *testing.T) {
	e := &fakeEngine{status: license.Trial(2)}
	srv := newTestServer(t, e)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	r := decode[orchestrator.Report](t, resp)
	assert.Equal(t, "trial", r.State)
	assert.Equal(t, "trial(2)", r.Summary)
	assert.True(t, r.Valid)
}

func TestActivate(t *testing.T) {
	e := &fakeEngine{
		status: license.Trial(3),
		result: orchestrator.ActivationResult{Outcome: orchestrator.OutcomeActivated, Tier: license.TierSolo},
	}
	srv := newTestServer(t, e)

	resp, err := http.Post(srv.URL+"/activate", "application/json", strings.NewReader(`{"key":"SOLO-AAAAA-11111-BBBBB"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[activateResponse](t, resp)
	assert.Equal(t, "activated", body.Outcome)
	assert.Equal(t, license.TierSolo, body.Tier)
	assert.Empty(t, body.Reason)
	assert.Equal(t, "licensed", body.Status.State)
	e.mu.Lock()
	assert.Equal(t, []string{"SOLO-AAAAA-11111-BBBBB"}, e.keys)
	e.mu.Unlock()
}

func TestActivate_Failures(t *testing.T) {
	tests := []struct {
		reason orchestrator.Reason
		want   int
	}{
		{orchestrator.ReasonMalformedKey, http.StatusBadRequest},
		{orchestrator.ReasonNetwork, http.StatusServiceUnavailable},
		{orchestrator.ReasonRateLimited, http.StatusTooManyRequests},
		{orchestrator.ReasonMissingCapability, http.StatusInternalServerError},
		{orchestrator.ReasonServer, http.StatusBadGateway},
		{orchestrator.ReasonMachineLimitReached, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			e := &fakeEngine{
				status: license.Trial(3),
				result: orchestrator.ActivationResult{Outcome: orchestrator.OutcomeFailed, Reason: tt.reason, Err: errors.New("x")},
			}
			srv := newTestServer(t, e)

			resp, err := http.Post(srv.URL+"/activate", "application/json", strings.NewReader(`{"key":"k"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)

			body := decode[activateResponse](t, resp)
			assert.Equal(t, "failed", body.Outcome)
			assert.Equal(t, tt.reason.String(), body.Reason)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, "trial", body.Status.State)
		})
	}
}

func TestActivate_BadBody(t *testing.T) {
	e := &fakeEngine{status: license.Trial(3)}
	srv := newTestServer(t, e)

	resp, err := http.Post(srv.URL+"/activate", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
	e.mu.Lock()
	assert.Empty(t, e.keys)
	e.mu.Unlock()
}

func TestDeactivate(t *testing.T) {
	e := &fakeEngine{status: license.Licensed(license.TierSolo)}
	srv := newTestServer(t, e)

	resp, err := http.Post(srv.URL+"/deactivate", "application/json", nil)
	require.NoError(t, err)
	body := decode[deactivateResponse](t, resp)
	assert.True(t, body.ServerConfirmed)
	assert.Equal(t, "expired", body.Status.State)
}

func TestRefresh(t *testing.T) {
	e := &fakeEngine{status: license.Licensed(license.TierSolo)}
	srv := newTestServer(t, e)

	resp, err := http.Post(srv.URL+"/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	e.mu.Lock()
	e.refreshErr = errors.New("store locked")
	e.mu.Unlock()
	resp, err = http.Post(srv.URL+"/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, int32(2), e.refreshes.Load())
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{status: license.Expired()})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, string(data), "licensegate_status")
}

type countingRunner struct{ runs atomic.Int32 }

func (c *countingRunner) Run(ctx context.Context) {
	c.runs.Add(1)
	<-ctx.Done()
}

func TestServe_RefreshLoopAndShutdown(t *testing.T) {
	e := &fakeEngine{status: license.Licensed(license.TierSolo)}
	bg := &countingRunner{}
	a := New(e, Options{RefreshInterval: 10 * time.Millisecond, Background: []Runner{bg}, Logger: quietLogger()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return e.refreshes.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return bg.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
