// Package agent runs the license subsystem headless: a periodic
// revalidation loop plus a loopback HTTP surface the UI reads and invokes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/orchestrator"
)

// Engine is the license state machine the agent serves.
type Engine interface {
	Status() license.Status
	Report() orchestrator.Report
	Activate(ctx context.Context, key string) orchestrator.ActivationResult
	Deactivate(ctx context.Context) bool
	Refresh(ctx context.Context) error
}

// Runner is a background loop started and stopped with the agent.
type Runner interface {
	Run(ctx context.Context)
}

// Options configures an Agent.
type Options struct {
	Addr            string
	RefreshInterval time.Duration
	Metrics         http.Handler
	Background      []Runner
	Logger          *slog.Logger
}

// Agent serves an Engine over HTTP.
type Agent struct {
	engine Engine
	opts   Options
	logger *slog.Logger
}

// New creates an Agent.
func New(engine Engine, opts Options) *Agent {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		engine: engine,
		opts:   opts,
		logger: opts.Logger.With("component", "agent"),
	}
}

// Handler returns the HTTP API.
func (a *Agent) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if a.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/status", a.handleStatus)
		r.Post("/activate", a.handleActivate)
		r.Post("/deactivate", a.handleDeactivate)
		r.Post("/refresh", a.handleRefresh)
	})
	return r
}

// Run serves until ctx is cancelled, revalidating on every refresh
// interval, then shuts the server down.
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.opts.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("agent listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.opts.RefreshInterval > 0 {
		g.Go(func() error {
			a.refreshLoop(ctx)
			return nil
		})
	}
	for _, r := range a.opts.Background {
		g.Go(func() error {
			r.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (a *Agent) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.engine.Refresh(ctx); err != nil {
				a.logger.Warn("scheduled revalidation failed", "error", err)
				continue
			}
			a.logger.Debug("scheduled revalidation done", "status", a.engine.Status().String())
		}
	}
}
