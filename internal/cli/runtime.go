package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KevinTCoughlin/licensegate/internal/config"
	"github.com/KevinTCoughlin/licensegate/internal/credstore"
	"github.com/KevinTCoughlin/licensegate/internal/hwid"
	"github.com/KevinTCoughlin/licensegate/internal/licenseapi"
	"github.com/KevinTCoughlin/licensegate/internal/metrics"
	"github.com/KevinTCoughlin/licensegate/internal/orchestrator"
	"github.com/KevinTCoughlin/licensegate/internal/platform"
)

// Runtime is the fully wired license subsystem.
type Runtime struct {
	Identity     *hwid.Identity
	Store        credstore.Store
	Client       *licenseapi.Client
	Monitor      *licenseapi.Monitor
	Metrics      *metrics.Recorder
	Orchestrator *orchestrator.Orchestrator
}

// NewRuntime constructs every component once and runs launch validation.
func NewRuntime(ctx context.Context, cfg *config.Config, runner platform.CommandRunner, version string, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	identity := hwid.New(hwid.NewSystemSource(ctx, runner), logger)

	store, err := openStore(ctx, cfg.Store, identity, logger)
	if err != nil {
		return nil, err
	}

	probeAddr := cfg.API.ProbeAddr
	if probeAddr == "" {
		if probeAddr, err = licenseapi.HostPort(cfg.API.BaseURL); err != nil {
			return nil, err
		}
	}
	monitor := licenseapi.NewMonitor(probeAddr, cfg.API.ProbeInterval, logger)
	monitor.Check(ctx)

	client := licenseapi.NewClient(
		licenseapi.WithBaseURL(cfg.API.BaseURL),
		licenseapi.WithTimeout(cfg.API.Timeout),
		licenseapi.WithAppVersion(version),
		licenseapi.WithObserver(monitor),
		licenseapi.WithLogger(logger),
	)
	recorder := metrics.New()

	orch, err := orchestrator.New(ctx, orchestrator.Deps{
		Store:     store,
		Transport: client,
		Network:   monitor,
		Identity:  identity,
	}, orchestrator.WithLogger(logger), orchestrator.WithRecorder(recorder))
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Identity:     identity,
		Store:        store,
		Client:       client,
		Monitor:      monitor,
		Metrics:      recorder,
		Orchestrator: orch,
	}, nil
}

// openStore builds the configured credential store. A backend that cannot
// be opened yields a disabled store, never an insecure fallback.
func openStore(ctx context.Context, cfg config.StoreConfig, identity *hwid.Identity, logger *slog.Logger) (credstore.Store, error) {
	var backend credstore.Backend
	switch cfg.Backend {
	case config.BackendKeyring:
		backend = credstore.NewKeyringBackend(cfg.Service)
	case config.BackendFile:
		vault, err := credstore.OpenFileVault(cfg.Dir, []byte(identity.Generate(ctx)))
		if err != nil {
			return credstore.New(nil, credstore.Unavailable(err), logger), nil
		}
		backend = vault
	case config.BackendMemory:
		logger.Warn("using in-memory license storage, nothing will persist")
		backend = credstore.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return credstore.New(backend, credstore.Probe(backend), logger), nil
}
