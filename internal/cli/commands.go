package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinTCoughlin/licensegate/internal/agent"
	"github.com/KevinTCoughlin/licensegate/internal/hwid"
	"github.com/KevinTCoughlin/licensegate/internal/platform"
	"github.com/KevinTCoughlin/licensegate/internal/ui"
)

// FingerprintCmd prints the hardware id licenses are bound to.
type FingerprintCmd struct{}

func (cmd *FingerprintCmd) Run(globals *Globals, runner platform.CommandRunner, output *ui.UI) error {
	ctx := context.Background()
	identity := hwid.New(hwid.NewSystemSource(ctx, runner), globals.logger)

	p := platform.Detect(ctx, runner)
	output.Info("Platform: %s/%s", p.OS, p.Arch)
	output.Info("Machine:  %s", identity.MachineName(ctx))
	fmt.Fprintln(os.Stdout, identity.Generate(ctx))
	return nil
}

// AgentCmd runs the license agent in the foreground.
type AgentCmd struct {
	Addr string `help:"Listen address (loopback only, default from config)" default:""`
}

func (cmd *AgentCmd) Run(globals *Globals, runner platform.CommandRunner, output *ui.UI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := globals.config()
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Agent.Addr = cmd.Addr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	rt, err := globals.runtime(ctx, runner)
	if err != nil {
		return err
	}

	a := agent.New(rt.Orchestrator, agent.Options{
		Addr:            cfg.Agent.Addr,
		RefreshInterval: cfg.Agent.RefreshInterval,
		Metrics:         rt.Metrics.Handler(),
		Background:      []agent.Runner{rt.Monitor},
		Logger:          globals.logger,
	})

	output.Info("License agent listening on http://%s", cfg.Agent.Addr)
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	rt.Orchestrator.Wait()
	output.Info("License agent stopped.")
	return nil
}
