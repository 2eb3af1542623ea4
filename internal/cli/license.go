package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/KevinTCoughlin/licensegate/internal/config"
	"github.com/KevinTCoughlin/licensegate/internal/nag"
	"github.com/KevinTCoughlin/licensegate/internal/orchestrator"
	"github.com/KevinTCoughlin/licensegate/internal/platform"
	"github.com/KevinTCoughlin/licensegate/internal/ui"
)

// errNotLicensed is returned by status --check when the app may not run.
var errNotLicensed = errors.New("not licensed")

func (g *Globals) config() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	g.cfg = cfg
	return cfg, nil
}

func (g *Globals) runtime(ctx context.Context, runner platform.CommandRunner) (*Runtime, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return NewRuntime(ctx, cfg, runner, g.AppVersion, g.logger)
}

// StatusCmd shows the current license status.
type StatusCmd struct {
	JSON  bool `help:"Print the status report as JSON" name:"json"`
	Check bool `help:"Exit non-zero unless the app may run"`
}

func (cmd *StatusCmd) Run(globals *Globals, runner platform.CommandRunner, output *ui.UI) error {
	ctx := context.Background()
	rt, err := globals.runtime(ctx, runner)
	if err != nil {
		return err
	}
	s := rt.Orchestrator.Status()

	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rt.Orchestrator.Report()); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printStatus(ctx, rt, output)
		nag.MaybeNag(output, s)
	}

	if cmd.Check && !s.IsValid() {
		return errNotLicensed
	}
	return nil
}

func printStatus(ctx context.Context, rt *Runtime, output *ui.UI) {
	s := rt.Orchestrator.Status()
	r := rt.Orchestrator.Report()

	card := &ui.StatusCard{
		Label:           nag.StatusLabel(s),
		Valid:           s.IsValid(),
		Email:           r.Email,
		Key:             r.Key,
		MachineName:     rt.Identity.MachineName(ctx),
		CacheValidUntil: r.CacheValidUntil,
		TrialEndsAt:     r.TrialEndsAt,
		Warning:         r.Warning,
		Hint:            nag.Hint(s),
	}
	if r.Tier != "" {
		card.Tier = r.Tier.DisplayName()
	}
	if r.MaxMachines > 0 {
		card.Machines = fmt.Sprintf("%d / %d", r.ActivatedMachines, r.MaxMachines)
	}
	output.PrintStatusCard(card)
}

// ActivateCmd activates a license key for this machine.
type ActivateCmd struct {
	Key string `help:"License key to activate" required:""`
}

func (cmd *ActivateCmd) Run(globals *Globals, runner platform.CommandRunner, output *ui.UI) error {
	ctx := context.Background()
	rt, err := globals.runtime(ctx, runner)
	if err != nil {
		return err
	}

	output.Step("Activating license...")
	res := rt.Orchestrator.Activate(ctx, cmd.Key)
	if !res.OK() {
		output.Error("%s", nag.ActivationMessage(res))
		return fmt.Errorf("activation failed: %s", res.Reason)
	}
	output.Success("%s", nag.ActivationMessage(res))
	if res.Outcome == orchestrator.OutcomeActivated {
		printStatus(ctx, rt, output)
	}
	return nil
}

// DeactivateCmd releases this machine's license slot.
type DeactivateCmd struct{}

func (cmd *DeactivateCmd) Run(globals *Globals, runner platform.CommandRunner, output *ui.UI) error {
	ctx := context.Background()
	rt, err := globals.runtime(ctx, runner)
	if err != nil {
		return err
	}
	if rt.Orchestrator.License() == nil {
		output.Info("No license is activated on this machine.")
		return nil
	}

	output.Step("Deactivating license...")
	if !rt.Orchestrator.Deactivate(ctx) {
		output.Warn("The license server did not confirm the deactivation. The local license was removed; the slot may still be in use.")
		return nil
	}
	output.Success("License deactivated. The machine slot is free.")
	return nil
}

// RefreshCmd revalidates the license with the server.
type RefreshCmd struct{}

func (cmd *RefreshCmd) Run(globals *Globals, runner platform.CommandRunner, output *ui.UI) error {
	ctx := context.Background()
	rt, err := globals.runtime(ctx, runner)
	if err != nil {
		return err
	}
	if rt.Orchestrator.License() == nil {
		output.Info("No license is activated on this machine.")
		return nil
	}

	output.Step("Revalidating license...")
	if err := rt.Orchestrator.Refresh(ctx); err != nil {
		output.Warn("Revalidation failed: %v", err)
		printStatus(ctx, rt, output)
		return fmt.Errorf("refresh failed: %w", err)
	}
	rt.Orchestrator.Wait()
	output.Success("License revalidated.")
	printStatus(ctx, rt, output)
	return nil
}
