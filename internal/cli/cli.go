package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/KevinTCoughlin/licensegate/internal/config"
)

// Globals holds flags shared by all subcommands.
type Globals struct {
	Config  string           `help:"Config file (default: user config dir)" default:""`
	Verbose bool             `help:"Enable debug logging" short:"V"`
	Version kong.VersionFlag `help:"Print version" short:"v" hidden:""`

	AppVersion string         `kong:"-"`
	cfg        *config.Config `kong:"-"`
	logger     *slog.Logger   `kong:"-"`
}

// AfterApply loads the configuration and installs the process logger.
func (g *Globals) AfterApply() error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if g.Verbose {
		cfg.Logging.Level = "debug"
	}
	g.cfg = cfg
	g.logger = slog.New(cfg.Logging.Handler(os.Stderr))
	slog.SetDefault(g.logger)
	return nil
}

// CLI is the top-level command tree parsed by Kong.
type CLI struct {
	Globals

	Status      StatusCmd      `cmd:"" help:"Show the license status of this machine"`
	Activate    ActivateCmd    `cmd:"" help:"Activate a license key on this machine"`
	Deactivate  DeactivateCmd  `cmd:"" help:"Release this machine's license slot"`
	Refresh     RefreshCmd     `cmd:"" help:"Revalidate the license with the license server"`
	Fingerprint FingerprintCmd `cmd:"" help:"Print this machine's hardware id"`
	Agent       AgentCmd       `cmd:"" help:"Run the background license agent"`
}

// New returns a command tree for the given build version.
func New(version string) *CLI {
	return &CLI{Globals: Globals{AppVersion: version}}
}
