package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/KevinTCoughlin/licensegate/internal/cli"
	"github.com/KevinTCoughlin/licensegate/internal/platform"
	"github.com/KevinTCoughlin/licensegate/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	app := cli.New(version)
	ctx := kong.Parse(app,
		kong.Name("licensegate"),
		kong.Description("Hardware-bound license activation, trial tracking and offline validation."),
		kong.UsageOnError(),
		kong.Vars{"version": version + " (" + commit + ")"},
		kong.Bind(ui.Default()),
		kong.BindTo(platform.NewOSCommandRunner(), (*platform.CommandRunner)(nil)),
	)
	ctx.FatalIfErrorf(ctx.Run(&app.Globals))
}
