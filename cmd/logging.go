package cmd

import (
	"github.com/urfave/cli"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
)

// setupLogging applies the configured level, the verbosity flags win.
func setupLogging(ctx *cli.Context, s config.Settings) {
	core.SetLogLevel(core.ParseLogLevel(s.Log.Level))

	if ctx.GlobalBool("v") {
		core.SetLogLevel(core.InfoLevel)
	}

	if ctx.GlobalBool("vv") {
		core.SetLogLevel(core.DebugLevel)
	}
}

// loadSettings reads the --config file, or the defaults when none is given.
func loadSettings(ctx *cli.Context) (config.Settings, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// applyExtent overrides the display size with the size flags when set.
func applyExtent(ctx *cli.Context, s *config.Settings) {
	if w := ctx.Int("width"); w > 0 {
		s.Renderer.Width = uint32(w)
	}
	if h := ctx.Int("height"); h > 0 {
		s.Renderer.Height = uint32(h)
	}
}
