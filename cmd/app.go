package cmd

import (
	"github.com/urfave/cli"

	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

func sizeFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Usage: "display width, overrides renderer.width",
		},
		cli.IntFlag{
			Name:  "height",
			Usage: "display height, overrides renderer.height",
		},
	}
}

// NewApp builds the command line of the lumen binary.
func NewApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "lumen"
	app.Usage = "run the lumen frame orchestrator"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML settings file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "render frames with the selected backend",
			Description: `
Run the frame orchestrator. The vulkan backend opens a window and runs until
it is closed, the headless backend renders in memory and needs --frames.

A per pass statistics table is printed when the run ends.`,
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "backend, b",
					Value: "vulkan",
					Usage: "device backend: headless or vulkan",
				},
				cli.IntFlag{
					Name:  "frames, n",
					Usage: "stop after this many frames, 0 runs until the window closes",
				},
				cli.BoolFlag{
					Name:  "watch, w",
					Usage: "reload the --config file when it changes",
				},
				cli.StringFlag{
					Name:  "pick",
					Usage: "report the object under the pixel x,y",
				},
				cli.StringFlag{
					Name:  "shaders",
					Value: "shaders",
					Usage: "directory holding the compiled .spv shaders",
				},
				cli.BoolFlag{
					Name:  "validation",
					Usage: "enable the vulkan validation layer",
				},
			}, sizeFlags()...),
			Action: Run,
		},
		{
			Name:  "capture",
			Usage: "render headless and save a render target",
			Description: `
Render --frames frames on the headless backend and encode the render target
named by --target to a TIFF file. History targets write the slot of the last
frame.`,
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.tiff",
					Usage: "image filename for the captured target",
				},
				cli.IntFlag{
					Name:  "frames, n",
					Value: 8,
					Usage: "frames to render before the capture",
				},
				cli.StringFlag{
					Name:  "target, t",
					Value: passes.TargetColorHistory,
					Usage: "render target to capture",
				},
			}, sizeFlags()...),
			Action: Capture,
		},
	}
	return app
}
