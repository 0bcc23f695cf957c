package main

import (
	"os"

	"github.com/spaghettifunk/lumen/cmd"
	"github.com/spaghettifunk/lumen/engine/core"
)

func main() {
	if err := cmd.NewApp().Run(os.Args); err != nil {
		core.LogFatal("%s", err)
	}
}
