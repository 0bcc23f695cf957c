//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine in a window.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-v", "run", "--backend", "vulkan", "--shaders", shaderDir), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders a few frames headless and captures the final color.
func (Run) Capture() error {
	if _, err := executeCmd("go", withArgs("run", ".", "capture", "--out", "frame.tiff"), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
