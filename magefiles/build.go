//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL shader under shaders/ into <name>.spv next to it.
func (Build) Shaders() error {
	var sources []string
	for _, ext := range []string{"vert", "frag", "comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, "*."+ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shaders found in %s", shaderDir)
	}
	for _, src := range sources {
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", src, "-o", src+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the lumen binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/lumen", "."), withStream()); err != nil {
		return err
	}
	return nil
}
