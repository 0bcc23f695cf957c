package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

const testConfig = `
[renderer]
width = 16
height = 12

[shadow]
map_size = 256

[ui]
enabled = false
`

func TestParsePick(t *testing.T) {
	type spec struct {
		value string
		exp   [2]int32
		fails bool
	}
	specs := []spec{
		{"3,4", [2]int32{3, 4}, false},
		{" 10 , 0 ", [2]int32{10, 0}, false},
		{"3", [2]int32{}, true},
		{"a,b", [2]int32{}, true},
		{"1,2,3", [2]int32{}, true},
	}
	for index, s := range specs {
		got, err := parsePick(s.value)
		if (err != nil) != s.fails {
			t.Fatalf("[spec %d] expected failure %t for %q; got %v", index, s.fails, s.value, err)
		}
		if got != s.exp {
			t.Fatalf("[spec %d] expected %v; got %v", index, s.exp, got)
		}
	}
}

func TestSurfaceImage(t *testing.T) {
	type spec struct {
		channels int
		texel    surface.Texel
		exp      [4]uint16
	}
	specs := []spec{
		{1, surface.Texel{0.5}, [4]uint16{32768, 32768, 32768, 65535}},
		{2, surface.Texel{1, 0}, [4]uint16{65535, 0, 0, 65535}},
		{4, surface.Texel{2, -1, 0, 0}, [4]uint16{65535, 0, 0, 0}},
	}
	for index, s := range specs {
		surf := surface.MustNew(2, 1, s.channels)
		surf.Set(1, 0, s.texel)
		img := surfaceImage(surf)
		r, g, b, a := img.At(1, 0).RGBA()
		// RGBA is alpha premultiplied, compare against the straight values
		if a != uint32(s.exp[3]) {
			t.Fatalf("[spec %d] expected alpha %d; got %d", index, s.exp[3], a)
		}
		if a == 0xffff && (r != uint32(s.exp[0]) || g != uint32(s.exp[1]) || b != uint32(s.exp[2])) {
			t.Fatalf("[spec %d] expected %v; got %d %d %d", index, s.exp, r, g, b)
		}
	}
}

func TestCaptureWritesTIFF(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(config, []byte(testConfig), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	out := filepath.Join(dir, "frame.tiff")

	args := []string{"lumen", "--config", config, "capture", "--out", out, "--frames", "2"}
	if err := NewApp().Run(args); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 12 {
		t.Fatalf("expected a 16x12 capture; got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRunHeadless(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(config, []byte(testConfig), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	type spec struct {
		args  []string
		fails bool
	}
	specs := []spec{
		{[]string{"lumen", "--config", config, "run", "--backend", "headless", "--frames", "2", "--pick", "4,4"}, false},
		{[]string{"lumen", "--config", config, "run", "--backend", "headless"}, true},
		{[]string{"lumen", "--config", config, "run", "--backend", "metal", "--frames", "1"}, true},
		{[]string{"lumen", "--config", config, "run", "--backend", "headless", "--frames", "1", "--pick", "x"}, true},
	}
	for index, s := range specs {
		err := NewApp().Run(s.args)
		if (err != nil) != s.fails {
			t.Fatalf("[spec %d] expected failure %t; got %v", index, s.fails, err)
		}
	}
}
