package cmd

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/urfave/cli"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

// Capture renders headless and writes one render target to a TIFF file.
func Capture(ctx *cli.Context) error {
	settings, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	setupLogging(ctx, settings)
	applyExtent(ctx, &settings)

	out := ctx.String("out")
	if out == "" {
		return errors.New("missing --out file")
	}
	frames := ctx.Int("frames")
	if frames <= 0 {
		return fmt.Errorf("capture needs at least one frame, got %d", frames)
	}

	e, err := engine.New(engine.Options{
		Name:     "lumen",
		Backend:  engine.BackendHeadless,
		Settings: settings,
		Frames:   uint64(frames),
	})
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}
	defer func() { _ = e.Shutdown() }()

	if err := e.Run(); err != nil {
		return err
	}
	target := ctx.String("target")
	s, err := e.ReadTarget(target)
	if err != nil {
		return err
	}
	if err := writeTIFF(out, s); err != nil {
		return err
	}
	core.LogInfo("captured %s (%dx%d) after %d frames to %s", target, s.Width, s.Height, frames, out)
	return nil
}

func writeTIFF(path string, s *surface.Surface) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, surfaceImage(s), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// surfaceImage converts texels to 16 bit color. Values are clamped to [0, 1],
// single channel surfaces become gray and missing alpha is opaque.
func surfaceImage(s *surface.Surface) image.Image {
	img := image.NewNRGBA64(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			t := s.At(x, y)
			var c [4]float32
			switch s.Channels {
			case 1:
				c = [4]float32{t[0], t[0], t[0], 1}
			case 2:
				c = [4]float32{t[0], t[1], 0, 1}
			case 3:
				c = [4]float32{t[0], t[1], t[2], 1}
			default:
				c = t
			}
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: unorm16(c[0]),
				G: unorm16(c[1]),
				B: unorm16(c[2]),
				A: unorm16(c[3]),
			})
		}
	}
	return img
}

func unorm16(v float32) uint16 {
	return uint16(math.Clamp(v, 0, 1)*65535 + 0.5)
}
