package headless

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

func encodeTexel(f metadata.Format, t surface.Texel, out []byte) error {
	switch f {
	case metadata.FormatR32Uint:
		binary.LittleEndian.PutUint32(out, uint32(t[0]))
	case metadata.FormatR32F, metadata.FormatD32F:
		binary.LittleEndian.PutUint32(out, stdmath.Float32bits(t[0]))
	case metadata.FormatRGBA8Unorm:
		for c := 0; c < 4; c++ {
			out[c] = unorm8(t[c])
		}
	case metadata.FormatBGRA8Srgb:
		out[0], out[1], out[2], out[3] = unorm8(t[2]), unorm8(t[1]), unorm8(t[0]), unorm8(t[3])
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return nil
}

func decodeTexels(f metadata.Format, pixels []byte, s *surface.Surface) error {
	size := f.BytesPerTexel()
	if size == 0 || len(pixels) != size*s.Width*s.Height {
		return fmt.Errorf("upload of %d bytes does not match a %dx%d %s image", len(pixels), s.Width, s.Height, f)
	}
	for i := 0; i < s.Width*s.Height; i++ {
		p := pixels[i*size : (i+1)*size]
		var t surface.Texel
		switch f {
		case metadata.FormatR32Uint:
			t[0] = float32(binary.LittleEndian.Uint32(p))
		case metadata.FormatR32F, metadata.FormatD32F:
			t[0] = stdmath.Float32frombits(binary.LittleEndian.Uint32(p))
		case metadata.FormatRGBA8Unorm:
			for c := 0; c < 4; c++ {
				t[c] = float32(p[c]) / 255
			}
		case metadata.FormatBGRA8Srgb:
			t = surface.Texel{float32(p[2]) / 255, float32(p[1]) / 255, float32(p[0]) / 255, float32(p[3]) / 255}
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
		}
		s.Set(i%s.Width, i/s.Width, t)
	}
	return nil
}

func unorm8(v float32) byte {
	return byte(math.Clamp(v, 0, 1)*255 + 0.5)
}
