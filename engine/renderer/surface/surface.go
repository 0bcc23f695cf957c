// Package surface holds CPU-side float images. The pure frame algorithms
// read and write these, and the headless device backs its images with them.
package surface

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/math"
)

// Texel is up to four channels of one pixel. Unused channels are zero.
type Texel [4]float32

func (t Texel) Add(o Texel) Texel {
	return Texel{t[0] + o[0], t[1] + o[1], t[2] + o[2], t[3] + o[3]}
}

func (t Texel) Scale(s float32) Texel {
	return Texel{t[0] * s, t[1] * s, t[2] * s, t[3] * s}
}

func (t Texel) Vec3() math.Vec3 {
	return math.NewVec3(t[0], t[1], t[2])
}

var ErrChannelCount = errors.New("channel count must be between 1 and 4")

type Surface struct {
	Width, Height int
	Channels      int
	Pix           []float32
}

func New(width, height, channels int) (*Surface, error) {
	if channels < 1 || channels > 4 {
		return nil, ErrChannelCount
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	return &Surface{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}, nil
}

// MustNew is New for sizes known to be valid.
func MustNew(width, height, channels int) *Surface {
	s, err := New(width, height, channels)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Surface) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

// At returns the texel at (x, y). Out of bounds reads return zero.
func (s *Surface) At(x, y int) Texel {
	var t Texel
	if !s.InBounds(x, y) {
		return t
	}
	o := (y*s.Width + x) * s.Channels
	copy(t[:s.Channels], s.Pix[o:o+s.Channels])
	return t
}

// Clamped returns the texel at (x, y) with the coordinates clamped to the edge.
func (s *Surface) Clamped(x, y int) Texel {
	return s.At(math.Clamp(x, 0, s.Width-1), math.Clamp(y, 0, s.Height-1))
}

func (s *Surface) Set(x, y int, t Texel) {
	if !s.InBounds(x, y) {
		return
	}
	o := (y*s.Width + x) * s.Channels
	copy(s.Pix[o:o+s.Channels], t[:s.Channels])
}

// Fill sets every texel to t.
func (s *Surface) Fill(t Texel) {
	for i := 0; i < len(s.Pix); i += s.Channels {
		copy(s.Pix[i:i+s.Channels], t[:s.Channels])
	}
}

// Sample filters the surface bilinearly at uv with clamp-to-edge addressing.
// Texel centers sit at (i + 0.5) / size.
func (s *Surface) Sample(uv math.Vec2) Texel {
	if s.Width == 0 || s.Height == 0 {
		return Texel{}
	}
	px := uv.X*float32(s.Width) - 0.5
	py := uv.Y*float32(s.Height) - 0.5
	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	fx := px - float32(x0)
	fy := py - float32(y0)

	t00 := s.Clamped(x0, y0)
	t10 := s.Clamped(x0+1, y0)
	t01 := s.Clamped(x0, y0+1)
	t11 := s.Clamped(x0+1, y0+1)

	return t00.Scale((1 - fx) * (1 - fy)).
		Add(t10.Scale(fx * (1 - fy))).
		Add(t01.Scale((1 - fx) * fy)).
		Add(t11.Scale(fx * fy))
}

func (s *Surface) Clone() *Surface {
	c := &Surface{Width: s.Width, Height: s.Height, Channels: s.Channels, Pix: make([]float32, len(s.Pix))}
	copy(c.Pix, s.Pix)
	return c
}

// SameShape reports whether o has the size and channel count of s.
func (s *Surface) SameShape(o *Surface) bool {
	return o != nil && s.Width == o.Width && s.Height == o.Height && s.Channels == o.Channels
}
