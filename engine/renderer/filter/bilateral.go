// Package filter holds the edge-preserving denoisers shared by the ambient
// occlusion and shadow passes.
package filter

import (
	"errors"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/systems"
)

const (
	DefaultWindow       = 25
	DefaultSpatialSigma = 15.0
	DefaultRangeSigma   = 10.9
)

var (
	ErrEvenWindow    = errors.New("bilateral window size must be odd and positive")
	ErrShapeMismatch = errors.New("bilateral source and destination differ in shape")
)

// normpdf is the gaussian used for both the spatial and the range kernel.
func normpdf(x, sigma float32) float32 {
	return 0.39894 * math.Exp(-0.5*x*x/(sigma*sigma)) / sigma
}

type Bilateral struct {
	Window       int
	SpatialSigma float32
	RangeSigma   float32

	kernel []float32
	rangeZ float32
}

func NewBilateral(window int, spatialSigma, rangeSigma float32) (*Bilateral, error) {
	if window <= 0 || window%2 == 0 {
		return nil, ErrEvenWindow
	}
	b := &Bilateral{
		Window:       window,
		SpatialSigma: spatialSigma,
		RangeSigma:   rangeSigma,
		kernel:       make([]float32, window),
		rangeZ:       1 / normpdf(0, rangeSigma),
	}
	half := window / 2
	for i := 0; i <= half; i++ {
		w := normpdf(float32(i), spatialSigma)
		b.kernel[half+i] = w
		b.kernel[half-i] = w
	}
	return b, nil
}

func NewDefaultBilateral() *Bilateral {
	b, _ := NewBilateral(DefaultWindow, DefaultSpatialSigma, DefaultRangeSigma)
	return b
}

// Kernel returns the one-dimensional spatial weights. Index Window/2 is the centre.
func (b *Bilateral) Kernel() []float32 {
	return b.kernel
}

func (b *Bilateral) pixel(src *surface.Surface, x, y int) surface.Texel {
	half := b.Window / 2
	centre := src.At(x, y)

	var sum surface.Texel
	var z float32
	for j := -half; j <= half; j++ {
		for i := -half; i <= half; i++ {
			tx, ty := x+i, y+j
			if !src.InBounds(tx, ty) {
				continue
			}
			c := src.At(tx, ty)
			var d float32
			for ch := 0; ch < src.Channels; ch++ {
				diff := c[ch] - centre[ch]
				d += diff * diff
			}
			w := normpdf(math.Sqrt(d), b.RangeSigma) * b.rangeZ * b.kernel[half+j] * b.kernel[half+i]
			z += w
			sum = sum.Add(c.Scale(w))
		}
	}
	if z == 0 {
		return centre
	}
	return sum.Scale(1 / z)
}

// Rows filters rows [start, end) of src into dst.
func (b *Bilateral) Rows(src, dst *surface.Surface, start, end int) {
	for y := start; y < end; y++ {
		for x := 0; x < src.Width; x++ {
			dst.Set(x, y, b.pixel(src, x, y))
		}
	}
}

// Apply filters src into dst. When jobs is not nil the rows are split across
// its workers.
func (b *Bilateral) Apply(src, dst *surface.Surface, jobs *systems.JobSystem) error {
	if !src.SameShape(dst) {
		return ErrShapeMismatch
	}
	if jobs == nil {
		b.Rows(src, dst, 0, src.Height)
		return nil
	}
	return jobs.ParallelFor(src.Height, func(start, end int) error {
		b.Rows(src, dst, start, end)
		return nil
	})
}
