package ui

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/fzipp/bmfont"
)

type glyph struct {
	x, y, width, height float32
	xOffset, yOffset    float32
	xAdvance            float32
}

// Font is an AngelCode bitmap font reduced to what the layout needs.
type Font struct {
	Face       string
	LineHeight float32
	Base       float32
	AtlasW     float32
	AtlasH     float32
	// first page of the atlas
	Atlas *image.RGBA

	glyphs   map[rune]glyph
	kernings map[[2]rune]float32
}

func LoadFont(path string) (*Font, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", path, err)
	}
	f := &Font{
		Face:       font.Descriptor.Info.Face,
		LineHeight: float32(font.Descriptor.Common.LineHeight),
		Base:       float32(font.Descriptor.Common.Base),
		AtlasW:     float32(font.Descriptor.Common.ScaleW),
		AtlasH:     float32(font.Descriptor.Common.ScaleH),
		glyphs:     make(map[rune]glyph, len(font.Descriptor.Chars)),
		kernings:   make(map[[2]rune]float32, len(font.Descriptor.Kerning)),
	}
	for _, g := range font.Descriptor.Chars {
		f.glyphs[rune(g.ID)] = glyph{
			x:        float32(g.X),
			y:        float32(g.Y),
			width:    float32(g.Width),
			height:   float32(g.Height),
			xOffset:  float32(g.XOffset),
			yOffset:  float32(g.YOffset),
			xAdvance: float32(g.XAdvance),
		}
	}
	for p, k := range font.Descriptor.Kerning {
		f.kernings[[2]rune{rune(p.First), rune(p.Second)}] = float32(k.Amount)
	}
	for _, p := range font.Descriptor.Pages {
		if p.ID != 0 {
			continue
		}
		atlas, err := loadPage(filepath.Join(filepath.Dir(path), p.File))
		if err != nil {
			return nil, err
		}
		f.Atlas = atlas
	}
	return f, nil
}

func loadPage(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode font page %s: %w", path, err)
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// Measure returns the advance width of text on one line.
func (f *Font) Measure(text string) float32 {
	var w float32
	var prev rune
	for i, r := range text {
		g, ok := f.glyphs[r]
		if !ok {
			continue
		}
		if i > 0 {
			w += f.kernings[[2]rune{prev, r}]
		}
		w += g.xAdvance
		prev = r
	}
	return w
}
