package ui

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const vertexSize = 20

func newOverlay(t *testing.T, font *Font) (*Overlay, *headless.Device) {
	d, err := headless.NewDevice(headless.Options{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	sampler, _ := d.CreateSampler(metadata.SamplerDesc{Name: "ui", Filter: metadata.FilterLinear})
	o, err := NewOverlay(d, sampler, font)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return o, d
}

func TestBuildWithoutFont(t *testing.T) {
	o, _ := newOverlay(t, nil)
	defer o.Destroy()

	data := o.Build(FrameInfo{Width: 640, Height: 480, Frame: 3, FPS: 60, FrameTime: 16.6, Lines: []string{"mode Deferred"}})
	if data.Empty() {
		t.Fatal("expected draw commands")
	}
	if len(data.Commands) != 2 {
		t.Fatalf("expected panel and text commands; got %d", len(data.Commands))
	}
	if len(data.Vertices)%vertexSize != 0 {
		t.Fatalf("vertex stream of %d bytes is not a multiple of %d", len(data.Vertices), vertexSize)
	}
	indices := uint32(len(data.Indices) / 4)
	var total uint32
	for i, c := range data.Commands {
		if c.IndexCount%6 != 0 {
			t.Fatalf("[cmd %d] expected whole quads; got %d indices", i, c.IndexCount)
		}
		if c.TextureID != TextureWhite {
			t.Fatalf("[cmd %d] expected the white texture without a font; got %d", i, c.TextureID)
		}
		if c.ClipRect.Width == 0 || c.ClipRect.Height == 0 {
			t.Fatalf("[cmd %d] expected a non empty clip rect", i)
		}
		total += c.IndexCount
	}
	if total != indices {
		t.Fatalf("commands cover %d indices, stream has %d", total, indices)
	}
}

func TestBuildClipsToWindow(t *testing.T) {
	o, _ := newOverlay(t, nil)
	defer o.Destroy()

	type spec struct {
		width, height uint32
		maxRight      int32
	}
	specs := []spec{
		{20, 20, 20},
		{4, 4, 8},
	}
	for specIndex, s := range specs {
		data := o.Build(FrameInfo{Width: s.width, Height: s.height})
		for _, c := range data.Commands {
			right := c.ClipRect.X + int32(c.ClipRect.Width)
			if right > s.maxRight {
				t.Fatalf("[spec %d] clip rect ends at %d, window is %d wide", specIndex, right, s.width)
			}
		}
	}
}

func TestTextureFallback(t *testing.T) {
	o, _ := newOverlay(t, nil)
	defer o.Destroy()

	if _, ok := o.Texture(TextureWhite); !ok {
		t.Fatal("expected the white texture to exist")
	}
	if _, ok := o.Texture(TextureFont); ok {
		t.Fatal("expected no font texture without a font")
	}
	if _, ok := o.Texture(42); ok {
		t.Fatal("expected unknown texture ids to report false")
	}
}

const testFont = `info face="Test" size=16 bold=0 italic=0 charset="" unicode=1 stretchH=100 smooth=1 aa=1 padding=0,0,0,0 spacing=1,1 outline=0
common lineHeight=16 base=12 scaleW=32 scaleH=16 pages=1 packed=0 alphaChnl=0 redChnl=4 greenChnl=4 blueChnl=4
page id=0 file="test_0.png"
chars count=2
char id=65   x=0     y=0     width=8     height=10    xoffset=0     yoffset=2     xadvance=9     page=0  chnl=15
char id=66   x=10    y=0     width=8     height=10    xoffset=1     yoffset=2     xadvance=9     page=0  chnl=15
kernings count=1
kerning first=65  second=66  amount=-1
`

func writeFont(t *testing.T) string {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, uint8(x * 8)})
		}
	}
	f, err := os.Create(filepath.Join(dir, "test_0.png"))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	f.Close()
	path := filepath.Join(dir, "test.fnt")
	if err := os.WriteFile(path, []byte(testFont), 0o644); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return path
}

func TestLoadFont(t *testing.T) {
	font, err := LoadFont(writeFont(t))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if font.Face != "Test" || font.LineHeight != 16 {
		t.Fatalf("unexpected font metrics %q %f", font.Face, font.LineHeight)
	}
	if font.Atlas == nil || font.Atlas.Bounds().Dx() != 32 {
		t.Fatal("expected the first page to be decoded")
	}

	type spec struct {
		text string
		exp  float32
	}
	specs := []spec{
		{"A", 9},
		{"AB", 17},
		{"BA", 18},
		// unknown runes have no advance
		{"A?", 9},
	}
	for specIndex, s := range specs {
		if got := font.Measure(s.text); got != s.exp {
			t.Fatalf("[spec %d] expected width of %q to be %f; got %f", specIndex, s.text, s.exp, got)
		}
	}
}

func TestBuildWithFont(t *testing.T) {
	font, err := LoadFont(writeFont(t))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	o, _ := newOverlay(t, font)
	defer o.Destroy()

	if _, ok := o.Texture(TextureFont); !ok {
		t.Fatal("expected a font texture")
	}
	data := o.Build(FrameInfo{Width: 640, Height: 480, Lines: []string{"AB"}})
	last := data.Commands[len(data.Commands)-1]
	if last.TextureID != TextureFont {
		t.Fatalf("expected text to sample the font; got texture %d", last.TextureID)
	}
	// only "AB" has glyphs in the test font
	if last.IndexCount != 12 {
		t.Fatalf("expected two glyph quads; got %d indices", last.IndexCount)
	}
}
