package ui

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	panelMargin  float32 = 8
	panelPadding float32 = 6
	// cell size of the blocky layout used without a font
	fallbackCellW float32 = 7
	fallbackCellH float32 = 12

	panelColour uint32 = 0xB0101010
	textColour  uint32 = 0xFFE0E0E0
)

// Overlay draws a translucent panel with one line of text per stat.
type Overlay struct {
	device  metadata.Device
	font    *Font
	images  []metadata.ImageHandle
	sets    map[uint32]metadata.BindingSetHandle
	layout  metadata.BindingLayoutHandle
	sampler metadata.SamplerHandle

	vertices []math.Vertex2D
	indices  []uint32
}

// NewOverlay creates the overlay textures. font may be nil.
func NewOverlay(device metadata.Device, sampler metadata.SamplerHandle, font *Font) (*Overlay, error) {
	o := &Overlay{device: device, font: font, sampler: sampler, sets: make(map[uint32]metadata.BindingSetHandle)}
	layout, err := device.CreateBindingLayout(TextureLayoutDesc())
	if err != nil {
		return nil, err
	}
	o.layout = layout

	if err := o.texture(TextureWhite, "ui.white", 1, 1, []byte{255, 255, 255, 255}); err != nil {
		o.Destroy()
		return nil, err
	}
	if font != nil && font.Atlas != nil {
		b := font.Atlas.Bounds()
		if err := o.texture(TextureFont, "ui.font", uint32(b.Dx()), uint32(b.Dy()), font.Atlas.Pix); err != nil {
			o.Destroy()
			return nil, err
		}
		core.LogInfo("ui overlay uses font %s", font.Face)
	}
	return o, nil
}

func (o *Overlay) texture(id uint32, name string, w, h uint32, pixels []byte) error {
	img, err := o.device.CreateImage(metadata.ImageDesc{
		Name:   name,
		Width:  w,
		Height: h,
		Format: metadata.FormatRGBA8Unorm,
		Usage:  metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
	})
	if err != nil {
		return err
	}
	o.images = append(o.images, img)
	if err := o.device.UploadImage(img, pixels); err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	set, err := o.device.CreateBindingSet(metadata.BindingSetDesc{
		Name:   name,
		Layout: o.layout,
		Writes: []metadata.BindingWrite{{Binding: 0, Image: img, Sampler: o.sampler}},
	})
	if err != nil {
		return err
	}
	o.sets[id] = set
	return nil
}

func (o *Overlay) Layout() metadata.BindingLayoutHandle {
	return o.layout
}

func (o *Overlay) Texture(id uint32) (metadata.BindingSetHandle, bool) {
	s, ok := o.sets[id]
	return s, ok
}

func (o *Overlay) quad(x0, y0, x1, y1, u0, v0, u1, v1 float32, colour uint32) {
	base := uint32(len(o.vertices))
	o.vertices = append(o.vertices,
		math.Vertex2D{Position: math.NewVec2(x0, y0), Texcoord: math.NewVec2(u0, v0), Colour: colour},
		math.Vertex2D{Position: math.NewVec2(x1, y0), Texcoord: math.NewVec2(u1, v0), Colour: colour},
		math.Vertex2D{Position: math.NewVec2(x1, y1), Texcoord: math.NewVec2(u1, v1), Colour: colour},
		math.Vertex2D{Position: math.NewVec2(x0, y1), Texcoord: math.NewVec2(u0, v1), Colour: colour},
	)
	o.indices = append(o.indices, base, base+1, base+2, base, base+2, base+3)
}

func (o *Overlay) lines(frame FrameInfo) []string {
	lines := []string{
		fmt.Sprintf("frame %d", frame.Frame),
		fmt.Sprintf("%.1f fps  %.2f ms", frame.FPS, frame.FrameTime),
	}
	return append(lines, frame.Lines...)
}

func (o *Overlay) lineHeight() float32 {
	if o.font != nil {
		return o.font.LineHeight
	}
	return fallbackCellH
}

func (o *Overlay) measure(text string) float32 {
	if o.font != nil {
		return o.font.Measure(text)
	}
	return float32(len(text)) * fallbackCellW
}

// text lays out one line with its baseline origin at (x, y).
func (o *Overlay) text(x, y float32, text string) {
	if o.font == nil {
		// one block per non space character
		for i, r := range text {
			if r == ' ' {
				continue
			}
			cx := x + float32(i)*fallbackCellW
			o.quad(cx+1, y+2, cx+fallbackCellW-1, y+fallbackCellH-2, 0, 0, 1, 1, textColour)
		}
		return
	}
	f := o.font
	pen := x
	var prev rune
	for i, r := range text {
		g, ok := f.glyphs[r]
		if !ok {
			continue
		}
		if i > 0 {
			pen += f.kernings[[2]rune{prev, r}]
		}
		x0 := pen + g.xOffset
		y0 := y + g.yOffset
		o.quad(x0, y0, x0+g.width, y0+g.height,
			g.x/f.AtlasW, g.y/f.AtlasH, (g.x+g.width)/f.AtlasW, (g.y+g.height)/f.AtlasH, textColour)
		pen += g.xAdvance
		prev = r
	}
}

func (o *Overlay) Build(frame FrameInfo) DrawData {
	o.vertices = o.vertices[:0]
	o.indices = o.indices[:0]

	lines := o.lines(frame)
	var width float32
	for _, l := range lines {
		width = max(width, o.measure(l))
	}
	lh := o.lineHeight()
	panelW := width + 2*panelPadding
	panelH := float32(len(lines))*lh + 2*panelPadding

	o.quad(panelMargin, panelMargin, panelMargin+panelW, panelMargin+panelH, 0, 0, 1, 1, panelColour)
	panel := DrawCommand{IndexOffset: 0, IndexCount: 6, TextureID: TextureWhite}

	start := uint32(len(o.indices))
	for i, l := range lines {
		o.text(panelMargin+panelPadding, panelMargin+panelPadding+float32(i)*lh, l)
	}
	textTexture := TextureWhite
	if o.font != nil {
		textTexture = TextureFont
	}
	clip := metadata.Rect{
		X:      int32(panelMargin),
		Y:      int32(panelMargin),
		Width:  uint32(panelW),
		Height: uint32(panelH),
	}
	panel.ClipRect = clip
	text := DrawCommand{IndexOffset: start, IndexCount: uint32(len(o.indices)) - start, ClipRect: clip, TextureID: textTexture}

	// the panel may not fit in small windows
	screen := metadata.Rect{Width: frame.Width, Height: frame.Height}
	panel.ClipRect = intersect(panel.ClipRect, screen)
	text.ClipRect = intersect(text.ClipRect, screen)

	data := DrawData{Commands: []DrawCommand{panel}}
	if text.IndexCount > 0 {
		data.Commands = append(data.Commands, text)
	}
	data.Vertices = pack(o.vertices)
	data.Indices = pack(o.indices)
	return data
}

func intersect(a, b metadata.Rect) metadata.Rect {
	x0 := max(a.X, b.X)
	y0 := max(a.Y, b.Y)
	x1 := min(a.X+int32(a.Width), b.X+int32(b.Width))
	y1 := min(a.Y+int32(a.Height), b.Y+int32(b.Height))
	if x1 <= x0 || y1 <= y0 {
		return metadata.Rect{X: x0, Y: y0}
	}
	return metadata.Rect{X: x0, Y: y0, Width: uint32(x1 - x0), Height: uint32(y1 - y0)}
}

func pack(data interface{}) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, data)
	return buf.Bytes()
}

func (o *Overlay) Destroy() {
	for _, s := range o.sets {
		o.device.DestroyBindingSet(s)
	}
	for _, img := range o.images {
		o.device.DestroyImage(img)
	}
	if o.layout != metadata.NullHandle {
		o.device.DestroyBindingLayout(o.layout)
	}
	o.sets = map[uint32]metadata.BindingSetHandle{}
	o.images = nil
}
