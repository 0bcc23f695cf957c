// Package ui produces the draw stream of the stats overlay.
package ui

import (
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	TextureWhite uint32 = 0
	TextureFont  uint32 = 1
)

type DrawCommand struct {
	IndexOffset  uint32
	IndexCount   uint32
	VertexOffset uint32
	ClipRect     metadata.Rect
	TextureID    uint32
}

// DrawData is rebuilt every frame. Vertices hold packed math.Vertex2D and
// Indices packed uint32 values.
type DrawData struct {
	Vertices []byte
	Indices  []byte
	Commands []DrawCommand
}

func (d DrawData) Empty() bool {
	return len(d.Commands) == 0
}

type FrameInfo struct {
	Width     uint32
	Height    uint32
	Frame     uint64
	FPS       float64
	FrameTime float64
	Lines     []string
}

type Source interface {
	Build(frame FrameInfo) DrawData
	// Texture resolves a texture id of a draw command to its binding set.
	// Unknown ids report false and callers use the white texture.
	Texture(id uint32) (metadata.BindingSetHandle, bool)
}

func TextureLayoutDesc() metadata.BindingLayoutDesc {
	return metadata.BindingLayoutDesc{
		Name:    "ui.texture",
		Entries: []metadata.LayoutEntry{{Binding: 0, Type: metadata.BindingSampledImage}},
	}
}
