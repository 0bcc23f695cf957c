package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Vertex input layout of a pipeline: one interleaved binding and its
 * attributes, located in declaration order.
 */
type vertexInput struct {
	Stride     uint32
	Attributes []vk.VertexInputAttributeDescription
}

var (
	vertex3D = vertexInput{
		Stride: uint32(unsafe.Sizeof(math.Vertex3D{})),
		Attributes: []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(math.Vertex3D{}.Position))},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(math.Vertex3D{}.Normal))},
			{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(math.Vertex3D{}.Texcoord))},
			{Location: 3, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: uint32(unsafe.Offsetof(math.Vertex3D{}.Colour))},
		},
	}
	vertex2D = vertexInput{
		Stride: uint32(unsafe.Sizeof(math.Vertex2D{})),
		Attributes: []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(math.Vertex2D{}.Position))},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(math.Vertex2D{}.Texcoord))},
			{Location: 2, Binding: 0, Format: vk.FormatR8g8b8a8Unorm, Offset: uint32(unsafe.Offsetof(math.Vertex2D{}.Colour))},
		},
	}
)

// vertexInputOf returns nil for pipelines that generate their vertices.
func vertexInputOf(layout metadata.VertexLayout) (*vertexInput, error) {
	switch layout {
	case metadata.VertexLayoutNone:
		return nil, nil
	case metadata.VertexLayout3D:
		return &vertex3D, nil
	case metadata.VertexLayout2D:
		return &vertex2D, nil
	}
	return nil, fmt.Errorf("unknown vertex layout %d", layout)
}
