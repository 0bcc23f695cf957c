package metadata

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type ImageHandle uint64
type BufferHandle uint64
type SamplerHandle uint64
type PipelineHandle uint64
type BindingLayoutHandle uint64
type BindingSetHandle uint64
type SemaphoreHandle uint64
type FenceHandle uint64

// NullHandle is never returned by a device for a live object.
const NullHandle = 0

var (
	ErrInvalidHandle  = errors.New("invalid device handle")
	ErrLayoutMismatch = errors.New("image is not in the layout the command expects")
)

/** @brief The access mode a render target is currently in. */
type Access uint32

const (
	AccessUndefined Access = iota
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachment
	AccessDepthAttachment
	// read-only depth, usable as a sampled texture and a read-only attachment
	AccessDepthRead
	AccessTransferSrc
	AccessTransferDst
	AccessPresent
)

var accessNames = []string{
	"Undefined", "ShaderRead", "ShaderWrite", "ColorAttachment", "DepthAttachment",
	"DepthRead", "TransferSrc", "TransferDst", "Present",
}

func (a Access) String() string {
	if int(a) >= len(accessNames) {
		return fmt.Sprintf("Access(%d)", uint32(a))
	}
	return accessNames[a]
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Srgb
	FormatRGBA16F
	FormatRG16F
	FormatR16F
	FormatR32F
	FormatR32Uint
	FormatD32F
)

var formatNames = []string{"Undefined", "RGBA8Unorm", "BGRA8Srgb", "RGBA16F", "RG16F", "R16F", "R32F", "R32Uint", "D32F"}

func (f Format) String() string {
	if int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", uint32(f))
	}
	return formatNames[f]
}

func (f Format) Channels() int {
	switch f {
	case FormatRGBA8Unorm, FormatBGRA8Srgb, FormatRGBA16F:
		return 4
	case FormatRG16F:
		return 2
	case FormatR16F, FormatR32F, FormatR32Uint, FormatD32F:
		return 1
	}
	return 0
}

// BytesPerTexel is the size of one texel in host memory.
func (f Format) BytesPerTexel() int {
	switch f {
	case FormatRGBA8Unorm, FormatBGRA8Srgb, FormatRG16F, FormatR32F, FormatR32Uint, FormatD32F:
		return 4
	case FormatRGBA16F:
		return 8
	case FormatR16F:
		return 2
	}
	return 0
}

func (f Format) IsDepth() bool {
	return f == FormatD32F
}

// ReadAccess is the access a sampled image of this format is bound with.
func (f Format) ReadAccess() Access {
	if f.IsDepth() {
		return AccessDepthRead
	}
	return AccessShaderRead
}

type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) Contains(x, y int32) bool {
	return x >= 0 && y >= 0 && uint32(x) < e.Width && uint32(y) < e.Height
}

type Rect struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

func (e Extent) Rect() Rect {
	return Rect{Width: e.Width, Height: e.Height}
}

type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

type ImageDesc struct {
	Name   string
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageStorage
	BufferUsageTransferDst
)

type BufferDesc struct {
	Name        string
	Size        uint64
	Usage       BufferUsage
	HostVisible bool
}

type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode uint32

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
)

type SamplerDesc struct {
	Name    string
	Filter  Filter
	Address AddressMode
}

type BindingType uint32

const (
	BindingUniformBuffer BindingType = iota
	BindingSampledImage
	BindingStorageImage
)

type LayoutEntry struct {
	Binding uint32
	Type    BindingType
}

type BindingLayoutDesc struct {
	Name    string
	Entries []LayoutEntry
}

// BindingWrite fills one binding of a set. Image bindings use Image and
// Sampler, uniform bindings use Buffer.
type BindingWrite struct {
	Binding uint32
	Image   ImageHandle
	Sampler SamplerHandle
	Buffer  BufferHandle
}

type BindingSetDesc struct {
	Name   string
	Layout BindingLayoutHandle
	Writes []BindingWrite
}

type PipelineKind uint32

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
)

type VertexLayout uint32

const (
	VertexLayoutNone VertexLayout = iota
	VertexLayout3D
	VertexLayout2D
)

// KernelContext gives a CPU kernel access to the resources bound when it runs.
type KernelContext interface {
	// Image returns the image bound at (set, binding). Sampled bindings must
	// be in a read access and storage bindings in ShaderWrite.
	Image(set, binding uint32) (*surface.Surface, error)
	Uniforms(set, binding uint32) ([]byte, error)
	// Attachment returns color attachment i of the active rendering scope.
	Attachment(i int) (*surface.Surface, error)
	// DepthAttachment returns the depth attachment of the active rendering
	// scope. Read-only attachments must not be written.
	DepthAttachment() (*surface.Surface, error)
	PushConstants() []byte
	Groups() (uint32, uint32, uint32)
	// Jobs may be nil.
	Jobs() *systems.JobSystem
}

// Kernel is the CPU reference of a pipeline. Devices that run SPIR-V ignore it.
type Kernel func(ctx KernelContext) error

type PipelineDesc struct {
	Name             string
	Kind             PipelineKind
	Shaders          []string
	Layouts          []BindingLayoutHandle
	PushConstantSize uint32
	VertexLayout     VertexLayout
	ColorFormats     []Format
	DepthFormat      Format
	DepthTest        bool
	DepthWrite       bool
	Blend            bool
	Kernel           Kernel
}

type LoadOp uint32

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type Attachment struct {
	Image ImageHandle
	Load  LoadOp
	Clear [4]float32
	// ReadOnly depth attachments are bound in DepthRead.
	ReadOnly bool
}

type RenderingInfo struct {
	Name  string
	Area  Rect
	Color []Attachment
	Depth *Attachment
}

type Barrier struct {
	Image ImageHandle
	From  Access
	To    Access
}

type SubmitInfo struct {
	Lists  []CommandList
	Wait   []SemaphoreHandle
	Signal []SemaphoreHandle
	// Fence may be NullHandle.
	Fence FenceHandle
}

/**
 * @brief A recorder of GPU commands. Recording methods never block; problems
 * found while recording are reported by End.
 */
type CommandList interface {
	Name() string
	Begin() error
	End() error
	Reset() error

	Barrier(b Barrier)
	BeginRendering(info RenderingInfo)
	EndRendering()
	BindPipeline(p PipelineHandle)
	BindSet(index uint32, set BindingSetHandle)
	PushConstants(data []byte)
	SetViewport(r Rect)
	SetScissor(r Rect)
	BindVertexBuffer(b BufferHandle, offset uint64)
	BindIndexBuffer(b BufferHandle, offset uint64)
	Draw(vertexCount, instanceCount, firstVertex uint32)
	DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32)
	Dispatch(x, y, z uint32)
	CopyImageToBuffer(src ImageHandle, region Rect, dst BufferHandle, offset uint64)
}

/**
 * @brief The graphics device the frame orchestrator drives.
 */
type Device interface {
	CreateImage(desc ImageDesc) (ImageHandle, error)
	// UploadImage fills an image with tightly packed texels and leaves it in ShaderRead.
	UploadImage(image ImageHandle, pixels []byte) error
	DestroyImage(image ImageHandle)

	CreateBuffer(desc BufferDesc) (BufferHandle, error)
	MapBuffer(buffer BufferHandle) ([]byte, error)
	UnmapBuffer(buffer BufferHandle)
	DestroyBuffer(buffer BufferHandle)

	CreateSampler(desc SamplerDesc) (SamplerHandle, error)
	DestroySampler(sampler SamplerHandle)

	CreateBindingLayout(desc BindingLayoutDesc) (BindingLayoutHandle, error)
	DestroyBindingLayout(layout BindingLayoutHandle)
	CreateBindingSet(desc BindingSetDesc) (BindingSetHandle, error)
	DestroyBindingSet(set BindingSetHandle)

	CreatePipeline(desc PipelineDesc) (PipelineHandle, error)
	DestroyPipeline(pipeline PipelineHandle)

	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(semaphore SemaphoreHandle)
	CreateFence() (FenceHandle, error)
	WaitFence(fence FenceHandle) error
	ResetFence(fence FenceHandle) error
	DestroyFence(fence FenceHandle)

	NewCommandList(name string) (CommandList, error)
	FreeCommandList(cl CommandList)

	SwapchainImages() []ImageHandle
	SwapchainFormat() Format
	SwapchainExtent() Extent
	// AcquireNextImage returns the index of the next swapchain slot and
	// signals the semaphore once it is ready to be rendered to.
	AcquireNextImage(signal SemaphoreHandle) (uint32, error)
	Submit(info SubmitInfo) error
	Present(index uint32, wait SemaphoreHandle) error

	WaitIdle() error
	Shutdown() error
}
