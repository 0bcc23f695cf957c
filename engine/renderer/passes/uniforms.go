package passes

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

var ErrUniformsSealed = errors.New("uniform block is sealed for this frame")

// Section is a group of uniform fields with a single writer per frame.
type Section int

const (
	SectionCamera Section = iota
	SectionJitter
	SectionShadow
	SectionSSAO
	SectionLighting
	SectionSSR
	SectionDebug
	SectionTAA
	SectionTonemap
	sectionCount
)

var sectionNames = [sectionCount]string{"camera", "jitter", "shadow", "ssao", "lighting", "ssr", "debug", "taa", "tonemap"}

func (s Section) String() string {
	if s < 0 || s >= sectionCount {
		return fmt.Sprintf("Section(%d)", int(s))
	}
	return sectionNames[s]
}

type CameraUniforms struct {
	View                   math.Mat4
	Projection             math.Mat4
	ViewProjection         math.Mat4
	InverseProjection      math.Mat4
	InverseViewProjection  math.Mat4
	PreviousViewProjection math.Mat4
	Position               math.Vec4
	Near                   float32
	Far                    float32
	_                      [2]float32
}

type JitterUniforms struct {
	Offset         math.Vec2
	PreviousOffset math.Vec2
	Frame          uint32
	Parity         uint32
	_              [2]uint32
}

type ShadowUniforms struct {
	LightViewProjection math.Mat4
	// direction towards the light, world space
	LightDirection math.Vec4
	PCF            uint32
	RayTraced      uint32
	TemporalWeight float32
	MapSize        uint32
}

type SSAOUniforms struct {
	Bias       float32
	Radius     float32
	KernelSize uint32
	_          uint32
}

const (
	ShadowSourceNone uint32 = iota
	ShadowSourceMap
	ShadowSourceDenoised
)

type LightingUniforms struct {
	LightColor   math.Vec4
	Ambient      float32
	UseAO        uint32
	ShadowSource uint32
	_            uint32
}

type SSRUniforms struct {
	MaxDistance float32
	Resolution  float32
	Thickness   float32
	Steps       uint32
}

type DebugUniforms struct {
	View uint32
	_    [3]uint32
}

type TAAUniforms struct {
	ResolveWeight      float32
	UseMotionVectors   uint32
	FlickerCorrection  uint32
	ReprojectionFilter uint32
}

type TonemapUniforms struct {
	Mode     uint32
	Exposure float32
	_        [2]float32
}

// FrameUniforms is the layout of the per-frame uniform buffer bound at set 0.
type FrameUniforms struct {
	Camera   CameraUniforms
	Jitter   JitterUniforms
	Shadow   ShadowUniforms
	SSAO     SSAOUniforms
	Lighting LightingUniforms
	SSR      SSRUniforms
	Debug    DebugUniforms
	TAA      TAAUniforms
	Tonemap  TonemapUniforms
}

// UniformSize is the encoded size of FrameUniforms in bytes.
func UniformSize() int {
	return binary.Size(FrameUniforms{})
}

/**
 * @brief Collects the per-frame uniform block. The first writer of a section
 * in a frame owns it and any other writer fails. Sections read before they
 * were written report ok=false.
 */
type UniformBuilder struct {
	data   FrameUniforms
	owners [sectionCount]string
	frame  uint64
	sealed bool
}

func NewUniformBuilder() *UniformBuilder {
	return &UniformBuilder{}
}

// Reset starts a new frame. Every section loses its owner and its value.
func (u *UniformBuilder) Reset(frame uint64) {
	u.data = FrameUniforms{}
	u.owners = [sectionCount]string{}
	u.frame = frame
	u.sealed = false
}

// Seal closes the block for writes until the next Reset.
func (u *UniformBuilder) Seal() {
	u.sealed = true
}

func (u *UniformBuilder) Sealed() bool {
	return u.sealed
}

func (u *UniformBuilder) Frame() uint64 {
	return u.frame
}

// Owner returns the writer of s this frame, or "" when it was not written.
func (u *UniformBuilder) Owner(s Section) string {
	return u.owners[s]
}

func (u *UniformBuilder) claim(s Section, owner string) error {
	if u.sealed {
		return fmt.Errorf("%w: %s cannot write %s", ErrUniformsSealed, owner, s)
	}
	if prev := u.owners[s]; prev != "" && prev != owner {
		core.LogError("uniform section %s written by %s and %s in frame %d", s, prev, owner, u.frame)
		return fmt.Errorf("%w: section %s already written by %s, %s tried to write it", core.ErrUniformConflict, s, prev, owner)
	}
	u.owners[s] = owner
	return nil
}

func (u *UniformBuilder) SetCamera(owner string, v CameraUniforms) error {
	if err := u.claim(SectionCamera, owner); err != nil {
		return err
	}
	u.data.Camera = v
	return nil
}

func (u *UniformBuilder) SetJitter(owner string, v JitterUniforms) error {
	if err := u.claim(SectionJitter, owner); err != nil {
		return err
	}
	u.data.Jitter = v
	return nil
}

func (u *UniformBuilder) SetShadow(owner string, v ShadowUniforms) error {
	if err := u.claim(SectionShadow, owner); err != nil {
		return err
	}
	u.data.Shadow = v
	return nil
}

func (u *UniformBuilder) SetSSAO(owner string, v SSAOUniforms) error {
	if err := u.claim(SectionSSAO, owner); err != nil {
		return err
	}
	u.data.SSAO = v
	return nil
}

func (u *UniformBuilder) SetLighting(owner string, v LightingUniforms) error {
	if err := u.claim(SectionLighting, owner); err != nil {
		return err
	}
	u.data.Lighting = v
	return nil
}

func (u *UniformBuilder) SetSSR(owner string, v SSRUniforms) error {
	if err := u.claim(SectionSSR, owner); err != nil {
		return err
	}
	u.data.SSR = v
	return nil
}

func (u *UniformBuilder) SetDebug(owner string, v DebugUniforms) error {
	if err := u.claim(SectionDebug, owner); err != nil {
		return err
	}
	u.data.Debug = v
	return nil
}

func (u *UniformBuilder) SetTAA(owner string, v TAAUniforms) error {
	if err := u.claim(SectionTAA, owner); err != nil {
		return err
	}
	u.data.TAA = v
	return nil
}

func (u *UniformBuilder) SetTonemap(owner string, v TonemapUniforms) error {
	if err := u.claim(SectionTonemap, owner); err != nil {
		return err
	}
	u.data.Tonemap = v
	return nil
}

func (u *UniformBuilder) written(s Section) bool {
	return u.owners[s] != ""
}

func (u *UniformBuilder) Camera() (CameraUniforms, bool) {
	return u.data.Camera, u.written(SectionCamera)
}

func (u *UniformBuilder) Jitter() (JitterUniforms, bool) {
	return u.data.Jitter, u.written(SectionJitter)
}

func (u *UniformBuilder) Shadow() (ShadowUniforms, bool) {
	return u.data.Shadow, u.written(SectionShadow)
}

func (u *UniformBuilder) SSAO() (SSAOUniforms, bool) {
	return u.data.SSAO, u.written(SectionSSAO)
}

func (u *UniformBuilder) Lighting() (LightingUniforms, bool) {
	return u.data.Lighting, u.written(SectionLighting)
}

// Data returns the whole block as written so far.
func (u *UniformBuilder) Data() FrameUniforms {
	return u.data
}

// Encode packs the block little endian, the layout the shaders declare.
func (u *UniformBuilder) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(UniformSize())
	_ = binary.Write(&buf, binary.LittleEndian, &u.data)
	return buf.Bytes()
}

func DecodeUniforms(data []byte) (FrameUniforms, error) {
	var out FrameUniforms
	if len(data) < UniformSize() {
		return out, fmt.Errorf("uniform buffer holds %d bytes, need %d", len(data), UniformSize())
	}
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &out)
	return out, err
}
