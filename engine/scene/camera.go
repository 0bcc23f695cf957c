package scene

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

type ProjectionKind int

const (
	Perspective ProjectionKind = iota
	Ortho
)

// InitParams carries the construction data for either projection kind. Only
// the fields of Kind are read.
type InitParams struct {
	Kind ProjectionKind
	// Perspective
	FovY float32
	// Ortho, the height of the view volume in world units
	Height float32

	Near float32
	Far  float32
}

func DefaultInitParams() InitParams {
	return InitParams{Kind: Perspective, FovY: math.DegToRad(60), Near: 0.1, Far: 100}
}

/**
 * @brief An orbit camera. Dragging with the left mouse button rotates it
 * around its target.
 */
type Camera struct {
	params InitParams

	Target   math.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
	// radians per pixel of mouse movement
	Sensitivity float32

	IsDirty    bool
	viewMatrix math.Mat4

	previousViewProjection math.Mat4
	lastMouseX, lastMouseY int32
	dragging               bool
}

func NewCamera(params InitParams) (*Camera, error) {
	switch params.Kind {
	case Perspective:
		if params.FovY <= 0 || params.FovY >= math.K_PI {
			return nil, fmt.Errorf("invalid perspective field of view %f", params.FovY)
		}
	case Ortho:
		if params.Height <= 0 {
			return nil, fmt.Errorf("invalid orthographic height %f", params.Height)
		}
	default:
		return nil, fmt.Errorf("unknown projection kind %d", params.Kind)
	}
	if params.Near <= 0 || params.Far <= params.Near {
		return nil, fmt.Errorf("invalid clip range [%f, %f]", params.Near, params.Far)
	}
	c := &Camera{
		params:      params,
		Distance:    8,
		Pitch:       0.35,
		Sensitivity: 0.005,
		IsDirty:     true,
	}
	c.previousViewProjection = c.ViewProjection(1)
	return c, nil
}

func (c *Camera) Params() InitParams {
	return c.params
}

func (c *Camera) Position() math.Vec3 {
	cp := math.Cos(c.Pitch)
	offset := math.NewVec3(cp*math.Sin(c.Yaw), math.Sin(c.Pitch), cp*math.Cos(c.Yaw)).MulScalar(c.Distance)
	return c.Target.Add(offset)
}

func (c *Camera) View() math.Mat4 {
	if c.IsDirty {
		c.viewMatrix = math.NewMat4LookAt(c.Position(), c.Target, math.NewVec3Up())
		c.IsDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) Projection(aspect float32) math.Mat4 {
	switch c.params.Kind {
	case Perspective:
		return math.NewMat4Perspective(c.params.FovY, aspect, c.params.Near, c.params.Far)
	case Ortho:
		h := c.params.Height / 2
		return math.NewMat4Orthographic(-h*aspect, h*aspect, -h, h, c.params.Near, c.params.Far)
	}
	panic("unreachable projection kind")
}

func (c *Camera) ViewProjection(aspect float32) math.Mat4 {
	return c.View().Mul(c.Projection(aspect))
}

// PreviousViewProjection is the unjittered view projection of the last Update.
func (c *Camera) PreviousViewProjection() math.Mat4 {
	return c.previousViewProjection
}

func (c *Camera) Near() float32 {
	return c.params.Near
}

func (c *Camera) Far() float32 {
	return c.params.Far
}

// Update remembers the current view projection as the previous one and then
// applies the input of this frame.
func (c *Camera) Update(input core.InputSnapshot, aspect float32) {
	c.previousViewProjection = c.ViewProjection(aspect)

	down := input.IsButtonDown(core.BUTTON_LEFT)
	if down && c.dragging {
		dx := float32(input.MouseX - c.lastMouseX)
		dy := float32(input.MouseY - c.lastMouseY)
		if dx != 0 || dy != 0 {
			c.Yaw -= dx * c.Sensitivity
			c.Pitch = math.Clamp(c.Pitch+dy*c.Sensitivity, -1.5, 1.5)
			c.IsDirty = true
		}
	}
	c.dragging = down
	c.lastMouseX, c.lastMouseY = input.MouseX, input.MouseY
}
