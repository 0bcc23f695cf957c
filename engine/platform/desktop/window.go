// Package desktop owns the glfw window and turns window system events into
// per-frame input snapshots.
package desktop

import (
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	mu        sync.Mutex
	state     core.InputSnapshot
	startTime float64
	resized   bool
	width     int
	height    int
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window
	p.width, p.height = int(width), int(height)

	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	core.LogInfo("window %q created (%dx%d)", applicationName, width, height)
	return nil
}

// RequiredInstanceExtensions lists the Vulkan instance extensions the window
// surface needs.
func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// PumpMessages processes pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// FramebufferSize returns the current size and whether it changed since the
// last call.
func (p *Platform) FramebufferSize() (uint32, uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.resized
	p.resized = false
	return uint32(p.width), uint32(p.height), changed
}

func (p *Platform) Snapshot() core.InputSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.ElapsedTime = glfw.GetTime() - p.startTime
	return s
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	p.mu.Lock()
	p.state = p.state.WithButton(b, action != glfw.Release)
	p.mu.Unlock()
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.mu.Lock()
	p.state.MouseX = int32(xpos)
	p.state.MouseY = int32(ypos)
	p.mu.Unlock()
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.mu.Lock()
	p.width, p.height = width, height
	p.resized = true
	p.mu.Unlock()
}
