// Package resources owns every render target of the frame graph together with
// the access state it was last transitioned to.
package resources

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var (
	ErrUnknownResource   = errors.New("unknown resource")
	ErrDuplicateResource = errors.New("resource already registered")
	ErrNotHistory        = errors.New("resource is not a history pair")
)

type RenderTarget struct {
	Name   string
	Image  metadata.ImageHandle
	Desc   metadata.ImageDesc
	Access metadata.Access
	// Binding is the slot of the target in the primary binding set.
	Binding uint32
}

// Table is the only place access tags are changed. Passes request transitions
// through it and never touch Access themselves.
type Table struct {
	device    metadata.Device
	targets   map[string]*RenderTarget
	order     []string
	histories map[string][2]string
	// swapchain and other images the table does not own
	external map[metadata.ImageHandle]metadata.Access
	barriers uint64
}

func NewTable(device metadata.Device) *Table {
	return &Table{
		device:    device,
		targets:   make(map[string]*RenderTarget),
		histories: make(map[string][2]string),
		external:  make(map[metadata.ImageHandle]metadata.Access),
	}
}

// Create allocates a render target. An empty name gets a generated one.
func (t *Table) Create(desc metadata.ImageDesc) (*RenderTarget, error) {
	if desc.Name == "" {
		desc.Name = "target." + uuid.NewString()
	}
	if _, ok := t.targets[desc.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, desc.Name)
	}
	if _, ok := t.histories[desc.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, desc.Name)
	}
	img, err := t.device.CreateImage(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create render target %s: %w", desc.Name, err)
	}
	rt := &RenderTarget{
		Name:    desc.Name,
		Image:   img,
		Desc:    desc,
		Access:  metadata.AccessUndefined,
		Binding: uint32(len(t.order)),
	}
	t.targets[desc.Name] = rt
	t.order = append(t.order, desc.Name)
	core.LogDebug("render target %s created (%dx%d %s)", desc.Name, desc.Width, desc.Height, desc.Format)
	return rt, nil
}

// CreateHistory registers name as a pair of physical targets name.a and name.b.
func (t *Table) CreateHistory(desc metadata.ImageDesc) error {
	if desc.Name == "" {
		desc.Name = "history." + uuid.NewString()
	}
	name := desc.Name
	if _, ok := t.histories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, name)
	}
	var pair [2]string
	for i, suffix := range []string{".a", ".b"} {
		d := desc
		d.Name = name + suffix
		if _, err := t.Create(d); err != nil {
			return err
		}
		pair[i] = d.Name
	}
	t.histories[name] = pair
	return nil
}

func (t *Table) Get(name string) (*RenderTarget, error) {
	rt, ok := t.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return rt, nil
}

// MustGet is Get for names registered at construction time.
func (t *Table) MustGet(name string) *RenderTarget {
	rt, err := t.Get(name)
	if err != nil {
		panic(err)
	}
	return rt
}

func (t *Table) IsHistory(name string) bool {
	_, ok := t.histories[name]
	return ok
}

// Parity selects the physical slot of a history pair for a frame.
func Parity(frame uint64) uint32 {
	return uint32(frame & 1)
}

// Current is the slot written this frame: a on even frames, b on odd ones.
func (t *Table) Current(name string, frame uint64) (*RenderTarget, error) {
	pair, ok := t.histories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotHistory, name)
	}
	return t.targets[pair[Parity(frame)]], nil
}

// Previous is the slot written last frame.
func (t *Table) Previous(name string, frame uint64) (*RenderTarget, error) {
	pair, ok := t.histories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotHistory, name)
	}
	return t.targets[pair[Parity(frame)^1]], nil
}

// Resolve returns the target for a plain name, or the current slot for a history.
func (t *Table) Resolve(name string, frame uint64) (*RenderTarget, error) {
	if t.IsHistory(name) {
		return t.Current(name, frame)
	}
	return t.Get(name)
}

// Transition moves a target to access. Requesting the access it is already in
// records nothing.
func (t *Table) Transition(name string, access metadata.Access, cl metadata.CommandList) error {
	rt, err := t.Get(name)
	if err != nil {
		return err
	}
	t.TransitionTarget(rt, access, cl)
	return nil
}

func (t *Table) TransitionTarget(rt *RenderTarget, access metadata.Access, cl metadata.CommandList) {
	if rt.Access == access {
		return
	}
	cl.Barrier(metadata.Barrier{Image: rt.Image, From: rt.Access, To: access})
	t.barriers++
	rt.Access = access
}

// TransitionImage tracks images the table does not own, such as swapchain images.
func (t *Table) TransitionImage(image metadata.ImageHandle, access metadata.Access, cl metadata.CommandList) {
	from := t.external[image]
	if from == access {
		return
	}
	cl.Barrier(metadata.Barrier{Image: image, From: from, To: access})
	t.barriers++
	t.external[image] = access
}

// AccessState is the tracked access of every image at one point in time.
type AccessState struct {
	targets  map[string]metadata.Access
	external map[metadata.ImageHandle]metadata.Access
}

// Snapshot records the current access of every image so a frame that is
// never submitted can be undone with Restore.
func (t *Table) Snapshot() AccessState {
	st := AccessState{
		targets:  make(map[string]metadata.Access, len(t.targets)),
		external: make(map[metadata.ImageHandle]metadata.Access, len(t.external)),
	}
	for name, rt := range t.targets {
		st.targets[name] = rt.Access
	}
	for img, a := range t.external {
		st.external[img] = a
	}
	return st
}

// Restore puts back the accesses recorded by Snapshot.
func (t *Table) Restore(st AccessState) {
	for name, a := range st.targets {
		if rt, ok := t.targets[name]; ok {
			rt.Access = a
		}
	}
	t.external = make(map[metadata.ImageHandle]metadata.Access, len(st.external))
	for img, a := range st.external {
		t.external[img] = a
	}
}

func (t *Table) ImageAccess(image metadata.ImageHandle) metadata.Access {
	return t.external[image]
}

// Barriers is the number of barriers recorded over the table's lifetime.
func (t *Table) Barriers() uint64 {
	return t.barriers
}

// Targets returns the physical targets in registration order.
func (t *Table) Targets() []*RenderTarget {
	out := make([]*RenderTarget, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.targets[n])
	}
	return out
}

func (t *Table) Destroy() {
	for i := len(t.order) - 1; i >= 0; i-- {
		rt := t.targets[t.order[i]]
		t.device.DestroyImage(rt.Image)
	}
	t.targets = make(map[string]*RenderTarget)
	t.histories = make(map[string][2]string)
	t.external = make(map[metadata.ImageHandle]metadata.Access)
	t.order = nil
}
