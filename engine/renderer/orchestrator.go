// Package renderer drives the frame: it owns the pass list, the render
// targets and the synchronization ring and runs one frame per RunFrame call.
package renderer

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/frames"
	"github.com/spaghettifunk/lumen/engine/renderer/jitter"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/scene"
	"github.com/spaghettifunk/lumen/engine/systems"
	"github.com/spaghettifunk/lumen/engine/ui"
)

// procedural scene size used when no asset source is given
const defaultCubes = 5

type Options struct {
	Device   metadata.Device
	Settings config.Settings
	// Scene defaults to the procedural scene.
	Scene scene.Source
	// UI defaults to the stats overlay when ui.enabled is set.
	UI    ui.Source
	Input platform.InputSource
	// Camera defaults to a perspective orbit camera.
	Camera *scene.Camera
	// Watcher, when set, is drained at the top of every frame.
	Watcher *config.Watcher
	// Jobs is shut down with the orchestrator when set.
	Jobs *systems.JobSystem
}

// destroyer is implemented by the collaborators the orchestrator builds itself.
type destroyer interface {
	Destroy()
}

/**
 * @brief Runs the per frame cycle: acquire, configure every enabled pass,
 * record every enabled pass into a list of its own, submit once and
 * present.
 */
type FrameOrchestrator struct {
	device   metadata.Device
	settings config.Settings
	table    *resources.Table
	ring     *frames.Ring
	ctx      *passes.Context
	passes   []passes.Pass

	scene   scene.Source
	ui      ui.Source
	input   platform.InputSource
	camera  *scene.Camera
	watcher *config.Watcher
	jobs    *systems.JobSystem
	owned   []destroyer

	uniforms       *passes.UniformBuilder
	uniformBuffers []metadata.BufferHandle
	// command lists per frame slot, one per pass plus pick and present
	lists [][]metadata.CommandList

	sequence       *jitter.Sequence
	previousJitter jitter.Result
	frameCount     uint64
	elapsed        float64
	metrics        *core.Metrics
	stats          []PassStats

	pick pickState
	shut bool
}

// NewPassList builds the passes in the order they are recorded.
func NewPassList() []passes.Pass {
	return []passes.Pass{
		passes.NewShadowPass(),
		passes.NewSkyboxPass(),
		passes.NewForwardPass(),
		passes.NewGBufferPass(),
		passes.NewSSAOPass(),
		passes.NewSSAOBlurPass(),
		passes.NewShadowDenoisePass(),
		passes.NewLightingPass(),
		passes.NewSSRPass(),
		passes.NewDebugPass(),
		passes.NewTAAPass(),
		passes.NewTonemapPass(),
		passes.NewUIPass(),
	}
}

func NewFrameOrchestrator(opts Options) (*FrameOrchestrator, error) {
	if opts.Device == nil {
		return nil, errors.New("frame orchestrator needs a device")
	}
	settings := opts.Settings
	settings.Clamp()
	o := &FrameOrchestrator{
		device:   opts.Device,
		settings: settings,
		scene:    opts.Scene,
		ui:       opts.UI,
		input:    opts.Input,
		camera:   opts.Camera,
		watcher:  opts.Watcher,
		jobs:     opts.Jobs,
		table:    resources.NewTable(opts.Device),
		uniforms: passes.NewUniformBuilder(),
		sequence: jitter.NewSequence(settings.TAA.JitterMode),
		metrics:  core.NewMetrics(),
	}
	if err := o.initialize(); err != nil {
		core.LogError("failed to create the frame orchestrator: %s", err)
		o.Shutdown()
		return nil, err
	}
	core.LogInfo("frame orchestrator ready with %d passes in %s mode", len(o.passes), settings.Renderer.Mode)
	return o, nil
}

func (o *FrameOrchestrator) initialize() error {
	ring, err := frames.NewRing(o.device)
	if err != nil {
		return err
	}
	o.ring = ring
	slots := ring.Slots()

	o.ctx = &passes.Context{Device: o.device, Table: o.table, Settings: o.settings}
	if o.ctx.Sampler, err = o.device.CreateSampler(metadata.SamplerDesc{Name: "linear.clamp", Filter: metadata.FilterLinear}); err != nil {
		return err
	}
	if o.camera == nil {
		if o.camera, err = scene.NewCamera(scene.DefaultInitParams()); err != nil {
			return err
		}
	}
	if o.scene == nil {
		p, err := scene.NewProcedural(o.device, o.ctx.Sampler, defaultCubes)
		if err != nil {
			return err
		}
		o.scene = p
		o.owned = append(o.owned, p)
	}
	if o.ui == nil && o.settings.UI.Enabled {
		if err := o.createOverlay(); err != nil {
			return err
		}
	}
	o.ctx.Scene, o.ctx.UI = o.scene, o.ui

	if err := passes.CreateTargets(o.table, o.settings); err != nil {
		return err
	}
	if err := o.createFrameSets(slots); err != nil {
		return err
	}
	if err := o.createPrimarySet(); err != nil {
		return err
	}
	if err := o.pick.create(o.device, slots); err != nil {
		return err
	}

	o.passes = NewPassList()
	o.stats = make([]PassStats, len(o.passes))
	for i, p := range o.passes {
		if err := p.Init(o.ctx, i); err != nil {
			o.passes = o.passes[:i]
			return fmt.Errorf("failed to initialize pass %s: %w", p.Name(), err)
		}
		o.stats[i] = PassStats{Name: p.Name(), Index: i, Kind: p.Kind()}
		core.LogDebug("pass %d %s (%s) created, enabled=%v", i, p.Name(), p.Kind(), p.Enabled())
	}
	o.lists = make([][]metadata.CommandList, slots)
	for i := range o.lists {
		o.lists[i] = make([]metadata.CommandList, len(o.passes)+2)
	}
	return nil
}

func (o *FrameOrchestrator) createOverlay() error {
	var font *ui.Font
	if o.settings.UI.Font != "" {
		f, err := ui.LoadFont(o.settings.UI.Font)
		if err != nil {
			// the overlay falls back to block glyphs
			core.LogWarn("failed to load font %s: %s", o.settings.UI.Font, err)
		} else {
			font = f
		}
	}
	overlay, err := ui.NewOverlay(o.device, o.ctx.Sampler, font)
	if err != nil {
		return err
	}
	o.ui = overlay
	o.owned = append(o.owned, overlay)
	return nil
}

// createFrameSets builds one uniform buffer and set 0 per frame slot.
func (o *FrameOrchestrator) createFrameSets(slots int) error {
	var err error
	if o.ctx.FrameLayout, err = o.device.CreateBindingLayout(passes.FrameLayoutDesc()); err != nil {
		return err
	}
	if o.ctx.EmptyLayout, err = o.device.CreateBindingLayout(metadata.BindingLayoutDesc{Name: "empty"}); err != nil {
		return err
	}
	for i := 0; i < slots; i++ {
		buf, err := o.device.CreateBuffer(metadata.BufferDesc{
			Name:        fmt.Sprintf("frame.uniforms.%d", i),
			Size:        uint64(passes.UniformSize()),
			Usage:       metadata.BufferUsageUniform,
			HostVisible: true,
		})
		if err != nil {
			return err
		}
		o.uniformBuffers = append(o.uniformBuffers, buf)
		set, err := o.device.CreateBindingSet(metadata.BindingSetDesc{
			Name:   fmt.Sprintf("frame.%d", i),
			Layout: o.ctx.FrameLayout,
			Writes: []metadata.BindingWrite{{Binding: passes.FrameUniformBinding, Buffer: buf}},
		})
		if err != nil {
			return err
		}
		o.ctx.FrameSets = append(o.ctx.FrameSets, set)
	}
	return nil
}

// createPrimarySet builds the primary set in a one time list so the read
// transitions it needs reach the device.
func (o *FrameOrchestrator) createPrimarySet() error {
	layout, err := o.device.CreateBindingLayout(o.table.PrimaryLayoutDesc())
	if err != nil {
		return err
	}
	o.ctx.PrimaryLayout = layout
	cl, err := o.device.NewCommandList("setup")
	if err != nil {
		return err
	}
	defer o.device.FreeCommandList(cl)
	if err := cl.Begin(); err != nil {
		return err
	}
	if o.ctx.Primary, err = o.table.BuildPrimaryBindingSet(cl, layout, o.ctx.Sampler); err != nil {
		return err
	}
	if err := cl.End(); err != nil {
		return err
	}
	if err := o.device.Submit(metadata.SubmitInfo{Lists: []metadata.CommandList{cl}}); err != nil {
		return err
	}
	return o.device.WaitIdle()
}

func (o *FrameOrchestrator) Passes() []passes.Pass {
	return o.passes
}

// Pass returns the pass registered under name.
func (o *FrameOrchestrator) Pass(name string) (passes.Pass, bool) {
	i := slices.IndexFunc(o.passes, func(p passes.Pass) bool { return p.Name() == name })
	if i < 0 {
		return nil, false
	}
	return o.passes[i], true
}

func (o *FrameOrchestrator) Table() *resources.Table {
	return o.table
}

func (o *FrameOrchestrator) Settings() config.Settings {
	return o.settings
}

func (o *FrameOrchestrator) FrameCount() uint64 {
	return o.frameCount
}

func (o *FrameOrchestrator) Ring() *frames.Ring {
	return o.ring
}

// ApplySettings hands new settings to every pass. Call it between frames.
// Values fixed at creation (extents, shadow map size) keep their old value.
func (o *FrameOrchestrator) ApplySettings(s config.Settings) {
	s.Clamp()
	s.Renderer.Width, s.Renderer.Height = o.settings.Renderer.Width, o.settings.Renderer.Height
	s.Renderer.RenderScale = o.settings.Renderer.RenderScale
	s.Shadow.MapSize = o.settings.Shadow.MapSize
	if s.Log.Level != o.settings.Log.Level {
		core.SetLogLevel(core.ParseLogLevel(s.Log.Level))
	}
	o.settings = s
	o.ctx.Settings = s
	o.sequence.Mode = s.TAA.JitterMode
	for _, p := range o.passes {
		p.Apply(s)
	}
	core.LogInfo("settings applied: mode=%s taa=%v ssao=%v ssr=%v debug=%s", s.Renderer.Mode, s.TAA.Enabled, s.SSAO.Enabled, s.SSR.Enabled, s.Debug.View)
}

// Shutdown waits for the device and releases everything in reverse order of
// creation. It is safe to call more than once.
func (o *FrameOrchestrator) Shutdown() error {
	if o.shut {
		return nil
	}
	o.shut = true
	var errs []error
	if err := o.device.WaitIdle(); err != nil {
		errs = append(errs, err)
	}
	if o.ring != nil {
		waited, err := o.ring.WaitAll()
		if err != nil {
			errs = append(errs, err)
		}
		for _, slot := range waited {
			o.collectPick(slot)
		}
	}
	for _, slot := range o.lists {
		for _, cl := range slot {
			if cl != nil {
				o.device.FreeCommandList(cl)
			}
		}
	}
	o.lists = nil
	for i := len(o.passes) - 1; i >= 0; i-- {
		o.passes[i].Destroy()
	}
	o.passes = nil
	o.pick.destroy(o.device)
	if o.ctx != nil {
		o.destroyContext()
	}
	for i := len(o.owned) - 1; i >= 0; i-- {
		o.owned[i].Destroy()
	}
	o.owned = nil
	o.table.Destroy()
	if o.ring != nil {
		o.ring.Destroy()
	}
	if o.jobs != nil {
		if err := o.jobs.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	core.LogInfo("frame orchestrator shut down after %d frames", o.frameCount)
	return errors.Join(errs...)
}

func (o *FrameOrchestrator) destroyContext() {
	c := o.ctx
	if c.Primary != metadata.NullHandle {
		o.device.DestroyBindingSet(c.Primary)
	}
	for _, s := range c.FrameSets {
		o.device.DestroyBindingSet(s)
	}
	for _, b := range o.uniformBuffers {
		o.device.DestroyBuffer(b)
	}
	o.uniformBuffers = nil
	for _, l := range []metadata.BindingLayoutHandle{c.PrimaryLayout, c.FrameLayout, c.EmptyLayout} {
		if l != metadata.NullHandle {
			o.device.DestroyBindingLayout(l)
		}
	}
	if c.Sampler != metadata.NullHandle {
		o.device.DestroySampler(c.Sampler)
	}
	o.ctx = nil
}
