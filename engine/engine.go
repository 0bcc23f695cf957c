package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/platform/desktop"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

type Backend uint8

const (
	BackendHeadless Backend = iota
	BackendVulkan
)

func (b Backend) String() string {
	if b == BackendVulkan {
		return "vulkan"
	}
	return "headless"
}

func ParseBackend(name string) (Backend, error) {
	switch name {
	case "", "headless":
		return BackendHeadless, nil
	case "vulkan":
		return BackendVulkan, nil
	}
	return BackendHeadless, fmt.Errorf("unknown backend %q, expected headless or vulkan", name)
}

// number of booting frames tolerated in a row before the run gives up
const maxBootingFrames = 600

type Options struct {
	Name     string
	Backend  Backend
	Settings config.Settings
	// ConfigPath is watched for changes when Watch is set.
	ConfigPath string
	Watch      bool
	// Frames stops the run after that many presented frames. Zero runs until
	// the window closes, the headless backend requires a limit.
	Frames uint64
	// Pick, when set, is requested on the first frame.
	Pick *[2]int32
	// LimitFrames sleeps away what is left of a 60Hz frame.
	LimitFrames bool
	ShaderDir   string
	Validation  bool
	// Input overrides the input of the headless backend.
	Input platform.InputSource
}

type Engine struct {
	currentStage Stage
	opts         Options
	isRunning    atomic.Bool
	clock        *core.Clock
	lastTime     float64

	platform     *desktop.Platform
	input        platform.InputSource
	device       metadata.Device
	jobs         *systems.JobSystem
	watcher      *config.Watcher
	orchestrator *renderer.FrameOrchestrator
	skipped      uint64
}

func New(opts Options) (*Engine, error) {
	if opts.Name == "" {
		opts.Name = "lumen"
	}
	if opts.Backend == BackendHeadless && opts.Frames == 0 {
		return nil, errors.New("the headless backend needs a frame limit")
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		opts:         opts,
		clock:        core.NewClock(),
	}
	return e, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

/**
 * @brief Opens the window when needed, creates the device of the selected
 * backend and the frame orchestrator on top of it. Everything created is
 * released again when a later step fails.
 */
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	if err := e.initialize(); err != nil {
		core.LogError("engine initialization failed: %s", err)
		_ = e.Shutdown()
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) initialize() error {
	s := e.opts.Settings
	s.Clamp()

	jobs, err := systems.NewJobSystem(runtime.NumCPU(), 64)
	if err != nil {
		return err
	}
	e.jobs = jobs

	switch e.opts.Backend {
	case BackendVulkan:
		p, err := desktop.New()
		if err != nil {
			return err
		}
		if err := p.Startup(e.opts.Name, 100, 100, s.Renderer.Width, s.Renderer.Height); err != nil {
			return err
		}
		e.platform = p
		e.input = p
		d, err := vulkan.New(vulkan.Options{
			Platform:   p,
			AppName:    e.opts.Name,
			ShaderDir:  e.opts.ShaderDir,
			Validation: e.opts.Validation,
		})
		if err != nil {
			return err
		}
		e.device = d
	default:
		d, err := headless.NewDevice(headless.Options{
			Width:           s.Renderer.Width,
			Height:          s.Renderer.Height,
			SwapchainImages: 3,
			Jobs:            jobs,
		})
		if err != nil {
			return err
		}
		e.device = d
		e.input = e.opts.Input
		if e.input == nil {
			// slow orbit so the temporal passes see motion
			frames := int(e.opts.Frames)
			e.input = platform.NewScriptedInput(1.0/60.0,
				platform.DragScript(1.0/60.0, frames, 0, 0, int32(frames*4), 0)...)
		}
	}

	if e.opts.Watch && e.opts.ConfigPath != "" {
		w, err := config.NewWatcher(e.opts.ConfigPath)
		if err != nil {
			return err
		}
		e.watcher = w
	}

	o, err := renderer.NewFrameOrchestrator(renderer.Options{
		Device:   e.device,
		Settings: s,
		Input:    e.input,
		Watcher:  e.watcher,
		Jobs:     jobs,
	})
	if err != nil {
		return err
	}
	// the orchestrator shuts the job system down
	e.jobs = nil
	e.orchestrator = o
	core.LogInfo("engine initialized with the %s backend (%dx%d)", e.opts.Backend, s.Renderer.Width, s.Renderer.Height)
	return nil
}

// Stop makes Run return after the frame in flight. It can be called from
// any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

/**
 * @brief Runs frames until the window closes, Stop is called or the frame
 * limit is reached. Frames dropped while the swapchain is rebuilt are
 * skipped, any other frame failure ends the run.
 */
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.New("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var targetFrameSeconds float64 = 1.0 / 60.0
	var booting int
	picked := false

	for e.isRunning.Load() {
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var delta float64 = currentTime - e.lastTime
		if e.platform == nil {
			// headless runs use a fixed step so captures are reproducible
			delta = targetFrameSeconds
		}
		frameStart := time.Now()

		if e.opts.Pick != nil && !picked {
			picked = e.orchestrator.RequestPick(e.opts.Pick[0], e.opts.Pick[1])
		}

		if err := e.orchestrator.RunFrame(delta); err != nil {
			if !errors.Is(err, core.ErrSwapchainBooting) {
				core.LogError("frame %d failed, shutting down: %s", e.orchestrator.FrameCount(), err)
				e.isRunning.Store(false)
				return err
			}
			e.skipped++
			booting++
			if booting > maxBootingFrames {
				return fmt.Errorf("swapchain did not come back after %d frames: %w", booting, err)
			}
			core.LogDebug("frame skipped: %s", err)
		} else {
			booting = 0
		}

		if e.opts.Frames > 0 && e.orchestrator.FrameCount() >= e.opts.Frames {
			e.isRunning.Store(false)
		}

		if e.opts.LimitFrames {
			remaining := time.Duration(targetFrameSeconds*float64(time.Second)) - time.Since(frameStart)
			if remaining > time.Millisecond {
				time.Sleep(remaining - time.Millisecond)
			}
		}
		e.lastTime = currentTime
	}
	e.clock.Stop()
	return nil
}

func (e *Engine) Orchestrator() *renderer.FrameOrchestrator {
	return e.orchestrator
}

func (e *Engine) Device() metadata.Device {
	return e.device
}

// SkippedFrames counts frames dropped while the swapchain was rebuilt.
func (e *Engine) SkippedFrames() uint64 {
	return e.skipped
}

/**
 * @brief Copies the contents of a render target out of the device. History
 * targets resolve to the slot written by the last frame. Only the headless
 * backend keeps host visible images.
 */
func (e *Engine) ReadTarget(name string) (*surface.Surface, error) {
	reader, ok := e.device.(interface {
		ReadImage(metadata.ImageHandle) (*surface.Surface, error)
	})
	if !ok {
		return nil, fmt.Errorf("the %s backend cannot read back images", e.opts.Backend)
	}
	if e.orchestrator == nil {
		return nil, errors.New("engine is not initialized")
	}
	frame := e.orchestrator.FrameCount()
	if frame > 0 {
		frame--
	}
	rt, err := e.orchestrator.Table().Resolve(name, frame)
	if err != nil {
		return nil, err
	}
	return reader.ReadImage(rt.Image)
}

// Shutdown releases everything in reverse order of creation. It is safe to
// call more than once.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.orchestrator != nil {
		if err := e.orchestrator.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.jobs != nil {
		if err := e.jobs.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		e.jobs = nil
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		e.watcher = nil
	}
	if e.device != nil {
		if err := e.device.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		e.platform = nil
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}
