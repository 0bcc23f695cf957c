package renderer

import (
	"errors"
	"strings"
	"testing"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

const (
	testWidth  = 16
	testHeight = 12
)

func testSettings() config.Settings {
	s := config.Defaults()
	s.Renderer.Width, s.Renderer.Height = testWidth, testHeight
	s.Shadow.MapSize = 256
	s.UI.Enabled = false
	return s
}

func newOrchestrator(t *testing.T, s config.Settings) (*FrameOrchestrator, *headless.Device) {
	d, err := headless.NewDevice(headless.Options{Width: testWidth, Height: testHeight, SwapchainImages: 2})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	o, err := NewFrameOrchestrator(Options{Device: d, Settings: s})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	t.Cleanup(func() { _ = o.Shutdown() })
	return o, d
}

func runFrames(t *testing.T, o *FrameOrchestrator, n int) {
	for i := 0; i < n; i++ {
		if err := o.RunFrame(0); err != nil {
			t.Fatalf("frame %d: unexpected error %v", i, err)
		}
	}
}

func TestPassOrder(t *testing.T) {
	type spec struct {
		mode       config.RendererMode
		order      []string
		notPresent []string
	}
	specs := []spec{
		{
			mode:       config.RendererModeDeferred,
			order:      []string{"shadow", "skybox", "gbuffer", "ssao", "ssao-blur", "lighting", "ssr", "taa", "tonemap", "present"},
			notPresent: []string{"forward", "shadow-denoise", "debug", "pick"},
		},
		{
			mode:       config.RendererModeForward,
			order:      []string{"shadow", "skybox", "forward", "ssr", "taa", "tonemap", "present"},
			notPresent: []string{"gbuffer", "lighting"},
		},
	}
	for i, s := range specs {
		settings := testSettings()
		settings.Renderer.Mode = s.mode
		o, d := newOrchestrator(t, settings)
		d.ResetTrace()
		runFrames(t, o, 1)
		trace := d.Trace()
		last := -1
		for _, name := range s.order {
			at := headless.IndexOf(trace, headless.EventBegin, name)
			if at < 0 {
				t.Fatalf("[spec %d] expected %s to be recorded", i, name)
			}
			if at < last {
				t.Fatalf("[spec %d] %s was recorded out of order", i, name)
			}
			last = at
		}
		for _, name := range s.notPresent {
			if headless.IndexOf(trace, headless.EventBegin, name) >= 0 {
				t.Fatalf("[spec %d] expected %s to be skipped", i, name)
			}
		}
		if n := len(d.Events(headless.EventSubmit)); n != 1 {
			t.Fatalf("[spec %d] expected one submit per frame; got %d", i, n)
		}
	}
}

func TestDisabledPassesAreCounted(t *testing.T) {
	o, _ := newOrchestrator(t, testSettings())
	runFrames(t, o, 3)
	for _, st := range o.Stats() {
		p, ok := o.Pass(st.Name)
		if !ok {
			t.Fatalf("pass %s missing from the registry", st.Name)
		}
		if p.Enabled() && (st.Records != 3 || st.Disabled != 0) {
			t.Fatalf("%s: expected 3 records; got %d records %d disabled", st.Name, st.Records, st.Disabled)
		}
		if !p.Enabled() && (st.Records != 0 || st.Disabled != 3) {
			t.Fatalf("%s: expected 3 disabled frames; got %d records %d disabled", st.Name, st.Records, st.Disabled)
		}
	}
	if fs := o.FrameStats(); fs.Frames != 3 {
		t.Fatalf("expected 3 frames; got %d", fs.Frames)
	}
}

func TestFailedFrameIsNotSubmitted(t *testing.T) {
	type spec struct {
		op   string
		pass string
	}
	specs := []spec{
		{op: "NewCommandList", pass: "shadow"},
		{op: "MapBuffer", pass: "uniforms"},
	}
	for i, s := range specs {
		o, d := newOrchestrator(t, testSettings())
		d.ResetTrace()
		d.FailNext(s.op, core.ErrDeviceLost)
		err := o.RunFrame(0)
		if !errors.Is(err, core.ErrFrameFailed) || !errors.Is(err, core.ErrDeviceLost) {
			t.Fatalf("[spec %d] expected a failed frame wrapping the device error; got %v", i, err)
		}
		if !strings.Contains(err.Error(), s.pass) {
			t.Fatalf("[spec %d] expected the error to name %s; got %v", i, s.pass, err)
		}
		if n := len(d.Events(headless.EventSubmit)); n != 0 {
			t.Fatalf("[spec %d] expected no submit; got %d", i, n)
		}
		if n := len(d.Events(headless.EventPresent)); n != 0 {
			t.Fatalf("[spec %d] expected no present; got %d", i, n)
		}
		if o.FrameCount() != 0 {
			t.Fatalf("[spec %d] frame count advanced on a dropped frame", i)
		}
	}
}

// conflictPass writes a section the orchestrator already owns.
type conflictPass struct {
	passes.Pass
}

func (p *conflictPass) Enabled() bool {
	return true
}

func (p *conflictPass) Configure(f *passes.Frame) error {
	return f.Uniforms.SetCamera(p.Name(), passes.CameraUniforms{})
}

func TestUniformConflictDropsTheFrame(t *testing.T) {
	o, d := newOrchestrator(t, testSettings())
	i := len(o.passes) - 1
	o.passes[i] = &conflictPass{Pass: o.passes[i]}
	d.ResetTrace()
	err := o.RunFrame(0)
	if !errors.Is(err, core.ErrUniformConflict) || !errors.Is(err, core.ErrFrameFailed) {
		t.Fatalf("expected a uniform conflict; got %v", err)
	}
	if n := len(d.Events(headless.EventSubmit)); n != 0 {
		t.Fatalf("expected no submit; got %d", n)
	}
}

func TestSyncAlternation(t *testing.T) {
	o, d := newOrchestrator(t, testSettings())
	d.ResetTrace()
	runFrames(t, o, 4)
	acquires := d.Events(headless.EventAcquire)
	if len(acquires) != 4 {
		t.Fatalf("expected 4 acquires; got %d", len(acquires))
	}
	semaphore := func(e headless.Event) string {
		return e.Detail[strings.Index(e.Detail, "semaphore="):]
	}
	for i := 1; i < len(acquires); i++ {
		if semaphore(acquires[i]) == semaphore(acquires[i-1]) {
			t.Fatalf("acquire %d reused the semaphore of the previous frame: %s", i, acquires[i].Detail)
		}
	}
	if semaphore(acquires[0]) != semaphore(acquires[2]) {
		t.Fatalf("expected the acquire semaphores to alternate; got %s and %s", acquires[0].Detail, acquires[2].Detail)
	}
	// the first two frames land on fresh slots
	if n := len(d.Events(headless.EventWaitFence)); n != 2 {
		t.Fatalf("expected 2 fence waits; got %d", n)
	}
	if o.FrameStats().FenceWaits != 2 {
		t.Fatalf("expected the ring to count 2 fence waits; got %d", o.FrameStats().FenceWaits)
	}
}

func TestHistoryParity(t *testing.T) {
	o, d := newOrchestrator(t, testSettings())
	table := o.Table()
	cur0, err := table.Current(passes.TargetColorHistory, 0)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	prev1, err := table.Previous(passes.TargetColorHistory, 1)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	cur1, err := table.Current(passes.TargetColorHistory, 1)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if cur0.Image != prev1.Image || cur0.Image == cur1.Image {
		t.Fatalf("history of frame 0 must be the previous image of frame 1")
	}
	runFrames(t, o, 1)
	written, err := d.ReadImage(cur0.Image)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	runFrames(t, o, 1)
	after, err := d.ReadImage(cur0.Image)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	for i := range written.Pix {
		if written.Pix[i] != after.Pix[i] {
			t.Fatalf("frame 1 wrote into the history image it reads from")
		}
	}
}

func TestPick(t *testing.T) {
	type spec struct {
		x, y     int32
		accepted bool
	}
	specs := []spec{
		{x: testWidth / 2, y: testHeight / 2, accepted: true},
		{x: -1, y: 0},
		{x: testWidth, y: 0},
		{x: 0, y: testHeight},
	}
	for i, s := range specs {
		o, d := newOrchestrator(t, testSettings())
		runFrames(t, o, 1)
		d.ResetTrace()
		if got := o.RequestPick(s.x, s.y); got != s.accepted {
			t.Fatalf("[spec %d] expected accepted=%v; got %v", i, s.accepted, got)
		}
		runFrames(t, o, 1)
		copies := 0
		for _, e := range d.Events(headless.EventCopy) {
			if e.List == "pick" {
				copies++
			}
		}
		if !s.accepted {
			if copies != 0 {
				t.Fatalf("[spec %d] expected no pick copy; got %d", i, copies)
			}
			if _, ok := o.LastPick(); ok {
				t.Fatalf("[spec %d] expected no pick result", i)
			}
			continue
		}
		if copies != 1 {
			t.Fatalf("[spec %d] expected one pick copy; got %d", i, copies)
		}
		if _, ok := o.LastPick(); ok {
			t.Fatalf("[spec %d] pick resolved before its frame completed", i)
		}
		ids, err := d.ReadImage(o.Table().MustGet(passes.TargetObjectID).Image)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", i, err)
		}
		want := uint32(ids.At(int(s.x), int(s.y))[0])
		// the slot comes back around two frames later
		runFrames(t, o, 2)
		res, ok := o.LastPick()
		if !ok {
			t.Fatalf("[spec %d] expected a pick result", i)
		}
		if res.Frame != 1 || res.X != s.x || res.Y != s.y || res.ObjectID != want {
			t.Fatalf("[spec %d] expected object %d at frame 1; got %+v", i, want, res)
		}
	}
}

func TestFailedPresentStillCountsTheFrame(t *testing.T) {
	o, d := newOrchestrator(t, testSettings())
	type spec struct {
		fail    bool
		submits int
		count   uint64
		parity  uint32
	}
	specs := []spec{
		{false, 1, 1, 1},
		// submitted but not presented: the next frame must see fresh history
		{true, 2, 2, 0},
		{false, 3, 3, 1},
		{false, 4, 4, 0},
	}
	d.ResetTrace()
	var jitters []float32
	for index, s := range specs {
		if s.fail {
			d.FailNext("Present", core.ErrSwapchainBooting)
		}
		err := o.RunFrame(0)
		if s.fail != errors.Is(err, core.ErrSwapchainBooting) || (!s.fail && err != nil) {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if n := len(d.Events(headless.EventSubmit)); n != s.submits {
			t.Fatalf("[spec %d] expected %d submits; got %d", index, s.submits, n)
		}
		if o.FrameCount() != s.count {
			t.Fatalf("[spec %d] expected frame count %d; got %d", index, s.count, o.FrameCount())
		}
		if p := resources.Parity(o.FrameCount()); p != s.parity {
			t.Fatalf("[spec %d] expected parity %d for the next frame; got %d", index, s.parity, p)
		}
		jitters = append(jitters, o.previousJitter.Clip.X)
	}
	if jitters[1] == jitters[2] {
		t.Fatalf("expected the frame after a failed present to use a new jitter offset; got %v", jitters)
	}
}

func TestPickSurvivesAFailedSubmit(t *testing.T) {
	o, d := newOrchestrator(t, testSettings())
	if !o.RequestPick(2, 3) {
		t.Fatalf("expected the pick to be accepted")
	}
	d.FailNext("Submit", core.ErrDeviceLost)
	if err := o.RunFrame(0); !errors.Is(err, core.ErrFrameFailed) {
		t.Fatalf("expected a failed frame; got %v", err)
	}
	// the request is carried over to the next submitted frame
	d.ResetTrace()
	runFrames(t, o, 1)
	copies := 0
	for _, e := range d.Events(headless.EventCopy) {
		if e.List == "pick" {
			copies++
		}
	}
	if copies != 1 {
		t.Fatalf("expected the pick copy to be recorded again; got %d copies", copies)
	}
	if err := o.Shutdown(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	res, ok := o.LastPick()
	if !ok || res.X != 2 || res.Y != 3 || res.Frame != 0 {
		t.Fatalf("expected the pick of the submitted frame; got %+v (%v)", res, ok)
	}
}

func TestPickResolvesOnShutdown(t *testing.T) {
	o, _ := newOrchestrator(t, testSettings())
	o.RequestPick(1, 1)
	runFrames(t, o, 1)
	if err := o.Shutdown(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, ok := o.LastPick(); !ok {
		t.Fatalf("expected the pending pick to resolve on shutdown")
	}
	if err := o.RunFrame(0); !errors.Is(err, core.ErrFrameFailed) {
		t.Fatalf("expected frames after shutdown to fail; got %v", err)
	}
}

func TestApplySettings(t *testing.T) {
	o, d := newOrchestrator(t, testSettings())
	runFrames(t, o, 1)
	s := testSettings()
	s.Debug.View = config.DebugViewNormals
	s.TAA.Enabled = false
	s.Renderer.Width = 4096
	o.ApplySettings(s)
	if got := o.Settings().Renderer.Width; got != testWidth {
		t.Fatalf("display width must not change between frames; got %d", got)
	}
	d.ResetTrace()
	runFrames(t, o, 1)
	trace := d.Trace()
	if headless.IndexOf(trace, headless.EventBegin, "debug") < 0 {
		t.Fatalf("expected the debug pass to be recorded")
	}
	if headless.IndexOf(trace, headless.EventBegin, "taa") >= 0 {
		t.Fatalf("expected taa to be skipped")
	}
}
