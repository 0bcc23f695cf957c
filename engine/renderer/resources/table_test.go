package resources

import (
	"errors"
	"strings"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/surface"
)

func newTable(t *testing.T) (*Table, *headless.Device) {
	d, err := headless.NewDevice(headless.Options{Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return NewTable(d), d
}

func desc(name string, f metadata.Format) metadata.ImageDesc {
	return metadata.ImageDesc{Name: name, Width: 4, Height: 4, Format: f}
}

func begin(t *testing.T, d *headless.Device, name string) metadata.CommandList {
	cl, err := d.NewCommandList(name)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := cl.Begin(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	return cl
}

func submit(t *testing.T, d *headless.Device, cl metadata.CommandList) {
	if err := cl.End(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := d.Submit(metadata.SubmitInfo{Lists: []metadata.CommandList{cl}}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestTransitionIsIdempotent(t *testing.T) {
	table, d := newTable(t)
	if _, err := table.Create(desc("scene.color", metadata.FormatRGBA16F)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	cl := begin(t, d, "transitions")
	for i := 0; i < 2; i++ {
		if err := table.Transition("scene.color", metadata.AccessShaderWrite, cl); err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	}
	submit(t, d, cl)
	if n := len(d.Events(headless.EventBarrier)); n != 1 {
		t.Fatalf("expected exactly one barrier; got %d", n)
	}
	if table.Barriers() != 1 {
		t.Fatalf("expected the table to count one barrier; got %d", table.Barriers())
	}
}

func TestRestoreUndoesUnsubmittedTransitions(t *testing.T) {
	table, d := newTable(t)
	rt, err := table.Create(desc("scene.color", metadata.FormatRGBA16F))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	swap := d.SwapchainImages()[0]
	cl := begin(t, d, "applied")
	table.TransitionTarget(rt, metadata.AccessShaderWrite, cl)
	submit(t, d, cl)

	state := table.Snapshot()
	dropped := begin(t, d, "dropped")
	table.TransitionTarget(rt, metadata.AccessShaderRead, dropped)
	table.TransitionImage(swap, metadata.AccessPresent, dropped)
	table.Restore(state)

	type spec struct {
		got, exp metadata.Access
	}
	specs := []spec{
		{rt.Access, metadata.AccessShaderWrite},
		{table.ImageAccess(swap), metadata.AccessUndefined},
		{d.Layout(rt.Image), metadata.AccessShaderWrite},
	}
	for index, s := range specs {
		if s.got != s.exp {
			t.Fatalf("[spec %d] expected %s; got %s", index, s.exp, s.got)
		}
	}

	// the next list starts from what the device really holds
	cl = begin(t, d, "next")
	table.TransitionTarget(rt, metadata.AccessShaderRead, cl)
	submit(t, d, cl)
	if d.Layout(rt.Image) != metadata.AccessShaderRead {
		t.Fatalf("expected the image to reach shader read; got %s", d.Layout(rt.Image))
	}
}

func TestCreateErrors(t *testing.T) {
	table, _ := newTable(t)
	if _, err := table.Create(desc("a", metadata.FormatR32F)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	type spec struct {
		fn  func() error
		err error
	}
	specs := []spec{
		{func() error { _, err := table.Create(desc("a", metadata.FormatR32F)); return err }, ErrDuplicateResource},
		{func() error { return table.CreateHistory(desc("a.hist", metadata.FormatR32F)) }, nil},
		{func() error { return table.CreateHistory(desc("a.hist", metadata.FormatR32F)) }, ErrDuplicateResource},
		{func() error { _, err := table.Get("missing"); return err }, ErrUnknownResource},
		{func() error { _, err := table.Current("a", 0); return err }, ErrNotHistory},
		{func() error { return table.Transition("missing", metadata.AccessShaderRead, nil) }, ErrUnknownResource},
	}
	for index, s := range specs {
		if err := s.fn(); !errors.Is(err, s.err) {
			t.Fatalf("[spec %d] expected %v; got %v", index, s.err, err)
		}
	}
}

func TestAnonymousTargetsGetAName(t *testing.T) {
	table, _ := newTable(t)
	rt, err := table.Create(desc("", metadata.FormatR32F))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.HasPrefix(rt.Name, "target.") || len(rt.Name) <= len("target.") {
		t.Fatalf("expected a generated name; got %q", rt.Name)
	}
}

func TestHistoryParity(t *testing.T) {
	table, d := newTable(t)
	if err := table.CreateHistory(desc("taa.history", metadata.FormatR32F)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	type spec struct {
		frame    uint64
		current  string
		previous string
	}
	specs := []spec{
		{0, "taa.history.a", "taa.history.b"},
		{1, "taa.history.b", "taa.history.a"},
		{6, "taa.history.a", "taa.history.b"},
	}
	for index, s := range specs {
		cur, _ := table.Current("taa.history", s.frame)
		prev, _ := table.Previous("taa.history", s.frame)
		if cur.Name != s.current || prev.Name != s.previous {
			t.Fatalf("[spec %d] expected %s/%s; got %s/%s", index, s.current, s.previous, cur.Name, prev.Name)
		}
	}

	// frame 0 writes P into current, frame 1 must read it back as previous
	pattern := surface.MustNew(4, 4, 1)
	for i := range pattern.Pix {
		pattern.Pix[i] = float32(i) + 0.25
	}
	cur, _ := table.Current("taa.history", 0)
	if err := d.WriteImage(cur.Image, pattern); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	prev, _ := table.Previous("taa.history", 1)
	got, _ := d.ReadImage(prev.Image)
	for i := range pattern.Pix {
		if got.Pix[i] != pattern.Pix[i] {
			t.Fatalf("texel %d: expected %f; got %f", i, pattern.Pix[i], got.Pix[i])
		}
	}
}

func TestBuildPrimaryBindingSet(t *testing.T) {
	table, d := newTable(t)
	_, _ = table.Create(desc("scene.color", metadata.FormatRGBA16F))
	_, _ = table.Create(desc("gbuffer.object_id", metadata.FormatR32Uint))
	_ = table.CreateHistory(desc("gbuffer.depth", metadata.FormatD32F))

	setup := begin(t, d, "setup")
	if err := table.Transition("scene.color", metadata.AccessColorAttachment, setup); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	submit(t, d, setup)

	layoutDesc := table.PrimaryLayoutDesc()
	if len(layoutDesc.Entries) != 4 {
		t.Fatalf("expected a binding per physical target; got %d", len(layoutDesc.Entries))
	}
	layout, err := d.CreateBindingLayout(layoutDesc)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	sampler, _ := d.CreateSampler(metadata.SamplerDesc{Name: "linear", Filter: metadata.FilterLinear})

	cl := begin(t, d, "primary")
	set, err := table.BuildPrimaryBindingSet(cl, layout, sampler)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if set == metadata.NullHandle {
		t.Fatalf("expected a binding set")
	}
	submit(t, d, cl)

	type spec struct {
		name string
		exp  metadata.Access
	}
	specs := []spec{
		{"scene.color", metadata.AccessColorAttachment},
		{"gbuffer.object_id", metadata.AccessShaderRead},
		{"gbuffer.depth.a", metadata.AccessDepthRead},
		{"gbuffer.depth.b", metadata.AccessDepthRead},
	}
	for index, s := range specs {
		rt := table.MustGet(s.name)
		if rt.Access != s.exp {
			t.Fatalf("[spec %d] %s: expected tag %s; got %s", index, s.name, s.exp, rt.Access)
		}
		if l := d.Layout(rt.Image); l != s.exp {
			t.Fatalf("[spec %d] %s: expected device layout %s; got %s", index, s.name, s.exp, l)
		}
	}

	// the set is built between the forcing and the restoring barriers
	trace := d.Trace()
	created := -1
	var before, after int
	for i, e := range trace {
		switch {
		case e.Kind == headless.EventCreateBindingSet && e.Detail == "primary":
			created = i
		case e.Kind == headless.EventBarrier && e.List == "primary" && created < 0:
			before++
		case e.Kind == headless.EventBarrier && e.List == "primary":
			after++
		}
	}
	if created < 0 || before != 4 || after != 1 {
		t.Fatalf("expected 4 forcing barriers, the set, then 1 restore; got %d, %d, %d", before, created, after)
	}
}
