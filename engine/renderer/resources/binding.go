package resources

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// PrimaryLayoutDesc declares one sampled image per physical target, both
// slots of every history pair included.
func (t *Table) PrimaryLayoutDesc() metadata.BindingLayoutDesc {
	desc := metadata.BindingLayoutDesc{Name: "primary"}
	for _, rt := range t.Targets() {
		desc.Entries = append(desc.Entries, metadata.LayoutEntry{Binding: rt.Binding, Type: metadata.BindingSampledImage})
	}
	return desc
}

// BuildPrimaryBindingSet builds the frame independent set sampling every
// target. The targets are forced into their read access while the set is
// built and put back afterwards. A target that was Undefined stays in its
// read access.
func (t *Table) BuildPrimaryBindingSet(cl metadata.CommandList, layout metadata.BindingLayoutHandle, sampler metadata.SamplerHandle) (metadata.BindingSetHandle, error) {
	targets := t.Targets()
	saved := make([]metadata.Access, len(targets))
	desc := metadata.BindingSetDesc{Name: "primary", Layout: layout}

	for i, rt := range targets {
		saved[i] = rt.Access
		t.TransitionTarget(rt, rt.Desc.Format.ReadAccess(), cl)
		desc.Writes = append(desc.Writes, metadata.BindingWrite{Binding: rt.Binding, Image: rt.Image, Sampler: sampler})
	}

	set, err := t.device.CreateBindingSet(desc)
	if err != nil {
		core.LogError("failed to build the primary binding set: %s", err)
		return metadata.NullHandle, fmt.Errorf("failed to build the primary binding set: %w", err)
	}

	for i, rt := range targets {
		if saved[i] == metadata.AccessUndefined {
			continue
		}
		t.TransitionTarget(rt, saved[i], cl)
	}
	return set, nil
}
