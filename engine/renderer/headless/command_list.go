package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type listState int

const (
	stateInitial listState = iota
	stateRecording
	stateExecutable
)

type command struct {
	kind EventKind
	run  func(x *executor) error
}

// CommandList records commands for the headless device. Commands are checked
// for structural mistakes while recording and run on Submit.
type CommandList struct {
	device    *Device
	name      string
	state     listState
	commands  []command
	rendering bool
	err       error
	freed     bool
}

func (cl *CommandList) Name() string {
	return cl.name
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = fmt.Errorf("%s: %w", cl.name, err)
	}
}

func (cl *CommandList) push(kind EventKind, detail string, run func(x *executor) error) {
	if cl.state != stateRecording {
		cl.fail(fmt.Errorf("%w: %s", ErrNotRecording, kind))
		return
	}
	cl.commands = append(cl.commands, command{kind: kind, run: run})
	cl.device.mu.Lock()
	cl.device.record(Event{Kind: kind, List: cl.name, Detail: detail})
	cl.device.mu.Unlock()
}

func (cl *CommandList) Begin() error {
	if cl.freed {
		return fmt.Errorf("%s: command list was freed", cl.name)
	}
	if cl.state == stateRecording {
		return fmt.Errorf("%s: command list is already recording", cl.name)
	}
	cl.commands = cl.commands[:0]
	cl.rendering = false
	cl.err = nil
	cl.state = stateRecording
	cl.device.mu.Lock()
	cl.device.record(Event{Kind: EventBegin, List: cl.name})
	cl.device.mu.Unlock()
	return nil
}

func (cl *CommandList) End() error {
	if cl.state != stateRecording {
		return fmt.Errorf("%s: %w", cl.name, ErrNotRecording)
	}
	if cl.rendering {
		cl.fail(errors.New("rendering scope left open"))
	}
	if cl.err != nil {
		cl.state = stateInitial
		return cl.err
	}
	cl.state = stateExecutable
	cl.device.mu.Lock()
	cl.device.record(Event{Kind: EventEnd, List: cl.name})
	cl.device.mu.Unlock()
	return nil
}

func (cl *CommandList) Reset() error {
	cl.commands = cl.commands[:0]
	cl.rendering = false
	cl.err = nil
	cl.state = stateInitial
	return nil
}

func (cl *CommandList) Barrier(b metadata.Barrier) {
	if cl.rendering {
		cl.fail(errors.New("barrier inside a rendering scope"))
		return
	}
	if b.To == metadata.AccessUndefined {
		cl.fail(errors.New("barrier cannot target Undefined"))
		return
	}
	cl.push(EventBarrier, fmt.Sprintf("image=%d %s->%s", b.Image, b.From, b.To), func(x *executor) error {
		return x.barrier(b)
	})
}

func (cl *CommandList) BeginRendering(info metadata.RenderingInfo) {
	if cl.rendering {
		cl.fail(errors.New("nested rendering scope"))
		return
	}
	cl.rendering = true
	cl.push(EventBeginRendering, info.Name, func(x *executor) error {
		return x.beginRendering(info)
	})
}

func (cl *CommandList) EndRendering() {
	if !cl.rendering {
		cl.fail(errors.New("end rendering without a scope"))
		return
	}
	cl.rendering = false
	cl.push(EventEndRendering, "", func(x *executor) error {
		x.endRendering()
		return nil
	})
}

func (cl *CommandList) BindPipeline(p metadata.PipelineHandle) {
	cl.push("bind-pipeline", fmt.Sprint(p), func(x *executor) error {
		return x.bindPipeline(p)
	})
}

func (cl *CommandList) BindSet(index uint32, set metadata.BindingSetHandle) {
	cl.push("bind-set", fmt.Sprintf("%d=%d", index, set), func(x *executor) error {
		return x.bindSet(index, set)
	})
}

func (cl *CommandList) PushConstants(data []byte) {
	c := append([]byte(nil), data...)
	cl.push("push-constants", fmt.Sprint(len(c)), func(x *executor) error {
		x.push = c
		return nil
	})
}

func (cl *CommandList) SetViewport(r metadata.Rect) {
	cl.push("viewport", "", func(x *executor) error { return nil })
}

func (cl *CommandList) SetScissor(r metadata.Rect) {
	cl.push("scissor", "", func(x *executor) error { return nil })
}

func (cl *CommandList) BindVertexBuffer(b metadata.BufferHandle, offset uint64) {
	cl.push("bind-vertex", fmt.Sprint(b), func(x *executor) error {
		return x.requireBuffer(b)
	})
}

func (cl *CommandList) BindIndexBuffer(b metadata.BufferHandle, offset uint64) {
	cl.push("bind-index", fmt.Sprint(b), func(x *executor) error {
		return x.requireBuffer(b)
	})
}

func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex uint32) {
	if !cl.rendering {
		cl.fail(errors.New("draw outside a rendering scope"))
		return
	}
	cl.push(EventDraw, fmt.Sprintf("vertices=%d", vertexCount), func(x *executor) error {
		return x.draw()
	})
}

func (cl *CommandList) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	if !cl.rendering {
		cl.fail(errors.New("draw outside a rendering scope"))
		return
	}
	cl.push(EventDraw, fmt.Sprintf("indices=%d", indexCount), func(x *executor) error {
		return x.draw()
	})
}

func (cl *CommandList) Dispatch(gx, gy, gz uint32) {
	if cl.rendering {
		cl.fail(errors.New("dispatch inside a rendering scope"))
		return
	}
	cl.push(EventDispatch, fmt.Sprintf("%dx%dx%d", gx, gy, gz), func(x *executor) error {
		return x.dispatch(gx, gy, gz)
	})
}

func (cl *CommandList) CopyImageToBuffer(src metadata.ImageHandle, region metadata.Rect, dst metadata.BufferHandle, offset uint64) {
	if cl.rendering {
		cl.fail(errors.New("copy inside a rendering scope"))
		return
	}
	cl.push(EventCopy, fmt.Sprintf("image=%d buffer=%d", src, dst), func(x *executor) error {
		return x.copyImageToBuffer(src, region, dst, offset)
	})
}
