package headless

type EventKind string

const (
	EventBegin            EventKind = "begin"
	EventEnd              EventKind = "end"
	EventBarrier          EventKind = "barrier"
	EventBeginRendering   EventKind = "begin-rendering"
	EventEndRendering     EventKind = "end-rendering"
	EventDraw             EventKind = "draw"
	EventDispatch         EventKind = "dispatch"
	EventCopy             EventKind = "copy"
	EventAcquire          EventKind = "acquire"
	EventSubmit           EventKind = "submit"
	EventPresent          EventKind = "present"
	EventWaitFence        EventKind = "wait-fence"
	EventCreateBindingSet EventKind = "create-binding-set"
)

// Event is one entry of the device trace. List is empty for device level calls.
type Event struct {
	Kind   EventKind
	List   string
	Detail string
}

func (d *Device) record(e Event) {
	d.trace = append(d.trace, e)
}

// Trace returns a copy of every event recorded so far.
func (d *Device) Trace() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.trace))
	copy(out, d.trace)
	return out
}

func (d *Device) ResetTrace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = nil
}

// Events filters the trace by kind.
func (d *Device) Events(kind EventKind) []Event {
	var out []Event
	for _, e := range d.Trace() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// IndexOf returns the position of the first event of kind recorded by list, or -1.
func IndexOf(trace []Event, kind EventKind, list string) int {
	for i, e := range trace {
		if e.Kind == kind && e.List == list {
			return i
		}
	}
	return -1
}
