package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// InputSnapshot is the per-frame view of the window system input.
type InputSnapshot struct {
	MouseX, MouseY int32
	// Bit i is set when Button(i) is held down.
	Buttons uint16
	// Seconds since the window system started.
	ElapsedTime float64
}

func (s InputSnapshot) IsButtonDown(b Button) bool {
	if b >= BUTTON_MAX_BUTTONS {
		return false
	}
	return s.Buttons&(1<<b) != 0
}

// WithButton returns a copy of the snapshot with the given button state.
func (s InputSnapshot) WithButton(b Button, down bool) InputSnapshot {
	if b >= BUTTON_MAX_BUTTONS {
		return s
	}
	if down {
		s.Buttons |= 1 << b
	} else {
		s.Buttons &^= 1 << b
	}
	return s
}
