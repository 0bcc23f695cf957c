package core

import "testing"

func TestInputSnapshotButtons(t *testing.T) {
	var s InputSnapshot
	s = s.WithButton(BUTTON_RIGHT, true)
	if !s.IsButtonDown(BUTTON_RIGHT) {
		t.Fatal("expected right button to be down")
	}
	if s.IsButtonDown(BUTTON_LEFT) {
		t.Fatal("expected left button to be up")
	}
	s = s.WithButton(BUTTON_RIGHT, false)
	if s.Buttons != 0 {
		t.Fatalf("expected no buttons down; got mask %b", s.Buttons)
	}
	if s.WithButton(BUTTON_MAX_BUTTONS, true).Buttons != 0 {
		t.Fatal("expected out of range button to be ignored")
	}
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	if got := m.FrameTime(); got < 9.999 || got > 10.001 {
		t.Fatalf("expected 10ms average; got %f", got)
	}
	if m.Frames() != uint64(AVG_COUNT) {
		t.Fatalf("expected %d frames; got %d", AVG_COUNT, m.Frames())
	}
}

func TestParseLogLevel(t *testing.T) {
	type spec struct {
		in  string
		exp LogLevel
	}
	specs := []spec{
		{"debug", DebugLevel},
		{" WARN ", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for index, s := range specs {
		if got := ParseLogLevel(s.in); got != s.exp {
			t.Fatalf("[spec %d] expected level %v; got %v", index, s.exp, got)
		}
	}
}
