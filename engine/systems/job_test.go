package systems

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestNewJobSystem(t *testing.T) {
	type spec struct {
		workers int
		size    int
		err     error
	}
	specs := []spec{
		{0, 1, ErrNoWorkers},
		{2, -1, ErrNegativeChannelSize},
		{2, 4, nil},
	}
	for index, s := range specs {
		js, err := NewJobSystem(s.workers, s.size)
		if err != s.err {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.err, err)
		}
		if js != nil {
			js.Shutdown()
		}
	}
}

func TestParallelForCoversRange(t *testing.T) {
	type spec struct {
		workers int
		n       int
	}
	specs := []spec{
		{1, 10},
		{4, 10},
		{8, 3},
		{3, 0},
	}
	for index, s := range specs {
		js, err := NewJobSystem(s.workers, s.workers)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		hits := make([]int32, s.n)
		err = js.ParallelFor(s.n, func(start, end int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("[spec %d] expected index %d to be visited once; got %d", index, i, h)
			}
		}
		js.Shutdown()
	}
}

func TestParallelForReportsError(t *testing.T) {
	js, _ := NewJobSystem(2, 2)
	defer js.Shutdown()
	boom := errors.New("boom")
	err := js.ParallelFor(4, func(start, end int) error {
		if start == 0 {
			return boom
		}
		return nil
	})
	if err != boom {
		t.Fatalf("expected %v; got %v", boom, err)
	}
}

func TestSubmitRunsCallbacks(t *testing.T) {
	js, _ := NewJobSystem(1, 1)
	var completed, finished int32
	done := make(chan struct{})
	js.Submit(JobTask{
		OnStart:    func(interface{}) error { return nil },
		OnComplete: func() { atomic.AddInt32(&completed, 1) },
		OnCompletionCallback: func() {
			atomic.AddInt32(&finished, 1)
			close(done)
		},
	})
	<-done
	js.Shutdown()
	if completed != 1 || finished != 1 {
		t.Fatalf("expected both callbacks once; got %d and %d", completed, finished)
	}
}

func TestFailedJobReportsItsError(t *testing.T) {
	js, err := NewJobSystem(2, 2)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer js.Shutdown()

	// verbs in the message must reach the caller untouched
	failure := errors.New("row 100% broken: %d")
	var failed, completed atomic.Int32
	done := make(chan struct{})
	js.Submit(JobTask{
		OnStart: func(interface{}) error { return failure },
		OnFailure: func(err error) {
			if err == failure {
				failed.Add(1)
			}
		},
		OnComplete:           func() { completed.Add(1) },
		OnCompletionCallback: func() { close(done) },
	})
	<-done
	if failed.Load() != 1 || completed.Load() != 0 {
		t.Fatalf("expected one failure and no completion; got %d and %d", failed.Load(), completed.Load())
	}
	if err := js.ParallelFor(4, func(start, end int) error { return failure }); err != failure {
		t.Fatalf("expected the job error; got %v", err)
	}
}
