package containers

import (
	"errors"
	"testing"
)

func TestRingQueueOrder(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("unexpected error enqueuing %d: %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull; got %v", err)
	}
	for i := 1; i <= 3; i++ {
		v, err := rq.Dequeue()
		if err != nil || v != i {
			t.Fatalf("expected %d; got %d (err %v)", i, v, err)
		}
	}
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty; got %v", err)
	}
}

func TestRingQueueOverwriteDropsOldest(t *testing.T) {
	rq := NewRingQueue[string](2)
	rq.Overwrite("a")
	rq.Overwrite("b")
	rq.Overwrite("c")
	if rq.Len() != 2 {
		t.Fatalf("expected 2 entries; got %d", rq.Len())
	}
	if v, _ := rq.Peek(); v != "b" {
		t.Fatalf("expected oldest surviving entry to be b; got %q", v)
	}
}
