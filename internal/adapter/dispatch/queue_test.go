package dispatch

import (
	"errors"
	"testing"

	"github.com/kestrelworks/aviary/internal/core/domain"
)

func request(priority domain.Priority, name string) *pendingRequest {
	return &pendingRequest{opName: name, priority: priority}
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewPriorityQueue(10)

	if err := q.Enqueue(request(domain.PriorityLow, "low")); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(request(domain.PriorityHigh, "high")); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(request(domain.PriorityMedium, "medium")); err != nil {
		t.Fatal(err)
	}

	want := []string{"high", "medium", "low"}
	for _, expected := range want {
		req := q.Dequeue()
		if req == nil {
			t.Fatalf("queue drained early, wanted %q", expected)
		}
		if req.opName != expected {
			t.Errorf("dequeued %q, want %q", req.opName, expected)
		}
	}
	if q.Dequeue() != nil {
		t.Error("expected empty queue after three dequeues")
	}
}

func TestQueueFIFOWithinLevel(t *testing.T) {
	q := NewPriorityQueue(10)

	for _, name := range []string{"first", "second", "third"} {
		if err := q.Enqueue(request(domain.PriorityMedium, name)); err != nil {
			t.Fatal(err)
		}
	}

	for _, expected := range []string{"first", "second", "third"} {
		if req := q.Dequeue(); req.opName != expected {
			t.Errorf("dequeued %q, want %q", req.opName, expected)
		}
	}
}

func TestQueueFull(t *testing.T) {
	q := NewPriorityQueue(2)

	if err := q.Enqueue(request(domain.PriorityLow, "a")); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(request(domain.PriorityLow, "b")); err != nil {
		t.Fatal(err)
	}

	err := q.Enqueue(request(domain.PriorityLow, "c"))
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err.Error() != "Request queue is full" {
		t.Errorf("message = %q", err.Error())
	}

	// A dequeue frees a slot for admission again
	q.Dequeue()
	if err := q.Enqueue(request(domain.PriorityLow, "d")); err != nil {
		t.Errorf("expected admission after dequeue, got %v", err)
	}
}

func TestQueueLenAndCap(t *testing.T) {
	q := NewPriorityQueue(5)
	if q.Len() != 0 || q.Cap() != 5 {
		t.Errorf("fresh queue len/cap = %d/%d", q.Len(), q.Cap())
	}

	_ = q.Enqueue(request(domain.PriorityHigh, "a"))
	_ = q.Enqueue(request(domain.PriorityLow, "b"))
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}
}
