package framebridge

import (
	"testing"
)

func TestCommandQueueFIFOOrdering(t *testing.T) {
	q := NewCommandQueue[int](128)

	for i := 0; i < 100; i++ {
		if !q.Submit(i) {
			t.Fatalf("submit %d rejected", i)
		}
	}

	var got []int
	n := q.ConsumeAll(func(v int) { got = append(got, v) })
	if n != 100 {
		t.Fatalf("consumed %d, want 100", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d holds %d, want %d", i, v, i)
		}
	}
}

func TestCommandQueueCapacityBound(t *testing.T) {
	q := NewCommandQueue[string](2)

	if !q.Submit("a") || !q.Submit("b") {
		t.Fatal("first two submissions should be accepted")
	}
	if q.Submit("c") {
		t.Fatal("third submission should be rejected")
	}
	if !q.IsFull() {
		t.Error("queue should report full")
	}
	if got := q.TotalDropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	// the rejected submission must not have disturbed queued contents
	var got []string
	q.ConsumeAll(func(v string) { got = append(got, v) })
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("drained %v, want [a b]", got)
	}

	// capacity is available again after draining
	if !q.Submit("c") {
		t.Fatal("submission after drain should be accepted")
	}
	if q.TotalSubmitted() != 3 || q.TotalConsumed() != 2 {
		t.Errorf("totals = %d/%d, want 3/2", q.TotalSubmitted(), q.TotalConsumed())
	}
}

func TestCommandQueueNonPowerOfTwoCapacity(t *testing.T) {
	q := NewCommandQueue[int](3)
	if got := q.Capacity(); got != 3 {
		t.Fatalf("capacity = %d, want 3", got)
	}
	for i := 0; i < 3; i++ {
		if !q.Submit(i) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	if q.Submit(3) {
		t.Fatal("fourth submission should be rejected at logical capacity 3")
	}
}

func TestCommandQueueLengthAccounting(t *testing.T) {
	q := NewCommandQueue[int](8)

	for i := 0; i < 5; i++ {
		q.Submit(i)
	}
	if got := q.Length(); got != 5 {
		t.Fatalf("length = %d, want 5", got)
	}

	n := q.ConsumeAll(func(int) {})
	if n != 5 {
		t.Fatalf("consumed %d, want 5", n)
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty after drain")
	}
	if q.TotalSubmitted() != 5 || q.TotalConsumed() != 5 {
		t.Errorf("totals = %d/%d, want 5/5", q.TotalSubmitted(), q.TotalConsumed())
	}
}

func TestCommandQueueWrapAround(t *testing.T) {
	q := NewCommandQueue[int](2)

	// cycle enough times to wrap the cursors past the backing array
	next := 0
	for round := 0; round < 10; round++ {
		q.Submit(next)
		q.Submit(next + 1)
		want := next
		q.ConsumeAll(func(v int) {
			if v != want {
				t.Fatalf("round %d: got %d, want %d", round, v, want)
			}
			want++
		})
		next += 2
	}
}

func TestCommandQueueConsumeAllEmpty(t *testing.T) {
	q := NewCommandQueue[int](4)
	if n := q.ConsumeAll(func(int) { t.Fatal("processor invoked on empty queue") }); n != 0 {
		t.Fatalf("consumed %d from empty queue", n)
	}
}

func TestCommandQueueHooks(t *testing.T) {
	var submitted, consumed, rejected int
	q := NewCommandQueue[int](1, WithQueueHooks(QueueHooks[int]{
		OnSubmit:    func(int) { submitted++ },
		OnConsume:   func(int) { consumed++ },
		OnQueueFull: func(int) { rejected++ },
	}))

	q.Submit(1)
	q.Submit(2)
	q.ConsumeAll(func(int) {})

	if submitted != 1 || consumed != 1 || rejected != 1 {
		t.Fatalf("hooks fired %d/%d/%d, want 1/1/1", submitted, consumed, rejected)
	}
}

func TestCommandQueueInvalidCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for capacity 0")
		}
	}()
	NewCommandQueue[int](0)
}
