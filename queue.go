package framebridge

import (
	"sync/atomic"
)

const (
	// queueMinCapacity is the smallest logical capacity accepted by
	// NewCommandQueue. A single-slot queue is legal and occasionally useful
	// (e.g. latest-wins handoff with explicit drop accounting).
	queueMinCapacity = 1

	// queueCursorPadSize is the padding required after an atomic.Uint64
	// cursor so the next field starts on a fresh cache line.
	queueCursorPadSize = sizeOfCacheLine - sizeOfAtomicUint64
)

// QueueHooks are optional instrumentation callbacks for a [CommandQueue].
//
// Hooks run synchronously at the corresponding point, on the calling
// goroutine (OnSubmit and OnQueueFull on the producer, OnConsume on the
// consumer). They must not block, and must not retain references into the
// queue's backing storage beyond the call.
type QueueHooks[T any] struct {
	// OnSubmit is invoked after a payload has been enqueued.
	OnSubmit func(T)

	// OnConsume is invoked after a payload has been handed to the
	// ConsumeAll processor.
	OnConsume func(T)

	// OnQueueFull is invoked with the rejected payload when Submit fails.
	OnQueueFull func(T)
}

// CommandQueue is a bounded lock-free single-producer/single-consumer ring
// buffer carrying values of T.
//
// Concurrency Model: SPSC (Single Producer, Single Consumer)
//   - Submit: called from exactly one goroutine (the producer)
//   - ConsumeAll: called from exactly one goroutine (the consumer)
//   - Observers: safe from any goroutine, advisory under concurrent mutation
//
// Algorithm:
//   - head and tail are monotonically increasing cursors; the slot index is
//     cursor&mask. The producer owns tail, the consumer owns head.
//   - Submit: check tail-head >= capacity (full) -> write slot -> publish
//     tail (atomic store acts as the release barrier, making the slot write
//     visible to any consumer that acquires the new tail).
//   - ConsumeAll: acquire tail once, drain [head, tail), publish head once
//     at the end. Slots in that window cannot be rewritten by the producer
//     until the new head is published, so the batch is read without
//     additional synchronization.
//
// Cursors sit on separate cache lines to avoid false sharing between the
// two goroutines.
//
// A full queue is not an error; it is backpressure. The producer decides
// whether to drop, retry on its next tick, or surface an error result.
type CommandQueue[T any] struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	buf      []T
	mask     uint64
	capacity uint64

	hooks QueueHooks[T]

	_    [sizeOfCacheLine]byte // isolate the consumer cursor
	head atomic.Uint64         // consumer cursor (written only by ConsumeAll)
	_    [queueCursorPadSize]byte
	tail atomic.Uint64 // producer cursor (written only by Submit)
	_    [queueCursorPadSize]byte

	// Advisory statistics. Relaxed in spirit: Go atomics are sequentially
	// consistent, a conservative superset of what these counters need.
	submitted atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// NewCommandQueue creates a queue that accepts up to capacity payloads.
//
// The backing array is sized to the next power of two at or above capacity
// so slot indexing reduces to a bit mask; fullness is still enforced at the
// logical capacity. Panics if capacity < 1 (a queue that can hold nothing
// is a programming error, not a runtime condition).
func NewCommandQueue[T any](capacity int, opts ...QueueOption[T]) *CommandQueue[T] {
	if capacity < queueMinCapacity {
		panic("framebridge: command queue capacity must be >= 1")
	}

	size := 1
	for size < capacity {
		size <<= 1
	}

	q := &CommandQueue[T]{
		buf:      make([]T, size),
		mask:     uint64(size - 1),
		capacity: uint64(capacity),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyQueue(q)
	}

	return q
}

// Submit attempts to enqueue cmd. It never blocks.
//
// Returns false, leaving the queue unmodified, when the queue is full. The
// rejection is counted in TotalDropped and reported via OnQueueFull.
//
// Must only be called from the producer goroutine.
func (q *CommandQueue[T]) Submit(cmd T) bool {
	t := q.tail.Load()
	h := q.head.Load()

	if t-h >= q.capacity {
		q.dropped.Add(1)
		if fn := q.hooks.OnQueueFull; fn != nil {
			fn(cmd)
		}
		return false
	}

	q.buf[t&q.mask] = cmd
	q.tail.Store(t + 1) // publish: slot write happens-before this store

	q.submitted.Add(1)
	if fn := q.hooks.OnSubmit; fn != nil {
		fn(cmd)
	}
	return true
}

// ConsumeAll drains every payload that was fully published at the time of
// the call, invoking processor once per payload, in FIFO submit order,
// synchronously on the calling goroutine. It does not wait for more work.
//
// Returns the number of payloads processed.
//
// Must only be called from the consumer goroutine. If processor panics the
// queue is left with its head unpublished for the remainder of the batch;
// callers that need per-payload fault isolation must recover inside
// processor (see [Dispatcher], which does exactly that).
func (q *CommandQueue[T]) ConsumeAll(processor func(T)) int {
	t := q.tail.Load() // acquire: everything at [head, t) is published
	h := q.head.Load() // consumer-owned

	if h == t {
		return 0
	}

	var zero T
	n := 0
	for ; h < t; h++ {
		idx := h & q.mask
		cmd := q.buf[idx]
		q.buf[idx] = zero // release the payload for GC before reuse

		processor(cmd)
		q.consumed.Add(1)
		n++
		if fn := q.hooks.OnConsume; fn != nil {
			fn(cmd)
		}
	}

	q.head.Store(h) // publish the whole batch
	return n
}

// IsEmpty reports whether the queue appears empty. Advisory: under
// concurrent mutation the answer may be stale by the time it is observed.
func (q *CommandQueue[T]) IsEmpty() bool {
	return q.tail.Load() == q.head.Load()
}

// IsFull reports whether the queue appears full. Advisory, like IsEmpty.
func (q *CommandQueue[T]) IsFull() bool {
	return q.tail.Load()-q.head.Load() >= q.capacity
}

// Length returns the approximate number of queued payloads. The value is
// exact when called from either endpoint goroutine while the other side is
// quiescent, and advisory otherwise.
func (q *CommandQueue[T]) Length() int {
	t := q.tail.Load()
	h := q.head.Load()
	if t <= h {
		return 0
	}
	return int(t - h)
}

// Capacity returns the fixed logical capacity.
func (q *CommandQueue[T]) Capacity() int {
	return int(q.capacity)
}

// TotalSubmitted returns the monotonic count of successful Submit calls.
func (q *CommandQueue[T]) TotalSubmitted() uint64 {
	return q.submitted.Load()
}

// TotalConsumed returns the monotonic count of payloads handed to
// ConsumeAll processors.
func (q *CommandQueue[T]) TotalConsumed() uint64 {
	return q.consumed.Load()
}

// TotalDropped returns the monotonic count of rejected Submit calls.
func (q *CommandQueue[T]) TotalDropped() uint64 {
	return q.dropped.Load()
}
