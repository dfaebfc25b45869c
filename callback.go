package framebridge

import (
	"container/heap"
	"sync"
	"time"
)

// continuation is a pending logic-side callback with explicit lifetime:
// inserted when a correlated command is submitted, removed exactly once
// when the matching result arrives, the deadline fires, or the bridge
// shuts down.
type continuation struct {
	fn       func(CallbackRecord)
	deadline time.Time // zero means no deadline
}

// deadlineEntry indexes a continuation by its expiry.
type deadlineEntry struct {
	when time.Time
	id   uint64
}

// deadlineHeap is a min-heap of continuation deadlines.
type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(deadlineEntry))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// callbackRegistry is the pending-continuation table: correlation id to
// continuation. It guarantees exactly-once consumption and bounded growth
// (deadline scavenging plus FailAll at shutdown), so continuations are
// never left to accumulate or to wait forever.
//
// The mutex is uncontended in steady state: register, take, and expire all
// run on the logic goroutine; only failAll arrives from the supervisor.
type callbackRegistry struct {
	mu        sync.Mutex
	data      map[uint64]continuation
	deadlines deadlineHeap

	// nextID starts at 1 so 0 remains the "no result requested" marker.
	nextID uint64
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{
		data:   make(map[uint64]continuation),
		nextID: 1,
	}
}

// register stores fn and returns its correlation id. A non-zero ttl sets a
// deadline after which the continuation is expired with
// [ErrContinuationExpired].
func (r *callbackRegistry) register(fn func(CallbackRecord), ttl time.Duration) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	c := continuation{fn: fn}
	if ttl > 0 {
		c.deadline = time.Now().Add(ttl)
		heap.Push(&r.deadlines, deadlineEntry{when: c.deadline, id: id})
	}
	r.data[id] = c
	return id
}

// take removes and returns the continuation for id. The second result is
// false when id is unknown or already consumed; callers treat that as a
// stale or duplicate record and drop it.
func (r *callbackRegistry) take(id uint64) (func(CallbackRecord), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.data[id]
	if !ok {
		return nil, false
	}
	delete(r.data, id)
	// The deadline heap entry, if any, becomes a tombstone; expire skips
	// ids no longer present.
	return c.fn, true
}

// expire consumes up to budget continuations whose deadline is at or
// before now, pairing each with an [ErrContinuationExpired] record.
// Tombstones (deadline entries whose id was already consumed) do not count
// against the budget. Invocation is the caller's job so user code never
// runs under the registry lock.
func (r *callbackRegistry) expire(now time.Time, budget int) []failedContinuation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []failedContinuation
	for len(r.deadlines) > 0 && len(expired) < budget {
		next := r.deadlines[0]
		if next.when.After(now) {
			break
		}
		heap.Pop(&r.deadlines)

		c, ok := r.data[next.id]
		if !ok || !c.deadline.Equal(next.when) {
			continue // consumed, or a stale heap entry
		}
		delete(r.data, next.id)
		expired = append(expired, failedContinuation{
			fn:  c.fn,
			rec: CallbackRecord{ID: next.id, Err: ErrContinuationExpired},
		})
	}
	return expired
}

// failAll consumes every pending continuation with err. Called during
// shutdown so no requester is left waiting indefinitely. Returns the
// consumed continuations for the caller to invoke outside the lock.
func (r *callbackRegistry) failAll(err error) []failedContinuation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]failedContinuation, 0, len(r.data))
	for id, c := range r.data {
		out = append(out, failedContinuation{
			fn:  c.fn,
			rec: CallbackRecord{ID: id, Err: err},
		})
		delete(r.data, id)
	}
	r.deadlines = r.deadlines[:0]
	return out
}

// failedContinuation pairs a consumed continuation with the error record
// it should receive.
type failedContinuation struct {
	fn  func(CallbackRecord)
	rec CallbackRecord
}

// pending returns the number of outstanding continuations.
func (r *callbackRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}
