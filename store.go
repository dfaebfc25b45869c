package framebridge

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/joeycumines/logiface"
)

// DoubleBufferedStore is a front/back associative snapshot shared between a
// producer (the worker that applies commands) and a consumer (the worker
// that reads state).
//
// Thread Safety:
//   - GetBack, MarkDirty, and SwapBuffers must only be called from the
//     producer goroutine. The back buffer and dirty set are producer-owned
//     and completely unsynchronized.
//   - GetFront is safe from the consumer goroutine; each read acquires a
//     shared lock that contends only with the bounded swap critical
//     section, never with producer writes. SwapBuffers holds the exclusive
//     side of the same lock, and it is the only lock in the core.
//
// Dirty tracking is strictly an optimization over the always-correct
// full-copy path; it can be disabled without changing external behavior,
// and a verify mode runs both and compares (see WithSwapVerify).
type DoubleBufferedStore[K comparable, V any] struct {
	// Prevent copying
	_ [0]func()

	// mu guards front against the pointer exchange and the in-place patch
	// performed by SwapBuffers.
	mu sync.RWMutex

	front map[K]V // consumer-facing snapshot
	back  map[K]V // producer-facing working set

	dirty map[K]struct{}

	logger *logiface.Logger[logiface.Event]

	// validator inspects the back buffer before every swap. A non-nil
	// error skips the swap, keeping the stale front (availability over
	// freshness).
	validator func(size int) error

	// maxBackSize bounds the back buffer; zero means unbounded.
	maxBackSize int

	dirtyTracking bool
	verify        bool

	// fullCopyDone flips after the first successful full copy; the O(d)
	// dirty path is only valid once the two buffers have been synchronized
	// at least once.
	fullCopyDone bool

	stats storeStats
}

// storeStats is mutated only under the store's exclusive lock.
type storeStats struct {
	swaps        uint64
	swapFailures uint64
	fullCopies   uint64

	// Exponential moving average of d/n per swap, alpha=0.1.
	// Warmstart: initializes to the first observed value for accuracy.
	dirtyRatioAvg         float64
	dirtyRatioInitialized bool
}

// NewDoubleBufferedStore creates a store with empty front and back buffers.
// Dirty tracking is enabled unless disabled via WithDirtyTracking(false).
func NewDoubleBufferedStore[K comparable, V any](opts ...StoreOption[K, V]) *DoubleBufferedStore[K, V] {
	s := &DoubleBufferedStore[K, V]{
		front:         make(map[K]V),
		back:          make(map[K]V),
		dirty:         make(map[K]struct{}),
		dirtyTracking: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyStore(s)
	}
	return s
}

// FrontView is the read-only consumer view of a store. Every accessor
// acquires the store's shared lock for the duration of the single call, so
// a view never observes a swap mid-operation. Views are cheap and need not
// be retained; re-acquire via GetFront each tick.
type FrontView[K comparable, V any] struct {
	s *DoubleBufferedStore[K, V]
}

// Get returns the value for key in the front buffer.
func (v FrontView[K, V]) Get(key K) (V, bool) {
	v.s.mu.RLock()
	val, ok := v.s.front[key]
	v.s.mu.RUnlock()
	return val, ok
}

// Len returns the number of entries in the front buffer.
func (v FrontView[K, V]) Len() int {
	v.s.mu.RLock()
	n := len(v.s.front)
	v.s.mu.RUnlock()
	return n
}

// Range calls fn for each front entry until fn returns false. The shared
// lock is held for the whole iteration; fn must not call SwapBuffers (the
// producer owns that anyway) and should be brief.
func (v FrontView[K, V]) Range(fn func(K, V) bool) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for k, val := range v.s.front {
		if !fn(k, val) {
			return
		}
	}
}

// BackView is the mutable producer view of a store. It is completely
// unsynchronized: only the producer goroutine may touch it, and only
// between swaps.
type BackView[K comparable, V any] struct {
	s *DoubleBufferedStore[K, V]
}

// Get returns the value for key in the back buffer.
func (v BackView[K, V]) Get(key K) (V, bool) {
	val, ok := v.s.back[key]
	return val, ok
}

// Set inserts or overwrites key. Repeated writes to the same key within one
// tick are last-write-wins; the back buffer is a plain associative store.
// Callers must still MarkDirty(key) once per touched key: the swap publishes
// the back buffer as-is via the pointer exchange, so an unmarked write has
// undefined visibility, typically surfacing after one swap and reverting
// after the next.
func (v BackView[K, V]) Set(key K, val V) {
	v.s.back[key] = val
}

// Delete removes key from the back buffer. Combined with MarkDirty, the
// removal propagates to the front buffer as a deletion on the next swap.
func (v BackView[K, V]) Delete(key K) {
	delete(v.s.back, key)
}

// Len returns the number of entries in the back buffer.
func (v BackView[K, V]) Len() int {
	return len(v.s.back)
}

// GetFront returns the consumer's read-only view. The consumer must only
// ever read through this view.
func (s *DoubleBufferedStore[K, V]) GetFront() FrontView[K, V] {
	return FrontView[K, V]{s}
}

// GetBack returns the producer's mutable view. The producer must only ever
// write through this view.
func (s *DoubleBufferedStore[K, V]) GetBack() BackView[K, V] {
	return BackView[K, V]{s}
}

// MarkDirty records that key was mutated in the back buffer since the last
// swap. O(1). Call immediately after any mutation of key; a no-op when
// dirty tracking is disabled.
func (s *DoubleBufferedStore[K, V]) MarkDirty(key K) {
	if !s.dirtyTracking {
		return
	}
	s.dirty[key] = struct{}{}
}

// SwapBuffers commits the back buffer to the consumer. It is the single
// synchronization point between the two sides; its critical section is
// bounded by construction: O(d) in dirty keys, or O(n) on the full-copy
// path, never proportional to unrelated work.
//
// Sequence: validate the back buffer (on failure, log and return a
// [SwapValidationError] without touching the front); bring the front
// up to date (full copy on the first swap or when dirty tracking is off,
// per-dirty-key copy/delete otherwise); clear the dirty set; exchange the
// front/back pointers so future producer writes target the buffer the
// consumer just vacated. The exchange swaps pointers, not contents: the
// consumer's next reads hit the exact map the producer was writing, which is
// why every mutation needs MarkDirty (see [BackView.Set]).
//
// Must only be called from the producer goroutine.
func (s *DoubleBufferedStore[K, V]) SwapBuffers() error {
	// Validation reads only producer-owned state; do it before taking the
	// exclusive lock so a rejected swap never blocks the consumer.
	n := len(s.back)
	if err := s.validateBack(n); err != nil {
		s.mu.Lock()
		s.stats.swapFailures++
		s.mu.Unlock()
		s.logger.Err().
			Err(err).
			Int("back_size", n).
			Log("swap skipped, serving stale front buffer")
		return err
	}

	d := len(s.dirty)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirtyTracking || !s.fullCopyDone {
		clear(s.front)
		for k, v := range s.back {
			s.front[k] = v
		}
		s.fullCopyDone = true
		s.stats.fullCopies++
	} else {
		for k := range s.dirty {
			if v, ok := s.back[k]; ok {
				s.front[k] = v
			} else {
				delete(s.front, k)
			}
		}
		if s.verify {
			s.verifyLocked()
		}
	}

	clear(s.dirty)
	s.front, s.back = s.back, s.front

	s.stats.swaps++
	s.recordDirtyRatioLocked(d, n)
	return nil
}

// validateBack applies the size bound and the injected validator.
func (s *DoubleBufferedStore[K, V]) validateBack(n int) error {
	if s.maxBackSize > 0 && n > s.maxBackSize {
		return &SwapValidationError{
			Err:  fmt.Errorf("back buffer size %d exceeds configured bound %d", n, s.maxBackSize),
			Size: n,
		}
	}
	if s.validator != nil {
		if err := s.validator(n); err != nil {
			return &SwapValidationError{Err: err, Size: n}
		}
	}
	return nil
}

// verifyLocked cross-checks the dirty-key patch against the always-correct
// reference: after patching, front must mirror back exactly. Divergence
// means a mutation was not marked dirty. Debug aid; O(n).
func (s *DoubleBufferedStore[K, V]) verifyLocked() {
	if len(s.front) != len(s.back) {
		s.logger.Warning().
			Int("front_size", len(s.front)).
			Int("back_size", len(s.back)).
			Log("swap verify: size divergence between dirty patch and full copy")
		return
	}
	for k, want := range s.back {
		got, ok := s.front[k]
		if !ok {
			s.logger.Warning().
				Str("key", fmt.Sprint(k)).
				Log("swap verify: key missing from patched front buffer")
			return
		}
		if !reflect.DeepEqual(got, want) {
			s.logger.Warning().
				Str("key", fmt.Sprint(k)).
				Log("swap verify: value divergence for unmarked key")
			return
		}
	}
}

// recordDirtyRatioLocked folds d/n for one swap into the running average.
func (s *DoubleBufferedStore[K, V]) recordDirtyRatioLocked(d, n int) {
	if n == 0 {
		return
	}
	ratio := float64(d) / float64(n)
	if !s.stats.dirtyRatioInitialized {
		s.stats.dirtyRatioAvg = ratio
		s.stats.dirtyRatioInitialized = true
	} else {
		s.stats.dirtyRatioAvg = 0.9*s.stats.dirtyRatioAvg + 0.1*ratio
	}
}

// DirtyCount returns the number of keys currently marked dirty. Producer
// goroutine only.
func (s *DoubleBufferedStore[K, V]) DirtyCount() int {
	return len(s.dirty)
}

// Stats returns a snapshot of the store's counters.
func (s *DoubleBufferedStore[K, V]) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{
		Swaps:         s.stats.swaps,
		SwapFailures:  s.stats.swapFailures,
		FullCopies:    s.stats.fullCopies,
		DirtyRatioAvg: s.stats.dirtyRatioAvg,
		FrontSize:     len(s.front),
	}
}
