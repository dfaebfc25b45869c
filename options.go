package framebridge

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// --- Queue Options ---

// QueueOption configures a [CommandQueue] instance.
type QueueOption[T any] interface {
	applyQueue(*CommandQueue[T])
}

// queueOptionImpl implements QueueOption.
type queueOptionImpl[T any] struct {
	applyQueueFunc func(*CommandQueue[T])
}

func (o *queueOptionImpl[T]) applyQueue(q *CommandQueue[T]) {
	o.applyQueueFunc(q)
}

// WithQueueHooks attaches instrumentation hooks to a queue. Hooks run
// synchronously on the hot path; keep them cheap and non-blocking.
func WithQueueHooks[T any](hooks QueueHooks[T]) QueueOption[T] {
	return &queueOptionImpl[T]{func(q *CommandQueue[T]) {
		q.hooks = hooks
	}}
}

// --- Store Options ---

// StoreOption configures a [DoubleBufferedStore] instance.
type StoreOption[K comparable, V any] interface {
	applyStore(*DoubleBufferedStore[K, V])
}

// storeOptionImpl implements StoreOption.
type storeOptionImpl[K comparable, V any] struct {
	applyStoreFunc func(*DoubleBufferedStore[K, V])
}

func (o *storeOptionImpl[K, V]) applyStore(s *DoubleBufferedStore[K, V]) {
	o.applyStoreFunc(s)
}

// WithDirtyTracking toggles incremental synchronization. Disabled, every
// swap takes the full-copy path; external behavior is unchanged, only the
// swap cost moves from O(dirty keys) to O(buffer size).
func WithDirtyTracking[K comparable, V any](enabled bool) StoreOption[K, V] {
	return &storeOptionImpl[K, V]{func(s *DoubleBufferedStore[K, V]) {
		s.dirtyTracking = enabled
	}}
}

// WithMaxBackSize bounds the back buffer's entry count; a swap whose back
// buffer exceeds the bound fails validation and is skipped. Zero (the
// default) means unbounded.
func WithMaxBackSize[K comparable, V any](n int) StoreOption[K, V] {
	return &storeOptionImpl[K, V]{func(s *DoubleBufferedStore[K, V]) {
		s.maxBackSize = n
	}}
}

// WithBackValidator installs a structural sanity check run before every
// swap, receiving the back buffer's entry count. A non-nil error skips the
// swap, leaving the stale front buffer serving reads.
func WithBackValidator[K comparable, V any](fn func(size int) error) StoreOption[K, V] {
	return &storeOptionImpl[K, V]{func(s *DoubleBufferedStore[K, V]) {
		s.validator = fn
	}}
}

// WithSwapVerify enables the debug mode that cross-checks the dirty-key
// patch against the full-copy reference on every swap, logging divergence.
// O(n) per swap; not for production.
func WithSwapVerify[K comparable, V any](enabled bool) StoreOption[K, V] {
	return &storeOptionImpl[K, V]{func(s *DoubleBufferedStore[K, V]) {
		s.verify = enabled
	}}
}

// WithStoreLogger attaches a structured logger to a store constructed
// standalone (a store owned by a [Bridge] inherits the bridge's logger).
func WithStoreLogger[K comparable, V any](logger *logiface.Logger[logiface.Event]) StoreOption[K, V] {
	return &storeOptionImpl[K, V]{func(s *DoubleBufferedStore[K, V]) {
		s.logger = logger
	}}
}

// --- Bridge Options ---

// bridgeOptions holds configuration for Bridge assembly.
type bridgeOptions[K comparable, V any] struct {
	logger *logiface.Logger[logiface.Event]

	dispatcher *Dispatcher[K, V]
	render     RenderFunc[K, V]
	logic      LogicFunc[K, V]

	storeOpts []StoreOption[K, V]

	commandCapacity  int
	callbackCapacity int

	presentationInterval time.Duration
	logicInterval        time.Duration

	continuationTTL time.Duration
}

// BridgeOption configures a [Bridge] instance.
type BridgeOption[K comparable, V any] interface {
	applyBridge(*bridgeOptions[K, V]) error
}

// bridgeOptionImpl implements BridgeOption.
type bridgeOptionImpl[K comparable, V any] struct {
	applyBridgeFunc func(*bridgeOptions[K, V]) error
}

func (o *bridgeOptionImpl[K, V]) applyBridge(opts *bridgeOptions[K, V]) error {
	return o.applyBridgeFunc(opts)
}

// WithLogger attaches a structured logger to the bridge and the store it
// assembles. A nil logger (the default) disables logging.
func WithLogger[K comparable, V any](logger *logiface.Logger[logiface.Event]) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		opts.logger = logger
		return nil
	}}
}

// WithDispatcher sets the handler table the presentation worker resolves
// commands against. Register all handlers before Run; the table is not
// synchronized.
func WithDispatcher[K comparable, V any](d *Dispatcher[K, V]) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		opts.dispatcher = d
		return nil
	}}
}

// WithRender sets the presentation work executed each presentation tick,
// reading the front buffer. Optional.
func WithRender[K comparable, V any](fn RenderFunc[K, V]) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		opts.render = fn
		return nil
	}}
}

// WithLogic sets the domain logic executed each logic tick. Optional, in
// which case the logic loop still drains callbacks and expires
// continuations.
func WithLogic[K comparable, V any](fn LogicFunc[K, V]) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		opts.logic = fn
		return nil
	}}
}

// WithCommandCapacity sets the presentation-bound channel capacity.
func WithCommandCapacity[K comparable, V any](n int) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		if n < 1 {
			return errors.New("framebridge: command capacity must be >= 1")
		}
		opts.commandCapacity = n
		return nil
	}}
}

// WithCallbackCapacity sets the logic-bound callback channel capacity.
func WithCallbackCapacity[K comparable, V any](n int) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		if n < 1 {
			return errors.New("framebridge: callback capacity must be >= 1")
		}
		opts.callbackCapacity = n
		return nil
	}}
}

// WithPresentationInterval sets the presentation loop cadence.
func WithPresentationInterval[K comparable, V any](d time.Duration) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		if d <= 0 {
			return errors.New("framebridge: presentation interval must be positive")
		}
		opts.presentationInterval = d
		return nil
	}}
}

// WithLogicInterval sets the logic loop cadence, independent of the
// presentation cadence.
func WithLogicInterval[K comparable, V any](d time.Duration) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		if d <= 0 {
			return errors.New("framebridge: logic interval must be positive")
		}
		opts.logicInterval = d
		return nil
	}}
}

// WithContinuationTTL bounds how long a pending continuation may wait for
// its result before being expired with [ErrContinuationExpired]. Zero (the
// default) disables expiry; FailAll at shutdown still applies.
func WithContinuationTTL[K comparable, V any](d time.Duration) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(opts *bridgeOptions[K, V]) error {
		if d < 0 {
			return errors.New("framebridge: continuation ttl must not be negative")
		}
		opts.continuationTTL = d
		return nil
	}}
}

// WithStoreOptions forwards options to the store the bridge assembles.
func WithStoreOptions[K comparable, V any](opts ...StoreOption[K, V]) BridgeOption[K, V] {
	return &bridgeOptionImpl[K, V]{func(o *bridgeOptions[K, V]) error {
		o.storeOpts = append(o.storeOpts, opts...)
		return nil
	}}
}

// resolveBridgeOptions applies BridgeOption instances over the defaults.
func resolveBridgeOptions[K comparable, V any](opts []BridgeOption[K, V]) (*bridgeOptions[K, V], error) {
	cfg := &bridgeOptions[K, V]{
		commandCapacity:      defaultCommandCapacity,
		callbackCapacity:     defaultCallbackCapacity,
		presentationInterval: defaultPresentationInterval,
		logicInterval:        defaultLogicInterval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBridge(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
