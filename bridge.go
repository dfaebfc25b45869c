package framebridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	defaultCommandCapacity      = 1024
	defaultCallbackCapacity     = 1024
	defaultPresentationInterval = 16 * time.Millisecond
	defaultLogicInterval        = 10 * time.Millisecond

	// continuationExpireBudget bounds expiry work per logic tick so a
	// pile-up of timed-out continuations cannot stall the loop.
	continuationExpireBudget = 64
)

// RenderFunc is the presentation work run once per presentation tick,
// after queued commands have been applied and before the buffer swap. It
// reads the front buffer only.
type RenderFunc[K comparable, V any] func(front FrontView[K, V])

// LogicFunc is the domain work run once per logic tick, after pending
// results have been delivered.
type LogicFunc[K comparable, V any] func(ctx LogicContext[K, V])

// LogicContext is the surface a [LogicFunc] works through. It is only
// valid for the duration of the tick that received it.
type LogicContext[K comparable, V any] struct {
	b *Bridge[K, V]
}

// Front returns a read-only view of the front buffer.
func (c LogicContext[K, V]) Front() FrontView[K, V] {
	return c.b.store.GetFront()
}

// Submit enqueues a fire-and-forget command for the presentation worker,
// reporting whether it was accepted. The command's correlation id is
// cleared; use SubmitCall to receive a result.
func (c LogicContext[K, V]) Submit(cmd Command[K, V]) bool {
	cmd.Correlation = 0
	return c.b.commands.Submit(cmd)
}

// SubmitCall enqueues a command whose handler result (or error) will be
// delivered to fn on a later logic tick. A rejected submission unregisters
// the continuation and returns false; fn is never invoked in that case.
func (c LogicContext[K, V]) SubmitCall(cmd Command[K, V], fn func(CallbackRecord)) bool {
	if fn == nil {
		return c.Submit(cmd)
	}
	id := c.b.registry.register(fn, c.b.continuationTTL)
	cmd.Correlation = id
	if !c.b.commands.Submit(cmd) {
		c.b.registry.take(id)
		return false
	}
	return true
}

// Bridge wires the two worker loops together: a logic loop that emits
// commands and receives results, and a presentation loop that applies
// commands to the back buffer, renders from the front buffer, and swaps.
// The loops share nothing but the two queues, the store, and the
// lifecycle flag; neither ever blocks on the other outside the swap
// critical section.
//
// Assemble with [New], start with Run, stop with Shutdown. A Bridge is
// single-use; once stopped it cannot be restarted.
type Bridge[K comparable, V any] struct {
	commands   *CommandQueue[Command[K, V]]
	callbacks  *CommandQueue[CallbackRecord]
	store      *DoubleBufferedStore[K, V]
	registry   *callbackRegistry
	dispatcher *Dispatcher[K, V]
	logger     *logiface.Logger[logiface.Event]

	render RenderFunc[K, V]
	logic  LogicFunc[K, V]

	presentationInterval time.Duration
	logicInterval        time.Duration
	continuationTTL      time.Duration

	stopCh    chan struct{}
	presDone  chan struct{}
	logicDone chan struct{}
	stopOnce  sync.Once
	finalOnce sync.Once

	presTicks      atomic.Uint64
	logicTicks     atomic.Uint64
	handlerFaults  atomic.Uint64
	droppedResults atomic.Uint64

	presTiming  *tickTimer
	logicTiming *tickTimer

	state lifecycle
}

// New assembles a Bridge from the supplied options. The zero-option form
// is usable: default capacities and cadences, no render or logic work, an
// empty dispatcher, and no logging.
func New[K comparable, V any](opts ...BridgeOption[K, V]) (*Bridge[K, V], error) {
	cfg, err := resolveBridgeOptions(opts)
	if err != nil {
		return nil, err
	}

	dispatcher := cfg.dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher[K, V]()
	}

	storeOpts := make([]StoreOption[K, V], 0, len(cfg.storeOpts)+1)
	storeOpts = append(storeOpts, WithStoreLogger[K, V](cfg.logger))
	storeOpts = append(storeOpts, cfg.storeOpts...)

	return &Bridge[K, V]{
		commands:             NewPresentationChannel[K, V](cfg.commandCapacity, cfg.logger),
		callbacks:            NewCallbackChannel(cfg.callbackCapacity, cfg.logger),
		store:                NewDoubleBufferedStore[K, V](storeOpts...),
		registry:             newCallbackRegistry(),
		dispatcher:           dispatcher,
		logger:               cfg.logger,
		render:               cfg.render,
		logic:                cfg.logic,
		presentationInterval: cfg.presentationInterval,
		logicInterval:        cfg.logicInterval,
		continuationTTL:      cfg.continuationTTL,
		presTiming:           newTickTimer(),
		logicTiming:          newTickTimer(),
		stopCh:               make(chan struct{}),
		presDone:             make(chan struct{}),
		logicDone:            make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (b *Bridge[K, V]) State() BridgeState {
	return b.state.Load()
}

// Stats returns a point-in-time snapshot of every counter the bridge and
// its components maintain.
func (b *Bridge[K, V]) Stats() BridgeStats {
	return BridgeStats{
		Commands:             statsOf(b.commands),
		Callbacks:            statsOf(b.callbacks),
		Store:                b.store.Stats(),
		PresentationTicks:    b.presTicks.Load(),
		LogicTicks:           b.logicTicks.Load(),
		PresentationTiming:   b.presTiming.snapshot(),
		LogicTiming:          b.logicTiming.snapshot(),
		HandlerFaults:        b.handlerFaults.Load(),
		DroppedResults:       b.droppedResults.Load(),
		PendingContinuations: b.registry.pending(),
		State:                b.state.Load(),
	}
}

// Run starts both worker loops and blocks until they exit, which happens
// after Shutdown is called or ctx is cancelled. Returns
// [ErrBridgeAlreadyRunning] if the bridge is already running and
// [ErrBridgeStopped] if it has already stopped; otherwise returns
// ctx.Err() (nil when stopped via Shutdown).
func (b *Bridge[K, V]) Run(ctx context.Context) error {
	if !b.state.TryTransition(StateIdle, StateRunning) {
		if b.state.Load() == StateStopped {
			return ErrBridgeStopped
		}
		return ErrBridgeAlreadyRunning
	}

	b.logger.Info().
		Dur("presentation_interval", b.presentationInterval).
		Dur("logic_interval", b.logicInterval).
		Log("bridge started")

	go b.presentationLoop()
	go b.logicLoop()
	go func() {
		select {
		case <-ctx.Done():
			b.requestStop()
		case <-b.stopCh:
		}
	}()

	<-b.presDone
	<-b.logicDone
	b.finalize()
	return ctx.Err()
}

// Shutdown requests cooperative stop and waits for both loops to join,
// bounded by ctx. On deadline it abandons the loops and returns
// [ErrShutdownTimeout]; the loops will still exit on their next iteration,
// but pending continuations are not failed until they do.
func (b *Bridge[K, V]) Shutdown(ctx context.Context) error {
	if b.state.TryTransition(StateIdle, StateStopped) {
		// never started; nothing to join
		b.stopOnce.Do(func() { close(b.stopCh) })
		b.finalize()
		return nil
	}

	b.requestStop()

	select {
	case <-b.presDone:
	case <-ctx.Done():
		return b.abandon("presentation")
	}
	select {
	case <-b.logicDone:
	case <-ctx.Done():
		return b.abandon("logic")
	}

	b.finalize()
	return nil
}

func (b *Bridge[K, V]) abandon(loop string) error {
	b.logger.Err().
		Str("loop", loop).
		Log("shutdown deadline exceeded, abandoning worker")
	return ErrShutdownTimeout
}

// requestStop flips the lifecycle to Stopping and wakes both loops. Safe
// to call more than once.
func (b *Bridge[K, V]) requestStop() {
	if b.state.TryTransition(StateRunning, StateStopping) {
		b.logger.Info().Log("bridge stopping")
	}
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// finalize marks the bridge stopped and fails every pending continuation.
// Runs exactly once, after both loops have joined (or, for a bridge that
// never ran, immediately).
func (b *Bridge[K, V]) finalize() {
	b.finalOnce.Do(func() {
		b.state.Store(StateStopped)
		for _, fc := range b.registry.failAll(ErrBridgeStopped) {
			b.invokeContinuation(fc.fn, fc.rec)
		}
		b.logger.Info().
			Uint64("presentation_ticks", b.presTicks.Load()).
			Uint64("logic_ticks", b.logicTicks.Load()).
			Log("bridge stopped")
	})
}

// --- Presentation Worker ---

func (b *Bridge[K, V]) presentationLoop() {
	defer close(b.presDone)
	ticker := time.NewTicker(b.presentationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-b.stopCh:
			// final tick drains commands accepted before the stop flag
			b.presentationTick()
			return
		}
		b.presentationTick()
		if b.state.Stopping() {
			return
		}
	}
}

func (b *Bridge[K, V]) presentationTick() {
	start := time.Now()
	defer func() { b.presTiming.observe(time.Since(start)) }()
	b.commands.ConsumeAll(b.applyCommand)
	if b.render != nil {
		b.safeExecute("render", func() {
			b.render(b.store.GetFront())
		})
	}
	// validation failures are counted and logged by the store
	_ = b.store.SwapBuffers()
	b.presTicks.Add(1)
}

// applyCommand runs the handler for one command and routes its result. A
// handler error or panic is contained here: it is logged, counted, and
// (when the command wants a result) delivered to the continuation as a
// [HandlerError].
func (b *Bridge[K, V]) applyCommand(cmd Command[K, V]) {
	result, err := b.dispatcher.dispatch(ApplyContext[K, V]{store: b.store}, cmd)
	if err != nil {
		b.handlerFaults.Add(1)
		herr := &HandlerError{Err: err, Op: cmd.Op, Correlation: cmd.Correlation}
		b.logger.Err().
			Err(herr).
			Int("op", int(cmd.Op)).
			Uint64("correlation", cmd.Correlation).
			Log("command handler failed")
		if cmd.WantsResult() {
			b.submitResult(CallbackRecord{ID: cmd.Correlation, Err: herr})
		}
		return
	}
	if cmd.WantsResult() {
		b.submitResult(CallbackRecord{ID: cmd.Correlation, Value: result})
	}
}

func (b *Bridge[K, V]) submitResult(rec CallbackRecord) {
	if !b.callbacks.Submit(rec) {
		b.droppedResults.Add(1)
	}
}

// --- Logic Worker ---

func (b *Bridge[K, V]) logicLoop() {
	defer close(b.logicDone)
	ticker := time.NewTicker(b.logicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-b.stopCh:
			// deliver results already produced; no further logic work
			b.drainCallbacks()
			return
		}
		b.logicTick()
		if b.state.Stopping() {
			b.drainCallbacks()
			return
		}
	}
}

func (b *Bridge[K, V]) logicTick() {
	start := time.Now()
	defer func() { b.logicTiming.observe(time.Since(start)) }()
	b.drainCallbacks()
	b.expireContinuations()
	if b.logic != nil {
		b.safeExecute("logic", func() {
			b.logic(LogicContext[K, V]{b: b})
		})
	}
	b.logicTicks.Add(1)
}

func (b *Bridge[K, V]) drainCallbacks() {
	b.callbacks.ConsumeAll(func(rec CallbackRecord) {
		fn, ok := b.registry.take(rec.ID)
		if !ok {
			// already expired or failed; the record is stale
			b.logger.Debug().
				Uint64("id", rec.ID).
				Log("dropping stale callback record")
			return
		}
		b.invokeContinuation(fn, rec)
	})
}

func (b *Bridge[K, V]) expireContinuations() {
	if b.continuationTTL <= 0 {
		return
	}
	for _, fc := range b.registry.expire(time.Now(), continuationExpireBudget) {
		b.logger.Warning().
			Uint64("id", fc.rec.ID).
			Log("continuation expired")
		b.invokeContinuation(fc.fn, fc.rec)
	}
}

func (b *Bridge[K, V]) invokeContinuation(fn func(CallbackRecord), rec CallbackRecord) {
	b.safeExecute("continuation", func() {
		fn(rec)
	})
}

// safeExecute contains a panic from user-supplied code so the worker loop
// survives it.
func (b *Bridge[K, V]) safeExecute(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Err().
				Err(&PanicError{Value: r}).
				Str("stage", stage).
				Log("recovered panic")
		}
	}()
	fn()
}
