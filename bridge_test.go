package framebridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOpSet CommandOp = iota + 1
	testOpDelete
	testOpRead
	testOpFail
	testOpPanic
)

func testDispatcher() *Dispatcher[string, int] {
	d := NewDispatcher[string, int]()
	d.Register(testOpSet, func(ctx ApplyContext[string, int], cmd Command[string, int]) (any, error) {
		ctx.Set(cmd.Key, cmd.Value)
		return cmd.Value, nil
	})
	d.Register(testOpDelete, func(ctx ApplyContext[string, int], cmd Command[string, int]) (any, error) {
		ctx.Delete(cmd.Key)
		return nil, nil
	})
	d.Register(testOpRead, func(ctx ApplyContext[string, int], cmd Command[string, int]) (any, error) {
		v, _ := ctx.Get(cmd.Key)
		return v, nil
	})
	d.Register(testOpFail, func(ctx ApplyContext[string, int], cmd Command[string, int]) (any, error) {
		return nil, errors.New("refused")
	})
	d.Register(testOpPanic, func(ctx ApplyContext[string, int], cmd Command[string, int]) (any, error) {
		panic("handler exploded")
	})
	return d
}

// runBridge starts b on a background goroutine and returns a stop func
// that shuts it down and waits for Run to return.
func runBridge[K comparable, V any](t *testing.T, b *Bridge[K, V]) func() {
	t.Helper()
	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := <-runDone; err != nil {
			t.Errorf("run: %v", err)
		}
	}
}

func TestBridgeEndToEnd(t *testing.T) {
	var step atomic.Int32
	result := make(chan CallbackRecord, 1)

	b, err := New[string, int](
		WithDispatcher(testDispatcher()),
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](time.Millisecond),
		WithLogic[string, int](func(ctx LogicContext[string, int]) {
			switch step.Load() {
			case 0:
				if ctx.Submit(Command[string, int]{Op: testOpSet, Key: "score", Value: 42}) {
					step.Store(1)
				}
			case 1:
				// wait for the write to reach the front buffer
				if v, ok := ctx.Front().Get("score"); ok && v == 42 {
					step.Store(2)
				}
			case 2:
				ok := ctx.SubmitCall(Command[string, int]{Op: testOpRead, Key: "score"}, func(rec CallbackRecord) {
					result <- rec
				})
				if ok {
					step.Store(3)
				}
			}
		}),
	)
	require.NoError(t, err)
	stop := runBridge(t, b)
	defer stop()

	select {
	case rec := <-result:
		require.NoError(t, rec.Err)
		assert.Equal(t, 42, rec.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for read result")
	}

	stats := b.Stats()
	assert.Positive(t, stats.PresentationTicks)
	assert.Positive(t, stats.LogicTicks)
	assert.GreaterOrEqual(t, stats.Commands.Submitted, uint64(2))
	assert.Positive(t, stats.Store.Swaps)
}

func TestBridgeHandlerErrorContainment(t *testing.T) {
	var step atomic.Int32
	failRec := make(chan CallbackRecord, 1)
	panicRec := make(chan CallbackRecord, 1)

	b, err := New[string, int](
		WithDispatcher(testDispatcher()),
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](time.Millisecond),
		WithLogic[string, int](func(ctx LogicContext[string, int]) {
			switch step.Load() {
			case 0:
				if ctx.SubmitCall(Command[string, int]{Op: testOpFail}, func(rec CallbackRecord) { failRec <- rec }) {
					step.Store(1)
				}
			case 1:
				if ctx.SubmitCall(Command[string, int]{Op: testOpPanic}, func(rec CallbackRecord) { panicRec <- rec }) {
					step.Store(2)
				}
			case 2:
				// the loop must still be applying commands after two faults
				if ctx.Submit(Command[string, int]{Op: testOpSet, Key: "alive", Value: 1}) {
					step.Store(3)
				}
			}
		}),
	)
	require.NoError(t, err)
	stop := runBridge(t, b)
	defer stop()

	var herr *HandlerError
	select {
	case rec := <-failRec:
		require.Error(t, rec.Err)
		require.ErrorAs(t, rec.Err, &herr)
		assert.Equal(t, testOpFail, herr.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler error")
	}

	var perr *PanicError
	select {
	case rec := <-panicRec:
		require.Error(t, rec.Err)
		require.ErrorAs(t, rec.Err, &perr)
		assert.Equal(t, "handler exploded", perr.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for panic error")
	}

	require.Eventually(t, func() bool {
		v, ok := b.store.GetFront().Get("alive")
		return ok && v == 1
	}, 5*time.Second, time.Millisecond, "presentation worker should survive handler faults")

	assert.Equal(t, uint64(2), b.Stats().HandlerFaults)
}

func TestBridgeNoHandler(t *testing.T) {
	result := make(chan CallbackRecord, 1)
	var sent atomic.Bool

	b, err := New[string, int](
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](time.Millisecond),
		WithLogic[string, int](func(ctx LogicContext[string, int]) {
			if sent.CompareAndSwap(false, true) {
				ctx.SubmitCall(Command[string, int]{Op: 99}, func(rec CallbackRecord) { result <- rec })
			}
		}),
	)
	require.NoError(t, err)
	stop := runBridge(t, b)
	defer stop()

	select {
	case rec := <-result:
		require.ErrorIs(t, rec.Err, ErrNoHandler)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error result")
	}
}

func TestBridgeContinuationExpiry(t *testing.T) {
	result := make(chan CallbackRecord, 1)
	var sent atomic.Bool

	// the presentation loop ticks so slowly the command is never applied,
	// so the continuation can only complete by expiring
	b, err := New[string, int](
		WithDispatcher(testDispatcher()),
		WithPresentationInterval[string, int](time.Hour),
		WithLogicInterval[string, int](time.Millisecond),
		WithContinuationTTL[string, int](10*time.Millisecond),
		WithLogic[string, int](func(ctx LogicContext[string, int]) {
			if sent.CompareAndSwap(false, true) {
				ctx.SubmitCall(Command[string, int]{Op: testOpSet, Key: "x", Value: 1}, func(rec CallbackRecord) {
					result <- rec
				})
			}
		}),
	)
	require.NoError(t, err)
	stop := runBridge(t, b)
	defer stop()

	select {
	case rec := <-result:
		require.ErrorIs(t, rec.Err, ErrContinuationExpired)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for expiry")
	}
}

func TestBridgeIndependentPacing(t *testing.T) {
	b, err := New[string, int](
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](50*time.Millisecond),
	)
	require.NoError(t, err)
	stop := runBridge(t, b)

	time.Sleep(200 * time.Millisecond)
	stats := b.Stats()
	stop()

	assert.Greater(t, stats.PresentationTicks, stats.LogicTicks,
		"presentation loop on a faster cadence must tick more often")
}

func TestBridgeLifecycle(t *testing.T) {
	b, err := New[string, int](
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, b.State())

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool { return b.State() == StateRunning }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.Run(context.Background()), ErrBridgeAlreadyRunning)

	require.NoError(t, b.Shutdown(context.Background()))
	require.NoError(t, <-runDone)
	assert.Equal(t, StateStopped, b.State())

	assert.ErrorIs(t, b.Run(context.Background()), ErrBridgeStopped)
	assert.NoError(t, b.Shutdown(context.Background()), "shutdown is idempotent")
}

func TestBridgeShutdownBeforeRun(t *testing.T) {
	b, err := New[string, int]()
	require.NoError(t, err)
	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, b.State())
	assert.ErrorIs(t, b.Run(context.Background()), ErrBridgeStopped)
}

func TestBridgeRunHonorsContext(t *testing.T) {
	b, err := New[string, int](
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.State() == StateRunning }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after context cancellation")
	}
	assert.Equal(t, StateStopped, b.State())
}

func TestBridgeShutdownTimeout(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	var once atomic.Bool

	b, err := New[string, int](
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](time.Millisecond),
		WithLogic[string, int](func(LogicContext[string, int]) {
			if once.CompareAndSwap(false, true) {
				close(entered)
				<-block
			}
		}),
	)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.Shutdown(ctx), ErrShutdownTimeout)

	// unblock the logic worker; a second shutdown then joins cleanly
	close(block)
	require.NoError(t, b.Shutdown(context.Background()))
	require.NoError(t, <-runDone)
}

func TestBridgeContinuationExactlyOnce(t *testing.T) {
	// callback capacity 1 forces result drops when one tick produces
	// several results; every continuation must still resolve exactly
	// once, via delivery or via shutdown failure
	const calls = 3
	var invoked atomic.Int32
	var sent atomic.Bool

	b, err := New[string, int](
		WithDispatcher(testDispatcher()),
		WithPresentationInterval[string, int](time.Millisecond),
		WithLogicInterval[string, int](200*time.Millisecond),
		WithCallbackCapacity[string, int](1),
		WithLogic[string, int](func(ctx LogicContext[string, int]) {
			if sent.CompareAndSwap(false, true) {
				for i := 0; i < calls; i++ {
					ctx.SubmitCall(Command[string, int]{Op: testOpSet, Key: "k", Value: i}, func(CallbackRecord) {
						invoked.Add(1)
					})
				}
			}
		}),
	)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool { return b.Stats().DroppedResults > 0 }, 5*time.Second, time.Millisecond)

	require.NoError(t, b.Shutdown(context.Background()))
	require.NoError(t, <-runDone)

	assert.Equal(t, int32(calls), invoked.Load(),
		"every continuation resolves exactly once across delivery, drop recovery, and shutdown")
	assert.Zero(t, b.Stats().PendingContinuations)
}
