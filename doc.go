// Package framebridge provides lock-free cross-goroutine plumbing for
// programs split into a logic worker and a presentation worker, built
// around bounded single-producer single-consumer command channels and a
// double-buffered key-value store with incremental synchronization.
//
// # Architecture
//
// Three primitives compose the package:
//   - [CommandQueue]: a bounded SPSC ring channel with non-blocking
//     submission and batch consumption
//   - [DoubleBufferedStore]: a two-buffer map whose writer mutates a back
//     buffer while readers see a stable front buffer, reconciled by an
//     explicit swap that patches only dirty keys
//   - [Bridge]: the assembly that owns two queues (commands one way,
//     results the other), the store, and both worker loops
//
// The [Bridge] is optional; the queues and the store stand alone.
//
// # Thread Safety
//
// Each [CommandQueue] tolerates exactly one producer goroutine and one
// consumer goroutine; within that discipline Submit and ConsumeAll are
// lock-free. The [DoubleBufferedStore]'s back buffer belongs to a single
// writer goroutine; front-buffer reads and the swap synchronize through a
// reader-writer lock, so readers only wait during the bounded swap
// critical section.
//
// # Execution Model
//
// The logic loop and the presentation loop tick on independent cadences.
// Per presentation tick: drain the command channel applying each command
// to the back buffer, run the render work against the front buffer, then
// swap. Per logic tick: drain the result channel delivering each record
// to its registered continuation, expire overdue continuations, then run
// the domain logic, which may submit further commands.
//
// Backpressure is loss, not blocking: a full channel rejects the
// submission, the producer is told, and a drop counter advances.
//
// # Usage
//
//	dispatcher := framebridge.NewDispatcher[string, int]()
//	dispatcher.Register(opSet, func(ctx framebridge.ApplyContext[string, int], cmd framebridge.Command[string, int]) (any, error) {
//	    ctx.Set(cmd.Key, cmd.Value)
//	    return nil, nil
//	})
//
//	bridge, err := framebridge.New[string, int](
//	    framebridge.WithDispatcher(dispatcher),
//	    framebridge.WithLogic[string, int](func(ctx framebridge.LogicContext[string, int]) {
//	        ctx.Submit(framebridge.Command[string, int]{Op: opSet, Key: "score", Value: 1})
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go bridge.Run(context.Background())
//	defer bridge.Shutdown(context.Background())
package framebridge
