package framebridge_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-framebridge"
)

const opSetScore framebridge.CommandOp = 1

// Example wires a logic worker to a presentation worker: the logic side
// submits a score update, the presentation side applies it to the back
// buffer, and after the next swap the logic side observes it through the
// front buffer.
func Example() {
	dispatcher := framebridge.NewDispatcher[string, int]()
	dispatcher.Register(opSetScore, func(ctx framebridge.ApplyContext[string, int], cmd framebridge.Command[string, int]) (any, error) {
		ctx.Set(cmd.Key, cmd.Value)
		return nil, nil
	})

	observed := make(chan int, 1)
	var submitted atomic.Bool

	bridge, err := framebridge.New[string, int](
		framebridge.WithDispatcher(dispatcher),
		framebridge.WithPresentationInterval[string, int](time.Millisecond),
		framebridge.WithLogicInterval[string, int](time.Millisecond),
		framebridge.WithLogic[string, int](func(ctx framebridge.LogicContext[string, int]) {
			if submitted.CompareAndSwap(false, true) {
				ctx.Submit(framebridge.Command[string, int]{Op: opSetScore, Key: "score", Value: 9001})
				return
			}
			if v, ok := ctx.Front().Get("score"); ok {
				select {
				case observed <- v:
				default:
				}
			}
		}),
	)
	if err != nil {
		panic(err)
	}

	go func() { _ = bridge.Run(context.Background()) }()
	defer func() { _ = bridge.Shutdown(context.Background()) }()

	fmt.Println("score:", <-observed)
	// Output: score: 9001
}
