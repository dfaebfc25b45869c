package framebridge

// QueueStats is a point-in-time snapshot of a [CommandQueue]'s counters.
// Length is approximate under concurrent use; the monotonic totals are
// exact.
type QueueStats struct {
	Submitted uint64
	Consumed  uint64
	Dropped   uint64
	Capacity  int
	Length    int
}

// StoreStats is a point-in-time snapshot of a [DoubleBufferedStore]'s
// swap counters. DirtyRatioAvg is a running exponential average of dirty
// keys over front-buffer size at swap time, a signal for whether dirty
// tracking is paying for itself.
type StoreStats struct {
	Swaps         uint64
	SwapFailures  uint64
	FullCopies    uint64
	DirtyRatioAvg float64
	FrontSize     int
}

// BridgeStats aggregates the counters of every component a [Bridge] owns.
type BridgeStats struct {
	Commands  QueueStats
	Callbacks QueueStats
	Store     StoreStats

	PresentationTicks uint64
	LogicTicks        uint64

	PresentationTiming TickStats
	LogicTiming        TickStats

	// HandlerFaults counts commands whose handler returned an error or
	// panicked. DroppedResults counts result records discarded because
	// the callback channel was full.
	HandlerFaults  uint64
	DroppedResults uint64

	PendingContinuations int

	State BridgeState
}

// statsOf snapshots a queue's counters.
func statsOf[T any](q *CommandQueue[T]) QueueStats {
	return QueueStats{
		Submitted: q.TotalSubmitted(),
		Consumed:  q.TotalConsumed(),
		Dropped:   q.TotalDropped(),
		Capacity:  q.Capacity(),
		Length:    q.Length(),
	}
}
