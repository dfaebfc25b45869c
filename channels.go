package framebridge

import "github.com/joeycumines/logiface"

// Specialized channel constructors. Each is a [CommandQueue] of a concrete
// payload type with overflow logging wired in; the concurrency discipline
// (one producer goroutine, one consumer goroutine) is the queue's, not
// theirs.

// NewPresentationChannel returns the logic-to-presentation command
// channel. Rejected commands are logged at warning level with their
// opcode and correlation id before being dropped.
func NewPresentationChannel[K comparable, V any](capacity int, logger *logiface.Logger[logiface.Event]) *CommandQueue[Command[K, V]] {
	return NewCommandQueue[Command[K, V]](capacity, WithQueueHooks(QueueHooks[Command[K, V]]{
		OnQueueFull: func(cmd Command[K, V]) {
			logger.Warning().
				Int("op", int(cmd.Op)).
				Uint64("correlation", cmd.Correlation).
				Log("presentation channel full, dropping command")
		},
	}))
}

// NewCallbackChannel returns the presentation-to-logic result channel.
func NewCallbackChannel(capacity int, logger *logiface.Logger[logiface.Event]) *CommandQueue[CallbackRecord] {
	return NewCommandQueue[CallbackRecord](capacity, WithQueueHooks(QueueHooks[CallbackRecord]{
		OnQueueFull: func(rec CallbackRecord) {
			logger.Warning().
				Uint64("id", rec.ID).
				Log("callback channel full, dropping result")
		},
	}))
}

// AudioCommand is a fire-and-forget playback request. Audio commands carry
// no correlation id; a dropped one is inaudible, not incorrect.
type AudioCommand struct {
	Gain   float64
	Source uint64
	Op     CommandOp
}

// NewAudioChannel returns a channel for playback requests. Overflow is
// logged at debug level only, since dropping audio under load is the
// intended degradation.
func NewAudioChannel(capacity int, logger *logiface.Logger[logiface.Event]) *CommandQueue[AudioCommand] {
	return NewCommandQueue[AudioCommand](capacity, WithQueueHooks(QueueHooks[AudioCommand]{
		OnQueueFull: func(cmd AudioCommand) {
			logger.Debug().
				Int("op", int(cmd.Op)).
				Uint64("source", cmd.Source).
				Log("audio channel full, dropping command")
		},
	}))
}

// ResourceCommand requests asynchronous acquisition or release of a named
// resource, with the result delivered through the correlation id.
type ResourceCommand struct {
	Path        string
	Correlation uint64
	Op          CommandOp
}

// NewResourceChannel returns a channel for resource requests.
func NewResourceChannel(capacity int, logger *logiface.Logger[logiface.Event]) *CommandQueue[ResourceCommand] {
	return NewCommandQueue[ResourceCommand](capacity, WithQueueHooks(QueueHooks[ResourceCommand]{
		OnQueueFull: func(cmd ResourceCommand) {
			logger.Warning().
				Int("op", int(cmd.Op)).
				Str("path", cmd.Path).
				Log("resource channel full, dropping command")
		},
	}))
}
