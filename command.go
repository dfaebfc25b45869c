package framebridge

// CommandOp is the logical type of a command, resolved to a handler by the
// consuming worker's [Dispatcher].
type CommandOp uint32

// Command is one unit of cross-thread work: an opaque, trivially-copyable
// payload submitted by the logic worker and applied to the shared store by
// the presentation worker (or vice versa on the return path).
//
// Commands have value semantics. They are copied into and out of the ring
// buffer; a payload must not reference mutable state shared across the
// thread boundary. Key and Value carry the command's arguments; their
// meaning is defined entirely by the handler registered for Op.
type Command[K comparable, V any] struct {
	// Value is the command argument, typically the value to write.
	Value V

	// Key addresses an entry of the shared store, when relevant to Op.
	Key K

	// Correlation links this command to a pending continuation on the
	// submitting side. Zero means fire-and-forget: no result is produced,
	// and faults are only logged.
	Correlation uint64

	// Op selects the handler that will process this command.
	Op CommandOp
}

// WantsResult reports whether the submitter registered a continuation for
// this command.
func (c Command[K, V]) WantsResult() bool {
	return c.Correlation != 0
}

// CallbackRecord delivers the result (or error) of a correlated command
// back to the worker that submitted it. Each record is consumed exactly
// once: the matching continuation is removed from the pending table before
// it runs.
type CallbackRecord struct {
	// Value is the result payload. Nil when Err is set.
	Value any

	// Err is the failure that prevented a result, if any.
	Err error

	// ID is the correlation id the record answers.
	ID uint64
}
