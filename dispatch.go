package framebridge

import "fmt"

// ApplyContext is the mutation surface a command handler works through.
// Writes go to the back buffer and mark the touched key dirty, so the next
// swap carries them to readers; a handler never sees or mutates the front
// buffer.
type ApplyContext[K comparable, V any] struct {
	store *DoubleBufferedStore[K, V]
}

// Get reads a key from the back buffer.
func (a ApplyContext[K, V]) Get(key K) (V, bool) {
	return a.store.GetBack().Get(key)
}

// Set writes a key to the back buffer and marks it dirty.
func (a ApplyContext[K, V]) Set(key K, value V) {
	a.store.GetBack().Set(key, value)
	a.store.MarkDirty(key)
}

// Delete removes a key from the back buffer and marks it dirty, so the
// deletion propagates to the front buffer on the next swap.
func (a ApplyContext[K, V]) Delete(key K) {
	a.store.GetBack().Delete(key)
	a.store.MarkDirty(key)
}

// HandlerFunc applies one command against the back buffer. The returned
// value is delivered to the command's continuation when one is registered;
// a non-nil error (or a panic, which is recovered and wrapped) is
// delivered in its place.
type HandlerFunc[K comparable, V any] func(ctx ApplyContext[K, V], cmd Command[K, V]) (any, error)

// Dispatcher maps command opcodes to handlers. Register the full table
// before the bridge starts; the map is read without synchronization once
// the workers are running.
type Dispatcher[K comparable, V any] struct {
	handlers map[CommandOp]HandlerFunc[K, V]
}

// NewDispatcher returns an empty handler table.
func NewDispatcher[K comparable, V any]() *Dispatcher[K, V] {
	return &Dispatcher[K, V]{handlers: make(map[CommandOp]HandlerFunc[K, V])}
}

// Register installs the handler for an opcode, replacing any previous
// registration. A nil handler panics.
func (d *Dispatcher[K, V]) Register(op CommandOp, fn HandlerFunc[K, V]) *Dispatcher[K, V] {
	if fn == nil {
		panic(fmt.Errorf("framebridge: nil handler for op %d", op))
	}
	d.handlers[op] = fn
	return d
}

// dispatch resolves and runs the handler for cmd, converting a panic into
// an error so one misbehaving command cannot take down the presentation
// worker.
func (d *Dispatcher[K, V]) dispatch(ctx ApplyContext[K, V], cmd Command[K, V]) (result any, err error) {
	fn, ok := d.handlers[cmd.Op]
	if !ok {
		return nil, fmt.Errorf("%w: op %d", ErrNoHandler, cmd.Op)
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Value: r}
		}
	}()
	return fn(ctx, cmd)
}
