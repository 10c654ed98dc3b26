package renderq

import (
	"context"
	"sync"
	"sync/atomic"
)

// AsyncOp holds the result of a command that executes later on the render
// thread. The producer receives the AsyncOp immediately and may poll
// IsResolved, block on Done, or call Wait.
//
// Resolution happens once, on the consumer side. The value is written
// before the resolved flag is stored, so a reader that observes
// IsResolved() == true also observes the value.
type AsyncOp struct {
	value    any
	resolved atomic.Bool

	doneOnce sync.Once
	done     chan struct{}
}

// NewAsyncOp returns an unresolved AsyncOp.
func NewAsyncOp() *AsyncOp {
	return &AsyncOp{done: make(chan struct{})}
}

// IsResolved reports whether the operation has completed.
func (op *AsyncOp) IsResolved() bool {
	return op.resolved.Load()
}

// ReturnValue returns the resolved value, or nil if the operation has not
// been resolved yet. Callers should check IsResolved first.
func (op *AsyncOp) ReturnValue() any {
	if !op.resolved.Load() {
		return nil
	}
	return op.value
}

// ReturnValueAs returns the resolved value converted to T. The boolean is
// false when the operation is unresolved or the value is not a T.
func ReturnValueAs[T any](op *AsyncOp) (T, bool) {
	v, ok := op.ReturnValue().(T)
	return v, ok
}

// MarkAsResolved stores v and marks the operation resolved. Only the first
// call has an effect; it reports whether this call resolved the operation.
// Must be called from the goroutine executing the command.
func (op *AsyncOp) MarkAsResolved(v any) bool {
	resolvedNow := false
	op.doneOnce.Do(func() {
		op.value = v
		op.resolved.Store(true)
		close(op.done)
		resolvedNow = true
	})
	return resolvedNow
}

// CompleteOperation resolves the operation with a nil value.
func (op *AsyncOp) CompleteOperation() bool {
	return op.MarkAsResolved(nil)
}

// Done returns a channel that is closed once the operation is resolved.
func (op *AsyncOp) Done() <-chan struct{} {
	return op.done
}

// Wait blocks until the operation is resolved or ctx is done.
func (op *AsyncOp) Wait(ctx context.Context) error {
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
