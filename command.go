package renderq

import (
	"fmt"
	"sync"
)

// NotifyFunc is invoked by Playback after a command that requested
// notification has executed.
type NotifyFunc func(callbackID uint32)

// Command is a single queued callback. Exactly one of fn and fnReturn is
// set, depending on whether the command produces a value.
type Command struct {
	fn       func()
	fnReturn func(op *AsyncOp)
	asyncOp  *AsyncOp

	notify     bool
	callbackID uint32
}

// ReturnsValue reports whether the command resolves an AsyncOp.
func (c *Command) ReturnsValue() bool { return c.fnReturn != nil }

// CallbackID returns the id passed to the notify callback.
func (c *Command) CallbackID() uint32 { return c.callbackID }

// NotifyWhenComplete reports whether Playback calls notify after execution.
func (c *Command) NotifyWhenComplete() bool { return c.notify }

// AsyncOp returns the operation resolved by a returning command, or nil.
func (c *Command) AsyncOp() *AsyncOp { return c.asyncOp }

// execute runs the callback and resolves the AsyncOp with nil if the
// callback did not resolve it.
func (c *Command) execute() {
	if c.fnReturn == nil {
		c.fn()
		return
	}
	c.fnReturn(c.asyncOp)
	if !c.asyncOp.IsResolved() {
		c.asyncOp.CompleteOperation()
	}
}

// CommandList is a batch of commands taken from a CommandQueue by Flush.
type CommandList []Command

// Len returns the number of commands in the list.
func (l CommandList) Len() int { return len(l) }

// abandon resolves with nil the AsyncOp of every command in l that has not
// run, so that nobody waits on it forever. It returns how many it resolved.
func (l CommandList) abandon() int {
	n := 0
	for i := range l {
		if op := l[i].asyncOp; op != nil && op.CompleteOperation() {
			n++
		}
		l[i] = Command{}
	}
	return n
}

// CommandQueue accumulates commands from a producer goroutine until the
// consumer takes them with Flush and executes them with Playback.
//
// Unless created with allowAllThreads, only the goroutine that created the
// queue may add commands to it.
type CommandQueue struct {
	mu       sync.Mutex
	commands CommandList
	capacity int
	guard    threadGuard
}

// NewCommandQueue creates a queue owned by the calling goroutine.
// capacity is a hint for the size of each freshly allocated list.
func NewCommandQueue(allowAllThreads bool, capacity int) *CommandQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &CommandQueue{
		capacity: capacity,
		guard:    newThreadGuard(allowAllThreads),
	}
}

// Owner returns the goroutine the queue is bound to.
func (q *CommandQueue) Owner() ThreadID { return q.guard.owner }

// Queue appends a command that produces no value.
func (q *CommandQueue) Queue(fn func(), notifyWhenComplete bool, callbackID uint32) error {
	if fn == nil {
		return fmt.Errorf("renderq: queue: nil callback")
	}
	if err := q.guard.check("queue"); err != nil {
		return err
	}
	q.append(Command{fn: fn, notify: notifyWhenComplete, callbackID: callbackID})
	return nil
}

// QueueReturn appends a command whose callback resolves the returned
// AsyncOp. The AsyncOp is unresolved when QueueReturn returns.
func (q *CommandQueue) QueueReturn(fn func(op *AsyncOp), notifyWhenComplete bool, callbackID uint32) (*AsyncOp, error) {
	if fn == nil {
		return nil, fmt.Errorf("renderq: queue return: nil callback")
	}
	if err := q.guard.check("queue return"); err != nil {
		return nil, err
	}
	op := NewAsyncOp()
	q.append(Command{fnReturn: fn, asyncOp: op, notify: notifyWhenComplete, callbackID: callbackID})
	return op, nil
}

func (q *CommandQueue) append(c Command) {
	q.mu.Lock()
	if q.commands == nil {
		q.commands = make(CommandList, 0, q.capacity)
	}
	q.commands = append(q.commands, c)
	q.mu.Unlock()
}

// Flush takes every command queued so far and leaves the queue empty.
// It returns nil when nothing was queued since the previous Flush, so a
// non-nil list always holds at least one command.
func (q *CommandQueue) Flush() CommandList {
	q.mu.Lock()
	list := q.commands
	q.commands = nil
	q.mu.Unlock()
	if len(list) == 0 {
		return nil
	}
	return list
}

// IsEmpty reports whether the queue currently holds no commands.
// The answer may be stale as soon as it is returned.
func (q *CommandQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands) == 0
}

// Playback executes the commands of list in order on the calling
// goroutine. notify may be nil. Panics raised by callbacks propagate to
// the caller.
func (q *CommandQueue) Playback(list CommandList, notify NotifyFunc) {
	for i := range list {
		c := &list[i]
		c.execute()
		if c.notify && notify != nil {
			notify(c.callbackID)
		}
		// Drop closure references early; the list may be large.
		list[i] = Command{}
	}
}
