// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderq

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Render system lifecycle states.
const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// RenderSystem owns the render thread: a goroutine, pinned to its OS thread
// by default, that is the only caller of the RenderAPI.
//
// Each iteration of the render loop runs the pre-update callbacks, plays
// back the ready buffer of every registered DeferredContext, executes the
// global command queue, and runs the post-update callbacks. The loop sleeps
// between iterations until new work arrives or the idle interval elapses.
//
// A RenderSystem is started once and shut down once; it cannot be restarted.
type RenderSystem struct {
	api  RenderAPI
	opts options

	queue          *CommandQueue
	nextCallbackID atomic.Uint32

	waitersMu sync.Mutex
	waiters   map[uint32]chan struct{}

	// mu protects the context and callback lists. The lists are replaced,
	// never mutated in place, so the render loop can iterate a snapshot.
	mu         sync.Mutex
	contexts   []*DeferredContext
	preUpdate  []func()
	postUpdate []func()

	// acceptMu orders appends to queue against the transition to
	// stateStopped: once the state is stopped under the write lock, no
	// command can be added that the loop would not see.
	acceptMu     sync.RWMutex
	state        atomic.Int32
	renderThread atomic.Int64

	wake     chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	errMu sync.Mutex
	err   error

	stats systemCounters
}

// NewRenderSystem creates a render system that executes commands against
// api. Call Start to launch the render thread.
func NewRenderSystem(api RenderAPI, opts ...Option) *RenderSystem {
	o := newOptions(opts)
	return &RenderSystem{
		api:     api,
		opts:    o,
		queue:   NewCommandQueue(true, o.queueCapacity),
		waiters: make(map[uint32]chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// logger resolves the logger on every use, so SetLogger takes effect on a
// running system unless WithLogger pinned one.
func (rs *RenderSystem) logger() *slog.Logger { return rs.opts.log() }

// API returns the RenderAPI commands execute against. It must only be
// used from the render thread.
func (rs *RenderSystem) API() RenderAPI { return rs.api }

// Start launches the render thread and returns once it is running.
func (rs *RenderSystem) Start() error {
	if !rs.state.CompareAndSwap(stateIdle, stateRunning) {
		return ErrAlreadyStarted
	}
	ready := make(chan struct{})
	go rs.run(ready)
	<-ready
	rs.logger().Info("renderq: render thread started",
		"thread", rs.RenderThreadID().String(),
		"lockOSThread", rs.opts.lockOSThread)
	return nil
}

// Shutdown stops the render thread after it has executed the work that was
// ready when Shutdown was called. It waits for the thread to exit or for
// ctx to be done. Called from the render thread itself, it only requests
// the stop.
//
// The returned error is the render loop's terminal error, if any.
func (rs *RenderSystem) Shutdown(ctx context.Context) error {
	if rs.state.Load() == stateIdle {
		return ErrNotStarted
	}
	rs.stopOnce.Do(func() { close(rs.stop) })
	if rs.IsRenderThread() {
		return nil
	}
	select {
	case <-rs.stopped:
		return rs.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed when the render thread has exited.
func (rs *RenderSystem) Done() <-chan struct{} { return rs.stopped }

// Err returns the error that stopped the render loop, or nil.
func (rs *RenderSystem) Err() error {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	return rs.err
}

func (rs *RenderSystem) setErr(err error) {
	rs.errMu.Lock()
	if rs.err == nil {
		rs.err = err
	}
	rs.errMu.Unlock()
}

// IsRunning reports whether the render thread is running.
func (rs *RenderSystem) IsRunning() bool { return rs.state.Load() == stateRunning }

// RenderThreadID returns the id of the render goroutine, or zero before
// Start.
func (rs *RenderSystem) RenderThreadID() ThreadID {
	return ThreadID(rs.renderThread.Load())
}

// IsRenderThread reports whether the caller is the render thread.
func (rs *RenderSystem) IsRenderThread() bool {
	id := rs.renderThread.Load()
	return id != 0 && ThreadID(id) == CurrentThread()
}

// CheckRenderThread returns ErrNotRenderThread unless the caller is the
// render thread.
func (rs *RenderSystem) CheckRenderThread() error {
	if !rs.IsRenderThread() {
		return ErrNotRenderThread
	}
	return nil
}

func (rs *RenderSystem) wakeUp() {
	select {
	case rs.wake <- struct{}{}:
	default:
	}
}

func (rs *RenderSystem) run(ready chan<- struct{}) {
	if rs.opts.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	rs.renderThread.Store(int64(CurrentThread()))
	close(ready)
	defer rs.finish()

	ticker := time.NewTicker(rs.opts.idleInterval)
	defer ticker.Stop()

	for {
		if err := rs.iterate(); err != nil {
			rs.setErr(err)
			return
		}
		select {
		case <-rs.stop:
			// Refuse new commands, then complete everything accepted so far.
			rs.closeQueue()
			if err := rs.iterate(); err != nil {
				rs.setErr(err)
			}
			return
		case <-rs.wake:
		case <-ticker.C:
		}
	}
}

// finish marks the system stopped. Blocked callers observe the closed
// stopped channel and return ErrRenderThreadStopped.
func (rs *RenderSystem) finish() {
	rs.closeQueue()
	// Left over only when the loop stopped on an error.
	if list := rs.queue.Flush(); list != nil {
		n := list.abandon()
		rs.logger().Warn("renderq: discarded commands after render thread failure",
			"commands", list.Len(), "resolved", n)
	}
	rs.waitersMu.Lock()
	clear(rs.waiters)
	rs.waitersMu.Unlock()
	close(rs.stopped)

	if err := rs.Err(); err != nil {
		rs.logger().Error("renderq: render thread stopped", "err", err)
		return
	}
	rs.logger().Info("renderq: render thread stopped", "iterations", rs.stats.iterations.Load())
}

// closeQueue moves the system to stateStopped. After it returns no
// command can be appended to the global queue.
func (rs *RenderSystem) closeQueue() {
	rs.acceptMu.Lock()
	rs.state.Store(stateStopped)
	rs.acceptMu.Unlock()
}

// iterate runs one pass of the render loop. A panic in any callback or
// backend call is recovered and returned as an error; the commands of the
// interrupted batch that did not run have their AsyncOps resolved with nil.
func (rs *RenderSystem) iterate() (err error) {
	var pending CommandList
	defer func() {
		if r := recover(); r != nil {
			pending.abandon()
			err = fmt.Errorf("renderq: render thread panic: %v", r)
			rs.logger().Error("renderq: recovered panic on render thread",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	rs.stats.iterations.Add(1)

	rs.mu.Lock()
	contexts, pre, post := rs.contexts, rs.preUpdate, rs.postUpdate
	rs.mu.Unlock()

	for _, fn := range pre {
		fn()
	}
	for _, dc := range contexts {
		if perr := dc.PlaybackCommands(rs.api); perr != nil {
			rs.logger().Debug("renderq: context playback failed", "context", dc.id.String(), "err", perr)
		}
	}
	if list := rs.queue.Flush(); list != nil {
		n := list.Len()
		rs.stats.queueBatches.Add(1)
		pending = list
		rs.queue.Playback(list, rs.notify)
		pending = nil
		rs.stats.executedCommands.Add(uint64(n))
	}
	for _, fn := range post {
		fn()
	}
	return nil
}

func (rs *RenderSystem) notify(callbackID uint32) {
	rs.waitersMu.Lock()
	ch, ok := rs.waiters[callbackID]
	delete(rs.waiters, callbackID)
	rs.waitersMu.Unlock()
	if ok {
		close(ch)
	}
}

func (rs *RenderSystem) newWaiter() (uint32, chan struct{}) {
	id := rs.nextCallbackID.Add(1)
	ch := make(chan struct{})
	rs.waitersMu.Lock()
	rs.waiters[id] = ch
	rs.waitersMu.Unlock()
	return id, ch
}

func (rs *RenderSystem) dropWaiter(id uint32) {
	rs.waitersMu.Lock()
	delete(rs.waiters, id)
	rs.waitersMu.Unlock()
}

func (rs *RenderSystem) wait(ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-rs.stopped:
		select {
		case <-ch:
			return nil
		default:
		}
		return rs.stoppedErr()
	}
}

func (rs *RenderSystem) stoppedErr() error {
	if err := rs.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRenderThreadStopped, err)
	}
	return ErrRenderThreadStopped
}

// enqueue runs add while the system is accepting commands. Commands may
// be queued before Start, but nobody could wait for them.
func (rs *RenderSystem) enqueue(op string, block bool, add func() error) error {
	rs.acceptMu.RLock()
	defer rs.acceptMu.RUnlock()
	switch rs.state.Load() {
	case stateIdle:
		if block {
			return fmt.Errorf("renderq: %s: %w", op, ErrNotStarted)
		}
	case stateStopped:
		return fmt.Errorf("renderq: %s: %w", op, rs.stoppedErr())
	}
	if err := add(); err != nil {
		return err
	}
	rs.stats.queuedCommands.Add(1)
	return nil
}

// QueueCommand queues fn for execution on the render thread. Any goroutine
// may call it. When block is true the caller waits until fn has executed.
//
// Called on the render thread, fn runs immediately.
func (rs *RenderSystem) QueueCommand(fn func(), block bool) error {
	const op = "queue command"
	if fn == nil {
		return fmt.Errorf("renderq: %s: nil callback", op)
	}
	if rs.IsRenderThread() {
		fn()
		return nil
	}
	if !block {
		if err := rs.enqueue(op, false, func() error { return rs.queue.Queue(fn, false, 0) }); err != nil {
			return err
		}
		rs.wakeUp()
		return nil
	}

	id, ch := rs.newWaiter()
	if err := rs.enqueue(op, true, func() error { return rs.queue.Queue(fn, true, id) }); err != nil {
		rs.dropWaiter(id)
		return err
	}
	rs.wakeUp()
	return rs.wait(ch)
}

// QueueReturnCommand queues fn for execution on the render thread and
// returns the AsyncOp fn resolves. If fn returns without resolving it, the
// AsyncOp is resolved with nil. When block is true the caller waits until
// fn has executed, so the returned AsyncOp is resolved.
//
// Called on the render thread, fn runs immediately.
func (rs *RenderSystem) QueueReturnCommand(fn func(op *AsyncOp), block bool) (*AsyncOp, error) {
	const op = "queue return command"
	if fn == nil {
		return nil, fmt.Errorf("renderq: %s: nil callback", op)
	}
	if rs.IsRenderThread() {
		aop := NewAsyncOp()
		fn(aop)
		aop.CompleteOperation()
		return aop, nil
	}
	var aop *AsyncOp
	if !block {
		err := rs.enqueue(op, false, func() (err error) {
			aop, err = rs.queue.QueueReturn(fn, false, 0)
			return err
		})
		if err != nil {
			return nil, err
		}
		rs.wakeUp()
		return aop, nil
	}

	id, ch := rs.newWaiter()
	err := rs.enqueue(op, true, func() (err error) {
		aop, err = rs.queue.QueueReturn(fn, true, id)
		return err
	})
	if err != nil {
		rs.dropWaiter(id)
		return nil, err
	}
	rs.wakeUp()
	return aop, rs.wait(ch)
}

// CreateDeferredContext creates a context bound to the calling goroutine
// and registers it with the render loop. opts override the system's
// options for this context.
func (rs *RenderSystem) CreateDeferredContext(opts ...Option) *DeferredContext {
	o := rs.opts
	for _, opt := range opts {
		opt(&o)
	}
	dc := newDeferredContext(rs, o)

	rs.mu.Lock()
	rs.contexts = append(slices.Clip(rs.contexts), dc)
	n := len(rs.contexts)
	rs.mu.Unlock()

	rs.logger().Debug("renderq: deferred context created",
		"context", dc.id.String(), "owner", dc.Owner().String(), "contexts", n)
	return dc
}

// ReleaseDeferredContext unregisters dc and discards its pending commands.
func (rs *RenderSystem) ReleaseDeferredContext(dc *DeferredContext) {
	rs.mu.Lock()
	if i := slices.Index(rs.contexts, dc); i >= 0 {
		rs.contexts = slices.Delete(slices.Clone(rs.contexts), i, i+1)
	}
	rs.mu.Unlock()
	dc.release()
}

// SubmitContext submits dc's recorded commands and queues their playback
// on the render thread. When block is true the caller waits until the
// commands have executed. It must be called from dc's owning goroutine.
func (rs *RenderSystem) SubmitContext(dc *DeferredContext, block bool) error {
	if dc.system != rs {
		return fmt.Errorf("renderq: submit context: context %s is not registered with this render system", dc.id)
	}
	if err := dc.SubmitToGPU(); err != nil {
		return err
	}
	return rs.QueueCommand(func() {
		if err := dc.PlaybackCommands(rs.api); err != nil {
			rs.logger().Debug("renderq: context playback failed", "context", dc.id.String(), "err", err)
		}
	}, block)
}

// AddPreUpdateCallback registers fn to run on the render thread at the
// start of every loop iteration.
func (rs *RenderSystem) AddPreUpdateCallback(fn func()) {
	rs.mu.Lock()
	rs.preUpdate = append(slices.Clip(rs.preUpdate), fn)
	rs.mu.Unlock()
}

// AddPostUpdateCallback registers fn to run on the render thread at the
// end of every loop iteration.
func (rs *RenderSystem) AddPostUpdateCallback(fn func()) {
	rs.mu.Lock()
	rs.postUpdate = append(slices.Clip(rs.postUpdate), fn)
	rs.mu.Unlock()
}

// Stats returns a snapshot of the system's counters.
func (rs *RenderSystem) Stats() Stats {
	rs.mu.Lock()
	contexts := rs.contexts
	rs.mu.Unlock()

	s := Stats{
		Running:          rs.IsRunning(),
		Iterations:       rs.stats.iterations.Load(),
		QueueBatches:     rs.stats.queueBatches.Load(),
		QueuedCommands:   rs.stats.queuedCommands.Load(),
		ExecutedCommands: rs.stats.executedCommands.Load(),
		Contexts:         make([]ContextStats, 0, len(contexts)),
	}
	for _, dc := range contexts {
		cs := dc.Stats()
		s.FramesSubmitted += cs.FramesSubmitted
		s.FramesDropped += cs.FramesDropped
		s.FramesPlayed += cs.FramesPlayed
		s.GPUCommands += cs.CommandsExecuted
		s.SubmitErrors += cs.SubmitErrors
		s.Contexts = append(s.Contexts, cs)
	}
	return s
}
