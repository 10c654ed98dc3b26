package renderq

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startSystem(t *testing.T, api RenderAPI, opts ...Option) *RenderSystem {
	t.Helper()
	rs := NewRenderSystem(api, append([]Option{WithIdleInterval(time.Millisecond)}, opts...)...)
	if err := rs.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rs.Shutdown(ctx)
	})
	return rs
}

func TestRenderSystemLifecycle(t *testing.T) {
	rs := NewRenderSystem(newMockAPI())
	if err := rs.Shutdown(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Shutdown before Start = %v, want ErrNotStarted", err)
	}
	if rs.RenderThreadID() != 0 {
		t.Error("RenderThreadID before Start should be zero")
	}
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rs.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if !rs.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if rs.RenderThreadID() == CurrentThread() {
		t.Error("render thread must not be the caller's goroutine")
	}
	if err := rs.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if rs.IsRunning() {
		t.Error("IsRunning() = true after Shutdown")
	}
	if err := rs.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Start after Shutdown = %v, want ErrAlreadyStarted", err)
	}
	if err := rs.QueueCommand(func() {}, false); !errors.Is(err, ErrRenderThreadStopped) {
		t.Errorf("QueueCommand after Shutdown = %v, want ErrRenderThreadStopped", err)
	}
}

func TestRenderSystemQueueCommandBlocking(t *testing.T) {
	rs := startSystem(t, newMockAPI())

	var ran ThreadID
	if err := rs.QueueCommand(func() { ran = CurrentThread() }, true); err != nil {
		t.Fatalf("QueueCommand() = %v", err)
	}
	if ran != rs.RenderThreadID() {
		t.Errorf("command ran on %s, want render thread %s", ran, rs.RenderThreadID())
	}
}

func TestRenderSystemQueueReturnCommand(t *testing.T) {
	rs := startSystem(t, newMockAPI())

	op, err := rs.QueueReturnCommand(func(op *AsyncOp) { op.MarkAsResolved("handle") }, true)
	if err != nil {
		t.Fatal(err)
	}
	if !op.IsResolved() {
		t.Fatal("blocking QueueReturnCommand returned an unresolved AsyncOp")
	}
	if v, _ := ReturnValueAs[string](op); v != "handle" {
		t.Errorf("value = %q, want %q", v, "handle")
	}

	op, err = rs.QueueReturnCommand(func(*AsyncOp) {}, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := op.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if op.ReturnValue() != nil {
		t.Errorf("auto-resolved value = %v, want nil", op.ReturnValue())
	}
}

func TestRenderSystemBlockBeforeStart(t *testing.T) {
	rs := NewRenderSystem(newMockAPI(), WithIdleInterval(time.Millisecond))
	if err := rs.QueueCommand(func() {}, true); !errors.Is(err, ErrNotStarted) {
		t.Errorf("blocking QueueCommand before Start = %v, want ErrNotStarted", err)
	}

	// Non-blocking commands queued before Start run once started.
	var ran atomic.Bool
	if err := rs.QueueCommand(func() { ran.Store(true) }, false); err != nil {
		t.Fatal(err)
	}
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rs.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("command queued before Start never ran")
	}
}

func TestRenderSystemInlineOnRenderThread(t *testing.T) {
	rs := startSystem(t, newMockAPI())

	var order []string
	err := rs.QueueCommand(func() {
		order = append(order, "outer")
		if err := rs.QueueCommand(func() { order = append(order, "inner") }, true); err != nil {
			t.Errorf("nested QueueCommand = %v", err)
		}
		op, err := rs.QueueReturnCommand(func(op *AsyncOp) { op.MarkAsResolved(1) }, true)
		if err != nil || !op.IsResolved() {
			t.Errorf("nested QueueReturnCommand = %v, %v", op, err)
		}
		if err := rs.CheckRenderThread(); err != nil {
			t.Errorf("CheckRenderThread on render thread = %v", err)
		}
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"outer", "inner"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if err := rs.CheckRenderThread(); !errors.Is(err, ErrNotRenderThread) {
		t.Errorf("CheckRenderThread off render thread = %v, want ErrNotRenderThread", err)
	}
}

func TestRenderSystemDrainsContextsBeforeQueue(t *testing.T) {
	api := newMockAPI()
	rs := startSystem(t, api)
	dc := rs.CreateDeferredContext()

	_ = dc.Draw(0, 3)
	_ = dc.SubmitToGPU()
	if err := rs.QueueCommand(func() { _ = api.record("Marker") }, true); err != nil {
		t.Fatal(err)
	}

	names := api.Names()
	if i, j := slices.Index(names, "Draw"), slices.Index(names, "Marker"); i < 0 || j < 0 || i > j {
		t.Errorf("calls = %v, want Draw before Marker", names)
	}
	if api.LastThread() != rs.RenderThreadID() {
		t.Error("RenderAPI was called off the render thread")
	}
}

func TestRenderSystemUpdateCallbacks(t *testing.T) {
	rs := NewRenderSystem(newMockAPI(), WithIdleInterval(time.Millisecond))
	var pre, post atomic.Int64
	rs.AddPreUpdateCallback(func() { pre.Add(1) })
	rs.AddPostUpdateCallback(func() { post.Add(1) })
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}
	defer rs.Shutdown(context.Background())

	err := rs.QueueCommand(func() {
		if p, q := pre.Load(), post.Load(); p != q+1 {
			t.Errorf("inside iteration pre = %d, post = %d, want pre == post+1", p, q)
		}
	}, true)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRenderSystemSubmitContext(t *testing.T) {
	api := newMockAPI()
	rs := startSystem(t, api)
	dc := rs.CreateDeferredContext()

	_ = dc.BeginFrame()
	_ = dc.ClearRenderTarget(ClearAll, Color{A: 1}, 1, 0)
	_ = dc.EndFrame()
	if err := rs.SubmitContext(dc, true); err != nil {
		t.Fatalf("SubmitContext() = %v", err)
	}
	if want := []string{"BeginFrame", "ClearRenderTarget", "EndFrame"}; !slices.Equal(api.Names(), want) {
		t.Errorf("calls = %v, want %v", api.Names(), want)
	}

	other := NewRenderSystem(newMockAPI())
	if err := other.SubmitContext(dc, false); err == nil {
		t.Error("SubmitContext with a foreign context should fail")
	}
}

func TestRenderSystemPlaybackOffRenderThread(t *testing.T) {
	rs := startSystem(t, newMockAPI())
	dc := rs.CreateDeferredContext()
	if err := dc.PlaybackCommands(newMockAPI()); !errors.Is(err, ErrNotRenderThread) {
		t.Errorf("PlaybackCommands off render thread = %v, want ErrNotRenderThread", err)
	}
}

func TestRenderSystemShutdownCompletesReadyWork(t *testing.T) {
	rs := NewRenderSystem(newMockAPI(), WithIdleInterval(time.Hour))
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}

	var n atomic.Int64
	for range 100 {
		if err := rs.QueueCommand(func() { n.Add(1) }, false); err != nil {
			t.Fatal(err)
		}
	}
	if err := rs.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := n.Load(); got != 100 {
		t.Errorf("executed %d commands before shutdown, want 100", got)
	}
}

func TestRenderSystemPanicStopsLoop(t *testing.T) {
	rs := NewRenderSystem(newMockAPI(), WithIdleInterval(time.Millisecond))
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	_ = rs.QueueCommand(func() { <-gate; panic("device lost") }, false)

	// Queued behind the panicking command; must be released, not hung.
	waitErr := make(chan error)
	go func() {
		_, err := rs.QueueReturnCommand(func(*AsyncOp) {}, true)
		waitErr <- err
	}()
	time.Sleep(5 * time.Millisecond)
	close(gate)

	select {
	case err := <-waitErr:
		if !errors.Is(err, ErrRenderThreadStopped) {
			t.Errorf("waiter error = %v, want ErrRenderThreadStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not released after render thread panic")
	}

	<-rs.Done()
	if rs.Err() == nil {
		t.Error("Err() = nil after panic")
	}
	if err := rs.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown after panic should report the terminal error")
	}
}

func TestRenderSystemConcurrentProducers(t *testing.T) {
	rs := startSystem(t, newMockAPI())

	const producers, perProducer = 8, 50
	var executed atomic.Int64
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				op, err := rs.QueueReturnCommand(func(op *AsyncOp) {
					executed.Add(1)
					op.MarkAsResolved(p*perProducer + i)
				}, i%2 == 0)
				if err != nil {
					t.Error(err)
					return
				}
				if i%2 == 0 && !op.IsResolved() {
					t.Error("blocking command returned before execution")
				}
			}
		}()
	}
	wg.Wait()
	if err := rs.QueueCommand(func() {}, true); err != nil {
		t.Fatal(err)
	}
	if got := executed.Load(); got != producers*perProducer {
		t.Errorf("executed %d, want %d", got, producers*perProducer)
	}
}

func TestRenderSystemStats(t *testing.T) {
	api := newMockAPI()
	rs := startSystem(t, api)
	dc := rs.CreateDeferredContext()

	_ = dc.Draw(0, 3)
	_ = dc.Draw(3, 3)
	if err := rs.SubmitContext(dc, true); err != nil {
		t.Fatal(err)
	}

	s := rs.Stats()
	if !s.Running || len(s.Contexts) != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if s.FramesSubmitted != 1 || s.FramesPlayed != 1 || s.GPUCommands != 2 {
		t.Errorf("frame stats = %+v", s)
	}
	if s.QueuedCommands == 0 || s.ExecutedCommands == 0 || s.QueueBatches == 0 {
		t.Errorf("queue stats = %+v", s)
	}
	if s.Contexts[0].ID != dc.ID() {
		t.Errorf("context id = %v, want %v", s.Contexts[0].ID, dc.ID())
	}

	rs.ReleaseDeferredContext(dc)
	if n := len(rs.Stats().Contexts); n != 0 {
		t.Errorf("released context still listed: %d contexts", n)
	}
	if err := dc.Draw(0, 1); !errors.Is(err, ErrContextReleased) {
		t.Errorf("Draw on released context = %v, want ErrContextReleased", err)
	}
}

func TestRenderSystemDrainsSubmittedContext(t *testing.T) {
	api := newMockAPI()
	rs := startSystem(t, api)
	dc := rs.CreateDeferredContext()

	_ = dc.SetViewport(FullViewport)
	_ = dc.Draw(0, 3)
	if err := dc.SubmitToGPU(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rs.Stats().FramesPlayed == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("calls = %v, registered context was not drained by the loop", api.Names())
		}
		time.Sleep(time.Millisecond)
	}
	if want := []string{"SetViewport", "Draw"}; !slices.Equal(api.Names(), want) {
		t.Errorf("calls = %v, want %v", api.Names(), want)
	}
}

func TestRenderSystemPanicResolvesPendingOps(t *testing.T) {
	rs := NewRenderSystem(newMockAPI(), WithIdleInterval(time.Millisecond))
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	if err := rs.QueueCommand(func() { <-gate; panic("device lost") }, false); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	op, err := rs.QueueReturnCommand(func(op *AsyncOp) { op.MarkAsResolved(1) }, false)
	if err != nil {
		t.Fatal(err)
	}
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := op.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v, op accepted before the panic was never resolved", err)
	}
	if v := op.ReturnValue(); v != nil {
		t.Errorf("ReturnValue() = %v, want nil for a command that never ran", v)
	}

	<-rs.Done()
	if _, err := rs.QueueReturnCommand(func(*AsyncOp) {}, false); !errors.Is(err, ErrRenderThreadStopped) {
		t.Errorf("QueueReturnCommand after panic = %v, want ErrRenderThreadStopped", err)
	}
}

func TestRenderSystemShutdownResolvesAcceptedOps(t *testing.T) {
	for range 50 {
		rs := NewRenderSystem(newMockAPI(), WithIdleInterval(time.Millisecond))
		if err := rs.Start(); err != nil {
			t.Fatal(err)
		}

		opsc := make(chan []*AsyncOp)
		go func() {
			var ops []*AsyncOp
			for {
				op, err := rs.QueueReturnCommand(func(*AsyncOp) {}, false)
				if err != nil {
					opsc <- ops
					return
				}
				ops = append(ops, op)
			}
		}()
		time.Sleep(100 * time.Microsecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rs.Shutdown(ctx); err != nil {
			cancel()
			t.Fatal(err)
		}
		cancel()

		for i, op := range <-opsc {
			if !op.IsResolved() {
				t.Fatalf("op %d accepted before shutdown was never resolved", i)
			}
		}
	}
}
