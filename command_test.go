package renderq

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestCommandQueueFIFO(t *testing.T) {
	q := NewCommandQueue(false, 0)
	var got []int
	for i := range 10 {
		if err := q.Queue(func() { got = append(got, i) }, false, 0); err != nil {
			t.Fatalf("Queue(%d) = %v", i, err)
		}
	}
	list := q.Flush()
	if list.Len() != 10 {
		t.Fatalf("Flush() returned %d commands, want 10", list.Len())
	}
	q.Playback(list, nil)
	if want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}; !slices.Equal(got, want) {
		t.Errorf("execution order = %v, want %v", got, want)
	}
}

func TestCommandQueueFlushEmptyIsNil(t *testing.T) {
	q := NewCommandQueue(false, 8)
	if list := q.Flush(); list != nil {
		t.Errorf("Flush() on empty queue = %v, want nil", list)
	}
	_ = q.Queue(func() {}, false, 0)
	if list := q.Flush(); list == nil {
		t.Fatal("Flush() after Queue returned nil")
	}
	if list := q.Flush(); list != nil {
		t.Errorf("second Flush() = %v, want nil", list)
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after Flush")
	}
}

func TestCommandQueueReturnAutoResolves(t *testing.T) {
	q := NewCommandQueue(false, 0)
	explicit, err := q.QueueReturn(func(op *AsyncOp) { op.MarkAsResolved(5) }, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	implicit, err := q.QueueReturn(func(op *AsyncOp) {}, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if explicit.IsResolved() || implicit.IsResolved() {
		t.Fatal("AsyncOp resolved before playback")
	}

	q.Playback(q.Flush(), nil)

	if v, _ := ReturnValueAs[int](explicit); v != 5 {
		t.Errorf("explicit value = %v, want 5", v)
	}
	if !implicit.IsResolved() {
		t.Error("unresolved AsyncOp was not auto-resolved by Playback")
	}
	if implicit.ReturnValue() != nil {
		t.Errorf("auto-resolved value = %v, want nil", implicit.ReturnValue())
	}
}

func TestCommandQueueNotify(t *testing.T) {
	q := NewCommandQueue(false, 0)
	var order []string
	_ = q.Queue(func() { order = append(order, "run-1") }, true, 1)
	_ = q.Queue(func() { order = append(order, "run-2") }, false, 2)
	_, _ = q.QueueReturn(func(op *AsyncOp) { order = append(order, "run-3") }, true, 3)

	var notified []uint32
	q.Playback(q.Flush(), func(id uint32) {
		notified = append(notified, id)
		order = append(order, "notify")
	})

	if want := []uint32{1, 3}; !slices.Equal(notified, want) {
		t.Errorf("notified ids = %v, want %v", notified, want)
	}
	if want := []string{"run-1", "notify", "run-2", "run-3", "notify"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestCommandQueueThreadViolation(t *testing.T) {
	q := NewCommandQueue(false, 0)

	var qerr, rerr error
	var op *AsyncOp
	done := make(chan struct{})
	go func() {
		defer close(done)
		qerr = q.Queue(func() {}, false, 0)
		op, rerr = q.QueueReturn(func(*AsyncOp) {}, false, 0)
	}()
	<-done

	if !errors.Is(qerr, ErrThreadViolation) {
		t.Errorf("Queue from foreign goroutine = %v, want ErrThreadViolation", qerr)
	}
	if !errors.Is(rerr, ErrThreadViolation) || op != nil {
		t.Errorf("QueueReturn from foreign goroutine = (%v, %v), want (nil, ErrThreadViolation)", op, rerr)
	}
	if !q.IsEmpty() {
		t.Error("thread violation mutated the queue")
	}
}

func TestCommandQueueAllowAllThreads(t *testing.T) {
	q := NewCommandQueue(true, 0)
	done := make(chan error)
	go func() { done <- q.Queue(func() {}, false, 0) }()
	if err := <-done; err != nil {
		t.Errorf("Queue with allowAllThreads = %v, want nil", err)
	}
}

func TestCommandQueueNilCallback(t *testing.T) {
	q := NewCommandQueue(false, 0)
	if err := q.Queue(nil, false, 0); err == nil {
		t.Error("Queue(nil) should fail")
	}
	if _, err := q.QueueReturn(nil, false, 0); err == nil {
		t.Error("QueueReturn(nil) should fail")
	}
}

// Concurrent producers and a flushing consumer must neither lose nor
// duplicate commands across flush boundaries.
func TestCommandQueueConcurrentFlush(t *testing.T) {
	const producers, perProducer = 8, 500
	q := NewCommandQueue(true, 16)

	var mu sync.Mutex
	seen := make(map[int]int)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				id := p*perProducer + i
				_ = q.Queue(func() {
					mu.Lock()
					seen[id]++
					mu.Unlock()
				}, false, 0)
			}
		}()
	}

	stop := make(chan struct{})
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for {
			select {
			case <-stop:
				q.Playback(q.Flush(), nil)
				return
			default:
				if list := q.Flush(); list != nil {
					q.Playback(list, nil)
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-consumed

	if len(seen) != producers*perProducer {
		t.Fatalf("executed %d distinct commands, want %d", len(seen), producers*perProducer)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("command %d executed %d times", id, n)
		}
	}
}

// Per-producer FIFO holds even when producers interleave.
func TestCommandQueuePerProducerOrder(t *testing.T) {
	q := NewCommandQueue(true, 0)
	last := make([]int, 4)
	for i := range last {
		last[i] = -1
	}
	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				_ = q.Queue(func() {
					if i != last[p]+1 {
						t.Errorf("producer %d: got %d after %d", p, i, last[p])
					}
					last[p] = i
				}, false, 0)
			}
		}()
	}
	wg.Wait()
	q.Playback(q.Flush(), nil)
}
