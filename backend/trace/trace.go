// Package trace provides a renderq backend that records every RenderAPI
// call and serialises the recording as MessagePack.
//
// A Recorder can stand alone, accepting every call, or wrap another
// backend with Tee to capture what that backend was asked to do. Calls are
// grouped into frames: a frame starts at BeginFrame and runs until the
// next BeginFrame, so a trailing SwapBuffers belongs to the frame it
// presents. Frames are written to the output as length-prefixed MessagePack
// records (4-byte big-endian length, then the payload).
package trace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/gogpu/renderq"
)

// BackendName is the registry name of the trace backend.
const BackendName = "trace"

func init() {
	renderq.RegisterBackend(BackendName, func() (renderq.RenderAPI, error) {
		return New(nil), nil
	})
}

// maxFrameSize bounds a single encoded frame.
const maxFrameSize = 64 << 20

// ErrFrameTooLarge is returned for frame records above the size limit.
var ErrFrameTooLarge = errors.New("trace: frame record too large")

// Call is one recorded RenderAPI invocation.
type Call struct {
	Op   string         `msgpack:"op"`
	Args map[string]any `msgpack:"args,omitempty"`
	Err  string         `msgpack:"err,omitempty"`
}

// Frame is the group of calls issued between two BeginFrame calls.
type Frame struct {
	Seq   uint64 `msgpack:"seq"`
	Calls []Call `msgpack:"calls"`
}

// Ops returns the operation names of the frame's calls in order.
func (f *Frame) Ops() []string {
	ops := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Recorder is a renderq.RenderAPI that records calls.
//
// Recorder is safe for concurrent use, though renderq only calls it from
// the render thread.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	next   renderq.RenderAPI
	cur    Frame
	frames []Frame
	seq    uint64
	bytes  int64
	err    error
}

// New returns a Recorder that writes frames to w. With a nil writer the
// frames are kept in memory and returned by Frames.
func New(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Tee returns a Recorder that records to w and forwards every call to
// next. Errors from next are recorded and returned unchanged.
func Tee(w io.Writer, next renderq.RenderAPI) *Recorder {
	return &Recorder{w: w, next: next}
}

// Next returns the wrapped backend, or nil for a standalone recorder.
func (r *Recorder) Next() renderq.RenderAPI { return r.next }

// Frames returns the frames kept in memory, including the frame being
// recorded.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Frame(nil), r.frames...)
	if len(r.cur.Calls) > 0 {
		out = append(out, Frame{Seq: r.cur.Seq, Calls: append([]Call(nil), r.cur.Calls...)})
	}
	return out
}

// BytesWritten returns the number of bytes written to the output.
func (r *Recorder) BytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Flush emits the frame being recorded. It returns the first write error
// seen by the recorder.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
	return r.err
}

func (r *Recorder) flushLocked() {
	if len(r.cur.Calls) == 0 {
		return
	}
	frame := r.cur
	r.cur = Frame{}
	if r.w == nil {
		r.frames = append(r.frames, frame)
		return
	}
	if r.err != nil {
		return
	}
	n, err := WriteFrame(r.w, &frame)
	r.bytes += int64(n)
	if err != nil {
		r.err = err
		renderq.Logger().Warn("trace: write failed", "frame", frame.Seq, "err", err)
	}
}

// record appends a call, forwarding it to the wrapped backend first.
func (r *Recorder) record(op string, args map[string]any, forward func(renderq.RenderAPI) error) error {
	var err error
	if r.next != nil {
		err = forward(r.next)
	}
	c := Call{Op: op, Args: args}
	if err != nil {
		c.Err = err.Error()
	}

	r.mu.Lock()
	if op == "BeginFrame" {
		r.flushLocked()
		r.seq++
		r.cur.Seq = r.seq
	}
	r.cur.Calls = append(r.cur.Calls, c)
	r.mu.Unlock()
	return err
}

// WriteFrame writes f to w as a length-prefixed MessagePack record and
// returns the number of bytes written.
func WriteFrame(w io.Writer, f *Frame) (int, error) {
	payload, err := msgpack.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("trace: marshal frame %d: %w", f.Seq, err)
	}
	if len(payload) > maxFrameSize {
		return 0, fmt.Errorf("%w: frame %d is %d bytes", ErrFrameTooLarge, f.Seq, len(payload))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload))) //nolint:gosec // G115: bounded by maxFrameSize
	n, err := w.Write(prefix[:])
	if err != nil {
		return n, fmt.Errorf("trace: write length prefix: %w", err)
	}
	m, err := w.Write(payload)
	if err != nil {
		return n + m, fmt.Errorf("trace: write frame %d: %w", f.Seq, err)
	}
	return n + m, nil
}

// ReadFrame reads one record written by WriteFrame. It returns io.EOF when
// r is exhausted at a record boundary.
func ReadFrame(r io.Reader) (Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("trace: truncated length prefix: %w", err)
		}
		return Frame{}, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("trace: read frame: %w", err)
	}
	var f Frame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("trace: unmarshal frame: %w", err)
	}
	return f, nil
}

// ReadAll reads every record from r.
func ReadAll(r io.Reader) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}
