package trace

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/renderq"
	"github.com/gogpu/renderq/backend/software"
)

var rt = &renderq.RenderTarget{Label: "main", Width: 2, Height: 2}

func recordFrame(t *testing.T, api renderq.RenderAPI) {
	t.Helper()
	for _, err := range []error{
		api.BeginFrame(),
		api.SetRenderTarget(rt),
		api.ClearRenderTarget(renderq.ClearColor, renderq.Color{R: 1, A: 1}, 1, 0),
		api.EndFrame(),
		api.SwapBuffers(rt),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
}

var frameOps = []string{"BeginFrame", "SetRenderTarget", "ClearRenderTarget", "EndFrame", "SwapBuffers"}

func TestRecorderGroupsFrames(t *testing.T) {
	r := New(nil)
	if err := r.SetViewport(renderq.FullViewport); err != nil {
		t.Fatal(err)
	}
	recordFrame(t, r)
	recordFrame(t, r)

	frames := r.Frames()
	if len(frames) != 3 {
		t.Fatalf("len(Frames) = %d, want 3", len(frames))
	}
	if frames[0].Seq != 0 || !slices.Equal(frames[0].Ops(), []string{"SetViewport"}) {
		t.Errorf("prologue = %d %v", frames[0].Seq, frames[0].Ops())
	}
	for i, f := range frames[1:] {
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d Seq = %d", i+1, f.Seq)
		}
		if !slices.Equal(f.Ops(), frameOps) {
			t.Errorf("frame %d ops = %v", i+1, f.Ops())
		}
	}
	if got := frames[1].Calls[1].Args["target"]; got != "main" {
		t.Errorf("SetRenderTarget target = %v, want main", got)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	recordFrame(t, r)
	recordFrame(t, r)
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}
	if r.BytesWritten() != int64(buf.Len()) {
		t.Errorf("BytesWritten = %d, buffer holds %d", r.BytesWritten(), buf.Len())
	}
	if len(r.Frames()) != 0 {
		t.Error("frames kept in memory while writing to an output")
	}

	frames, err := ReadAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(frames))
	}
	for _, f := range frames {
		if !slices.Equal(f.Ops(), frameOps) {
			t.Errorf("frame %d ops = %v", f.Seq, f.Ops())
		}
	}
	if got := frames[1].Calls[2].Args["flags"]; got != renderq.ClearColor.String() {
		t.Errorf("decoded clear flags = %v", got)
	}
}

func TestTeeForwards(t *testing.T) {
	sw := software.New()
	r := Tee(nil, sw)
	recordFrame(t, r)

	if sw.Stats().Presents != 1 || sw.Stats().Clears != 1 {
		t.Errorf("software stats = %+v", sw.Stats())
	}

	err := r.EndFrame()
	if !errors.Is(err, software.ErrFrameNotStarted) {
		t.Fatalf("EndFrame outside frame = %v", err)
	}
	frames := r.Frames()
	last := frames[len(frames)-1].Calls
	if c := last[len(last)-1]; c.Op != "EndFrame" || c.Err == "" {
		t.Errorf("last call = %+v, want recorded EndFrame error", c)
	}
}

func TestReadFrameErrors(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Errorf("empty stream = %v, want io.EOF", err)
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0})); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("truncated prefix = %v", err)
	}

	var big [4]byte
	binary.BigEndian.PutUint32(big[:], maxFrameSize+1)
	if _, err := ReadFrame(bytes.NewReader(big[:])); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized record = %v, want ErrFrameTooLarge", err)
	}

	var short [4]byte
	binary.BigEndian.PutUint32(short[:], 16)
	if _, err := ReadFrame(bytes.NewReader(append(short[:], 1, 2))); err == nil {
		t.Error("truncated payload decoded without error")
	}
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestWriteErrorSticks(t *testing.T) {
	w := &failingWriter{}
	r := New(w)
	recordFrame(t, r)
	recordFrame(t, r)
	recordFrame(t, r)
	if err := r.Flush(); err == nil {
		t.Fatal("Flush returned nil after a failed write")
	}
	if w.n != 1 {
		t.Errorf("writer called %d times after failure, want 1", w.n)
	}
}

func TestRenderSystemTrace(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	rs := renderq.NewRenderSystem(r, renderq.WithIdleInterval(time.Millisecond))
	if err := rs.Start(); err != nil {
		t.Fatal(err)
	}

	dc := rs.CreateDeferredContext()
	recordFrame(t, dc)
	if err := rs.SubmitContext(dc, true); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	frames, err := ReadAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || !slices.Equal(frames[0].Ops(), frameOps) {
		t.Errorf("replayed frames = %+v", frames)
	}
}

func TestRegisteredBackend(t *testing.T) {
	api, err := renderq.NewBackend(BackendName)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := api.(*Recorder); !ok {
		t.Errorf("NewBackend(%q) = %T, want *Recorder", BackendName, api)
	}
}
