package native

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderq"
)

// frameTimeout bounds the wait for a submitted frame.
const frameTimeout = 5 * time.Second

// FrameState represents the state of the frame encoder.
type FrameState int

const (
	// FrameIdle means no frame is being recorded.
	FrameIdle FrameState = iota

	// FrameRecording means a command encoder is open with no active pass.
	FrameRecording

	// FramePassOpen means a render pass is recording draws.
	FramePassOpen
)

// String returns the string representation of FrameState.
func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "Idle"
	case FrameRecording:
		return "Recording"
	case FramePassOpen:
		return "PassOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// frame records one BeginFrame/EndFrame bracket.
//
// State Machine:
//
//	Idle -> begin() -> Recording <-> (beginPass/endPass) <-> PassOpen -> submit() -> Idle
type frame struct {
	device hal.Device
	queue  hal.Queue

	state   FrameState
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder

	// transient objects released once the frame has completed on the GPU
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup

	passes int
}

func (f *frame) begin() error {
	if f.state != FrameIdle {
		return ErrFrameInProgress
	}
	encoder, err := f.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "renderq_frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("renderq_frame"); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	f.encoder = encoder
	f.state = FrameRecording
	return nil
}

// clearValues selects which attachments a new pass clears.
type clearValues struct {
	flags   renderq.ClearFlags
	color   renderq.Color
	depth   float32
	stencil uint16
}

// beginPass ends any open pass and starts a new one on target.
func (f *frame) beginPass(target *targetEntry, clear clearValues) error {
	if f.state == FrameIdle {
		return ErrFrameNotStarted
	}
	f.endPass()

	desc := &hal.RenderPassDescriptor{
		Label: "renderq_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.colorView,
			LoadOp:     loadOp(clear.flags&renderq.ClearColor != 0),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clear.color,
		}},
	}
	if target.depthView != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              target.depthView,
			DepthLoadOp:       loadOp(clear.flags&renderq.ClearDepth != 0),
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   clear.depth,
			StencilLoadOp:     loadOp(clear.flags&renderq.ClearStencil != 0),
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: uint32(clear.stencil),
		}
	}
	f.pass = f.encoder.BeginRenderPass(desc)
	f.state = FramePassOpen
	f.passes++
	return nil
}

func (f *frame) endPass() {
	if f.state != FramePassOpen {
		return
	}
	f.pass.End()
	f.pass = nil
	f.state = FrameRecording
}

// submit ends encoding, submits the frame and waits for it to complete.
func (f *frame) submit() error {
	if f.state == FrameIdle {
		return ErrFrameNotStarted
	}
	f.endPass()
	defer f.reset()

	cmdBuf, err := f.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	defer f.device.FreeCommandBuffer(cmdBuf)

	fence, err := f.device.CreateFence()
	if err != nil {
		return fmt.Errorf("native: create fence: %w", err)
	}
	defer f.device.DestroyFence(fence)

	if err := f.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}
	ok, err := f.device.Wait(fence, 1, frameTimeout)
	if err != nil {
		return fmt.Errorf("native: wait for GPU: %w", err)
	}
	if !ok {
		return ErrGPUTimeout
	}
	return nil
}

// reset releases transient objects and returns to Idle.
func (f *frame) reset() {
	for _, bg := range f.bindGroups {
		f.device.DestroyBindGroup(bg)
	}
	for _, buf := range f.buffers {
		f.device.DestroyBuffer(buf)
	}
	f.bindGroups = f.bindGroups[:0]
	f.buffers = f.buffers[:0]
	f.encoder = nil
	f.pass = nil
	f.state = FrameIdle
}

// discard abandons a frame without submitting it.
func (f *frame) discard() {
	if f.state == FrameIdle {
		return
	}
	f.endPass()
	f.encoder.DiscardEncoding()
	f.reset()
}
