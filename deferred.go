// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderq

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// DeferredContext records RenderAPI calls on a producer goroutine and
// replays them later on the render thread.
//
// Each context double-buffers its commands. Verbs append to the active
// buffer; SubmitToGPU moves the active buffer to the ready slot, replacing
// (and dropping) any ready buffer the render thread has not consumed yet.
// PlaybackCommands takes the ready buffer and executes it.
//
// Thread Safety:
// Recording methods and SubmitToGPU may only be called from the goroutine
// that created the context, unless the context was created with
// WithAllowAllThreads. PlaybackCommands may only be called from the render
// thread of the owning RenderSystem. The two sides may run concurrently.
//
// Buffer lifecycle:
//
//	Empty -> Accumulating -> Ready -> Draining -> Destroyed
//	                         Ready -> Destroyed (superseded)
type DeferredContext struct {
	id     uuid.UUID
	guard  threadGuard
	opts   options
	system *RenderSystem

	// mu protects the buffer slots and released.
	mu       sync.Mutex
	active   *CommandBuffer
	ready    *CommandBuffer
	released bool

	stats contextCounters
}

// NewDeferredContext creates a standalone context bound to the calling
// goroutine. Standalone contexts are not drained by any render loop; the
// consumer calls PlaybackCommands itself.
func NewDeferredContext(opts ...Option) *DeferredContext {
	return newDeferredContext(nil, newOptions(opts))
}

func newDeferredContext(rs *RenderSystem, o options) *DeferredContext {
	return &DeferredContext{
		id:     uuid.New(),
		guard:  newThreadGuard(o.allowAllThreads),
		opts:   o,
		system: rs,
		active: acquireCommandBuffer(),
	}
}

// ID returns the context's unique id, used in logs and stats.
func (dc *DeferredContext) ID() uuid.UUID { return dc.id }

// Owner returns the goroutine the context is bound to.
func (dc *DeferredContext) Owner() ThreadID { return dc.guard.owner }

func (dc *DeferredContext) logger() *slog.Logger {
	return dc.opts.log().With("context", dc.id.String())
}

// record appends c to the active buffer. The caller has already checked
// the thread and the arguments.
func (dc *DeferredContext) record(op string, c GPUCommand) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.released {
		return fmt.Errorf("renderq: %s: %w", op, ErrContextReleased)
	}
	dc.active.append(c)
	return nil
}

func nilResource(op, what string) error {
	return fmt.Errorf("renderq: %s: %s: %w", op, what, ErrNilResource)
}

func checkStage(op string, stage ProgramStage) error {
	if !stage.Valid() {
		return fmt.Errorf("renderq: %s: %w: %d", op, ErrInvalidStage, stage)
	}
	return nil
}

// SetSamplerState records binding a copy of state to a texture unit.
func (dc *DeferredContext) SetSamplerState(stage ProgramStage, unit uint32, state *SamplerState) error {
	const op = "set sampler state"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if err := checkStage(op, stage); err != nil {
		return err
	}
	if state == nil {
		return nilResource(op, "sampler state")
	}
	s := *state
	return dc.record(op, GPUCommand{typ: CmdSetSamplerState, stage: stage, unit: unit, sampler: &s})
}

// SetBlendState records setting a copy of state.
func (dc *DeferredContext) SetBlendState(state *BlendState) error {
	const op = "set blend state"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if state == nil {
		return nilResource(op, "blend state")
	}
	s := *state
	return dc.record(op, GPUCommand{typ: CmdSetBlendState, blend: &s})
}

// SetRasterizerState records setting a copy of state.
func (dc *DeferredContext) SetRasterizerState(state *RasterizerState) error {
	const op = "set rasterizer state"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if state == nil {
		return nilResource(op, "rasterizer state")
	}
	s := *state
	return dc.record(op, GPUCommand{typ: CmdSetRasterizerState, rasterizer: &s})
}

// SetDepthStencilState records setting a copy of state and the stencil
// reference value.
func (dc *DeferredContext) SetDepthStencilState(state *DepthStencilState, stencilRef uint32) error {
	const op = "set depth stencil state"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if state == nil {
		return nilResource(op, "depth stencil state")
	}
	s := *state
	return dc.record(op, GPUCommand{typ: CmdSetDepthStencilState, depthStencil: &s, stencilRef: stencilRef})
}

// SetTexture records binding tex to a texture unit. tex may be nil only
// when enabled is false.
func (dc *DeferredContext) SetTexture(stage ProgramStage, unit uint32, enabled bool, tex *Texture) error {
	const op = "set texture"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if err := checkStage(op, stage); err != nil {
		return err
	}
	if enabled && tex == nil {
		return nilResource(op, "texture")
	}
	return dc.record(op, GPUCommand{typ: CmdSetTexture, stage: stage, unit: unit, enabled: enabled, texture: tex})
}

// DisableTextureUnit records unbinding a texture unit.
func (dc *DeferredContext) DisableTextureUnit(stage ProgramStage, unit uint32) error {
	const op = "disable texture unit"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if err := checkStage(op, stage); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdDisableTextureUnit, stage: stage, unit: unit})
}

// SetLoadStoreTexture records binding a surface of tex for unordered
// access. tex may be nil only when enabled is false.
func (dc *DeferredContext) SetLoadStoreTexture(stage ProgramStage, unit uint32, enabled bool, tex *Texture, surface TextureSurface) error {
	const op = "set load store texture"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if err := checkStage(op, stage); err != nil {
		return err
	}
	if enabled && tex == nil {
		return nilResource(op, "texture")
	}
	return dc.record(op, GPUCommand{
		typ:     CmdSetLoadStoreTexture,
		stage:   stage,
		unit:    unit,
		enabled: enabled,
		texture: tex,
		surface: surface,
	})
}

// SetViewport records setting the normalized viewport area.
func (dc *DeferredContext) SetViewport(area Rect2) error {
	const op = "set viewport"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdSetViewport, rect: area})
}

// SetVertexBuffers records binding buffers to consecutive streams starting
// at index. Nil entries unbind their stream.
func (dc *DeferredContext) SetVertexBuffers(index uint32, buffers []*VertexBuffer) error {
	const op = "set vertex buffers"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdSetVertexBuffers, index: index, vbuffers: slices.Clone(buffers)})
}

// SetIndexBuffer records binding buf. A nil buf unbinds the index buffer.
func (dc *DeferredContext) SetIndexBuffer(buf *IndexBuffer) error {
	const op = "set index buffer"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdSetIndexBuffer, ibuffer: buf})
}

// SetVertexDeclaration records setting a copy of decl.
func (dc *DeferredContext) SetVertexDeclaration(decl *VertexDeclaration) error {
	const op = "set vertex declaration"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if decl == nil {
		return nilResource(op, "vertex declaration")
	}
	d := &VertexDeclaration{Elements: slices.Clone(decl.Elements)}
	return dc.record(op, GPUCommand{typ: CmdSetVertexDeclaration, decl: d})
}

// SetDrawOperation records setting the primitive topology.
func (dc *DeferredContext) SetDrawOperation(op DrawOperation) error {
	const name = "set draw operation"
	if err := dc.guard.check(name); err != nil {
		return err
	}
	return dc.record(name, GPUCommand{typ: CmdSetDrawOperation, drawOp: op})
}

// SetClipPlanes records replacing all clip planes with a copy of planes.
func (dc *DeferredContext) SetClipPlanes(planes []Plane) error {
	const op = "set clip planes"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdSetClipPlanes, planes: slices.Clone(planes)})
}

// AddClipPlane records appending plane to the clip planes.
func (dc *DeferredContext) AddClipPlane(plane Plane) error {
	const op = "add clip plane"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdAddClipPlane, plane: plane})
}

// ResetClipPlanes records removing all clip planes.
func (dc *DeferredContext) ResetClipPlanes() error {
	const op = "reset clip planes"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdResetClipPlanes})
}

// SetScissorRect records setting the scissor rectangle in pixels.
func (dc *DeferredContext) SetScissorRect(left, top, right, bottom uint32) error {
	const op = "set scissor rect"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdSetScissorRect, scissor: [4]uint32{left, top, right, bottom}})
}

// SetRenderTarget records binding target.
func (dc *DeferredContext) SetRenderTarget(target *RenderTarget) error {
	const op = "set render target"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if target == nil {
		return nilResource(op, "render target")
	}
	return dc.record(op, GPUCommand{typ: CmdSetRenderTarget, target: target})
}

// BindGPUProgram records binding prg to its stage.
func (dc *DeferredContext) BindGPUProgram(prg *GPUProgram) error {
	const op = "bind gpu program"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if prg == nil {
		return nilResource(op, "gpu program")
	}
	if err := checkStage(op, prg.Stage); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdBindGPUProgram, program: prg})
}

// UnbindGPUProgram records unbinding the program of stage.
func (dc *DeferredContext) UnbindGPUProgram(stage ProgramStage) error {
	const op = "unbind gpu program"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if err := checkStage(op, stage); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdUnbindGPUProgram, stage: stage})
}

// SetConstantBuffers records uploading the value parameters of a clone of
// params.
func (dc *DeferredContext) SetConstantBuffers(stage ProgramStage, params *GPUParams) error {
	return dc.setParams("set constant buffers", CmdSetConstantBuffers, stage, params)
}

// SetGPUParams records binding a clone of params, values and resources.
func (dc *DeferredContext) SetGPUParams(stage ProgramStage, params *GPUParams) error {
	return dc.setParams("set gpu params", CmdSetGPUParams, stage, params)
}

func (dc *DeferredContext) setParams(op string, typ GPUCommandType, stage ProgramStage, params *GPUParams) error {
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if err := checkStage(op, stage); err != nil {
		return err
	}
	if params == nil {
		return nilResource(op, "gpu params")
	}
	return dc.record(op, GPUCommand{typ: typ, stage: stage, params: params.Clone()})
}

// BeginFrame records the start of a frame.
func (dc *DeferredContext) BeginFrame() error {
	const op = "begin frame"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdBeginFrame})
}

// EndFrame records the end of a frame.
func (dc *DeferredContext) EndFrame() error {
	const op = "end frame"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdEndFrame})
}

// ClearRenderTarget records clearing the buffers selected by flags over
// the whole render target.
func (dc *DeferredContext) ClearRenderTarget(flags ClearFlags, color Color, depth float32, stencil uint16) error {
	const op = "clear render target"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{
		typ:          CmdClearRenderTarget,
		clearFlags:   flags,
		clearColor:   color,
		clearDepth:   depth,
		clearStencil: stencil,
	})
}

// ClearViewport records clearing the buffers selected by flags within the
// current viewport.
func (dc *DeferredContext) ClearViewport(flags ClearFlags, color Color, depth float32, stencil uint16) error {
	const op = "clear viewport"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{
		typ:          CmdClearViewport,
		clearFlags:   flags,
		clearColor:   color,
		clearDepth:   depth,
		clearStencil: stencil,
	})
}

// SwapBuffers records presenting target.
func (dc *DeferredContext) SwapBuffers(target *RenderTarget) error {
	const op = "swap buffers"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	if target == nil {
		return nilResource(op, "render target")
	}
	return dc.record(op, GPUCommand{typ: CmdSwapBuffers, target: target})
}

// Draw records a non-indexed draw.
func (dc *DeferredContext) Draw(vertexOffset, vertexCount uint32) error {
	const op = "draw"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{typ: CmdDraw, draw: [4]uint32{vertexOffset, vertexCount}})
}

// DrawIndexed records an indexed draw.
func (dc *DeferredContext) DrawIndexed(startIndex, indexCount, vertexOffset, vertexCount uint32) error {
	const op = "draw indexed"
	if err := dc.guard.check(op); err != nil {
		return err
	}
	return dc.record(op, GPUCommand{
		typ:  CmdDrawIndexed,
		draw: [4]uint32{startIndex, indexCount, vertexOffset, vertexCount},
	})
}

// SubmitToGPU makes the commands recorded so far available to the render
// thread. A ready buffer that has not been played back yet is dropped and
// counted as a dropped frame.
func (dc *DeferredContext) SubmitToGPU() error {
	const op = "submit to gpu"
	if err := dc.guard.check(op); err != nil {
		return err
	}

	dc.mu.Lock()
	if dc.released {
		dc.mu.Unlock()
		return fmt.Errorf("renderq: %s: %w", op, ErrContextReleased)
	}
	dropped := dc.ready
	dc.ready = dc.active
	dc.active = acquireCommandBuffer()
	dc.mu.Unlock()

	dc.stats.framesSubmitted.Add(1)
	if dropped != nil {
		dc.stats.framesDropped.Add(1)
		dc.logger().Debug("renderq: dropped unconsumed frame", "commands", dropped.Len())
		dropped.release()
	}
	if dc.system != nil {
		dc.system.wakeUp()
	}
	return nil
}

// PlaybackCommands executes the ready buffer against api, in recording
// order, and releases it. It does nothing when no buffer is ready.
//
// Failures are handled according to the context's ErrorPolicy. With
// ErrorPolicyContinue every failing command is logged and the returned
// error joins all failures.
func (dc *DeferredContext) PlaybackCommands(api RenderAPI) error {
	if dc.system != nil {
		if err := dc.system.CheckRenderThread(); err != nil {
			return fmt.Errorf("renderq: playback commands: %w", err)
		}
	}

	dc.mu.Lock()
	buf := dc.ready
	dc.ready = nil
	dc.mu.Unlock()
	if buf == nil {
		return nil
	}
	defer buf.release()

	executed, err := playbackGPUCommands(buf.Commands(), api, dc.opts.errorPolicy, dc.logger())
	dc.stats.framesPlayed.Add(1)
	dc.stats.commandsExecuted.Add(uint64(executed))
	if err != nil {
		dc.stats.submitErrors.Add(uint64(countJoined(err)))
	}
	return err
}

// playbackGPUCommands submits cmds in order and returns the number of
// commands that ran, successful or not.
func playbackGPUCommands(cmds []GPUCommand, api RenderAPI, policy ErrorPolicy, log *slog.Logger) (int, error) {
	var errs []error
	for i := range cmds {
		c := &cmds[i]
		if err := c.Submit(api); err != nil {
			err = fmt.Errorf("renderq: command %d (%s): %w", i, c.typ, err)
			if policy == ErrorPolicyAbort {
				log.Warn("renderq: command failed, discarding batch",
					"index", i, "command", c.typ.String(), "discarded", len(cmds)-i-1, "err", err)
				return i + 1, err
			}
			log.Warn("renderq: command failed", "index", i, "command", c.typ.String(), "err", err)
			errs = append(errs, err)
		}
	}
	log.Debug("renderq: played back commands", "count", len(cmds), "failed", len(errs))
	return len(cmds), errors.Join(errs...)
}

// countJoined returns the number of errors wrapped by an errors.Join
// result, or 1 for a plain error.
func countJoined(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return len(j.Unwrap())
	}
	return 1
}

// HasReady reports whether a submitted buffer is waiting for playback.
func (dc *DeferredContext) HasReady() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.ready != nil
}

// Stats returns a snapshot of the context's counters.
func (dc *DeferredContext) Stats() ContextStats {
	dc.mu.Lock()
	pending := 0
	if dc.active != nil {
		pending = dc.active.Len()
	}
	dc.mu.Unlock()
	return ContextStats{
		ID:               dc.id,
		Pending:          pending,
		FramesSubmitted:  dc.stats.framesSubmitted.Load(),
		FramesDropped:    dc.stats.framesDropped.Load(),
		FramesPlayed:     dc.stats.framesPlayed.Load(),
		CommandsExecuted: dc.stats.commandsExecuted.Load(),
		SubmitErrors:     dc.stats.submitErrors.Load(),
	}
}

// release discards both buffers. Further recording fails with
// ErrContextReleased.
func (dc *DeferredContext) release() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.released {
		return
	}
	dc.released = true
	if dc.active != nil {
		dc.active.release()
		dc.active = nil
	}
	if dc.ready != nil {
		dc.ready.release()
		dc.ready = nil
	}
}

// Release discards any recorded commands. For a context created by a
// RenderSystem it also unregisters the context, like
// RenderSystem.ReleaseDeferredContext.
func (dc *DeferredContext) Release() {
	if dc.system != nil {
		dc.system.ReleaseDeferredContext(dc)
		return
	}
	dc.release()
}
