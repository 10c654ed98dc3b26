package native

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderq"
)

// === State ===

// SetSamplerState creates or reuses the sampler, then reports that
// program units cannot be bound.
func (b *Backend) SetSamplerState(stage renderq.ProgramStage, unit uint32, state *renderq.SamplerState) error {
	if _, err := b.res.sampler(state); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s sampler %d", ErrResourceBindingUnsupported, stage, unit)
}

func (b *Backend) SetBlendState(state *renderq.BlendState) error {
	b.blend = *state
	return nil
}

func (b *Backend) SetRasterizerState(state *renderq.RasterizerState) error {
	b.raster = *state
	return nil
}

func (b *Backend) SetDepthStencilState(state *renderq.DepthStencilState, stencilRef uint32) error {
	b.depthStencil = *state
	b.stencilRef = stencilRef
	return nil
}

// === Textures ===

// SetTexture creates or reuses the texture, then reports that program
// units cannot be bound. Disabling a unit always succeeds.
func (b *Backend) SetTexture(stage renderq.ProgramStage, unit uint32, enabled bool, tex *renderq.Texture) error {
	if !enabled || tex == nil {
		return nil
	}
	if _, err := b.res.texture(tex, gputypes.TextureUsageTextureBinding); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s texture %d (%s)", ErrResourceBindingUnsupported, stage, unit, tex.Label)
}

func (b *Backend) DisableTextureUnit(renderq.ProgramStage, uint32) error { return nil }

// SetLoadStoreTexture behaves like SetTexture for storage access.
func (b *Backend) SetLoadStoreTexture(stage renderq.ProgramStage, unit uint32, enabled bool, tex *renderq.Texture, _ renderq.TextureSurface) error {
	if !enabled || tex == nil {
		return nil
	}
	if _, err := b.res.texture(tex, gputypes.TextureUsageStorageBinding); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s storage texture %d (%s)", ErrResourceBindingUnsupported, stage, unit, tex.Label)
}

// === Input assembly ===

func (b *Backend) SetViewport(area renderq.Rect2) error {
	b.viewport = area
	return nil
}

func (b *Backend) SetVertexBuffers(index uint32, buffers []*renderq.VertexBuffer) error {
	for i, vb := range buffers {
		slot := index + uint32(i) //nolint:gosec // G115: slot count is small
		if vb == nil {
			delete(b.vbuffers, slot)
			continue
		}
		b.vbuffers[slot] = vb
	}
	return nil
}

func (b *Backend) SetIndexBuffer(buf *renderq.IndexBuffer) error {
	b.ibuffer = buf
	return nil
}

func (b *Backend) SetVertexDeclaration(decl *renderq.VertexDeclaration) error {
	b.decl = decl
	return nil
}

func (b *Backend) SetDrawOperation(op renderq.DrawOperation) error {
	if _, ok := op.Topology(); !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTopology, op)
	}
	b.drawOp = op
	return nil
}

// === Clipping ===

// SetClipPlanes stores user clip planes. WebGPU has no fixed-function clip
// planes; programs that need them read them from their parameters.
func (b *Backend) SetClipPlanes(planes []renderq.Plane) error {
	b.planes = slices.Clone(planes)
	return nil
}

func (b *Backend) AddClipPlane(plane renderq.Plane) error {
	b.planes = append(b.planes, plane)
	return nil
}

func (b *Backend) ResetClipPlanes() error {
	b.planes = b.planes[:0]
	return nil
}

func (b *Backend) SetScissorRect(left, top, right, bottom uint32) error {
	b.scissor = [4]uint32{left, top, right, bottom}
	return nil
}

// === Targets and programs ===

// SetRenderTarget binds target. An open pass is ended; the next draw or
// clear starts a pass on the new target.
func (b *Backend) SetRenderTarget(target *renderq.RenderTarget) error {
	if target == b.target {
		return nil
	}
	if target != nil {
		if _, err := b.res.target(target); err != nil {
			return err
		}
	}
	b.frame.endPass()
	b.target = target
	return nil
}

func (b *Backend) BindGPUProgram(prg *renderq.GPUProgram) error {
	if _, ok := prg.Stage.ShaderStage(); !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedStage, prg.Stage)
	}
	if _, err := b.res.shader(prg); err != nil {
		return err
	}
	b.programs[prg.Stage] = prg
	return nil
}

func (b *Backend) UnbindGPUProgram(stage renderq.ProgramStage) error {
	b.programs[stage] = nil
	b.params[stage] = nil
	return nil
}

func (b *Backend) SetConstantBuffers(stage renderq.ProgramStage, params *renderq.GPUParams) error {
	b.params[stage] = params
	return nil
}

// SetGPUParams binds the parameter block of stage. Textures and samplers
// it references are created, and ErrResourceBindingUnsupported is
// returned after the block is bound.
func (b *Backend) SetGPUParams(stage renderq.ProgramStage, params *renderq.GPUParams) error {
	b.params[stage] = params
	if params == nil {
		return nil
	}
	desc := params.Desc()
	for i := range desc.Textures {
		tex := params.Texture(i)
		if err := b.SetTexture(stage, uint32(i), tex != nil, tex); err != nil { //nolint:gosec // G115: slot count is small
			return err
		}
	}
	for i := range desc.Samplers {
		if s := params.Sampler(i); s != nil {
			if err := b.SetSamplerState(stage, uint32(i), s); err != nil { //nolint:gosec // G115: slot count is small
				return err
			}
		}
	}
	return nil
}

// === Frames ===

func (b *Backend) BeginFrame() error {
	return b.frame.begin()
}

func (b *Backend) EndFrame() error {
	if b.frame.state == FrameIdle {
		return ErrFrameNotStarted
	}
	passes := b.frame.passes
	b.frame.passes = 0
	err := b.frame.submit()
	b.releaseUniforms()
	b.count(func(s *Stats) {
		s.Frames++
		s.Passes += uint64(passes) //nolint:gosec // G115: non-negative
	})
	return err
}

// ClearRenderTarget starts a new pass that clears the selected buffers of
// the whole target.
func (b *Backend) ClearRenderTarget(flags renderq.ClearFlags, color renderq.Color, depth float32, stencil uint16) error {
	if b.target == nil {
		return ErrNoRenderTarget
	}
	e, err := b.res.target(b.target)
	if err != nil {
		return err
	}
	return b.frame.beginPass(e, clearValues{flags: flags, color: color, depth: depth, stencil: stencil})
}

// ClearViewport clears the current viewport. Only a viewport covering the
// whole target can be cleared through a load operation.
func (b *Backend) ClearViewport(flags renderq.ClearFlags, color renderq.Color, depth float32, stencil uint16) error {
	if b.viewport != renderq.FullViewport {
		return ErrPartialClear
	}
	return b.ClearRenderTarget(flags, color, depth, stencil)
}

// SwapBuffers presents target. Offscreen targets have nothing to present;
// the swap is only counted.
func (b *Backend) SwapBuffers(target *renderq.RenderTarget) error {
	if target == nil {
		return ErrNoRenderTarget
	}
	b.count(func(s *Stats) { s.Swaps++ })
	return nil
}

// === Draws ===

func (b *Backend) Draw(vertexOffset, vertexCount uint32) error {
	rp, err := b.prepareDraw()
	if err != nil {
		return err
	}
	rp.Draw(vertexCount, 1, vertexOffset, 0)
	b.count(func(s *Stats) { s.Draws++ })
	return nil
}

func (b *Backend) DrawIndexed(startIndex, indexCount, vertexOffset, _ uint32) error {
	if b.ibuffer == nil {
		return ErrNoIndexBuffer
	}
	rp, err := b.prepareDraw()
	if err != nil {
		return err
	}
	buf, err := b.res.indexBuffer(b.ibuffer)
	if err != nil {
		return err
	}
	rp.SetIndexBuffer(buf, indexFormat(b.ibuffer.Type), 0)
	rp.DrawIndexed(indexCount, 1, startIndex, int32(vertexOffset), 0) //nolint:gosec // G115: offsets fit in int32
	b.count(func(s *Stats) { s.Draws++ })
	return nil
}

// prepareDraw makes sure a pass is open and binds the pipeline, parameters,
// vertex streams and dynamic state for the next draw.
func (b *Backend) prepareDraw() (hal.RenderPassEncoder, error) {
	if b.frame.state == FrameIdle {
		return nil, ErrFrameNotStarted
	}
	if b.target == nil {
		return nil, ErrNoRenderTarget
	}
	if b.decl == nil {
		return nil, ErrNoVertexDeclaration
	}
	vp, fp := b.programs[renderq.StageVertex], b.programs[renderq.StageFragment]
	if vp == nil || fp == nil {
		return nil, ErrNoProgram
	}
	target, err := b.res.target(b.target)
	if err != nil {
		return nil, err
	}
	if b.frame.state != FramePassOpen {
		if err := b.frame.beginPass(target, clearValues{}); err != nil {
			return nil, err
		}
	}

	pipeline, err := b.pipeline(vp, fp, target)
	if err != nil {
		return nil, err
	}
	bindGroup, err := b.paramsBindGroup()
	if err != nil {
		return nil, err
	}

	rp := b.frame.pass
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	for stream := range b.decl.Streams() {
		vb := b.vbuffers[uint32(stream)] //nolint:gosec // G115: stream count is small
		if vb == nil {
			continue
		}
		buf, err := b.res.vertexBuffer(vb)
		if err != nil {
			return nil, err
		}
		rp.SetVertexBuffer(uint32(stream), buf, 0) //nolint:gosec // G115: stream count is small
	}

	w, h := float32(b.target.Width), float32(b.target.Height)
	rp.SetViewport(b.viewport.X*w, b.viewport.Y*h, b.viewport.Width*w, b.viewport.Height*h, 0, 1)
	if b.raster.ScissorEnable {
		l, t, r, bt := b.scissor[0], b.scissor[1], b.scissor[2], b.scissor[3]
		rp.SetScissorRect(l, t, r-min(l, r), bt-min(t, bt))
	} else {
		rp.SetScissorRect(0, 0, b.target.Width, b.target.Height)
	}
	rp.SetStencilReference(b.stencilRef)
	return rp, nil
}

func (b *Backend) pipeline(vp, fp *renderq.GPUProgram, target *targetEntry) (hal.RenderPipeline, error) {
	topology, ok := b.drawOp.Topology()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTopology, b.drawOp)
	}
	vs, err := b.res.shader(vp)
	if err != nil {
		return nil, err
	}
	fs, err := b.res.shader(fp)
	if err != nil {
		return nil, err
	}
	state := &pipelineState{
		vertex:       vs,
		fragment:     fs,
		layouts:      vertexLayouts(b.decl),
		topology:     topology,
		raster:       b.raster,
		blend:        b.blend,
		depthStencil: b.depthStencil,
		colorFormat:  target.colorFormat,
		depthFormat:  target.depthFormat,
		sampleCount:  target.sampleCount,
	}
	return b.pipelines.getOrCreate(state.hash(), func() (hal.RenderPipeline, error) {
		p, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  "renderq_pipeline",
			Layout: b.pipeLayout,
			Vertex: hal.VertexState{
				Module:     vs.module,
				EntryPoint: vs.entryPoint,
				Buffers:    state.layouts,
			},
			Fragment: &hal.FragmentState{
				Module:     fs.module,
				EntryPoint: fs.entryPoint,
				Targets:    []gputypes.ColorTargetState{colorTarget(&state.blend, state.colorFormat)},
			},
			DepthStencil: depthStencilState(&state.depthStencil, state.depthFormat),
			Multisample: gputypes.MultisampleState{
				Count: state.sampleCount,
				Mask:  0xFFFFFFFF,
			},
			Primitive: gputypes.PrimitiveState{
				Topology:  topology,
				FrontFace: state.raster.FrontFace,
				CullMode:  state.raster.CullMode,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("native: create render pipeline: %w", err)
		}
		return p, nil
	})
}

// paramsBindGroup uploads the vertex and fragment parameter blocks and
// binds them. Each block is uploaded once per frame.
func (b *Backend) paramsBindGroup() (hal.BindGroup, error) {
	var entries []gputypes.BindGroupEntry
	for binding, stage := range [2]renderq.ProgramStage{renderq.StageVertex, renderq.StageFragment} {
		buf, size, err := b.uniform(b.params[stage])
		if err != nil {
			return nil, err
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(binding), //nolint:gosec // G115: two bindings
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: size,
			},
		})
	}
	bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "renderq_params",
		Layout:  b.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create params bind group: %w", err)
	}
	b.frame.bindGroups = append(b.frame.bindGroups, bg)
	return bg, nil
}

func (b *Backend) uniform(params *renderq.GPUParams) (hal.Buffer, uint64, error) {
	var data []byte
	if params != nil {
		data = params.Data()
	}
	size := max(alignedSize(len(data)), minUniformSize)
	if buf, ok := b.uniforms[params]; ok {
		return buf, size, nil
	}
	block := make([]byte, size)
	copy(block, data)
	buf, err := b.res.upload("renderq_uniform", block, gputypes.BufferUsageUniform)
	if err != nil {
		return nil, 0, err
	}
	b.frame.buffers = append(b.frame.buffers, buf)
	b.uniforms[params] = buf
	return buf, size, nil
}
