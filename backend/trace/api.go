package trace

import (
	"github.com/gogpu/renderq"
)

var _ renderq.RenderAPI = (*Recorder)(nil)

// Resources are recorded by label; a nil resource records an empty label.

func texLabel(t *renderq.Texture) string {
	if t == nil {
		return ""
	}
	return t.Label
}

func targetLabel(t *renderq.RenderTarget) string {
	if t == nil {
		return ""
	}
	return t.Label
}

func colorArgs(c renderq.Color) []float64 {
	return []float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
}

func (r *Recorder) SetSamplerState(stage renderq.ProgramStage, unit uint32, state *renderq.SamplerState) error {
	args := map[string]any{"stage": stage.String(), "unit": unit}
	if state != nil {
		args["state"] = *state
	}
	return r.record("SetSamplerState", args, func(api renderq.RenderAPI) error {
		return api.SetSamplerState(stage, unit, state)
	})
}

func (r *Recorder) SetBlendState(state *renderq.BlendState) error {
	var args map[string]any
	if state != nil {
		args = map[string]any{"state": *state}
	}
	return r.record("SetBlendState", args, func(api renderq.RenderAPI) error {
		return api.SetBlendState(state)
	})
}

func (r *Recorder) SetRasterizerState(state *renderq.RasterizerState) error {
	var args map[string]any
	if state != nil {
		args = map[string]any{"state": *state}
	}
	return r.record("SetRasterizerState", args, func(api renderq.RenderAPI) error {
		return api.SetRasterizerState(state)
	})
}

func (r *Recorder) SetDepthStencilState(state *renderq.DepthStencilState, stencilRef uint32) error {
	args := map[string]any{"stencilRef": stencilRef}
	if state != nil {
		args["state"] = *state
	}
	return r.record("SetDepthStencilState", args, func(api renderq.RenderAPI) error {
		return api.SetDepthStencilState(state, stencilRef)
	})
}

func (r *Recorder) SetTexture(stage renderq.ProgramStage, unit uint32, enabled bool, tex *renderq.Texture) error {
	args := map[string]any{"stage": stage.String(), "unit": unit, "enabled": enabled, "texture": texLabel(tex)}
	return r.record("SetTexture", args, func(api renderq.RenderAPI) error {
		return api.SetTexture(stage, unit, enabled, tex)
	})
}

func (r *Recorder) DisableTextureUnit(stage renderq.ProgramStage, unit uint32) error {
	args := map[string]any{"stage": stage.String(), "unit": unit}
	return r.record("DisableTextureUnit", args, func(api renderq.RenderAPI) error {
		return api.DisableTextureUnit(stage, unit)
	})
}

func (r *Recorder) SetLoadStoreTexture(stage renderq.ProgramStage, unit uint32, enabled bool, tex *renderq.Texture, surface renderq.TextureSurface) error {
	args := map[string]any{
		"stage":   stage.String(),
		"unit":    unit,
		"enabled": enabled,
		"texture": texLabel(tex),
		"surface": surface,
	}
	return r.record("SetLoadStoreTexture", args, func(api renderq.RenderAPI) error {
		return api.SetLoadStoreTexture(stage, unit, enabled, tex, surface)
	})
}

func (r *Recorder) SetViewport(area renderq.Rect2) error {
	args := map[string]any{"area": []float32{area.X, area.Y, area.Width, area.Height}}
	return r.record("SetViewport", args, func(api renderq.RenderAPI) error {
		return api.SetViewport(area)
	})
}

func (r *Recorder) SetVertexBuffers(index uint32, buffers []*renderq.VertexBuffer) error {
	labels := make([]string, len(buffers))
	for i, b := range buffers {
		if b != nil {
			labels[i] = b.Label
		}
	}
	args := map[string]any{"index": index, "buffers": labels}
	return r.record("SetVertexBuffers", args, func(api renderq.RenderAPI) error {
		return api.SetVertexBuffers(index, buffers)
	})
}

func (r *Recorder) SetIndexBuffer(buf *renderq.IndexBuffer) error {
	args := map[string]any{"buffer": ""}
	if buf != nil {
		args["buffer"] = buf.Label
		args["count"] = buf.IndexCount
		args["size"] = buf.Type.Size()
	}
	return r.record("SetIndexBuffer", args, func(api renderq.RenderAPI) error {
		return api.SetIndexBuffer(buf)
	})
}

func (r *Recorder) SetVertexDeclaration(decl *renderq.VertexDeclaration) error {
	var args map[string]any
	if decl != nil {
		args = map[string]any{"elements": len(decl.Elements)}
	}
	return r.record("SetVertexDeclaration", args, func(api renderq.RenderAPI) error {
		return api.SetVertexDeclaration(decl)
	})
}

func (r *Recorder) SetDrawOperation(op renderq.DrawOperation) error {
	return r.record("SetDrawOperation", map[string]any{"op": op.String()}, func(api renderq.RenderAPI) error {
		return api.SetDrawOperation(op)
	})
}

func (r *Recorder) SetClipPlanes(planes []renderq.Plane) error {
	args := map[string]any{"planes": append([]renderq.Plane(nil), planes...)}
	return r.record("SetClipPlanes", args, func(api renderq.RenderAPI) error {
		return api.SetClipPlanes(planes)
	})
}

func (r *Recorder) AddClipPlane(plane renderq.Plane) error {
	return r.record("AddClipPlane", map[string]any{"plane": plane}, func(api renderq.RenderAPI) error {
		return api.AddClipPlane(plane)
	})
}

func (r *Recorder) ResetClipPlanes() error {
	return r.record("ResetClipPlanes", nil, func(api renderq.RenderAPI) error {
		return api.ResetClipPlanes()
	})
}

func (r *Recorder) SetScissorRect(left, top, right, bottom uint32) error {
	args := map[string]any{"rect": []uint32{left, top, right, bottom}}
	return r.record("SetScissorRect", args, func(api renderq.RenderAPI) error {
		return api.SetScissorRect(left, top, right, bottom)
	})
}

func (r *Recorder) SetRenderTarget(target *renderq.RenderTarget) error {
	return r.record("SetRenderTarget", map[string]any{"target": targetLabel(target)}, func(api renderq.RenderAPI) error {
		return api.SetRenderTarget(target)
	})
}

func (r *Recorder) BindGPUProgram(prg *renderq.GPUProgram) error {
	args := map[string]any{"program": ""}
	if prg != nil {
		args["program"] = prg.Label
		args["stage"] = prg.Stage.String()
	}
	return r.record("BindGPUProgram", args, func(api renderq.RenderAPI) error {
		return api.BindGPUProgram(prg)
	})
}

func (r *Recorder) UnbindGPUProgram(stage renderq.ProgramStage) error {
	return r.record("UnbindGPUProgram", map[string]any{"stage": stage.String()}, func(api renderq.RenderAPI) error {
		return api.UnbindGPUProgram(stage)
	})
}

func (r *Recorder) SetConstantBuffers(stage renderq.ProgramStage, params *renderq.GPUParams) error {
	return r.record("SetConstantBuffers", paramsArgs(stage, params), func(api renderq.RenderAPI) error {
		return api.SetConstantBuffers(stage, params)
	})
}

func (r *Recorder) SetGPUParams(stage renderq.ProgramStage, params *renderq.GPUParams) error {
	return r.record("SetGPUParams", paramsArgs(stage, params), func(api renderq.RenderAPI) error {
		return api.SetGPUParams(stage, params)
	})
}

// paramsArgs snapshots the parameter bytes, which the caller may change
// after the call returns.
func paramsArgs(stage renderq.ProgramStage, params *renderq.GPUParams) map[string]any {
	args := map[string]any{"stage": stage.String()}
	if params != nil {
		args["data"] = append([]byte(nil), params.Data()...)
	}
	return args
}

func (r *Recorder) BeginFrame() error {
	return r.record("BeginFrame", nil, func(api renderq.RenderAPI) error {
		return api.BeginFrame()
	})
}

func (r *Recorder) EndFrame() error {
	return r.record("EndFrame", nil, func(api renderq.RenderAPI) error {
		return api.EndFrame()
	})
}

func (r *Recorder) ClearRenderTarget(flags renderq.ClearFlags, color renderq.Color, depth float32, stencil uint16) error {
	args := map[string]any{"flags": flags.String(), "color": colorArgs(color), "depth": depth, "stencil": stencil}
	return r.record("ClearRenderTarget", args, func(api renderq.RenderAPI) error {
		return api.ClearRenderTarget(flags, color, depth, stencil)
	})
}

func (r *Recorder) ClearViewport(flags renderq.ClearFlags, color renderq.Color, depth float32, stencil uint16) error {
	args := map[string]any{"flags": flags.String(), "color": colorArgs(color), "depth": depth, "stencil": stencil}
	return r.record("ClearViewport", args, func(api renderq.RenderAPI) error {
		return api.ClearViewport(flags, color, depth, stencil)
	})
}

func (r *Recorder) SwapBuffers(target *renderq.RenderTarget) error {
	return r.record("SwapBuffers", map[string]any{"target": targetLabel(target)}, func(api renderq.RenderAPI) error {
		return api.SwapBuffers(target)
	})
}

func (r *Recorder) Draw(vertexOffset, vertexCount uint32) error {
	args := map[string]any{"vertexOffset": vertexOffset, "vertexCount": vertexCount}
	return r.record("Draw", args, func(api renderq.RenderAPI) error {
		return api.Draw(vertexOffset, vertexCount)
	})
}

func (r *Recorder) DrawIndexed(startIndex, indexCount, vertexOffset, vertexCount uint32) error {
	args := map[string]any{
		"startIndex":   startIndex,
		"indexCount":   indexCount,
		"vertexOffset": vertexOffset,
		"vertexCount":  vertexCount,
	}
	return r.record("DrawIndexed", args, func(api renderq.RenderAPI) error {
		return api.DrawIndexed(startIndex, indexCount, vertexOffset, vertexCount)
	})
}
