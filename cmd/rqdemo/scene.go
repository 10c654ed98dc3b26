package main

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderq"
)

const vertexWGSL = `
@vertex
fn vs_main(@location(0) position: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 0.0, 1.0);
}
`

const fragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.8, 0.2, 1.0);
}
`

// palette cycles the clear color from frame to frame.
var palette = []renderq.Color{
	{R: 0.10, G: 0.20, B: 0.40, A: 1},
	{R: 0.15, G: 0.25, B: 0.45, A: 1},
	{R: 0.20, G: 0.30, B: 0.50, A: 1},
	{R: 0.15, G: 0.25, B: 0.45, A: 1},
}

// scene is the static geometry drawn every frame. Resources are never
// modified after creation, so a backend may cache them by pointer.
type scene struct {
	target   *renderq.RenderTarget
	vertex   *renderq.GPUProgram
	fragment *renderq.GPUProgram
	decl     *renderq.VertexDeclaration
	quad     *renderq.VertexBuffer
	indices  *renderq.IndexBuffer
}

func newScene(width, height uint32) *scene {
	return &scene{
		target: &renderq.RenderTarget{
			Label:       "backbuffer",
			Width:       width,
			Height:      height,
			ColorFormat: gputypes.TextureFormatRGBA8Unorm,
		},
		vertex: &renderq.GPUProgram{
			Label:      "demo_vs",
			Stage:      renderq.StageVertex,
			Source:     vertexWGSL,
			EntryPoint: "vs_main",
		},
		fragment: &renderq.GPUProgram{
			Label:      "demo_fs",
			Stage:      renderq.StageFragment,
			Source:     fragmentWGSL,
			EntryPoint: "fs_main",
		},
		decl: &renderq.VertexDeclaration{Elements: []renderq.VertexElement{
			{Format: gputypes.VertexFormatFloat32x2, Semantic: renderq.SemanticPosition},
		}},
		quad: &renderq.VertexBuffer{
			Label:       "quad",
			VertexSize:  8,
			VertexCount: 4,
			Data:        float32Bytes(-0.5, -0.5, 0.5, -0.5, 0.5, 0.5, -0.5, 0.5),
		},
		indices: &renderq.IndexBuffer{
			Label:      "quad_idx",
			Type:       renderq.Index16,
			IndexCount: 6,
			Data:       uint16Bytes(0, 1, 2, 0, 2, 3),
		},
	}
}

// record issues frame n on api. The first failing call stops the frame.
func (s *scene) record(api renderq.RenderAPI, n int) error {
	background := palette[n%len(palette)]

	steps := []func() error{
		api.BeginFrame,
		func() error { return api.SetRenderTarget(s.target) },
		func() error { return api.SetViewport(renderq.FullViewport) },
		func() error { return api.ClearRenderTarget(renderq.ClearColor, background, 1, 0) },
		func() error { return api.BindGPUProgram(s.vertex) },
		func() error { return api.BindGPUProgram(s.fragment) },
		func() error { return api.SetVertexDeclaration(s.decl) },
		func() error { return api.SetDrawOperation(renderq.DrawTriangleList) },
		func() error { return api.SetVertexBuffers(0, []*renderq.VertexBuffer{s.quad}) },
		func() error { return api.SetIndexBuffer(s.indices) },
		func() error { return api.DrawIndexed(0, s.indices.IndexCount, 0, s.quad.VertexCount) },
		api.EndFrame,
		func() error { return api.SwapBuffers(s.target) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func float32Bytes(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func uint16Bytes(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}
