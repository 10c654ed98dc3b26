package renderq

import (
	"errors"
	"fmt"
	"sync"
)

// apiCall is one RenderAPI invocation captured by mockAPI.
type apiCall struct {
	name string
	args []any
}

func (c apiCall) String() string { return fmt.Sprintf("%s%v", c.name, c.args) }

// mockAPI records every RenderAPI call. failOn makes the named verb fail.
type mockAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	failOn map[string]error
	thread ThreadID
}

var errMockFailure = errors.New("mock failure")

func newMockAPI() *mockAPI {
	return &mockAPI{failOn: make(map[string]error)}
}

func (m *mockAPI) record(name string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, apiCall{name: name, args: args})
	m.thread = CurrentThread()
	return m.failOn[name]
}

func (m *mockAPI) fail(name string, err error) {
	m.mu.Lock()
	m.failOn[name] = err
	m.mu.Unlock()
}

func (m *mockAPI) Calls() []apiCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]apiCall(nil), m.calls...)
}

func (m *mockAPI) Names() []string {
	calls := m.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.name
	}
	return names
}

func (m *mockAPI) LastThread() ThreadID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thread
}

func (m *mockAPI) SetSamplerState(stage ProgramStage, unit uint32, s *SamplerState) error {
	return m.record("SetSamplerState", stage, unit, s)
}
func (m *mockAPI) SetBlendState(s *BlendState) error { return m.record("SetBlendState", s) }
func (m *mockAPI) SetRasterizerState(s *RasterizerState) error {
	return m.record("SetRasterizerState", s)
}
func (m *mockAPI) SetDepthStencilState(s *DepthStencilState, ref uint32) error {
	return m.record("SetDepthStencilState", s, ref)
}
func (m *mockAPI) SetTexture(stage ProgramStage, unit uint32, enabled bool, tex *Texture) error {
	return m.record("SetTexture", stage, unit, enabled, tex)
}
func (m *mockAPI) DisableTextureUnit(stage ProgramStage, unit uint32) error {
	return m.record("DisableTextureUnit", stage, unit)
}
func (m *mockAPI) SetLoadStoreTexture(stage ProgramStage, unit uint32, enabled bool, tex *Texture, surface TextureSurface) error {
	return m.record("SetLoadStoreTexture", stage, unit, enabled, tex, surface)
}
func (m *mockAPI) SetViewport(area Rect2) error { return m.record("SetViewport", area) }
func (m *mockAPI) SetVertexBuffers(index uint32, bufs []*VertexBuffer) error {
	return m.record("SetVertexBuffers", index, bufs)
}
func (m *mockAPI) SetIndexBuffer(buf *IndexBuffer) error { return m.record("SetIndexBuffer", buf) }
func (m *mockAPI) SetVertexDeclaration(decl *VertexDeclaration) error {
	return m.record("SetVertexDeclaration", decl)
}
func (m *mockAPI) SetDrawOperation(op DrawOperation) error { return m.record("SetDrawOperation", op) }
func (m *mockAPI) SetClipPlanes(planes []Plane) error      { return m.record("SetClipPlanes", planes) }
func (m *mockAPI) AddClipPlane(p Plane) error              { return m.record("AddClipPlane", p) }
func (m *mockAPI) ResetClipPlanes() error                  { return m.record("ResetClipPlanes") }
func (m *mockAPI) SetScissorRect(l, t, r, b uint32) error {
	return m.record("SetScissorRect", l, t, r, b)
}
func (m *mockAPI) SetRenderTarget(rt *RenderTarget) error { return m.record("SetRenderTarget", rt) }
func (m *mockAPI) BindGPUProgram(p *GPUProgram) error     { return m.record("BindGPUProgram", p) }
func (m *mockAPI) UnbindGPUProgram(stage ProgramStage) error {
	return m.record("UnbindGPUProgram", stage)
}
func (m *mockAPI) SetConstantBuffers(stage ProgramStage, p *GPUParams) error {
	return m.record("SetConstantBuffers", stage, p)
}
func (m *mockAPI) SetGPUParams(stage ProgramStage, p *GPUParams) error {
	return m.record("SetGPUParams", stage, p)
}
func (m *mockAPI) BeginFrame() error { return m.record("BeginFrame") }
func (m *mockAPI) EndFrame() error   { return m.record("EndFrame") }
func (m *mockAPI) ClearRenderTarget(f ClearFlags, c Color, d float32, s uint16) error {
	return m.record("ClearRenderTarget", f, c, d, s)
}
func (m *mockAPI) ClearViewport(f ClearFlags, c Color, d float32, s uint16) error {
	return m.record("ClearViewport", f, c, d, s)
}
func (m *mockAPI) SwapBuffers(rt *RenderTarget) error { return m.record("SwapBuffers", rt) }
func (m *mockAPI) Draw(offset, count uint32) error    { return m.record("Draw", offset, count) }
func (m *mockAPI) DrawIndexed(start, count, voff, vcount uint32) error {
	return m.record("DrawIndexed", start, count, voff, vcount)
}

var _ RenderAPI = (*mockAPI)(nil)
