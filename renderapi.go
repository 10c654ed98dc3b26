package renderq

// RenderAPI is the immediate-mode rendering interface executed on the
// render thread. Implementations need not be safe for concurrent use:
// renderq only calls them from the render goroutine.
//
// Every method reports failure through its error return. Deferred contexts
// record the same set of verbs and replay them against a RenderAPI.
type RenderAPI interface {
	SetSamplerState(stage ProgramStage, unit uint32, state *SamplerState) error
	SetBlendState(state *BlendState) error
	SetRasterizerState(state *RasterizerState) error
	SetDepthStencilState(state *DepthStencilState, stencilRef uint32) error

	SetTexture(stage ProgramStage, unit uint32, enabled bool, tex *Texture) error
	DisableTextureUnit(stage ProgramStage, unit uint32) error
	SetLoadStoreTexture(stage ProgramStage, unit uint32, enabled bool, tex *Texture, surface TextureSurface) error

	SetViewport(area Rect2) error
	SetVertexBuffers(index uint32, buffers []*VertexBuffer) error
	SetIndexBuffer(buf *IndexBuffer) error
	SetVertexDeclaration(decl *VertexDeclaration) error
	SetDrawOperation(op DrawOperation) error

	SetClipPlanes(planes []Plane) error
	AddClipPlane(plane Plane) error
	ResetClipPlanes() error
	SetScissorRect(left, top, right, bottom uint32) error

	SetRenderTarget(target *RenderTarget) error
	BindGPUProgram(prg *GPUProgram) error
	UnbindGPUProgram(stage ProgramStage) error
	SetConstantBuffers(stage ProgramStage, params *GPUParams) error
	SetGPUParams(stage ProgramStage, params *GPUParams) error

	BeginFrame() error
	EndFrame() error
	ClearRenderTarget(flags ClearFlags, color Color, depth float32, stencil uint16) error
	ClearViewport(flags ClearFlags, color Color, depth float32, stencil uint16) error
	SwapBuffers(target *RenderTarget) error

	Draw(vertexOffset, vertexCount uint32) error
	DrawIndexed(startIndex, indexCount, vertexOffset, vertexCount uint32) error
}
