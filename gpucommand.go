package renderq

import "fmt"

// GPUCommandType identifies the RenderAPI verb a GPUCommand replays.
type GPUCommandType uint8

const (
	// State commands
	CmdSetSamplerState      GPUCommandType = iota // Bind sampler state to a texture unit
	CmdSetBlendState                              // Set output merger blending
	CmdSetRasterizerState                         // Set rasterizer state
	CmdSetDepthStencilState                       // Set depth-stencil state and reference

	// Texture commands
	CmdSetTexture          // Bind a texture to a unit
	CmdDisableTextureUnit  // Unbind a texture unit
	CmdSetLoadStoreTexture // Bind a texture for unordered access

	// Geometry commands
	CmdSetViewport          // Set the viewport area
	CmdSetVertexBuffers     // Bind vertex streams
	CmdSetIndexBuffer       // Bind the index buffer
	CmdSetVertexDeclaration // Set the vertex layout
	CmdSetDrawOperation     // Set primitive topology

	// Clipping commands
	CmdSetClipPlanes   // Replace all clip planes
	CmdAddClipPlane    // Append one clip plane
	CmdResetClipPlanes // Remove all clip planes
	CmdSetScissorRect  // Set the scissor rectangle

	// Target and program commands
	CmdSetRenderTarget    // Bind the render target
	CmdBindGPUProgram     // Bind a program to its stage
	CmdUnbindGPUProgram   // Unbind the program of a stage
	CmdSetConstantBuffers // Upload parameter values only
	CmdSetGPUParams       // Upload parameter values and resources

	// Frame commands
	CmdBeginFrame        // Start a frame
	CmdEndFrame          // Finish a frame
	CmdClearRenderTarget // Clear the whole render target
	CmdClearViewport     // Clear the viewport area
	CmdSwapBuffers       // Present a render target
	CmdDraw              // Draw non-indexed primitives
	CmdDrawIndexed       // Draw indexed primitives

	// GPUCommandTypeCount is the number of command types.
	GPUCommandTypeCount
)

var gpuCommandTypeNames = [...]string{
	CmdSetSamplerState:      "SetSamplerState",
	CmdSetBlendState:        "SetBlendState",
	CmdSetRasterizerState:   "SetRasterizerState",
	CmdSetDepthStencilState: "SetDepthStencilState",
	CmdSetTexture:           "SetTexture",
	CmdDisableTextureUnit:   "DisableTextureUnit",
	CmdSetLoadStoreTexture:  "SetLoadStoreTexture",
	CmdSetViewport:          "SetViewport",
	CmdSetVertexBuffers:     "SetVertexBuffers",
	CmdSetIndexBuffer:       "SetIndexBuffer",
	CmdSetVertexDeclaration: "SetVertexDeclaration",
	CmdSetDrawOperation:     "SetDrawOperation",
	CmdSetClipPlanes:        "SetClipPlanes",
	CmdAddClipPlane:         "AddClipPlane",
	CmdResetClipPlanes:      "ResetClipPlanes",
	CmdSetScissorRect:       "SetScissorRect",
	CmdSetRenderTarget:      "SetRenderTarget",
	CmdBindGPUProgram:       "BindGPUProgram",
	CmdUnbindGPUProgram:     "UnbindGPUProgram",
	CmdSetConstantBuffers:   "SetConstantBuffers",
	CmdSetGPUParams:         "SetGPUParams",
	CmdBeginFrame:           "BeginFrame",
	CmdEndFrame:             "EndFrame",
	CmdClearRenderTarget:    "ClearRenderTarget",
	CmdClearViewport:        "ClearViewport",
	CmdSwapBuffers:          "SwapBuffers",
	CmdDraw:                 "Draw",
	CmdDrawIndexed:          "DrawIndexed",
}

// String returns the string representation of a GPUCommandType.
func (t GPUCommandType) String() string {
	if int(t) < len(gpuCommandTypeNames) {
		return gpuCommandTypeNames[t]
	}
	return "Unknown"
}

// GPUCommand is one recorded RenderAPI call. Only the fields used by its
// type are set. Arguments are captured when the command is recorded:
// state objects and parameter blocks are copied, slices are copied, and
// resources are referenced by pointer.
type GPUCommand struct {
	typ GPUCommandType

	stage   ProgramStage
	unit    uint32
	enabled bool

	sampler      *SamplerState
	blend        *BlendState
	rasterizer   *RasterizerState
	depthStencil *DepthStencilState
	stencilRef   uint32

	texture *Texture
	surface TextureSurface

	rect     Rect2
	index    uint32
	vbuffers []*VertexBuffer
	ibuffer  *IndexBuffer
	decl     *VertexDeclaration
	drawOp   DrawOperation

	planes  []Plane
	plane   Plane
	scissor [4]uint32

	target  *RenderTarget
	program *GPUProgram
	params  *GPUParams

	clearFlags   ClearFlags
	clearColor   Color
	clearDepth   float32
	clearStencil uint16

	// Draw arguments: vertexOffset, vertexCount for Draw;
	// startIndex, indexCount, vertexOffset, vertexCount for DrawIndexed.
	draw [4]uint32
}

// Type returns the verb the command replays.
func (c *GPUCommand) Type() GPUCommandType { return c.typ }

// String returns the verb name.
func (c *GPUCommand) String() string { return c.typ.String() }

// Submit replays the command against api.
func (c *GPUCommand) Submit(api RenderAPI) error {
	switch c.typ {
	case CmdSetSamplerState:
		return api.SetSamplerState(c.stage, c.unit, c.sampler)
	case CmdSetBlendState:
		return api.SetBlendState(c.blend)
	case CmdSetRasterizerState:
		return api.SetRasterizerState(c.rasterizer)
	case CmdSetDepthStencilState:
		return api.SetDepthStencilState(c.depthStencil, c.stencilRef)
	case CmdSetTexture:
		return api.SetTexture(c.stage, c.unit, c.enabled, c.texture)
	case CmdDisableTextureUnit:
		return api.DisableTextureUnit(c.stage, c.unit)
	case CmdSetLoadStoreTexture:
		return api.SetLoadStoreTexture(c.stage, c.unit, c.enabled, c.texture, c.surface)
	case CmdSetViewport:
		return api.SetViewport(c.rect)
	case CmdSetVertexBuffers:
		return api.SetVertexBuffers(c.index, c.vbuffers)
	case CmdSetIndexBuffer:
		return api.SetIndexBuffer(c.ibuffer)
	case CmdSetVertexDeclaration:
		return api.SetVertexDeclaration(c.decl)
	case CmdSetDrawOperation:
		return api.SetDrawOperation(c.drawOp)
	case CmdSetClipPlanes:
		return api.SetClipPlanes(c.planes)
	case CmdAddClipPlane:
		return api.AddClipPlane(c.plane)
	case CmdResetClipPlanes:
		return api.ResetClipPlanes()
	case CmdSetScissorRect:
		return api.SetScissorRect(c.scissor[0], c.scissor[1], c.scissor[2], c.scissor[3])
	case CmdSetRenderTarget:
		return api.SetRenderTarget(c.target)
	case CmdBindGPUProgram:
		return api.BindGPUProgram(c.program)
	case CmdUnbindGPUProgram:
		return api.UnbindGPUProgram(c.stage)
	case CmdSetConstantBuffers:
		return api.SetConstantBuffers(c.stage, c.params)
	case CmdSetGPUParams:
		return api.SetGPUParams(c.stage, c.params)
	case CmdBeginFrame:
		return api.BeginFrame()
	case CmdEndFrame:
		return api.EndFrame()
	case CmdClearRenderTarget:
		return api.ClearRenderTarget(c.clearFlags, c.clearColor, c.clearDepth, c.clearStencil)
	case CmdClearViewport:
		return api.ClearViewport(c.clearFlags, c.clearColor, c.clearDepth, c.clearStencil)
	case CmdSwapBuffers:
		return api.SwapBuffers(c.target)
	case CmdDraw:
		return api.Draw(c.draw[0], c.draw[1])
	case CmdDrawIndexed:
		return api.DrawIndexed(c.draw[0], c.draw[1], c.draw[2], c.draw[3])
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, c.typ)
	}
}
