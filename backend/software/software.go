// Package software provides a headless CPU renderq backend.
//
// The backend keeps an RGBA color surface plus depth and stencil planes for
// every render target, performs clears on the CPU, validates draws against
// the bound vertex and index data, and presents with golang.org/x/image/draw.
// It does not run shader programs; draws are checked and counted. This makes
// it the reference backend for tests and for hosts without a GPU.
package software

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/gogpu/renderq"
)

// BackendName is the registry name of the software backend.
const BackendName = "software"

func init() {
	renderq.RegisterBackend(BackendName, func() (renderq.RenderAPI, error) {
		return New(), nil
	})
}

// Software backend errors.
var (
	// ErrFrameNotStarted is returned for clears and draws outside a frame.
	ErrFrameNotStarted = errors.New("software: frame not started")

	// ErrFrameInProgress is returned when BeginFrame is called twice.
	ErrFrameInProgress = errors.New("software: frame already in progress")

	// ErrNoRenderTarget is returned when clearing or drawing with no target bound.
	ErrNoRenderTarget = errors.New("software: no render target bound")

	// ErrVertexRange is returned when a draw reads past the bound vertex data.
	ErrVertexRange = errors.New("software: draw exceeds bound vertex data")

	// ErrIndexRange is returned when an indexed draw reads past the index buffer.
	ErrIndexRange = errors.New("software: draw exceeds bound index data")

	// ErrNoIndexBuffer is returned by DrawIndexed when no index buffer is bound.
	ErrNoIndexBuffer = errors.New("software: index buffer is not set")

	// ErrUnsupportedTopology is returned for draw operations without a primitive count rule.
	ErrUnsupportedTopology = errors.New("software: unsupported draw operation")
)

// Stats reports backend activity.
type Stats struct {
	Frames     uint64
	Clears     uint64
	Draws      uint64
	Primitives uint64
	Presents   uint64
}

// surface is the CPU storage of a render target.
type surface struct {
	color   *image.RGBA
	depth   []float32
	stencil []uint8
	front   *image.RGBA
}

func newSurface(rt *renderq.RenderTarget) *surface {
	bounds := image.Rect(0, 0, int(rt.Width), int(rt.Height))
	s := &surface{color: image.NewRGBA(bounds)}
	if rt.HasDepth() {
		n := int(rt.Width) * int(rt.Height)
		s.depth = make([]float32, n)
		s.stencil = make([]uint8, n)
	}
	return s
}

// Backend is a CPU implementation of renderq.RenderAPI.
//
// Backend is not safe for concurrent use apart from Stats and Frontbuffer.
type Backend struct {
	inFrame bool

	target   *renderq.RenderTarget
	surfaces map[*renderq.RenderTarget]*surface

	viewport renderq.Rect2
	raster   renderq.RasterizerState
	scissor  image.Rectangle
	drawOp   renderq.DrawOperation
	vbuffers map[uint32]*renderq.VertexBuffer
	ibuffer  *renderq.IndexBuffer

	mu    sync.Mutex
	stats Stats
}

// New returns a software backend with no render target bound.
func New() *Backend {
	return &Backend{
		surfaces: make(map[*renderq.RenderTarget]*surface),
		viewport: renderq.FullViewport,
		raster:   renderq.DefaultRasterizerState(),
		drawOp:   renderq.DrawTriangleList,
		vbuffers: make(map[uint32]*renderq.VertexBuffer),
	}
}

// Stats returns a snapshot of backend activity.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Backbuffer returns the color surface of target, or nil if nothing has
// been rendered to it.
func (b *Backend) Backbuffer(target *renderq.RenderTarget) *image.RGBA {
	if s, ok := b.surfaces[target]; ok {
		return s.color
	}
	return nil
}

// Frontbuffer returns the last image presented for target by SwapBuffers.
func (b *Backend) Frontbuffer(target *renderq.RenderTarget) *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.surfaces[target]; ok {
		return s.front
	}
	return nil
}

// PresentTo scales the last presented image of target into dst.
func (b *Backend) PresentTo(dst draw.Image, target *renderq.RenderTarget) error {
	front := b.Frontbuffer(target)
	if front == nil {
		return fmt.Errorf("software: %q has not been presented", target.Label)
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), front, front.Bounds(), draw.Src, nil)
	return nil
}

func (b *Backend) surface() (*surface, error) {
	if b.target == nil {
		return nil, ErrNoRenderTarget
	}
	s, ok := b.surfaces[b.target]
	if !ok {
		s = newSurface(b.target)
		b.mu.Lock()
		b.surfaces[b.target] = s
		b.mu.Unlock()
	}
	return s, nil
}

// State changes that only affect shading are accepted and ignored.

func (b *Backend) SetSamplerState(renderq.ProgramStage, uint32, *renderq.SamplerState) error { return nil }
func (b *Backend) SetBlendState(*renderq.BlendState) error                                   { return nil }
func (b *Backend) SetDepthStencilState(*renderq.DepthStencilState, uint32) error             { return nil }
func (b *Backend) SetTexture(renderq.ProgramStage, uint32, bool, *renderq.Texture) error     { return nil }
func (b *Backend) DisableTextureUnit(renderq.ProgramStage, uint32) error                     { return nil }
func (b *Backend) SetVertexDeclaration(*renderq.VertexDeclaration) error                     { return nil }
func (b *Backend) SetClipPlanes([]renderq.Plane) error                                       { return nil }
func (b *Backend) AddClipPlane(renderq.Plane) error                                          { return nil }
func (b *Backend) ResetClipPlanes() error                                                    { return nil }
func (b *Backend) BindGPUProgram(*renderq.GPUProgram) error                                  { return nil }
func (b *Backend) UnbindGPUProgram(renderq.ProgramStage) error                               { return nil }
func (b *Backend) SetConstantBuffers(renderq.ProgramStage, *renderq.GPUParams) error         { return nil }
func (b *Backend) SetGPUParams(renderq.ProgramStage, *renderq.GPUParams) error               { return nil }

func (b *Backend) SetLoadStoreTexture(renderq.ProgramStage, uint32, bool, *renderq.Texture, renderq.TextureSurface) error {
	return nil
}

func (b *Backend) SetRasterizerState(state *renderq.RasterizerState) error {
	b.raster = *state
	return nil
}

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

func (b *Backend) SetDrawOperation(op renderq.DrawOperation) error {
	b.drawOp = op
	return nil
}

func (b *Backend) SetScissorRect(left, top, right, bottom uint32) error {
	b.scissor = image.Rect(int(left), int(top), int(right), int(bottom))
	return nil
}

func (b *Backend) SetRenderTarget(target *renderq.RenderTarget) error {
	b.target = target
	return nil
}

func (b *Backend) BeginFrame() error {
	if b.inFrame {
		return ErrFrameInProgress
	}
	b.inFrame = true
	return nil
}

func (b *Backend) EndFrame() error {
	if !b.inFrame {
		return ErrFrameNotStarted
	}
	b.inFrame = false
	b.mu.Lock()
	b.stats.Frames++
	b.mu.Unlock()
	return nil
}

// ClearRenderTarget clears the whole target.
func (b *Backend) ClearRenderTarget(flags renderq.ClearFlags, c renderq.Color, depth float32, stencil uint16) error {
	s, err := b.beginClear()
	if err != nil {
		return err
	}
	b.clear(s, s.color.Bounds(), flags, c, depth, stencil)
	return nil
}

// ClearViewport clears the current viewport, clipped to the scissor
// rectangle when scissor testing is enabled.
func (b *Backend) ClearViewport(flags renderq.ClearFlags, c renderq.Color, depth float32, stencil uint16) error {
	s, err := b.beginClear()
	if err != nil {
		return err
	}
	b.clear(s, b.viewportRect(s.color.Bounds()), flags, c, depth, stencil)
	return nil
}

func (b *Backend) beginClear() (*surface, error) {
	if !b.inFrame {
		return nil, ErrFrameNotStarted
	}
	return b.surface()
}

// viewportRect converts the normalized viewport to pixels within bounds.
func (b *Backend) viewportRect(bounds image.Rectangle) image.Rectangle {
	w, h := float32(bounds.Dx()), float32(bounds.Dy())
	r := image.Rect(
		int(math.Floor(float64(b.viewport.X*w))),
		int(math.Floor(float64(b.viewport.Y*h))),
		int(math.Ceil(float64((b.viewport.X+b.viewport.Width)*w))),
		int(math.Ceil(float64((b.viewport.Y+b.viewport.Height)*h))),
	).Intersect(bounds)
	if b.raster.ScissorEnable {
		r = r.Intersect(b.scissor)
	}
	return r
}

func (b *Backend) clear(s *surface, r image.Rectangle, flags renderq.ClearFlags, c renderq.Color, depth float32, stencil uint16) {
	if flags&renderq.ClearColor != 0 {
		draw.Draw(s.color, r, image.NewUniform(toRGBA(c)), image.Point{}, draw.Src)
	}
	if s.depth != nil && flags&(renderq.ClearDepth|renderq.ClearStencil) != 0 {
		stride := s.color.Bounds().Dx()
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := y * stride
			for x := r.Min.X; x < r.Max.X; x++ {
				if flags&renderq.ClearDepth != 0 {
					s.depth[row+x] = depth
				}
				if flags&renderq.ClearStencil != 0 {
					s.stencil[row+x] = uint8(stencil) //nolint:gosec // G115: 8-bit stencil plane
				}
			}
		}
	}
	b.mu.Lock()
	b.stats.Clears++
	b.mu.Unlock()
}

func toRGBA(c renderq.Color) color.RGBA {
	clamp := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return color.RGBA{R: clamp(float64(c.R)), G: clamp(float64(c.G)), B: clamp(float64(c.B)), A: clamp(float64(c.A))}
}

// SwapBuffers copies the color surface of target to its front buffer.
func (b *Backend) SwapBuffers(target *renderq.RenderTarget) error {
	if target == nil {
		return ErrNoRenderTarget
	}
	s, ok := b.surfaces[target]
	if !ok {
		return fmt.Errorf("software: %q has no rendered content", target.Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.front == nil {
		s.front = image.NewRGBA(s.color.Bounds())
	}
	draw.Copy(s.front, image.Point{}, s.color, s.color.Bounds(), draw.Src, nil)
	b.stats.Presents++
	return nil
}

func (b *Backend) Draw(vertexOffset, vertexCount uint32) error {
	if err := b.checkDraw(); err != nil {
		return err
	}
	for slot, vb := range b.vbuffers {
		if uint64(vertexOffset)+uint64(vertexCount) > uint64(vb.VertexCount) {
			return fmt.Errorf("%w: stream %d has %d vertices, draw needs %d",
				ErrVertexRange, slot, vb.VertexCount, vertexOffset+vertexCount)
		}
	}
	return b.countDraw(vertexCount)
}

func (b *Backend) DrawIndexed(startIndex, indexCount, vertexOffset, vertexCount uint32) error {
	if err := b.checkDraw(); err != nil {
		return err
	}
	if b.ibuffer == nil {
		return ErrNoIndexBuffer
	}
	if uint64(startIndex)+uint64(indexCount) > uint64(b.ibuffer.IndexCount) {
		return fmt.Errorf("%w: %d indices bound, draw needs %d",
			ErrIndexRange, b.ibuffer.IndexCount, startIndex+indexCount)
	}
	if err := b.checkIndices(startIndex, indexCount, vertexOffset, vertexCount); err != nil {
		return err
	}
	return b.countDraw(indexCount)
}

func (b *Backend) checkDraw() error {
	if !b.inFrame {
		return ErrFrameNotStarted
	}
	_, err := b.surface()
	return err
}

// checkIndices verifies every referenced vertex lies in
// [vertexOffset, vertexOffset+vertexCount).
func (b *Backend) checkIndices(startIndex, indexCount, vertexOffset, vertexCount uint32) error {
	size := b.ibuffer.Type.Size()
	data := b.ibuffer.Data
	for i := startIndex; i < startIndex+indexCount; i++ {
		off := int(i) * size
		if off+size > len(data) {
			return fmt.Errorf("%w: index %d outside %d bytes of data", ErrIndexRange, i, len(data))
		}
		var idx uint32
		if size == 4 {
			idx = uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		} else {
			idx = uint32(data[off]) | uint32(data[off+1])<<8
		}
		if idx >= vertexCount {
			return fmt.Errorf("%w: index %d references vertex %d of %d",
				ErrVertexRange, i, vertexOffset+idx, vertexOffset+vertexCount)
		}
	}
	return nil
}

// primitives returns the number of primitives n vertices form.
func primitives(op renderq.DrawOperation, n uint32) (uint32, error) {
	switch op {
	case renderq.DrawPointList:
		return n, nil
	case renderq.DrawLineList:
		return n / 2, nil
	case renderq.DrawLineStrip:
		return max(n, 1) - 1, nil
	case renderq.DrawTriangleList:
		return n / 3, nil
	case renderq.DrawTriangleStrip, renderq.DrawTriangleFan:
		return max(n, 2) - 2, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTopology, op)
	}
}

func (b *Backend) countDraw(n uint32) error {
	prims, err := primitives(b.drawOp, n)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.stats.Draws++
	b.stats.Primitives += uint64(prims)
	b.mu.Unlock()
	return nil
}

var _ renderq.RenderAPI = (*Backend)(nil)
