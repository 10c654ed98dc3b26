package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderq"
)

// shaderEntry is a compiled GPUProgram.
type shaderEntry struct {
	module     hal.ShaderModule
	entryPoint string
	codeHash   uint64
}

// targetEntry holds the attachments of a RenderTarget.
type targetEntry struct {
	color     hal.Texture
	colorView hal.TextureView
	depth     hal.Texture
	depthView hal.TextureView

	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat
	sampleCount uint32
}

// textureEntry holds a texture and its default view.
type textureEntry struct {
	texture hal.Texture
	view    hal.TextureView
}

// resourceCache maps renderq descriptors to HAL objects. Entries are
// created on first use and live until the backend is closed. It is only
// used from the render thread.
type resourceCache struct {
	device hal.Device
	queue  hal.Queue

	shaders  map[*renderq.GPUProgram]*shaderEntry
	targets  map[*renderq.RenderTarget]*targetEntry
	textures map[*renderq.Texture]*textureEntry
	vbuffers map[*renderq.VertexBuffer]hal.Buffer
	ibuffers map[*renderq.IndexBuffer]hal.Buffer
	samplers map[renderq.SamplerState]hal.Sampler

	surfaceFormat gputypes.TextureFormat

	shadersCompiled int
	buffersUploaded int
}

func newResourceCache(device hal.Device, queue hal.Queue, surfaceFormat gputypes.TextureFormat) *resourceCache {
	return &resourceCache{
		device:        device,
		queue:         queue,
		shaders:       make(map[*renderq.GPUProgram]*shaderEntry),
		targets:       make(map[*renderq.RenderTarget]*targetEntry),
		textures:      make(map[*renderq.Texture]*textureEntry),
		vbuffers:      make(map[*renderq.VertexBuffer]hal.Buffer),
		ibuffers:      make(map[*renderq.IndexBuffer]hal.Buffer),
		samplers:      make(map[renderq.SamplerState]hal.Sampler),
		surfaceFormat: surfaceFormat,
	}
}

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

func (c *resourceCache) shader(prg *renderq.GPUProgram) (*shaderEntry, error) {
	if e, ok := c.shaders[prg]; ok {
		return e, nil
	}
	code, err := compileSPIRV(prg.Source)
	if err != nil {
		return nil, fmt.Errorf("native: compile %s program %q: %w", prg.Stage, prg.Label, err)
	}
	module, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  prg.Label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create shader module %q: %w", prg.Label, err)
	}
	entry := prg.EntryPoint
	if entry == "" {
		entry = "main"
	}
	e := &shaderEntry{
		module:     module,
		entryPoint: entry,
		codeHash:   hashBytes([]byte(prg.Source)),
	}
	c.shaders[prg] = e
	c.shadersCompiled++
	return e, nil
}

func (c *resourceCache) target(rt *renderq.RenderTarget) (*targetEntry, error) {
	if e, ok := c.targets[rt]; ok {
		return e, nil
	}
	samples := rt.SampleCount
	if samples == 0 {
		samples = 1
	}
	format := rt.ColorFormat
	if format == gputypes.TextureFormatUndefined {
		format = c.surfaceFormat
	}
	size := hal.Extent3D{Width: rt.Width, Height: rt.Height, DepthOrArrayLayers: 1}

	e := &targetEntry{colorFormat: format, depthFormat: rt.DepthFormat, sampleCount: samples}
	color, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         rt.Label + "_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create color attachment %q: %w", rt.Label, err)
	}
	e.color = color
	if e.colorView, err = c.device.CreateTextureView(color, &hal.TextureViewDescriptor{Label: rt.Label + "_color_view"}); err != nil {
		c.destroyTarget(e)
		return nil, fmt.Errorf("native: create color view %q: %w", rt.Label, err)
	}

	if rt.HasDepth() {
		depth, err := c.device.CreateTexture(&hal.TextureDescriptor{
			Label:         rt.Label + "_depth",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   samples,
			Dimension:     gputypes.TextureDimension2D,
			Format:        rt.DepthFormat,
			Usage:         gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			c.destroyTarget(e)
			return nil, fmt.Errorf("native: create depth attachment %q: %w", rt.Label, err)
		}
		e.depth = depth
		if e.depthView, err = c.device.CreateTextureView(depth, &hal.TextureViewDescriptor{Label: rt.Label + "_depth_view"}); err != nil {
			c.destroyTarget(e)
			return nil, fmt.Errorf("native: create depth view %q: %w", rt.Label, err)
		}
	}

	c.targets[rt] = e
	return e, nil
}

func (c *resourceCache) texture(tex *renderq.Texture, usage gputypes.TextureUsage) (*textureEntry, error) {
	if e, ok := c.textures[tex]; ok {
		return e, nil
	}
	dim := gputypes.TextureDimension2D
	layers := max(tex.ArrayLayers, 1)
	if tex.Depth > 1 {
		dim = gputypes.TextureDimension3D
		layers = tex.Depth
	}
	t, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         tex.Label,
		Size:          hal.Extent3D{Width: tex.Width, Height: max(tex.Height, 1), DepthOrArrayLayers: layers},
		MipLevelCount: max(tex.MipLevels, 1),
		SampleCount:   1,
		Dimension:     dim,
		Format:        tex.Format,
		Usage:         tex.Usage | usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %q: %w", tex.Label, err)
	}
	view, err := c.device.CreateTextureView(t, &hal.TextureViewDescriptor{Label: tex.Label + "_view"})
	if err != nil {
		c.device.DestroyTexture(t)
		return nil, fmt.Errorf("native: create texture view %q: %w", tex.Label, err)
	}
	e := &textureEntry{texture: t, view: view}
	c.textures[tex] = e
	return e, nil
}

func (c *resourceCache) sampler(s *renderq.SamplerState) (hal.Sampler, error) {
	if smp, ok := c.samplers[*s]; ok {
		return smp, nil
	}
	smp, err := c.device.CreateSampler(samplerDescriptor("renderq_sampler", s))
	if err != nil {
		return nil, fmt.Errorf("native: create sampler: %w", err)
	}
	c.samplers[*s] = smp
	return smp, nil
}

// upload creates a buffer holding data.
func (c *resourceCache) upload(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alignedSize(len(data)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer %q: %w", label, err)
	}
	c.queue.WriteBuffer(buf, 0, padded(data))
	c.buffersUploaded++
	return buf, nil
}

func (c *resourceCache) vertexBuffer(vb *renderq.VertexBuffer) (hal.Buffer, error) {
	if buf, ok := c.vbuffers[vb]; ok {
		return buf, nil
	}
	buf, err := c.upload(vb.Label, vb.Data, gputypes.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	c.vbuffers[vb] = buf
	return buf, nil
}

func (c *resourceCache) indexBuffer(ib *renderq.IndexBuffer) (hal.Buffer, error) {
	if buf, ok := c.ibuffers[ib]; ok {
		return buf, nil
	}
	buf, err := c.upload(ib.Label, ib.Data, gputypes.BufferUsageIndex)
	if err != nil {
		return nil, err
	}
	c.ibuffers[ib] = buf
	return buf, nil
}

func (c *resourceCache) destroyTarget(e *targetEntry) {
	if e.depthView != nil {
		c.device.DestroyTextureView(e.depthView)
	}
	if e.depth != nil {
		c.device.DestroyTexture(e.depth)
	}
	if e.colorView != nil {
		c.device.DestroyTextureView(e.colorView)
	}
	if e.color != nil {
		c.device.DestroyTexture(e.color)
	}
}

// destroyAll releases every cached object.
func (c *resourceCache) destroyAll() {
	for k, e := range c.targets {
		c.destroyTarget(e)
		delete(c.targets, k)
	}
	for k, e := range c.textures {
		c.device.DestroyTextureView(e.view)
		c.device.DestroyTexture(e.texture)
		delete(c.textures, k)
	}
	for k, buf := range c.vbuffers {
		c.device.DestroyBuffer(buf)
		delete(c.vbuffers, k)
	}
	for k, buf := range c.ibuffers {
		c.device.DestroyBuffer(buf)
		delete(c.ibuffers, k)
	}
	for k, smp := range c.samplers {
		c.device.DestroySampler(smp)
		delete(c.samplers, k)
	}
	for k, e := range c.shaders {
		c.device.DestroyShaderModule(e.module)
		delete(c.shaders, k)
	}
}
