package renderq

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// GPU resources are plain descriptors. They must not be modified once
// referenced by a recorded command; backends create and cache their
// native objects on the render thread on first use.

// Texture describes a texture resource.
type Texture struct {
	Label       string
	Width       uint32
	Height      uint32
	Depth       uint32
	MipLevels   uint32
	ArrayLayers uint32
	Format      gputypes.TextureFormat
	Usage       gputypes.TextureUsage
}

// IndexType is the element width of an index buffer.
type IndexType uint8

const (
	Index16 IndexType = iota
	Index32
)

// Size returns the size in bytes of one index.
func (t IndexType) Size() int {
	if t == Index32 {
		return 4
	}
	return 2
}

// VertexBuffer describes a buffer of vertex data.
type VertexBuffer struct {
	Label       string
	VertexSize  uint32
	VertexCount uint32
	Data        []byte
}

// IndexBuffer describes a buffer of index data.
type IndexBuffer struct {
	Label      string
	Type       IndexType
	IndexCount uint32
	Data       []byte
}

// VertexSemantic names the meaning of a vertex element.
type VertexSemantic uint8

const (
	SemanticPosition VertexSemantic = iota
	SemanticNormal
	SemanticTangent
	SemanticColor
	SemanticTexCoord
	SemanticBlendWeights
	SemanticBlendIndices
)

// VertexElement is one attribute within a vertex stream.
type VertexElement struct {
	Stream        uint16
	Offset        uint32
	Format        gputypes.VertexFormat
	Semantic      VertexSemantic
	SemanticIndex uint16
	StepRate      uint32
}

// VertexDeclaration describes the layout of all vertex streams.
type VertexDeclaration struct {
	Elements []VertexElement
}

// StreamStride returns the byte stride of stream, computed from the end of
// its furthest element.
func (d *VertexDeclaration) StreamStride(stream uint16) uint32 {
	var stride uint32
	for _, e := range d.Elements {
		if e.Stream != stream {
			continue
		}
		if end := e.Offset + vertexFormatSize(e.Format); end > stride {
			stride = end
		}
	}
	return stride
}

// Streams returns the number of streams referenced by the declaration.
func (d *VertexDeclaration) Streams() int {
	n := 0
	for _, e := range d.Elements {
		if int(e.Stream)+1 > n {
			n = int(e.Stream) + 1
		}
	}
	return n
}

func vertexFormatSize(f gputypes.VertexFormat) uint32 {
	switch f {
	case gputypes.VertexFormatFloat32:
		return 4
	case gputypes.VertexFormatFloat32x2:
		return 8
	case gputypes.VertexFormatFloat32x3:
		return 12
	case gputypes.VertexFormatFloat32x4:
		return 16
	default:
		return 4
	}
}

// RenderTarget describes a surface that draws are rendered into.
type RenderTarget struct {
	Label       string
	Width       uint32
	Height      uint32
	ColorFormat gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat
	SampleCount uint32
}

// HasDepth reports whether the target carries a depth-stencil surface.
func (rt *RenderTarget) HasDepth() bool {
	return rt.DepthFormat != gputypes.TextureFormatUndefined
}

// GPUProgram is a shader program for one pipeline stage.
type GPUProgram struct {
	Label      string
	Stage      ProgramStage
	Source     string
	EntryPoint string
	Params     *GPUParamsDesc
}

// GPUParamDesc describes one value parameter within a parameter block.
type GPUParamDesc struct {
	Name   string
	Offset uint32
	Size   uint32
}

// GPUParamsDesc describes the parameter layout of a program.
// It is shared between every GPUParams created from it.
type GPUParamsDesc struct {
	Values   []GPUParamDesc
	Textures []string
	Samplers []string
	DataSize uint32
}

func (d *GPUParamsDesc) value(name string) (GPUParamDesc, bool) {
	for _, p := range d.Values {
		if p.Name == name {
			return p, true
		}
	}
	return GPUParamDesc{}, false
}

// GPUParams holds parameter values for a program. Value data and bound
// resources are per instance; the layout is shared.
type GPUParams struct {
	desc     *GPUParamsDesc
	data     []byte
	textures []*Texture
	samplers []*SamplerState
}

// NewGPUParams allocates parameter storage for desc.
func NewGPUParams(desc *GPUParamsDesc) *GPUParams {
	return &GPUParams{
		desc:     desc,
		data:     make([]byte, desc.DataSize),
		textures: make([]*Texture, len(desc.Textures)),
		samplers: make([]*SamplerState, len(desc.Samplers)),
	}
}

// Desc returns the shared layout.
func (p *GPUParams) Desc() *GPUParamsDesc { return p.desc }

// Data returns the raw value buffer.
func (p *GPUParams) Data() []byte { return p.data }

// SetValue copies v into the named value parameter.
func (p *GPUParams) SetValue(name string, v []byte) error {
	d, ok := p.desc.value(name)
	if !ok {
		return fmt.Errorf("renderq: gpu params: unknown parameter %q", name)
	}
	if uint32(len(v)) > d.Size {
		return fmt.Errorf("renderq: gpu params: %q: value of %d bytes exceeds %d", name, len(v), d.Size)
	}
	copy(p.data[d.Offset:d.Offset+d.Size], v)
	return nil
}

// Value returns the bytes of the named value parameter.
func (p *GPUParams) Value(name string) ([]byte, bool) {
	d, ok := p.desc.value(name)
	if !ok {
		return nil, false
	}
	return p.data[d.Offset : d.Offset+d.Size], true
}

// SetTexture binds tex to texture slot i.
func (p *GPUParams) SetTexture(i int, tex *Texture) { p.textures[i] = tex }

// Texture returns the texture bound to slot i.
func (p *GPUParams) Texture(i int) *Texture { return p.textures[i] }

// SetSampler binds a copy of s to sampler slot i.
func (p *GPUParams) SetSampler(i int, s SamplerState) { p.samplers[i] = &s }

// Sampler returns the sampler bound to slot i.
func (p *GPUParams) Sampler(i int) *SamplerState { return p.samplers[i] }

// Clone returns a copy whose value buffer and bindings are independent of
// p. The layout is shared.
func (p *GPUParams) Clone() *GPUParams {
	return &GPUParams{
		desc:     p.desc,
		data:     append([]byte(nil), p.data...),
		textures: append([]*Texture(nil), p.textures...),
		samplers: append([]*SamplerState(nil), p.samplers...),
	}
}
