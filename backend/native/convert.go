package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderq"
)

// Conversions from renderq state to HAL descriptors.

func convertFilter(f renderq.FilterMode) gputypes.FilterMode {
	switch f {
	case renderq.FilterLinear, renderq.FilterAnisotropic:
		return gputypes.FilterModeLinear
	default:
		return gputypes.FilterModeNearest
	}
}

func convertAddress(a renderq.AddressMode) gputypes.AddressMode {
	switch a {
	case renderq.AddressWrap:
		return gputypes.AddressModeRepeat
	case renderq.AddressMirror:
		return gputypes.AddressModeMirrorRepeat
	default:
		// WebGPU has no border addressing.
		return gputypes.AddressModeClampToEdge
	}
}

func samplerDescriptor(label string, s *renderq.SamplerState) *hal.SamplerDescriptor {
	return &hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: convertAddress(s.AddressU),
		AddressModeV: convertAddress(s.AddressV),
		AddressModeW: convertAddress(s.AddressW),
		MagFilter:    convertFilter(s.MagFilter),
		MinFilter:    convertFilter(s.MinFilter),
		MipmapFilter: convertFilter(s.MipFilter),
	}
}

func convertStencilOp(op renderq.StencilOp) hal.StencilOperation {
	switch op {
	case renderq.StencilZero:
		return hal.StencilOperationZero
	case renderq.StencilReplace:
		return hal.StencilOperationReplace
	case renderq.StencilIncrementClamp:
		return hal.StencilOperationIncrementClamp
	case renderq.StencilDecrementClamp:
		return hal.StencilOperationDecrementClamp
	case renderq.StencilInvert:
		return hal.StencilOperationInvert
	case renderq.StencilIncrementWrap:
		return hal.StencilOperationIncrementWrap
	case renderq.StencilDecrementWrap:
		return hal.StencilOperationDecrementWrap
	default:
		return hal.StencilOperationKeep
	}
}

func convertStencilFace(f renderq.StencilFace, enabled bool) hal.StencilFaceState {
	if !enabled {
		return hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
	}
	return hal.StencilFaceState{
		Compare:     f.Compare,
		FailOp:      convertStencilOp(f.Fail),
		DepthFailOp: convertStencilOp(f.DepthFail),
		PassOp:      convertStencilOp(f.Pass),
	}
}

// depthStencilState returns nil when the target has no depth surface.
func depthStencilState(ds *renderq.DepthStencilState, format gputypes.TextureFormat) *hal.DepthStencilState {
	if format == gputypes.TextureFormatUndefined {
		return nil
	}
	compare := ds.DepthCompare
	if !ds.DepthRead {
		compare = gputypes.CompareFunctionAlways
	}
	return &hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: ds.DepthWrite,
		DepthCompare:      compare,
		StencilFront:      convertStencilFace(ds.Front, ds.StencilEnable),
		StencilBack:       convertStencilFace(ds.Back, ds.StencilEnable),
		StencilReadMask:   uint32(ds.StencilReadMask),
		StencilWriteMask:  uint32(ds.StencilWriteMask),
	}
}

// colorTarget builds the color target for attachment 0, the only color
// attachment a renderq target carries.
func colorTarget(b *renderq.BlendState, format gputypes.TextureFormat) gputypes.ColorTargetState {
	t := b.Target(0)
	target := gputypes.ColorTargetState{
		Format:    format,
		WriteMask: t.WriteMask,
	}
	if t.Enabled {
		target.Blend = &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: t.Color.Src,
				DstFactor: t.Color.Dst,
				Operation: t.Color.Op,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: t.Alpha.Src,
				DstFactor: t.Alpha.Dst,
				Operation: t.Alpha.Op,
			},
		}
	}
	return target
}

// vertexLayouts builds one buffer layout per stream of decl. Shader
// locations are assigned in declaration order.
func vertexLayouts(decl *renderq.VertexDeclaration) []gputypes.VertexBufferLayout {
	layouts := make([]gputypes.VertexBufferLayout, decl.Streams())
	for i := range layouts {
		//nolint:gosec // G115: stream count is bounded by GPU limits
		layouts[i].ArrayStride = uint64(decl.StreamStride(uint16(i)))
		layouts[i].StepMode = gputypes.VertexStepModeVertex
	}
	for loc, e := range decl.Elements {
		if e.StepRate > 0 {
			layouts[e.Stream].StepMode = gputypes.VertexStepModeInstance
		}
		layouts[e.Stream].Attributes = append(layouts[e.Stream].Attributes, gputypes.VertexAttribute{
			Format:         e.Format,
			Offset:         uint64(e.Offset),
			ShaderLocation: uint32(loc), //nolint:gosec // G115: element count is small
		})
	}
	return layouts
}

func indexFormat(t renderq.IndexType) gputypes.IndexFormat {
	if t == renderq.Index32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

func loadOp(clear bool) gputypes.LoadOp {
	if clear {
		return gputypes.LoadOpClear
	}
	return gputypes.LoadOpLoad
}

// alignedSize rounds n up to the 4-byte copy alignment with a minimum of 4.
func alignedSize(n int) uint64 {
	if n < 4 {
		return 4
	}
	return uint64(n+3) &^ 3
}

// padded returns data extended with zeros to alignedSize(len(data)).
func padded(data []byte) []byte {
	size := int(alignedSize(len(data))) //nolint:gosec // G115: bounded by len(data)+3
	if size == len(data) {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
