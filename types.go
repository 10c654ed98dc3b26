package renderq

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Color is an RGBA color with components in [0, 1].
type Color = gputypes.Color

// Rect2 is an axis-aligned rectangle. Viewports use normalized
// coordinates relative to the current render target.
type Rect2 struct {
	X, Y          float32
	Width, Height float32
}

// FullViewport covers the whole render target.
var FullViewport = Rect2{Width: 1, Height: 1}

// Plane is a clip plane in the form Normal·p + D = 0.
type Plane struct {
	Normal [3]float32
	D      float32
}

// ClearFlags selects the buffers affected by a clear.
type ClearFlags uint8

const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth
	ClearStencil

	ClearAll = ClearColor | ClearDepth | ClearStencil
)

// String returns the set flags joined with "|".
func (f ClearFlags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	if f&ClearColor != 0 {
		parts = append(parts, "Color")
	}
	if f&ClearDepth != 0 {
		parts = append(parts, "Depth")
	}
	if f&ClearStencil != 0 {
		parts = append(parts, "Stencil")
	}
	return strings.Join(parts, "|")
}

// DrawOperation is the primitive topology used by Draw and DrawIndexed.
type DrawOperation uint8

const (
	DrawPointList DrawOperation = iota
	DrawLineList
	DrawLineStrip
	DrawTriangleList
	DrawTriangleStrip
	DrawTriangleFan
)

var drawOperationNames = [...]string{
	DrawPointList:     "PointList",
	DrawLineList:      "LineList",
	DrawLineStrip:     "LineStrip",
	DrawTriangleList:  "TriangleList",
	DrawTriangleStrip: "TriangleStrip",
	DrawTriangleFan:   "TriangleFan",
}

// String returns a human-readable name for the operation.
func (op DrawOperation) String() string {
	if int(op) < len(drawOperationNames) {
		return drawOperationNames[op]
	}
	return fmt.Sprintf("DrawOperation(%d)", op)
}

// Topology maps op to a WebGPU primitive topology. Triangle fans have no
// WebGPU equivalent and report false.
func (op DrawOperation) Topology() (gputypes.PrimitiveTopology, bool) {
	switch op {
	case DrawPointList:
		return gputypes.PrimitiveTopologyPointList, true
	case DrawLineList:
		return gputypes.PrimitiveTopologyLineList, true
	case DrawLineStrip:
		return gputypes.PrimitiveTopologyLineStrip, true
	case DrawTriangleList:
		return gputypes.PrimitiveTopologyTriangleList, true
	case DrawTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip, true
	default:
		return 0, false
	}
}

// TextureSurface selects a range of mip levels and array faces of a texture.
// A zero count selects everything from the start index onwards.
type TextureSurface struct {
	MipLevel     uint32
	NumMipLevels uint32
	Face         uint32
	NumFaces     uint32
}

// CompleteSurface selects every mip level and face.
var CompleteSurface = TextureSurface{}
