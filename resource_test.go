package renderq

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestGPUParamsClone(t *testing.T) {
	desc := &GPUParamsDesc{
		Values:   []GPUParamDesc{{Name: "color", Offset: 0, Size: 4}, {Name: "scale", Offset: 4, Size: 4}},
		Textures: []string{"albedo"},
		Samplers: []string{"albedo_sampler"},
		DataSize: 8,
	}
	p := NewGPUParams(desc)
	if err := p.SetValue("scale", []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	tex := &Texture{Label: "albedo"}
	p.SetTexture(0, tex)
	p.SetSampler(0, DefaultSamplerState())

	c := p.Clone()
	if c.Desc() != desc {
		t.Error("Clone should share the layout")
	}
	_ = p.SetValue("scale", []byte{9, 9, 9, 9})
	p.SetTexture(0, nil)

	if v, _ := c.Value("scale"); v[0] != 1 {
		t.Errorf("clone value = %v, want independent copy", v)
	}
	if c.Texture(0) != tex {
		t.Error("clone texture binding changed with the original")
	}
	if c.Sampler(0) == nil || c.Sampler(0).MinFilter != FilterLinear {
		t.Error("clone sampler binding lost")
	}
}

func TestGPUParamsSetValueErrors(t *testing.T) {
	p := NewGPUParams(&GPUParamsDesc{Values: []GPUParamDesc{{Name: "v", Size: 2}}, DataSize: 2})
	if err := p.SetValue("missing", []byte{1}); err == nil {
		t.Error("SetValue(unknown) should fail")
	}
	if err := p.SetValue("v", []byte{1, 2, 3}); err == nil {
		t.Error("SetValue(oversized) should fail")
	}
	if _, ok := p.Value("missing"); ok {
		t.Error("Value(unknown) should report false")
	}
}

func TestVertexDeclarationStride(t *testing.T) {
	d := &VertexDeclaration{Elements: []VertexElement{
		{Stream: 0, Offset: 0, Format: gputypes.VertexFormatFloat32x3, Semantic: SemanticPosition},
		{Stream: 0, Offset: 12, Format: gputypes.VertexFormatFloat32x2, Semantic: SemanticTexCoord},
		{Stream: 1, Offset: 0, Format: gputypes.VertexFormatFloat32x4, Semantic: SemanticColor},
	}}
	if got := d.StreamStride(0); got != 20 {
		t.Errorf("StreamStride(0) = %d, want 20", got)
	}
	if got := d.StreamStride(1); got != 16 {
		t.Errorf("StreamStride(1) = %d, want 16", got)
	}
	if got := d.Streams(); got != 2 {
		t.Errorf("Streams() = %d, want 2", got)
	}
}

func TestClearFlagsString(t *testing.T) {
	tests := []struct {
		f    ClearFlags
		want string
	}{
		{0, "None"},
		{ClearColor, "Color"},
		{ClearColor | ClearStencil, "Color|Stencil"},
		{ClearAll, "Color|Depth|Stencil"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("ClearFlags(%d).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestDrawOperationTopology(t *testing.T) {
	if top, ok := DrawTriangleList.Topology(); !ok || top != gputypes.PrimitiveTopologyTriangleList {
		t.Errorf("DrawTriangleList.Topology() = %v, %v", top, ok)
	}
	if _, ok := DrawTriangleFan.Topology(); ok {
		t.Error("triangle fans have no WebGPU topology")
	}
	if DrawOperation(99).String() != "DrawOperation(99)" {
		t.Errorf("unknown DrawOperation string = %q", DrawOperation(99).String())
	}
}

func TestProgramStage(t *testing.T) {
	if StageFragment.String() != "Fragment" || !StageCompute.Valid() || StageCount.Valid() {
		t.Error("ProgramStage names or validity are wrong")
	}
	if _, ok := StageGeometry.ShaderStage(); ok {
		t.Error("geometry stage has no WebGPU shader stage")
	}
	if s, ok := StageVertex.ShaderStage(); !ok || s != gputypes.ShaderStageVertex {
		t.Errorf("StageVertex.ShaderStage() = %v, %v", s, ok)
	}
}

func TestBlendStateTarget(t *testing.T) {
	b := DefaultBlendState()
	b.Targets[0].Enabled = true
	if !b.Target(3).Enabled {
		t.Error("without independent blend every target uses Targets[0]")
	}
	b.IndependentBlend = true
	if b.Target(3).Enabled {
		t.Error("independent blend should use the target's own entry")
	}
}

func TestCommandBufferPool(t *testing.T) {
	b := acquireCommandBuffer()
	b.append(GPUCommand{typ: CmdDraw})
	b.append(GPUCommand{typ: CmdEndFrame})
	if b.Len() != 2 || b.Commands()[1].Type() != CmdEndFrame {
		t.Fatalf("buffer = %v", b.Commands())
	}
	b.release()

	b2 := acquireCommandBuffer()
	if b2.Len() != 0 {
		t.Errorf("acquired buffer has %d stale commands", b2.Len())
	}
	b2.release()
}
