// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderq

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// MaxRenderTargets is the number of color attachments a BlendState describes.
const MaxRenderTargets = 8

// ProgramStage identifies a programmable pipeline stage.
type ProgramStage uint8

const (
	StageVertex ProgramStage = iota
	StageFragment
	StageGeometry
	StageHull
	StageDomain
	StageCompute

	// StageCount is the number of program stages.
	StageCount
)

var programStageNames = [...]string{
	StageVertex:   "Vertex",
	StageFragment: "Fragment",
	StageGeometry: "Geometry",
	StageHull:     "Hull",
	StageDomain:   "Domain",
	StageCompute:  "Compute",
}

// String returns a human-readable name for the stage.
func (s ProgramStage) String() string {
	if int(s) < len(programStageNames) {
		return programStageNames[s]
	}
	return fmt.Sprintf("ProgramStage(%d)", s)
}

// Valid reports whether s names a known stage.
func (s ProgramStage) Valid() bool { return s < StageCount }

// ShaderStage maps s to the WebGPU shader stage. Stages WebGPU does not
// expose report false.
func (s ProgramStage) ShaderStage() (gputypes.ShaderStage, bool) {
	switch s {
	case StageVertex:
		return gputypes.ShaderStageVertex, true
	case StageFragment:
		return gputypes.ShaderStageFragment, true
	case StageCompute:
		return gputypes.ShaderStageCompute, true
	default:
		return 0, false
	}
}

// FilterMode selects texel filtering for a SamplerState.
type FilterMode uint8

const (
	FilterNone FilterMode = iota
	FilterPoint
	FilterLinear
	FilterAnisotropic
)

// AddressMode selects how texture coordinates outside [0, 1] are handled.
type AddressMode uint8

const (
	AddressWrap AddressMode = iota
	AddressMirror
	AddressClamp
	AddressBorder
)

// SamplerState describes how a texture unit samples its texture.
type SamplerState struct {
	MinFilter FilterMode
	MagFilter FilterMode
	MipFilter FilterMode

	AddressU AddressMode
	AddressV AddressMode
	AddressW AddressMode

	MaxAnisotropy uint32
	MipMin        float32
	MipMax        float32
	MipBias       float32

	Compare     gputypes.CompareFunction
	BorderColor gputypes.Color
}

// DefaultSamplerState returns trilinear filtering with wrapped addressing.
func DefaultSamplerState() SamplerState {
	return SamplerState{
		MinFilter:     FilterLinear,
		MagFilter:     FilterLinear,
		MipFilter:     FilterPoint,
		MaxAnisotropy: 1,
		MipMax:        1000,
		Compare:       gputypes.CompareFunctionAlways,
	}
}

// BlendComponent is the blend equation for either color or alpha.
type BlendComponent struct {
	Src gputypes.BlendFactor
	Dst gputypes.BlendFactor
	Op  gputypes.BlendOperation
}

// TargetBlend is the blend configuration for one color attachment.
type TargetBlend struct {
	Enabled   bool
	Color     BlendComponent
	Alpha     BlendComponent
	WriteMask gputypes.ColorWriteMask
}

// BlendState describes output merger blending for every color attachment.
// When IndependentBlend is false only Targets[0] is used.
type BlendState struct {
	AlphaToCoverage  bool
	IndependentBlend bool
	Targets          [MaxRenderTargets]TargetBlend
}

// DefaultBlendState returns a state with blending disabled and all channels
// writable.
func DefaultBlendState() BlendState {
	var b BlendState
	for i := range b.Targets {
		b.Targets[i] = TargetBlend{
			Color:     BlendComponent{Src: gputypes.BlendFactorOne, Dst: gputypes.BlendFactorZero, Op: gputypes.BlendOperationAdd},
			Alpha:     BlendComponent{Src: gputypes.BlendFactorOne, Dst: gputypes.BlendFactorZero, Op: gputypes.BlendOperationAdd},
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}
	return b
}

// Target returns the effective blend for attachment i.
func (b *BlendState) Target(i int) TargetBlend {
	if !b.IndependentBlend {
		return b.Targets[0]
	}
	return b.Targets[i]
}

// PolygonMode selects how triangles are rasterized.
type PolygonMode uint8

const (
	PolygonFill PolygonMode = iota
	PolygonWireframe
)

// RasterizerState describes triangle setup and rasterization.
type RasterizerState struct {
	PolygonMode PolygonMode
	CullMode    gputypes.CullMode
	FrontFace   gputypes.FrontFace

	DepthBias            float32
	DepthBiasClamp       float32
	SlopeScaledDepthBias float32

	DepthClip       bool
	ScissorEnable   bool
	Multisample     bool
	AntialiasedLine bool
}

// DefaultRasterizerState returns solid fill with no culling.
func DefaultRasterizerState() RasterizerState {
	return RasterizerState{
		CullMode:  gputypes.CullModeNone,
		DepthClip: true,
	}
}

// StencilOp is the action taken on the stencil buffer after a test.
type StencilOp uint8

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrementClamp
	StencilDecrementClamp
	StencilInvert
	StencilIncrementWrap
	StencilDecrementWrap
)

// StencilFace holds the stencil operations for one triangle facing.
type StencilFace struct {
	Fail      StencilOp
	DepthFail StencilOp
	Pass      StencilOp
	Compare   gputypes.CompareFunction
}

// DepthStencilState describes depth and stencil testing.
type DepthStencilState struct {
	DepthRead    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction

	StencilEnable    bool
	StencilReadMask  uint8
	StencilWriteMask uint8
	Front            StencilFace
	Back             StencilFace
}

// DefaultDepthStencilState returns depth testing with less-equal
// comparison and stencil disabled.
func DefaultDepthStencilState() DepthStencilState {
	face := StencilFace{Compare: gputypes.CompareFunctionAlways}
	return DepthStencilState{
		DepthRead:        true,
		DepthWrite:       true,
		DepthCompare:     gputypes.CompareFunctionLessEqual,
		StencilReadMask:  0xFF,
		StencilWriteMask: 0xFF,
		Front:            face,
		Back:             face,
	}
}
