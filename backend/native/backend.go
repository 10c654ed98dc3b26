// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native provides a GPU renderq backend on top of the gogpu/wgpu
// HAL.
//
// The backend encodes RenderAPI verbs into a HAL command encoder. A frame
// is bracketed by BeginFrame and EndFrame; EndFrame submits the encoded
// work and waits on a fence. Resources are created lazily on first use and
// cached by descriptor pointer until Close.
//
// Program parameters are exposed to shaders as uniform buffers in bind
// group 0: binding 0 holds the vertex program's values and binding 1 the
// fragment program's.
package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan HAL backend

	"github.com/gogpu/renderq"
)

// BackendName is the registry name of the native backend.
const BackendName = "native"

func init() {
	renderq.RegisterBackend(BackendName, func() (renderq.RenderAPI, error) {
		return Open()
	})
}

// minUniformSize is the smallest uniform buffer the backend allocates.
const minUniformSize = 16

// Stats reports backend activity since creation.
type Stats struct {
	Frames          uint64
	Passes          uint64
	Draws           uint64
	Swaps           uint64
	ShadersCompiled int
	BuffersUploaded int
	Pipelines       int
	PipelineHits    uint64
	PipelineMisses  uint64
}

// Backend is a renderq.RenderAPI backed by a HAL device.
//
// Backend is not safe for concurrent use apart from Stats; renderq calls it
// only from the render thread.
type Backend struct {
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance // non-nil when the backend opened its own device

	res       *resourceCache
	pipelines *pipelineCache
	frame     frame

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout

	// bound state
	blend        renderq.BlendState
	raster       renderq.RasterizerState
	depthStencil renderq.DepthStencilState
	stencilRef   uint32
	viewport     renderq.Rect2
	scissor      [4]uint32
	drawOp       renderq.DrawOperation
	decl         *renderq.VertexDeclaration
	vbuffers     map[uint32]*renderq.VertexBuffer
	ibuffer      *renderq.IndexBuffer
	target       *renderq.RenderTarget
	programs     [renderq.StageCount]*renderq.GPUProgram
	params       [renderq.StageCount]*renderq.GPUParams
	planes       []renderq.Plane

	// uniforms uploaded this frame, by parameter block
	uniforms map[*renderq.GPUParams]hal.Buffer

	mu    sync.Mutex
	stats Stats
}

// New creates a backend on an existing device and queue. The caller keeps
// ownership of both.
func New(device hal.Device, queue hal.Queue) (*Backend, error) {
	return newBackend(device, queue, gputypes.TextureFormatBGRA8Unorm)
}

// NewFromProvider creates a backend that shares the device of a host
// application. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return newBackend(device, queue, provider.SurfaceFormat())
}

// Open creates a backend on the first suitable Vulkan adapter, preferring
// discrete and integrated GPUs. The device is destroyed by Close.
func Open() (*Backend, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}
	b, err := newBackend(openDev.Device, openDev.Queue, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	b.instance = instance
	renderq.Logger().Info("native: device opened", "adapter", selected.Info.Name)
	return b, nil
}

func newBackend(device hal.Device, queue hal.Queue, surfaceFormat gputypes.TextureFormat) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	b := &Backend{
		device:       device,
		queue:        queue,
		res:          newResourceCache(device, queue, surfaceFormat),
		pipelines:    newPipelineCache(),
		frame:        frame{device: device, queue: queue},
		blend:        renderq.DefaultBlendState(),
		raster:       renderq.DefaultRasterizerState(),
		depthStencil: renderq.DefaultDepthStencilState(),
		viewport:     renderq.FullViewport,
		drawOp:       renderq.DrawTriangleList,
		vbuffers:     make(map[uint32]*renderq.VertexBuffer),
		uniforms:     make(map[*renderq.GPUParams]hal.Buffer),
	}
	if err := b.createLayouts(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) createLayouts() error {
	visibility := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "renderq_params_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("native: create params layout: %w", err)
	}
	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "renderq_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		b.device.DestroyBindGroupLayout(bindLayout)
		return fmt.Errorf("native: create pipeline layout: %w", err)
	}
	b.bindLayout = bindLayout
	b.pipeLayout = pipeLayout
	return nil
}

// Device returns the HAL device.
func (b *Backend) Device() hal.Device { return b.device }

// State returns the frame encoder state.
func (b *Backend) State() FrameState { return b.frame.state }

// Stats returns a snapshot of backend activity.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	s := b.stats
	b.mu.Unlock()
	s.ShadersCompiled = b.res.shadersCompiled
	s.BuffersUploaded = b.res.buffersUploaded
	s.Pipelines = b.pipelines.size()
	s.PipelineHits, s.PipelineMisses = b.pipelines.stats()
	return s
}

func (b *Backend) count(fn func(*Stats)) {
	b.mu.Lock()
	fn(&b.stats)
	b.mu.Unlock()
}

// Close abandons any open frame and releases every GPU object the backend
// created. A device opened by Open is destroyed as well.
func (b *Backend) Close() {
	b.frame.discard()
	b.releaseUniforms()
	b.pipelines.destroyAll(b.device)
	b.res.destroyAll()
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
	if b.instance != nil {
		b.device.Destroy()
		b.instance.Destroy()
		b.instance = nil
	}
}

func (b *Backend) releaseUniforms() {
	clear(b.uniforms)
}

var _ renderq.RenderAPI = (*Backend)(nil)
