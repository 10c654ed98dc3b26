package native

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderq"
)

// pipelineState is the subset of bound renderq state that selects a
// render pipeline. Two draws with equal state hashes share a pipeline.
type pipelineState struct {
	vertex   *shaderEntry
	fragment *shaderEntry

	layouts  []gputypes.VertexBufferLayout
	topology gputypes.PrimitiveTopology

	raster       renderq.RasterizerState
	blend        renderq.BlendState
	depthStencil renderq.DepthStencilState

	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat
	sampleCount uint32
}

// hash computes an FNV-1a hash over every field that affects pipeline
// creation.
func (s *pipelineState) hash() uint64 {
	h := fnv.New64a()

	hashWriteUint64(h, s.vertex.codeHash)
	hashWriteString(h, s.vertex.entryPoint)
	hashWriteUint64(h, s.fragment.codeHash)
	hashWriteString(h, s.fragment.entryPoint)

	//nolint:gosec // G115: stream count is bounded by GPU limits (< 16)
	hashWriteUint32(h, uint32(len(s.layouts)))
	for i := range s.layouts {
		layout := &s.layouts[i]
		hashWriteUint64(h, layout.ArrayStride)
		hashWriteUint32(h, uint32(layout.StepMode))
		//nolint:gosec // G115: attribute count is bounded by GPU limits (< 32)
		hashWriteUint32(h, uint32(len(layout.Attributes)))
		for j := range layout.Attributes {
			attr := &layout.Attributes[j]
			hashWriteUint32(h, attr.ShaderLocation)
			hashWriteUint32(h, uint32(attr.Format))
			hashWriteUint64(h, attr.Offset)
		}
	}

	hashWriteUint32(h, uint32(s.topology))
	hashWriteUint32(h, uint32(s.raster.CullMode))
	hashWriteUint32(h, uint32(s.raster.FrontFace))
	hashWriteUint32(h, uint32(s.raster.PolygonMode))

	hashWriteBool(h, s.blend.AlphaToCoverage)
	blend := s.blend.Target(0)
	hashWriteBool(h, blend.Enabled)
	hashWriteUint32(h, uint32(blend.Color.Src))
	hashWriteUint32(h, uint32(blend.Color.Dst))
	hashWriteUint32(h, uint32(blend.Color.Op))
	hashWriteUint32(h, uint32(blend.Alpha.Src))
	hashWriteUint32(h, uint32(blend.Alpha.Dst))
	hashWriteUint32(h, uint32(blend.Alpha.Op))
	hashWriteUint32(h, uint32(blend.WriteMask))

	ds := &s.depthStencil
	hashWriteBool(h, ds.DepthRead)
	hashWriteBool(h, ds.DepthWrite)
	hashWriteUint32(h, uint32(ds.DepthCompare))
	hashWriteBool(h, ds.StencilEnable)
	hashWriteUint32(h, uint32(ds.StencilReadMask))
	hashWriteUint32(h, uint32(ds.StencilWriteMask))
	for _, f := range [2]renderq.StencilFace{ds.Front, ds.Back} {
		hashWriteUint32(h, uint32(f.Fail))
		hashWriteUint32(h, uint32(f.DepthFail))
		hashWriteUint32(h, uint32(f.Pass))
		hashWriteUint32(h, uint32(f.Compare))
	}

	hashWriteUint32(h, uint32(s.colorFormat))
	hashWriteUint32(h, uint32(s.depthFormat))
	hashWriteUint32(h, s.sampleCount)

	return h.Sum64()
}

// pipelineCache caches render pipelines by state hash.
//
// The render thread is the only writer, but Stats may be read from any
// goroutine, so lookups use RWMutex double-check locking.
type pipelineCache struct {
	mu        sync.RWMutex
	pipelines map[uint64]hal.RenderPipeline

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newPipelineCache() *pipelineCache {
	return &pipelineCache{pipelines: make(map[uint64]hal.RenderPipeline)}
}

// getOrCreate returns the pipeline cached under key, calling create on a
// miss. A failed create leaves the cache unchanged.
func (c *pipelineCache) getOrCreate(key uint64, create func() (hal.RenderPipeline, error)) (hal.RenderPipeline, error) {
	// Fast path: read lock
	c.mu.RLock()
	if p, ok := c.pipelines[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if p, ok := c.pipelines[key]; ok {
		c.hits.Add(1)
		return p, nil
	}

	p, err := create()
	if err != nil {
		return nil, err
	}
	c.pipelines[key] = p
	c.misses.Add(1)
	return p, nil
}

// stats returns cache hits and misses.
func (c *pipelineCache) stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *pipelineCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pipelines)
}

// destroyAll destroys every cached pipeline and empties the cache.
func (c *pipelineCache) destroyAll(device hal.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, p := range c.pipelines {
		if p != nil && device != nil {
			device.DestroyRenderPipeline(p)
		}
		delete(c.pipelines, key)
	}
}

// hashBytes returns the FNV-1a hash of data.
func hashBytes(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

//nolint:gosec // G115: entry point names are short
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
