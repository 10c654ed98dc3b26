// Package renderq provides a deferred render command queue and a dedicated
// render thread for Go programs that drive a GPU.
//
// # Overview
//
// Game or simulation goroutines record GPU state changes and draw calls
// into a DeferredContext. Recorded commands are executed later, exactly
// once and in recording order, on the render thread owned by a
// RenderSystem. The render thread is the only caller of the RenderAPI.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/renderq"
//	    _ "github.com/gogpu/renderq/backend/software"
//	)
//
//	api, _ := renderq.NewBackend("software")
//	rs := renderq.NewRenderSystem(api)
//	_ = rs.Start()
//	defer rs.Shutdown(context.Background())
//
//	dc := rs.CreateDeferredContext()
//	dc.SetViewport(renderq.FullViewport)
//	dc.ClearRenderTarget(renderq.ClearColor, renderq.Color{A: 1}, 1, 0)
//	dc.SubmitToGPU()
//
// # Deferred Contexts
//
// Each DeferredContext double-buffers its commands. SubmitToGPU hands the
// recorded buffer to the render thread without blocking. If the render
// thread has not consumed the previous buffer yet, that buffer is dropped:
// producers never wait for the consumer, at the cost of skipped frames.
//
// # Global Command Queue
//
// Arbitrary functions can be run on the render thread with
// RenderSystem.QueueCommand and RenderSystem.QueueReturnCommand. The
// latter returns an AsyncOp that is resolved once the function has run.
// Both can block the caller until execution.
//
// # Backends
//
// Backends implement RenderAPI and register themselves by name:
//   - backend/software: headless reference backend that clears into image.RGBA
//   - backend/native: WebGPU HAL via gogpu/wgpu
//   - backend/trace: records every call and encodes the trace with msgpack
//
// # Logging
//
// renderq is silent by default. Use SetLogger to route its log/slog output.
package renderq

// Version is the current version of the library.
const Version = "0.1.0"
