package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNilDevice is returned when a backend is created without a device or queue.
	ErrNilDevice = errors.New("native: device or queue is nil")

	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNoHALProvider is returned when a device provider does not expose HAL handles.
	ErrNoHALProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrFrameNotStarted is returned when a verb that records GPU work is
	// called outside BeginFrame/EndFrame.
	ErrFrameNotStarted = errors.New("native: frame not started")

	// ErrFrameInProgress is returned when BeginFrame is called twice.
	ErrFrameInProgress = errors.New("native: frame already in progress")

	// ErrNoRenderTarget is returned when drawing or clearing with no target bound.
	ErrNoRenderTarget = errors.New("native: no render target bound")

	// ErrNoProgram is returned when drawing without vertex and fragment programs.
	ErrNoProgram = errors.New("native: vertex and fragment programs must be bound")

	// ErrNoVertexDeclaration is returned when drawing without a vertex declaration.
	ErrNoVertexDeclaration = errors.New("native: vertex declaration is not set")

	// ErrNoIndexBuffer is returned by DrawIndexed when no index buffer is bound.
	ErrNoIndexBuffer = errors.New("native: index buffer is not set")

	// ErrUnsupportedTopology is returned for draw operations WebGPU cannot express.
	ErrUnsupportedTopology = errors.New("native: unsupported draw operation")

	// ErrUnsupportedStage is returned for program stages without a WebGPU equivalent.
	ErrUnsupportedStage = errors.New("native: unsupported program stage")

	// ErrResourceBindingUnsupported is returned when a texture or sampler
	// is bound to a program unit. The HAL object is created and cached, but
	// programs can only read uniform parameters.
	ErrResourceBindingUnsupported = errors.New("native: texture and sampler units are not bound to programs")

	// ErrPartialClear is returned when clearing a viewport smaller than the target.
	ErrPartialClear = errors.New("native: partial viewport clears are not supported")

	// ErrGPUTimeout is returned when a submitted frame does not complete in time.
	ErrGPUTimeout = errors.New("native: timed out waiting for GPU")
)
