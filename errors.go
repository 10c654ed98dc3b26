package renderq

import "errors"

// Sentinel errors returned by renderq. Callers should compare with errors.Is,
// since most of them are wrapped with the failing operation's name.
var (
	// ErrThreadViolation is returned when a thread-bound object is used from
	// a goroutine other than the one it is bound to.
	ErrThreadViolation = errors.New("renderq: called from a goroutine that does not own the object")

	// ErrNotRenderThread is returned when a render-thread-only operation is
	// invoked from any other goroutine.
	ErrNotRenderThread = errors.New("renderq: operation is only valid on the render thread")

	// ErrNilResource is returned when a required GPU resource argument is nil.
	ErrNilResource = errors.New("renderq: resource is nil")

	// ErrInvalidStage is returned when a ProgramStage argument is out of range.
	ErrInvalidStage = errors.New("renderq: invalid program stage")

	// ErrUnknownCommand is returned when a GPUCommand carries a tag that no
	// RenderAPI verb corresponds to.
	ErrUnknownCommand = errors.New("renderq: unknown command type")

	// ErrRenderThreadStopped is returned to callers waiting on a command when
	// the render thread exits before the command executes.
	ErrRenderThreadStopped = errors.New("renderq: render thread stopped")

	// ErrAlreadyStarted is returned by Start when the render thread is running.
	ErrAlreadyStarted = errors.New("renderq: render system already started")

	// ErrNotStarted is returned when an operation requires a running render thread.
	ErrNotStarted = errors.New("renderq: render system not started")

	// ErrContextReleased is returned when a released DeferredContext is used.
	ErrContextReleased = errors.New("renderq: deferred context has been released")

	// ErrUnknownBackend is returned by NewBackend for unregistered names.
	ErrUnknownBackend = errors.New("renderq: unknown backend")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("renderq: invalid config")
)
