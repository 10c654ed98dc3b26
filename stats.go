package renderq

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// ContextStats is a snapshot of a DeferredContext's counters.
type ContextStats struct {
	ID uuid.UUID

	// Pending is the number of commands recorded since the last SubmitToGPU.
	Pending int

	FramesSubmitted  uint64
	FramesDropped    uint64
	FramesPlayed     uint64
	CommandsExecuted uint64
	SubmitErrors     uint64
}

// Stats is a snapshot of a RenderSystem's counters, including the sum of
// every registered context.
type Stats struct {
	Running    bool
	Iterations uint64

	// QueueBatches counts non-empty flushes of the global command queue.
	QueueBatches     uint64
	QueuedCommands   uint64
	ExecutedCommands uint64

	FramesSubmitted uint64
	FramesDropped   uint64
	FramesPlayed    uint64
	GPUCommands     uint64
	SubmitErrors    uint64

	Contexts []ContextStats
}

type contextCounters struct {
	framesSubmitted  atomic.Uint64
	framesDropped    atomic.Uint64
	framesPlayed     atomic.Uint64
	commandsExecuted atomic.Uint64
	submitErrors     atomic.Uint64
}

type systemCounters struct {
	iterations       atomic.Uint64
	queueBatches     atomic.Uint64
	queuedCommands   atomic.Uint64
	executedCommands atomic.Uint64
}
