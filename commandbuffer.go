package renderq

import "sync"

// defaultBufferCapacity is the initial command capacity of a pooled buffer.
const defaultBufferCapacity = 128

// maxPooledCapacity bounds the buffers returned to the pool so one huge
// frame does not pin its memory forever.
const maxPooledCapacity = 64 * 1024

// CommandBuffer is a contiguous, ordered arena of recorded GPU commands.
//
// CommandBuffer is not safe for concurrent use. A DeferredContext owns its
// buffers and hands them between goroutines under its own lock.
type CommandBuffer struct {
	cmds []GPUCommand
}

var commandBufferPool = sync.Pool{
	New: func() any {
		return &CommandBuffer{cmds: make([]GPUCommand, 0, defaultBufferCapacity)}
	},
}

// acquireCommandBuffer returns an empty buffer from the pool.
func acquireCommandBuffer() *CommandBuffer {
	return commandBufferPool.Get().(*CommandBuffer)
}

// release clears the buffer and returns it to the pool. The buffer must
// not be used afterwards.
func (b *CommandBuffer) release() {
	clear(b.cmds)
	if cap(b.cmds) > maxPooledCapacity {
		return
	}
	b.cmds = b.cmds[:0]
	commandBufferPool.Put(b)
}

func (b *CommandBuffer) append(c GPUCommand) {
	b.cmds = append(b.cmds, c)
}

// Len returns the number of recorded commands.
func (b *CommandBuffer) Len() int { return len(b.cmds) }

// Commands returns the recorded commands in submission order.
// The slice aliases the buffer and is valid until the buffer is released.
func (b *CommandBuffer) Commands() []GPUCommand { return b.cmds }
