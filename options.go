package renderq

import (
	"log/slog"
	"time"
)

// ErrorPolicy decides what happens to the rest of a batch when a recorded
// command fails on the render thread.
type ErrorPolicy uint8

const (
	// ErrorPolicyContinue logs the failure and keeps executing the batch.
	// All failures are returned joined.
	ErrorPolicyContinue ErrorPolicy = iota

	// ErrorPolicyAbort stops at the first failure and discards the rest of
	// the batch.
	ErrorPolicyAbort
)

// String returns the policy name as used in configuration files.
func (p ErrorPolicy) String() string {
	switch p {
	case ErrorPolicyContinue:
		return "continue"
	case ErrorPolicyAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Option configures a RenderSystem or DeferredContext during creation.
//
// Example:
//
//	rs := renderq.NewRenderSystem(api,
//	    renderq.WithErrorPolicy(renderq.ErrorPolicyAbort),
//	    renderq.WithIdleInterval(time.Millisecond),
//	)
type Option func(*options)

// options holds optional configuration.
type options struct {
	logger          *slog.Logger
	allowAllThreads bool
	errorPolicy     ErrorPolicy
	idleInterval    time.Duration
	queueCapacity   int
	lockOSThread    bool
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{
		errorPolicy:   ErrorPolicyContinue,
		idleInterval:  5 * time.Millisecond,
		queueCapacity: 64,
		lockOSThread:  true,
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// log returns the configured logger, falling back to the package logger.
func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

// WithLogger sets a logger used instead of the package-level logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithAllowAllThreads disables the goroutine ownership checks of deferred
// contexts. Recording from several goroutines then needs external
// synchronization.
func WithAllowAllThreads(allow bool) Option {
	return func(o *options) {
		o.allowAllThreads = allow
	}
}

// WithErrorPolicy selects how command failures are handled during playback.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(o *options) {
		o.errorPolicy = p
	}
}

// WithIdleInterval sets how long the render thread sleeps when it has not
// been woken by new work. Non-positive values are ignored.
func WithIdleInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleInterval = d
		}
	}
}

// WithQueueCapacity sets the initial capacity of the global command list.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.queueCapacity = n
		}
	}
}

// WithLockOSThread controls whether the render goroutine is pinned to its
// OS thread. Native graphics APIs require it; it is on by default.
func WithLockOSThread(lock bool) Option {
	return func(o *options) {
		o.lockOSThread = lock
	}
}
