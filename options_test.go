package renderq

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	o := newOptions(nil)
	if o.errorPolicy != ErrorPolicyContinue {
		t.Errorf("errorPolicy = %v, want continue", o.errorPolicy)
	}
	if o.idleInterval != 5*time.Millisecond || o.queueCapacity != 64 || !o.lockOSThread {
		t.Errorf("defaults = %+v", o)
	}
	if o.log() != Logger() {
		t.Error("log() without WithLogger should return the package logger")
	}
}

func TestOptionsApply(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := newOptions([]Option{
		WithLogger(l),
		WithAllowAllThreads(true),
		WithErrorPolicy(ErrorPolicyAbort),
		WithIdleInterval(time.Millisecond),
		WithQueueCapacity(8),
		WithLockOSThread(false),
	})
	if o.log() != l || !o.allowAllThreads || o.errorPolicy != ErrorPolicyAbort {
		t.Errorf("options = %+v", o)
	}
	if o.idleInterval != time.Millisecond || o.queueCapacity != 8 || o.lockOSThread {
		t.Errorf("options = %+v", o)
	}
}

func TestOptionsIgnoreInvalid(t *testing.T) {
	o := newOptions([]Option{WithIdleInterval(0), WithIdleInterval(-time.Second), WithQueueCapacity(-1)})
	def := defaultOptions()
	if o.idleInterval != def.idleInterval || o.queueCapacity != def.queueCapacity {
		t.Errorf("invalid values applied: %+v", o)
	}
}

func TestErrorPolicyString(t *testing.T) {
	tests := []struct {
		p    ErrorPolicy
		want string
	}{
		{ErrorPolicyContinue, "continue"},
		{ErrorPolicyAbort, "abort"},
		{ErrorPolicy(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("ErrorPolicy(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
