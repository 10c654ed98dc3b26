package renderq

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
backend: trace
error_policy: abort
idle_interval_ms: 2
queue_capacity: 16
lock_os_thread: false
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig() = %v", err)
	}
	if cfg.Backend != "trace" || cfg.ErrorPolicy != "abort" || cfg.IdleIntervalMS != 2 || cfg.QueueCapacity != 16 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LockOSThread == nil || *cfg.LockOSThread {
		t.Error("lock_os_thread: false was not applied")
	}

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	if o.errorPolicy != ErrorPolicyAbort || o.idleInterval != 2*time.Millisecond || o.queueCapacity != 16 || o.lockOSThread {
		t.Errorf("options = %+v", o)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("backend: software\n"))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.ErrorPolicy != def.ErrorPolicy || cfg.IdleIntervalMS != def.IdleIntervalMS || cfg.QueueCapacity != def.QueueCapacity {
		t.Errorf("missing fields did not keep defaults: %+v", cfg)
	}
	if cfg.LockOSThread == nil || !*cfg.LockOSThread {
		t.Error("lock_os_thread should default to true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown policy", "error_policy: retry\n"},
		{"zero idle", "idle_interval_ms: 0\n"},
		{"negative capacity", "queue_capacity: -1\n"},
		{"empty backend", "backend: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseConfig(%q) = %v, want ErrInvalidConfig", tt.yaml, err)
			}
		})
	}
}

func TestParseConfigMalformed(t *testing.T) {
	if _, err := ParseConfig([]byte("backend: [unterminated")); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderq.yaml")
	if err := os.WriteFile(path, []byte("backend: native\nidle_interval_ms: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}
	if cfg.Backend != "native" || cfg.IdleIntervalMS != 10 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) = %v, want os.ErrNotExist", err)
	}
}
