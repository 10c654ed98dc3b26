package renderq

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the render system options, typically
// loaded from a YAML file.
//
//	backend: software
//	error_policy: continue
//	idle_interval_ms: 5
//	queue_capacity: 64
//	lock_os_thread: true
//	allow_all_threads: false
type Config struct {
	Backend         string `yaml:"backend"`
	ErrorPolicy     string `yaml:"error_policy"`      // continue, abort
	IdleIntervalMS  int    `yaml:"idle_interval_ms"`  // render thread idle sleep
	QueueCapacity   int    `yaml:"queue_capacity"`    // initial global queue capacity
	LockOSThread    *bool  `yaml:"lock_os_thread"`    // default true
	AllowAllThreads bool   `yaml:"allow_all_threads"` // disable context ownership checks
}

// DefaultConfig returns the configuration equivalent to no options.
func DefaultConfig() Config {
	lock := true
	return Config{
		Backend:        "software",
		ErrorPolicy:    ErrorPolicyContinue.String(),
		IdleIntervalMS: 5,
		QueueCapacity:  64,
		LockOSThread:   &lock,
	}
}

// LoadConfig reads and validates a YAML configuration file. Fields missing
// from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("renderq: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML configuration data.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("renderq: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration values. All problems are reported
// together, each wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseErrorPolicy(c.ErrorPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.IdleIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("%w: idle_interval_ms must be positive, got %d", ErrInvalidConfig, c.IdleIntervalMS))
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("%w: queue_capacity must not be negative, got %d", ErrInvalidConfig, c.QueueCapacity))
	}
	if c.Backend == "" {
		errs = append(errs, fmt.Errorf("%w: backend must be set", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Options converts the configuration into render system options.
// The configuration must be valid.
func (c *Config) Options() []Option {
	policy, _ := parseErrorPolicy(c.ErrorPolicy)
	opts := []Option{
		WithErrorPolicy(policy),
		WithIdleInterval(time.Duration(c.IdleIntervalMS) * time.Millisecond),
		WithQueueCapacity(c.QueueCapacity),
		WithAllowAllThreads(c.AllowAllThreads),
	}
	if c.LockOSThread != nil {
		opts = append(opts, WithLockOSThread(*c.LockOSThread))
	}
	return opts
}

func parseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "", "continue":
		return ErrorPolicyContinue, nil
	case "abort":
		return ErrorPolicyAbort, nil
	default:
		return ErrorPolicyContinue, fmt.Errorf("%w: unknown error_policy %q", ErrInvalidConfig, s)
	}
}
