package renderq

import (
	"fmt"
	"sort"
	"sync"
)

// BackendFactory creates a RenderAPI implementation. Factories may fail,
// for example when no GPU adapter is available.
type BackendFactory func() (RenderAPI, error)

// Registry state - protected by mutex for thread-safe access.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
)

// RegisterBackend registers a backend factory with the given name.
// Backend packages call it from init(), following the database/sql driver
// pattern:
//
//	func init() {
//	    renderq.RegisterBackend("software", func() (renderq.RenderAPI, error) {
//	        return New(800, 600), nil
//	    })
//	}
//
// RegisterBackend panics if factory is nil or the name is already taken.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("renderq: RegisterBackend factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("renderq: RegisterBackend called twice for " + name)
	}
	backends[name] = factory
}

// UnregisterBackend removes a backend from the registry.
// This is primarily useful for testing.
func UnregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// NewBackend creates a RenderAPI by registered name.
//
// Example:
//
//	import _ "github.com/gogpu/renderq/backend/software"
//
//	api, err := renderq.NewBackend("software")
func NewBackend(name string) (RenderAPI, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (forgotten import?)", ErrUnknownBackend, name)
	}
	api, err := factory()
	if err != nil {
		return nil, fmt.Errorf("renderq: create backend %q: %w", name, err)
	}
	Logger().Info("renderq: backend created", "backend", name)
	return api, nil
}

// Backends returns a sorted list of registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBackendRegistered reports whether a backend with the given name is
// registered.
func IsBackendRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}
