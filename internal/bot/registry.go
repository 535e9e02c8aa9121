package bot

import "sync"

// Registry collects modules before the bot starts. Modules register
// themselves from init functions, so the registry must tolerate
// concurrent registration during package initialization.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a module to the registry.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
}

// Modules returns a snapshot of the registered modules, in registration
// order. Later registrations do not affect a returned snapshot.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Module, len(r.modules))
	copy(snapshot, r.modules)
	return snapshot
}

// defaultRegistry receives the self-registrations from module init
// functions.
var defaultRegistry = NewRegistry()

// Register adds a module to the default registry. Called from module
// init functions.
func Register(m Module) {
	defaultRegistry.Register(m)
}

// Modules returns all modules from the default registry.
func Modules() []Module {
	return defaultRegistry.Modules()
}

// ResetGlobalRegistry replaces the default registry with an empty one.
// Intended for tests.
func ResetGlobalRegistry() {
	defaultRegistry = NewRegistry()
}
