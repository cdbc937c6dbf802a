package manager

import "sync"

// Registry maps session identities to their managers. It is owned by the
// process entry point and injected into whatever handles commands; there is
// no implicit global state.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	build    func(identity string) (*Manager, error)
}

// NewRegistry creates a registry that builds managers on demand. The build
// function may fail (e.g. the identity's lock is held by another process);
// only successful builds are cached.
func NewRegistry(build func(identity string) (*Manager, error)) *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
		build:    build,
	}
}

// Get returns the manager for identity, creating it on first use.
func (r *Registry) Get(identity string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[identity]; ok {
		return m, nil
	}
	m, err := r.build(identity)
	if err != nil {
		return nil, err
	}
	r.managers[identity] = m
	return m, nil
}

// Identities returns the identities with an instantiated manager.
func (r *Registry) Identities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	return ids
}

// DisconnectAll stops every live session. Used on daemon shutdown.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.Disconnect()
	}
}
