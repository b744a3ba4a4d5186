package tracking

import (
	"sync"
)

// PermissionTable records the last location permission each device
// reported. Devices that never reported are denied.
type PermissionTable struct {
	mu      sync.RWMutex
	granted map[string]bool
}

func NewPermissionTable() *PermissionTable {
	return &PermissionTable{granted: map[string]bool{}}
}

func (p *PermissionTable) Set(deviceID string, granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted[deviceID] = granted
}

func (p *PermissionTable) LocationGranted(deviceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.granted[deviceID]
}

// Registry hands out one Manager per device.
type Registry struct {
	opts        Options
	deps        Deps
	permissions *PermissionTable

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry builds a registry whose managers share deps. When deps carry
// no Permissions, a PermissionTable is installed.
func NewRegistry(opts Options, deps Deps) *Registry {
	r := &Registry{
		opts:     opts,
		managers: map[string]*Manager{},
	}
	if deps.Permissions == nil {
		r.permissions = NewPermissionTable()
		deps.Permissions = r.permissions
	} else if table, ok := deps.Permissions.(*PermissionTable); ok {
		r.permissions = table
	}
	r.deps = deps
	return r
}

// Manager returns the device's manager, creating it on first use.
func (r *Registry) Manager(deviceID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[deviceID]
	if !ok {
		m = NewManager(deviceID, r.opts, r.deps)
		r.managers[deviceID] = m
	}
	return m
}

func (r *Registry) Lookup(deviceID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[deviceID]
	return m, ok
}

// Permissions is nil when the registry was given an external Permissions.
func (r *Registry) Permissions() *PermissionTable {
	return r.permissions
}

func (r *Registry) Close() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.managers = map[string]*Manager{}
	r.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
