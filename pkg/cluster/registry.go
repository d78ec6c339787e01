// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownCluster = errors.New("Unknown cluster")

// Registry holds started cluster handles by name.
// Registry is thread-safe.
type Registry struct {
	handles map[string]*Handle
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{handles: map[string]*Handle{}}
}

// Add records h. Names are unique
func (r *Registry) Add(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.handles[h.Name]; found {
		return fmt.Errorf("Cluster '%s' is already registered", h.Name)
	}
	r.handles[h.Name] = h
	return nil
}

func (r *Registry) Get(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, found := r.handles[name]
	if !found {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCluster, name)
	}
	return h, nil
}

// Remove forgets a cluster. This method is idempotent
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, name)
}

// Names returns registered cluster names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := []string{}
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByRole returns all handles with the given role, sorted by name
func (r *Registry) ByRole(role Role) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := []*Handle{}
	for _, h := range r.handles {
		if h.Role == role {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Name < handles[j].Name })
	return handles
}
