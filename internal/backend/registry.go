package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/scribe/internal/model"
)

// ErrNoBackend is returned by Resolve when no backend serves the model.
var ErrNoBackend = errors.New("no backend for model")

// Info pairs a backend name with its capabilities.
type Info struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered backends and resolves which one serves a model.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	fallback string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend under name. The first registered backend serves
// the "auto" model unless SetDefault picks another.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	if r.fallback == "" {
		r.fallback = name
	}
}

// SetDefault selects the backend used for the "auto" model.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("backend %q is not registered", name)
	}
	r.fallback = name
	return nil
}

// Resolve returns the backend for modelName. A backend matches when it is
// registered under that name or lists it in its capabilities; "auto" and the
// empty name resolve to the default backend.
func (r *Registry) Resolve(modelName string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if modelName == "" || modelName == model.ModelAuto {
		if b, ok := r.backends[r.fallback]; ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w %q: registry is empty", ErrNoBackend, model.ModelAuto)
	}

	if b, ok := r.backends[modelName]; ok {
		return b, nil
	}
	for _, name := range r.sortedNames() {
		b := r.backends[name]
		for _, m := range b.Capabilities().Models {
			if m == modelName {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoBackend, modelName)
}

// List returns information about all registered backends, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.backends))
	for _, name := range r.sortedNames() {
		infos = append(infos, Info{
			Name:         name,
			Capabilities: r.backends[name].Capabilities(),
		})
	}
	return infos
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
