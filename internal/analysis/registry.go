package analysis

import (
	"sort"
	"sync"
)

// Registry is the process-wide catalog of analysis methods, populated
// once at startup and read-only during request handling. The lock only
// matters while plugins load; lookups afterwards are uncontended reads.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]*Descriptor
}

// NewRegistry creates an empty method catalog.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Descriptor)}
}

func registryKey(category, name string) string {
	return category + "/" + name
}

// Register adds a method, failing with DuplicateMethodError when the
// (category, name) key already exists. Idempotent re-registration is
// deliberately disallowed.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(d.Category, d.Name)
	if _, exists := r.methods[key]; exists {
		return &DuplicateMethodError{Category: d.Category, Name: d.Name}
	}
	r.methods[key] = d
	return nil
}

// Resolve returns the descriptor for (category, name) or
// UnknownMethodError.
func (r *Registry) Resolve(category, name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.methods[registryKey(category, name)]
	if !ok {
		return nil, &UnknownMethodError{Category: category, Name: name}
	}
	return d, nil
}

// MethodInfo is a catalog listing entry.
type MethodInfo struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LongRunning bool   `json:"long_running"`
	Chunkable   bool   `json:"chunkable"`
}

// List returns the catalog sorted by category then name.
func (r *Registry) List() []MethodInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MethodInfo, 0, len(r.methods))
	for _, d := range r.methods {
		out = append(out, MethodInfo{
			Category:    d.Category,
			Name:        d.Name,
			Description: d.Description,
			LongRunning: d.LongRunning,
			Chunkable:   d.Chunkable(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods)
}
