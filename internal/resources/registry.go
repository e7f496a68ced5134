package resources

import (
	"fmt"
	"sort"
	"sync"
)

type key struct {
	module, name string
}

// Registry maps (module, resource) to resource descriptors.
type Registry struct {
	mu        sync.RWMutex
	resources map[key]*Resource
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[key]*Resource)}
}

// Register adds res. Registering the same (module, name) twice is an error.
func (r *Registry) Register(res *Resource) error {
	if res.Module == "" || res.Name == "" {
		return fmt.Errorf("resource needs a module and a name")
	}
	if res.Build == nil {
		return fmt.Errorf("resource %s has no Build function", res.Key())
	}
	if res.Table == "" {
		res.Table = res.Key()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{res.Module, res.Name}
	if _, exists := r.resources[k]; exists {
		return fmt.Errorf("resource already registered: %s/%s", res.Module, res.Name)
	}
	r.resources[k] = res
	return nil
}

// MustRegister is Register that panics, for startup wiring.
func (r *Registry) MustRegister(res *Resource) {
	if err := r.Register(res); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(module, name string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[key{module, name}]
	return res, ok
}

// Has reports whether (module, name) is registered.
func (r *Registry) Has(module, name string) bool {
	_, ok := r.Get(module, name)
	return ok
}

// All returns every resource sorted by module then name.
func (r *Registry) All() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		result = append(result, res)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Module != result[j].Module {
			return result[i].Module < result[j].Module
		}
		return result[i].Name < result[j].Name
	})
	return result
}
