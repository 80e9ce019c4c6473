package tree

import "sort"

// Registry is the immutable set of named trees the serving layer exposes.
// Built once at startup and passed by reference into request handlers.
type Registry struct {
	trees map[string]*Tree
	names []string
}

// NewRegistry builds a registry from a name->tree map. The map is copied;
// later mutation of the argument does not affect the registry.
func NewRegistry(trees map[string]*Tree) *Registry {
	r := &Registry{
		trees: make(map[string]*Tree, len(trees)),
		names: make([]string, 0, len(trees)),
	}
	for name, t := range trees {
		r.trees[name] = t
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Lookup resolves a tree by name.
func (r *Registry) Lookup(name string) (*Tree, bool) {
	t, ok := r.trees[name]
	return t, ok
}

// Names lists the registered tree names in sorted order.
func (r *Registry) Names() []string {
	return r.names
}
