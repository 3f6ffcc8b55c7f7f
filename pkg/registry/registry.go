// Package registry maps domain names to the resolvers hosts plug into
// loaded grammars.
package registry

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/skills"
)

// Registry manages the available resolvers.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]domain.Resolver
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[string]domain.Resolver),
	}
}

// WithSkills returns a registry holding the resolvers of the bundled skills.
func WithSkills(logger *slog.Logger) *Registry {
	r := NewRegistry()
	for _, name := range skills.Names() {
		r.Register(name, skills.Resolver(name, logger))
	}
	return r
}

// Register adds a resolver for a domain.
// If the domain already has one, it is overwritten.
func (r *Registry) Register(name string, res domain.Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = res
}

// RegisterFunc adds a function resolver for a domain.
func (r *Registry) RegisterFunc(name string, fn domain.ResolverFunc) {
	r.Register(name, fn)
}

// Resolver looks up the resolver of a domain. Unknown domains get
// domain.DefaultResolver.
func (r *Registry) Resolver(name string) domain.Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.resolvers[name]; ok {
		return res
	}
	return domain.DefaultResolver
}

// Resolvers returns a copy of the registered resolvers, ready for
// parley.Machine.LoadAll.
func (r *Registry) Resolvers() map[string]domain.Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.resolvers)
}

// Names lists the domains with a resolver, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.resolvers))
}
