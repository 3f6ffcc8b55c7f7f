package session

import (
	"context"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/skills"
)

// NewFactory returns a Factory building machines from opts. When opts carry
// a loader every grammar it lists is loaded with the resolvers of reg;
// otherwise the bundled skills are registered.
func NewFactory(reg *registry.Registry, opts ...parley.Option) Factory {
	if reg == nil {
		reg = registry.NewRegistry()
	}
	return func(ctx context.Context) (*parley.Machine, error) {
		m, err := parley.New(opts...)
		if err != nil {
			return nil, err
		}
		if m.Loader() != nil {
			return m, m.LoadAll(ctx, reg.Resolvers())
		}
		for _, name := range skills.Names() {
			if name == skills.Common {
				continue
			}
			g, err := skills.Grammar(name)
			if err != nil {
				return nil, err
			}
			if err := m.Register(g, reg.Resolver(name)); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
}
