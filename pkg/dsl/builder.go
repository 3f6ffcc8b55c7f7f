package dsl

import (
	"fmt"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
)

// Builder manages the construction of one grammar definition.
type Builder struct {
	name        string
	description string
	order       []string
	rules       map[string]*RuleBuilder
}

// New creates a builder for the named grammar.
func New(name string) *Builder {
	return &Builder{
		name:  name,
		rules: make(map[string]*RuleBuilder),
	}
}

// Describe sets the grammar description.
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// Rule starts a rule, or returns the existing builder of that name.
// Rules keep the order of their first declaration.
func (b *Builder) Rule(name string) *RuleBuilder {
	if rb, ok := b.rules[name]; ok {
		return rb
	}
	rb := &RuleBuilder{
		rule:    grammar.RuleDefinition{Name: name},
		builder: b,
	}
	b.rules[name] = rb
	b.order = append(b.order, name)
	return rb
}

// Build returns the definition. It only checks what the builder itself can
// get wrong; the compiler validates the rest.
func (b *Builder) Build() (*grammar.Definition, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: grammar without a name", domain.ErrMalformedGrammar)
	}
	def := &grammar.Definition{
		Name:        b.name,
		Description: b.description,
		Rules:       make([]grammar.RuleDefinition, 0, len(b.order)),
	}
	for _, name := range b.order {
		rd := b.rules[name].rule
		if rd.Regex == "" {
			return nil, fmt.Errorf("%w: rule %s of grammar %s has no regex", domain.ErrMalformedGrammar, name, b.name)
		}
		def.Rules = append(def.Rules, rd)
	}
	return def, nil
}

// Compile builds and compiles the definition into a registrable grammar.
func (b *Builder) Compile() (*domain.Grammar, error) {
	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	return compiler.Load(def)
}

// Loader builds every definition into an in-memory grammar loader.
func Loader(builders ...*Builder) (*memory.Loader, error) {
	defs := make([]*grammar.Definition, 0, len(builders))
	for _, b := range builders {
		def, err := b.Build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	loader, err := memory.NewFromDefinitions(defs...)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
