package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
)

// Loader implements ports.GrammarLoader using an in-memory map.
type Loader struct {
	mu       sync.RWMutex
	grammars map[string][]byte
}

// NewLoader creates a loader from raw YAML or JSON sources keyed by name.
func NewLoader(sources map[string]string) *Loader {
	grammars := make(map[string][]byte, len(sources))
	for k, v := range sources {
		grammars[k] = []byte(v)
	}
	return &Loader{grammars: grammars}
}

// NewFromDefinitions creates a loader from definitions built in code.
func NewFromDefinitions(defs ...*grammar.Definition) (*Loader, error) {
	l := &Loader{grammars: make(map[string][]byte, len(defs))}
	for _, def := range defs {
		if err := l.Put(def); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put adds or replaces a definition.
func (l *Loader) Put(def *grammar.Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("%w: definition without a name", domain.ErrMalformedGrammar)
	}
	data, err := grammar.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal grammar %s: %w", def.Name, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.grammars[def.Name] = data
	return nil
}

// GetGrammar returns the raw source of a grammar.
func (l *Loader) GetGrammar(name string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.grammars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGrammarNotFound, name)
	}
	return data, nil
}

// ListGrammars returns every grammar name in sorted order.
func (l *Loader) ListGrammars() ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.grammars))
	for k := range l.grammars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}
