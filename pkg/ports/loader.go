package ports

import "context"

// GrammarLoader retrieves grammar sources by domain name.
// Storage (Loam, file system, memory) is decoupled from compilation.
type GrammarLoader interface {
	// GetGrammar returns the raw YAML or JSON source of a grammar.
	// It wraps domain.ErrGrammarNotFound when the name is unknown.
	GetGrammar(name string) ([]byte, error)

	// ListGrammars returns the names of every grammar available.
	ListGrammars() ([]string, error)
}

// Watchable is implemented by loaders that can report backend changes.
type Watchable interface {
	// Watch returns a channel receiving the name of each changed grammar.
	Watch(ctx context.Context) (<-chan string, error)
}
