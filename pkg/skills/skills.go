// Package skills bundles ready-made grammars and their resolvers.
//
// The common grammar is the default fallback domain of a parley.Machine.
// The arithmetic, askname and conversation grammars are demo domains that
// can be registered with Register.
package skills

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
)

// Skill names.
const (
	Common       = "common"
	Arithmetic   = "arithmetic"
	AskName      = "askname"
	Conversation = "conversation"
)

//go:embed grammars/*.yaml
var sources embed.FS

// FS exposes the embedded grammar sources, one YAML file per skill.
func FS() fs.FS {
	sub, err := fs.Sub(sources, "grammars")
	if err != nil {
		panic(err)
	}
	return sub
}

// Names lists the bundled skills in alphabetical order.
func Names() []string {
	entries, _ := fs.ReadDir(sources, "grammars")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// Source returns the raw YAML of a skill.
func Source(name string) ([]byte, error) {
	data, err := fs.ReadFile(sources, "grammars/"+name+".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: skill %q", domain.ErrGrammarNotFound, name)
	}
	return data, nil
}

// Definition parses the definition of a skill.
func Definition(name string) (*grammar.Definition, error) {
	data, err := Source(name)
	if err != nil {
		return nil, err
	}
	return grammar.Parse(data)
}

// Grammar compiles a skill.
func Grammar(name string) (*domain.Grammar, error) {
	def, err := Definition(name)
	if err != nil {
		return nil, err
	}
	return compiler.Load(def)
}

// Resolver returns the resolver bundled with a skill. Skills without a
// custom resolver get domain.DefaultResolver.
func Resolver(name string, logger *slog.Logger) domain.Resolver {
	switch name {
	case Arithmetic:
		return NewCalculator(WithCalculatorLogger(logger))
	case AskName:
		return NewNameRecorder(logger, nil)
	default:
		return domain.DefaultResolver
	}
}
