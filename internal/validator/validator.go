// Package validator checks grammar sources the way a machine would load
// them, and reports hidden rules nothing can reach.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
)

// Report is the outcome for one grammar source.
type Report struct {
	Path    string
	Grammar string
	Rules   int
	Err     error
	// Unreachable lists hidden rules no browsable rule can lead to.
	Unreachable []string
}

// OK reports whether the source loads.
func (r Report) OK() bool { return r.Err == nil }

// Expand replaces directory arguments with the grammar files they contain.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrGrammarNotFound, p)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && grammar.IsSource(e.Name()) {
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	return out, nil
}

// ValidateFiles parses, schema-checks and compiles every file. Two files
// declaring the same grammar name are both reported.
func ValidateFiles(paths []string) []Report {
	reports := make([]Report, 0, len(paths))
	seen := make(map[string]int)
	for _, path := range paths {
		rep := validateFile(path)
		if rep.Grammar != "" {
			if i, dup := seen[rep.Grammar]; dup {
				err := fmt.Errorf("%w: grammar %q also declared in %s", domain.ErrMalformedGrammar, rep.Grammar, reports[i].Path)
				rep.Err = err
				if reports[i].Err == nil {
					reports[i].Err = fmt.Errorf("%w: grammar %q also declared in %s", domain.ErrMalformedGrammar, rep.Grammar, path)
				}
			} else {
				seen[rep.Grammar] = len(reports)
			}
		}
		reports = append(reports, rep)
	}
	return reports
}

func validateFile(path string) Report {
	rep := Report{Path: path}
	def, err := grammar.ParseFile(path)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Grammar = def.Name
	g, err := compiler.Load(def)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Rules = len(g.Rules())
	if g.Name() == domain.CommonDomain {
		if err := CheckCommon(g); err != nil {
			rep.Err = err
			return rep
		}
	}
	rep.Unreachable = Unreachable(g)
	return rep
}

// CheckCommon verifies that a common grammar declares every system rule.
func CheckCommon(g *domain.Grammar) error {
	for _, name := range domain.CommonRules {
		if !g.HasRule(name) {
			return &domain.GrammarError{Grammar: g.Name(), Rule: name, Reason: "common grammar lacks a system rule"}
		}
	}
	return nil
}

// Unreachable crawls from the browsable rules (and the system rules of a
// common grammar) along mandatory group prompts and chained messages, and
// returns the hidden rules never visited, in declaration order.
func Unreachable(g *domain.Grammar) []string {
	var queue []string
	for _, r := range g.Browsable() {
		queue = append(queue, r.Name())
	}
	if g.Name() == domain.CommonDomain {
		queue = append(queue, domain.CommonRules...)
	}

	visited := make(map[string]bool)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		r, err := g.Rule(name)
		if err != nil {
			continue
		}
		for _, grp := range r.Groups() {
			if grp.Mandatory() && g.HasRule(grp.Name) && !visited[grp.Name] {
				queue = append(queue, grp.Name)
			}
		}
		for _, v := range r.Variants() {
			if v.IsPrequel() && !visited[v.Next] {
				queue = append(queue, v.Next)
			}
		}
	}

	var out []string
	for _, r := range g.Rules() {
		if !visited[r.Name()] && !slices.Contains(out, r.Name()) {
			out = append(out, r.Name())
		}
	}
	return out
}

// Summary counts the failed reports.
func Summary(reports []Report) (ok, failed int) {
	for _, r := range reports {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
