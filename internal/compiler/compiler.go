// Package compiler turns grammar definitions into marker-free domain grammars.
//
// Marker syntax handled here:
//
//	(?<name%>...)   mandatory group (groups without % are optional)
//	(?<name§>...)   substitute group
//	text @ rule     prequel: speak "text", then run "rule"
//	#name#          placeholder filled with the value captured by group "name"
package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
)

const (
	mandatoryMarker  = "%"
	substituteMarker = "§"
	chainMarker      = "@"
)

var (
	groupOpener = regexp.MustCompile(`\(\?P?<([^>]+)>`)
	placeholder = regexp.MustCompile(`#([^#\s]+)#`)
	markers     = strings.NewReplacer(mandatoryMarker, "", substituteMarker, "")
	entities    = strings.NewReplacer("&lt;", "<", "&gt;", ">")
)

// Compile validates and compiles a definition.
func Compile(def *grammar.Definition) (*domain.Grammar, error) {
	if def == nil {
		return nil, &domain.GrammarError{Reason: "nil definition"}
	}

	known := make(map[string]bool)
	patterns := make([]Pattern, len(def.Rules))
	for i, rd := range def.Rules {
		p, err := ParsePattern(rd.Regex)
		if err != nil {
			return nil, &domain.GrammarError{Grammar: def.Name, Rule: rd.Name, Reason: "invalid group markers", Err: err}
		}
		patterns[i] = p
		known[rd.Name] = true
		for _, g := range p.Groups {
			known[g.Name] = true
		}
	}

	rules := make([]*domain.Rule, 0, len(def.Rules))
	for i, rd := range def.Rules {
		spec, err := ruleSpec(rd, patterns[i], known)
		if err != nil {
			return nil, withGrammar(err, def.Name)
		}
		r, err := domain.NewRule(spec)
		if err != nil {
			return nil, withGrammar(err, def.Name)
		}
		rules = append(rules, r)
	}

	g, err := domain.NewGrammar(def.Name, rules...)
	if err != nil {
		return nil, withGrammar(err, def.Name)
	}
	return g, nil
}

// Load validates a definition against the schema, then compiles it.
func Load(def *grammar.Definition) (*domain.Grammar, error) {
	if err := grammar.Validate(def); err != nil {
		return nil, err
	}
	return Compile(def)
}

func withGrammar(err error, name string) error {
	var ge *domain.GrammarError
	if errors.As(err, &ge) && ge.Grammar == "" {
		ge.Grammar = name
	}
	return err
}

// Pattern is a rule regex with its group markers parsed out.
type Pattern struct {
	Source string
	Groups []domain.Group
}

// ParsePattern strips group markers from a raw rule regex and records the
// groups in capture order.
func ParsePattern(raw string) (Pattern, error) {
	src := strings.TrimRight(entities.Replace(raw), "\r\n")

	var (
		groups []domain.Group
		bad    error
	)
	clean := groupOpener.ReplaceAllStringFunc(src, func(opener string) string {
		name := groupOpener.FindStringSubmatch(opener)[1]
		g := domain.NewGroup(
			markers.Replace(name),
			!strings.Contains(name, mandatoryMarker),
			strings.Contains(name, substituteMarker),
		)
		if g.Name == "" {
			bad = fmt.Errorf("group %q has no name", name)
		}
		if slices.ContainsFunc(groups, func(x domain.Group) bool { return x.Name == g.Name }) {
			bad = fmt.Errorf("group %q declared twice", g.Name)
		}
		groups = append(groups, g)
		return "(?P<" + g.Name + ">"
	})
	if bad != nil {
		return Pattern{}, bad
	}
	return Pattern{Source: clean, Groups: groups}, nil
}

// ParseVariant splits chaining and placeholders out of a message text.
func ParseVariant(text string) domain.Variant {
	text = strings.TrimSpace(text)
	var v domain.Variant
	if i := strings.LastIndex(text, chainMarker); i >= 0 {
		v.Preamble = strings.TrimSpace(text[:i])
		v.Next = strings.TrimSpace(text[i+len(chainMarker):])
	} else {
		v.Text = text
	}
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(v.Placeholders, m[1]) {
			v.Placeholders = append(v.Placeholders, m[1])
		}
	}
	return v
}

func ruleSpec(rd grammar.RuleDefinition, p Pattern, known map[string]bool) (domain.RuleSpec, error) {
	spec := domain.RuleSpec{
		Name:      strings.TrimSpace(rd.Name),
		Pattern:   p.Source,
		Groups:    p.Groups,
		Browsable: rd.IsBrowsable(),
		Prompts:   keyed(rd.Prompt, rd.Prompts),
		Preambles: keyed(rd.Preamble, rd.Preambles),
	}
	if spec.Name == "" {
		return spec, &domain.GrammarError{Reason: "rule without a name"}
	}

	byName := make(map[string]domain.Group, len(p.Groups))
	for _, g := range p.Groups {
		byName[g.Name] = g
	}

	for _, mg := range rd.Messages {
		key := domain.NoKey
		if len(mg.Groups) > 0 {
			groups := make([]domain.Group, 0, len(mg.Groups))
			for _, name := range mg.Groups {
				g, ok := byName[markers.Replace(strings.TrimSpace(name))]
				if !ok {
					return spec, &domain.GrammarError{Rule: spec.Name,
						Reason: fmt.Sprintf("message group %q is not captured by the rule", name)}
				}
				groups = append(groups, g)
			}
			key = domain.NewGroupKey(groups...)
		}

		if len(mg.Texts) > 0 {
			vs, err := variants(spec.Name, mg.Texts, known)
			if err != nil {
				return spec, err
			}
			spec.Messages = append(spec.Messages, domain.MessageSpec{Key: key, Variants: vs})
		}
		for _, mv := range mg.Variants {
			vs, err := variants(spec.Name, mv.Texts, known)
			if err != nil {
				return spec, err
			}
			spec.Messages = append(spec.Messages, domain.MessageSpec{Key: key, Tokens: mv.Tokens, Variants: vs})
		}
	}
	return spec, nil
}

func variants(rule string, texts []string, known map[string]bool) ([]domain.Variant, error) {
	out := make([]domain.Variant, 0, len(texts))
	for _, t := range texts {
		v := ParseVariant(t)
		for _, name := range v.Placeholders {
			if !known[name] {
				return nil, &domain.GrammarError{Rule: rule,
					Reason: fmt.Sprintf("placeholder #%s# names no group", name)}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func keyed(defaults []string, byKey map[string][]string) map[string][]string {
	out := make(map[string][]string, len(byKey)+1)
	for k, v := range byKey {
		out[k] = append(out[k], v...)
	}
	if len(defaults) > 0 {
		out[""] = append(out[""], defaults...)
	}
	return out
}
