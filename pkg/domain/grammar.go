package domain

import (
	"fmt"

	"github.com/aretw0/parley/pkg/dualmap"
)

// Grammar is the complete rule set of one conversational domain.
type Grammar struct {
	name   string
	rules  *dualmap.Map[bool, string, *Rule]
	order  []*Rule
	groups map[string]Group
}

// NewGrammar assembles rules into a grammar and checks cross-rule
// consistency. Rule order is significant: earlier browsable rules claim
// input first.
func NewGrammar(name string, rules ...*Rule) (*Grammar, error) {
	if name == "" {
		return nil, &GrammarError{Reason: "grammar without a name"}
	}
	g := &Grammar{
		name:   name,
		rules:  dualmap.New[bool, string, *Rule](),
		groups: make(map[string]Group),
	}

	for _, r := range rules {
		if len(g.rules.ByKey2(r.name)) > 0 {
			return nil, &GrammarError{Grammar: name, Rule: r.name, Reason: "duplicate rule name"}
		}
		g.rules.Put(r.browsable, r.name, r)
		g.order = append(g.order, r)
		// The first declaration of a group name fixes its flags.
		for _, grp := range r.groups {
			if _, ok := g.groups[grp.Name]; !ok {
				g.groups[grp.Name] = grp
			}
		}
	}

	for _, r := range g.order {
		if grp, ok := g.groups[r.name]; ok {
			r.root = grp
		} else {
			g.groups[r.name] = r.root
		}
	}

	if err := g.check(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Grammar) check() error {
	for _, r := range g.order {
		for _, grp := range r.groups {
			if grp.Mandatory() && !g.HasRule(grp.Name) {
				return &GrammarError{Grammar: g.name, Rule: r.name,
					Reason: fmt.Sprintf("mandatory group %q has no rule to ask for it", grp.Name)}
			}
		}
		for _, v := range r.Variants() {
			if v.IsPrequel() && !g.HasRule(v.Next) {
				return &GrammarError{Grammar: g.name, Rule: r.name,
					Reason: fmt.Sprintf("message chains to unknown rule %q", v.Next)}
			}
		}
	}
	return nil
}

// Name returns the grammar name, which doubles as the domain name.
func (g *Grammar) Name() string { return g.name }

// Rules returns every rule in declaration order.
func (g *Grammar) Rules() []*Rule {
	out := make([]*Rule, len(g.order))
	copy(out, g.order)
	return out
}

// Browsable returns the browsable rules in declaration order.
func (g *Grammar) Browsable() []*Rule {
	b, _ := g.rules.ByKey1(true)
	var out []*Rule
	for _, r := range g.order {
		if _, ok := b.Get(r.name); ok {
			out = append(out, r)
		}
	}
	return out
}

// Rule returns the rule with the given name.
func (g *Grammar) Rule(name string) (*Rule, error) {
	if found := g.rules.ByKey2(name); len(found) > 0 {
		return found[0], nil
	}
	return nil, &RuleNotFoundError{Domain: g.name, Rule: name}
}

// HasRule reports whether the grammar declares a rule with that name.
func (g *Grammar) HasRule(name string) bool {
	return len(g.rules.ByKey2(name)) > 0
}

// Group returns the group registered under name, including rule root groups.
func (g *Grammar) Group(name string) (Group, bool) {
	grp, ok := g.groups[name]
	return grp, ok
}

// FindByQuery returns the first browsable rule matching the whole query.
func (g *Grammar) FindByQuery(query string) (*Rule, bool) {
	for _, r := range g.Browsable() {
		if r.Matches(query) {
			return r, true
		}
	}
	return nil, false
}
