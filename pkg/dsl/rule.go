package dsl

import (
	"slices"

	"github.com/aretw0/parley/pkg/grammar"
)

// RuleBuilder provides a fluent API for configuring a rule.
type RuleBuilder struct {
	rule    grammar.RuleDefinition
	builder *Builder
}

// Regex sets the pattern, with the capture group markers of the source format.
func (r *RuleBuilder) Regex(pattern string) *RuleBuilder {
	r.rule.Regex = pattern
	return r
}

// Hidden keeps the rule out of browsing. Hidden rules are only reached by
// name: prompts for mandatory groups, chaining and RunRule.
func (r *RuleBuilder) Hidden() *RuleBuilder {
	r.rule.Browsable = grammar.Bool(false)
	return r
}

// Prompt adds default prompt texts.
func (r *RuleBuilder) Prompt(texts ...string) *RuleBuilder {
	r.rule.Prompt = append(r.rule.Prompt, texts...)
	return r
}

// PromptFor adds prompt texts under a prompt key.
func (r *RuleBuilder) PromptFor(key string, texts ...string) *RuleBuilder {
	if r.rule.Prompts == nil {
		r.rule.Prompts = make(map[string][]string)
	}
	r.rule.Prompts[key] = append(r.rule.Prompts[key], texts...)
	return r
}

// Preamble adds default preamble texts, spoken before a repeated prompt.
func (r *RuleBuilder) Preamble(texts ...string) *RuleBuilder {
	r.rule.Preamble = append(r.rule.Preamble, texts...)
	return r
}

// PreambleFor adds preamble texts under a prompt key.
func (r *RuleBuilder) PreambleFor(key string, texts ...string) *RuleBuilder {
	if r.rule.Preambles == nil {
		r.rule.Preambles = make(map[string][]string)
	}
	r.rule.Preambles[key] = append(r.rule.Preambles[key], texts...)
	return r
}

// Say adds texts to the no-key bucket.
func (r *RuleBuilder) Say(texts ...string) *RuleBuilder {
	return r.On().Say(texts...)
}

// On selects the message bucket of a group set.
func (r *RuleBuilder) On(groups ...string) *MessageBuilder {
	return &MessageBuilder{rule: r, groups: groups}
}

// Rule continues with another rule of the same grammar.
func (r *RuleBuilder) Rule(name string) *RuleBuilder {
	return r.builder.Rule(name)
}

// Build returns the underlying definition.
func (r *RuleBuilder) Build() grammar.RuleDefinition {
	return r.rule
}

func (r *RuleBuilder) group(groups []string) *grammar.MessageGroup {
	for i := range r.rule.Messages {
		if slices.Equal(r.rule.Messages[i].Groups, groups) {
			return &r.rule.Messages[i]
		}
	}
	r.rule.Messages = append(r.rule.Messages, grammar.MessageGroup{Groups: groups})
	return &r.rule.Messages[len(r.rule.Messages)-1]
}

// MessageBuilder adds texts to one message bucket of a rule.
type MessageBuilder struct {
	rule   *RuleBuilder
	groups []string
	tokens []string
}

// Tokens narrows the texts to an exact token list.
func (m *MessageBuilder) Tokens(tokens ...string) *MessageBuilder {
	m.tokens = tokens
	return m
}

// Say registers the texts and returns to the rule.
func (m *MessageBuilder) Say(texts ...string) *RuleBuilder {
	g := m.rule.group(m.groups)
	if m.tokens == nil {
		g.Texts = append(g.Texts, texts...)
		return m.rule
	}
	for i := range g.Variants {
		if slices.Equal(g.Variants[i].Tokens, m.tokens) {
			g.Variants[i].Texts = append(g.Variants[i].Texts, texts...)
			return m.rule
		}
	}
	g.Variants = append(g.Variants, grammar.MessageVariant{Tokens: m.tokens, Texts: texts})
	return m.rule
}
