// Package grammar holds the declarative source format of a domain grammar.
//
// A Definition is what authors write (YAML, JSON or loam documents). It still
// carries the marker mini-language: "%" and "§" inside capture group names,
// "@" chaining and "#group#" placeholders in message texts. The compiler in
// internal/compiler turns it into a marker-free domain.Grammar.
package grammar

// Definition is the source form of one domain grammar.
type Definition struct {
	Name        string           `json:"name" yaml:"name" mapstructure:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Rules       []RuleDefinition `json:"rules" yaml:"rules" mapstructure:"rules"`
}

// RuleDefinition is the source form of one rule.
type RuleDefinition struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	// Browsable defaults to true when omitted.
	Browsable *bool  `json:"browsable,omitempty" yaml:"browsable,omitempty" mapstructure:"browsable"`
	Regex     string `json:"regex" yaml:"regex" mapstructure:"regex"`

	// Prompt and Preamble are registered under the default key.
	Prompt    []string            `json:"prompt,omitempty" yaml:"prompt,omitempty" mapstructure:"prompt"`
	Prompts   map[string][]string `json:"prompts,omitempty" yaml:"prompts,omitempty" mapstructure:"prompts"`
	Preamble  []string            `json:"preamble,omitempty" yaml:"preamble,omitempty" mapstructure:"preamble"`
	Preambles map[string][]string `json:"preambles,omitempty" yaml:"preambles,omitempty" mapstructure:"preambles"`

	Messages []MessageGroup `json:"messages,omitempty" yaml:"messages,omitempty" mapstructure:"messages"`
}

// IsBrowsable resolves the Browsable default.
func (r RuleDefinition) IsBrowsable() bool {
	return r.Browsable == nil || *r.Browsable
}

// MessageGroup registers texts under the set of groups that produced values.
// An empty Groups list is the no-key fallback bucket.
type MessageGroup struct {
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
	// Texts are registered without a token list.
	Texts    []string         `json:"texts,omitempty" yaml:"texts,omitempty" mapstructure:"texts"`
	Variants []MessageVariant `json:"variants,omitempty" yaml:"variants,omitempty" mapstructure:"variants"`
}

// MessageVariant registers texts under an exact token list.
type MessageVariant struct {
	Tokens []string `json:"tokens,omitempty" yaml:"tokens,omitempty" mapstructure:"tokens"`
	Texts  []string `json:"texts" yaml:"texts" mapstructure:"texts"`
}

// Bool returns a pointer to b, for building definitions in code.
func Bool(b bool) *bool { return &b }
