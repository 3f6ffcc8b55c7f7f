package domain

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/parley/pkg/dualmap"
	"golang.org/x/text/cases"
)

// Rand is the source of randomness used to pick prompt and message variants.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand picks from the process-wide generator.
var DefaultRand Rand = globalRand{}

// Variant is one message template, already free of marker syntax.
type Variant struct {
	// Text is the final message. Empty for prequels.
	Text string `json:"text,omitempty"`
	// Preamble is spoken before Next runs.
	Preamble string `json:"preamble,omitempty"`
	// Next names the rule chained after Preamble. A non-empty Next makes the
	// variant a prequel.
	Next string `json:"next,omitempty"`
	// Placeholders lists the group names referenced as #name# in Text or Preamble.
	Placeholders []string `json:"placeholders,omitempty"`
}

// IsPrequel reports whether resolution must continue with another rule.
func (v Variant) IsPrequel() bool { return v.Next != "" }

// MessageSpec registers variants under a (GroupKey, tokens) composite key.
// A nil Tokens slice is the "no token list" entry.
type MessageSpec struct {
	Key      GroupKey
	Tokens   []string
	Variants []Variant
}

// RuleSpec is the marker-free description a Rule is built from.
type RuleSpec struct {
	Name string
	// Pattern is a plain RE2 expression with named groups, without anchors.
	Pattern   string
	Groups    []Group
	Browsable bool
	Prompts   map[string][]string
	Preambles map[string][]string
	Messages  []MessageSpec
}

// Rule is one named grammar production. It is immutable once its grammar
// has been built.
type Rule struct {
	name      string
	source    string
	pattern   *regexp.Regexp
	groups    []Group
	browsable bool
	prompts   map[string][]string
	preambles map[string][]string
	messages  *dualmap.Map[string, string, []Variant]
	keys      map[string]GroupKey
	root      Group
}

// NewRule compiles spec into a Rule.
func NewRule(spec RuleSpec) (*Rule, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, &GrammarError{Reason: "rule without a name"}
	}
	re, err := regexp.Compile(`(?i)^(?:` + spec.Pattern + `)$`)
	if err != nil {
		return nil, &GrammarError{Rule: spec.Name, Reason: "invalid pattern", Err: err}
	}

	names := re.SubexpNames()
	for _, g := range spec.Groups {
		if !slices.Contains(names, g.Name) {
			return nil, &GrammarError{Rule: spec.Name, Reason: fmt.Sprintf("group %q is not captured by the pattern", g.Name)}
		}
	}

	if spec.Browsable && isCatchAll(re) {
		return nil, &GrammarError{Rule: spec.Name, Reason: "browsable rule with a catch-all pattern"}
	}

	r := &Rule{
		name:      spec.Name,
		source:    spec.Pattern,
		pattern:   re,
		groups:    slices.Clone(spec.Groups),
		browsable: spec.Browsable,
		prompts:   cloneTexts(spec.Prompts),
		preambles: cloneTexts(spec.Preambles),
		messages:  dualmap.New[string, string, []Variant](),
		keys:      make(map[string]GroupKey),
		root:      NewGroup(spec.Name, false, false),
	}
	for _, m := range spec.Messages {
		key := m.Key
		if key.Len() == 0 {
			key = NoKey
		}
		r.keys[key.ID()] = key
		tk := TokenKey(m.Tokens)
		existing, _ := r.messages.Get(key.ID(), tk)
		r.messages.Put(key.ID(), tk, append(existing, m.Variants...))
	}
	return r, nil
}

// catchAllProbes are inputs no domain-specific pattern should accept all at once.
var catchAllProbes = []string{
	"",
	"x",
	"42",
	"the quick brown fox jumps over the lazy dog",
	"#@%& ;:,.",
	"ÄÖÜ ñ 漢字",
}

func isCatchAll(re *regexp.Regexp) bool {
	for _, p := range catchAllProbes {
		if !re.MatchString(p) {
			return false
		}
	}
	return true
}

func cloneTexts(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		if len(v) > 0 {
			out[k] = slices.Clone(v)
		}
	}
	return out
}

// Name returns the rule name.
func (r *Rule) Name() string { return r.name }

// Pattern returns the marker-free pattern the rule was compiled from.
func (r *Rule) Pattern() string { return r.source }

// Browsable reports whether the rule may be matched against free input.
func (r *Rule) Browsable() bool { return r.browsable }

// Groups returns the declared groups in capture order.
func (r *Rule) Groups() []Group { return slices.Clone(r.groups) }

// RootGroup is the slot standing for the rule itself.
func (r *Rule) RootGroup() Group { return r.root }

// Match matches the whole of query against the rule's pattern.
func (r *Rule) Match(query string) (Match, bool) {
	idx := r.pattern.FindStringSubmatchIndex(query)
	if idx == nil {
		return Match{}, false
	}
	values := make(map[string]string, len(r.groups))
	for i, name := range r.pattern.SubexpNames() {
		if name == "" || idx[2*i] < 0 {
			continue
		}
		// The first participating group wins when a name repeats.
		if values[name] == "" {
			values[name] = query[idx[2*i]:idx[2*i+1]]
		}
	}
	return Match{values: values}, true
}

// Matches reports whether the rule accepts the whole of query.
func (r *Rule) Matches(query string) bool {
	return r.pattern.MatchString(query)
}

// HasPrompt reports whether the rule declares a prompt.
func (r *Rule) HasPrompt() bool { return len(r.prompts) > 0 }

// Prompt picks a prompt registered under key, falling back to the default key.
func (r *Rule) Prompt(key string, rnd Rand) (string, error) {
	if texts := r.prompts[key]; len(texts) > 0 {
		return pick(texts, rnd)
	}
	return pick(r.prompts[""], rnd)
}

// HasPreamble reports whether the rule declares a preamble.
func (r *Rule) HasPreamble() bool { return len(r.preambles) > 0 }

// Preamble picks a preamble registered under key, falling back to the default key.
func (r *Rule) Preamble(key string, rnd Rand) (string, error) {
	if texts := r.preambles[key]; len(texts) > 0 {
		return pick(texts, rnd)
	}
	return pick(r.preambles[""], rnd)
}

// MessageKeys returns the group keys messages were registered under.
func (r *Rule) MessageKeys() []GroupKey {
	out := make([]GroupKey, 0, len(r.keys))
	for _, id := range r.messages.Keys1() {
		out = append(out, r.keys[id])
	}
	return out
}

// Variants returns every registered variant.
func (r *Rule) Variants() []Variant {
	var out []Variant
	for _, vs := range r.messages.Values() {
		out = append(out, vs...)
	}
	return out
}

// Message selects a variant for the composite key (gk, tokens).
//
// A missing gk bucket falls back to NoKey, and a missing token list falls
// back to the "no token list" entry. With strict set, neither fallback applies.
func (r *Rule) Message(gk GroupKey, tokens []string, strict bool, rnd Rand) (Variant, error) {
	bucket, ok := r.messages.ByKey1(gk.ID())
	if !ok && !strict {
		bucket, ok = r.messages.ByKey1(NoKey.ID())
	}
	if !ok {
		return Variant{}, r.emptySet(gk, tokens)
	}

	variants, ok := bucket.Get(TokenKey(tokens))
	if !ok && !strict {
		variants, ok = bucket.Get(TokenKey(nil))
	}
	if !ok || len(variants) == 0 {
		return Variant{}, r.emptySet(gk, tokens)
	}
	if rnd == nil {
		rnd = DefaultRand
	}
	return variants[rnd.IntN(len(variants))], nil
}

func (r *Rule) emptySet(gk GroupKey, tokens []string) error {
	return fmt.Errorf("%w: rule %q, key %s, tokens %q", ErrEmptyMessageSet, r.name, gk, tokens)
}

func pick(texts []string, rnd Rand) (string, error) {
	if len(texts) == 0 {
		return "", ErrEmptyMessageSet
	}
	if rnd == nil {
		rnd = DefaultRand
	}
	return texts[rnd.IntN(len(texts))], nil
}

// TokenKey turns a token list into its lookup form. Tokens compare
// case-insensitively; nil and empty lists both mean "no token list".
func TokenKey(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	folder := cases.Fold()
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = folder.String(strings.TrimSpace(t))
	}
	return "\x1f" + strings.Join(parts, "\x1f")
}

// Match holds the values captured by one successful match.
type Match struct {
	values map[string]string
}

// Value returns what the named group captured, or "" when it did not participate.
func (m Match) Value(group string) string { return m.values[group] }
