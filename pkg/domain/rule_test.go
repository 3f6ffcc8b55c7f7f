package domain_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRand int

func (f fixedRand) IntN(n int) int { return int(f) % n }

var (
	first    = domain.NewGroup("first", false, false)
	operator = domain.NewGroup("operator", false, true)
	second   = domain.NewGroup("second", false, false)
)

func computeSpec() domain.RuleSpec {
	return domain.RuleSpec{
		Name:      "ComputeExpression",
		Pattern:   `(?:what is|compute) ?(?<first>\d+)? ?(?<operator>plus|minus)? ?(?<second>\d+)?`,
		Groups:    []domain.Group{first, operator, second},
		Browsable: true,
		Messages: []domain.MessageSpec{
			{Key: domain.NoKey, Variants: []domain.Variant{{Text: "fallback"}}},
			{Key: domain.NewGroupKey(first, operator, second), Tokens: []string{"5", "operator", "3"},
				Variants: []domain.Variant{{Text: "five and three"}}},
			{Key: domain.NewGroupKey(first, operator, second),
				Variants: []domain.Variant{{Text: "#first# #operator# #second#", Placeholders: []string{"first", "operator", "second"}}}},
		},
	}
}

func TestNewRule_Match(t *testing.T) {
	r, err := domain.NewRule(computeSpec())
	require.NoError(t, err)

	m, ok := r.Match("What is 5 PLUS 3")
	require.True(t, ok, "matching is case-insensitive")
	assert.Equal(t, "5", m.Value("first"))
	assert.Equal(t, "PLUS", m.Value("operator"))
	assert.Equal(t, "3", m.Value("second"))

	_, ok = r.Match("so what is 5 plus 3")
	assert.False(t, ok, "the whole input must match")

	m, ok = r.Match("compute 5")
	require.True(t, ok)
	assert.Equal(t, "", m.Value("second"))
}

func TestNewRule_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec domain.RuleSpec
	}{
		{"missing name", domain.RuleSpec{Pattern: "hi"}},
		{"invalid pattern", domain.RuleSpec{Name: "bad", Pattern: "(unclosed"}},
		{"unknown group", domain.RuleSpec{Name: "g", Pattern: "hi", Groups: []domain.Group{first}}},
		{"browsable catch-all", domain.RuleSpec{Name: "any", Pattern: ".*", Browsable: true}},
		{"browsable catch-all with group", domain.RuleSpec{Name: "any", Pattern: "(?<all>.*)", Browsable: true,
			Groups: []domain.Group{domain.NewGroup("all", true, false)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewRule(tt.spec)
			assert.ErrorIs(t, err, domain.ErrMalformedGrammar)
		})
	}
}

func TestNewRule_CatchAllAllowedWhenNotBrowsable(t *testing.T) {
	r, err := domain.NewRule(domain.RuleSpec{Name: "not_understood", Pattern: ".*"})
	require.NoError(t, err)
	assert.True(t, r.Matches(""))
	assert.False(t, r.Browsable())
}

func TestRule_MessageSelection(t *testing.T) {
	r, err := domain.NewRule(computeSpec())
	require.NoError(t, err)
	full := domain.NewGroupKey(second, operator, first)

	t.Run("exact tokens, case folded", func(t *testing.T) {
		v, err := r.Message(full, []string{"5", "OPERATOR", "3"}, false, nil)
		require.NoError(t, err)
		assert.Equal(t, "five and three", v.Text)
	})

	t.Run("token fallback", func(t *testing.T) {
		v, err := r.Message(full, []string{"6", "operator", "3"}, false, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "operator", "second"}, v.Placeholders)
	})

	t.Run("key fallback", func(t *testing.T) {
		v, err := r.Message(domain.NewGroupKey(first), []string{"5"}, false, nil)
		require.NoError(t, err)
		assert.Equal(t, "fallback", v.Text)
	})

	t.Run("strict disables fallbacks", func(t *testing.T) {
		_, err := r.Message(domain.NewGroupKey(first), []string{"5"}, true, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyMessageSet)
		_, err = r.Message(full, []string{"6", "operator", "3"}, true, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyMessageSet)
	})
}

func TestRule_EmptyMessageSet(t *testing.T) {
	r, err := domain.NewRule(domain.RuleSpec{Name: "silent", Pattern: "hush"})
	require.NoError(t, err)
	_, err = r.Message(domain.NoKey, nil, false, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyMessageSet)

	_, err = r.Prompt("", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyMessageSet)
	assert.False(t, r.HasPrompt())
}

func TestRule_PicksWithRand(t *testing.T) {
	r, err := domain.NewRule(domain.RuleSpec{
		Name:    "first",
		Pattern: `(?<first>\d+)`,
		Groups:  []domain.Group{first},
		Prompts: map[string][]string{"": {"one?", "two?", "three?"}},
		Messages: []domain.MessageSpec{{Key: domain.NoKey, Variants: []domain.Variant{
			{Text: "a"}, {Text: "b"},
		}}},
	})
	require.NoError(t, err)

	p, err := r.Prompt("", fixedRand(2))
	require.NoError(t, err)
	assert.Equal(t, "three?", p)

	v, err := r.Message(domain.NoKey, nil, false, fixedRand(1))
	require.NoError(t, err)
	assert.Equal(t, "b", v.Text)
}

func TestTokenKey(t *testing.T) {
	assert.Equal(t, domain.TokenKey(nil), domain.TokenKey([]string{}))
	assert.Equal(t, domain.TokenKey([]string{"Plus"}), domain.TokenKey([]string{"plus "}))
	assert.NotEqual(t, domain.TokenKey([]string{"a", "b"}), domain.TokenKey([]string{"b", "a"}))
	assert.NotEqual(t, domain.TokenKey(nil), domain.TokenKey([]string{""}))
}
