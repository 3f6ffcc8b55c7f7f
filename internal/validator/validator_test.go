package validator

import (
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/internal/testutils"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/skills"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weather = `name: weather
rules:
  - name: forecast
    regex: "weather(?: in (?<city%>[a-z]+))?"
    messages:
      - groups: [city]
        texts: ["It is sunny in #city#."]
  - name: city
    browsable: false
    regex: "(?<city%>[a-z]+)"
    prompt: ["Which city?"]
  - name: orphan
    browsable: false
    regex: "orphan"
`

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{
		"weather.yaml": weather,
		"copy.yml":     "name: weather\nrules:\n  - name: a\n    regex: a\n",
		"broken.yaml":  "name: broken\nrules:\n  - name: x\n    regex: \"(?<a%>x\"\n",
		"notes.txt":    "ignored",
	})

	paths, err := Expand([]string{dir})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	reports := ValidateFiles(paths)
	byFile := make(map[string]Report)
	for _, r := range reports {
		byFile[filepath.Base(r.Path)] = r
	}

	assert.ErrorIs(t, byFile["broken.yaml"].Err, domain.ErrMalformedGrammar)
	assert.ErrorIs(t, byFile["copy.yml"].Err, domain.ErrMalformedGrammar, "duplicate grammar name")
	assert.ErrorIs(t, byFile["weather.yaml"].Err, domain.ErrMalformedGrammar, "duplicate grammar name")
	assert.Equal(t, []string{"orphan"}, byFile["weather.yaml"].Unreachable)

	ok, failed := Summary(reports)
	assert.Equal(t, 0, ok)
	assert.Equal(t, 3, failed)
}

func TestExpand_Missing(t *testing.T) {
	_, err := Expand([]string{filepath.Join(t.TempDir(), "nope.yaml")})
	assert.ErrorIs(t, err, domain.ErrGrammarNotFound)
}

func TestUnreachable_BundledSkills(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{skills.Common, nil},
		{skills.AskName, nil},
		// reached by the calculator resolver, not by the grammar
		{skills.Arithmetic, []string{"zero_divide"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := skills.Grammar(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Unreachable(g))
		})
	}
}

func TestCheckCommon(t *testing.T) {
	def, err := skills.Definition(skills.Common)
	require.NoError(t, err)
	def.Rules = def.Rules[1:]

	g, err := compiler.Load(def)
	require.NoError(t, err)
	assert.ErrorIs(t, CheckCommon(g), domain.ErrMalformedGrammar)
}
