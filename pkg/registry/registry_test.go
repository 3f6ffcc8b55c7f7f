package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/skills"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := registry.NewRegistry()
	assert.Empty(t, r.Names())
	assert.NotNil(t, r.Resolver("weather"), "unknown domains fall back to the default resolver")

	r.RegisterFunc("weather", func(ctx context.Context, turn domain.Turn) (domain.Response, bool, error) {
		return domain.Speak("sunny"), true, nil
	})
	resp, done, err := r.Resolver("weather").Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "sunny", resp.Text)

	copied := r.Resolvers()
	delete(copied, "weather")
	assert.Equal(t, []string{"weather"}, r.Names())
}

func TestWithSkills(t *testing.T) {
	r := registry.WithSkills(nil)
	assert.Equal(t, skills.Names(), r.Names())
	assert.IsType(t, &skills.Calculator{}, r.Resolver(skills.Arithmetic))
	assert.IsType(t, &skills.NameRecorder{}, r.Resolver(skills.AskName))
}
