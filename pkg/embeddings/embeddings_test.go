package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexroom/reviewd/pkg/config"
)

func TestBuildFindingInput(t *testing.T) {
	assert.Equal(t, "summary\nexplanation\nevidence",
		BuildFindingInput("summary", "explanation", "evidence"))
	assert.Equal(t, "summary\nevidence",
		BuildFindingInput(" summary ", "   ", "evidence"))
	assert.Empty(t, BuildFindingInput("", "", ""))
}

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMockProvider(64)

	t.Run("deterministic unit vectors", func(t *testing.T) {
		first, err := p.Generate(ctx, []string{"short termination notice"})
		require.NoError(t, err)
		second, err := p.Generate(ctx, []string{"short termination notice"})
		require.NoError(t, err)

		require.Len(t, first, 1)
		require.Len(t, first[0], 64)
		assert.Equal(t, first, second)

		var sum float64
		for _, v := range first[0] {
			sum += v * v
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-9)
	})

	t.Run("distinct texts give distinct vectors", func(t *testing.T) {
		vectors, err := p.Generate(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.NotEqual(t, vectors[0], vectors[1])
	})

	t.Run("values stay within unit range", func(t *testing.T) {
		vectors, err := p.Generate(ctx, []string{"range check"})
		require.NoError(t, err)
		for _, v := range vectors[0] {
			assert.LessOrEqual(t, math.Abs(v), 1.0)
		}
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("openai without key falls back to mock", func(t *testing.T) {
		p := NewProvider(config.EmbeddingsConfig{Provider: "openai", Dim: 8}, "")
		_, ok := p.(*MockProvider)
		assert.True(t, ok)
	})

	t.Run("mock by default", func(t *testing.T) {
		p := NewProvider(config.EmbeddingsConfig{Provider: "mock", Dim: 8}, "sk-test")
		_, ok := p.(*MockProvider)
		assert.True(t, ok)
	})

	t.Run("openai with key", func(t *testing.T) {
		p := NewProvider(config.EmbeddingsConfig{Provider: "openai", Dim: 8}, "sk-test")
		_, ok := p.(*openAIProvider)
		assert.True(t, ok)
	})

	t.Run("off disables embeddings", func(t *testing.T) {
		assert.Nil(t, NewProvider(config.EmbeddingsConfig{Provider: "off", Dim: 8}, "sk-test"))
	})
}
