package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexroom/reviewd/pkg/chunk"
	"github.com/lexroom/reviewd/pkg/models"
)

func TestDocHash(t *testing.T) {
	meta := map[string]any{"filename": "contract.pdf", "pages": 3}

	t.Run("stable across calls", func(t *testing.T) {
		first, err := DocHash("pdf", "some contract text", meta)
		require.NoError(t, err)
		second, err := DocHash("pdf", "some contract text", map[string]any{"pages": 3, "filename": "contract.pdf"})
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, 64)
	})

	t.Run("sensitive to each input", func(t *testing.T) {
		base, err := DocHash("pdf", "some contract text", meta)
		require.NoError(t, err)

		otherType, err := DocHash("text", "some contract text", meta)
		require.NoError(t, err)
		assert.NotEqual(t, base, otherType)

		otherText, err := DocHash("pdf", "different text", meta)
		require.NoError(t, err)
		assert.NotEqual(t, base, otherText)

		otherMeta, err := DocHash("pdf", "some contract text", map[string]any{"filename": "other.pdf"})
		require.NoError(t, err)
		assert.NotEqual(t, base, otherMeta)
	})
}

func TestKey(t *testing.T) {
	key := Key("abc123", "review_v1", "v1")
	assert.Equal(t, "review:abc123:review_v1:v1", key)
	assert.NotEqual(t, key, Key("abc123", "review_v2", "v1"))
	assert.NotEqual(t, key, Key("abc123", "review_v1", "v2"))
}

func sampleBundle() *Bundle {
	start, end := 0, 42
	confidence := 0.65
	return &Bundle{
		Chunks: []chunk.Chunk{
			{ChunkID: "chk_abc", SchemaVersion: chunk.SchemaVersion, Ordinal: 0, Heading: "1. Termination", Body: "body", StartOffset: &start, EndOffset: &end},
		},
		Findings: []models.Finding{
			{ID: "f1", ClauseID: "chk_abc", Severity: models.SeverityMedium, Summary: "s", Source: models.SourceLLM, Confidence: &confidence},
		},
		LLMModel:   "mock",
		PromptRev:  "review_v1",
		TokenUsage: models.TokenUsage{PromptTokens: 10, CompletionTokens: 24, TotalTokens: 34},
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)

		_, ok, err := store.Get(ctx, "review:k1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Set(ctx, "review:k1", sampleBundle()))

		got, ok, err := store.Get(ctx, "review:k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, sampleBundle(), got)
	})

	t.Run("expired entries are evicted on read", func(t *testing.T) {
		store := NewMemoryStore(10 * time.Millisecond)
		require.NoError(t, store.Set(ctx, "review:k2", sampleBundle()))
		time.Sleep(20 * time.Millisecond)

		_, ok, err := store.Get(ctx, "review:k2")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, store.Len())
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	t.Run("miss then round trip", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "review:k1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Set(ctx, "review:k1", sampleBundle()))

		got, ok, err := store.Get(ctx, "review:k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, sampleBundle(), got)
	})

	t.Run("entries expire with the ttl", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "review:k2", sampleBundle()))
		mr.FastForward(2 * time.Minute)

		_, ok, err := store.Get(ctx, "review:k2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt value surfaces an error", func(t *testing.T) {
		require.NoError(t, mr.Set("review:k3", "not json"))
		_, _, err := store.Get(ctx, "review:k3")
		assert.Error(t, err)
	})
}
