// Package cache implements the content-addressed pipeline result cache.
// Values are complete result bundles; keys are derived from document content,
// prompt revision, and chunk schema version, so stale entries are simply
// never addressed again.
package cache

import (
	"context"

	"github.com/lexroom/reviewd/pkg/chunk"
	"github.com/lexroom/reviewd/pkg/models"
)

// Bundle is the cached outcome of a fully-successful pipeline execution.
type Bundle struct {
	Chunks     []chunk.Chunk     `json:"chunks"`
	Findings   []models.Finding  `json:"findings"`
	LLMModel   string            `json:"llm_model"`
	PromptRev  string            `json:"prompt_rev"`
	TokenUsage models.TokenUsage `json:"token_usage"`
}

// Store is a TTL-bounded key → bundle store. Get returns (nil, false, nil)
// on a miss; errors are reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) (*Bundle, bool, error)
	Set(ctx context.Context, key string, bundle *Bundle) error
}
