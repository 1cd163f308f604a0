// Package llm produces LLM findings for clauses. Providers implement a single
// capability: generate(clauses) → (findings, model, usage). The provider
// response is untrusted JSON validated against a strict schema before any
// field is consumed; the domain Finding type stays separate from the wire
// shape.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/lexroom/reviewd/pkg/models"
)

// Sentinel errors classifying provider failures. Validation failures are
// fatal for the run; timeout and transport failures degrade it to partial.
var (
	ErrValidation = errors.New("llm response validation failed")
	ErrTimeout    = errors.New("llm request timeout")
	ErrTransport  = errors.New("llm transport error")
)

// Result is the outcome of one LLM call over all clauses.
type Result struct {
	Findings []models.Finding
	Model    string
	Usage    models.TokenUsage
}

// Provider generates findings for an ordered clause list.
type Provider interface {
	Generate(ctx context.Context, clauses []models.Clause) (*Result, error)
}

// Options selects and configures a provider.
type Options struct {
	// Provider is "openai" or "mock".
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	PromptRev string
}

// NewProvider builds the configured provider. "openai" without an API key
// falls back to the mock so local development and CI never need credentials.
func NewProvider(opts Options) Provider {
	promptRev := opts.PromptRev
	if promptRev == "" {
		promptRev = DefaultPromptRev
	}
	if strings.EqualFold(opts.Provider, "openai") && opts.APIKey != "" {
		return newOpenAIProvider(opts.APIKey, opts.Model, opts.BaseURL, promptRev)
	}
	return NewMockProvider(promptRev)
}
