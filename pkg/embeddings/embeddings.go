// Package embeddings generates finding embeddings for similarity search.
// The mock provider derives deterministic unit vectors from the input text,
// so reruns produce identical embeddings without network calls.
package embeddings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/lexroom/reviewd/pkg/config"
)

// Provider turns texts into fixed-dimension embedding vectors.
type Provider interface {
	Generate(ctx context.Context, texts []string) ([][]float64, error)
}

// BuildFindingInput joins the finding's salient text fields, skipping blank
// parts, to form the embedding input.
func BuildFindingInput(summary, explanation, evidence string) string {
	var parts []string
	for _, part := range []string{summary, explanation, evidence} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n")
}

// NewProvider selects the embedding provider. "off" disables embeddings and
// returns nil. "openai" without an API key falls back to mock; openai call
// failures also fall back per vector batch, keeping the pipeline resilient.
func NewProvider(cfg config.EmbeddingsConfig, apiKey string) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "off":
		return nil
	case "openai":
		if apiKey != "" {
			dim := max(1, cfg.Dim)
			return &openAIProvider{
				apiKey:     apiKey,
				dim:        dim,
				fallback:   &MockProvider{dim: dim},
				httpClient: &http.Client{Timeout: 30 * time.Second},
			}
		}
	}
	return &MockProvider{dim: max(1, cfg.Dim)}
}

// MockProvider derives vectors from a sha256-chained byte stream over the
// input text, mapped to [-1, 1] and normalized to unit length.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{dim: max(1, dim)}
}

func (p *MockProvider) Generate(_ context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = mockEmbedding(text, p.dim)
	}
	return vectors, nil
}

func mockEmbedding(text string, dim int) []float64 {
	state := sha256.Sum256([]byte(text))
	values := make([]float64, 0, dim)
	index := 0

	for len(values) < dim {
		if index >= len(state) {
			state = sha256.Sum256(state[:])
			index = 0
		}
		values = append(values, float64(state[index])/127.5-1.0)
		index++
	}

	var sum float64
	for _, v := range values {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return make([]float64, dim)
	}
	for i := range values {
		values[i] /= norm
	}
	return values
}

type openAIProvider struct {
	apiKey     string
	model      string
	dim        int
	fallback   *MockProvider
	httpClient *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Generate(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.model
	if model == "" {
		model = "text-embedding-3-small"
	}

	vectors, err := p.call(ctx, model, texts)
	if err != nil {
		slog.Warn("Embedding call failed, falling back to mock", "error", err)
		return p.fallback.Generate(ctx, texts)
	}
	return vectors, nil
}

func (p *openAIProvider) call(ctx context.Context, model string, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider returned status %d", resp.StatusCode)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(decoded.Data), len(texts))
	}

	vectors := make([][]float64, len(decoded.Data))
	for i, item := range decoded.Data {
		vectors[i] = normalizeDims(item.Embedding, p.dim)
	}
	return vectors, nil
}

// normalizeDims truncates or zero-pads a vector to the configured dimension.
func normalizeDims(vector []float64, dim int) []float64 {
	out := make([]float64, dim)
	copy(out, vector)
	return out
}
