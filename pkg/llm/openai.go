package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/lexroom/reviewd/pkg/models"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// openAIProvider calls the OpenAI chat-completions API with a JSON-object
// constrained response and validates the result strictly before gating.
type openAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	promptRev  string
	httpClient *http.Client
}

func newOpenAIProvider(apiKey, model, baseURL, promptRev string) *openAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		promptRev: promptRev,
		// Timeouts are enforced by the caller's context.
		httpClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type clausePayload struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Generate sends all clauses in one request, validates the JSON response
// against the strict schema, and gates findings by evidence span.
func (p *openAIProvider) Generate(ctx context.Context, clauses []models.Clause) (*Result, error) {
	if len(clauses) == 0 {
		return &Result{Model: p.model}, nil
	}

	payload := make([]clausePayload, len(clauses))
	for i, c := range clauses {
		payload[i] = clausePayload{ID: c.ID, Heading: c.Heading, Body: c.Body}
	}
	clausesJSON, err := json.Marshal(map[string]any{"clauses": payload})
	if err != nil {
		return nil, fmt.Errorf("marshaling clauses payload: %w", err)
	}

	reqBody := chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Review the following clauses and return JSON with a 'findings' array.\n\n" + string(clausesJSON)},
		},
		Temperature:    0.1,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	respBody, err := p.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("%w: decoding completion: %v", ErrTransport, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion contained no choices", ErrTransport)
	}

	decoder := json.NewDecoder(strings.NewReader(completion.Choices[0].Message.Content))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrValidation, err)
	}

	validated, err := validateResponse(raw)
	if err != nil {
		return nil, err
	}
	findings, err := gateFindings(clauses, validated, p.model, p.promptRev)
	if err != nil {
		return nil, err
	}

	return &Result{
		Findings: findings,
		Model:    p.model,
		Usage: models.TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}

func (p *openAIProvider) post(ctx context.Context, path string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d: %s", ErrTransport, resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

// classifyTransportError separates timeouts from other transport failures so
// the executor can record the cause in the run error string.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
