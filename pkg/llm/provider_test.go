package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexroom/reviewd/pkg/models"
)

var testClauses = []models.Clause{
	{ID: "chk_a", Heading: "1. Termination", Body: "Either party may terminate this agreement with 15 days notice."},
	{ID: "chk_b", Heading: "2. Indemnity", Body: "Vendor agrees to indemnify and hold harmless the customer."},
}

func TestMockProvider(t *testing.T) {
	t.Run("one medium finding per clause", func(t *testing.T) {
		result, err := NewMockProvider("").Generate(context.Background(), testClauses)
		require.NoError(t, err)
		require.Len(t, result.Findings, 2)

		for i, f := range result.Findings {
			assert.Equal(t, testClauses[i].ID, f.ClauseID)
			assert.Equal(t, testClauses[i].Heading, f.ClauseHeading)
			assert.Equal(t, testClauses[i].Body, f.ClauseBody)
			assert.Equal(t, models.SeverityMedium, f.Severity)
			assert.Equal(t, models.SourceLLM, f.Source)
			require.NotNil(t, f.Confidence)
			assert.InDelta(t, 0.65, *f.Confidence, 1e-9)
			assert.Equal(t, DefaultPromptRev, f.PromptRev)
			require.NotNil(t, f.EvidenceSpan)
			assert.Equal(t, 0, f.EvidenceSpan.Start)
			assert.LessOrEqual(t, f.EvidenceSpan.End, len(testClauses[i].Body))
			assert.Greater(t, f.EvidenceSpan.End, 0)
		}
	})

	t.Run("evidence truncated to 200 bytes", func(t *testing.T) {
		long := models.Clause{ID: "chk_long", Heading: "Clause 1", Body: strings.Repeat("x", 500)}
		result, err := NewMockProvider("").Generate(context.Background(), []models.Clause{long})
		require.NoError(t, err)
		require.Len(t, result.Findings, 1)
		assert.Len(t, result.Findings[0].Evidence, 200)
		assert.Equal(t, 200, result.Findings[0].EvidenceSpan.End)
	})

	t.Run("truncation lands on a rune boundary", func(t *testing.T) {
		// Byte 200 falls inside the first two-byte rune.
		long := models.Clause{ID: "chk_utf8", Heading: "Clause 1", Body: strings.Repeat("a", 199) + strings.Repeat("é", 5)}
		result, err := NewMockProvider("").Generate(context.Background(), []models.Clause{long})
		require.NoError(t, err)
		require.Len(t, result.Findings, 1)

		evidence := result.Findings[0].Evidence
		assert.True(t, utf8.ValidString(evidence))
		assert.Len(t, evidence, 199)
		assert.Equal(t, len(evidence), result.Findings[0].EvidenceSpan.End)
	})

	t.Run("token usage is deterministic", func(t *testing.T) {
		first, err := NewMockProvider("").Generate(context.Background(), testClauses)
		require.NoError(t, err)
		second, err := NewMockProvider("").Generate(context.Background(), testClauses)
		require.NoError(t, err)

		assert.Equal(t, first.Usage, second.Usage)
		assert.Equal(t, first.Usage.PromptTokens+first.Usage.CompletionTokens, first.Usage.TotalTokens)
		assert.Positive(t, first.Usage.TotalTokens)
	})
}

func TestGateFindings(t *testing.T) {
	base := rawFinding{
		ClauseID:     "chk_a",
		Severity:     "high",
		Summary:      "Short notice",
		Explanation:  "Notice period is too short",
		EvidenceText: "15 days notice",
		SpanStart:    0,
		SpanEnd:      14,
		Confidence:   0.9,
	}

	t.Run("unknown clause ids are discarded", func(t *testing.T) {
		unknown := base
		unknown.ClauseID = "chk_missing"
		findings, err := gateFindings(testClauses, []rawFinding{base, unknown}, "gpt-test", "rev1")
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, "chk_a", findings[0].ClauseID)
		assert.Equal(t, testClauses[0].Heading, findings[0].ClauseHeading)
		assert.Equal(t, testClauses[0].Body, findings[0].ClauseBody)
		assert.Equal(t, "gpt-test", findings[0].Model)
		assert.Equal(t, "rev1", findings[0].PromptRev)
	})

	t.Run("whitespace evidence is skipped", func(t *testing.T) {
		blank := base
		blank.EvidenceText = "   "
		findings, err := gateFindings(testClauses, []rawFinding{blank}, "gpt-test", "rev1")
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("span beyond clause body is fatal", func(t *testing.T) {
		oob := base
		oob.SpanEnd = len(testClauses[0].Body) + 10
		_, err := gateFindings(testClauses, []rawFinding{oob}, "gpt-test", "rev1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("span ending at body length is allowed", func(t *testing.T) {
		edge := base
		edge.SpanEnd = len(testClauses[0].Body)
		findings, err := gateFindings(testClauses, []rawFinding{edge}, "gpt-test", "rev1")
		require.NoError(t, err)
		require.Len(t, findings, 1)
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("openai without key falls back to mock", func(t *testing.T) {
		p := NewProvider(Options{Provider: "openai"})
		_, ok := p.(*MockProvider)
		assert.True(t, ok)
	})

	t.Run("openai with key", func(t *testing.T) {
		p := NewProvider(Options{Provider: "openai", APIKey: "sk-test"})
		_, ok := p.(*openAIProvider)
		assert.True(t, ok)
	})

	t.Run("mock explicitly", func(t *testing.T) {
		p := NewProvider(Options{Provider: "mock", APIKey: "sk-test"})
		_, ok := p.(*MockProvider)
		assert.True(t, ok)
	})
}

// newCompletionServer returns an httptest server that answers chat-completion
// requests with the given findings JSON as the assistant message content.
func newCompletionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]string{"type": "json_object"}, req.ResponseFormat)
		require.Len(t, req.Messages, 2)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]int{
				"prompt_tokens":     120,
				"completion_tokens": 40,
				"total_tokens":      160,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("valid response is gated and normalized", func(t *testing.T) {
		content := `{"findings": [{
			"clause_id": "chk_a",
			"severity": "high",
			"summary": "Short termination notice",
			"explanation": "15 days is below the 30 day norm",
			"evidence_text": "15 days notice",
			"evidence_span": {"start": 0, "end": 14},
			"confidence": 0.9
		}]}`
		srv := newCompletionServer(t, content)
		defer srv.Close()

		p := newOpenAIProvider("sk-test", "gpt-test", srv.URL, "rev1")
		result, err := p.Generate(context.Background(), testClauses)
		require.NoError(t, err)

		require.Len(t, result.Findings, 1)
		assert.Equal(t, "gpt-test", result.Findings[0].Model)
		assert.Equal(t, models.SourceLLM, result.Findings[0].Source)
		assert.Equal(t, 160, result.Usage.TotalTokens)
	})

	t.Run("schema violation surfaces validation error", func(t *testing.T) {
		srv := newCompletionServer(t, `{"findings": [{"clause_id": "chk_a"}]}`)
		defer srv.Close()

		p := newOpenAIProvider("sk-test", "gpt-test", srv.URL, "rev1")
		_, err := p.Generate(context.Background(), testClauses)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("context deadline surfaces timeout error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		p := newOpenAIProvider("sk-test", "gpt-test", srv.URL, "rev1")
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := p.Generate(ctx, testClauses)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("non-200 surfaces transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		p := newOpenAIProvider("sk-test", "gpt-test", srv.URL, "rev1")
		_, err := p.Generate(context.Background(), testClauses)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("empty clause list skips the call", func(t *testing.T) {
		p := newOpenAIProvider("sk-test", "gpt-test", "http://127.0.0.1:1", "rev1")
		result, err := p.Generate(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, result.Findings)
	})
}
