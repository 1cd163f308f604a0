package llm

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lexroom/reviewd/pkg/models"
)

// MockModelName identifies findings produced by the mock provider.
const MockModelName = "mock"

const mockEvidenceMaxLen = 200

// MockProvider is the deterministic reference provider used in tests and in
// deployments without LLM credentials. It emits exactly one medium-severity
// finding per clause.
type MockProvider struct {
	promptRev string
}

// NewMockProvider returns a mock provider tagging findings with promptRev.
func NewMockProvider(promptRev string) *MockProvider {
	if promptRev == "" {
		promptRev = DefaultPromptRev
	}
	return &MockProvider{promptRev: promptRev}
}

// Generate produces one synthetic finding per clause. Token usage is a
// deterministic estimate so cache and idempotency tests see stable values.
func (p *MockProvider) Generate(_ context.Context, clauses []models.Clause) (*Result, error) {
	findings := make([]models.Finding, 0, len(clauses))
	promptChars := 0

	for _, clause := range clauses {
		promptChars += len(clause.Heading) + len(clause.Body)

		evidence := clause.Body
		if evidence == "" {
			evidence = clause.Heading
		}
		if len(evidence) > mockEvidenceMaxLen {
			cut := mockEvidenceMaxLen
			// Back up to a rune boundary so the cut never splits a multi-byte
			// character.
			for cut > 0 && !utf8.RuneStart(evidence[cut]) {
				cut--
			}
			evidence = evidence[:cut]
		}
		end := len(evidence)
		if end < 1 {
			end = 1
		}

		confidence := 0.65
		findings = append(findings, models.Finding{
			ID:            uuid.NewString(),
			ClauseID:      clause.ID,
			ChunkID:       clause.ID,
			ClauseHeading: clause.Heading,
			ClauseBody:    clause.Body,
			Severity:      models.SeverityMedium,
			Summary:       "Clause may warrant review.",
			Explanation:   "Synthetic finding produced by the mock LLM provider for clause '" + clause.Heading + "'.",
			Evidence:      evidence,
			EvidenceSpan:  &models.EvidenceSpan{Start: 0, End: end},
			Source:        models.SourceLLM,
			Model:         MockModelName,
			PromptRev:     p.promptRev,
			Confidence:    &confidence,
		})
	}

	completionTokens := 24 * len(findings)
	promptTokens := promptChars / 4
	return &Result{
		Findings: findings,
		Model:    MockModelName,
		Usage: models.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}
