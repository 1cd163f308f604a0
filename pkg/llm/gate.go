package llm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lexroom/reviewd/pkg/models"
)

// gateFindings applies evidence gating to validated findings and converts
// survivors to the domain shape:
//   - findings referencing unknown clause ids are discarded,
//   - findings whose evidence is empty after trimming are skipped,
//   - a span outside [0, len(clause_body)] is a validation failure (fatal
//     for the whole call, not just the one finding).
func gateFindings(clauses []models.Clause, raw []rawFinding, model, promptRev string) ([]models.Finding, error) {
	byID := make(map[string]models.Clause, len(clauses))
	for _, c := range clauses {
		byID[c.ID] = c
	}

	findings := make([]models.Finding, 0, len(raw))
	for i, rf := range raw {
		clause, ok := byID[rf.ClauseID]
		if !ok {
			continue
		}

		evidence := strings.TrimSpace(rf.EvidenceText)
		if evidence == "" {
			continue
		}

		if rf.SpanStart < 0 || rf.SpanEnd <= rf.SpanStart || rf.SpanEnd > len(clause.Body) {
			return nil, fmt.Errorf("%w: finding[%d].evidence_span: out of clause body bounds [0, %d)",
				ErrValidation, i, len(clause.Body))
		}

		confidence := rf.Confidence
		findings = append(findings, models.Finding{
			ID:            uuid.NewString(),
			ClauseID:      rf.ClauseID,
			ChunkID:       rf.ClauseID,
			ClauseHeading: clause.Heading,
			ClauseBody:    clause.Body,
			Severity:      models.Severity(rf.Severity),
			Summary:       strings.TrimSpace(rf.Summary),
			Explanation:   strings.TrimSpace(rf.Explanation),
			Evidence:      evidence,
			EvidenceSpan:  &models.EvidenceSpan{Start: rf.SpanStart, End: rf.SpanEnd},
			Source:        models.SourceLLM,
			Model:         model,
			PromptRev:     promptRev,
			Confidence:    &confidence,
		})
	}

	return findings, nil
}
