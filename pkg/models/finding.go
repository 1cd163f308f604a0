package models

import "time"

// Severity ranks how risky a finding is.
type Severity string

// Severity levels.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s Severity) bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// FindingSource identifies which analyzer produced a finding.
type FindingSource string

// Finding sources.
const (
	SourceRule    FindingSource = "rule"
	SourceLLM     FindingSource = "llm"
	SourceUnknown FindingSource = "unknown"
)

// EvidencePointer locates evidence in structured (non-linear) source material,
// currently spreadsheet row windows.
type EvidencePointer struct {
	Kind     string `json:"kind"`
	Sheet    string `json:"sheet,omitempty"`
	RowStart int    `json:"row_start,omitempty"`
	RowEnd   int    `json:"row_end,omitempty"`
}

// EvidenceSpan is a half-open byte range [Start, End) into the clause body
// that the evidence text was taken from. Pointer is set for clauses whose
// chunk carries an evidence pointer (spreadsheet windows).
type EvidenceSpan struct {
	Start   int              `json:"start"`
	End     int              `json:"end"`
	Pointer *EvidencePointer `json:"pointer,omitempty"`
}

// Clause is the analyzer-facing projection of a chunk: a stable id plus the
// heading and body text rules and the LLM operate on.
type Clause struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Finding is a single risk flagged on a clause, by a rule or by the LLM.
type Finding struct {
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id,omitempty"`
	RunID          *string        `json:"run_id,omitempty"`
	ClauseID       string         `json:"clause_id"`
	ChunkID        string         `json:"chunk_id"`
	ClauseHeading  string         `json:"clause_heading,omitempty"`
	ClauseBody     string         `json:"clause_body,omitempty"`
	Severity       Severity       `json:"severity"`
	Summary        string         `json:"summary"`
	Explanation    string         `json:"explanation,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	Evidence       string         `json:"evidence"`
	EvidenceSpan   *EvidenceSpan  `json:"evidence_span,omitempty"`
	Source         FindingSource  `json:"source"`
	RuleCode       string         `json:"rule_code,omitempty"`
	Model          string         `json:"model,omitempty"`
	PromptRev      string         `json:"prompt_rev,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Embedding      []float64      `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}
