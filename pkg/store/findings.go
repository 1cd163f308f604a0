package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexroom/reviewd/pkg/models"
)

const findingColumns = `id, document_id, run_id, clause_id, chunk_id, clause_heading, clause_body,
	severity, summary, explanation, recommendation, evidence, evidence_span,
	source, rule_code, model, prompt_rev, confidence, embedding, created_at`

// orderings whitelists the client-facing sort fields for findings listing.
var orderings = map[string]string{
	"created_at": "created_at",
	"severity":   "severity",
	"source":     "source",
	"confidence": "confidence",
}

// FindingsQuery selects and paginates findings for a document.
type FindingsQuery struct {
	DocumentID string
	RunID      string
	Page       int
	PageSize   int
	// Ordering is a sort field, optionally prefixed "-" for descending.
	// Unknown fields fall back to created_at ascending.
	Ordering string
}

// normalizeFinding fills defaults so partially-populated findings from any
// analyzer persist consistently.
func normalizeFinding(f *models.Finding, documentID, runID string) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.DocumentID = documentID
	f.RunID = &runID
	if !models.ValidSeverity(f.Severity) {
		f.Severity = models.SeverityMedium
	}
	if f.Source != models.SourceRule && f.Source != models.SourceLLM {
		f.Source = models.SourceUnknown
	}
	if f.ClauseID == "" {
		f.ClauseID = f.ChunkID
	}
	if f.ChunkID == "" {
		f.ChunkID = f.ClauseID
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
}

// ReplaceFindingsForRun replaces the run's findings in one transaction,
// normalizing defaults first. Clause heading and body are backfilled from the
// run's clauses so every persisted row carries the text it was found in.
// Delete-then-insert keeps persist retries idempotent.
func (s *Store) ReplaceFindingsForRun(ctx context.Context, documentID, runID string, clauses []models.Clause, findings []models.Finding) error {
	clausesByID := make(map[string]models.Clause, len(clauses))
	for _, c := range clauses {
		clausesByID[c.ID] = c
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting findings transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM findings WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clearing findings for run %s: %w", runID, err)
	}

	batch := &pgx.Batch{}
	for i := range findings {
		f := &findings[i]
		normalizeFinding(f, documentID, runID)
		if c, ok := clausesByID[f.ClauseID]; ok {
			if f.ClauseHeading == "" {
				f.ClauseHeading = c.Heading
			}
			if f.ClauseBody == "" {
				f.ClauseBody = c.Body
			}
		}
		batch.Queue(
			`INSERT INTO findings (id, document_id, run_id, clause_id, chunk_id, clause_heading, clause_body,
				severity, summary, explanation, recommendation, evidence, evidence_span,
				source, rule_code, model, prompt_rev, confidence, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			f.ID, f.DocumentID, f.RunID, f.ClauseID, f.ChunkID, f.ClauseHeading, f.ClauseBody,
			f.Severity, f.Summary, f.Explanation, f.Recommendation, f.Evidence, f.EvidenceSpan,
			f.Source, f.RuleCode, f.Model, f.PromptRev, f.Confidence, f.Embedding, f.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting findings for run %s: %w", runID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing findings for run %s: %w", runID, err)
	}
	return nil
}

// CountFindingsForRun counts findings attached to one run.
func (s *Store) CountFindingsForRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM findings WHERE run_id = $1`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting findings for run %s: %w", runID, err)
	}
	return count, nil
}

// ListFindings returns one page of findings plus the total match count.
func (s *Store) ListFindings(ctx context.Context, q FindingsQuery) ([]models.Finding, int, error) {
	where := "document_id = $1"
	args := []any{q.DocumentID}
	if q.RunID != "" {
		where += " AND run_id = $2"
		args = append(args, q.RunID)
	}

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM findings WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting findings: %w", err)
	}

	offset := (q.Page - 1) * q.PageSize
	query := fmt.Sprintf(
		`SELECT %s FROM findings WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		findingColumns, where, orderClause(q.Ordering), q.PageSize, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		var f models.Finding
		if err := rows.Scan(
			&f.ID, &f.DocumentID, &f.RunID, &f.ClauseID, &f.ChunkID, &f.ClauseHeading, &f.ClauseBody,
			&f.Severity, &f.Summary, &f.Explanation, &f.Recommendation, &f.Evidence, &f.EvidenceSpan,
			&f.Source, &f.RuleCode, &f.Model, &f.PromptRev, &f.Confidence, &f.Embedding, &f.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, total, rows.Err()
}

// orderClause translates a client ordering token into a safe ORDER BY
// expression. The id tiebreaker keeps pagination stable.
func orderClause(ordering string) string {
	field := strings.TrimPrefix(ordering, "-")
	desc := strings.HasPrefix(ordering, "-")

	column, ok := orderings[field]
	if !ok {
		column, desc = "created_at", false
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s, id ASC", column, direction)
}
