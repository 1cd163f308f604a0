package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexroom/reviewd/pkg/chunk"
)

// ReplaceChunksForRun replaces the run's chunk set in one transaction.
// Delete-then-insert keeps retries idempotent: a re-run of the persist stage
// leaves exactly one chunk set behind.
func (s *Store) ReplaceChunksForRun(ctx context.Context, runID string, chunks []chunk.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting chunk transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM review_chunks WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clearing chunks for run %s: %w", runID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO review_chunks (id, run_id, chunk_id, schema_version, ordinal, heading, body, start_offset, end_offset, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.NewString(), runID, c.ChunkID, c.SchemaVersion, c.Ordinal, c.Heading, c.Body,
			c.StartOffset, c.EndOffset, c.Metadata)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks for run %s: %w", runID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks for run %s: %w", runID, err)
	}
	return nil
}

// ListChunksForRun returns the run's chunks in ordinal order.
func (s *Store) ListChunksForRun(ctx context.Context, runID string) ([]chunk.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, schema_version, ordinal, heading, body, start_offset, end_offset, metadata
		 FROM review_chunks WHERE run_id = $1 ORDER BY ordinal ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		var c chunk.Chunk
		if err := rows.Scan(&c.ChunkID, &c.SchemaVersion, &c.Ordinal, &c.Heading, &c.Body,
			&c.StartOffset, &c.EndOffset, &c.Metadata); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
