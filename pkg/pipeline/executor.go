// Package pipeline drives a queued review run through its stages:
// preprocess, rules, LLM, persist. The executor owns stage transitions,
// timings, the result cache, and the failure policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexroom/reviewd/pkg/cache"
	"github.com/lexroom/reviewd/pkg/chunk"
	"github.com/lexroom/reviewd/pkg/embeddings"
	"github.com/lexroom/reviewd/pkg/llm"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/rules"
)

// Store is the persistence surface the executor needs. *store.Store
// satisfies it; tests use fakes.
type Store interface {
	GetRun(ctx context.Context, id string) (*models.ReviewRun, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateRun(ctx context.Context, run *models.ReviewRun) error
	ReplaceChunksForRun(ctx context.Context, runID string, chunks []chunk.Chunk) error
	ReplaceFindingsForRun(ctx context.Context, documentID, runID string, clauses []models.Clause, findings []models.Finding) error
}

// Options configures an Executor.
type Options struct {
	Store        Store
	Cache        cache.Store
	CacheEnabled bool
	LLM          llm.Provider
	LLMTimeout   time.Duration
	Embedder     embeddings.Provider
	Rules        rules.Config
	PromptRev    string
}

// Executor processes one review run end to end.
type Executor struct {
	store        Store
	cache        cache.Store
	cacheEnabled bool
	llm          llm.Provider
	llmTimeout   time.Duration
	embedder     embeddings.Provider
	rules        rules.Config
	promptRev    string
}

func New(opts Options) *Executor {
	promptRev := opts.PromptRev
	if promptRev == "" {
		promptRev = llm.DefaultPromptRev
	}
	return &Executor{
		store:        opts.Store,
		cache:        opts.Cache,
		cacheEnabled: opts.CacheEnabled && opts.Cache != nil,
		llm:          opts.LLM,
		llmTimeout:   opts.LLMTimeout,
		embedder:     opts.Embedder,
		rules:        opts.Rules,
		promptRev:    promptRev,
	}
}

// Process executes the pipeline for a claimed run. LLM timeouts and
// transport failures degrade the run to partial with rule findings only;
// LLM validation failures and everything else fail the run, and the error
// is returned so the worker can retry.
func (e *Executor) Process(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	doc, err := e.store.GetDocument(ctx, run.DocumentID)
	if err != nil {
		return e.fail(ctx, run, err)
	}

	docHash, err := cache.DocHash(string(doc.SourceType), doc.Text, doc.IngestionMetadata)
	if err != nil {
		return e.fail(ctx, run, err)
	}
	cacheKey := cache.Key(docHash, e.promptRev, chunk.SchemaVersion)

	run.Status = models.RunStatusRunning
	run.Error = nil
	run.CacheKey = &cacheKey
	if run.StartedAt == nil {
		now := time.Now().UTC()
		run.StartedAt = &now
	}
	if run.StageTimings == nil {
		run.StageTimings = map[string]int{}
	}
	if err := e.setStage(ctx, run, models.StagePreprocess); err != nil {
		return e.fail(ctx, run, err)
	}

	var (
		chunks    []chunk.Chunk
		findings  []models.Finding
		llmFailed bool
		cacheHit  bool
	)

	if e.cacheEnabled {
		start := time.Now()
		bundle, hit, cacheErr := e.cache.Get(ctx, cacheKey)
		run.StageTimings["cache_lookup_ms"] = int(time.Since(start).Milliseconds())
		if cacheErr != nil {
			slog.Warn("Cache lookup failed, computing instead", "run_id", run.ID, "error", cacheErr)
		}
		if hit {
			cacheHit = true
			// Assigned, not incremented: a worker retry re-consults the cache,
			// and the run records exactly one lookup.
			run.CacheHits, run.CacheMisses = 1, 0
			chunks = bundle.Chunks
			findings = bundle.Findings
			run.LLMModel = &bundle.LLMModel
			run.PromptRev = &bundle.PromptRev
			run.TokenUsage = bundle.TokenUsage
			slog.Info("Cache hit for review run", "run_id", run.ID, "cache_key", cacheKey)
		} else {
			run.CacheHits, run.CacheMisses = 0, 1
		}
	}

	if !cacheHit {
		chunks, findings, llmFailed, err = e.compute(ctx, run, doc)
		if err != nil {
			return e.fail(ctx, run, err)
		}
	}

	attachEvidencePointers(chunks, findings)
	e.attachEmbeddings(ctx, findings)

	if !cacheHit && !llmFailed && e.cacheEnabled {
		bundle := &cache.Bundle{
			Chunks:     chunks,
			Findings:   findings,
			PromptRev:  e.promptRev,
			TokenUsage: run.TokenUsage,
		}
		if run.LLMModel != nil {
			bundle.LLMModel = *run.LLMModel
		}
		if setErr := e.cache.Set(ctx, cacheKey, bundle); setErr != nil {
			slog.Warn("Cache population failed", "run_id", run.ID, "error", setErr)
		}
	}

	if err := e.setStage(ctx, run, models.StagePersist); err != nil {
		return e.fail(ctx, run, err)
	}
	persistStart := time.Now()
	if err := e.store.ReplaceChunksForRun(ctx, run.ID, chunks); err != nil {
		return e.fail(ctx, run, err)
	}
	inferRunMetadata(run, findings)
	if err := e.store.ReplaceFindingsForRun(ctx, run.DocumentID, run.ID, chunk.Clauses(chunks), findings); err != nil {
		return e.fail(ctx, run, err)
	}
	run.StageTimings["persist_ms"] = int(time.Since(persistStart).Milliseconds())

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.CurrentStage = nil
	if llmFailed {
		run.Status = models.RunStatusPartial
	} else {
		run.Status = models.RunStatusSucceeded
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	slog.Info("Review run completed",
		"run_id", run.ID, "status", run.Status,
		"findings", len(findings), "cache_hits", run.CacheHits)
	return nil
}

// compute runs the preprocess, rules, and LLM stages. A degraded LLM call
// returns llmFailed=true with rule findings only; an LLM validation failure
// is returned as a fatal error.
func (e *Executor) compute(ctx context.Context, run *models.ReviewRun, doc *models.Document) ([]chunk.Chunk, []models.Finding, bool, error) {
	start := time.Now()
	chunks := chunk.FromDocument(doc.Text, doc.SourceType, doc.IngestionMetadata)
	run.StageTimings["preprocess_ms"] = int(time.Since(start).Milliseconds())

	if err := e.setStage(ctx, run, models.StageRules); err != nil {
		return nil, nil, false, err
	}
	start = time.Now()
	clauses := chunk.Clauses(chunks)
	findings := rules.Run(clauses, e.rules)
	run.StageTimings["rules_ms"] = int(time.Since(start).Milliseconds())

	if err := e.setStage(ctx, run, models.StageLLM); err != nil {
		return nil, nil, false, err
	}
	llmCtx := ctx
	if e.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, e.llmTimeout)
		defer cancel()
	}
	start = time.Now()
	result, llmErr := e.llm.Generate(llmCtx, clauses)
	run.StageTimings["llm_ms"] = int(time.Since(start).Milliseconds())

	if llmErr != nil {
		if errors.Is(llmErr, llm.ErrValidation) {
			return nil, nil, false, llmErr
		}
		msg := llmErr.Error()
		run.Error = &msg
		slog.Warn("LLM stage failed, continuing with rule findings",
			"run_id", run.ID, "error", llmErr)
		return chunks, findings, true, nil
	}

	findings = append(findings, result.Findings...)
	run.LLMModel = &result.Model
	promptRev := e.promptRev
	run.PromptRev = &promptRev
	run.TokenUsage = result.Usage
	return chunks, findings, false, nil
}

// setStage records the stage transition before the stage body runs.
func (e *Executor) setStage(ctx context.Context, run *models.ReviewRun, stage models.Stage) error {
	run.CurrentStage = &stage
	return e.store.UpdateRun(ctx, run)
}

// fail marks the run failed, preserves timings already collected, and
// returns the cause so the worker can apply its retry policy.
func (e *Executor) fail(ctx context.Context, run *models.ReviewRun, cause error) error {
	msg := cause.Error()
	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.Error = &msg
	run.CompletedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		slog.Error("Failed to record run failure", "run_id", run.ID, "error", err)
	}
	return fmt.Errorf("processing run %s: %w", run.ID, cause)
}

// attachEvidencePointers copies each chunk's evidence pointer onto the spans
// of findings referencing that chunk.
func attachEvidencePointers(chunks []chunk.Chunk, findings []models.Finding) {
	pointers := make(map[string]*models.EvidencePointer, len(chunks))
	for _, c := range chunks {
		if ptr := c.EvidencePointer(); ptr != nil {
			pointers[c.ChunkID] = ptr
		}
	}
	if len(pointers) == 0 {
		return
	}
	for i := range findings {
		f := &findings[i]
		if f.EvidenceSpan == nil {
			continue
		}
		if ptr, ok := pointers[f.ClauseID]; ok {
			f.EvidenceSpan.Pointer = ptr
		}
	}
}

// attachEmbeddings populates finding embeddings best-effort; embedding
// failures never fail the run.
func (e *Executor) attachEmbeddings(ctx context.Context, findings []models.Finding) {
	if e.embedder == nil || len(findings) == 0 {
		return
	}
	inputs := make([]string, len(findings))
	for i, f := range findings {
		inputs[i] = embeddings.BuildFindingInput(f.Summary, f.Explanation, f.Evidence)
	}
	vectors, err := e.embedder.Generate(ctx, inputs)
	if err != nil || len(vectors) != len(findings) {
		slog.Warn("Embedding generation failed", "error", err)
		return
	}
	for i := range findings {
		findings[i].Embedding = vectors[i]
	}
}

// inferRunMetadata backfills run-level model and prompt revision from the
// first LLM finding when the LLM stage itself did not set them.
func inferRunMetadata(run *models.ReviewRun, findings []models.Finding) {
	if run.LLMModel != nil && run.PromptRev != nil {
		return
	}
	for _, f := range findings {
		if f.Source != models.SourceLLM {
			continue
		}
		if run.LLMModel == nil && f.Model != "" {
			model := f.Model
			run.LLMModel = &model
		}
		if run.PromptRev == nil && f.PromptRev != "" {
			rev := f.PromptRev
			run.PromptRev = &rev
		}
		return
	}
}
