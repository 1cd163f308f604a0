package models

import "time"

// RunStatus is the lifecycle state of a review run.
type RunStatus string

// Run status constants. Transitions are monotonic within one processing
// attempt: queued → running → (succeeded | partial | failed).
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusPartial || s == RunStatusFailed
}

// Stage names the pipeline stage a running review is currently in.
type Stage string

// Pipeline stages, in execution order.
const (
	StagePreprocess Stage = "preprocess"
	StageRules      Stage = "rules"
	StageLLM        Stage = "llm"
	StagePersist    Stage = "persist"
)

// TokenUsage aggregates LLM token consumption for a run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ReviewRun is one processing attempt over a document. StageTimings holds
// per-stage wall-clock durations in milliseconds keyed "<stage>_ms", plus
// "cache_lookup_ms" when the cache was consulted.
type ReviewRun struct {
	ID                 string         `json:"id"`
	DocumentID         string         `json:"document_id"`
	IdempotencyKey     *string        `json:"idempotency_key,omitempty"`
	RequestFingerprint string         `json:"request_fingerprint,omitempty"`
	Status             RunStatus      `json:"status"`
	CurrentStage       *Stage         `json:"current_stage"`
	Error              *string        `json:"error"`
	LLMModel           *string        `json:"llm_model"`
	PromptRev          *string        `json:"prompt_rev"`
	CacheKey           *string        `json:"cache_key"`
	CacheHits          int            `json:"cache_hits"`
	CacheMisses        int            `json:"cache_misses"`
	TokenUsage         TokenUsage     `json:"token_usage"`
	StageTimings       map[string]int `json:"stage_timings"`
	StartedAt          *time.Time     `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at"`
	LastHeartbeatAt    *time.Time     `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`

	// FindingsCount is populated on read paths that join findings.
	FindingsCount int `json:"findings_count"`
}
