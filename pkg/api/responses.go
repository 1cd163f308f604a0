package api

import (
	"github.com/lexroom/reviewd/pkg/database"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/queue"
)

// DocumentRef is the compact document shape embedded in run payloads.
type DocumentRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// UploadResponse is returned by POST /v1/documents/upload.
type UploadResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// SubmitRunResponse is returned by POST /v1/review/run. Clauses and findings
// are always empty at intake time; they are filled by the pipeline and read
// through the findings endpoint.
type SubmitRunResponse struct {
	Document          DocumentRef       `json:"document"`
	Clauses           []models.Clause   `json:"clauses"`
	Findings          []models.Finding  `json:"findings"`
	Run               *models.ReviewRun `json:"run"`
	IdempotencyReused bool              `json:"idempotency_reused"`
}

// RunDetailResponse is returned by GET /v1/review-runs/:run_id.
type RunDetailResponse struct {
	Run      *models.ReviewRun `json:"run"`
	Document *models.Document  `json:"document"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// FindingsResponse is returned by GET /v1/documents/:document_id/findings.
// Run is null when the document has never been reviewed.
type FindingsResponse struct {
	Document   *models.Document  `json:"document"`
	Run        *models.ReviewRun `json:"run"`
	Findings   []models.Finding  `json:"findings"`
	Pagination Pagination        `json:"pagination"`
}

// HealthCheck is one component's health in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	Database   *database.HealthStatus `json:"database,omitempty"`
	WorkerPool *queue.PoolHealth      `json:"worker_pool,omitempty"`
	Checks     map[string]HealthCheck `json:"checks"`
}
