// Package services implements the application layer between HTTP handlers
// and the store: intake admission, run reads, findings listing, and document
// ingestion.
package services

import (
	"errors"
	"fmt"

	"github.com/lexroom/reviewd/pkg/models"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IdempotencyExpiredError rejects a retry whose idempotency key points at a
// run older than the reuse window.
type IdempotencyExpiredError struct {
	RunID string
}

func (e *IdempotencyExpiredError) Error() string {
	return fmt.Sprintf("idempotency key expired, surviving run %s", e.RunID)
}

// ConcurrencyLimitError rejects intake while the active run count is at the
// global cap.
type ConcurrencyLimitError struct {
	Limit int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("too many concurrent review runs (limit %d)", e.Limit)
}

// RateLimitError rejects intake when the requester fingerprint exceeded its
// per-minute submission budget.
type RateLimitError struct {
	LimitPerMinute int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%d per minute)", e.LimitPerMinute)
}

// EnqueueFailedError reports that a freshly created run could not be handed
// to the worker queue. The run has already been marked failed.
type EnqueueFailedError struct {
	Run   *models.ReviewRun
	Cause error
}

func (e *EnqueueFailedError) Error() string {
	return fmt.Sprintf("failed to enqueue review run: %v", e.Cause)
}

func (e *EnqueueFailedError) Unwrap() error {
	return e.Cause
}
