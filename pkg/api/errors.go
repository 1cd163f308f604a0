package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/services"
)

// Intake rejection bodies. The detail strings are part of the API contract.
type idempotencyExpiredBody struct {
	Detail string `json:"detail"`
	RunID  string `json:"run_id"`
}

type concurrencyLimitBody struct {
	Detail string `json:"detail"`
	Limit  int    `json:"limit"`
}

type rateLimitBody struct {
	Detail         string `json:"detail"`
	LimitPerMinute int    `json:"limit_per_minute"`
}

type enqueueFailedBody struct {
	Detail string            `json:"detail"`
	Run    *models.ReviewRun `json:"run"`
}

// writeIntakeError renders the intake-specific rejections with their typed
// bodies. Returns false when err is not one of them.
func writeIntakeError(c *echo.Context, err error) (bool, error) {
	var expired *services.IdempotencyExpiredError
	if errors.As(err, &expired) {
		return true, c.JSON(http.StatusConflict, &idempotencyExpiredBody{
			Detail: "Idempotency key has expired (older than 24 hours). Use a new Idempotency-Key.",
			RunID:  expired.RunID,
		})
	}

	var concurrency *services.ConcurrencyLimitError
	if errors.As(err, &concurrency) {
		return true, c.JSON(http.StatusTooManyRequests, &concurrencyLimitBody{
			Detail: "Too many concurrent review runs. Try again shortly.",
			Limit:  concurrency.Limit,
		})
	}

	var rate *services.RateLimitError
	if errors.As(err, &rate) {
		return true, c.JSON(http.StatusTooManyRequests, &rateLimitBody{
			Detail:         "Rate limit exceeded for review run requests.",
			LimitPerMinute: rate.LimitPerMinute,
		})
	}

	var enqueue *services.EnqueueFailedError
	if errors.As(err, &enqueue) {
		return true, c.JSON(http.StatusServiceUnavailable, &enqueueFailedBody{
			Detail: "Failed to enqueue review run.",
			Run:    enqueue.Run,
		})
	}

	return false, nil
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
