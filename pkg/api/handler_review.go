package api

import (
	"net"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/lexroom/reviewd/pkg/models"
)

// SubmitRunRequest is the body of POST /v1/review/run. The Idempotency-Key
// header takes precedence over the body field.
type SubmitRunRequest struct {
	DocumentID     string `json:"document_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// submitRunHandler handles POST /v1/review/run.
// 202 for a newly queued run, 200 when an idempotency key resolved to a
// recent run, 409/429/503 for the intake rejections.
func (s *Server) submitRunHandler(c *echo.Context) error {
	var req SubmitRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document_id is required")
	}

	idempotencyKey := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}

	result, err := s.reviews.SubmitRun(c.Request().Context(), req.DocumentID, idempotencyKey, requestFingerprint(c))
	if err != nil {
		if handled, writeErr := writeIntakeError(c, err); handled {
			return writeErr
		}
		return mapServiceError(err)
	}

	status := http.StatusAccepted
	if result.Reused {
		status = http.StatusOK
	}
	return c.JSON(status, &SubmitRunResponse{
		Document:          DocumentRef{ID: result.Document.ID, Title: result.Document.Title},
		Clauses:           []models.Clause{},
		Findings:          []models.Finding{},
		Run:               result.Run,
		IdempotencyReused: result.Reused,
	})
}

// getRunHandler handles GET /v1/review-runs/:run_id.
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("run_id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	run, doc, err := s.reviews.GetRun(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &RunDetailResponse{Run: run, Document: doc})
}

// requestFingerprint tags the requester for rate limiting: authenticated
// callers by user id, anonymous ones by client address (first X-Forwarded-For
// hop when behind a proxy).
func requestFingerprint(c *echo.Context) string {
	if userID := strings.TrimSpace(c.Request().Header.Get("X-User-ID")); userID != "" {
		return "user:" + userID
	}

	addr := ""
	if forwarded := c.Request().Header.Get("X-Forwarded-For"); forwarded != "" {
		addr = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if addr == "" {
		host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
		if err != nil {
			host = c.Request().RemoteAddr
		}
		addr = host
	}
	if addr == "" {
		addr = "unknown"
	}
	return "ip:" + addr
}
