package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/lexroom/reviewd/pkg/models"
)

// listFindingsHandler handles GET /v1/documents/:document_id/findings.
// Query params: run_id (default: most recent run), page, page_size, ordering.
func (s *Server) listFindingsHandler(c *echo.Context) error {
	documentID := c.Param("document_id")
	if documentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document id is required")
	}

	page := 1
	if v := c.QueryParam("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	pageSize := 0
	if v := c.QueryParam("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 {
			pageSize = ps
		}
	}

	result, err := s.findings.List(c.Request().Context(), documentID,
		c.QueryParam("run_id"), page, pageSize, c.QueryParam("ordering"))
	if err != nil {
		return mapServiceError(err)
	}

	findings := result.Findings
	if findings == nil {
		findings = []models.Finding{}
	}

	return c.JSON(http.StatusOK, &FindingsResponse{
		Document: result.Document,
		Run:      result.Run,
		Findings: findings,
		Pagination: Pagination{
			Page:       result.Page,
			PageSize:   result.PageSize,
			Total:      result.Total,
			TotalPages: result.TotalPages,
			HasNext:    result.HasNext,
			HasPrev:    result.HasPrev,
		},
	})
}
