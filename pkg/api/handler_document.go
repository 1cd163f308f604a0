package api

import (
	"io"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// maxUploadBytes caps the accepted upload size.
const maxUploadBytes = 20 << 20 // 20 MiB

// uploadDocumentHandler handles POST /v1/documents/upload (multipart:
// title, file). The reader is picked by file extension.
func (s *Server) uploadDocumentHandler(c *echo.Context) error {
	title := c.FormValue("title")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not open uploaded file")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	if len(data) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
	}

	doc, err := s.documents.Upload(c.Request().Context(), title, fileHeader.Filename, data)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, &UploadResponse{
		ID:        doc.ID,
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// getDocumentHandler handles GET /v1/documents/:document_id.
func (s *Server) getDocumentHandler(c *echo.Context) error {
	documentID := c.Param("document_id")
	if documentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document id is required")
	}

	doc, err := s.documents.GetDocument(c.Request().Context(), documentID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, doc)
}
