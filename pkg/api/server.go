// Package api exposes the HTTP surface: document upload and detail, review
// run intake, run detail, findings listing, and health. Handlers bind and
// validate the request, call the service layer, and map service errors to
// HTTP responses.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/lexroom/reviewd/pkg/database"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/queue"
	"github.com/lexroom/reviewd/pkg/services"
)

// documentService is the slice of DocumentService the handlers use.
type documentService interface {
	Upload(ctx context.Context, title, filename string, data []byte) (*models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// reviewService is the slice of ReviewService the handlers use.
type reviewService interface {
	SubmitRun(ctx context.Context, documentID, idempotencyKey, fingerprint string) (*services.SubmitResult, error)
	GetRun(ctx context.Context, runID string) (*models.ReviewRun, *models.Document, error)
}

// findingsService is the slice of FindingsService the handlers use.
type findingsService interface {
	List(ctx context.Context, documentID, runID string, page, pageSize int, ordering string) (*services.FindingsResult, error)
}

// poolHealther reports worker pool health for the health endpoint.
type poolHealther interface {
	Health() *queue.PoolHealth
}

// Server is the HTTP API server.
type Server struct {
	dbClient   *database.Client
	documents  documentService
	reviews    reviewService
	findings   findingsService
	workerPool poolHealther

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(dbClient *database.Client, documents *services.DocumentService, reviews *services.ReviewService, findings *services.FindingsService, pool *queue.WorkerPool) *Server {
	s := &Server{
		dbClient:   dbClient,
		documents:  documents,
		reviews:    reviews,
		findings:   findings,
		workerPool: pool,
	}
	s.echo = echo.New()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)

	v1 := e.Group("/v1")
	v1.POST("/documents/upload", s.uploadDocumentHandler)
	v1.GET("/documents/:document_id", s.getDocumentHandler)
	v1.GET("/documents/:document_id/findings", s.listFindingsHandler)
	v1.POST("/review/run", s.submitRunHandler)
	v1.GET("/review-runs/:run_id", s.getRunHandler)
}

// Start blocks serving HTTP on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
