// Package server exposes the pipeline over HTTP, with a websocket stream for
// batch experiment progress.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xhad/reviewground/pkg/pipeline"
)

type Server struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	router   *gin.Engine
}

func New(p *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: p,
		logger:   logger.With("component", "server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(s.pipeline.Metrics.Handler()))

	v1 := router.Group("/v1")

	v1.GET("/papers", s.handleListPapers)
	v1.POST("/papers", s.handleReloadPapers)
	v1.POST("/papers/:index/index", s.handleIndexPaper)
	v1.GET("/papers/:index/context", s.handleContext)
	v1.POST("/papers/:index/review", s.handleReview)

	v1.POST("/claims/extract", s.handleExtractClaims)
	v1.POST("/claims/validate", s.handleValidateClaims)

	// "compare" shares the :method segment.
	v1.POST("/hallucination/:method", s.handleDetect)
	v1.POST("/hallucination/:method/batch", s.handleDetectBatch)

	// "batch" shares the :index segment.
	v1.POST("/experiments/:index", s.handleExperiment)
	v1.GET("/experiments/stream", s.handleExperimentStream)

	v1.GET("/results", s.handleListResults)
	v1.GET("/results/:experimentId", s.handleGetResult)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
