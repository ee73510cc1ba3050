package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/pkg/hallucination"
	"github.com/xhad/reviewground/pkg/loader"
	"github.com/xhad/reviewground/pkg/results"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ExtractRequest struct {
	Review string `json:"review"`
}

type ValidateRequest struct {
	Claims []models.ExtractedClaim `json:"claims" binding:"required"`
}

type DetectRequest struct {
	Claim   string `json:"claim" binding:"required"`
	PaperID string `json:"paperId" binding:"required"`
}

type DetectBatchRequest struct {
	Claims  []string `json:"claims" binding:"required"`
	PaperID string   `json:"paperId" binding:"required"`
}

type BatchRequest struct {
	Papers int `json:"papers"`
}

var errResultsDisabled = errors.New("result storage is not configured")

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	switch {
	case errors.Is(err, loader.ErrPaperIndexOutOfRange), errors.Is(err, loader.ErrPaperNotFound):
		status, code = http.StatusNotFound, "PAPER_NOT_FOUND"
	case errors.Is(err, hallucination.ErrUnknownMethod):
		status, code = http.StatusBadRequest, "UNKNOWN_METHOD"
	case errors.Is(err, results.ErrNotFound):
		status, code = http.StatusNotFound, "EXPERIMENT_NOT_FOUND"
	case errors.Is(err, errResultsDisabled):
		status, code = http.StatusServiceUnavailable, "RESULTS_DISABLED"
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "INVALID_REQUEST"})
}

// paper resolves the :index path parameter.
func (s *Server) paper(c *gin.Context) (models.Paper, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "paper index must be an integer")
		return models.Paper{}, false
	}
	paper, err := s.pipeline.Papers.Paper(c.Request.Context(), index)
	if err != nil {
		s.fail(c, err)
		return models.Paper{}, false
	}
	return paper, true
}

// handleListPapers lists the loaded papers, or looks one up with ?id=.
func (s *Server) handleListPapers(c *gin.Context) {
	if id := c.Query("id"); id != "" {
		paper, index, err := s.pipeline.Papers.PaperByID(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"index": index, "paper": paper})
		return
	}

	papers, err := s.pipeline.Papers.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"papers": papers})
}

// handleReloadPapers drops the cached paper set and loads it again.
func (s *Server) handleReloadPapers(c *gin.Context) {
	s.pipeline.Papers.Invalidate()
	s.handleListPapers(c)
}

func (s *Server) handleIndexPaper(c *gin.Context) {
	paper, ok := s.paper(c)
	if !ok {
		return
	}
	written, err := s.pipeline.Indexer.IndexPaper(c.Request.Context(), paper)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paperId": paper.ID, "chunksWritten": written})
}

func (s *Server) handleContext(c *gin.Context) {
	paper, ok := s.paper(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.pipeline.Indexer.IndexPaper(ctx, paper); err != nil {
		s.fail(c, err)
		return
	}
	excerpts, err := s.pipeline.Retriever.RetrieveContext(ctx, paper.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paperId": paper.ID, "context": excerpts})
}

func (s *Server) handleReview(c *gin.Context) {
	paper, ok := s.paper(c)
	if !ok {
		return
	}
	useRAG := c.DefaultQuery("rag", "true") != "false"
	ctx := c.Request.Context()

	var (
		review string
		err    error
	)
	if useRAG {
		if _, err = s.pipeline.Indexer.IndexPaper(ctx, paper); err == nil {
			review, err = s.pipeline.Reviewer.GenerateWithRAG(ctx, paper)
		}
	} else {
		review, err = s.pipeline.Reviewer.GenerateWithoutRAG(ctx, paper)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paperId": paper.ID, "rag": useRAG, "review": review})
}

func (s *Server) handleExtractClaims(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	extracted, err := s.pipeline.Extractor.ExtractClaims(c.Request.Context(), req.Review)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": extracted})
}

func (s *Server) handleValidateClaims(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	validated, err := s.pipeline.Extractor.ValidateClaims(c.Request.Context(), req.Claims)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"validatedClaims": validated})
}

func (s *Server) detector(c *gin.Context) (hallucination.Detector, bool) {
	method, err := hallucination.ParseMethod(c.Param("method"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	d, err := s.pipeline.Detectors.Detector(method)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return d, true
}

func (s *Server) handleDetect(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "claim and paperId are required")
		return
	}

	if c.Param("method") == "compare" {
		comparison, err := s.pipeline.Detectors.CompareAll(c.Request.Context(), req.Claim, req.PaperID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, comparison)
		return
	}

	d, ok := s.detector(c)
	if !ok {
		return
	}
	verdict, err := d.Detect(c.Request.Context(), req.Claim, req.PaperID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

func (s *Server) handleDetectBatch(c *gin.Context) {
	var req DetectBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "claims and paperId are required")
		return
	}
	d, ok := s.detector(c)
	if !ok {
		return
	}
	verdicts, err := d.DetectBatch(c.Request.Context(), req.Claims, req.PaperID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"method": d.Method(), "results": verdicts})
}

func (s *Server) handleExperiment(c *gin.Context) {
	if c.Param("index") == "batch" {
		s.handleBatch(c)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "paper index must be an integer")
		return
	}
	result, err := s.pipeline.Runner.RunPaper(c.Request.Context(), index)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	batch, err := s.pipeline.Runner.RunBatch(c.Request.Context(), req.Papers)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) handleListResults(c *gin.Context) {
	if s.pipeline.Results == nil {
		s.fail(c, errResultsDisabled)
		return
	}
	summaries, err := s.pipeline.Results.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": summaries})
}

func (s *Server) handleGetResult(c *gin.Context) {
	if s.pipeline.Results == nil {
		s.fail(c, errResultsDisabled)
		return
	}
	batch, err := s.pipeline.Results.Get(c.Request.Context(), c.Param("experimentId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
