package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
	"github.com/shreyank06/data-engineering-project/internal/dto"
	"github.com/shreyank06/data-engineering-project/internal/report"
)

// PipelineRunner runs one attribution pipeline pass.
type PipelineRunner interface {
	Run(ctx context.Context, window *domain.DateWindow) (*domain.RunSummary, error)
}

// ReportProvider reads the channel report and exports it.
type ReportProvider interface {
	Get(ctx context.Context, window *domain.DateWindow) ([]report.Row, error)
	ExportCSV(w io.Writer, rows []report.Row) error
}

// Pinger checks the event store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	runner  PipelineRunner
	reports ReportProvider
	store   Pinger
	router  *gin.Engine
	log     *zap.Logger
}

func NewHandler(runner PipelineRunner, reports ReportProvider, store Pinger, log *zap.Logger) *Handler {
	h := &Handler{
		runner:  runner,
		reports: reports,
		store:   store,
		router:  gin.Default(),
		log:     log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/report", h.getReport)
	h.router.GET("/report/export", h.exportReport)
	h.router.POST("/pipeline/run", h.runPipeline)
}

// healthCheck handles GET /health
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getReport handles GET /report with an optional inclusive date window
func (h *Handler) getReport(c *gin.Context) {
	window, err := h.bindWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	rows, err := h.reports.Get(c.Request.Context(), window)
	if err != nil {
		h.log.Error("Failed to read channel report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.ReportResponse{Rows: rows})
}

// exportReport handles GET /report/export, streaming the CSV extract
func (h *Handler) exportReport(c *gin.Context) {
	window, err := h.bindWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	rows, err := h.reports.Get(c.Request.Context(), window)
	if err != nil {
		h.log.Error("Failed to read channel report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="channel_reporting.csv"`)
	if err := h.reports.ExportCSV(c.Writer, rows); err != nil {
		h.log.Error("Failed to export channel report", zap.Error(err))
	}
}

// runPipeline handles POST /pipeline/run
func (h *Handler) runPipeline(c *gin.Context) {
	var req dto.RunPipelineRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
			return
		}
	}

	window, err := parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	summary, err := h.runner.Run(c.Request.Context(), window)
	if err != nil {
		h.log.Error("Pipeline run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "pipeline_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) bindWindow(c *gin.Context) (*domain.DateWindow, error) {
	var q dto.ReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, err
	}
	return parseWindow(q.StartDate, q.EndDate)
}

func parseWindow(start, end string) (*domain.DateWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("start_date and end_date must be provided together")
	}
	for _, d := range []string{start, end} {
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
		}
	}
	if end < start {
		return nil, fmt.Errorf("end_date %q precedes start_date %q", end, start)
	}
	return &domain.DateWindow{Start: start, End: end}, nil
}
