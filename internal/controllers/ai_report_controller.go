package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roshni/backend/internal/llm"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"github.com/roshni/backend/internal/services"
	"gorm.io/gorm"
)

// JobQueue accepts asynchronous generation requests.
type JobQueue interface {
	CreateGenerationJob(ctx context.Context, incidentID uuid.UUID, requestedBy *uuid.UUID) (*models.GenerationJob, error)
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*models.GenerationJob, error)
}

type AIReportController struct {
	generator services.Generator
	jobs      JobQueue
}

func NewAIReportController(generator services.Generator, jobs JobQueue) *AIReportController {
	return &AIReportController{generator: generator, jobs: jobs}
}

type GenerateReportResponse struct {
	Message  string `json:"message"`
	ReportID string `json:"report_id"`
	PDFPath  string `json:"pdf_path"`
	Preview  string `json:"preview"`
}

// GenerateReport runs the report pipeline for an incident. With
// ?async=true the work is queued and a job is returned instead.
func (ac *AIReportController) GenerateReport(c *gin.Context) {
	incidentID, ok := uuidParam(c, "incident_id")
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		ac.enqueue(c, incidentID)
		return
	}

	result, err := ac.generator.Generate(c.Request.Context(), incidentID)
	if err != nil {
		status, msg := generationErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.WithError(err, "ai_reports").WithField("incident_id", incidentID.String()).Error("Report generation failed")
		}
		detail(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, GenerateReportResponse{
		Message:  "AI Report generated successfully",
		ReportID: result.ReportID.String(),
		PDFPath:  result.PDFPath,
		Preview:  result.Preview,
	})
}

func (ac *AIReportController) enqueue(c *gin.Context, incidentID uuid.UUID) {
	var requestedBy *uuid.UUID
	if userID, ok := middleware.CurrentUserID(c); ok {
		requestedBy = &userID
	}

	job, err := ac.jobs.CreateGenerationJob(c.Request.Context(), incidentID, requestedBy)
	if err != nil {
		if errors.Is(err, services.ErrQueueFull) || errors.Is(err, services.ErrShuttingDown) {
			detail(c, http.StatusServiceUnavailable, "Report generation queue is unavailable, try again later")
			return
		}
		logger.WithError(err, "ai_reports").Error("Failed to queue report generation")
		detail(c, http.StatusInternalServerError, "Failed to queue report generation")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "AI Report generation queued",
		"job_id":  job.JobID,
		"status":  job.Status,
	})
}

// GetJob reports the state of an asynchronous generation.
func (ac *AIReportController) GetJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}
	job, err := ac.jobs.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "Job not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to fetch job")
		}
		return
	}
	c.JSON(http.StatusOK, job)
}

// generationErrorStatus maps pipeline errors to an HTTP status and message.
func generationErrorStatus(err error) (int, string) {
	var (
		upstream   *llm.UpstreamError
		renderErr  *services.RenderError
		persistErr *services.PersistenceError
	)
	switch {
	case errors.Is(err, services.ErrNoLogs):
		return http.StatusNotFound, "No logs found for this incident"
	case errors.Is(err, services.ErrGenerationInProgress):
		return http.StatusConflict, "Report generation already in progress for this incident"
	case errors.Is(err, context.Canceled):
		// client went away; the status is never seen
		return 499, "Request cancelled"
	case errors.As(err, &upstream):
		if upstream.Transient() {
			return http.StatusServiceUnavailable, "Report service temporarily unavailable"
		}
		return http.StatusBadGateway, "Report service rejected the request"
	case errors.As(err, &renderErr):
		return http.StatusInternalServerError, "Failed to render report"
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError, "Failed to store report"
	default:
		return http.StatusInternalServerError, "Failed to generate report"
	}
}
