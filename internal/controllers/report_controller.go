package controllers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/models"
	"gorm.io/gorm"
)

// PDFLocator maps an incident to its rendered report file.
type PDFLocator interface {
	PathFor(incidentID uuid.UUID) string
}

type ReportController struct {
	reports *db.ReportRepository
	pdfs    PDFLocator
}

func NewReportController(reports *db.ReportRepository, pdfs PDFLocator) *ReportController {
	return &ReportController{reports: reports, pdfs: pdfs}
}

type UpdateReportRequest struct {
	DraftText string `json:"draft_text" binding:"required"`
}

func (rc *ReportController) ListReports(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Query("incident_id"))
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "incident_id query parameter must be a valid UUID")
		return
	}
	reports, err := rc.reports.ListByIncident(c.Request.Context(), incidentID)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to fetch reports")
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (rc *ReportController) GetReport(c *gin.Context) {
	report, ok := rc.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

// UpdateReport edits the draft text. The rendered PDF is left as generated.
func (rc *ReportController) UpdateReport(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(req.DraftText) == "" {
		detail(c, http.StatusUnprocessableEntity, "draft_text must not be empty")
		return
	}

	report, err := rc.reports.UpdateDraft(c.Request.Context(), id, req.DraftText)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "Report not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to update report")
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

// DownloadPDF serves the latest rendered PDF of the report's incident.
func (rc *ReportController) DownloadPDF(c *gin.Context) {
	report, ok := rc.load(c)
	if !ok {
		return
	}
	path := rc.pdfs.PathFor(report.IncidentID)
	if _, err := os.Stat(path); err != nil {
		detail(c, http.StatusNotFound, "PDF not found for this report")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (rc *ReportController) load(c *gin.Context) (*models.IncidentReport, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	report, err := rc.reports.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "Report not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to fetch report")
		}
		return nil, false
	}
	return report, true
}
