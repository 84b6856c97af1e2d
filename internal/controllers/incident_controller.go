package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"gorm.io/gorm"
)

type IncidentController struct {
	db *gorm.DB
}

func NewIncidentController(db *gorm.DB) *IncidentController {
	return &IncidentController{db: db}
}

type CreateIncidentRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	IncidentType string   `json:"incident_type" binding:"required"`
	Severity     string   `json:"severity" binding:"required"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

type UpdateIncidentRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	IncidentType *string  `json:"incident_type"`
	Status       *string  `json:"status"`
	Severity     *string  `json:"severity"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// ListIncidents supports status, severity and limit filters.
func (ic *IncidentController) ListIncidents(c *gin.Context) {
	query := ic.db.WithContext(c.Request.Context()).Model(&models.Incident{})

	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseIncidentStatus(raw)
		if !ok {
			detail(c, http.StatusUnprocessableEntity, "Invalid status")
			return
		}
		query = query.Where("status = ?", status)
	}
	if raw := c.Query("severity"); raw != "" {
		severity, ok := models.ParseIncidentSeverity(raw)
		if !ok {
			detail(c, http.StatusUnprocessableEntity, "Invalid severity")
			return
		}
		query = query.Where("severity = ?", severity)
	}

	var incidents []models.Incident
	err := query.Order("created_at DESC").Limit(intQuery(c, "limit", 100, 500)).Find(&incidents).Error
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to fetch incidents")
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (ic *IncidentController) CreateIncident(c *gin.Context) {
	var req CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	severity, ok := models.ParseIncidentSeverity(req.Severity)
	if !ok {
		detail(c, http.StatusUnprocessableEntity, "Invalid severity")
		return
	}

	incident := models.Incident{
		Title:        req.Title,
		Description:  req.Description,
		IncidentType: req.IncidentType,
		Status:       models.StatusOpen,
		Severity:     severity,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	}
	if userID, ok := middleware.CurrentUserID(c); ok {
		incident.ReportedByUserID = &userID
	}

	if err := ic.db.WithContext(c.Request.Context()).Create(&incident).Error; err != nil {
		logger.WithError(err, "incidents").Error("Failed to create incident")
		detail(c, http.StatusInternalServerError, "Failed to create incident")
		return
	}
	logger.WithIncident(incident.IncidentID.String(), "incidents").
		WithField("severity", incident.Severity).Info("Incident created")
	c.JSON(http.StatusCreated, incident)
}

func (ic *IncidentController) GetIncident(c *gin.Context) {
	incident, ok := ic.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, incident)
}

func (ic *IncidentController) UpdateIncident(c *gin.Context) {
	var req UpdateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	incident, ok := ic.load(c)
	if !ok {
		return
	}

	if req.Title != nil {
		incident.Title = *req.Title
	}
	if req.Description != nil {
		incident.Description = *req.Description
	}
	if req.IncidentType != nil {
		incident.IncidentType = *req.IncidentType
	}
	if req.Severity != nil {
		severity, ok := models.ParseIncidentSeverity(*req.Severity)
		if !ok {
			detail(c, http.StatusUnprocessableEntity, "Invalid severity")
			return
		}
		incident.Severity = severity
	}
	if req.Status != nil {
		status, ok := models.ParseIncidentStatus(*req.Status)
		if !ok {
			detail(c, http.StatusUnprocessableEntity, "Invalid status")
			return
		}
		if status != incident.Status {
			switch status {
			case models.StatusResolved, models.StatusClosed:
				if incident.ResolvedAt == nil {
					now := time.Now().UTC()
					incident.ResolvedAt = &now
				}
			default:
				incident.ResolvedAt = nil
			}
		}
		incident.Status = status
	}
	if req.Latitude != nil {
		incident.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		incident.Longitude = req.Longitude
	}

	if err := ic.db.WithContext(c.Request.Context()).Save(incident).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update incident")
		return
	}
	c.JSON(http.StatusOK, incident)
}

// DeleteIncident soft deletes the incident. Its logs and reports are kept.
func (ic *IncidentController) DeleteIncident(c *gin.Context) {
	incident, ok := ic.load(c)
	if !ok {
		return
	}
	if err := ic.db.WithContext(c.Request.Context()).Delete(incident).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to delete incident")
		return
	}
	logger.WithIncident(incident.IncidentID.String(), "incidents").Warn("Incident deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Incident deleted"})
}

func (ic *IncidentController) load(c *gin.Context) (*models.Incident, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	var incident models.Incident
	if err := ic.db.WithContext(c.Request.Context()).First(&incident, "incident_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "Incident not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to fetch incident")
		}
		return nil, false
	}
	return &incident, true
}
