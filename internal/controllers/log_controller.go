package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"github.com/valyala/fastjson"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogController exposes the disaster log feed. Logs are append-only.
type LogController struct {
	db     *gorm.DB
	logs   *db.LogRepository
	parser fastjson.ParserPool
}

func NewLogController(conn *gorm.DB, logs *db.LogRepository) *LogController {
	return &LogController{db: conn, logs: logs}
}

type CreateLogRequest struct {
	IncidentID uuid.UUID       `json:"incident_id" binding:"required"`
	Timestamp  *time.Time      `json:"timestamp"`
	EventType  string          `json:"event_type" binding:"required"`
	SourceType string          `json:"source_type" binding:"required"`
	Data       json.RawMessage `json:"data"`
}

var errPayloadNotObject = errors.New("data must be a JSON object")

// GetLogs returns an incident's logs in the order the report pipeline reads them.
func (lc *LogController) GetLogs(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Query("incident_id"))
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "incident_id query parameter must be a valid UUID")
		return
	}

	logs, err := lc.logs.ListByIncident(c.Request.Context(), incidentID)
	if err != nil {
		logger.WithError(err, "logs").Error("Failed to fetch logs")
		detail(c, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}
	c.JSON(http.StatusOK, logs)
}

// CreateLog appends a log to an existing incident.
func (lc *LogController) CreateLog(c *gin.Context) {
	var req CreateLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	req.EventType = strings.TrimSpace(req.EventType)
	req.SourceType = strings.TrimSpace(req.SourceType)

	payload, err := lc.normalizePayload(req.Data)
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var count int64
	if err := lc.db.WithContext(c.Request.Context()).Model(&models.Incident{}).
		Where("incident_id = ?", req.IncidentID).Count(&count).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to fetch incident")
		return
	}
	if count == 0 {
		detail(c, http.StatusNotFound, "Incident not found")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	entry := models.DisasterLog{
		IncidentID: req.IncidentID,
		Timestamp:  &ts,
		EventType:  req.EventType,
		SourceType: req.SourceType,
		Data:       payload,
	}
	if userID, ok := middleware.CurrentUserID(c); ok {
		entry.CreatedByUserID = &userID
	}

	if err := lc.logs.Create(c.Request.Context(), &entry); err != nil {
		logger.WithError(err, "logs").Error("Failed to create log")
		detail(c, http.StatusInternalServerError, "Failed to create log")
		return
	}
	logger.WithIncident(req.IncidentID.String(), "logs").WithFields(map[string]interface{}{
		"log_id":     entry.LogID,
		"event_type": entry.EventType,
	}).Debug("Log appended")
	c.JSON(http.StatusCreated, entry)
}

// normalizePayload checks the payload is a JSON object and returns it
// compacted. An absent payload is stored as an empty object.
func (lc *LogController) normalizePayload(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON("{}"), nil
	}

	p := lc.parser.Get()
	defer lc.parser.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, errors.New("data is not valid JSON: " + err.Error())
	}
	if v.Type() != fastjson.TypeObject {
		return nil, errPayloadNotObject
	}
	return datatypes.JSON(v.MarshalTo(nil)), nil
}
