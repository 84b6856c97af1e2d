package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"gorm.io/gorm"
)

type ResponderController struct {
	db *gorm.DB
}

func NewResponderController(db *gorm.DB) *ResponderController {
	return &ResponderController{db: db}
}

type CreateResponderRequest struct {
	UserID        uuid.UUID `json:"user_id" binding:"required"`
	ResponderType string    `json:"responder_type" binding:"required"`
	Skills        []string  `json:"skills"`
}

type UpdateResponderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type AssignResponderRequest struct {
	IncidentID uuid.UUID `json:"incident_id" binding:"required"`
}

func (rc *ResponderController) ListResponders(c *gin.Context) {
	query := rc.db.WithContext(c.Request.Context()).Preload("User")

	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseResponderStatus(raw)
		if !ok {
			detail(c, http.StatusUnprocessableEntity, "Invalid status")
			return
		}
		query = query.Where("status = ?", status)
	}
	if raw := c.Query("responder_type"); raw != "" {
		rt, ok := models.ParseResponderType(raw)
		if !ok {
			detail(c, http.StatusUnprocessableEntity, "Invalid responder_type")
			return
		}
		query = query.Where("responder_type = ?", rt)
	}

	var responders []models.Responder
	if err := query.Order("created_at DESC").Find(&responders).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to fetch responders")
		return
	}
	c.JSON(http.StatusOK, responders)
}

// CreateResponder registers an existing user as a responder and promotes
// civilians to the responder role.
func (rc *ResponderController) CreateResponder(c *gin.Context) {
	var req CreateResponderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	rt, ok := models.ParseResponderType(req.ResponderType)
	if !ok {
		detail(c, http.StatusUnprocessableEntity, "Invalid responder_type")
		return
	}

	responder := models.Responder{
		UserID:        req.UserID,
		ResponderType: rt,
		Status:        models.ResponderAvailable,
		Skills:        pq.StringArray(req.Skills),
	}

	err := rc.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "user_id = ?", req.UserID).Error; err != nil {
			return err
		}
		if err := tx.Create(&responder).Error; err != nil {
			return err
		}
		if user.RoleID == models.RoleIDCivilian {
			return tx.Model(&user).Update("role_id", models.RoleIDResponder).Error
		}
		return nil
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		detail(c, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, gorm.ErrDuplicatedKey):
		detail(c, http.StatusConflict, "User is already a responder")
		return
	case err != nil:
		logger.WithError(err, "responders").Error("Failed to create responder")
		detail(c, http.StatusInternalServerError, "Failed to create responder")
		return
	}
	c.JSON(http.StatusCreated, responder)
}

func (rc *ResponderController) GetResponder(c *gin.Context) {
	responder, ok := rc.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, responder)
}

// UpdateStatus lets responders change their own status; commanders may
// change anyone's.
func (rc *ResponderController) UpdateStatus(c *gin.Context) {
	var req UpdateResponderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	status, ok := models.ParseResponderStatus(req.Status)
	if !ok {
		detail(c, http.StatusUnprocessableEntity, "Invalid status")
		return
	}

	responder, ok := rc.load(c)
	if !ok {
		return
	}
	if middleware.CurrentRole(c) != models.RoleCommander {
		if userID, _ := middleware.CurrentUserID(c); userID != responder.UserID {
			detail(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
	}

	updates := map[string]interface{}{"status": status}
	if status != models.ResponderBusy {
		updates["current_incident_id"] = nil
	}
	if err := rc.db.WithContext(c.Request.Context()).Model(responder).Updates(updates).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update responder")
		return
	}
	responder.Status = status
	if status != models.ResponderBusy {
		responder.CurrentIncidentID = nil
	}
	c.JSON(http.StatusOK, responder)
}

// Assign attaches the responder to an open incident and marks them busy.
func (rc *ResponderController) Assign(c *gin.Context) {
	var req AssignResponderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	responder, ok := rc.load(c)
	if !ok {
		return
	}

	var incident models.Incident
	if err := rc.db.WithContext(c.Request.Context()).First(&incident, "incident_id = ?", req.IncidentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "Incident not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to fetch incident")
		}
		return
	}
	if incident.Status == models.StatusResolved || incident.Status == models.StatusClosed {
		detail(c, http.StatusBadRequest, "Incident is no longer active")
		return
	}
	if responder.Status == models.ResponderOffline {
		detail(c, http.StatusBadRequest, "Responder is offline")
		return
	}

	err := rc.db.WithContext(c.Request.Context()).Model(responder).Updates(map[string]interface{}{
		"status":              models.ResponderBusy,
		"current_incident_id": incident.IncidentID,
	}).Error
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to assign responder")
		return
	}
	responder.Status = models.ResponderBusy
	responder.CurrentIncidentID = &incident.IncidentID
	logger.WithIncident(incident.IncidentID.String(), "responders").
		WithField("responder_id", responder.ResponderID).Info("Responder assigned")

	c.JSON(http.StatusOK, gin.H{
		"message":   "Responder assigned successfully",
		"responder": responder,
	})
}

func (rc *ResponderController) load(c *gin.Context) (*models.Responder, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	var responder models.Responder
	err := rc.db.WithContext(c.Request.Context()).Preload("User").First(&responder, "responder_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "Responder not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to fetch responder")
		}
		return nil, false
	}
	return &responder, true
}
