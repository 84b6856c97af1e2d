package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roshni/backend/internal/db"
	"gorm.io/gorm"
)

const apiVersion = "1.0.0"

type HealthController struct {
	db *gorm.DB
}

func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

func (hc *HealthController) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ROSHNI API Documentation"})
}

// Health reports overall status; a failing database makes it 503.
func (hc *HealthController) Health(c *gin.Context) {
	dbStatus := "ok"
	var dbError string
	if err := db.Ping(hc.db); err != nil {
		dbStatus = "error"
		dbError = err.Error()
	}

	overallStatus := "ok"
	statusCode := http.StatusOK
	if dbStatus != "ok" {
		overallStatus = "error"
		statusCode = http.StatusServiceUnavailable
	}

	database := gin.H{"status": dbStatus}
	if dbError != "" {
		database["error"] = dbError
	}
	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   apiVersion,
		"services": gin.H{
			"database": database,
		},
	})
}
