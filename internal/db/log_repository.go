package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/roshni/backend/internal/models"
	"gorm.io/gorm"
)

// LogRepository reads and appends disaster logs.
type LogRepository struct {
	db *gorm.DB
}

func NewLogRepository(conn *gorm.DB) *LogRepository {
	return &LogRepository{db: conn}
}

// ListByIncident returns every log of the incident, oldest first. Logs with
// the same timestamp are ordered by id so the result is stable; logs without
// a timestamp come last.
func (r *LogRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.DisasterLog, error) {
	var logs []models.DisasterLog
	err := r.db.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("timestamp IS NULL").
		Order("timestamp ASC").
		Order("log_id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list logs for incident %s: %w", incidentID, err)
	}
	return logs, nil
}

// Create appends a log record.
func (r *LogRepository) Create(ctx context.Context, log *models.DisasterLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("create log: %w", err)
	}
	return nil
}
