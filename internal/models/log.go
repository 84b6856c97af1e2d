package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Common source types recorded by the clients.
const (
	SourceCivilian  = "civilian"
	SourceResponder = "responder"
	SourceSensor    = "sensor"
	SourceSystem    = "system"
)

// DisasterLog is a timestamped event attached to an incident. Rows are
// append-only; nothing in the API updates or deletes them.
type DisasterLog struct {
	LogID           uuid.UUID      `json:"log_id" gorm:"type:uuid;primaryKey"`
	IncidentID      uuid.UUID      `json:"incident_id" gorm:"type:uuid;not null;index:idx_disaster_logs_incident_ts,priority:1"`
	Timestamp       *time.Time     `json:"timestamp" gorm:"index:idx_disaster_logs_incident_ts,priority:2"`
	EventType       string         `json:"event_type" gorm:"not null"`
	SourceType      string         `json:"source_type" gorm:"not null"`
	Data            datatypes.JSON `json:"data" gorm:"type:jsonb"`
	CreatedByUserID *uuid.UUID     `json:"created_by_user_id" gorm:"type:uuid"`
}

func (DisasterLog) TableName() string {
	return "disaster_logs"
}

func (l *DisasterLog) BeforeCreate(tx *gorm.DB) error {
	if l.LogID == uuid.Nil {
		l.LogID = uuid.New()
	}
	return nil
}
