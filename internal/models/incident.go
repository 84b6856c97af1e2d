package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IncidentStatus string
type IncidentSeverity string

const (
	StatusOpen       IncidentStatus = "OPEN"
	StatusInProgress IncidentStatus = "IN_PROGRESS"
	StatusResolved   IncidentStatus = "RESOLVED"
	StatusClosed     IncidentStatus = "CLOSED"
)

const (
	SeverityLow      IncidentSeverity = "LOW"
	SeverityModerate IncidentSeverity = "MODERATE"
	SeverityHigh     IncidentSeverity = "HIGH"
	SeverityCritical IncidentSeverity = "CRITICAL"
)

// ParseIncidentStatus validates a status value from a request.
func ParseIncidentStatus(s string) (IncidentStatus, bool) {
	switch IncidentStatus(s) {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return IncidentStatus(s), true
	}
	return "", false
}

// ParseIncidentSeverity validates a severity value from a request.
func ParseIncidentSeverity(s string) (IncidentSeverity, bool) {
	switch IncidentSeverity(s) {
	case SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical:
		return IncidentSeverity(s), true
	}
	return "", false
}

type Incident struct {
	IncidentID       uuid.UUID        `json:"incident_id" gorm:"type:uuid;primaryKey"`
	Title            string           `json:"title" gorm:"not null"`
	Description      string           `json:"description" gorm:"type:text"`
	IncidentType     string           `json:"incident_type" gorm:"not null"`
	Status           IncidentStatus   `json:"status" gorm:"not null;default:'OPEN'"`
	Severity         IncidentSeverity `json:"severity" gorm:"not null"`
	Latitude         *float64         `json:"latitude"`
	Longitude        *float64         `json:"longitude"`
	ReportedByUserID *uuid.UUID       `json:"reported_by_user_id" gorm:"type:uuid"`
	ResolvedAt       *time.Time       `json:"resolved_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `json:"-" gorm:"index"`
}

func (Incident) TableName() string {
	return "incidents"
}

func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.IncidentID == uuid.Nil {
		i.IncidentID = uuid.New()
	}
	return nil
}
