package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IncidentReport is a narrative report for an incident, either generated from
// its logs or edited by a responder afterwards.
type IncidentReport struct {
	ReportID   uuid.UUID `json:"report_id" gorm:"type:uuid;primaryKey"`
	IncidentID uuid.UUID `json:"incident_id" gorm:"type:uuid;not null;index"`
	DraftText  string    `json:"draft_text" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (IncidentReport) TableName() string {
	return "incident_reports"
}

func (r *IncidentReport) BeforeCreate(tx *gorm.DB) error {
	if r.ReportID == uuid.Nil {
		r.ReportID = uuid.New()
	}
	return nil
}
