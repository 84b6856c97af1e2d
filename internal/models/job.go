package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// GenerationJob tracks an asynchronous report generation request.
type GenerationJob struct {
	JobID       uuid.UUID         `json:"job_id" gorm:"type:uuid;primaryKey"`
	IncidentID  uuid.UUID         `json:"incident_id" gorm:"type:uuid;not null;index"`
	Status      JobStatus         `json:"status" gorm:"not null;default:'pending'"`
	Result      datatypes.JSONMap `json:"result" gorm:"type:jsonb"`
	Error       string            `json:"error,omitempty"`
	RequestedBy *uuid.UUID        `json:"requested_by" gorm:"type:uuid"`
	StartedAt   *time.Time        `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}

func (j *GenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.JobID == uuid.Nil {
		j.JobID = uuid.New()
	}
	return nil
}
