package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ResponderType string
type ResponderStatus string

const (
	ResponderMedical ResponderType = "medical"
	ResponderFire    ResponderType = "fire"
	ResponderPolice  ResponderType = "police"
	ResponderRescue  ResponderType = "rescue"
)

const (
	ResponderAvailable ResponderStatus = "available"
	ResponderBusy      ResponderStatus = "busy"
	ResponderOffline   ResponderStatus = "offline"
)

func ParseResponderType(s string) (ResponderType, bool) {
	switch ResponderType(s) {
	case ResponderMedical, ResponderFire, ResponderPolice, ResponderRescue:
		return ResponderType(s), true
	}
	return "", false
}

func ParseResponderStatus(s string) (ResponderStatus, bool) {
	switch ResponderStatus(s) {
	case ResponderAvailable, ResponderBusy, ResponderOffline:
		return ResponderStatus(s), true
	}
	return "", false
}

type Responder struct {
	ResponderID       uuid.UUID       `json:"responder_id" gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	User              *User           `json:"user,omitempty" gorm:"foreignKey:UserID;references:UserID"`
	ResponderType     ResponderType   `json:"responder_type" gorm:"not null"`
	Status            ResponderStatus `json:"status" gorm:"not null;default:'available'"`
	Skills            pq.StringArray  `json:"skills" gorm:"type:text[]"`
	CurrentIncidentID *uuid.UUID      `json:"current_incident_id" gorm:"type:uuid;index"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (Responder) TableName() string {
	return "responders"
}

func (r *Responder) BeforeCreate(tx *gorm.DB) error {
	if r.ResponderID == uuid.Nil {
		r.ResponderID = uuid.New()
	}
	return nil
}
