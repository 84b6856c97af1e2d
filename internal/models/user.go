package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleName string

const (
	RoleCivilian  RoleName = "civilian"
	RoleResponder RoleName = "responder"
	RoleCommander RoleName = "commander"
)

// Role ids are fixed so tokens and seed data agree across databases.
const (
	RoleIDCivilian  = 1
	RoleIDResponder = 2
	RoleIDCommander = 3
)

type Role struct {
	RoleID      int      `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	Name        RoleName `json:"name" gorm:"uniqueIndex;not null"`
	Description string   `json:"description"`
}

func (Role) TableName() string {
	return "roles"
}

// DefaultRoles are seeded on startup when the roles table is empty.
func DefaultRoles() []Role {
	return []Role{
		{RoleID: RoleIDCivilian, Name: RoleCivilian, Description: "Standard user"},
		{RoleID: RoleIDResponder, Name: RoleResponder, Description: "Emergency personnel"},
		{RoleID: RoleIDCommander, Name: RoleCommander, Description: "System administrator"},
	}
}

type User struct {
	UserID              uuid.UUID      `json:"user_id" gorm:"type:uuid;primaryKey"`
	Email               string         `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash        string         `json:"-" gorm:"not null"`
	FullName            string         `json:"full_name" gorm:"not null"`
	Phone               *string        `json:"phone"`
	RoleID              int            `json:"role_id" gorm:"not null;default:1"`
	Role                *Role          `json:"role,omitempty" gorm:"foreignKey:RoleID;references:RoleID"`
	OnboardingCompleted bool           `json:"onboarding_completed" gorm:"not null;default:false"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// RoleName resolves the user's role from the preloaded association or the role id.
func (u *User) RoleName() RoleName {
	if u.Role != nil {
		return u.Role.Name
	}
	return RoleNameForID(u.RoleID)
}

// RoleNameForID maps a seeded role id to its name.
func RoleNameForID(id int) RoleName {
	switch id {
	case RoleIDResponder:
		return RoleResponder
	case RoleIDCommander:
		return RoleCommander
	default:
		return RoleCivilian
	}
}
