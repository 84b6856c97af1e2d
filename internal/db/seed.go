package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedRoles inserts the standard roles when the roles table is empty.
// It reports whether any rows were inserted.
func SeedRoles(ctx context.Context, conn *gorm.DB) (bool, error) {
	var count int64
	if err := conn.WithContext(ctx).Model(&models.Role{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count roles: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	roles := models.DefaultRoles()
	if err := conn.WithContext(ctx).Create(&roles).Error; err != nil {
		return false, fmt.Errorf("seed roles: %w", err)
	}
	logger.Info("Roles seeded successfully", map[string]interface{}{"count": len(roles)})
	return true, nil
}

// SeedUser describes a user loaded from seed data.
type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
	Role     string `yaml:"role"`
}

// SeedFile is the layout of the YAML seed data file.
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// LoadSeedFile reads seed users from a YAML file. Entries without an email
// are rejected; a missing password is left for the caller to fill in.
func LoadSeedFile(path string) ([]SeedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, u := range file.Users {
		if u.Email == "" {
			return nil, fmt.Errorf("seed file %s: user %d has no email", path, i+1)
		}
	}
	return file.Users, nil
}

// SeedUsers creates users that do not exist yet and returns how many were created.
func SeedUsers(ctx context.Context, conn *gorm.DB, users []SeedUser) (int, error) {
	created := 0
	for _, su := range users {
		var existing models.User
		err := conn.WithContext(ctx).Where("email = ?", su.Email).First(&existing).Error
		if err == nil {
			logger.Warn("User already exists", map[string]interface{}{"email": su.Email})
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, fmt.Errorf("lookup user %s: %w", su.Email, err)
		}

		if su.Password == "" {
			return created, fmt.Errorf("user %s has no password", su.Email)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", su.Email, err)
		}

		user := models.User{
			Email:               su.Email,
			PasswordHash:        string(hashed),
			FullName:            su.FullName,
			RoleID:              roleIDForName(su.Role),
			OnboardingCompleted: true,
		}
		if err := conn.WithContext(ctx).Create(&user).Error; err != nil {
			return created, fmt.Errorf("create user %s: %w", su.Email, err)
		}
		logger.Info("Created user", map[string]interface{}{"email": user.Email, "role": models.RoleNameForID(user.RoleID)})
		created++
	}
	return created, nil
}

func roleIDForName(name string) int {
	switch models.RoleName(name) {
	case models.RoleCommander:
		return models.RoleIDCommander
	case models.RoleResponder:
		return models.RoleIDResponder
	case models.RoleCivilian:
		return models.RoleIDCivilian
	default:
		logger.Warn("Unknown role, defaulting to civilian", map[string]interface{}{"role": name})
		return models.RoleIDCivilian
	}
}
