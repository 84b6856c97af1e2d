package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the PostgreSQL connection pool
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	conn, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("Database connected successfully", nil)
	return conn, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Error
	}
}

// AutoMigrate runs database migrations for every model
func AutoMigrate(conn *gorm.DB) error {
	migrations := []struct {
		name  string
		model interface{}
	}{
		{"Role", &models.Role{}},
		{"User", &models.User{}},
		{"Incident", &models.Incident{}},
		{"Responder", &models.Responder{}},
		{"DisasterLog", &models.DisasterLog{}},
		{"IncidentReport", &models.IncidentReport{}},
		{"GenerationJob", &models.GenerationJob{}},
	}

	for _, m := range migrations {
		if err := conn.AutoMigrate(m.model); err != nil {
			return fmt.Errorf("%s migration failed: %w", m.name, err)
		}
		logger.Debug("Table migrated", map[string]interface{}{"model": m.name})
	}

	logger.Info("All database migrations completed successfully", nil)
	return nil
}

// Ping checks that the database answers
func Ping(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database connection not initialized")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
