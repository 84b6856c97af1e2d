package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/roshni/backend/internal/models"
	"gorm.io/gorm"
)

// ReportRepository stores incident reports.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(conn *gorm.DB) *ReportRepository {
	return &ReportRepository{db: conn}
}

// CreatePublished inserts report and runs publish inside the same
// transaction. If publish fails the insert is rolled back; the row becomes
// visible only after both have succeeded and the commit went through.
func (r *ReportRepository) CreatePublished(ctx context.Context, report *models.IncidentReport, publish func() error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		if publish != nil {
			if err := publish(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByIncident returns the incident's reports, newest first.
func (r *ReportRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.IncidentReport, error) {
	var reports []models.IncidentReport
	err := r.db.WithContext(ctx).
		Where("incident_id = ?", incidentID).
		Order("created_at DESC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports for incident %s: %w", incidentID, err)
	}
	return reports, nil
}

// Get loads a report by id. It returns gorm.ErrRecordNotFound when missing.
func (r *ReportRepository) Get(ctx context.Context, id uuid.UUID) (*models.IncidentReport, error) {
	var report models.IncidentReport
	if err := r.db.WithContext(ctx).First(&report, "report_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateDraft replaces the report text.
func (r *ReportRepository) UpdateDraft(ctx context.Context, id uuid.UUID, text string) (*models.IncidentReport, error) {
	report, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report.DraftText = text
	if err := r.db.WithContext(ctx).Save(report).Error; err != nil {
		return nil, fmt.Errorf("update report %s: %w", id, err)
	}
	return report, nil
}
