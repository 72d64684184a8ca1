package storage

import (
	"context"
	"time"

	"rpworld/backend/internal/models"

	"gorm.io/gorm"
)

// CreateReport inserts r unless its reporter already has a report that is not closed.
func (s *Service) CreateReport(ctx context.Context, r *models.Report) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Report{}).
			Where("reporter_id = ? AND status <> ?", r.ReporterID, models.ReportClosed).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		return tx.Create(r).Error
	})
}

// AcceptReport assigns an open, unassigned report to adminID.
func (s *Service) AcceptReport(ctx context.Context, reportID, adminID uint) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Report{}).
			Where("id = ? AND status = ? AND assigned_admin IS NULL", reportID, models.ReportOpen).
			UpdateColumns(map[string]any{
				"status":         models.ReportInProgress,
				"assigned_admin": adminID,
				"updated_at":     time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Report{}, reportID)
		}
		return nil
	})
}

// CloseReport closes a report that is not already closed. An unassigned
// report gets closedBy as its assignee.
func (s *Service) CloseReport(ctx context.Context, reportID, closedBy uint, resolution string, now time.Time) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Report{}).
			Where("id = ? AND status <> ?", reportID, models.ReportClosed).
			UpdateColumns(map[string]any{
				"status":         models.ReportClosed,
				"resolution":     resolution,
				"closed_at":      now,
				"updated_at":     now,
				"assigned_admin": gorm.Expr("COALESCE(assigned_admin, ?)", closedBy),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Report{}, reportID)
		}
		return nil
	})
}

// GetReport returns one report or ErrNotFound.
func (s *Service) GetReport(ctx context.Context, id uint) (*models.Report, error) {
	var r models.Report
	if err := first(s.db(ctx), &r, "id = ?", id); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListOpenReports returns every report that is not closed, oldest first.
func (s *Service) ListOpenReports(ctx context.Context) ([]models.Report, error) {
	var out []models.Report
	err := s.db(ctx).Where("status <> ?", models.ReportClosed).Order("id").Find(&out).Error
	return out, err
}
