package storage

import (
	"context"
	"time"

	"rpworld/backend/internal/models"

	"gorm.io/gorm"
)

// CreateBan inserts ban unless the target already has an unexpired active ban.
// Active rows that have expired by now are deactivated first.
func (s *Service) CreateBan(ctx context.Context, ban *models.Ban, now time.Time) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ban{}).
			Where("target_id = ? AND active = ? AND expires_at IS NOT NULL AND expires_at <= ?", ban.TargetID, true, now).
			UpdateColumn("active", false).Error; err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Ban{}).Where("target_id = ? AND active = ?", ban.TargetID, true).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		ban.Active = true
		return tx.Create(ban).Error
	})
}

// RevokeBan deactivates the target's unexpired active ban.
func (s *Service) RevokeBan(ctx context.Context, targetID, revokedBy uint, reason string, now time.Time) (*models.Ban, error) {
	var ban models.Ban
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := first(tx, &ban, "target_id = ? AND active = ? AND (expires_at IS NULL OR expires_at > ?)", targetID, true, now); err != nil {
			return err
		}
		res := tx.Model(&models.Ban{}).Where("id = ? AND active = ?", ban.ID, true).UpdateColumns(map[string]any{
			"active":        false,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
			"revoked_at":    now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		ban.Active = false
		ban.RevokedBy = &revokedBy
		ban.RevokeReason = reason
		ban.RevokedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ban, nil
}

// ListActiveBans returns bans still in force at now.
func (s *Service) ListActiveBans(ctx context.Context, now time.Time) ([]models.Ban, error) {
	var out []models.Ban
	err := s.db(ctx).Where("active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now).Find(&out).Error
	return out, err
}

// ListBans returns the full ban history of a target, newest first.
func (s *Service) ListBans(ctx context.Context, targetID uint) ([]models.Ban, error) {
	var out []models.Ban
	err := s.db(ctx).Where("target_id = ?", targetID).Order("id DESC").Find(&out).Error
	return out, err
}

// CreateMute mirrors CreateBan for mutes.
func (s *Service) CreateMute(ctx context.Context, mute *models.Mute, now time.Time) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Mute{}).
			Where("target_id = ? AND active = ? AND expires_at <= ?", mute.TargetID, true, now).
			UpdateColumn("active", false).Error; err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Mute{}).Where("target_id = ? AND active = ?", mute.TargetID, true).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		mute.Active = true
		return tx.Create(mute).Error
	})
}

// RevokeMute deactivates the target's unexpired active mute.
func (s *Service) RevokeMute(ctx context.Context, targetID, revokedBy uint, reason string, now time.Time) (*models.Mute, error) {
	var mute models.Mute
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := first(tx, &mute, "target_id = ? AND active = ? AND expires_at > ?", targetID, true, now); err != nil {
			return err
		}
		res := tx.Model(&models.Mute{}).Where("id = ? AND active = ?", mute.ID, true).UpdateColumns(map[string]any{
			"active":        false,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
			"revoked_at":    now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		mute.Active = false
		mute.RevokedBy = &revokedBy
		mute.RevokeReason = reason
		mute.RevokedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &mute, nil
}

// ListActiveMutes returns mutes still in force at now.
func (s *Service) ListActiveMutes(ctx context.Context, now time.Time) ([]models.Mute, error) {
	var out []models.Mute
	err := s.db(ctx).Where("active = ? AND expires_at > ?", true, now).Find(&out).Error
	return out, err
}

// ListMutes returns the full mute history of a target, newest first.
func (s *Service) ListMutes(ctx context.Context, targetID uint) ([]models.Mute, error) {
	var out []models.Mute
	err := s.db(ctx).Where("target_id = ?", targetID).Order("id DESC").Find(&out).Error
	return out, err
}

// CreateWarning appends a warning.
func (s *Service) CreateWarning(ctx context.Context, w *models.Warning) error {
	return s.db(ctx).Create(w).Error
}

// ListWarnings returns every warning of a target, newest first.
func (s *Service) ListWarnings(ctx context.Context, targetID uint) ([]models.Warning, error) {
	var out []models.Warning
	err := s.db(ctx).Where("target_id = ?", targetID).Order("id DESC").Find(&out).Error
	return out, err
}
