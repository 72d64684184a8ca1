package storage

import (
	"context"
	"errors"
	"time"

	"rpworld/backend/internal/models"

	"gorm.io/gorm"
)

// GetEmployment returns the employment of a character or ErrNotFound.
func (s *Service) GetEmployment(ctx context.Context, charID uint) (*models.Employment, error) {
	var e models.Employment
	if err := first(s.db(ctx), &e, "character_id = ?", charID); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployments returns every employment, optionally only on-duty ones.
func (s *Service) ListEmployments(ctx context.Context, onDutyOnly bool) ([]models.Employment, error) {
	q := s.db(ctx).Order("character_id")
	if onDutyOnly {
		q = q.Where("on_duty = ?", true)
	}
	var out []models.Employment
	err := q.Find(&out).Error
	return out, err
}

// CreateEmployment hires a character that has no job yet.
func (s *Service) CreateEmployment(ctx context.Context, e *models.Employment) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var existing models.Employment
		err := first(tx, &existing, "character_id = ?", e.CharacterID)
		if err == nil {
			return ErrConflict
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.Create(e).Error
	})
}

// DeleteEmployment ends the employment of a character.
func (s *Service) DeleteEmployment(ctx context.Context, charID uint) error {
	res := s.db(ctx).Where("character_id = ?", charID).Delete(&models.Employment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDuty flips the duty flag. Setting the current value is a conflict.
func (s *Service) SetDuty(ctx context.Context, charID uint, onDuty bool) error {
	res := s.db(ctx).Model(&models.Employment{}).
		Where("character_id = ? AND on_duty = ?", charID, !onDuty).
		UpdateColumn("on_duty", onDuty)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetEmployment(ctx, charID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// PaySalary credits one salary into the bank of an on-duty employee unless
// it was already paid after cutoff. Returns the new bank balance.
func (s *Service) PaySalary(ctx context.Context, charID uint, amount int64, now, cutoff time.Time) (int64, error) {
	var bank int64
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Employment{}).
			Where("character_id = ? AND on_duty = ?", charID, true).
			Where("last_paid_at IS NULL OR last_paid_at <= ?", cutoff).
			UpdateColumn("last_paid_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		var err error
		bank, err = credit(tx, charID, models.AccountBank, amount, models.TxSalary, "")
		return err
	})
	return bank, err
}
