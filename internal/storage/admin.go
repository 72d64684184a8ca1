package storage

import (
	"context"

	"rpworld/backend/internal/models"

	"gorm.io/gorm/clause"
)

// ListActiveGrants returns every active admin grant.
func (s *Service) ListActiveGrants(ctx context.Context) ([]models.AdminGrant, error) {
	var grants []models.AdminGrant
	err := s.db(ctx).Where("active = ?", true).Find(&grants).Error
	return grants, err
}

// UpsertGrant writes the single grant row of a character. A level of zero
// leaves the row in place but inactive.
func (s *Service) UpsertGrant(ctx context.Context, g *models.AdminGrant) error {
	g.Active = g.Level > 0
	return s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "character_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "permissions", "granted_by", "active", "updated_at"}),
	}).Create(g).Error
}

// CreateAdminAction appends one audit entry.
func (s *Service) CreateAdminAction(ctx context.Context, a *models.AdminAction) error {
	return s.db(ctx).Create(a).Error
}

// ListAdminActions returns the newest audit entries, optionally for one target.
func (s *Service) ListAdminActions(ctx context.Context, targetID *uint, limit int) ([]models.AdminAction, error) {
	q := s.db(ctx).Order("id DESC").Limit(limit)
	if targetID != nil {
		q = q.Where("target_id = ?", *targetID)
	}
	var out []models.AdminAction
	err := q.Find(&out).Error
	return out, err
}
