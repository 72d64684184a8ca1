package moderation

import (
	"context"
	"strconv"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"

	"go.uber.org/zap"
)

// History is the moderation record of one character.
type History struct {
	Bans     []models.Ban     `json:"bans"`
	Mutes    []models.Mute    `json:"mutes"`
	Warnings []models.Warning `json:"warnings"`
}

// History reads a target's full record from the store.
func (e *Engine) History(ctx context.Context, adminID, targetID uint) (*History, error) {
	if !e.perms.HasPermission(adminID, permission.ViewLogs) {
		return nil, apperr.Denied()
	}
	var (
		h   History
		err error
	)
	if h.Bans, err = e.store.ListBans(ctx, targetID); err != nil {
		return nil, e.storeFailure("list bans", err, zap.Uint("target_id", targetID))
	}
	if h.Mutes, err = e.store.ListMutes(ctx, targetID); err != nil {
		return nil, e.storeFailure("list mutes", err, zap.Uint("target_id", targetID))
	}
	if h.Warnings, err = e.store.ListWarnings(ctx, targetID); err != nil {
		return nil, e.storeFailure("list warnings", err, zap.Uint("target_id", targetID))
	}
	return &h, nil
}

// RecentActions returns the newest audit entries kept in memory.
func (e *Engine) RecentActions(adminID uint, n int) ([]models.AdminAction, error) {
	if !e.perms.HasPermission(adminID, permission.ViewLogs) {
		return nil, apperr.Denied()
	}
	if n <= 0 || n > config.AuditRingSize {
		n = config.AuditRingSize
	}
	return e.audit.Recent(n), nil
}

func uitoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
