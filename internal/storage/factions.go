package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rpworld/backend/internal/models"

	"gorm.io/gorm"
)

// CreateFaction inserts the faction with its rank table and makes its leader
// a member at leaderRank. Name and tag collide case-insensitively.
func (s *Service) CreateFaction(ctx context.Context, f *models.Faction, ranks []models.FactionRank, leaderRank int) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Faction{}).
			Where("name_key = ? OR tag_key = ?", strings.ToLower(strings.TrimSpace(f.Name)), strings.ToLower(strings.TrimSpace(f.Tag))).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		if err := tx.Create(f).Error; err != nil {
			return err
		}
		if len(ranks) > 0 {
			for i := range ranks {
				ranks[i].FactionID = f.ID
			}
			if err := tx.Create(&ranks).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&models.Character{}).
			Where("id = ? AND faction_id IS NULL", f.LeaderID).
			UpdateColumns(map[string]any{"faction_id": f.ID, "faction_rank": leaderRank})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Character{}, f.LeaderID)
		}
		return nil
	})
}

// ListFactions returns every faction.
func (s *Service) ListFactions(ctx context.Context) ([]models.Faction, error) {
	var out []models.Faction
	err := s.db(ctx).Order("id").Find(&out).Error
	return out, err
}

// ListFactionRanks returns the rank tables of every faction.
func (s *Service) ListFactionRanks(ctx context.Context) ([]models.FactionRank, error) {
	var out []models.FactionRank
	err := s.db(ctx).Order("faction_id, level").Find(&out).Error
	return out, err
}

// CountMembers returns the member count of a faction.
func (s *Service) CountMembers(ctx context.Context, factionID uint) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.Character{}).Where("faction_id = ?", factionID).Count(&n).Error
	return n, err
}

// CreateInvite stores an invite unless one from the same faction is still pending.
func (s *Service) CreateInvite(ctx context.Context, inv *models.FactionInvite, now time.Time) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.FactionInvite{}).
			Where("faction_id = ? AND invitee_id = ? AND expires_at > ?", inv.FactionID, inv.InviteeID, now).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		return tx.Create(inv).Error
	})
}

// ListInvites returns the unexpired invites of inviteeID, newest first.
func (s *Service) ListInvites(ctx context.Context, inviteeID uint, now time.Time) ([]models.FactionInvite, error) {
	var out []models.FactionInvite
	err := s.db(ctx).Where("invitee_id = ? AND expires_at > ?", inviteeID, now).
		Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

// AcceptInvite consumes an unexpired invite of inviteeID and joins the
// faction at rank joinRank. A zero factionID picks the newest invite. Every
// other invite of the invitee is dropped on success.
func (s *Service) AcceptInvite(ctx context.Context, inviteeID, factionID uint, joinRank int, now time.Time) (*models.FactionInvite, error) {
	var inv models.FactionInvite
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		q := tx.Where("invitee_id = ? AND expires_at > ?", inviteeID, now)
		if factionID != 0 {
			q = q.Where("faction_id = ?", factionID)
		}
		if err := q.Order("created_at DESC, id DESC").Limit(1).Find(&inv).Error; err != nil {
			return err
		}
		if inv.ID == 0 {
			return ErrNotFound
		}

		var f models.Faction
		if err := first(tx, &f, "id = ?", inv.FactionID); err != nil {
			return err
		}
		var members int64
		if err := tx.Model(&models.Character{}).Where("faction_id = ?", f.ID).Count(&members).Error; err != nil {
			return err
		}
		if members >= int64(f.MemberCap) {
			return ErrFull
		}

		res := tx.Model(&models.Character{}).
			Where("id = ? AND faction_id IS NULL", inviteeID).
			UpdateColumns(map[string]any{"faction_id": f.ID, "faction_rank": joinRank})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Character{}, inviteeID)
		}
		return tx.Where("invitee_id = ?", inviteeID).Delete(&models.FactionInvite{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// RemoveMember clears the faction of a character that is still in factionID
// at rank.
func (s *Service) RemoveMember(ctx context.Context, factionID, charID uint, rank int) error {
	res := s.db(ctx).Model(&models.Character{}).
		Where("id = ? AND faction_id = ? AND faction_rank = ?", charID, factionID, rank).
		UpdateColumns(map[string]any{"faction_id": nil, "faction_rank": 0})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// SetMemberRank moves a member from one rank to another. The write only
// lands if the member still holds fromRank.
func (s *Service) SetMemberRank(ctx context.Context, factionID, charID uint, fromRank, toRank int) error {
	res := s.db(ctx).Model(&models.Character{}).
		Where("id = ? AND faction_id = ? AND faction_rank = ?", charID, factionID, fromRank).
		UpdateColumn("faction_rank", toRank)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// WarPairKey orders two faction ids so either orientation maps to one key.
func WarPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateWar stores a war unless the unordered pair already has an active one.
func (s *Service) CreateWar(ctx context.Context, w *models.FactionWar) error {
	w.PairKey = WarPairKey(w.FactionA, w.FactionB)
	w.Status = models.WarActive
	return s.transaction(ctx, func(tx *gorm.DB) error {
		for _, id := range []uint{w.FactionA, w.FactionB} {
			ok, err := exists(tx, &models.Faction{}, id)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotFound
			}
		}
		var n int64
		if err := tx.Model(&models.FactionWar{}).
			Where("pair_key = ? AND status = ?", w.PairKey, models.WarActive).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		return tx.Create(w).Error
	})
}

// EndWar ends the active war between two factions.
func (s *Service) EndWar(ctx context.Context, a, b uint, now time.Time) (*models.FactionWar, error) {
	var w models.FactionWar
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := first(tx, &w, "pair_key = ? AND status = ?", WarPairKey(a, b), models.WarActive); err != nil {
			return err
		}
		res := tx.Model(&models.FactionWar{}).
			Where("id = ? AND status = ?", w.ID, models.WarActive).
			UpdateColumns(map[string]any{"status": models.WarEnded, "ended_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		w.Status = models.WarEnded
		w.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListActiveWars returns every active war.
func (s *Service) ListActiveWars(ctx context.Context) ([]models.FactionWar, error) {
	var out []models.FactionWar
	err := s.db(ctx).Where("status = ?", models.WarActive).Order("id").Find(&out).Error
	return out, err
}

// DisbandFaction removes a faction, releases its members, ends its wars and
// pays its treasury into the leader's bank account.
func (s *Service) DisbandFaction(ctx context.Context, factionID uint, now time.Time) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		var f models.Faction
		if err := first(tx, &f, "id = ?", factionID); err != nil {
			return err
		}
		if err := tx.Model(&models.Character{}).Where("faction_id = ?", factionID).
			UpdateColumns(map[string]any{"faction_id": nil, "faction_rank": 0}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.FactionWar{}).
			Where("status = ? AND (faction_a = ? OR faction_b = ?)", models.WarActive, factionID, factionID).
			UpdateColumns(map[string]any{"status": models.WarEnded, "ended_at": now}).Error; err != nil {
			return err
		}
		if err := tx.Where("faction_id = ?", factionID).Delete(&models.FactionInvite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("faction_id = ?", factionID).Delete(&models.FactionRank{}).Error; err != nil {
			return err
		}
		if f.Treasury > 0 {
			if _, err := credit(tx, f.LeaderID, models.AccountBank, f.Treasury, models.TxTreasuryOut, fmt.Sprintf("faction:%d", factionID)); err != nil {
				return err
			}
		}
		return tx.Delete(&models.Faction{}, factionID).Error
	})
}

// DepositTreasury moves cash from a member into the faction treasury.
func (s *Service) DepositTreasury(ctx context.Context, factionID, charID uint, amount int64) (cash, treasury int64, err error) {
	ref := fmt.Sprintf("faction:%d", factionID)
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		if cash, err = debit(tx, charID, models.AccountCash, amount, models.TxTreasuryIn, ref); err != nil {
			return err
		}
		res := tx.Model(&models.Faction{}).Where("id = ?", factionID).
			UpdateColumn("treasury", gorm.Expr("treasury + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.Faction{}).Where("id = ?", factionID).Select("treasury").Scan(&treasury).Error
	})
	return cash, treasury, err
}

// WithdrawTreasury moves treasury money into a member's cash if the treasury covers it.
func (s *Service) WithdrawTreasury(ctx context.Context, factionID, charID uint, amount int64) (cash, treasury int64, err error) {
	ref := fmt.Sprintf("faction:%d", factionID)
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Faction{}).Where("id = ? AND treasury >= ?", factionID, amount).
			UpdateColumn("treasury", gorm.Expr("treasury - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			ok, err := exists(tx, &models.Faction{}, factionID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotFound
			}
			return ErrInsufficientFunds
		}
		if cash, err = credit(tx, charID, models.AccountCash, amount, models.TxTreasuryOut, ref); err != nil {
			return err
		}
		return tx.Model(&models.Faction{}).Where("id = ?", factionID).Select("treasury").Scan(&treasury).Error
	})
	return cash, treasury, err
}
