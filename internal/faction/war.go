package faction

import (
	"context"
	"errors"
	"strings"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

func warKey(a, b uint) string { return "war:" + storage.WarPairKey(a, b) }

// DeclareWar starts a war between the actor's faction and targetID. Only one
// active war may exist per unordered pair.
func (e *Engine) DeclareWar(ctx context.Context, actorID, targetID uint, reason string) (*models.FactionWar, error) {
	m, ok := e.Member(actorID)
	if !ok {
		return nil, apperr.Conflict("You are not in a faction.")
	}
	if !e.HasFactionPermission(actorID, CapWar) {
		return nil, apperr.Denied()
	}
	reason = strings.TrimSpace(reason)
	switch {
	case targetID == m.FactionID:
		return nil, apperr.InvalidInput("You cannot declare war on your own faction.")
	case len(reason) > config.MaxWarReasonLength:
		return nil, apperr.InvalidInput("The reason is too long.")
	}
	if _, ok := e.Faction(targetID); !ok {
		return nil, apperr.NotFound("That faction does not exist.")
	}

	release, err := e.acquire(ctx, warKey(m.FactionID, targetID))
	if err != nil {
		return nil, err
	}
	defer release()

	if e.AtWar(m.FactionID, targetID) {
		return nil, apperr.Conflict("Those factions are already at war.")
	}
	w := &models.FactionWar{FactionA: m.FactionID, FactionB: targetID, DeclaredBy: actorID, Reason: reason, StartedAt: e.now()}
	if err := e.store.CreateWar(ctx, w); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, apperr.Conflict("Those factions are already at war.")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFound("That faction does not exist.")
		}
		return nil, e.storeFailure("declare war", m.FactionID, err)
	}

	e.mu.Lock()
	e.wars[w.PairKey] = *w
	e.mu.Unlock()

	e.log.Info("war declared", zap.Uint("faction_a", w.FactionA), zap.Uint("faction_b", w.FactionB), zap.Uint("declared_by", actorID))
	e.events.Emit(ctx, events.TopicWarDeclared, events.WarChanged{War: *w})
	out := *w
	return &out, nil
}

// EndWar ends the active war between the actor's faction and otherID.
func (e *Engine) EndWar(ctx context.Context, actorID, otherID uint) error {
	m, ok := e.Member(actorID)
	if !ok {
		return apperr.Conflict("You are not in a faction.")
	}
	if !e.HasFactionPermission(actorID, CapWar) {
		return apperr.Denied()
	}

	release, err := e.acquire(ctx, warKey(m.FactionID, otherID))
	if err != nil {
		return err
	}
	defer release()

	if !e.AtWar(m.FactionID, otherID) {
		return apperr.NotFound("There is no war with that faction.")
	}
	w, err := e.store.EndWar(ctx, m.FactionID, otherID, e.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
			return apperr.NotFound("There is no war with that faction.")
		}
		return e.storeFailure("end war", m.FactionID, err)
	}

	e.mu.Lock()
	delete(e.wars, w.PairKey)
	e.mu.Unlock()

	e.events.Emit(ctx, events.TopicWarEnded, events.WarChanged{War: *w})
	return nil
}
