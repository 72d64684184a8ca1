package faction

import (
	"context"
	"errors"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/storage"
)

// Deposit moves cash from any member into their faction treasury.
func (e *Engine) Deposit(ctx context.Context, actorID uint, amount int64) (int64, error) {
	m, ok := e.Member(actorID)
	if !ok {
		return 0, apperr.Conflict("You are not in a faction.")
	}
	if amount <= 0 {
		return 0, apperr.InvalidInput("The amount must be positive.")
	}

	release, err := e.acquire(ctx, factionKey(m.FactionID), charKey(actorID))
	if err != nil {
		return 0, err
	}
	defer release()

	cash, treasury, err := e.store.DepositTreasury(ctx, m.FactionID, actorID, amount)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, apperr.InsufficientFunds("You do not have $%d in cash.", amount)
		case errors.Is(err, storage.ErrNotFound):
			return 0, apperr.NotFound("That faction does not exist.")
		}
		return 0, e.storeFailure("deposit treasury", m.FactionID, err)
	}

	e.setTreasury(m.FactionID, treasury)
	e.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: actorID, Cash: &cash})
	return treasury, nil
}

// Withdraw pays treasury money to a member holding the treasury capability.
func (e *Engine) Withdraw(ctx context.Context, actorID uint, amount int64) (int64, error) {
	m, ok := e.Member(actorID)
	if !ok {
		return 0, apperr.Conflict("You are not in a faction.")
	}
	if !e.HasFactionPermission(actorID, CapTreasury) {
		return 0, apperr.Denied()
	}
	if amount <= 0 {
		return 0, apperr.InvalidInput("The amount must be positive.")
	}

	release, err := e.acquire(ctx, factionKey(m.FactionID), charKey(actorID))
	if err != nil {
		return 0, err
	}
	defer release()

	cash, treasury, err := e.store.WithdrawTreasury(ctx, m.FactionID, actorID, amount)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, apperr.InsufficientFunds("The treasury does not hold $%d.", amount)
		case errors.Is(err, storage.ErrNotFound):
			return 0, apperr.NotFound("That faction does not exist.")
		}
		return 0, e.storeFailure("withdraw treasury", m.FactionID, err)
	}

	e.setTreasury(m.FactionID, treasury)
	e.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: actorID, Cash: &cash})
	return treasury, nil
}

func (e *Engine) setTreasury(factionID uint, amount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.factions[factionID]; ok {
		f.Treasury = amount
	}
}
