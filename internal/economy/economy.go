// Package economy moves money between characters and their accounts. Every
// balance change goes through a conditional store write and leaves a ledger
// line; the session cache follows through balance events.
package economy

import (
	"context"
	"errors"
	"fmt"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	Debit(ctx context.Context, charID uint, account string, amount int64, kind, ref string) (int64, error)
	Credit(ctx context.Context, charID uint, account string, amount int64, kind, ref string) (int64, error)
	Transfer(ctx context.Context, fromID, toID uint, amount int64, ref string) (fromCash, toCash int64, err error)
	MoveBetweenAccounts(ctx context.Context, charID uint, from, to string, amount int64) (cash, bank int64, err error)
	Balances(ctx context.Context, charID uint) (cash, bank int64, err error)
	ListTransactions(ctx context.Context, charID uint, limit int) ([]models.Transaction, error)
}

type Permissions interface {
	HasPermission(actorID uint, capability string) bool
}

type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
}

// MaxStatementLines caps a statement request.
const MaxStatementLines = 50

type Service struct {
	store  Store
	perms  Permissions
	audit  Auditor
	events events.Emitter
	locks  lock.Locker
	log    *zap.Logger
}

func NewService(store Store, perms Permissions, audit Auditor, emitter events.Emitter, locks lock.Locker, log *zap.Logger) *Service {
	return &Service{store: store, perms: perms, audit: audit, events: emitter, locks: locks, log: log}
}

func (s *Service) storeFailure(op string, charID uint, err error) error {
	s.log.Error(op+" failed", zap.Uint("character_id", charID), zap.Error(err))
	return apperr.Store(op, err)
}

func (s *Service) acquire(ctx context.Context, ids ...uint) (lock.Release, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lock.Key("char", id))
	}
	release, err := lock.AcquireAll(ctx, s.locks, keys...)
	if err != nil {
		return nil, apperr.Store("lock character", err)
	}
	return release, nil
}

func positive(amount int64) error {
	if amount <= 0 {
		return apperr.InvalidInput("The amount must be positive.")
	}
	return nil
}

func validAccount(account string) bool {
	return account == models.AccountCash || account == models.AccountBank
}

func (s *Service) emit(ctx context.Context, charID uint, cash, bank *int64) {
	s.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: charID, Cash: cash, Bank: bank})
}

// Balance returns the durable cash and bank balance.
func (s *Service) Balance(ctx context.Context, charID uint) (cash, bank int64, err error) {
	cash, bank, err = s.store.Balances(ctx, charID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, 0, apperr.NotFound("Character not found.")
		}
		return 0, 0, s.storeFailure("balance", charID, err)
	}
	return cash, bank, nil
}

// Pay hands cash from one character to another.
func (s *Service) Pay(ctx context.Context, fromID, toID uint, amount int64) error {
	if fromID == toID {
		return apperr.InvalidInput("You cannot pay yourself.")
	}
	if err := positive(amount); err != nil {
		return err
	}
	release, err := s.acquire(ctx, fromID, toID)
	if err != nil {
		return err
	}
	defer release()

	fromCash, toCash, err := s.store.Transfer(ctx, fromID, toID, amount, fmt.Sprintf("pay:%d:%d", fromID, toID))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientFunds):
			return apperr.InsufficientFunds("You do not have $%d in cash.", amount)
		case errors.Is(err, storage.ErrNotFound):
			return apperr.NotFound("That player does not exist.")
		}
		return s.storeFailure("pay", fromID, err)
	}

	s.emit(ctx, fromID, &fromCash, nil)
	s.emit(ctx, toID, &toCash, nil)
	s.events.Emit(ctx, events.TopicTransfer, events.Transferred{FromID: fromID, ToID: toID, Amount: amount})
	return nil
}

// Deposit moves cash into the bank.
func (s *Service) Deposit(ctx context.Context, charID uint, amount int64) (cash, bank int64, err error) {
	return s.move(ctx, charID, models.AccountCash, models.AccountBank, amount)
}

// Withdraw moves bank money into cash.
func (s *Service) Withdraw(ctx context.Context, charID uint, amount int64) (cash, bank int64, err error) {
	return s.move(ctx, charID, models.AccountBank, models.AccountCash, amount)
}

func (s *Service) move(ctx context.Context, charID uint, from, to string, amount int64) (cash, bank int64, err error) {
	if err := positive(amount); err != nil {
		return 0, 0, err
	}
	release, err := s.acquire(ctx, charID)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	cash, bank, err = s.store.MoveBetweenAccounts(ctx, charID, from, to, amount)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, 0, apperr.InsufficientFunds("You do not have $%d in your %s.", amount, from)
		case errors.Is(err, storage.ErrNotFound):
			return 0, 0, apperr.NotFound("Character not found.")
		}
		return 0, 0, s.storeFailure("move "+from+" to "+to, charID, err)
	}

	s.emit(ctx, charID, &cash, &bank)
	return cash, bank, nil
}

// Adjust is the staff path to add (positive) or remove (negative) money.
// It needs manage_economy and is audited.
func (s *Service) Adjust(ctx context.Context, adminID, targetID uint, account string, amount int64, reason string) (int64, error) {
	if !s.perms.HasPermission(adminID, permission.ManageEconomy) {
		return 0, apperr.Denied()
	}
	if !validAccount(account) {
		return 0, apperr.InvalidInput("Account must be cash or bank.")
	}
	if amount == 0 {
		return 0, apperr.InvalidInput("The amount cannot be zero.")
	}
	release, err := s.acquire(ctx, targetID)
	if err != nil {
		return 0, err
	}
	defer release()

	ref := fmt.Sprintf("admin:%d", adminID)
	var after int64
	if amount > 0 {
		after, err = s.store.Credit(ctx, targetID, account, amount, models.TxAdminAdjust, ref)
	} else {
		after, err = s.store.Debit(ctx, targetID, account, -amount, models.TxAdminAdjust, ref)
	}
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, apperr.InsufficientFunds("The %s balance does not cover $%d.", account, -amount)
		case errors.Is(err, storage.ErrNotFound):
			return 0, apperr.NotFound("That player does not exist.")
		}
		return 0, s.storeFailure("adjust balance", targetID, err)
	}

	s.audit.Record(ctx, adminID, "adjust_money", targetID, fmt.Sprintf("%s %+d: %s", account, amount, reason))
	if account == models.AccountCash {
		s.emit(ctx, targetID, &after, nil)
	} else {
		s.emit(ctx, targetID, nil, &after)
	}
	return after, nil
}

// Statement returns the newest ledger lines of a character.
func (s *Service) Statement(ctx context.Context, charID uint, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > MaxStatementLines {
		limit = MaxStatementLines
	}
	out, err := s.store.ListTransactions(ctx, charID, limit)
	if err != nil {
		return nil, s.storeFailure("statement", charID, err)
	}
	return out, nil
}
