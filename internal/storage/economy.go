package storage

import (
	"context"
	"fmt"

	"rpworld/backend/internal/models"

	"gorm.io/gorm"
)

func accountColumn(account string) (string, error) {
	switch account {
	case models.AccountCash, models.AccountBank:
		return account, nil
	default:
		return "", fmt.Errorf("unknown account %q", account)
	}
}

func balance(tx *gorm.DB, charID uint, col string) (int64, error) {
	var out int64
	err := tx.Model(&models.Character{}).Where("id = ?", charID).Select(col).Scan(&out).Error
	return out, err
}

func ledger(tx *gorm.DB, charID uint, account string, amount, after int64, kind, ref string) error {
	return tx.Create(&models.Transaction{
		CharacterID:  charID,
		Account:      account,
		Amount:       amount,
		BalanceAfter: after,
		Kind:         kind,
		Reference:    ref,
	}).Error
}

// debit subtracts amount from the account only if the balance covers it.
func debit(tx *gorm.DB, charID uint, account string, amount int64, kind, ref string) (int64, error) {
	col, err := accountColumn(account)
	if err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("negative debit %d", amount)
	}
	res := tx.Model(&models.Character{}).
		Where("id = ? AND "+col+" >= ?", charID, amount).
		UpdateColumn(col, gorm.Expr(col+" - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		ok, err := exists(tx, &models.Character{}, charID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficientFunds
	}
	after, err := balance(tx, charID, col)
	if err != nil {
		return 0, err
	}
	return after, ledger(tx, charID, account, -amount, after, kind, ref)
}

// credit adds amount to the account.
func credit(tx *gorm.DB, charID uint, account string, amount int64, kind, ref string) (int64, error) {
	col, err := accountColumn(account)
	if err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("negative credit %d", amount)
	}
	res := tx.Model(&models.Character{}).
		Where("id = ?", charID).
		UpdateColumn(col, gorm.Expr(col+" + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	after, err := balance(tx, charID, col)
	if err != nil {
		return 0, err
	}
	return after, ledger(tx, charID, account, amount, after, kind, ref)
}

// Debit removes money from one account. Returns the new balance.
func (s *Service) Debit(ctx context.Context, charID uint, account string, amount int64, kind, ref string) (int64, error) {
	var after int64
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		after, err = debit(tx, charID, account, amount, kind, ref)
		return err
	})
	return after, err
}

// Credit adds money to one account. Returns the new balance.
func (s *Service) Credit(ctx context.Context, charID uint, account string, amount int64, kind, ref string) (int64, error) {
	var after int64
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		after, err = credit(tx, charID, account, amount, kind, ref)
		return err
	})
	return after, err
}

// Transfer moves cash between two characters atomically.
func (s *Service) Transfer(ctx context.Context, fromID, toID uint, amount int64, ref string) (fromCash, toCash int64, err error) {
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if fromCash, err = debit(tx, fromID, models.AccountCash, amount, models.TxTransferOut, ref); err != nil {
			return err
		}
		toCash, err = credit(tx, toID, models.AccountCash, amount, models.TxTransferIn, ref)
		return err
	})
	return fromCash, toCash, err
}

// MoveBetweenAccounts moves money between one character's cash and bank.
func (s *Service) MoveBetweenAccounts(ctx context.Context, charID uint, from, to string, amount int64) (cash, bank int64, err error) {
	kind := models.TxDeposit
	if from == models.AccountBank {
		kind = models.TxWithdraw
	}
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		if _, err := debit(tx, charID, from, amount, kind, ""); err != nil {
			return err
		}
		if _, err := credit(tx, charID, to, amount, kind, ""); err != nil {
			return err
		}
		var err error
		if cash, err = balance(tx, charID, models.AccountCash); err != nil {
			return err
		}
		bank, err = balance(tx, charID, models.AccountBank)
		return err
	})
	return cash, bank, err
}

// Balances returns the cash and bank balance of a character.
func (s *Service) Balances(ctx context.Context, charID uint) (cash, bank int64, err error) {
	c, err := s.GetCharacter(ctx, charID)
	if err != nil {
		return 0, 0, err
	}
	return c.Cash, c.Bank, nil
}

// ListTransactions returns the newest ledger lines of a character.
func (s *Service) ListTransactions(ctx context.Context, charID uint, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := s.db(ctx).Where("character_id = ?", charID).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
