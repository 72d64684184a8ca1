package models

import "time"

const (
	AccountCash = "cash"
	AccountBank = "bank"
)

// Transaction is one ledger line. Amount is signed from the character's view.
type Transaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CharacterID  uint      `gorm:"index;not null" json:"character_id"`
	Account      string    `gorm:"size:8;not null" json:"account"`
	Amount       int64     `gorm:"not null" json:"amount"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	Kind         string    `gorm:"size:24;not null;index" json:"kind"`
	Reference    string    `gorm:"size:64" json:"reference"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// Employment links a character to a job. One row per employed character.
type Employment struct {
	CharacterID uint       `gorm:"primaryKey;autoIncrement:false" json:"character_id"`
	JobID       string     `gorm:"size:32;not null;index" json:"job_id"`
	OnDuty      bool       `gorm:"not null;default:false" json:"on_duty"`
	HiredAt     time.Time  `json:"hired_at"`
	LastPaidAt  *time.Time `json:"last_paid_at"`
}

// All lists every row type for migrations.
func All() []any {
	return []any{
		&Character{},
		&AdminGrant{},
		&AdminAction{},
		&Ban{},
		&Mute{},
		&Warning{},
		&Report{},
		&Vehicle{},
		&Property{},
		&AssetKey{},
		&Faction{},
		&FactionRank{},
		&FactionInvite{},
		&FactionWar{},
		&Transaction{},
		&Employment{},
	}
}

// Ledger kinds.
const (
	TxAssetPurchase = "asset_purchase"
	TxAssetSale     = "asset_sale"
	TxRent          = "rent"
	TxRentIncome    = "rent_income"
	TxFuel          = "fuel"
	TxRepair        = "repair"
	TxImpoundFee    = "impound_fee"
	TxTransferIn    = "transfer_in"
	TxTransferOut   = "transfer_out"
	TxDeposit       = "deposit"
	TxWithdraw      = "withdraw"
	TxSalary        = "salary"
	TxTreasuryIn    = "treasury_deposit"
	TxTreasuryOut   = "treasury_withdraw"
	TxAdminAdjust   = "admin_adjust"
)
