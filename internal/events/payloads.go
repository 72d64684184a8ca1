package events

import (
	"time"

	"rpworld/backend/internal/models"
)

// Kicked asks the runtime to drop a session.
type Kicked struct {
	TargetID uint
	AdminID  uint
	Reason   string
}

// Banned is emitted after a ban is stored.
type Banned struct {
	TargetID  uint
	AdminID   uint
	Reason    string
	ExpiresAt *time.Time
}

// Unbanned is emitted after a ban is revoked.
type Unbanned struct {
	TargetID uint
	AdminID  uint
	Reason   string
}

// Muted is emitted after a mute is stored.
type Muted struct {
	TargetID  uint
	AdminID   uint
	Reason    string
	ExpiresAt time.Time
}

// Unmuted is emitted after a mute is revoked.
type Unmuted struct {
	TargetID uint
	AdminID  uint
}

// Warned is emitted after a warning is stored.
type Warned struct {
	TargetID uint
	AdminID  uint
	Reason   string
}

// ReportChanged carries the report after a transition.
type ReportChanged struct {
	Report models.Report
	ByID   uint
}

// AdminLevelChanged is emitted after a grant is written.
type AdminLevelChanged struct {
	CharacterID uint
	Level       int
	GrantedBy   uint
}

// AssetChanged is emitted for ownership and key transitions.
type AssetChanged struct {
	Class    models.AssetClass
	AssetID  uint
	ActorID  uint
	HolderID uint
	Amount   int64
}

// FactionChanged is emitted for membership and rank transitions.
type FactionChanged struct {
	FactionID uint
	ActorID   uint
	TargetID  uint
	Rank      int
	Name      string
}

// WarChanged is emitted when a war starts or ends.
type WarChanged struct {
	War models.FactionWar
}

// BalanceChanged lets the session cache follow durable balances.
type BalanceChanged struct {
	CharacterID uint
	Cash        *int64
	Bank        *int64
}

// Transferred is emitted after one character pays another.
type Transferred struct {
	FromID uint
	ToID   uint
	Amount int64
}

// EngineToggled is emitted after a vehicle engine changes state.
type EngineToggled struct {
	VehicleID uint
	ActorID   uint
	On        bool
}

// JobChanged is emitted when a character joins or quits a job or toggles duty.
type JobChanged struct {
	CharacterID uint
	JobID       string
	OnDuty      bool
}

// SalaryPaid is emitted for every payroll payout.
type SalaryPaid struct {
	CharacterID uint
	JobID       string
	Amount      int64
	Bank        int64
}
