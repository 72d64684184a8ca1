package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	FactionGang       = "gang"
	FactionMafia      = "mafia"
	FactionGovernment = "government"
	FactionBusiness   = "business"
	FactionOther      = "other"
)

const (
	WarActive = "active"
	WarEnded  = "ended"
)

// Faction is a player organisation. Name and tag are unique case-insensitively.
type Faction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:32;not null" json:"name"`
	NameKey   string    `gorm:"size:32;not null;uniqueIndex" json:"-"`
	Tag       string    `gorm:"size:6;not null" json:"tag"`
	TagKey    string    `gorm:"size:6;not null;uniqueIndex" json:"-"`
	Type      string    `gorm:"size:16;not null" json:"type"`
	LeaderID  uint      `gorm:"not null" json:"leader_id"`
	MemberCap int       `gorm:"not null" json:"member_cap"`
	Treasury  int64     `gorm:"not null;default:0" json:"treasury"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate derives the uniqueness keys.
func (f *Faction) BeforeCreate(tx *gorm.DB) error {
	f.NameKey = strings.ToLower(strings.TrimSpace(f.Name))
	f.TagKey = strings.ToLower(strings.TrimSpace(f.Tag))
	return nil
}

// FactionRank is one of the ten rank slots of a faction.
type FactionRank struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	FactionID   uint                        `gorm:"not null;uniqueIndex:idx_faction_level" json:"faction_id"`
	Level       int                         `gorm:"not null;uniqueIndex:idx_faction_level" json:"level"`
	Name        string                      `gorm:"size:32;not null" json:"name"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
	SalaryBonus int64                       `gorm:"not null;default:0" json:"salary_bonus"`
}

// FactionInvite is an outstanding invitation. Consumed invites are deleted.
type FactionInvite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FactionID uint      `gorm:"not null;index" json:"faction_id"`
	InviteeID uint      `gorm:"not null;index" json:"invitee_id"`
	InviterID uint      `gorm:"not null" json:"inviter_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// FactionWar is a declared war. PairKey is the unordered pair "low:high".
type FactionWar struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	FactionA   uint       `gorm:"not null;index" json:"faction_a"`
	FactionB   uint       `gorm:"not null;index" json:"faction_b"`
	PairKey    string     `gorm:"size:32;not null;index" json:"pair_key"`
	DeclaredBy uint       `gorm:"not null" json:"declared_by"`
	Reason     string     `gorm:"size:255" json:"reason"`
	Status     string     `gorm:"size:8;not null;index" json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
}
