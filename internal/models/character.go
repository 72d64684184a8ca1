package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Character is the durable row behind a logged-in actor. The session cache
// holds a copy; this row stays the source of truth.
type Character struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Account string `gorm:"index;size:64" json:"account"`
	Name    string `gorm:"size:48;not null" json:"name"`
	// NameKey is the lower-cased name used for case-insensitive lookups.
	NameKey string `gorm:"uniqueIndex;size:48;not null" json:"-"`

	Cash int64 `gorm:"not null;default:0" json:"cash"`
	Bank int64 `gorm:"not null;default:0" json:"bank"`

	FactionID   *uint `gorm:"index" json:"faction_id"`
	FactionRank int   `gorm:"not null;default:0" json:"faction_rank"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate derives NameKey from Name.
func (c *Character) BeforeCreate(tx *gorm.DB) error {
	c.NameKey = strings.ToLower(strings.TrimSpace(c.Name))
	return nil
}
