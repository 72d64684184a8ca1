package models

import (
	"time"

	"gorm.io/datatypes"
)

// AdminGrant is the single active admin grant of a character. Level is what
// players see; Permissions is what is enforced.
type AdminGrant struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	CharacterID uint                        `gorm:"uniqueIndex;not null" json:"character_id"`
	Level       int                         `gorm:"not null" json:"level"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
	GrantedBy   uint                        `json:"granted_by"`
	Active      bool                        `gorm:"not null;index" json:"active"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// AdminAction is one append-only audit log entry.
type AdminAction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AdminID   uint      `gorm:"index;not null" json:"admin_id"`
	Action    string    `gorm:"size:48;not null;index" json:"action"`
	TargetID  *uint     `gorm:"index" json:"target_id"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
