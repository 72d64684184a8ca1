package models

import "time"

// Ban blocks a character from logging in until ExpiresAt, or forever when
// ExpiresAt is nil. At most one Active ban exists per target.
type Ban struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TargetID     uint       `gorm:"index:idx_ban_target_active;not null" json:"target_id"`
	IssuedBy     uint       `gorm:"not null" json:"issued_by"`
	Reason       string     `gorm:"size:255" json:"reason"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Active       bool       `gorm:"index:idx_ban_target_active;not null" json:"active"`
	RevokedBy    *uint      `json:"revoked_by,omitempty"`
	RevokeReason string     `gorm:"size:255" json:"revoke_reason,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ActiveAt reports whether the ban still applies at now.
func (b *Ban) ActiveAt(now time.Time) bool {
	return b.Active && (b.ExpiresAt == nil || b.ExpiresAt.After(now))
}

// Mute silences a character's chat. Unlike bans, mutes always expire.
type Mute struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TargetID     uint       `gorm:"index:idx_mute_target_active;not null" json:"target_id"`
	IssuedBy     uint       `gorm:"not null" json:"issued_by"`
	Reason       string     `gorm:"size:255" json:"reason"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	Active       bool       `gorm:"index:idx_mute_target_active;not null" json:"active"`
	RevokedBy    *uint      `json:"revoked_by,omitempty"`
	RevokeReason string     `gorm:"size:255" json:"revoke_reason,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ActiveAt reports whether the mute still applies at now.
func (m *Mute) ActiveAt(now time.Time) bool {
	return m.Active && m.ExpiresAt.After(now)
}

// Warning is append-only.
type Warning struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TargetID  uint      `gorm:"index;not null" json:"target_id"`
	IssuedBy  uint      `gorm:"not null" json:"issued_by"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
