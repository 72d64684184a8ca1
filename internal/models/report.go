package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ReportOpen       = "open"
	ReportInProgress = "in_progress"
	ReportClosed     = "closed"
)

// Report is a player complaint against another player.
// open -> in_progress (accept) -> closed (close); closed is terminal.
type Report struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ReporterID    uint       `gorm:"index;not null" json:"reporter_id"`
	ReportedID    uint       `gorm:"index;not null" json:"reported_id"`
	Reason        string     `gorm:"size:32;not null" json:"reason"`
	Description   string     `gorm:"type:text" json:"description"`
	Status        string     `gorm:"size:16;not null;index" json:"status"`
	AssignedAdmin *uint      `gorm:"index" json:"assigned_admin"`
	Resolution    *string    `gorm:"type:text" json:"resolution"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at"`
}

// BeforeCreate defaults new reports to open.
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = ReportOpen
	}
	return nil
}

// IsOpen reports whether the report still counts against its reporter.
func (r *Report) IsOpen() bool {
	return r.Status != ReportClosed
}
