package config

import "time"

const (
	// Characters
	StartingCash = 5000
	StartingBank = 0

	// Admin
	MaxAdminLevel = 10
	AuditRingSize = 100

	// Moderation
	MaxBanDuration     = 365 * 24 * time.Hour
	MaxMuteMinutes     = 7 * 24 * 60
	MaxReasonLength    = 255
	MaxReportDescLen   = 1000
	DefaultReportLimit = 50

	// Ownership
	PropertySellPercent = 80
	VehicleSellPercent  = 50
	RentPeriod          = 30 * 24 * time.Hour

	// Vehicles
	MaxFuel            = 100
	FuelUnitPrice      = 3
	MaxVehicleHealth   = 1000
	RepairCostPerPoint = 2
	UnimpoundFee       = 500

	// Factions
	FactionRankCount   = 10
	LeaderRank         = 10
	DefaultMemberCap   = 50
	InviteTTL          = 24 * time.Hour
	MinFactionNameLen  = 3
	MaxFactionNameLen  = 32
	MinFactionTagLen   = 2
	MaxFactionTagLen   = 6
	MaxWarReasonLength = 255

	// Jobs
	DefaultPayrollInterval = time.Hour

	// Distributed locks expire after this long if the holder dies.
	LockTTL = 15 * time.Second
)

// ReportReasons are the categories a player may pick when filing a report.
var ReportReasons = []string{
	"deathmatch",
	"metagaming",
	"powergaming",
	"cheating",
	"harassment",
	"exploit",
	"other",
}
