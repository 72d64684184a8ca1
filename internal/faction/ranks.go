package faction

import (
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/models"
)

// Rank capabilities. They are scoped to one faction and never mix with
// admin capabilities.
const (
	CapAll      = "*"
	CapInvite   = "invite"
	CapKick     = "kick"
	CapPromote  = "promote"
	CapWar      = "war"
	CapTreasury = "treasury"
)

// JoinRank is the rank of a member who accepted an invite.
const JoinRank = 1

var rankNames = map[string][config.FactionRankCount]string{
	models.FactionGang: {
		"Youngster", "Runner", "Hustler", "Soldier", "Enforcer",
		"Gunner", "Lieutenant", "Veteran", "Right Hand", "Boss",
	},
	models.FactionMafia: {
		"Associate", "Picciotto", "Soldato", "Sgarrista", "Caporegime",
		"Contabile", "Consigliere", "Sottocapo", "Capo Bastone", "Don",
	},
	models.FactionGovernment: {
		"Intern", "Clerk", "Officer", "Senior Officer", "Sergeant",
		"Lieutenant", "Captain", "Commander", "Deputy Chief", "Chief",
	},
	models.FactionBusiness: {
		"Trainee", "Employee", "Senior Employee", "Specialist", "Supervisor",
		"Assistant Manager", "Manager", "Director", "Vice President", "Owner",
	},
	models.FactionOther: {
		"Rank 1", "Rank 2", "Rank 3", "Rank 4", "Rank 5",
		"Rank 6", "Rank 7", "Rank 8", "Rank 9", "Leader",
	},
}

// ValidType reports whether t names a faction type with a rank template.
func ValidType(t string) bool {
	_, ok := rankNames[t]
	return ok
}

// rankCaps is the default capability set of a rank level.
func rankCaps(level int) []string {
	switch {
	case level >= config.LeaderRank:
		return []string{CapAll}
	case level == 9:
		return []string{CapInvite, CapKick, CapPromote, CapWar, CapTreasury}
	case level >= 7:
		return []string{CapInvite, CapKick}
	case level >= 5:
		return []string{CapInvite}
	default:
		return []string{}
	}
}

// salaryBonus is paid on top of a job salary for every payroll tick on duty.
func salaryBonus(level int) int64 {
	return int64(level-1) * 25
}

// defaultRanks builds the ten-rank table of a new faction of type t.
func defaultRanks(t string) []models.FactionRank {
	names := rankNames[t]
	ranks := make([]models.FactionRank, 0, config.FactionRankCount)
	for i, name := range names {
		level := i + 1
		ranks = append(ranks, models.FactionRank{
			Level:       level,
			Name:        name,
			Permissions: rankCaps(level),
			SalaryBonus: salaryBonus(level),
		})
	}
	return ranks
}
