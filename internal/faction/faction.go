// Package faction runs player organisations: ranks, membership, wars and
// the shared treasury. Faction capabilities come from the member's rank in
// their own faction, not from the admin registry.
package faction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	CreateFaction(ctx context.Context, f *models.Faction, ranks []models.FactionRank, leaderRank int) error
	ListFactions(ctx context.Context) ([]models.Faction, error)
	ListFactionRanks(ctx context.Context) ([]models.FactionRank, error)
	ListFactionMembers(ctx context.Context) ([]models.Character, error)
	CharacterExists(ctx context.Context, id uint) (bool, error)
	CreateInvite(ctx context.Context, inv *models.FactionInvite, now time.Time) error
	ListInvites(ctx context.Context, inviteeID uint, now time.Time) ([]models.FactionInvite, error)
	AcceptInvite(ctx context.Context, inviteeID, factionID uint, joinRank int, now time.Time) (*models.FactionInvite, error)
	RemoveMember(ctx context.Context, factionID, charID uint, rank int) error
	SetMemberRank(ctx context.Context, factionID, charID uint, fromRank, toRank int) error
	CreateWar(ctx context.Context, w *models.FactionWar) error
	EndWar(ctx context.Context, a, b uint, now time.Time) (*models.FactionWar, error)
	ListActiveWars(ctx context.Context) ([]models.FactionWar, error)
	DisbandFaction(ctx context.Context, factionID uint, now time.Time) error
	DepositTreasury(ctx context.Context, factionID, charID uint, amount int64) (cash, treasury int64, err error)
	WithdrawTreasury(ctx context.Context, factionID, charID uint, amount int64) (cash, treasury int64, err error)
	Balances(ctx context.Context, charID uint) (cash, bank int64, err error)
}

// Permissions answers admin capability questions for staff overrides.
type Permissions interface {
	HasPermission(actorID uint, capability string) bool
}

type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
}

// Member is the faction membership of one character.
type Member struct {
	CharacterID uint
	FactionID   uint
	Rank        int
}

type Engine struct {
	store  Store
	admins Permissions
	audit  Auditor
	events events.Emitter
	locks  lock.Locker
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	factions map[uint]*models.Faction
	ranks    map[uint]map[int]models.FactionRank
	members  map[uint]Member
	wars     map[string]models.FactionWar
}

func NewEngine(store Store, admins Permissions, audit Auditor, emitter events.Emitter, locks lock.Locker, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		admins:   admins,
		audit:    audit,
		events:   emitter,
		locks:    locks,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		factions: make(map[uint]*models.Faction),
		ranks:    make(map[uint]map[int]models.FactionRank),
		members:  make(map[uint]Member),
		wars:     make(map[string]models.FactionWar),
	}
}

// SetClock replaces the clock used for invite expiry and war timestamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Load rebuilds the faction index from the store.
func (e *Engine) Load(ctx context.Context) error {
	factions, err := e.store.ListFactions(ctx)
	if err != nil {
		return fmt.Errorf("load factions: %w", err)
	}
	ranks, err := e.store.ListFactionRanks(ctx)
	if err != nil {
		return fmt.Errorf("load faction ranks: %w", err)
	}
	members, err := e.store.ListFactionMembers(ctx)
	if err != nil {
		return fmt.Errorf("load faction members: %w", err)
	}
	wars, err := e.store.ListActiveWars(ctx)
	if err != nil {
		return fmt.Errorf("load wars: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.factions = make(map[uint]*models.Faction, len(factions))
	e.ranks = make(map[uint]map[int]models.FactionRank, len(factions))
	e.members = make(map[uint]Member, len(members))
	e.wars = make(map[string]models.FactionWar, len(wars))
	for i := range factions {
		e.factions[factions[i].ID] = &factions[i]
		e.ranks[factions[i].ID] = make(map[int]models.FactionRank)
	}
	for _, r := range ranks {
		if table, ok := e.ranks[r.FactionID]; ok {
			table[r.Level] = r
		}
	}
	for _, c := range members {
		if c.FactionID != nil {
			e.members[c.ID] = Member{CharacterID: c.ID, FactionID: *c.FactionID, Rank: c.FactionRank}
		}
	}
	for _, w := range wars {
		e.wars[w.PairKey] = w
	}
	e.log.Info("factions loaded", zap.Int("factions", len(factions)), zap.Int("members", len(members)), zap.Int("wars", len(wars)))
	return nil
}

func (e *Engine) storeFailure(op string, factionID uint, err error) error {
	e.log.Error(op+" failed", zap.Uint("faction_id", factionID), zap.Error(err))
	return apperr.Store(op, err)
}

func (e *Engine) acquire(ctx context.Context, keys ...string) (lock.Release, error) {
	release, err := lock.AcquireAll(ctx, e.locks, keys...)
	if err != nil {
		return nil, apperr.Store("lock faction", err)
	}
	return release, nil
}

func factionKey(id uint) string { return lock.Key("faction", id) }
func charKey(id uint) string    { return lock.Key("char", id) }

// Faction returns a copy of a faction.
func (e *Engine) Faction(id uint) (models.Faction, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.factions[id]
	if !ok {
		return models.Faction{}, false
	}
	return *f, true
}

// List returns every faction ordered by id.
func (e *Engine) List() []models.Faction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Faction, 0, len(e.factions))
	for _, f := range e.factions {
		out = append(out, *f)
	}
	slices.SortFunc(out, func(a, b models.Faction) int { return int(a.ID) - int(b.ID) })
	return out
}

// Member returns the membership of a character.
func (e *Engine) Member(charID uint) (Member, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.members[charID]
	return m, ok
}

// Members lists the members of a faction, highest rank first.
func (e *Engine) Members(factionID uint) []Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Member
	for _, m := range e.members {
		if m.FactionID == factionID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Member) int {
		if a.Rank != b.Rank {
			return b.Rank - a.Rank
		}
		return int(a.CharacterID) - int(b.CharacterID)
	})
	return out
}

func (e *Engine) memberCount(factionID uint) int {
	n := 0
	for _, m := range e.members {
		if m.FactionID == factionID {
			n++
		}
	}
	return n
}

// Ranks returns the rank table of a faction, lowest first.
func (e *Engine) Ranks(factionID uint) []models.FactionRank {
	e.mu.RLock()
	defer e.mu.RUnlock()
	table := e.ranks[factionID]
	out := make([]models.FactionRank, 0, len(table))
	for _, r := range table {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.FactionRank) int { return a.Level - b.Level })
	return out
}

// RankName returns the display name of a member's rank.
func (e *Engine) RankName(factionID uint, level int) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.ranks[factionID][level]; ok {
		return r.Name
	}
	return fmt.Sprintf("Rank %d", level)
}

// HasFactionPermission resolves capability through the rank table of the
// character's own faction.
func (e *Engine) HasFactionPermission(charID uint, capability string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.members[charID]
	if !ok {
		return false
	}
	r, ok := e.ranks[m.FactionID][m.Rank]
	if !ok {
		return false
	}
	return slices.Contains(r.Permissions, CapAll) || slices.Contains(r.Permissions, capability)
}

// SalaryBonus is the per-payroll bonus of a character's rank, zero outside factions.
func (e *Engine) SalaryBonus(charID uint) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.members[charID]
	if !ok {
		return 0
	}
	return e.ranks[m.FactionID][m.Rank].SalaryBonus
}

// AtWar reports whether two factions have an active war in either direction.
func (e *Engine) AtWar(a, b uint) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.wars[storage.WarPairKey(a, b)]
	return ok
}

// Wars lists active wars.
func (e *Engine) Wars() []models.FactionWar {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.FactionWar, 0, len(e.wars))
	for _, w := range e.wars {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b models.FactionWar) int { return int(a.ID) - int(b.ID) })
	return out
}

func validTag(tag string) bool {
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// nameTaken checks the index for a case-insensitive name or tag collision.
func (e *Engine) nameTaken(name, tag string) bool {
	nk, tk := strings.ToLower(name), strings.ToLower(tag)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, f := range e.factions {
		if f.NameKey == nk || f.TagKey == tk {
			return true
		}
	}
	return false
}

// Create founds a faction with the ten-rank template of its type and makes
// the founder its leader.
func (e *Engine) Create(ctx context.Context, leaderID uint, name, tag, kind string) (*models.Faction, error) {
	name = strings.TrimSpace(name)
	tag = strings.TrimSpace(tag)
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch {
	case len(name) < config.MinFactionNameLen || len(name) > config.MaxFactionNameLen:
		return nil, apperr.InvalidInput("A faction name must be %d to %d characters.", config.MinFactionNameLen, config.MaxFactionNameLen)
	case len(tag) < config.MinFactionTagLen || len(tag) > config.MaxFactionTagLen || !validTag(tag):
		return nil, apperr.InvalidInput("A faction tag must be %d to %d letters or digits.", config.MinFactionTagLen, config.MaxFactionTagLen)
	case !ValidType(kind):
		return nil, apperr.InvalidInput("Faction type must be gang, mafia, government, business or other.")
	}

	// Creation is serialised so the name check and insert cannot interleave.
	release, err := e.acquire(ctx, charKey(leaderID), "faction:create")
	if err != nil {
		return nil, err
	}
	defer release()

	if _, ok := e.Member(leaderID); ok {
		return nil, apperr.Conflict("You are already in a faction.")
	}
	if e.nameTaken(name, tag) {
		return nil, apperr.Conflict("A faction with that name or tag already exists.")
	}

	f := &models.Faction{Name: name, Tag: tag, Type: kind, LeaderID: leaderID, MemberCap: config.DefaultMemberCap}
	ranks := defaultRanks(kind)
	if err := e.store.CreateFaction(ctx, f, ranks, config.LeaderRank); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, apperr.Conflict("A faction with that name or tag already exists.")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFound("Character not found.")
		}
		return nil, e.storeFailure("create faction", 0, err)
	}

	e.mu.Lock()
	e.factions[f.ID] = f
	table := make(map[int]models.FactionRank, len(ranks))
	for _, r := range ranks {
		table[r.Level] = r
	}
	e.ranks[f.ID] = table
	e.members[leaderID] = Member{CharacterID: leaderID, FactionID: f.ID, Rank: config.LeaderRank}
	e.mu.Unlock()

	e.log.Info("faction created", zap.Uint("faction_id", f.ID), zap.String("name", f.Name), zap.Uint("leader_id", leaderID))
	e.events.Emit(ctx, events.TopicFactionCreated, events.FactionChanged{
		FactionID: f.ID, ActorID: leaderID, TargetID: leaderID, Rank: config.LeaderRank, Name: f.Name,
	})
	out := *f
	return &out, nil
}

// Disband dissolves a faction. The leader may disband their own faction;
// staff with manage_factions may disband any, and that is audited. A zero
// factionID means the actor's own faction.
func (e *Engine) Disband(ctx context.Context, actorID, factionID uint) error {
	if factionID == 0 {
		m, ok := e.Member(actorID)
		if !ok {
			return apperr.Conflict("You are not in a faction.")
		}
		factionID = m.FactionID
	}
	f, ok := e.Faction(factionID)
	leader := ok && f.LeaderID == actorID
	staff := e.admins.HasPermission(actorID, permission.ManageFactions)
	switch {
	case !leader && !staff:
		return apperr.Denied()
	case !ok:
		return apperr.NotFound("That faction does not exist.")
	}

	release, err := e.acquire(ctx, factionKey(factionID), charKey(f.LeaderID))
	if err != nil {
		return err
	}
	defer release()

	if f, ok = e.Faction(factionID); !ok {
		return apperr.NotFound("That faction does not exist.")
	}
	if err := e.store.DisbandFaction(ctx, factionID, e.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("That faction does not exist.")
		}
		return e.storeFailure("disband faction", factionID, err)
	}

	e.mu.Lock()
	delete(e.factions, factionID)
	delete(e.ranks, factionID)
	for id, m := range e.members {
		if m.FactionID == factionID {
			delete(e.members, id)
		}
	}
	for key, w := range e.wars {
		if w.FactionA == factionID || w.FactionB == factionID {
			delete(e.wars, key)
		}
	}
	e.mu.Unlock()

	if !leader {
		e.audit.Record(ctx, actorID, "disband_faction", 0, fmt.Sprintf("%s (#%d)", f.Name, f.ID))
	}
	e.log.Info("faction disbanded", zap.Uint("faction_id", factionID), zap.Uint("actor_id", actorID))
	e.events.Emit(ctx, events.TopicFactionDisband, events.FactionChanged{FactionID: factionID, ActorID: actorID, Name: f.Name})
	if f.Treasury > 0 {
		if _, bank, err := e.store.Balances(ctx, f.LeaderID); err == nil {
			e.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: f.LeaderID, Bank: &bank})
		}
	}
	return nil
}
