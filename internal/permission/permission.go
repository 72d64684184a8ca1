// Package permission is the admin-level registry. The stored capability set
// of a grant is what gets enforced; the level is for display and for the
// standard ladder.
package permission

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"

	"go.uber.org/zap"
)

// Capabilities.
const (
	All            = "*"
	Kick           = "kick"
	Ban            = "ban"
	Unban          = "unban"
	Mute           = "mute"
	Warn           = "warn"
	HandleReports  = "handle_reports"
	CloseAnyReport = "close_any_report"
	ManageAdmins   = "manage_admins"
	Impound        = "impound"
	ManageAssets   = "manage_assets"
	ManageFactions = "manage_factions"
	ManageEconomy  = "manage_economy"
	ViewLogs       = "view_logs"
)

// ladder lists what each level adds on top of the levels below it.
var ladder = map[int][]string{
	1:  {HandleReports, Warn},
	2:  {Kick, Mute},
	3:  {Ban, ViewLogs},
	4:  {Unban, CloseAnyReport},
	5:  {Impound},
	6:  {ManageAssets},
	7:  {ManageEconomy},
	8:  {ManageFactions, ManageAdmins},
	10: {All},
}

// Ladder returns the standard capability set of a level.
func Ladder(level int) []string {
	if level >= config.MaxAdminLevel {
		return []string{All}
	}
	var out []string
	for l := 1; l <= level; l++ {
		out = append(out, ladder[l]...)
	}
	return out
}

// Store is the durable grant table.
type Store interface {
	ListActiveGrants(ctx context.Context) ([]models.AdminGrant, error)
	UpsertGrant(ctx context.Context, g *models.AdminGrant) error
}

// Auditor appends admin actions.
type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
}

type grant struct {
	level int
	caps  map[string]struct{}
}

// Registry caches active grants.
type Registry struct {
	store  Store
	audit  Auditor
	events events.Emitter
	locks  lock.Locker
	log    *zap.Logger

	mu     sync.RWMutex
	grants map[uint]grant
}

func NewRegistry(store Store, audit Auditor, emitter events.Emitter, locks lock.Locker, log *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		audit:  audit,
		events: emitter,
		locks:  locks,
		log:    log,
		grants: make(map[uint]grant),
	}
}

func toGrant(level int, caps []string) grant {
	g := grant{level: level, caps: make(map[string]struct{}, len(caps))}
	for _, c := range caps {
		g.caps[c] = struct{}{}
	}
	return g
}

// Load replaces the cache with the stored grants. On failure the cache is
// left empty, so nobody holds any permission, and the error is returned for
// the caller to log.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.store.ListActiveGrants(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = make(map[uint]grant, len(rows))
	if err != nil {
		r.log.Error("load admin grants failed, running without admins", zap.Error(err))
		return err
	}
	for _, row := range rows {
		if row.Level <= 0 {
			continue
		}
		r.grants[row.CharacterID] = toGrant(row.Level, row.Permissions)
	}
	r.log.Info("admin grants loaded", zap.Int("count", len(r.grants)))
	return nil
}

// Level returns 0 for actors without an active grant.
func (r *Registry) Level(actorID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[actorID].level
}

// HasPermission reports whether the actor holds capability or "*".
func (r *Registry) HasPermission(actorID uint, capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[actorID]
	if !ok {
		return false
	}
	if _, ok := g.caps[All]; ok {
		return true
	}
	_, ok = g.caps[capability]
	return ok
}

// Permissions returns the sorted capability set of an actor.
func (r *Registry) Permissions(actorID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grants[actorID].caps))
	for c := range r.grants[actorID].caps {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Outranks reports whether actor may moderate target: "*" holders always
// may, everyone else needs a strictly higher level.
func (r *Registry) Outranks(actorID, targetID uint) bool {
	if r.HasPermission(actorID, All) {
		return true
	}
	return r.Level(actorID) > r.Level(targetID)
}

// SetLevel writes the grant of target and then updates the cache. Level 0
// revokes. If the store write fails the cache is untouched.
func (r *Registry) SetLevel(ctx context.Context, targetID uint, level int, caps []string, grantedBy uint) error {
	if level < 0 || level > config.MaxAdminLevel {
		return apperr.InvalidInput("Admin level must be between 0 and %d.", config.MaxAdminLevel)
	}
	if level == 0 {
		caps = nil
	}

	release, err := r.locks.Acquire(ctx, lock.Key("grant", targetID))
	if err != nil {
		return apperr.Store("lock grant", err)
	}
	defer release()

	row := &models.AdminGrant{CharacterID: targetID, Level: level, Permissions: caps, GrantedBy: grantedBy}
	if err := r.store.UpsertGrant(ctx, row); err != nil {
		r.log.Error("upsert admin grant failed", zap.Uint("character_id", targetID), zap.Error(err))
		return apperr.Store("upsert grant", err)
	}

	r.mu.Lock()
	if level == 0 {
		delete(r.grants, targetID)
	} else {
		r.grants[targetID] = toGrant(level, caps)
	}
	r.mu.Unlock()

	r.audit.Record(ctx, grantedBy, "set_admin_level", targetID,
		fmt.Sprintf("level=%d permissions=%s", level, strings.Join(caps, ",")))
	r.events.Emit(ctx, events.TopicAdminLevel, events.AdminLevelChanged{CharacterID: targetID, Level: level, GrantedBy: grantedBy})
	return nil
}

// Grant is the player-facing path: the grantor needs manage_admins, must
// outrank both the target's current and new level, and the standard ladder
// decides the capabilities.
func (r *Registry) Grant(ctx context.Context, grantorID, targetID uint, level int) error {
	if !r.HasPermission(grantorID, ManageAdmins) {
		return apperr.Denied()
	}
	if grantorID == targetID {
		return apperr.InvalidInput("You cannot change your own admin level.")
	}
	if !r.HasPermission(grantorID, All) {
		own := r.Level(grantorID)
		if level >= own || r.Level(targetID) >= own {
			return apperr.DeniedMsg("You can only manage admins below your own level.")
		}
	}
	return r.SetLevel(ctx, targetID, level, Ladder(level), grantorID)
}
