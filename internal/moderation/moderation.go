// Package moderation runs the kick, ban, mute and warn lifecycle and the
// player report workflow. Every mutating call goes through the same steps:
// permission check, precondition check, store write, cache update, audit
// entry, event. Events are only emitted once the store write succeeded.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

// Store is the slice of the store adapter moderation needs.
type Store interface {
	CharacterExists(ctx context.Context, id uint) (bool, error)

	CreateBan(ctx context.Context, ban *models.Ban, now time.Time) error
	RevokeBan(ctx context.Context, targetID, revokedBy uint, reason string, now time.Time) (*models.Ban, error)
	ListActiveBans(ctx context.Context, now time.Time) ([]models.Ban, error)
	ListBans(ctx context.Context, targetID uint) ([]models.Ban, error)

	CreateMute(ctx context.Context, mute *models.Mute, now time.Time) error
	RevokeMute(ctx context.Context, targetID, revokedBy uint, reason string, now time.Time) (*models.Mute, error)
	ListActiveMutes(ctx context.Context, now time.Time) ([]models.Mute, error)
	ListMutes(ctx context.Context, targetID uint) ([]models.Mute, error)

	CreateWarning(ctx context.Context, w *models.Warning) error
	ListWarnings(ctx context.Context, targetID uint) ([]models.Warning, error)

	CreateReport(ctx context.Context, r *models.Report) error
	AcceptReport(ctx context.Context, reportID, adminID uint) error
	CloseReport(ctx context.Context, reportID, closedBy uint, resolution string, now time.Time) error
	ListOpenReports(ctx context.Context) ([]models.Report, error)
}

// Permissions answers capability questions.
type Permissions interface {
	HasPermission(actorID uint, capability string) bool
	Outranks(actorID, targetID uint) bool
}

// Auditor appends admin actions and serves the recent ones.
type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
	Recent(n int) []models.AdminAction
}

// Directory finds logged-in actors.
type Directory interface {
	Get(id uint) (session.Actor, bool)
}

// Engine is the moderation engine.
type Engine struct {
	store  Store
	perms  Permissions
	audit  Auditor
	online Directory
	events events.Emitter
	locks  lock.Locker
	log    *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	bans    map[uint]models.Ban
	mutes   map[uint]models.Mute
	reports map[uint]models.Report
}

func NewEngine(store Store, perms Permissions, audit Auditor, online Directory, emitter events.Emitter, locks lock.Locker, log *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		perms:   perms,
		audit:   audit,
		online:  online,
		events:  emitter,
		locks:   locks,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		bans:    make(map[uint]models.Ban),
		mutes:   make(map[uint]models.Mute),
		reports: make(map[uint]models.Report),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Load fills the caches with active bans, active mutes and open reports.
func (e *Engine) Load(ctx context.Context) error {
	now := e.now()
	bans, err := e.store.ListActiveBans(ctx, now)
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}
	mutes, err := e.store.ListActiveMutes(ctx, now)
	if err != nil {
		return fmt.Errorf("load mutes: %w", err)
	}
	reports, err := e.store.ListOpenReports(ctx)
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.bans = make(map[uint]models.Ban, len(bans))
	for _, b := range bans {
		e.bans[b.TargetID] = b
	}
	e.mutes = make(map[uint]models.Mute, len(mutes))
	for _, m := range mutes {
		e.mutes[m.TargetID] = m
	}
	e.reports = make(map[uint]models.Report, len(reports))
	for _, r := range reports {
		e.reports[r.ID] = r
	}
	e.log.Info("moderation state loaded",
		zap.Int("bans", len(e.bans)), zap.Int("mutes", len(e.mutes)), zap.Int("open_reports", len(e.reports)))
	return nil
}

func (e *Engine) storeFailure(op string, err error, fields ...zap.Field) error {
	e.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return apperr.Store(op, err)
}

// authorize checks capability and rank against the target. Both failures
// produce the same denial so the caller learns nothing about the target.
func (e *Engine) authorize(adminID, targetID uint, capability string) error {
	if !e.perms.HasPermission(adminID, capability) {
		return apperr.Denied()
	}
	if adminID == targetID {
		return apperr.InvalidInput("You cannot do that to yourself.")
	}
	if !e.perms.Outranks(adminID, targetID) {
		return apperr.Denied()
	}
	return nil
}

func checkReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperr.InvalidInput("A reason is required.")
	}
	if len(reason) > config.MaxReasonLength {
		return "", apperr.InvalidInput("The reason may be at most %d characters.", config.MaxReasonLength)
	}
	return reason, nil
}

func (e *Engine) requireCharacter(ctx context.Context, id uint) error {
	ok, err := e.store.CharacterExists(ctx, id)
	if err != nil {
		return e.storeFailure("character lookup", err, zap.Uint("character_id", id))
	}
	if !ok {
		return apperr.NotFound("No character with id %d.", id)
	}
	return nil
}

func (e *Engine) lockTarget(ctx context.Context, targetID uint) (lock.Release, error) {
	release, err := e.locks.Acquire(ctx, lock.Key("moderation", targetID))
	if err != nil {
		return nil, apperr.Store("lock target", err)
	}
	return release, nil
}

// Kick drops an online target's session. Nothing is stored besides the audit entry.
func (e *Engine) Kick(ctx context.Context, adminID, targetID uint, reason string) error {
	if err := e.authorize(adminID, targetID, permission.Kick); err != nil {
		return err
	}
	reason, err := checkReason(reason)
	if err != nil {
		return err
	}
	if _, ok := e.online.Get(targetID); !ok {
		return apperr.NotFound("That player is not online.")
	}

	e.audit.Record(ctx, adminID, "kick", targetID, reason)
	e.events.Emit(ctx, events.TopicKick, events.Kicked{TargetID: targetID, AdminID: adminID, Reason: reason})
	return nil
}

// Ban blocks a target from logging in. A zero duration bans permanently.
// A target can hold only one active ban; a second one is rejected.
func (e *Engine) Ban(ctx context.Context, adminID, targetID uint, reason string, duration time.Duration) (*models.Ban, error) {
	if err := e.authorize(adminID, targetID, permission.Ban); err != nil {
		return nil, err
	}
	reason, err := checkReason(reason)
	if err != nil {
		return nil, err
	}
	if duration < 0 || duration > config.MaxBanDuration {
		return nil, apperr.InvalidInput("Ban duration must be between 0 (permanent) and %d days.", int(config.MaxBanDuration.Hours()/24))
	}
	if err := e.requireCharacter(ctx, targetID); err != nil {
		return nil, err
	}

	release, err := e.lockTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	if e.IsBanned(targetID) {
		return nil, apperr.Conflict("That player is already banned.")
	}

	ban := &models.Ban{TargetID: targetID, IssuedBy: adminID, Reason: reason, CreatedAt: now}
	if duration > 0 {
		exp := now.Add(duration)
		ban.ExpiresAt = &exp
	}
	if err := e.store.CreateBan(ctx, ban, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperr.Conflict("That player is already banned.")
		}
		return nil, e.storeFailure("create ban", err, zap.Uint("target_id", targetID))
	}

	e.mu.Lock()
	e.bans[targetID] = *ban
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "ban", targetID, fmt.Sprintf("%s (%s)", reason, describeExpiry(ban.ExpiresAt)))
	e.events.Emit(ctx, events.TopicBan, events.Banned{TargetID: targetID, AdminID: adminID, Reason: reason, ExpiresAt: ban.ExpiresAt})
	return ban, nil
}

// Unban revokes the target's active ban. Only the issuer or an admin who
// outranks the issuer may lift it.
func (e *Engine) Unban(ctx context.Context, adminID, targetID uint, reason string) error {
	if !e.perms.HasPermission(adminID, permission.Unban) {
		return apperr.Denied()
	}
	reason, err := checkReason(reason)
	if err != nil {
		return err
	}

	release, err := e.lockTarget(ctx, targetID)
	if err != nil {
		return err
	}
	defer release()

	e.mu.RLock()
	cur, banned := e.bans[targetID]
	e.mu.RUnlock()
	if banned && cur.IssuedBy != adminID && !e.perms.Outranks(adminID, cur.IssuedBy) {
		return apperr.DeniedMsg("Only the issuing admin or a higher one can lift that ban.")
	}

	if _, err := e.store.RevokeBan(ctx, targetID, adminID, reason, e.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
			e.mu.Lock()
			delete(e.bans, targetID)
			e.mu.Unlock()
			return apperr.NotFound("That player is not banned.")
		}
		return e.storeFailure("revoke ban", err, zap.Uint("target_id", targetID))
	}

	e.mu.Lock()
	delete(e.bans, targetID)
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "unban", targetID, reason)
	e.events.Emit(ctx, events.TopicUnban, events.Unbanned{TargetID: targetID, AdminID: adminID, Reason: reason})
	return nil
}

// Mute silences a target's chat for minutes.
func (e *Engine) Mute(ctx context.Context, adminID, targetID uint, reason string, minutes int) (*models.Mute, error) {
	if err := e.authorize(adminID, targetID, permission.Mute); err != nil {
		return nil, err
	}
	reason, err := checkReason(reason)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 || minutes > config.MaxMuteMinutes {
		return nil, apperr.InvalidInput("Mute duration must be between 1 and %d minutes.", config.MaxMuteMinutes)
	}
	if err := e.requireCharacter(ctx, targetID); err != nil {
		return nil, err
	}

	release, err := e.lockTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	defer release()

	if e.IsMuted(targetID) {
		return nil, apperr.Conflict("That player is already muted.")
	}

	now := e.now()
	mute := &models.Mute{
		TargetID:  targetID,
		IssuedBy:  adminID,
		Reason:    reason,
		ExpiresAt: now.Add(time.Duration(minutes) * time.Minute),
		CreatedAt: now,
	}
	if err := e.store.CreateMute(ctx, mute, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperr.Conflict("That player is already muted.")
		}
		return nil, e.storeFailure("create mute", err, zap.Uint("target_id", targetID))
	}

	e.mu.Lock()
	e.mutes[targetID] = *mute
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "mute", targetID, fmt.Sprintf("%s (%d min)", reason, minutes))
	e.events.Emit(ctx, events.TopicMute, events.Muted{TargetID: targetID, AdminID: adminID, Reason: reason, ExpiresAt: mute.ExpiresAt})
	return mute, nil
}

// Unmute revokes the target's active mute.
func (e *Engine) Unmute(ctx context.Context, adminID, targetID uint) error {
	if !e.perms.HasPermission(adminID, permission.Mute) {
		return apperr.Denied()
	}

	release, err := e.lockTarget(ctx, targetID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := e.store.RevokeMute(ctx, targetID, adminID, "", e.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
			e.mu.Lock()
			delete(e.mutes, targetID)
			e.mu.Unlock()
			return apperr.NotFound("That player is not muted.")
		}
		return e.storeFailure("revoke mute", err, zap.Uint("target_id", targetID))
	}

	e.mu.Lock()
	delete(e.mutes, targetID)
	e.mu.Unlock()

	e.audit.Record(ctx, adminID, "unmute", targetID, "")
	e.events.Emit(ctx, events.TopicUnmute, events.Unmuted{TargetID: targetID, AdminID: adminID})
	return nil
}

// Warn appends a warning to the target's record.
func (e *Engine) Warn(ctx context.Context, adminID, targetID uint, reason string) (*models.Warning, error) {
	if err := e.authorize(adminID, targetID, permission.Warn); err != nil {
		return nil, err
	}
	reason, err := checkReason(reason)
	if err != nil {
		return nil, err
	}
	if err := e.requireCharacter(ctx, targetID); err != nil {
		return nil, err
	}

	w := &models.Warning{TargetID: targetID, IssuedBy: adminID, Reason: reason, CreatedAt: e.now()}
	if err := e.store.CreateWarning(ctx, w); err != nil {
		return nil, e.storeFailure("create warning", err, zap.Uint("target_id", targetID))
	}

	e.audit.Record(ctx, adminID, "warn", targetID, reason)
	e.events.Emit(ctx, events.TopicWarn, events.Warned{TargetID: targetID, AdminID: adminID, Reason: reason})
	return w, nil
}

// IsBanned compares expiry against the current time; expired bans are not swept.
func (e *Engine) IsBanned(targetID uint) bool {
	_, ok := e.ActiveBan(targetID)
	return ok
}

// ActiveBan returns the ban in force for target, if any.
func (e *Engine) ActiveBan(targetID uint) (models.Ban, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.bans[targetID]
	if !ok || !b.ActiveAt(e.now()) {
		return models.Ban{}, false
	}
	return b, true
}

// IsMuted reports whether target has a mute in force.
func (e *Engine) IsMuted(targetID uint) bool {
	_, ok := e.ActiveMute(targetID)
	return ok
}

// ActiveMute returns the mute in force for target, if any.
func (e *Engine) ActiveMute(targetID uint) (models.Mute, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.mutes[targetID]
	if !ok || !m.ActiveAt(e.now()) {
		return models.Mute{}, false
	}
	return m, true
}

// CheckLogin rejects banned characters with a message naming the reason.
func (e *Engine) CheckLogin(ctx context.Context, charID uint) error {
	b, ok := e.ActiveBan(charID)
	if !ok {
		return nil
	}
	return apperr.DeniedMsg("You are banned (%s): %s", describeExpiry(b.ExpiresAt), b.Reason)
}

func describeExpiry(t *time.Time) string {
	if t == nil {
		return "permanent"
	}
	return "until " + t.Format("2006-01-02 15:04 UTC")
}
