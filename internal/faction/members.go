package faction

import (
	"context"
	"errors"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

// Invite offers inviteeID a place in the inviter's faction for InviteTTL.
func (e *Engine) Invite(ctx context.Context, inviterID, inviteeID uint) error {
	m, ok := e.Member(inviterID)
	if !ok {
		return apperr.Conflict("You are not in a faction.")
	}
	if !e.HasFactionPermission(inviterID, CapInvite) {
		return apperr.Denied()
	}
	if inviterID == inviteeID {
		return apperr.InvalidInput("You cannot invite yourself.")
	}

	release, err := e.acquire(ctx, factionKey(m.FactionID), charKey(inviteeID))
	if err != nil {
		return err
	}
	defer release()

	found, err := e.store.CharacterExists(ctx, inviteeID)
	if err != nil {
		return e.storeFailure("check invitee", m.FactionID, err)
	}
	if !found {
		return apperr.NotFound("That player does not exist.")
	}
	if _, in := e.Member(inviteeID); in {
		return apperr.Conflict("That player is already in a faction.")
	}
	f, ok := e.Faction(m.FactionID)
	if !ok {
		return apperr.NotFound("That faction does not exist.")
	}
	e.mu.RLock()
	full := e.memberCount(f.ID) >= f.MemberCap
	e.mu.RUnlock()
	if full {
		return apperr.Conflict("The faction is full.")
	}

	now := e.now()
	inv := &models.FactionInvite{FactionID: f.ID, InviteeID: inviteeID, InviterID: inviterID, ExpiresAt: now.Add(config.InviteTTL)}
	if err := e.store.CreateInvite(ctx, inv, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict("That player already has a pending invite from your faction.")
		}
		return e.storeFailure("create invite", f.ID, err)
	}

	e.events.Emit(ctx, events.TopicFactionInvite, events.FactionChanged{FactionID: f.ID, ActorID: inviterID, TargetID: inviteeID, Name: f.Name})
	return nil
}

// Invites lists the pending invites of a character, newest first.
func (e *Engine) Invites(ctx context.Context, charID uint) ([]models.FactionInvite, error) {
	out, err := e.store.ListInvites(ctx, charID, e.now())
	if err != nil {
		return nil, e.storeFailure("list invites", 0, err)
	}
	return out, nil
}

// Accept joins the faction of a pending invite. A zero factionID takes the
// newest invite. All other invites of the actor are consumed with it.
func (e *Engine) Accept(ctx context.Context, actorID, factionID uint) (uint, error) {
	if _, in := e.Member(actorID); in {
		return 0, apperr.Conflict("You are already in a faction.")
	}
	if factionID == 0 {
		pending, err := e.Invites(ctx, actorID)
		if err != nil {
			return 0, err
		}
		if len(pending) == 0 {
			return 0, apperr.NotFound("You have no pending faction invite.")
		}
		factionID = pending[0].FactionID
	}

	release, err := e.acquire(ctx, factionKey(factionID), charKey(actorID))
	if err != nil {
		return 0, err
	}
	defer release()

	if _, in := e.Member(actorID); in {
		return 0, apperr.Conflict("You are already in a faction.")
	}
	inv, err := e.store.AcceptInvite(ctx, actorID, factionID, JoinRank, e.now())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return 0, apperr.NotFound("You have no pending invite from that faction.")
		case errors.Is(err, storage.ErrFull):
			return 0, apperr.Conflict("That faction is full.")
		case errors.Is(err, storage.ErrConflict):
			return 0, apperr.Conflict("You are already in a faction.")
		}
		return 0, e.storeFailure("accept invite", factionID, err)
	}

	e.mu.Lock()
	e.members[actorID] = Member{CharacterID: actorID, FactionID: inv.FactionID, Rank: JoinRank}
	e.mu.Unlock()

	f, _ := e.Faction(inv.FactionID)
	e.events.Emit(ctx, events.TopicFactionJoined, events.FactionChanged{FactionID: inv.FactionID, ActorID: actorID, TargetID: actorID, Rank: JoinRank, Name: f.Name})
	return inv.FactionID, nil
}

// Leave takes the actor out of their faction. Leaders disband instead.
func (e *Engine) Leave(ctx context.Context, actorID uint) error {
	m, ok := e.Member(actorID)
	if !ok {
		return apperr.Conflict("You are not in a faction.")
	}
	if f, ok := e.Faction(m.FactionID); ok && f.LeaderID == actorID {
		return apperr.Conflict("The leader cannot leave; disband the faction instead.")
	}

	release, err := e.acquire(ctx, factionKey(m.FactionID), charKey(actorID))
	if err != nil {
		return err
	}
	defer release()

	cur, ok := e.Member(actorID)
	if !ok || cur.FactionID != m.FactionID {
		return apperr.Conflict("You are not in a faction.")
	}
	return e.remove(ctx, actorID, cur)
}

// superior resolves both memberships and checks that the actor holds
// capability and a strictly higher rank than the target.
func (e *Engine) superior(actorID, targetID uint, capability, denied string) (Member, Member, error) {
	am, ok := e.Member(actorID)
	if !ok {
		return Member{}, Member{}, apperr.Conflict("You are not in a faction.")
	}
	if !e.HasFactionPermission(actorID, capability) {
		return Member{}, Member{}, apperr.Denied()
	}
	tm, ok := e.Member(targetID)
	if !ok || tm.FactionID != am.FactionID {
		return Member{}, Member{}, apperr.NotFound("That player is not in your faction.")
	}
	if am.Rank <= tm.Rank {
		return Member{}, Member{}, apperr.DeniedMsg("%s", denied)
	}
	return am, tm, nil
}

// lockPair takes the faction and both character locks and repeats the rank
// check, so the write below sees the ranks it was authorised against.
func (e *Engine) lockPair(ctx context.Context, actorID, targetID uint, capability, denied string) (Member, Member, lock.Release, error) {
	am, _, err := e.superior(actorID, targetID, capability, denied)
	if err != nil {
		return Member{}, Member{}, nil, err
	}
	release, err := e.acquire(ctx, factionKey(am.FactionID), charKey(actorID), charKey(targetID))
	if err != nil {
		return Member{}, Member{}, nil, err
	}
	cur, tm, err := e.superior(actorID, targetID, capability, denied)
	if err == nil && cur.FactionID != am.FactionID {
		err = apperr.Conflict("Your faction changed; try again.")
	}
	if err != nil {
		release()
		return Member{}, Member{}, nil, err
	}
	return cur, tm, release, nil
}

// Kick removes targetID from the actor's faction. The actor needs the kick
// capability and a strictly higher rank than the target, so nobody can kick
// an equal, themselves included.
func (e *Engine) Kick(ctx context.Context, actorID, targetID uint) error {
	_, tm, release, err := e.lockPair(ctx, actorID, targetID, CapKick, "You can only kick members below your rank.")
	if err != nil {
		return err
	}
	defer release()
	return e.remove(ctx, actorID, tm)
}

// remove runs with the faction and member locks held.
func (e *Engine) remove(ctx context.Context, actorID uint, m Member) error {
	if err := e.store.RemoveMember(ctx, m.FactionID, m.CharacterID, m.Rank); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict("That player's membership changed; try again.")
		}
		return e.storeFailure("remove member", m.FactionID, err)
	}

	e.mu.Lock()
	delete(e.members, m.CharacterID)
	e.mu.Unlock()

	e.log.Info("faction member removed", zap.Uint("faction_id", m.FactionID), zap.Uint("character_id", m.CharacterID), zap.Uint("actor_id", actorID))
	e.events.Emit(ctx, events.TopicFactionLeft, events.FactionChanged{FactionID: m.FactionID, ActorID: actorID, TargetID: m.CharacterID})
	return nil
}

// SetRank moves a member to newRank. The actor needs the promote capability
// and must outrank both the target's current rank and the new one.
func (e *Engine) SetRank(ctx context.Context, actorID, targetID uint, newRank int) error {
	if newRank < 1 || newRank >= config.LeaderRank {
		return apperr.InvalidInput("Rank must be between 1 and %d.", config.LeaderRank-1)
	}
	const denied = "You can only change ranks below your own."
	am, tm, release, err := e.lockPair(ctx, actorID, targetID, CapPromote, denied)
	if err != nil {
		return err
	}
	defer release()

	if am.Rank <= newRank {
		return apperr.DeniedMsg(denied)
	}
	if tm.Rank == newRank {
		return apperr.Conflict("That player already holds that rank.")
	}

	if err := e.store.SetMemberRank(ctx, am.FactionID, targetID, tm.Rank, newRank); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict("That player's rank changed; try again.")
		}
		return e.storeFailure("set rank", am.FactionID, err)
	}

	e.mu.Lock()
	tm.Rank = newRank
	e.members[targetID] = tm
	e.mu.Unlock()

	e.events.Emit(ctx, events.TopicFactionRank, events.FactionChanged{
		FactionID: am.FactionID, ActorID: actorID, TargetID: targetID, Rank: newRank, Name: e.RankName(am.FactionID, newRank),
	})
	return nil
}
