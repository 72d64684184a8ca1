package moderation_test

import (
	"context"
	"testing"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/audit"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/moderation"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"
	"rpworld/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type onlineSet map[uint]bool

func (o onlineSet) Get(id uint) (session.Actor, bool) {
	if o[id] {
		return session.Actor{ID: id}, true
	}
	return session.Actor{}, false
}

type fixture struct {
	store  *storage.Service
	perms  *permission.Registry
	engine *moderation.Engine
	bus    *events.Bus
	online onlineSet
	topics []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storagetest.New(t), online: onlineSet{}}
	f.bus = events.NewBus(zap.NewNop())
	au := audit.New(f.store, config.AuditRingSize, zap.NewNop())
	locks := lock.NewKeyedMutex()
	f.perms = permission.NewRegistry(f.store, au, f.bus, locks, zap.NewNop())
	f.engine = moderation.NewEngine(f.store, f.perms, au, f.online, f.bus, locks, zap.NewNop())

	for _, topic := range []string{events.TopicKick, events.TopicBan, events.TopicUnban, events.TopicMute, events.TopicWarn, events.TopicReportCreated, events.TopicReportClosed} {
		topic := topic
		f.bus.Subscribe(topic, func(ctx context.Context, p any) error {
			f.topics = append(f.topics, topic)
			return nil
		})
	}
	return f
}

func (f *fixture) admin(t *testing.T, name string, level int) *models.Character {
	t.Helper()
	c := storagetest.Character(t, f.store, name, 0, 0)
	require.NoError(t, f.perms.SetLevel(context.Background(), c.ID, level, permission.Ladder(level), 0))
	return c
}

// Scenario A: a level 0 actor is denied everywhere and leaves no trace.
func TestLevelZeroIsDeniedEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	player := storagetest.Character(t, f.store, "Nobody", 0, 0)
	target := storagetest.Character(t, f.store, "Target", 0, 0)
	f.online[target.ID] = true

	calls := map[string]error{}
	calls["kick"] = f.engine.Kick(ctx, player.ID, target.ID, "bye")
	_, calls["ban"] = f.engine.Ban(ctx, player.ID, target.ID, "bye", 0)
	calls["unban"] = f.engine.Unban(ctx, player.ID, target.ID, "bye")
	_, calls["mute"] = f.engine.Mute(ctx, player.ID, target.ID, "bye", 5)
	calls["unmute"] = f.engine.Unmute(ctx, player.ID, target.ID)
	_, calls["warn"] = f.engine.Warn(ctx, player.ID, target.ID, "bye")
	_, calls["accept"] = f.engine.AcceptReport(ctx, player.ID, 1)
	_, calls["close"] = f.engine.CloseReport(ctx, player.ID, 1, "done")
	_, calls["list"] = f.engine.ListOpenReports(player.ID)
	_, calls["history"] = f.engine.History(ctx, player.ID, target.ID)
	_, calls["recent"] = f.engine.RecentActions(player.ID, 10)

	for name, err := range calls {
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied, name)
		assert.Equal(t, "You are not allowed to do that.", apperr.UserMessage(err), name)
	}

	actions, err := f.store.ListAdminActions(ctx, nil, 100)
	require.NoError(t, err)
	assert.Empty(t, actions)
	bans, err := f.store.ListBans(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, bans)
	assert.Empty(t, f.topics)
}

func TestBan_PermanentAndSingleActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 4)
	target := storagetest.Character(t, f.store, "Cheater", 0, 0)

	ban, err := f.engine.Ban(ctx, admin.ID, target.ID, "aimbot", 0)
	require.NoError(t, err)
	assert.Nil(t, ban.ExpiresAt)
	assert.True(t, f.engine.IsBanned(target.ID))

	f.engine.SetClock(func() time.Time { return time.Now().UTC().AddDate(100, 0, 0) })
	assert.True(t, f.engine.IsBanned(target.ID), "permanent ban never expires")
	f.engine.SetClock(func() time.Time { return time.Now().UTC() })

	_, err = f.engine.Ban(ctx, admin.ID, target.ID, "again", time.Hour)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = f.engine.CheckLogin(ctx, target.ID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Contains(t, apperr.UserMessage(err), "aimbot")

	require.NoError(t, f.engine.Unban(ctx, admin.ID, target.ID, "appeal accepted"))
	assert.False(t, f.engine.IsBanned(target.ID))
	assert.NoError(t, f.engine.CheckLogin(ctx, target.ID))

	err = f.engine.Unban(ctx, admin.ID, target.ID, "again")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, []string{events.TopicBan, events.TopicUnban}, f.topics)
}

func TestBan_TimedExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 3)
	target := storagetest.Character(t, f.store, "Rude", 0, 0)

	ban, err := f.engine.Ban(ctx, admin.ID, target.ID, "insults", 2*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, ban.ExpiresAt)

	f.engine.SetClock(func() time.Time { return time.Now().UTC().Add(3 * time.Hour) })
	assert.False(t, f.engine.IsBanned(target.ID))
	_, err = f.engine.Ban(ctx, admin.ID, target.ID, "insults again", time.Hour)
	assert.NoError(t, err, "expired ban does not block a new one")
}

func TestBan_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 3)
	peer := f.admin(t, "Peer", 3)
	target := storagetest.Character(t, f.store, "Target", 0, 0)

	_, err := f.engine.Ban(ctx, admin.ID, target.ID, "", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.engine.Ban(ctx, admin.ID, target.ID, "x", -time.Hour)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.engine.Ban(ctx, admin.ID, 9999, "x", 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.engine.Ban(ctx, admin.ID, admin.ID, "x", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.engine.Ban(ctx, admin.ID, peer.ID, "x", 0)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied, "equal level cannot ban")
}

func TestUnban_NeedsIssuerOrHigher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	head := f.admin(t, "Head", 10)
	junior := f.admin(t, "Junior", 4)
	senior := f.admin(t, "Senior", 4)
	target := storagetest.Character(t, f.store, "Griefer", 0, 0)

	_, err := f.engine.Ban(ctx, head.ID, target.ID, "griefing", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.Unban(ctx, junior.ID, target.ID, "my friend"), apperr.ErrPermissionDenied)
	assert.True(t, f.engine.IsBanned(target.ID))
	require.NoError(t, f.engine.Unban(ctx, head.ID, target.ID, "appeal"))

	_, err = f.engine.Ban(ctx, junior.ID, target.ID, "griefing again", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.Unban(ctx, senior.ID, target.ID, "peer"), apperr.ErrPermissionDenied, "equal level is not enough")
	require.NoError(t, f.engine.Unban(ctx, head.ID, target.ID, "overruled"))
	assert.False(t, f.engine.IsBanned(target.ID))
}

func TestKick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 2)
	target := storagetest.Character(t, f.store, "Afk", 0, 0)

	err := f.engine.Kick(ctx, admin.ID, target.ID, "afk")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.online[target.ID] = true
	require.NoError(t, f.engine.Kick(ctx, admin.ID, target.ID, "afk"))
	assert.Equal(t, []string{events.TopicKick}, f.topics)

	recent, err := f.engine.RecentActions(f.admin(t, "Viewer", 3).ID, 5)
	require.NoError(t, err)
	actions := make([]string, 0, len(recent))
	for _, a := range recent {
		actions = append(actions, a.Action)
	}
	assert.Contains(t, actions, "kick")
}

func TestMuteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 2)
	target := storagetest.Character(t, f.store, "Spammer", 0, 0)

	_, err := f.engine.Mute(ctx, admin.ID, target.ID, "spam", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.engine.Mute(ctx, admin.ID, target.ID, "spam", 10)
	require.NoError(t, err)
	assert.True(t, f.engine.IsMuted(target.ID))

	_, err = f.engine.Mute(ctx, admin.ID, target.ID, "spam", 10)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	f.engine.SetClock(func() time.Time { return time.Now().UTC().Add(11 * time.Minute) })
	assert.False(t, f.engine.IsMuted(target.ID))
	f.engine.SetClock(func() time.Time { return time.Now().UTC() })

	require.NoError(t, f.engine.Unmute(ctx, admin.ID, target.ID))
	assert.ErrorIs(t, f.engine.Unmute(ctx, admin.ID, target.ID), apperr.ErrNotFound)
}

func TestWarnAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 3)
	target := storagetest.Character(t, f.store, "Rookie", 0, 0)

	_, err := f.engine.Warn(ctx, admin.ID, target.ID, "first warning")
	require.NoError(t, err)
	_, err = f.engine.Warn(ctx, admin.ID, target.ID, "second warning")
	require.NoError(t, err)

	h, err := f.engine.History(ctx, admin.ID, target.ID)
	require.NoError(t, err)
	assert.Len(t, h.Warnings, 2)
	assert.Empty(t, h.Bans)
}

func TestLoad_RestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Admin", 3)
	target := storagetest.Character(t, f.store, "Banned", 0, 0)
	_, err := f.engine.Ban(ctx, admin.ID, target.ID, "x", 0)
	require.NoError(t, err)

	fresh := moderation.NewEngine(f.store, f.perms, audit.New(f.store, 10, zap.NewNop()), f.online, f.bus, lock.NewKeyedMutex(), zap.NewNop())
	assert.False(t, fresh.IsBanned(target.ID))
	require.NoError(t, fresh.Load(ctx))
	assert.True(t, fresh.IsBanned(target.ID))
}
