package command_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/audit"
	"rpworld/backend/internal/catalog"
	"rpworld/backend/internal/command"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/economy"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/faction"
	"rpworld/backend/internal/job"
	"rpworld/backend/internal/localization"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/moderation"
	"rpworld/backend/internal/ownership"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/property"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"
	"rpworld/backend/internal/storage/storagetest"
	"rpworld/backend/internal/vehicle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store    *storage.Service
	perms    *permission.Registry
	sessions *session.Manager
	vehicles *vehicle.Service
	d        *command.Dispatcher
	outcomes []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := storagetest.New(t)
	log := zap.NewNop()
	bus := events.NewBus(log)
	locks := lock.NewKeyedMutex()
	au := audit.New(s, config.AuditRingSize, log)
	perms := permission.NewRegistry(s, au, bus, locks, log)

	var mod *moderation.Engine
	sessions := session.NewManager(s, session.LoginGateFunc(func(ctx context.Context, id uint) error {
		return mod.CheckLogin(ctx, id)
	}), perms, log)
	sessions.Subscribe(bus)
	mod = moderation.NewEngine(s, perms, au, sessions, bus, locks, log)

	cat, err := catalog.Default()
	require.NoError(t, err)
	vehicleAssets := ownership.NewEngine(vehicle.Policy, s, perms, au, bus, locks, log)
	propertyAssets := ownership.NewEngine(property.Policy, s, perms, au, bus, locks, log)
	factions := faction.NewEngine(s, perms, au, bus, locks, log)
	for _, load := range []func(context.Context) error{perms.Load, mod.Load, vehicleAssets.Load, propertyAssets.Load, factions.Load} {
		require.NoError(t, load(ctx))
	}

	text, err := localization.New()
	require.NoError(t, err)

	f := &fixture{store: s, perms: perms, sessions: sessions}
	f.vehicles = vehicle.NewService(vehicleAssets, s, perms, au, cat, bus, locks, log)
	f.d = command.New(command.Engines{
		Permissions: perms,
		Moderation:  mod,
		Vehicles:    f.vehicles,
		Properties:  property.NewService(propertyAssets, s, perms, au, locks, log),
		Factions:    factions,
		Economy:     economy.NewService(s, perms, au, bus, locks, log),
		Jobs:        job.NewService(s, cat, factions, bus, locks, config.DefaultPayrollInterval, log),
	}, sessions, s, text, log)
	f.d.SetObserver(func(verb, outcome string) { f.outcomes = append(f.outcomes, verb+":"+outcome) })
	return f
}

// login creates a character with the given cash and logs it in.
func (f *fixture) login(t *testing.T, name string, cash int64) session.Actor {
	t.Helper()
	c := storagetest.Character(t, f.store, name, cash, 0)
	_, err := f.sessions.Login(context.Background(), c.Account, c.Name)
	require.NoError(t, err)
	a, ok := f.sessions.Get(c.ID)
	require.True(t, ok)
	return a
}

func (f *fixture) run(actor session.Actor, line string) command.Reply {
	return f.d.Execute(context.Background(), actor.ID, line)
}

func TestExecute_UnknownVerb(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "Anna_Lee", 0)

	r := f.run(a, "/fly")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Contains(t, r.Text, "/fly")
	assert.Equal(t, []string{"unknown:unknown"}, f.outcomes)
}

func TestExecute_RequiresLogin(t *testing.T) {
	f := newFixture(t)
	c := storagetest.Character(t, f.store, "Ghost_Rider", 0, 0)

	r := f.d.Execute(context.Background(), c.ID, "/balance")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Equal(t, []string{"balance:unauthenticated"}, f.outcomes)
}

func TestExecute_ShowsUsage(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "Anna_Lee", 0)

	r := f.run(a, "/pay Bob")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Equal(t, "Usage: /pay <player> <amount>", r.Text)
}

func TestExecute_Help(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "Anna_Lee", 0)

	r := f.run(a, "help")
	assert.Equal(t, session.StyleSuccess, r.Style)
	for _, verb := range []string{"/ban", "/pay", "/fcreate", "/buyvehicle", "/duty"} {
		assert.Contains(t, r.Text, verb)
	}
}

func TestPay(t *testing.T) {
	f := newFixture(t)
	anna := f.login(t, "Anna_Lee", 500)
	bob := storagetest.Character(t, f.store, "Bob_Smith", 0, 0)

	r := f.run(anna, "/pay bob_smith $200")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "You paid $200 to Bob_Smith.", r.Text)

	got, err := f.store.GetCharacter(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Cash)

	a, _ := f.sessions.Get(anna.ID)
	assert.Equal(t, int64(300), a.Cash)

	r = f.run(anna, "/pay Bob_Smith 1000")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Equal(t, []string{"pay:ok", "pay:insufficient_funds"}, f.outcomes)
}

func TestPay_UnknownPlayer(t *testing.T) {
	f := newFixture(t)
	anna := f.login(t, "Anna_Lee", 500)

	r := f.run(anna, "/pay Nobody 5")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Equal(t, `No player named "Nobody".`, r.Text)

	r = f.run(anna, "/pay Anna_Lee five")
	assert.Equal(t, `"five" is not a valid number.`, r.Text)
}

func TestModeration_NeedsRank(t *testing.T) {
	f := newFixture(t)
	anna := f.login(t, "Anna_Lee", 0)
	bob := f.login(t, "Bob_Smith", 0)

	r := f.run(anna, "/kick Bob_Smith spam")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Equal(t, apperr.Denied().Message, r.Text)

	require.NoError(t, f.perms.SetLevel(context.Background(), anna.ID, 3, permission.Ladder(3), 0))
	r = f.run(anna, "/ban #"+uintStr(bob.ID)+" 7d ban evasion")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.True(t, strings.HasPrefix(r.Text, "Bob_Smith was banned until "))

	r = f.run(anna, "/ban Bob_Smith forever griefing")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Contains(t, r.Text, "30m")
}

func TestReportFlow(t *testing.T) {
	f := newFixture(t)
	anna := f.login(t, "Anna_Lee", 0)
	admin := f.login(t, "Sam_Admin", 0)
	storagetest.Character(t, f.store, "Bob_Smith", 0, 0)
	require.NoError(t, f.perms.SetLevel(context.Background(), admin.ID, 1, permission.Ladder(1), 0))

	r := f.run(anna, "/report Bob_Smith cheating flying car near the docks")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)

	r = f.run(admin, "/reports")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Contains(t, r.Text, "cheating")

	r = f.run(admin, "/acceptreport 1")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	r = f.run(admin, "/closereport 1 warned the player")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "Report #1 closed.", r.Text)
}

func TestFactionFlow(t *testing.T) {
	f := newFixture(t)
	leader := f.login(t, "Tony_Vercetti", 0)
	recruit := f.login(t, "Lance_Vance", 0)

	r := f.run(leader, "/fcreate mafia VC Vice City Family")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "Faction Vice City Family founded. You are its leader.", r.Text)

	r = f.run(leader, "/finvite Lance_Vance")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)

	r = f.run(recruit, "/faccept")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "You joined Vice City Family.", r.Text)

	r = f.run(recruit, "/fmembers")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, 2, len(strings.Split(r.Text, "\n")))

	r = f.run(recruit, "/fkick Tony_Vercetti")
	assert.Equal(t, session.StyleError, r.Style)

	r = f.run(leader, "/wars")
	assert.Equal(t, "There are no active wars.", r.Text)

	rival := f.login(t, "Big_Smoke", 0)
	r = f.run(rival, "/fcreate gang GSF Grove Street")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)

	r = f.run(leader, "/war 2 turf")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)

	r = f.run(rival, "/wars")
	assert.True(t, strings.HasPrefix(r.Text, "Vice City Family vs Grove Street since "), r.Text)
	assert.True(t, strings.HasSuffix(r.Text, ": turf"), r.Text)
}

func TestVehicleFlow(t *testing.T) {
	f := newFixture(t)
	anna := f.login(t, "Anna_Lee", 5000)
	v := storagetest.Vehicle(t, f.store, "blista", 1000)
	f.vehicles.Assets().Track(models.AssetState{ID: v.ID, ForSale: true, Price: v.Price})
	id := uintStr(v.ID)

	r := f.run(anna, "/buyvehicle "+id)
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "You bought vehicle #"+id+" for $1000.", r.Text)

	r = f.run(anna, "/engine "+id)
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "Engine started.", r.Text)

	r = f.run(anna, "/myassets")
	assert.Equal(t, "vehicle #"+id, r.Text)

	r = f.run(anna, "/impound vehicle "+id+" parked on the runway")
	assert.Equal(t, session.StyleError, r.Style)

	r = f.run(anna, "/givekey boat "+id+" Anna_Lee")
	assert.Equal(t, session.StyleError, r.Style)
	assert.Contains(t, r.Text, "vehicle or property")
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	anna := f.login(t, "Anna_Lee", 0)

	r := f.run(anna, "/jobs")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Contains(t, r.Text, "taxi")

	r = f.run(anna, "/joinjob TAXI")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)

	r = f.run(anna, "/duty")
	require.Equal(t, session.StyleSuccess, r.Style, r.Text)
	assert.Equal(t, "You are now on duty.", r.Text)

	a, _ := f.sessions.Get(anna.ID)
	assert.Equal(t, "taxi", a.JobID)
}

func uintStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
