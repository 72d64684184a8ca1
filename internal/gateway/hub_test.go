package gateway

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/command"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/localization"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Login(ctx context.Context, account, name string) (*session.Actor, error) {
	args := m.Called(ctx, account, name)
	a, _ := args.Get(0).(*session.Actor)
	return a, args.Error(1)
}

func (m *MockSessions) Logout(id uint) bool {
	return m.Called(id).Bool(0)
}

func (m *MockSessions) Get(id uint) (session.Actor, bool) {
	args := m.Called(id)
	return args.Get(0).(session.Actor), args.Bool(1)
}

func (m *MockSessions) ForEach(fn func(session.Actor)) {
	args := m.Called()
	for _, a := range args.Get(0).([]session.Actor) {
		fn(a)
	}
}

type MockCommands struct {
	mock.Mock
}

func (m *MockCommands) Execute(ctx context.Context, actorID uint, line string) command.Reply {
	return m.Called(ctx, actorID, line).Get(0).(command.Reply)
}

type MockVehicles struct {
	mock.Mock
}

func (m *MockVehicles) UpdateCondition(ctx context.Context, vehicleID uint, c storage.VehicleCondition) error {
	return m.Called(ctx, vehicleID, c).Error(0)
}

type mutes map[uint]models.Mute

func (m mutes) ActiveMute(id uint) (models.Mute, bool) {
	v, ok := m[id]
	return v, ok
}

type perms map[uint]bool

func (p perms) HasPermission(id uint, _ string) bool { return p[id] }

type factions map[uint]models.Faction

func (f factions) Faction(id uint) (models.Faction, bool) {
	v, ok := f[id]
	return v, ok
}

type fixture struct {
	hub      *Hub
	sessions *MockSessions
	commands *MockCommands
	vehicles *MockVehicles
	mutes    mutes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	text, err := localization.New()
	require.NoError(t, err)
	f := &fixture{sessions: new(MockSessions), commands: new(MockCommands), vehicles: new(MockVehicles), mutes: mutes{}}
	f.hub = NewHub(f.sessions, f.commands, f.mutes, perms{9: true}, factions{1: {Name: "Ballas"}, 2: {Name: "Vagos"}}, text, nil, zap.NewNop())
	f.hub.SetVehicles(f.vehicles)

	ctx, cancel := context.WithCancel(context.Background())
	go f.hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-f.hub.done
	})
	return f
}

// connect registers a client without a socket; frames land in Send.
func (f *fixture) connect() *Client {
	c := NewClient(f.hub, nil)
	f.hub.RegisterCh <- c
	return c
}

func (f *fixture) login(t *testing.T, c *Client, id uint, name string) {
	t.Helper()
	f.sessions.On("Login", mock.Anything, "acc", name).Return(&session.Actor{ID: id, Name: name}, nil).Once()
	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameLogin, Account: "acc", Name: name}}
	got := next(t, c)
	require.True(t, got.OK, got.Text)
}

func next(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case f := <-c.Send:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func TestHub_Login(t *testing.T) {
	f := newFixture(t)
	c := f.connect()

	f.sessions.On("Login", mock.Anything, "acc", "John_Doe").Return(&session.Actor{ID: 5, Name: "John_Doe", AdminLevel: 2}, nil)
	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameLogin, RequestID: "r1", Account: "acc", Name: "John_Doe"}}

	got := next(t, c)
	assert.Equal(t, FrameLoginResult, got.Type)
	assert.True(t, got.OK)
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, uint(5), got.ActorID)
	assert.Equal(t, 2, got.AdminLevel)
	assert.Equal(t, "Welcome back, John_Doe.", got.Text)
}

func TestHub_LoginRejected(t *testing.T) {
	f := newFixture(t)
	c := f.connect()

	f.sessions.On("Login", mock.Anything, "acc", "Banned_Guy").Return(nil, apperr.DeniedMsg("You are banned (permanent): cheating"))
	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameLogin, Account: "acc", Name: "Banned_Guy"}}

	got := next(t, c)
	assert.False(t, got.OK)
	assert.Equal(t, "You are banned (permanent): cheating", got.Text)
}

func TestHub_Command(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.login(t, c, 5, "John_Doe")

	f.commands.On("Execute", mock.Anything, uint(5), "/balance").Return(command.Reply{Text: "Cash: $1, bank: $2.", Style: session.StyleSuccess})
	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameCommand, RequestID: "r2", ActorID: 5, Text: "/balance"}}

	got := next(t, c)
	assert.Equal(t, FrameMessage, got.Type)
	assert.Equal(t, "r2", got.RequestID)
	assert.Equal(t, "Cash: $1, bank: $2.", got.Text)
	assert.Equal(t, session.StyleSuccess, got.Style)
}

func TestHub_CommandFromOtherConnectionIsRejected(t *testing.T) {
	f := newFixture(t)
	owner := f.connect()
	other := f.connect()
	f.login(t, owner, 5, "John_Doe")

	f.hub.IncomingCh <- envelope{client: other, frame: Frame{Type: FrameCommand, ActorID: 5, Text: "/pay Bob 100"}}

	got := next(t, other)
	assert.Equal(t, session.StyleError, got.Style)
	f.commands.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestHub_ChatMuteGate(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.login(t, c, 5, "John_Doe")
	f.sessions.On("Get", uint(5)).Return(session.Actor{ID: 5, Name: "John_Doe"}, true)

	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameChat, ActorID: 5, Text: " hello "}}
	got := next(t, c)
	assert.True(t, got.OK)
	assert.Equal(t, "John_Doe says: hello", got.Text)

	f.mutes[5] = models.Mute{TargetID: 5, ExpiresAt: time.Now().Add(time.Hour)}
	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameChat, ActorID: 5, Text: "hello again"}}
	got = next(t, c)
	assert.False(t, got.OK)
	assert.Contains(t, got.Text, "You are muted until")
}

func TestHub_ChatTruncatesOnRuneBoundary(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.login(t, c, 5, "John_Doe")
	f.sessions.On("Get", uint(5)).Return(session.Actor{ID: 5, Name: "John_Doe"}, true)

	f.hub.IncomingCh <- envelope{client: c, frame: Frame{Type: FrameChat, ActorID: 5, Text: "a" + strings.Repeat("é", 200)}}
	got := next(t, c)
	require.True(t, got.OK)
	assert.True(t, utf8.ValidString(got.Text))
	assert.Equal(t, "John_Doe says: a"+strings.Repeat("é", 127), got.Text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "", truncate("日本", 2))
}

func TestHub_VehicleState(t *testing.T) {
	f := newFixture(t)
	c := f.connect()

	stored := make(chan storage.VehicleCondition, 1)
	f.vehicles.On("UpdateCondition", mock.Anything, uint(42), mock.Anything).
		Run(func(args mock.Arguments) { stored <- args.Get(2).(storage.VehicleCondition) }).
		Return(nil)

	f.hub.IncomingCh <- envelope{client: c, frame: Frame{
		Type:         FrameVehicleState,
		VehicleID:    42,
		Fuel:         35,
		EngineHealth: 900,
		BodyHealth:   750,
		Position:     []byte(`{"x":1,"y":2,"z":3}`),
	}}

	select {
	case got := <-stored:
		assert.Equal(t, 35, got.Fuel)
		assert.Equal(t, 900, got.EngineHealth)
		assert.Equal(t, 750, got.BodyHealth)
		assert.JSONEq(t, `{"x":1,"y":2,"z":3}`, string(got.Position))
	case <-time.After(time.Second):
		t.Fatal("vehicle state not stored")
	}
}

func TestHub_DisconnectLogsOut(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.login(t, c, 5, "John_Doe")
	f.sessions.On("Logout", uint(5)).Return(true)

	f.hub.Disconnect(5, "bye")

	got := next(t, c)
	assert.Equal(t, FrameDisconnect, got.Type)
	assert.Equal(t, "bye", got.Reason)
	f.sessions.AssertCalled(t, "Logout", uint(5))

	_, hosted := f.hub.host(5)
	assert.False(t, hosted)
}

func TestHub_UnregisterLogsOutHostedActors(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.login(t, c, 5, "John_Doe")
	f.login(t, c, 6, "Jane_Doe")
	f.sessions.On("Logout", mock.Anything).Return(true)

	counts := make(chan [2]int, 1)
	f.hub.SetObserver(func(connections, actors int) { counts <- [2]int{connections, actors} })
	f.hub.UnregisterCh <- c

	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, [2]int{0, 0}, <-counts)
	f.sessions.AssertCalled(t, "Logout", uint(5))
	f.sessions.AssertCalled(t, "Logout", uint(6))
}

func TestHub_Broadcast(t *testing.T) {
	f := newFixture(t)
	a := f.connect()
	b := f.connect()
	f.login(t, a, 5, "John_Doe")

	f.hub.Broadcast("Server restart in 5 minutes.")

	for _, c := range []*Client{a, b} {
		got := next(t, c)
		assert.Equal(t, FrameBroadcast, got.Type)
		assert.Equal(t, "Server restart in 5 minutes.", got.Text)
	}
}

func TestSubscribe_Notifications(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.login(t, c, 5, "John_Doe")
	f.login(t, c, 9, "Staff_Member")

	bus := events.NewBus(zap.NewNop())
	f.hub.Subscribe(bus)
	ctx := context.Background()

	f.sessions.On("ForEach").Return([]session.Actor{{ID: 5}, {ID: 9, AdminLevel: 1}})
	bus.Emit(ctx, events.TopicReportCreated, events.ReportChanged{Report: models.Report{ID: 3, Reason: "cheating"}, ByID: 5})
	got := next(t, c)
	assert.Equal(t, uint(9), got.ActorID)
	assert.Equal(t, session.StyleAdmin, got.Style)
	assert.Equal(t, "New report #3 (cheating). Use /acceptreport 3.", got.Text)

	bus.Emit(ctx, events.TopicWarDeclared, events.WarChanged{War: models.FactionWar{FactionA: 1, FactionB: 2}})
	got = next(t, c)
	assert.Equal(t, FrameBroadcast, got.Type)
	assert.Equal(t, "Ballas has declared war on Vagos!", got.Text)

	f.sessions.On("Get", uint(9)).Return(session.Actor{ID: 9, Name: "Staff_Member"}, true)
	bus.Emit(ctx, events.TopicTransfer, events.Transferred{FromID: 9, ToID: 5, Amount: 50})
	got = next(t, c)
	assert.Equal(t, uint(5), got.ActorID)
	assert.Equal(t, "Staff_Member paid you $50.", got.Text)

	f.sessions.On("Logout", uint(5)).Return(true)
	bus.Emit(ctx, events.TopicKick, events.Kicked{TargetID: 5, AdminID: 9, Reason: "afk"})
	got = next(t, c)
	assert.Equal(t, FrameDisconnect, got.Type)
	assert.Equal(t, "You were kicked by an admin: afk", got.Reason)
}
