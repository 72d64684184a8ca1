// Package gateway bridges the game-hosting runtime to the engines over a
// websocket. It implements session.Runtime for everything the engines want
// to tell players.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/command"
	"rpworld/backend/internal/localization"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// BroadcastChannel is the redis channel that fans broadcasts out to every
// backend process.
const BroadcastChannel = "rpworld:broadcast"

// maxChatLength is in bytes.
const maxChatLength = 256

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

type Sessions interface {
	Login(ctx context.Context, account, name string) (*session.Actor, error)
	Logout(id uint) bool
	Get(id uint) (session.Actor, bool)
	ForEach(fn func(session.Actor))
}

type Commands interface {
	Execute(ctx context.Context, actorID uint, line string) command.Reply
}

// MuteGate reports active mutes.
type MuteGate interface {
	ActiveMute(targetID uint) (models.Mute, bool)
}

type Permissions interface {
	HasPermission(actorID uint, capability string) bool
}

// Factions resolves faction names for war announcements.
type Factions interface {
	Faction(id uint) (models.Faction, bool)
}

// Vehicles stores the vehicle state the runtime reports.
type Vehicles interface {
	UpdateCondition(ctx context.Context, vehicleID uint, c storage.VehicleCondition) error
}

type envelope struct {
	client *Client
	frame  Frame
}

// Hub owns the runtime connections and the actor-to-connection routing.
type Hub struct {
	RegisterCh   chan *Client
	UnregisterCh chan *Client
	IncomingCh   chan envelope

	sessions Sessions
	commands Commands
	mutes    MuteGate
	perms    Permissions
	factions Factions
	vehicles Vehicles
	text     *localization.Localizer
	redis    *redis.Client
	log      *zap.Logger
	observe  func(connections, actors int)

	done chan struct{}

	mu      sync.RWMutex
	clients map[string]*Client
	hosts   map[uint]*Client
}

// NewHub builds a hub. rdb may be nil; broadcasts then stay in this process.
func NewHub(sessions Sessions, commands Commands, mutes MuteGate, perms Permissions, factions Factions, text *localization.Localizer, rdb *redis.Client, log *zap.Logger) *Hub {
	return &Hub{
		RegisterCh:   make(chan *Client),
		UnregisterCh: make(chan *Client),
		IncomingCh:   make(chan envelope),
		sessions:     sessions,
		commands:     commands,
		mutes:        mutes,
		perms:        perms,
		factions:     factions,
		text:         text,
		redis:        rdb,
		log:          log,
		done:         make(chan struct{}),
		clients:      make(map[string]*Client),
		hosts:        make(map[uint]*Client),
	}
}

// SetObserver is called with the connection and hosted-actor counts after
// every change.
func (h *Hub) SetObserver(fn func(connections, actors int)) { h.observe = fn }

// SetVehicles enables vehicle_state frames. Without it they are dropped.
func (h *Hub) SetVehicles(v Vehicles) { h.vehicles = v }

func (h *Hub) t(key string, args ...any) string {
	return h.text.Format(localization.DefaultLang, key, args...)
}

// Run serves the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var pubsub <-chan *redis.Message
	if h.redis != nil {
		ps := h.redis.Subscribe(ctx, BroadcastChannel)
		defer ps.Close()
		pubsub = ps.Channel()
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.RegisterCh:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			h.log.Info("runtime connected", zap.String("client_id", c.ID))
			h.changed()

		case c := <-h.UnregisterCh:
			h.unregister(c)

		case in := <-h.IncomingCh:
			h.handle(ctx, in.client, in.frame)

		case msg, ok := <-pubsub:
			if !ok {
				pubsub = nil
				continue
			}
			var f Frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				h.log.Warn("bad broadcast payload", zap.Error(err))
				continue
			}
			h.sendAll(f)
		}
	}
}

// deliver hands a frame to the hub loop. It reports false once the hub has stopped.
func (h *Hub) deliver(in envelope) bool {
	select {
	case h.IncomingCh <- in:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterLater(c *Client) {
	select {
	case h.UnregisterCh <- c:
	case <-h.done:
	}
}

// unregister drops a connection and logs out every actor it hosted.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	var orphans []uint
	for id, host := range h.hosts {
		if host == c {
			orphans = append(orphans, id)
			delete(h.hosts, id)
		}
	}
	close(c.Send)
	h.mu.Unlock()

	for _, id := range orphans {
		h.sessions.Logout(id)
	}
	h.log.Info("runtime disconnected", zap.String("client_id", c.ID), zap.Int("actors_logged_out", len(orphans)))
	h.changed()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.Send)
		delete(h.clients, id)
	}
	h.hosts = make(map[uint]*Client)
}

func (h *Hub) changed() {
	if h.observe == nil {
		return
	}
	h.mu.RLock()
	connections, actors := len(h.clients), len(h.hosts)
	h.mu.RUnlock()
	h.observe(connections, actors)
}

// enqueue never blocks. A runtime that cannot keep up is disconnected and
// reconnects with a clean slate.
func (h *Hub) enqueue(c *Client, f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.ID] != c {
		return
	}
	h.trySend(c, f)
}

// trySend needs h.mu held so Send cannot be closed underneath it.
func (h *Hub) trySend(c *Client, f Frame) {
	select {
	case c.Send <- f:
	default:
		h.log.Warn("runtime send buffer full, dropping connection", zap.String("client_id", c.ID))
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
}

func (h *Hub) host(actorID uint) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.hosts[actorID]
	return c, ok
}

func (h *Hub) sendAll(f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.trySend(c, f)
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, f Frame) {
	switch f.Type {
	case FrameLogin:
		h.login(ctx, c, f)
	case FrameLogout:
		if host, ok := h.host(f.ActorID); ok && host == c {
			h.mu.Lock()
			delete(h.hosts, f.ActorID)
			h.mu.Unlock()
			h.sessions.Logout(f.ActorID)
			h.changed()
		}
	case FrameCommand:
		if !h.hosted(c, f) {
			return
		}
		reply := h.commands.Execute(ctx, f.ActorID, f.Text)
		h.enqueue(c, Frame{Type: FrameMessage, RequestID: f.RequestID, ActorID: f.ActorID, Text: reply.Text, Style: reply.Style})
	case FrameChat:
		if !h.hosted(c, f) {
			return
		}
		h.enqueue(c, h.chat(f))
	case FrameVehicleState:
		h.vehicleState(ctx, c, f)
	default:
		h.log.Warn("unknown frame type", zap.String("client_id", c.ID), zap.String("type", f.Type))
	}
}

// hosted rejects frames for actors this connection did not log in.
func (h *Hub) hosted(c *Client, f Frame) bool {
	if host, ok := h.host(f.ActorID); ok && host == c {
		return true
	}
	h.enqueue(c, Frame{Type: FrameMessage, RequestID: f.RequestID, ActorID: f.ActorID, Text: h.t("cmd.not_logged_in"), Style: session.StyleError})
	return false
}

func (h *Hub) vehicleState(ctx context.Context, c *Client, f Frame) {
	if h.vehicles == nil {
		return
	}
	err := h.vehicles.UpdateCondition(ctx, f.VehicleID, storage.VehicleCondition{
		Fuel:         f.Fuel,
		EngineHealth: f.EngineHealth,
		BodyHealth:   f.BodyHealth,
		Position:     datatypes.JSON(f.Position),
	})
	if err != nil {
		h.log.Warn("vehicle state rejected", zap.String("client_id", c.ID), zap.Uint("vehicle_id", f.VehicleID), zap.Error(err))
	}
}

func (h *Hub) login(ctx context.Context, c *Client, f Frame) {
	actor, err := h.sessions.Login(ctx, f.Account, f.Name)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindStore {
			h.log.Error("login failed", zap.String("name", f.Name), zap.Error(err))
		}
		h.enqueue(c, Frame{Type: FrameLoginResult, RequestID: f.RequestID, Name: f.Name, Text: apperr.UserMessage(err)})
		return
	}

	h.mu.Lock()
	h.hosts[actor.ID] = c
	h.mu.Unlock()
	h.changed()

	h.enqueue(c, Frame{
		Type:       FrameLoginResult,
		RequestID:  f.RequestID,
		OK:         true,
		ActorID:    actor.ID,
		Name:       actor.Name,
		AdminLevel: actor.AdminLevel,
		Text:       h.t("login.welcome", actor.Name),
	})
}

// chat applies the mute gate and formats the line. Delivery to nearby
// players is up to the runtime.
func (h *Hub) chat(f Frame) Frame {
	out := Frame{Type: FrameChatResult, RequestID: f.RequestID, ActorID: f.ActorID}
	if m, muted := h.mutes.ActiveMute(f.ActorID); muted {
		out.Text = h.t("mod.you_are_muted", m.ExpiresAt.Format(time.RFC1123))
		out.Style = session.StyleError
		return out
	}
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return out
	}
	text = truncate(text, maxChatLength)
	name := f.Name
	if a, ok := h.sessions.Get(f.ActorID); ok {
		name = a.Name
	}
	out.OK = true
	out.Name = name
	out.Text = h.t("chat.format", name, text)
	return out
}

// SendMessage delivers text to one actor. Offline actors are skipped.
func (h *Hub) SendMessage(actorID uint, text string, style session.Style) {
	if c, ok := h.host(actorID); ok {
		h.enqueue(c, Frame{Type: FrameMessage, ActorID: actorID, Text: text, Style: style})
	}
}

// Disconnect asks the runtime to drop an actor and logs the actor out here.
func (h *Hub) Disconnect(actorID uint, reason string) {
	h.mu.Lock()
	c, hosted := h.hosts[actorID]
	delete(h.hosts, actorID)
	h.mu.Unlock()
	if hosted {
		h.enqueue(c, Frame{Type: FrameDisconnect, ActorID: actorID, Reason: reason})
	}
	if h.sessions.Logout(actorID) || hosted {
		h.changed()
	}
}

// Broadcast reaches every runtime connected to any backend process.
func (h *Hub) Broadcast(text string) {
	f := Frame{Type: FrameBroadcast, Text: text, Style: session.StyleInfo}
	if h.redis == nil {
		h.sendAll(f)
		return
	}
	payload, err := json.Marshal(f)
	if err != nil {
		h.log.Error("encode broadcast", zap.Error(err))
		return
	}
	if err := h.redis.Publish(context.Background(), BroadcastChannel, payload).Err(); err != nil {
		h.log.Warn("publish broadcast failed, delivering locally", zap.Error(err))
		h.sendAll(f)
	}
}

var _ session.Runtime = (*Hub)(nil)
