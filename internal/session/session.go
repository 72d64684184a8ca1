// Package session holds the logged-in actors. The cached Actor is a copy of
// the character row kept current by events; the row stays authoritative.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

// Style hints how the runtime should render a message.
type Style string

const (
	StyleInfo    Style = "info"
	StyleSuccess Style = "success"
	StyleError   Style = "error"
	StyleAdmin   Style = "admin"
	StyleFaction Style = "faction"
)

// Runtime is the part of the game-hosting runtime the engines may use.
type Runtime interface {
	SendMessage(actorID uint, text string, style Style)
	Disconnect(actorID uint, reason string)
	Broadcast(text string)
}

// Actor is a logged-in character.
type Actor struct {
	ID          uint
	Name        string
	AdminLevel  int
	FactionID   *uint
	FactionRank int
	JobID       string
	Cash        int64
	Bank        int64
}

// Store loads what a login needs.
type Store interface {
	GetCharacterByName(ctx context.Context, name string) (*models.Character, error)
	CreateCharacter(ctx context.Context, c *models.Character) error
	GetEmployment(ctx context.Context, charID uint) (*models.Employment, error)
}

// LoginGate rejects logins, e.g. of banned characters.
type LoginGate interface {
	CheckLogin(ctx context.Context, charID uint) error
}

// LoginGateFunc adapts a function to LoginGate. It lets the gate be built
// after the Manager that it needs.
type LoginGateFunc func(ctx context.Context, charID uint) error

func (f LoginGateFunc) CheckLogin(ctx context.Context, charID uint) error { return f(ctx, charID) }

// LevelSource reports the admin level of a character.
type LevelSource interface {
	Level(charID uint) int
}

// Manager owns the actor cache.
type Manager struct {
	store  Store
	gate   LoginGate
	levels LevelSource
	log    *zap.Logger

	mu     sync.RWMutex
	actors map[uint]*Actor
	byName map[string]uint
}

func NewManager(store Store, gate LoginGate, levels LevelSource, log *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		gate:   gate,
		levels: levels,
		log:    log,
		actors: make(map[uint]*Actor),
		byName: make(map[string]uint),
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Login loads or creates the named character of an account and caches it.
func (m *Manager) Login(ctx context.Context, account, name string) (*Actor, error) {
	name = strings.TrimSpace(name)
	if len(name) < 3 || len(name) > 48 {
		return nil, apperr.InvalidInput("Character names must be 3 to 48 characters long.")
	}

	c, err := m.store.GetCharacterByName(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c = &models.Character{Account: account, Name: name, Cash: config.StartingCash, Bank: config.StartingBank}
		if err := m.store.CreateCharacter(ctx, c); err != nil {
			m.log.Error("create character failed", zap.String("name", name), zap.Error(err))
			return nil, apperr.Store("create character", err)
		}
		m.log.Info("character created", zap.Uint("character_id", c.ID), zap.String("name", name))
	case err != nil:
		m.log.Error("load character failed", zap.String("name", name), zap.Error(err))
		return nil, apperr.Store("load character", err)
	case c.Account != account:
		return nil, apperr.DeniedMsg("That character belongs to another account.")
	}

	if err := m.gate.CheckLogin(ctx, c.ID); err != nil {
		return nil, err
	}

	a := &Actor{
		ID:          c.ID,
		Name:        c.Name,
		AdminLevel:  m.levels.Level(c.ID),
		FactionID:   c.FactionID,
		FactionRank: c.FactionRank,
		Cash:        c.Cash,
		Bank:        c.Bank,
	}
	if e, err := m.store.GetEmployment(ctx, c.ID); err == nil {
		a.JobID = e.JobID
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("load employment failed", zap.Uint("character_id", c.ID), zap.Error(err))
	}

	m.mu.Lock()
	m.actors[a.ID] = a
	m.byName[nameKey(a.Name)] = a.ID
	m.mu.Unlock()

	cp := *a
	return &cp, nil
}

// Logout drops the cached actor. It reports whether one was cached.
func (m *Manager) Logout(id uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[id]
	if !ok {
		return false
	}
	delete(m.byName, nameKey(a.Name))
	delete(m.actors, id)
	return true
}

// Get returns a copy of a logged-in actor.
func (m *Manager) Get(id uint) (Actor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[id]
	if !ok {
		return Actor{}, false
	}
	return *a, true
}

// LookupByName finds a logged-in actor case-insensitively.
func (m *Manager) LookupByName(name string) (Actor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[nameKey(name)]
	if !ok {
		return Actor{}, false
	}
	return *m.actors[id], true
}

// ForEach calls fn with a copy of every logged-in actor.
func (m *Manager) ForEach(fn func(Actor)) {
	m.mu.RLock()
	snapshot := make([]Actor, 0, len(m.actors))
	for _, a := range m.actors {
		snapshot = append(snapshot, *a)
	}
	m.mu.RUnlock()

	for _, a := range snapshot {
		fn(a)
	}
}

// Count returns the number of logged-in actors.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.actors)
}

func (m *Manager) update(id uint, fn func(*Actor)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[id]; ok {
		fn(a)
	}
}

// Subscribe keeps cached actors in step with the engines' events.
func (m *Manager) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TopicBalance, func(ctx context.Context, p any) error {
		ev := p.(events.BalanceChanged)
		m.update(ev.CharacterID, func(a *Actor) {
			if ev.Cash != nil {
				a.Cash = *ev.Cash
			}
			if ev.Bank != nil {
				a.Bank = *ev.Bank
			}
		})
		return nil
	})
	bus.Subscribe(events.TopicAdminLevel, func(ctx context.Context, p any) error {
		ev := p.(events.AdminLevelChanged)
		m.update(ev.CharacterID, func(a *Actor) { a.AdminLevel = ev.Level })
		return nil
	})

	joinOrRank := func(ctx context.Context, p any) error {
		ev := p.(events.FactionChanged)
		m.update(ev.TargetID, func(a *Actor) {
			fid := ev.FactionID
			a.FactionID = &fid
			a.FactionRank = ev.Rank
		})
		return nil
	}
	bus.Subscribe(events.TopicFactionCreated, joinOrRank)
	bus.Subscribe(events.TopicFactionJoined, joinOrRank)
	bus.Subscribe(events.TopicFactionRank, joinOrRank)
	bus.Subscribe(events.TopicFactionLeft, func(ctx context.Context, p any) error {
		ev := p.(events.FactionChanged)
		m.update(ev.TargetID, func(a *Actor) {
			a.FactionID = nil
			a.FactionRank = 0
		})
		return nil
	})
	bus.Subscribe(events.TopicFactionDisband, func(ctx context.Context, p any) error {
		ev := p.(events.FactionChanged)
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, a := range m.actors {
			if a.FactionID != nil && *a.FactionID == ev.FactionID {
				a.FactionID = nil
				a.FactionRank = 0
			}
		}
		return nil
	})
	bus.Subscribe(events.TopicJobChanged, func(ctx context.Context, p any) error {
		ev := p.(events.JobChanged)
		m.SetJob(ev.CharacterID, ev.JobID)
		return nil
	})
}

// SetJob updates the cached job of an actor.
func (m *Manager) SetJob(id uint, jobID string) {
	m.update(id, func(a *Actor) { a.JobID = jobID })
}
