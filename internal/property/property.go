// Package property adds listings, door locks and entry checks to the shared
// ownership engine. Rent lives in the ownership engine itself.
package property

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/ownership"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Store interface {
	CreateProperty(ctx context.Context, p *models.Property) error
	GetProperty(ctx context.Context, id uint) (*models.Property, error)
	ListProperties(ctx context.Context, ownerID *uint) ([]models.Property, error)
	SetLocked(ctx context.Context, class models.AssetClass, assetID uint, locked bool) error
}

type Permissions interface {
	HasPermission(actorID uint, capability string) bool
}

type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
}

// Policy is the ownership policy of properties.
var Policy = ownership.Policy{
	Class:        models.AssetProperty,
	Noun:         "property",
	SellPercent:  config.PropertySellPercent,
	Rentable:     true,
	RentPeriod:   config.RentPeriod,
	UnimpoundFee: config.UnimpoundFee,
}

var kinds = map[string]bool{"house": true, "apartment": true, "business": true, "garage": true}

type Service struct {
	assets *ownership.Engine
	store  Store
	perms  Permissions
	audit  Auditor
	locks  lock.Locker
	log    *zap.Logger
	now    func() time.Time
}

func NewService(assets *ownership.Engine, store Store, perms Permissions, audit Auditor, locks lock.Locker, log *zap.Logger) *Service {
	return &Service{
		assets: assets,
		store:  store,
		perms:  perms,
		audit:  audit,
		locks:  locks,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for rent expiry checks.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Assets() *ownership.Engine { return s.assets }

func (s *Service) storeFailure(op string, propertyID uint, err error) error {
	s.log.Error(op+" failed", zap.Uint("property_id", propertyID), zap.Error(err))
	return apperr.Store(op, err)
}

// CreateListing adds a property for sale.
func (s *Service) CreateListing(ctx context.Context, adminID uint, name, kind string, price int64, entrance datatypes.JSON) (*models.Property, error) {
	if !s.perms.HasPermission(adminID, permission.ManageAssets) {
		return nil, apperr.Denied()
	}
	name = strings.TrimSpace(name)
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = "house"
	}
	switch {
	case name == "" || len(name) > 64:
		return nil, apperr.InvalidInput("A property name must be 1 to 64 characters.")
	case !kinds[kind]:
		return nil, apperr.InvalidInput("Unknown property kind %q.", kind)
	case price <= 0:
		return nil, apperr.InvalidInput("The price must be positive.")
	}

	p := &models.Property{Name: name, Kind: kind, ForSale: true, Price: price, Locked: true, Entrance: entrance}
	if err := s.store.CreateProperty(ctx, p); err != nil {
		return nil, s.storeFailure("create property", 0, err)
	}
	s.assets.Track(models.AssetState{ID: p.ID, ForSale: true, Price: p.Price})

	s.audit.Record(ctx, adminID, "create_property", p.ID, fmt.Sprintf("%s (%s) for $%d", p.Name, p.Kind, p.Price))
	return p, nil
}

func (s *Service) Get(ctx context.Context, propertyID uint) (*models.Property, error) {
	p, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("That property does not exist.")
		}
		return nil, s.storeFailure("get property", propertyID, err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, ownerID *uint) ([]models.Property, error) {
	out, err := s.store.ListProperties(ctx, ownerID)
	if err != nil {
		return nil, s.storeFailure("list properties", 0, err)
	}
	return out, nil
}

// hasAccess reports whether actorID holds a key that currently works. A
// renter key stops working once the rent has lapsed.
func (s *Service) hasAccess(propertyID, actorID uint) bool {
	kind, ok := s.assets.KeyKind(propertyID, actorID)
	if !ok {
		return false
	}
	if kind != models.KeyRenter {
		return true
	}
	st, _ := s.assets.State(propertyID)
	return st.RentExpiresAt != nil && st.RentExpiresAt.After(s.now())
}

// ToggleLock locks or unlocks the door.
func (s *Service) ToggleLock(ctx context.Context, actorID, propertyID uint) (bool, error) {
	release, err := s.locks.Acquire(ctx, lock.Key(string(models.AssetProperty), propertyID))
	if err != nil {
		return false, apperr.Store("lock property", err)
	}
	defer release()

	st, ok := s.assets.State(propertyID)
	switch {
	case !ok:
		return false, apperr.NotFound("That property does not exist.")
	case !s.hasAccess(propertyID, actorID):
		return false, apperr.DeniedMsg("You do not have a key to that property.")
	case st.Impounded:
		return false, apperr.Conflict("That property has been seized.")
	}

	p, err := s.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	if err := s.store.SetLocked(ctx, models.AssetProperty, propertyID, !p.Locked); err != nil {
		return false, s.storeFailure("toggle property lock", propertyID, err)
	}
	return !p.Locked, nil
}

// CanEnter reports whether actorID may walk in: the door is open, or they
// hold a working key. Seized properties are closed to everyone.
func (s *Service) CanEnter(ctx context.Context, actorID, propertyID uint) (bool, error) {
	st, ok := s.assets.State(propertyID)
	if !ok {
		return false, apperr.NotFound("That property does not exist.")
	}
	if st.Impounded {
		return false, nil
	}
	if s.hasAccess(propertyID, actorID) {
		return true, nil
	}
	p, err := s.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return !p.Locked, nil
}
