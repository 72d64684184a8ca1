// Package vehicle adds fuel, repair, engine and door handling on top of the
// shared ownership engine.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/catalog"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/ownership"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Store is the vehicle part of the store adapter.
type Store interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id uint) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, ownerID *uint) ([]models.Vehicle, error)
	RefuelVehicle(ctx context.Context, vehicleID, payerID uint, units, maxFuel int, unitPrice int64) (added, fuel int, cash int64, err error)
	RepairVehicle(ctx context.Context, vehicleID, payerID uint, maxHealth int, costPerPoint int64) (cost, cash int64, err error)
	SetEngine(ctx context.Context, vehicleID uint, on bool) error
	SetLocked(ctx context.Context, class models.AssetClass, assetID uint, locked bool) error
	UpdateVehicleCondition(ctx context.Context, vehicleID uint, c storage.VehicleCondition) error
}

// Permissions answers admin capability questions.
type Permissions interface {
	HasPermission(actorID uint, capability string) bool
}

// Auditor appends admin actions.
type Auditor interface {
	Record(ctx context.Context, adminID uint, action string, targetID uint, details string)
}

// Policy is the ownership policy of vehicles: half the catalogue value back on sale.
var Policy = ownership.Policy{
	Class:        models.AssetVehicle,
	Noun:         "vehicle",
	SellPercent:  config.VehicleSellPercent,
	UnimpoundFee: config.UnimpoundFee,
}

// Service is the vehicle engine.
type Service struct {
	assets  *ownership.Engine
	store   Store
	perms   Permissions
	audit   Auditor
	catalog *catalog.Catalog
	events  events.Emitter
	locks   lock.Locker
	log     *zap.Logger
}

func NewService(assets *ownership.Engine, store Store, perms Permissions, audit Auditor, cat *catalog.Catalog, emitter events.Emitter, locks lock.Locker, log *zap.Logger) *Service {
	return &Service{
		assets:  assets,
		store:   store,
		perms:   perms,
		audit:   audit,
		catalog: cat,
		events:  emitter,
		locks:   locks,
		log:     log,
	}
}

// Assets exposes the ownership engine for purchase, sale and keys.
func (s *Service) Assets() *ownership.Engine { return s.assets }

func (s *Service) storeFailure(op string, vehicleID uint, err error) error {
	s.log.Error(op+" failed", zap.Uint("vehicle_id", vehicleID), zap.Error(err))
	return apperr.Store(op, err)
}

// usable checks that the actor holds a key to a vehicle that is not impounded.
func (s *Service) usable(actorID, vehicleID uint) error {
	st, ok := s.assets.State(vehicleID)
	if !ok {
		return apperr.NotFound("That vehicle does not exist.")
	}
	if !s.assets.HasKey(vehicleID, actorID) {
		return apperr.DeniedMsg("You do not have a key to that vehicle.")
	}
	if st.Impounded {
		return apperr.Conflict("That vehicle is impounded.")
	}
	return nil
}

func (s *Service) lockVehicle(ctx context.Context, vehicleID uint, actors ...uint) (lock.Release, error) {
	keys := []string{lock.Key(string(models.AssetVehicle), vehicleID)}
	for _, a := range actors {
		keys = append(keys, lock.Key("char", a))
	}
	release, err := lock.AcquireAll(ctx, s.locks, keys...)
	if err != nil {
		return nil, apperr.Store("lock vehicle", err)
	}
	return release, nil
}

// CreateListing puts a new catalogue vehicle up for sale. A zero price uses
// the catalogue price.
func (s *Service) CreateListing(ctx context.Context, adminID uint, model string, price int64, plate string, color datatypes.JSON) (*models.Vehicle, error) {
	if !s.perms.HasPermission(adminID, permission.ManageAssets) {
		return nil, apperr.Denied()
	}
	entry, ok := s.catalog.Vehicle(model)
	if !ok {
		return nil, apperr.InvalidInput("Unknown vehicle model %q.", model)
	}
	if price < 0 {
		return nil, apperr.InvalidInput("The price cannot be negative.")
	}
	if price == 0 {
		price = entry.Price
	}

	v := &models.Vehicle{
		Model:        entry.Model,
		Plate:        strings.ToUpper(strings.TrimSpace(plate)),
		ForSale:      true,
		Price:        price,
		Fuel:         config.MaxFuel,
		EngineHealth: config.MaxVehicleHealth,
		BodyHealth:   config.MaxVehicleHealth,
		Locked:       true,
		Color:        color,
	}
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, s.storeFailure("create vehicle", 0, err)
	}
	s.assets.Track(models.AssetState{ID: v.ID, ForSale: true, Price: v.Price})

	s.audit.Record(ctx, adminID, "create_vehicle", v.ID, fmt.Sprintf("%s for $%d", v.Model, v.Price))
	return v, nil
}

// Get loads a vehicle.
func (s *Service) Get(ctx context.Context, vehicleID uint) (*models.Vehicle, error) {
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("That vehicle does not exist.")
		}
		return nil, s.storeFailure("get vehicle", vehicleID, err)
	}
	return v, nil
}

// List returns live vehicles, optionally only those of one owner.
func (s *Service) List(ctx context.Context, ownerID *uint) ([]models.Vehicle, error) {
	out, err := s.store.ListVehicles(ctx, ownerID)
	if err != nil {
		return nil, s.storeFailure("list vehicles", 0, err)
	}
	return out, nil
}

// Refuel adds up to units of fuel and charges for what fit in the tank.
func (s *Service) Refuel(ctx context.Context, actorID, vehicleID uint, units int) (added int, cost int64, err error) {
	if units <= 0 || units > config.MaxFuel {
		return 0, 0, apperr.InvalidInput("You can buy between 1 and %d units of fuel.", config.MaxFuel)
	}
	release, err := s.lockVehicle(ctx, vehicleID, actorID)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	if err := s.usable(actorID, vehicleID); err != nil {
		return 0, 0, err
	}
	added, _, cash, err := s.store.RefuelVehicle(ctx, vehicleID, actorID, units, config.MaxFuel, config.FuelUnitPrice)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return 0, 0, apperr.Conflict("The tank is already full.")
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, 0, apperr.InsufficientFunds("You cannot afford that much fuel.")
		case errors.Is(err, storage.ErrNotFound):
			return 0, 0, apperr.NotFound("That vehicle does not exist.")
		}
		return 0, 0, s.storeFailure("refuel", vehicleID, err)
	}

	cost = int64(added) * config.FuelUnitPrice
	s.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: actorID, Cash: &cash})
	return added, cost, nil
}

// Repair restores engine and body health, charging per missing point.
func (s *Service) Repair(ctx context.Context, actorID, vehicleID uint) (int64, error) {
	release, err := s.lockVehicle(ctx, vehicleID, actorID)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := s.usable(actorID, vehicleID); err != nil {
		return 0, err
	}
	cost, cash, err := s.store.RepairVehicle(ctx, vehicleID, actorID, config.MaxVehicleHealth, config.RepairCostPerPoint)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return 0, apperr.Conflict("That vehicle does not need repairs.")
		case errors.Is(err, storage.ErrInsufficientFunds):
			return 0, apperr.InsufficientFunds("You cannot afford the repair.")
		case errors.Is(err, storage.ErrNotFound):
			return 0, apperr.NotFound("That vehicle does not exist.")
		}
		return 0, s.storeFailure("repair", vehicleID, err)
	}

	s.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: actorID, Cash: &cash})
	return cost, nil
}

// ToggleEngine starts or stops the engine. Starting needs fuel.
func (s *Service) ToggleEngine(ctx context.Context, actorID, vehicleID uint) (bool, error) {
	release, err := s.lockVehicle(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	defer release()

	if err := s.usable(actorID, vehicleID); err != nil {
		return false, err
	}
	v, err := s.Get(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	on := !v.EngineOn
	if on && v.Fuel <= 0 {
		return false, apperr.Conflict("The tank is empty.")
	}
	if err := s.store.SetEngine(ctx, vehicleID, on); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return false, apperr.Conflict("The engine will not start.")
		}
		return false, s.storeFailure("toggle engine", vehicleID, err)
	}

	s.events.Emit(ctx, events.TopicEngine, events.EngineToggled{VehicleID: vehicleID, ActorID: actorID, On: on})
	return on, nil
}

// ToggleLock locks or unlocks the doors.
func (s *Service) ToggleLock(ctx context.Context, actorID, vehicleID uint) (bool, error) {
	release, err := s.lockVehicle(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	defer release()

	if !s.assets.HasKey(vehicleID, actorID) {
		if _, ok := s.assets.State(vehicleID); !ok {
			return false, apperr.NotFound("That vehicle does not exist.")
		}
		return false, apperr.DeniedMsg("You do not have a key to that vehicle.")
	}
	v, err := s.Get(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	if err := s.store.SetLocked(ctx, models.AssetVehicle, vehicleID, !v.Locked); err != nil {
		return false, s.storeFailure("toggle vehicle lock", vehicleID, err)
	}
	return !v.Locked, nil
}

// UpdateCondition stores the physical state reported by the runtime.
func (s *Service) UpdateCondition(ctx context.Context, vehicleID uint, c storage.VehicleCondition) error {
	if c.Fuel < 0 || c.Fuel > config.MaxFuel ||
		c.EngineHealth < 0 || c.EngineHealth > config.MaxVehicleHealth ||
		c.BodyHealth < 0 || c.BodyHealth > config.MaxVehicleHealth {
		return apperr.InvalidInput("Vehicle condition out of range.")
	}
	if err := s.store.UpdateVehicleCondition(ctx, vehicleID, c); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("That vehicle does not exist.")
		}
		return s.storeFailure("update condition", vehicleID, err)
	}
	return nil
}
