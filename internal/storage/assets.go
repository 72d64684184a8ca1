package storage

import (
	"context"
	"fmt"
	"time"

	"rpworld/backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func assetModel(class models.AssetClass) (any, error) {
	switch class {
	case models.AssetVehicle:
		return &models.Vehicle{}, nil
	case models.AssetProperty:
		return &models.Property{}, nil
	default:
		return nil, fmt.Errorf("unknown asset class %q", class)
	}
}

func assetRef(class models.AssetClass, id uint) string {
	return fmt.Sprintf("%s:%d", class, id)
}

func assetPrice(tx *gorm.DB, model any, id uint) (int64, error) {
	var price int64
	res := tx.Model(model).Where("id = ?", id).Select("price").Scan(&price)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return price, nil
}

// ListAssetStates loads the ownership projection of every live asset of a class.
func (s *Service) ListAssetStates(ctx context.Context, class models.AssetClass) ([]models.AssetState, error) {
	model, err := assetModel(class)
	if err != nil {
		return nil, err
	}
	cols := "id, owner_id, for_sale, price, impounded"
	if class == models.AssetProperty {
		cols += ", for_rent, rent_price, renter_id, rent_expires_at"
	}
	var out []models.AssetState
	err = s.db(ctx).Model(model).Select(cols).Order("id").Scan(&out).Error
	return out, err
}

// ListKeys returns every key of one asset class.
func (s *Service) ListKeys(ctx context.Context, class models.AssetClass) ([]models.AssetKey, error) {
	var out []models.AssetKey
	err := s.db(ctx).Where("asset_class = ?", class).Order("id").Find(&out).Error
	return out, err
}

// ClaimAsset hands an unowned, listed asset to buyer, charges its price in
// cash and issues the owner key, all in one transaction. Returns the price
// paid and the buyer's remaining cash.
func (s *Service) ClaimAsset(ctx context.Context, class models.AssetClass, assetID, buyerID uint) (price, cash int64, err error) {
	model, err := assetModel(class)
	if err != nil {
		return 0, 0, err
	}
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(model).
			Where("id = ? AND owner_id IS NULL AND for_sale = ? AND impounded = ?", assetID, true, false).
			UpdateColumns(map[string]any{
				"owner_id":   buyerID,
				"for_sale":   false,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, model, assetID)
		}
		if price, err = assetPrice(tx, model, assetID); err != nil {
			return err
		}
		if cash, err = debit(tx, buyerID, models.AccountCash, price, models.TxAssetPurchase, assetRef(class, assetID)); err != nil {
			return err
		}
		if err := tx.Where("asset_class = ? AND asset_id = ?", class, assetID).Delete(&models.AssetKey{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.AssetKey{AssetClass: class, AssetID: assetID, HolderID: buyerID, Kind: models.KeyOwner}).Error
	})
	return price, cash, err
}

// ReleaseAsset returns an owned asset to the market, pays the seller
// percent of its price and drops every key and rental on it.
func (s *Service) ReleaseAsset(ctx context.Context, class models.AssetClass, assetID, sellerID uint, percent int64) (payout, cash int64, err error) {
	model, err := assetModel(class)
	if err != nil {
		return 0, 0, err
	}
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		price, err := assetPrice(tx, model, assetID)
		if err != nil {
			return err
		}
		updates := map[string]any{
			"owner_id":   nil,
			"for_sale":   true,
			"updated_at": time.Now().UTC(),
		}
		if class == models.AssetProperty {
			updates["for_rent"] = false
			updates["renter_id"] = nil
			updates["rent_expires_at"] = nil
		}
		res := tx.Model(model).
			Where("id = ? AND owner_id = ? AND impounded = ?", assetID, sellerID, false).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if err := tx.Where("asset_class = ? AND asset_id = ?", class, assetID).Delete(&models.AssetKey{}).Error; err != nil {
			return err
		}
		payout = price * percent / 100
		cash, err = credit(tx, sellerID, models.AccountCash, payout, models.TxAssetSale, assetRef(class, assetID))
		return err
	})
	return payout, cash, err
}

// InsertKey adds a key unless the holder already has one for the asset.
func (s *Service) InsertKey(ctx context.Context, key *models.AssetKey) error {
	model, err := assetModel(key.AssetClass)
	if err != nil {
		return err
	}
	return s.transaction(ctx, func(tx *gorm.DB) error {
		ok, err := exists(tx, model, key.AssetID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		var n int64
		if err := tx.Model(&models.AssetKey{}).
			Where("asset_class = ? AND asset_id = ? AND holder_id = ?", key.AssetClass, key.AssetID, key.HolderID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		return tx.Create(key).Error
	})
}

// DeleteKey removes a non-owner key. Owner keys never match.
func (s *Service) DeleteKey(ctx context.Context, class models.AssetClass, assetID, holderID uint) error {
	res := s.db(ctx).
		Where("asset_class = ? AND asset_id = ? AND holder_id = ? AND kind <> ?", class, assetID, holderID, models.KeyOwner).
		Delete(&models.AssetKey{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RentResult is what RentProperty changed.
type RentResult struct {
	Rent       int64
	RenterCash int64
	OwnerID    *uint
	OwnerBank  int64
	Key        models.AssetKey
}

// RentProperty rents a property to renterID until the given time. It only
// matches properties that are rentable and free (never rented or lapsed).
func (s *Service) RentProperty(ctx context.Context, propertyID, renterID uint, now, until time.Time) (*RentResult, error) {
	var out RentResult
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Property{}).
			Where("id = ? AND for_rent = ? AND for_sale = ? AND impounded = ?", propertyID, true, false, false).
			Where("renter_id IS NULL OR rent_expires_at IS NULL OR rent_expires_at <= ?", now).
			Where("owner_id IS NULL OR owner_id <> ?", renterID).
			UpdateColumns(map[string]any{
				"renter_id":       renterID,
				"rent_expires_at": until,
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Property{}, propertyID)
		}
		var p models.Property
		if err := first(tx, &p, "id = ?", propertyID); err != nil {
			return err
		}
		out.Rent = p.RentPrice
		out.OwnerID = p.OwnerID

		// a lapsed renter loses access, and any spare key of the new renter is upgraded
		if err := tx.Where("asset_class = ? AND asset_id = ? AND kind <> ? AND (kind = ? OR holder_id = ?)",
			models.AssetProperty, propertyID, models.KeyOwner, models.KeyRenter, renterID).
			Delete(&models.AssetKey{}).Error; err != nil {
			return err
		}
		var err error
		if out.RenterCash, err = debit(tx, renterID, models.AccountCash, p.RentPrice, models.TxRent, assetRef(models.AssetProperty, propertyID)); err != nil {
			return err
		}
		if p.OwnerID != nil {
			if out.OwnerBank, err = credit(tx, *p.OwnerID, models.AccountBank, p.RentPrice, models.TxRentIncome, assetRef(models.AssetProperty, propertyID)); err != nil {
				return err
			}
		}
		out.Key = models.AssetKey{AssetClass: models.AssetProperty, AssetID: propertyID, HolderID: renterID, Kind: models.KeyRenter}
		return tx.Create(&out.Key).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetRentOffer lets the owner open or close a property for rent.
func (s *Service) SetRentOffer(ctx context.Context, propertyID, ownerID uint, forRent bool, price int64) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Property{}).
			Where("id = ? AND owner_id = ? AND impounded = ?", propertyID, ownerID, false).
			UpdateColumns(map[string]any{"for_rent": forRent, "rent_price": price, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Property{}, propertyID)
		}
		return nil
	})
}

// SetImpounded flips the impound flag. Matching the current value is a conflict.
func (s *Service) SetImpounded(ctx context.Context, class models.AssetClass, assetID uint, impounded bool) error {
	model, err := assetModel(class)
	if err != nil {
		return err
	}
	updates := map[string]any{"impounded": impounded, "updated_at": time.Now().UTC()}
	if impounded && class == models.AssetVehicle {
		updates["engine_on"] = false
	}
	return s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(model).Where("id = ? AND impounded = ?", assetID, !impounded).UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, model, assetID)
		}
		return nil
	})
}

// UnimpoundPaid clears the impound flag and charges payer the fee.
func (s *Service) UnimpoundPaid(ctx context.Context, class models.AssetClass, assetID, payerID uint, fee int64) (cash int64, err error) {
	model, err := assetModel(class)
	if err != nil {
		return 0, err
	}
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(model).Where("id = ? AND impounded = ?", assetID, true).
			UpdateColumns(map[string]any{"impounded": false, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, model, assetID)
		}
		cash, err = debit(tx, payerID, models.AccountCash, fee, models.TxImpoundFee, assetRef(class, assetID))
		return err
	})
	return cash, err
}

// SetLocked sets the door lock of an asset.
func (s *Service) SetLocked(ctx context.Context, class models.AssetClass, assetID uint, locked bool) error {
	model, err := assetModel(class)
	if err != nil {
		return err
	}
	res := s.db(ctx).Model(model).Where("id = ?", assetID).UpdateColumn("locked", locked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateVehicle inserts a vehicle row.
func (s *Service) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	return s.db(ctx).Create(v).Error
}

// GetVehicle returns a live vehicle or ErrNotFound.
func (s *Service) GetVehicle(ctx context.Context, id uint) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := first(s.db(ctx), &v, "id = ?", id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVehicles returns live vehicles, optionally only those of one owner.
func (s *Service) ListVehicles(ctx context.Context, ownerID *uint) ([]models.Vehicle, error) {
	q := s.db(ctx).Order("id")
	if ownerID != nil {
		q = q.Where("owner_id = ?", *ownerID)
	}
	var out []models.Vehicle
	err := q.Find(&out).Error
	return out, err
}

// RefuelVehicle adds up to units of fuel, capped at maxFuel, and charges
// payer unitPrice per unit actually added.
func (s *Service) RefuelVehicle(ctx context.Context, vehicleID, payerID uint, units, maxFuel int, unitPrice int64) (added, fuel int, cash int64, err error) {
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		var v models.Vehicle
		if err := first(tx, &v, "id = ?", vehicleID); err != nil {
			return err
		}
		if v.Impounded || v.Fuel >= maxFuel {
			return ErrConflict
		}
		added = min(units, maxFuel-v.Fuel)
		res := tx.Model(&models.Vehicle{}).Where("id = ? AND fuel = ?", vehicleID, v.Fuel).UpdateColumn("fuel", v.Fuel+added)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		fuel = v.Fuel + added
		cash, err = debit(tx, payerID, models.AccountCash, int64(added)*unitPrice, models.TxFuel, assetRef(models.AssetVehicle, vehicleID))
		return err
	})
	return added, fuel, cash, err
}

// RepairVehicle restores engine and body health to maxHealth and charges
// costPerPoint for every missing point.
func (s *Service) RepairVehicle(ctx context.Context, vehicleID, payerID uint, maxHealth int, costPerPoint int64) (cost, cash int64, err error) {
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		var v models.Vehicle
		if err := first(tx, &v, "id = ?", vehicleID); err != nil {
			return err
		}
		damage := (maxHealth - v.EngineHealth) + (maxHealth - v.BodyHealth)
		if v.Impounded || damage <= 0 {
			return ErrConflict
		}
		res := tx.Model(&models.Vehicle{}).
			Where("id = ? AND engine_health = ? AND body_health = ?", vehicleID, v.EngineHealth, v.BodyHealth).
			UpdateColumns(map[string]any{"engine_health": maxHealth, "body_health": maxHealth})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		cost = int64(damage) * costPerPoint
		cash, err = debit(tx, payerID, models.AccountCash, cost, models.TxRepair, assetRef(models.AssetVehicle, vehicleID))
		return err
	})
	return cost, cash, err
}

// SetEngine starts or stops an engine. Starting needs fuel and no impound.
func (s *Service) SetEngine(ctx context.Context, vehicleID uint, on bool) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		q := tx.Model(&models.Vehicle{}).Where("id = ?", vehicleID)
		if on {
			q = q.Where("impounded = ? AND fuel > 0", false)
		}
		res := q.UpdateColumn("engine_on", on)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missOrConflict(tx, &models.Vehicle{}, vehicleID)
		}
		return nil
	})
}

// VehicleCondition is the physical state reported by the game runtime.
type VehicleCondition struct {
	Fuel         int
	EngineHealth int
	BodyHealth   int
	Position     datatypes.JSON
}

// UpdateVehicleCondition stores runtime-reported physical state.
func (s *Service) UpdateVehicleCondition(ctx context.Context, vehicleID uint, c VehicleCondition) error {
	updates := map[string]any{
		"fuel":          c.Fuel,
		"engine_health": c.EngineHealth,
		"body_health":   c.BodyHealth,
	}
	if len(c.Position) > 0 {
		updates["position"] = c.Position
	}
	if c.Fuel == 0 {
		updates["engine_on"] = false
	}
	res := s.db(ctx).Model(&models.Vehicle{}).Where("id = ?", vehicleID).UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateProperty inserts a property row.
func (s *Service) CreateProperty(ctx context.Context, p *models.Property) error {
	return s.db(ctx).Create(p).Error
}

// GetProperty returns a live property or ErrNotFound.
func (s *Service) GetProperty(ctx context.Context, id uint) (*models.Property, error) {
	var p models.Property
	if err := first(s.db(ctx), &p, "id = ?", id); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProperties returns live properties, optionally only those of one owner.
func (s *Service) ListProperties(ctx context.Context, ownerID *uint) ([]models.Property, error) {
	q := s.db(ctx).Order("id")
	if ownerID != nil {
		q = q.Where("owner_id = ?", *ownerID)
	}
	var out []models.Property
	err := q.Find(&out).Error
	return out, err
}
