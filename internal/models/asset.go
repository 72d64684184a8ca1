package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssetClass names one instantiation of the ownership pattern.
type AssetClass string

const (
	AssetVehicle  AssetClass = "vehicle"
	AssetProperty AssetClass = "property"
)

const (
	KeyOwner  = "owner"
	KeyRenter = "renter"
	KeySpare  = "spare"
)

// Vehicle is an ownable vehicle. Price is its catalogue value.
type Vehicle struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Model        string         `gorm:"size:48;not null" json:"model"`
	Plate        string         `gorm:"size:16;index" json:"plate"`
	OwnerID      *uint          `gorm:"index" json:"owner_id"`
	ForSale      bool           `gorm:"not null;default:false" json:"for_sale"`
	Price        int64          `gorm:"not null" json:"price"`
	Impounded    bool           `gorm:"not null;default:false" json:"impounded"`
	Fuel         int            `gorm:"not null;default:100" json:"fuel"`
	EngineHealth int            `gorm:"not null;default:1000" json:"engine_health"`
	BodyHealth   int            `gorm:"not null;default:1000" json:"body_health"`
	EngineOn     bool           `gorm:"not null;default:false" json:"engine_on"`
	Locked       bool           `gorm:"not null;default:true" json:"locked"`
	Color        datatypes.JSON `json:"color"`
	Position     datatypes.JSON `json:"position"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Property is an ownable and optionally rentable building.
type Property struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"size:64;not null" json:"name"`
	Kind          string         `gorm:"size:24;not null;default:'house'" json:"kind"`
	OwnerID       *uint          `gorm:"index" json:"owner_id"`
	ForSale       bool           `gorm:"not null;default:false" json:"for_sale"`
	Price         int64          `gorm:"not null" json:"price"`
	Impounded     bool           `gorm:"not null;default:false" json:"impounded"`
	ForRent       bool           `gorm:"not null;default:false" json:"for_rent"`
	RentPrice     int64          `gorm:"not null;default:0" json:"rent_price"`
	RenterID      *uint          `gorm:"index" json:"renter_id"`
	RentExpiresAt *time.Time     `json:"rent_expires_at"`
	Locked        bool           `gorm:"not null;default:true" json:"locked"`
	Entrance      datatypes.JSON `json:"entrance"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// AssetState is the ownership-relevant projection shared by every asset class.
type AssetState struct {
	ID            uint
	OwnerID       *uint
	ForSale       bool
	Price         int64
	Impounded     bool
	ForRent       bool
	RentPrice     int64
	RenterID      *uint
	RentExpiresAt *time.Time
}

// AssetKey grants a character access to one asset.
type AssetKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	AssetClass AssetClass `gorm:"size:16;not null;uniqueIndex:idx_asset_holder" json:"asset_class"`
	AssetID    uint       `gorm:"not null;uniqueIndex:idx_asset_holder" json:"asset_id"`
	HolderID   uint       `gorm:"not null;uniqueIndex:idx_asset_holder;index" json:"holder_id"`
	Kind       string     `gorm:"size:8;not null" json:"kind"`
	CreatedAt  time.Time  `json:"created_at"`
}

var errBadKeyKind = errors.New("asset key kind must be owner, renter or spare")

// BeforeCreate rejects unknown key kinds.
func (k *AssetKey) BeforeCreate(tx *gorm.DB) error {
	switch k.Kind {
	case KeyOwner, KeyRenter, KeySpare:
		return nil
	default:
		return errBadKeyKind
	}
}
