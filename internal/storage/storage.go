// Package storage is the persistent store adapter. Every statement is
// parameterized; conditional writes report zero affected rows as ErrConflict
// so callers can reject lost-update races instead of overwriting state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rpworld/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrConflict means a conditional write matched no rows.
	ErrConflict = errors.New("storage: conditional write matched no rows")
	// ErrInsufficientFunds means a conditional debit matched no rows.
	ErrInsufficientFunds = errors.New("storage: insufficient funds")
	// ErrFull means a capacity limit such as a faction member cap was reached.
	ErrFull = errors.New("storage: capacity reached")
)

// Service wraps the gorm handle. It holds no cached state.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Open connects to postgres or to a pure-Go sqlite file.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func (s *Service) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}

// first loads one row and maps gorm's not-found error to ErrNotFound.
func first(tx *gorm.DB, dest any, query string, args ...any) error {
	err := tx.Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func exists(tx *gorm.DB, model any, id uint) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// missOrConflict resolves a zero-row conditional write into ErrNotFound or ErrConflict.
func missOrConflict(tx *gorm.DB, model any, id uint) error {
	ok, err := exists(tx, model, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrConflict
}
