// Package storagetest opens a throw-away sqlite store for tests.
package storagetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage"

	"github.com/stretchr/testify/require"
)

// New returns a migrated store backed by a sqlite file in t.TempDir().
func New(t testing.TB) *storage.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "rpworld_test.db"))
	db, err := storage.Open("sqlite", dsn)
	require.NoError(t, err, "open sqlite")
	require.NoError(t, storage.Migrate(db), "migrate")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return storage.NewStorageService(db)
}

// Character inserts a character with the given cash and bank balances.
func Character(t testing.TB, s *storage.Service, name string, cash, bank int64) *models.Character {
	t.Helper()

	c := &models.Character{Account: name, Name: name, Cash: cash, Bank: bank}
	require.NoError(t, s.CreateCharacter(context.Background(), c))
	return c
}

// Vehicle inserts an unowned vehicle listed for sale at price.
func Vehicle(t testing.TB, s *storage.Service, model string, price int64) *models.Vehicle {
	t.Helper()

	v := &models.Vehicle{Model: model, Plate: "TEST" + model, ForSale: true, Price: price, Fuel: 50, EngineHealth: 1000, BodyHealth: 1000}
	require.NoError(t, s.CreateVehicle(context.Background(), v))
	return v
}

// Property inserts an unowned property listed for sale at price.
func Property(t testing.TB, s *storage.Service, name string, price int64) *models.Property {
	t.Helper()

	p := &models.Property{Name: name, Kind: "house", ForSale: true, Price: price}
	require.NoError(t, s.CreateProperty(context.Background(), p))
	return p
}
