package job_test

import (
	"context"
	"testing"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/catalog"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/job"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/storage"
	"rpworld/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type bonuses map[uint]int64

func (b bonuses) SalaryBonus(charID uint) int64 { return b[charID] }

type fixture struct {
	store *storage.Service
	svc   *job.Service
	bus   *events.Bus
	paid  []events.SalaryPaid
}

func newFixture(t *testing.T, bonus bonuses) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	f := &fixture{store: storagetest.New(t), bus: events.NewBus(zap.NewNop())}
	f.bus.Subscribe(events.TopicSalaryPaid, func(ctx context.Context, p any) error {
		f.paid = append(f.paid, p.(events.SalaryPaid))
		return nil
	})
	f.svc = job.NewService(f.store, cat, bonus, f.bus, lock.NewKeyedMutex(), config.DefaultPayrollInterval, zap.NewNop())
	return f
}

func TestJoinQuit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := storagetest.Character(t, f.store, "Worker", 0, 0)

	var changes []events.JobChanged
	f.bus.Subscribe(events.TopicJobChanged, func(ctx context.Context, p any) error {
		changes = append(changes, p.(events.JobChanged))
		return nil
	})

	_, err := f.svc.Join(ctx, c.ID, "astronaut")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	j, err := f.svc.Join(ctx, c.ID, "Trucker")
	require.NoError(t, err)
	assert.Equal(t, "trucker", j.ID)
	_, err = f.svc.Join(ctx, c.ID, "taxi")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, f.svc.Quit(ctx, c.ID))
	assert.ErrorIs(t, f.svc.Quit(ctx, c.ID), apperr.ErrConflict)
	_, err = f.svc.Employment(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.Len(t, changes, 2)
	assert.Equal(t, "trucker", changes[0].JobID)
	assert.Empty(t, changes[1].JobID)
}

func TestToggleDuty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := storagetest.Character(t, f.store, "Worker", 0, 0)

	_, err := f.svc.ToggleDuty(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Join(ctx, c.ID, "medic")
	require.NoError(t, err)
	on, err := f.svc.ToggleDuty(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = f.svc.ToggleDuty(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestRunPayroll(t *testing.T) {
	f := newFixture(t, bonuses{})
	ctx := context.Background()
	onDuty := storagetest.Character(t, f.store, "OnDuty", 0, 0)
	offDuty := storagetest.Character(t, f.store, "OffDuty", 0, 0)
	ranked := storagetest.Character(t, f.store, "Ranked", 0, 0)
	f.svc = job.NewService(f.store, mustCatalog(t), bonuses{ranked.ID: 100}, f.bus, lock.NewKeyedMutex(), time.Hour, zap.NewNop())

	start := time.Now().UTC()
	f.svc.SetClock(func() time.Time { return start })
	for _, id := range []uint{onDuty.ID, offDuty.ID, ranked.ID} {
		_, err := f.svc.Join(ctx, id, "trucker")
		require.NoError(t, err)
	}
	for _, id := range []uint{onDuty.ID, ranked.ID} {
		_, err := f.svc.ToggleDuty(ctx, id)
		require.NoError(t, err)
	}

	res, err := f.svc.RunPayroll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Paid)
	assert.Equal(t, int64(450+550), res.Total)

	res, err = f.svc.RunPayroll(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Paid, "second sweep in the same period pays nothing")
	assert.Equal(t, 2, res.Skipped)

	f.svc.SetClock(func() time.Time { return start.Add(time.Hour - time.Second) })
	res, err = f.svc.RunPayroll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Paid, "ticker jitter does not skip a period")

	_, bank, err := f.store.Balances(ctx, ranked.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), bank)
	_, bank, err = f.store.Balances(ctx, offDuty.ID)
	require.NoError(t, err)
	assert.Zero(t, bank)
	assert.Len(t, f.paid, 4)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("payroll loop did not stop")
	}
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}
