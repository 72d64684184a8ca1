// Package job runs employment and the payroll sweep. Salaries go to the
// bank of on-duty employees once per payroll interval.
package job

import (
	"context"
	"errors"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/catalog"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	GetEmployment(ctx context.Context, charID uint) (*models.Employment, error)
	ListEmployments(ctx context.Context, onDutyOnly bool) ([]models.Employment, error)
	CreateEmployment(ctx context.Context, e *models.Employment) error
	DeleteEmployment(ctx context.Context, charID uint) error
	SetDuty(ctx context.Context, charID uint, onDuty bool) error
	PaySalary(ctx context.Context, charID uint, amount int64, now, cutoff time.Time) (int64, error)
}

// BonusSource adds a faction rank bonus to each salary.
type BonusSource interface {
	SalaryBonus(charID uint) int64
}

type Service struct {
	store    Store
	catalog  *catalog.Catalog
	bonus    BonusSource
	events   events.Emitter
	locks    lock.Locker
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewService(store Store, cat *catalog.Catalog, bonus BonusSource, emitter events.Emitter, locks lock.Locker, interval time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		catalog:  cat,
		bonus:    bonus,
		events:   emitter,
		locks:    locks,
		log:      log,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) storeFailure(op string, charID uint, err error) error {
	s.log.Error(op+" failed", zap.Uint("character_id", charID), zap.Error(err))
	return apperr.Store(op, err)
}

func (s *Service) lockChar(ctx context.Context, charID uint) (lock.Release, error) {
	release, err := s.locks.Acquire(ctx, lock.Key("char", charID))
	if err != nil {
		return nil, apperr.Store("lock character", err)
	}
	return release, nil
}

// Jobs lists the joinable jobs.
func (s *Service) Jobs() []catalog.Job { return s.catalog.Jobs }

// Employment returns the job of a character.
func (s *Service) Employment(ctx context.Context, charID uint) (*models.Employment, error) {
	e, err := s.store.GetEmployment(ctx, charID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("You do not have a job.")
		}
		return nil, s.storeFailure("get employment", charID, err)
	}
	return e, nil
}

// Join hires a character for a catalogue job. One job at a time.
func (s *Service) Join(ctx context.Context, charID uint, jobID string) (catalog.Job, error) {
	j, ok := s.catalog.Job(jobID)
	if !ok {
		return catalog.Job{}, apperr.InvalidInput("Unknown job %q.", jobID)
	}
	release, err := s.lockChar(ctx, charID)
	if err != nil {
		return catalog.Job{}, err
	}
	defer release()

	if err := s.store.CreateEmployment(ctx, &models.Employment{CharacterID: charID, JobID: j.ID, HiredAt: s.now()}); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return catalog.Job{}, apperr.Conflict("You already have a job. Quit it first.")
		}
		return catalog.Job{}, s.storeFailure("join job", charID, err)
	}

	s.events.Emit(ctx, events.TopicJobChanged, events.JobChanged{CharacterID: charID, JobID: j.ID})
	return j, nil
}

// Quit ends the character's employment.
func (s *Service) Quit(ctx context.Context, charID uint) error {
	release, err := s.lockChar(ctx, charID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteEmployment(ctx, charID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Conflict("You do not have a job.")
		}
		return s.storeFailure("quit job", charID, err)
	}

	s.events.Emit(ctx, events.TopicJobChanged, events.JobChanged{CharacterID: charID})
	return nil
}

// ToggleDuty starts or ends a shift and returns the new duty state.
func (s *Service) ToggleDuty(ctx context.Context, charID uint) (bool, error) {
	release, err := s.lockChar(ctx, charID)
	if err != nil {
		return false, err
	}
	defer release()

	e, err := s.Employment(ctx, charID)
	if err != nil {
		return false, err
	}
	onDuty := !e.OnDuty
	if err := s.store.SetDuty(ctx, charID, onDuty); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return false, apperr.NotFound("You do not have a job.")
		case errors.Is(err, storage.ErrConflict):
			return false, apperr.Conflict("Your shift state changed; try again.")
		}
		return false, s.storeFailure("toggle duty", charID, err)
	}

	s.events.Emit(ctx, events.TopicJobChanged, events.JobChanged{CharacterID: charID, JobID: e.JobID, OnDuty: onDuty})
	return onDuty, nil
}

// PayrollResult summarises one sweep.
type PayrollResult struct {
	Paid    int
	Skipped int
	Failed  int
	Total   int64
}

// RunPayroll pays every on-duty employee whose last payment is at least half
// an interval old, so ticker jitter never skips a period and a repeated
// sweep never pays twice.
func (s *Service) RunPayroll(ctx context.Context) (PayrollResult, error) {
	var res PayrollResult
	staff, err := s.store.ListEmployments(ctx, true)
	if err != nil {
		return res, s.storeFailure("list employments", 0, err)
	}

	now := s.now()
	cutoff := now.Add(-s.interval / 2)
	for _, e := range staff {
		j, ok := s.catalog.Job(e.JobID)
		if !ok {
			s.log.Warn("employment references unknown job", zap.Uint("character_id", e.CharacterID), zap.String("job_id", e.JobID))
			res.Skipped++
			continue
		}
		amount := j.Salary
		if s.bonus != nil {
			amount += s.bonus.SalaryBonus(e.CharacterID)
		}

		bank, err := s.pay(ctx, e.CharacterID, amount, now, cutoff)
		switch {
		case errors.Is(err, storage.ErrConflict):
			res.Skipped++
			continue
		case err != nil:
			s.log.Error("salary payment failed", zap.Uint("character_id", e.CharacterID), zap.Error(err))
			res.Failed++
			continue
		}

		res.Paid++
		res.Total += amount
		s.events.Emit(ctx, events.TopicSalaryPaid, events.SalaryPaid{CharacterID: e.CharacterID, JobID: j.ID, Amount: amount, Bank: bank})
		s.events.Emit(ctx, events.TopicBalance, events.BalanceChanged{CharacterID: e.CharacterID, Bank: &bank})
	}
	return res, nil
}

func (s *Service) pay(ctx context.Context, charID uint, amount int64, now, cutoff time.Time) (int64, error) {
	release, err := s.locks.Acquire(ctx, lock.Key("char", charID))
	if err != nil {
		return 0, err
	}
	defer release()
	return s.store.PaySalary(ctx, charID, amount, now, cutoff)
}

// Run sweeps payroll every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("payroll loop started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("payroll loop stopped")
			return
		case <-ticker.C:
			res, err := s.RunPayroll(ctx)
			if err != nil {
				continue
			}
			s.log.Info("payroll sweep",
				zap.Int("paid", res.Paid),
				zap.Int("skipped", res.Skipped),
				zap.Int("failed", res.Failed),
				zap.Int64("total", res.Total))
		}
	}
}
