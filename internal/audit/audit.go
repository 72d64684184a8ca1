// Package audit records privileged actions. Entries go to the store and to
// a fixed-size in-memory ring of the most recent ones. A failed store write
// is logged and never undoes the action being audited.
package audit

import (
	"context"
	"sync"
	"time"

	"rpworld/backend/internal/models"

	"go.uber.org/zap"
)

// Store is the durable side of the log.
type Store interface {
	CreateAdminAction(ctx context.Context, a *models.AdminAction) error
	ListAdminActions(ctx context.Context, targetID *uint, limit int) ([]models.AdminAction, error)
}

// Log is the audit log.
type Log struct {
	store Store
	log   *zap.Logger
	now   func() time.Time

	mu   sync.Mutex
	ring []models.AdminAction
	next int
	full bool
}

func New(store Store, size int, log *zap.Logger) *Log {
	if size <= 0 {
		size = 1
	}
	return &Log{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		ring:  make([]models.AdminAction, size),
	}
}

// Record appends an entry. targetID 0 means the action has no target.
func (l *Log) Record(ctx context.Context, adminID uint, action string, targetID uint, details string) {
	entry := models.AdminAction{
		AdminID:   adminID,
		Action:    action,
		Details:   details,
		CreatedAt: l.now(),
	}
	if targetID != 0 {
		entry.TargetID = &targetID
	}

	if err := l.store.CreateAdminAction(ctx, &entry); err != nil {
		l.log.Error("audit write failed",
			zap.Uint("admin_id", adminID),
			zap.String("action", action),
			zap.Uint("target_id", targetID),
			zap.Error(err))
	}

	l.mu.Lock()
	l.ring[l.next] = entry
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Recent returns up to n entries from memory, newest first.
func (l *Log) Recent(n int) []models.AdminAction {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.next
	if l.full {
		count = len(l.ring)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]models.AdminAction, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// History reads the durable log, optionally for one target.
func (l *Log) History(ctx context.Context, targetID *uint, limit int) ([]models.AdminAction, error) {
	return l.store.ListAdminActions(ctx, targetID, limit)
}
