// Package events is the in-process event bus. Delivery is synchronous and
// fire-and-forget: a failing or panicking handler is logged and the
// remaining handlers still run.
package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Topics emitted by the engines.
const (
	TopicKick           = "moderation.kick"
	TopicBan            = "moderation.ban"
	TopicUnban          = "moderation.unban"
	TopicMute           = "moderation.mute"
	TopicUnmute         = "moderation.unmute"
	TopicWarn           = "moderation.warn"
	TopicReportCreated  = "report.created"
	TopicReportAccepted = "report.accepted"
	TopicReportClosed   = "report.closed"
	TopicAdminLevel     = "admin.level"
	TopicAssetPurchased = "asset.purchased"
	TopicAssetSold      = "asset.sold"
	TopicAssetRented    = "asset.rented"
	TopicKeyGiven       = "asset.key_given"
	TopicKeyRemoved     = "asset.key_removed"
	TopicImpounded      = "asset.impounded"
	TopicUnimpounded    = "asset.unimpounded"
	TopicEngine         = "vehicle.engine"
	TopicFactionCreated = "faction.created"
	TopicFactionInvite  = "faction.invited"
	TopicFactionJoined  = "faction.joined"
	TopicFactionLeft    = "faction.left"
	TopicFactionRank    = "faction.rank"
	TopicFactionDisband = "faction.disbanded"
	TopicWarDeclared    = "faction.war_declared"
	TopicWarEnded       = "faction.war_ended"
	TopicJobChanged     = "job.changed"
	TopicSalaryPaid     = "job.salary_paid"
	TopicBalance        = "economy.balance"
	TopicTransfer       = "economy.transfer"
)

// Handler reacts to one event. Returned errors are logged only.
type Handler func(ctx context.Context, payload any) error

// Emitter is the publishing side of the bus.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any)
}

// Bus maps topics to handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{handlers: make(map[string][]Handler), log: log}
}

// Subscribe registers h for topic. Handlers run in subscription order.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Emit runs every handler of topic on the calling goroutine.
func (b *Bus) Emit(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for i, h := range hs {
		if err := b.call(ctx, h, payload); err != nil {
			b.log.Error("event handler failed",
				zap.String("topic", topic),
				zap.Int("handler", i),
				zap.Error(err))
		}
	}
}

func (b *Bus) call(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
