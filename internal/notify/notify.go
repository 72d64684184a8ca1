// Package notify forwards staff-relevant events to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rpworld/backend/internal/events"
	"rpworld/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const queueSize = 64

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Factions interface {
	Faction(id uint) (models.Faction, bool)
}

// StaffNotifier posts alerts to one staff chat. Event handlers only queue;
// Run does the network calls so engines never wait on Telegram.
type StaffNotifier struct {
	bot      Sender
	chatID   int64
	factions Factions
	log      *zap.Logger
	queue    chan string
}

// NewBot authorises against the Telegram API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	return bot, nil
}

func NewStaffNotifier(bot Sender, chatID int64, factions Factions, log *zap.Logger) *StaffNotifier {
	return &StaffNotifier{bot: bot, chatID: chatID, factions: factions, log: log, queue: make(chan string, queueSize)}
}

var markdownV2 = strings.NewReplacer(
	"\\", "\\\\", "_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=",
	"|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escape(s string) string { return markdownV2.Replace(s) }

// Subscribe queues alerts for new reports, bans and war declarations.
func (n *StaffNotifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TopicReportCreated, func(ctx context.Context, payload any) error {
		p, ok := payload.(events.ReportChanged)
		if !ok {
			return nil
		}
		r := p.Report
		n.enqueue(fmt.Sprintf("*New report \\#%d*\nReporter: \\#%d\nReported: \\#%d\nReason: %s\n%s",
			r.ID, r.ReporterID, r.ReportedID, escape(r.Reason), escape(r.Description)))
		return nil
	})
	bus.Subscribe(events.TopicBan, func(ctx context.Context, payload any) error {
		p, ok := payload.(events.Banned)
		if !ok {
			return nil
		}
		until := "permanent"
		if p.ExpiresAt != nil {
			until = "until " + p.ExpiresAt.Format(time.RFC1123)
		}
		n.enqueue(fmt.Sprintf("*Ban* \\#%d by admin \\#%d, %s\nReason: %s", p.TargetID, p.AdminID, escape(until), escape(p.Reason)))
		return nil
	})
	bus.Subscribe(events.TopicWarDeclared, func(ctx context.Context, payload any) error {
		p, ok := payload.(events.WarChanged)
		if !ok {
			return nil
		}
		n.enqueue(fmt.Sprintf("*War declared*: %s vs %s\nReason: %s",
			escape(n.factionName(p.War.FactionA)), escape(n.factionName(p.War.FactionB)), escape(p.War.Reason)))
		return nil
	})
}

func (n *StaffNotifier) factionName(id uint) string {
	if f, ok := n.factions.Faction(id); ok {
		return fmt.Sprintf("%s [%s]", f.Name, f.Tag)
	}
	return fmt.Sprintf("faction #%d", id)
}

func (n *StaffNotifier) enqueue(text string) {
	select {
	case n.queue <- text:
	default:
		n.log.Warn("staff alert queue full, dropping alert")
	}
}

// Run sends queued alerts until ctx is cancelled.
func (n *StaffNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.queue:
			msg := tgbotapi.NewMessage(n.chatID, text)
			msg.ParseMode = tgbotapi.ModeMarkdownV2
			if _, err := n.bot.Send(msg); err != nil {
				n.log.Warn("send staff alert failed", zap.Int64("chat_id", n.chatID), zap.Error(err))
			}
		}
	}
}
