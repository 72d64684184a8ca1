package gateway

import (
	"context"
	"fmt"
	"time"

	"rpworld/backend/internal/events"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/session"
)

// Subscribe tells players about engine events that concern them.
func (h *Hub) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TopicKick, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.Kicked); ok {
			h.Disconnect(p.TargetID, h.t("mod.you_were_kicked", p.Reason))
		}
		return nil
	})
	bus.Subscribe(events.TopicBan, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.Banned); ok {
			until := h.t("mod.banned_permanent")
			if p.ExpiresAt != nil {
				until = h.t("mod.banned_until", p.ExpiresAt.Format(time.RFC1123))
			}
			h.Disconnect(p.TargetID, h.t("mod.you_were_banned", until, p.Reason))
		}
		return nil
	})
	bus.Subscribe(events.TopicMute, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.Muted); ok {
			h.SendMessage(p.TargetID, h.t("mod.you_are_muted", p.ExpiresAt.Format(time.RFC1123)), session.StyleAdmin)
		}
		return nil
	})
	bus.Subscribe(events.TopicUnmute, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.Unmuted); ok {
			h.SendMessage(p.TargetID, h.t("mod.you_were_unmuted"), session.StyleAdmin)
		}
		return nil
	})
	bus.Subscribe(events.TopicWarn, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.Warned); ok {
			h.SendMessage(p.TargetID, h.t("mod.you_were_warned", p.Reason), session.StyleAdmin)
		}
		return nil
	})
	bus.Subscribe(events.TopicReportCreated, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.ReportChanged); ok {
			h.alertStaff(h.t("report.staff_alert", p.Report.ID, p.Report.Reason, p.Report.ID))
		}
		return nil
	})
	bus.Subscribe(events.TopicFactionInvite, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.FactionChanged); ok {
			h.SendMessage(p.TargetID, h.t("faction.you_are_invited", p.Name), session.StyleFaction)
		}
		return nil
	})
	bus.Subscribe(events.TopicWarDeclared, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.WarChanged); ok {
			h.Broadcast(h.t("faction.war_broadcast", h.factionName(p.War.FactionA), h.factionName(p.War.FactionB)))
		}
		return nil
	})
	bus.Subscribe(events.TopicSalaryPaid, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.SalaryPaid); ok {
			h.SendMessage(p.CharacterID, h.t("job.salary", p.Amount), session.StyleSuccess)
		}
		return nil
	})
	bus.Subscribe(events.TopicTransfer, func(ctx context.Context, payload any) error {
		if p, ok := payload.(events.Transferred); ok {
			from := fmt.Sprintf("#%d", p.FromID)
			if a, ok := h.sessions.Get(p.FromID); ok {
				from = a.Name
			}
			h.SendMessage(p.ToID, h.t("money.received", from, p.Amount), session.StyleSuccess)
		}
		return nil
	})
}

func (h *Hub) factionName(id uint) string {
	if f, ok := h.factions.Faction(id); ok {
		return f.Name
	}
	return fmt.Sprintf("faction #%d", id)
}

// alertStaff messages every online actor that handles reports.
func (h *Hub) alertStaff(text string) {
	h.sessions.ForEach(func(a session.Actor) {
		if a.AdminLevel > 0 && h.perms.HasPermission(a.ID, permission.HandleReports) {
			h.SendMessage(a.ID, text, session.StyleAdmin)
		}
	})
}
