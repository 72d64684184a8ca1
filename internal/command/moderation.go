package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rpworld/backend/internal/apperr"
)

func (d *Dispatcher) registerModeration() {
	for _, cmd := range []Command{
		{Name: "kick", Usage: "<player> <reason>", MinArgs: 2, Run: d.kick},
		{Name: "ban", Usage: "<player> <duration|perm> <reason>", MinArgs: 3, Run: d.ban},
		{Name: "unban", Usage: "<player> <reason>", MinArgs: 2, Run: d.unban},
		{Name: "mute", Usage: "<player> <minutes> <reason>", MinArgs: 3, Run: d.mute},
		{Name: "unmute", Usage: "<player>", MinArgs: 1, Run: d.unmute},
		{Name: "warn", Usage: "<player> <reason>", MinArgs: 2, Run: d.warn},
		{Name: "report", Usage: "<player> <reason> [details]", MinArgs: 2, Run: d.report},
		{Name: "reports", Run: d.reports},
		{Name: "acceptreport", Usage: "<id>", MinArgs: 1, Run: d.acceptReport},
		{Name: "closereport", Usage: "<id> <resolution>", MinArgs: 2, Run: d.closeReport},
		{Name: "history", Usage: "<player>", MinArgs: 1, Run: d.history},
		{Name: "setadmin", Usage: "<player> <level>", MinArgs: 2, Run: d.setAdmin},
		{Name: "adminlog", Usage: "[count]", Run: d.adminLog},
	} {
		d.Register(cmd)
	}
}

func (d *Dispatcher) kick(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Moderation.Kick(ctx, c.Actor.ID, id, c.Rest(1)); err != nil {
		return "", err
	}
	return d.t("mod.kicked", name), nil
}

// parseBanDuration accepts "perm", "0" or a number followed by m, h or d.
func parseBanDuration(s string) (time.Duration, error) {
	s = strings.ToLower(s)
	if s == "perm" || s == "permanent" || s == "0" {
		return 0, nil
	}
	if len(s) < 2 {
		return 0, apperr.InvalidInput("Duration must look like 30m, 12h, 7d or perm.")
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, apperr.InvalidInput("Duration must look like 30m, 12h, 7d or perm.")
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, apperr.InvalidInput("Duration must look like 30m, 12h, 7d or perm.")
}

func (d *Dispatcher) ban(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	duration, err := parseBanDuration(c.Arg(1))
	if err != nil {
		return "", err
	}
	ban, err := d.engines.Moderation.Ban(ctx, c.Actor.ID, id, c.Rest(2), duration)
	if err != nil {
		return "", err
	}
	when := d.t("mod.banned_permanent")
	if ban.ExpiresAt != nil {
		when = d.t("mod.banned_until", ban.ExpiresAt.Format(time.RFC1123))
	}
	return d.t("mod.banned", name, when), nil
}

func (d *Dispatcher) unban(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Moderation.Unban(ctx, c.Actor.ID, id, c.Rest(1)); err != nil {
		return "", err
	}
	return d.t("mod.unbanned", name), nil
}

func (d *Dispatcher) mute(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	minutes, err := c.Int(1)
	if err != nil {
		return "", err
	}
	if _, err := d.engines.Moderation.Mute(ctx, c.Actor.ID, id, c.Rest(2), minutes); err != nil {
		return "", err
	}
	return d.t("mod.muted", name, minutes), nil
}

func (d *Dispatcher) unmute(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Moderation.Unmute(ctx, c.Actor.ID, id); err != nil {
		return "", err
	}
	return d.t("mod.unmuted", name), nil
}

func (d *Dispatcher) warn(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	if _, err := d.engines.Moderation.Warn(ctx, c.Actor.ID, id, c.Rest(1)); err != nil {
		return "", err
	}
	return d.t("mod.warned", name), nil
}

func (d *Dispatcher) report(ctx context.Context, c *Call) (string, error) {
	id, _, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	r, err := d.engines.Moderation.CreateReport(ctx, c.Actor.ID, id, c.Arg(1), c.Rest(2))
	if err != nil {
		return "", err
	}
	return d.t("report.created", r.ID), nil
}

func (d *Dispatcher) reports(ctx context.Context, c *Call) (string, error) {
	open, err := d.engines.Moderation.ListOpenReports(c.Actor.ID)
	if err != nil {
		return "", err
	}
	if len(open) == 0 {
		return d.t("report.none_open"), nil
	}
	lines := make([]string, 0, len(open))
	for _, r := range open {
		lines = append(lines, d.t("report.line", r.ID, r.Reason, r.ReportedID, r.Description, r.Status))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) acceptReport(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	r, err := d.engines.Moderation.AcceptReport(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	return d.t("report.accepted", r.ID), nil
}

func (d *Dispatcher) closeReport(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	r, err := d.engines.Moderation.CloseReport(ctx, c.Actor.ID, id, c.Rest(1))
	if err != nil {
		return "", err
	}
	return d.t("report.closed", r.ID), nil
}

func (d *Dispatcher) history(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	h, err := d.engines.Moderation.History(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	return d.t("mod.history", name, len(h.Bans), len(h.Mutes), len(h.Warnings)), nil
}

func (d *Dispatcher) setAdmin(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	level, err := c.Int(1)
	if err != nil {
		return "", err
	}
	if err := d.engines.Permissions.Grant(ctx, c.Actor.ID, id, level); err != nil {
		return "", err
	}
	return d.t("mod.level_set", name, level), nil
}

func (d *Dispatcher) adminLog(ctx context.Context, c *Call) (string, error) {
	n := 10
	if c.Arg(0) != "" {
		var err error
		if n, err = c.Int(0); err != nil {
			return "", err
		}
	}
	actions, err := d.engines.Moderation.RecentActions(c.Actor.ID, n)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		target := "-"
		if a.TargetID != nil {
			target = fmt.Sprintf("#%d", *a.TargetID)
		}
		lines = append(lines, fmt.Sprintf("%s #%d %s %s %s", a.CreatedAt.Format(time.DateTime), a.AdminID, a.Action, target, a.Details))
	}
	return strings.Join(lines, "\n"), nil
}
