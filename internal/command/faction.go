package command

import (
	"context"
	"fmt"
	"strings"

	"rpworld/backend/internal/apperr"
)

func (d *Dispatcher) registerFactions() {
	for _, cmd := range []Command{
		{Name: "factions", Run: d.factions},
		{Name: "fcreate", Usage: "<gang|mafia|government|business|other> <tag> <name>", MinArgs: 3, Run: d.fcreate},
		{Name: "finvite", Usage: "<player>", MinArgs: 1, Run: d.finvite},
		{Name: "faccept", Usage: "[faction]", Run: d.faccept},
		{Name: "fleave", Run: d.fleave},
		{Name: "fkick", Usage: "<player>", MinArgs: 1, Run: d.fkick},
		{Name: "fsetrank", Usage: "<player> <rank>", MinArgs: 2, Run: d.fsetrank},
		{Name: "fmembers", Usage: "[faction]", Run: d.fmembers},
		{Name: "fdeposit", Usage: "<amount>", MinArgs: 1, Run: d.fdeposit},
		{Name: "fwithdraw", Usage: "<amount>", MinArgs: 1, Run: d.fwithdraw},
		{Name: "fdisband", Usage: "[faction]", Run: d.fdisband},
		{Name: "war", Usage: "<faction> <reason>", MinArgs: 2, Run: d.war},
		{Name: "endwar", Usage: "<faction>", MinArgs: 1, Run: d.endwar},
		{Name: "wars", Run: d.wars},
	} {
		d.Register(cmd)
	}
}

// optionalID reads argument i as an id, or 0 when it is absent.
func (c *Call) optionalID(i int) (uint, error) {
	if c.Arg(i) == "" {
		return 0, nil
	}
	return c.ID(i)
}

func (d *Dispatcher) factions(ctx context.Context, c *Call) (string, error) {
	list := d.engines.Factions.List()
	if len(list) == 0 {
		return d.t("faction.none"), nil
	}
	lines := make([]string, 0, len(list))
	for _, f := range list {
		lines = append(lines, d.t("faction.list_line", f.ID, f.Tag, f.Name, f.Type, len(d.engines.Factions.Members(f.ID))))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) fcreate(ctx context.Context, c *Call) (string, error) {
	f, err := d.engines.Factions.Create(ctx, c.Actor.ID, c.Rest(2), c.Arg(1), strings.ToLower(c.Arg(0)))
	if err != nil {
		return "", err
	}
	return d.t("faction.created", f.Name), nil
}

func (d *Dispatcher) finvite(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Factions.Invite(ctx, c.Actor.ID, id); err != nil {
		return "", err
	}
	return d.t("faction.invited", name), nil
}

func (d *Dispatcher) faccept(ctx context.Context, c *Call) (string, error) {
	fid, err := c.optionalID(0)
	if err != nil {
		return "", err
	}
	joined, err := d.engines.Factions.Accept(ctx, c.Actor.ID, fid)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("faction #%d", joined)
	if f, ok := d.engines.Factions.Faction(joined); ok {
		name = f.Name
	}
	return d.t("faction.joined", name), nil
}

func (d *Dispatcher) fleave(ctx context.Context, c *Call) (string, error) {
	if err := d.engines.Factions.Leave(ctx, c.Actor.ID); err != nil {
		return "", err
	}
	return d.t("faction.left"), nil
}

func (d *Dispatcher) fkick(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Factions.Kick(ctx, c.Actor.ID, id); err != nil {
		return "", err
	}
	return d.t("faction.kicked", name), nil
}

func (d *Dispatcher) fsetrank(ctx context.Context, c *Call) (string, error) {
	id, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	rank, err := c.Int(1)
	if err != nil {
		return "", err
	}
	if err := d.engines.Factions.SetRank(ctx, c.Actor.ID, id, rank); err != nil {
		return "", err
	}
	m, _ := d.engines.Factions.Member(c.Actor.ID)
	return d.t("faction.rank_set", name, d.engines.Factions.RankName(m.FactionID, rank)), nil
}

func (d *Dispatcher) fmembers(ctx context.Context, c *Call) (string, error) {
	fid, err := c.optionalID(0)
	if err != nil {
		return "", err
	}
	if fid == 0 {
		m, ok := d.engines.Factions.Member(c.Actor.ID)
		if !ok {
			return "", apperr.InvalidInput("You are not in a faction.")
		}
		fid = m.FactionID
	}
	if _, ok := d.engines.Factions.Faction(fid); !ok {
		return "", apperr.NotFound("No such faction.")
	}
	members := d.engines.Factions.Members(fid)
	lines := make([]string, 0, len(members))
	for _, m := range members {
		line := d.t("faction.member_line", m.CharacterID, m.Rank, d.engines.Factions.RankName(fid, m.Rank))
		if a, ok := d.sessions.Get(m.CharacterID); ok {
			line += " " + a.Name
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) fdeposit(ctx context.Context, c *Call) (string, error) {
	amount, err := c.Money(0)
	if err != nil {
		return "", err
	}
	balance, err := d.engines.Factions.Deposit(ctx, c.Actor.ID, amount)
	if err != nil {
		return "", err
	}
	return d.t("faction.treasury", balance), nil
}

func (d *Dispatcher) fwithdraw(ctx context.Context, c *Call) (string, error) {
	amount, err := c.Money(0)
	if err != nil {
		return "", err
	}
	balance, err := d.engines.Factions.Withdraw(ctx, c.Actor.ID, amount)
	if err != nil {
		return "", err
	}
	return d.t("faction.treasury", balance), nil
}

func (d *Dispatcher) fdisband(ctx context.Context, c *Call) (string, error) {
	fid, err := c.optionalID(0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Factions.Disband(ctx, c.Actor.ID, fid); err != nil {
		return "", err
	}
	return d.t("faction.disbanded"), nil
}

func (d *Dispatcher) war(ctx context.Context, c *Call) (string, error) {
	target, err := c.ID(0)
	if err != nil {
		return "", err
	}
	if _, err := d.engines.Factions.DeclareWar(ctx, c.Actor.ID, target, c.Rest(1)); err != nil {
		return "", err
	}
	return d.t("faction.war_declared", target), nil
}

func (d *Dispatcher) endwar(ctx context.Context, c *Call) (string, error) {
	other, err := c.ID(0)
	if err != nil {
		return "", err
	}
	if err := d.engines.Factions.EndWar(ctx, c.Actor.ID, other); err != nil {
		return "", err
	}
	return d.t("faction.war_ended", other), nil
}

func (d *Dispatcher) wars(ctx context.Context, c *Call) (string, error) {
	wars := d.engines.Factions.Wars()
	if len(wars) == 0 {
		return d.t("faction.no_wars"), nil
	}
	lines := make([]string, 0, len(wars))
	for _, w := range wars {
		lines = append(lines, d.t("faction.war_line", d.factionName(w.FactionA), d.factionName(w.FactionB), w.StartedAt.Format("2006-01-02"), w.Reason))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) factionName(id uint) string {
	if f, ok := d.engines.Factions.Faction(id); ok {
		return f.Name
	}
	return fmt.Sprintf("#%d", id)
}
