package command

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (d *Dispatcher) registerEconomy() {
	for _, cmd := range []Command{
		{Name: "balance", Run: d.balance},
		{Name: "pay", Usage: "<player> <amount>", MinArgs: 2, Run: d.pay},
		{Name: "deposit", Usage: "<amount>", MinArgs: 1, Run: d.deposit},
		{Name: "withdraw", Usage: "<amount>", MinArgs: 1, Run: d.withdraw},
		{Name: "statement", Usage: "[lines]", Run: d.statement},
		{Name: "givemoney", Usage: "<player> <cash|bank> <amount> <reason>", MinArgs: 4, Run: d.giveMoney},
		{Name: "jobs", Run: d.jobs},
		{Name: "joinjob", Usage: "<job>", MinArgs: 1, Run: d.joinJob},
		{Name: "quitjob", Run: d.quitJob},
		{Name: "duty", Run: d.duty},
	} {
		d.Register(cmd)
	}
}

func (d *Dispatcher) balance(ctx context.Context, c *Call) (string, error) {
	cash, bank, err := d.engines.Economy.Balance(ctx, c.Actor.ID)
	if err != nil {
		return "", err
	}
	return d.t("money.balance", cash, bank), nil
}

func (d *Dispatcher) pay(ctx context.Context, c *Call) (string, error) {
	to, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	amount, err := c.Money(1)
	if err != nil {
		return "", err
	}
	if err := d.engines.Economy.Pay(ctx, c.Actor.ID, to, amount); err != nil {
		return "", err
	}
	return d.t("money.paid", amount, name), nil
}

func (d *Dispatcher) deposit(ctx context.Context, c *Call) (string, error) {
	amount, err := c.Money(0)
	if err != nil {
		return "", err
	}
	cash, bank, err := d.engines.Economy.Deposit(ctx, c.Actor.ID, amount)
	if err != nil {
		return "", err
	}
	return d.t("money.moved", cash, bank), nil
}

func (d *Dispatcher) withdraw(ctx context.Context, c *Call) (string, error) {
	amount, err := c.Money(0)
	if err != nil {
		return "", err
	}
	cash, bank, err := d.engines.Economy.Withdraw(ctx, c.Actor.ID, amount)
	if err != nil {
		return "", err
	}
	return d.t("money.moved", cash, bank), nil
}

func (d *Dispatcher) statement(ctx context.Context, c *Call) (string, error) {
	n := 10
	if c.Arg(0) != "" {
		var err error
		if n, err = c.Int(0); err != nil {
			return "", err
		}
	}
	lines, err := d.engines.Economy.Statement(ctx, c.Actor.ID, n)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return d.t("money.no_transactions"), nil
	}
	out := make([]string, 0, len(lines))
	for _, tx := range lines {
		out = append(out, fmt.Sprintf("%s %-5s %+d = %d (%s)", tx.CreatedAt.Format(time.DateTime), tx.Account, tx.Amount, tx.BalanceAfter, tx.Kind))
	}
	return strings.Join(out, "\n"), nil
}

func (d *Dispatcher) giveMoney(ctx context.Context, c *Call) (string, error) {
	target, name, err := c.Player(ctx, 0)
	if err != nil {
		return "", err
	}
	account := strings.ToLower(c.Arg(1))
	amount, err := c.Money(2)
	if err != nil {
		return "", err
	}
	after, err := d.engines.Economy.Adjust(ctx, c.Actor.ID, target, account, amount, c.Rest(3))
	if err != nil {
		return "", err
	}
	return d.t("money.adjusted", name, account, after), nil
}

func (d *Dispatcher) jobs(ctx context.Context, c *Call) (string, error) {
	list := d.engines.Jobs.Jobs()
	lines := make([]string, 0, len(list))
	for _, j := range list {
		lines = append(lines, d.t("job.list_line", j.ID, j.Name, j.Salary))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) joinJob(ctx context.Context, c *Call) (string, error) {
	j, err := d.engines.Jobs.Join(ctx, c.Actor.ID, strings.ToLower(c.Arg(0)))
	if err != nil {
		return "", err
	}
	return d.t("job.joined", j.Name), nil
}

func (d *Dispatcher) quitJob(ctx context.Context, c *Call) (string, error) {
	if err := d.engines.Jobs.Quit(ctx, c.Actor.ID); err != nil {
		return "", err
	}
	return d.t("job.quit"), nil
}

func (d *Dispatcher) duty(ctx context.Context, c *Call) (string, error) {
	on, err := d.engines.Jobs.ToggleDuty(ctx, c.Actor.ID)
	if err != nil {
		return "", err
	}
	return d.t(yesNo(on, "job.on_duty", "job.off_duty")), nil
}
