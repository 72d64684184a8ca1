package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/ownership"
)

func (d *Dispatcher) registerAssets() {
	for _, cmd := range []Command{
		{Name: "buyvehicle", Usage: "<id>", MinArgs: 1, Run: d.buy(models.AssetVehicle)},
		{Name: "sellvehicle", Usage: "<id>", MinArgs: 1, Run: d.sell(models.AssetVehicle)},
		{Name: "buyproperty", Usage: "<id>", MinArgs: 1, Run: d.buy(models.AssetProperty)},
		{Name: "sellproperty", Usage: "<id>", MinArgs: 1, Run: d.sell(models.AssetProperty)},
		{Name: "myassets", Run: d.myAssets},
		{Name: "refuel", Usage: "<vehicle> [units]", MinArgs: 1, Run: d.refuel},
		{Name: "repair", Usage: "<vehicle>", MinArgs: 1, Run: d.repair},
		{Name: "engine", Usage: "<vehicle>", MinArgs: 1, Run: d.engine},
		{Name: "lockvehicle", Usage: "<vehicle>", MinArgs: 1, Run: d.lockVehicle},
		{Name: "createvehicle", Usage: "<model> [price] [plate]", MinArgs: 1, Run: d.createVehicle},
		{Name: "rent", Usage: "<property>", MinArgs: 1, Run: d.rent},
		{Name: "rentoffer", Usage: "<property> <price|off>", MinArgs: 2, Run: d.rentOffer},
		{Name: "lockdoor", Usage: "<property>", MinArgs: 1, Run: d.lockDoor},
		{Name: "enter", Usage: "<property>", MinArgs: 1, Run: d.enter},
		{Name: "createproperty", Usage: "<kind> <price> <name>", MinArgs: 3, Run: d.createProperty},
		{Name: "givekey", Usage: "<vehicle|property> <id> <player>", MinArgs: 3, Run: d.giveKey},
		{Name: "removekey", Usage: "<vehicle|property> <id> <player>", MinArgs: 3, Run: d.removeKey},
		{Name: "impound", Usage: "<vehicle|property> <id> <reason>", MinArgs: 3, Run: d.impound},
		{Name: "unimpound", Usage: "<vehicle|property> <id>", MinArgs: 2, Run: d.unimpound},
	} {
		d.Register(cmd)
	}
}

func (d *Dispatcher) assets(class models.AssetClass) *ownership.Engine {
	if class == models.AssetProperty {
		return d.engines.Properties.Assets()
	}
	return d.engines.Vehicles.Assets()
}

func (d *Dispatcher) buy(class models.AssetClass) Handler {
	return func(ctx context.Context, c *Call) (string, error) {
		id, err := c.ID(0)
		if err != nil {
			return "", err
		}
		price, err := d.assets(class).Purchase(ctx, id, c.Actor.ID)
		if err != nil {
			return "", err
		}
		return d.t("asset.bought", class, id, price), nil
	}
}

func (d *Dispatcher) sell(class models.AssetClass) Handler {
	return func(ctx context.Context, c *Call) (string, error) {
		id, err := c.ID(0)
		if err != nil {
			return "", err
		}
		payout, err := d.assets(class).Sell(ctx, id, c.Actor.ID)
		if err != nil {
			return "", err
		}
		return d.t("asset.sold", class, id, payout), nil
	}
}

func (d *Dispatcher) myAssets(ctx context.Context, c *Call) (string, error) {
	var lines []string
	for _, class := range []models.AssetClass{models.AssetVehicle, models.AssetProperty} {
		for _, id := range d.assets(class).OwnedBy(c.Actor.ID) {
			lines = append(lines, fmt.Sprintf("%s #%d", class, id))
		}
	}
	if len(lines) == 0 {
		return d.t("asset.none"), nil
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) refuel(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	units := 0
	if c.Arg(1) != "" {
		if units, err = c.Int(1); err != nil {
			return "", err
		}
	}
	added, cost, err := d.engines.Vehicles.Refuel(ctx, c.Actor.ID, id, units)
	if err != nil {
		return "", err
	}
	return d.t("vehicle.refueled", added, cost), nil
}

func (d *Dispatcher) repair(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	cost, err := d.engines.Vehicles.Repair(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	return d.t("vehicle.repaired", cost), nil
}

func (d *Dispatcher) engine(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	on, err := d.engines.Vehicles.ToggleEngine(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	return d.t(yesNo(on, "vehicle.engine_on", "vehicle.engine_off")), nil
}

func (d *Dispatcher) lockVehicle(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	locked, err := d.engines.Vehicles.ToggleLock(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	return d.t(yesNo(locked, "asset.locked", "asset.unlocked"), "Vehicle", id), nil
}

func (d *Dispatcher) createVehicle(ctx context.Context, c *Call) (string, error) {
	var price int64
	if c.Arg(1) != "" {
		var err error
		if price, err = c.Money(1); err != nil {
			return "", err
		}
	}
	v, err := d.engines.Vehicles.CreateListing(ctx, c.Actor.ID, c.Arg(0), price, c.Arg(2), nil)
	if err != nil {
		return "", err
	}
	return d.t("asset.created", "Vehicle", v.ID, v.Price), nil
}

func (d *Dispatcher) rent(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	until, err := d.engines.Properties.Assets().Rent(ctx, id, c.Actor.ID)
	if err != nil {
		return "", err
	}
	return d.t("asset.rented", id, until.Format(time.RFC1123)), nil
}

func (d *Dispatcher) rentOffer(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	assets := d.engines.Properties.Assets()
	if strings.EqualFold(c.Arg(1), "off") {
		if err := assets.SetRentOffer(ctx, c.Actor.ID, id, false, 0); err != nil {
			return "", err
		}
		return d.t("asset.rent_offer_off", id), nil
	}
	price, err := c.Money(1)
	if err != nil {
		return "", err
	}
	if err := assets.SetRentOffer(ctx, c.Actor.ID, id, true, price); err != nil {
		return "", err
	}
	return d.t("asset.rent_offer_on", id, price), nil
}

func (d *Dispatcher) lockDoor(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	locked, err := d.engines.Properties.ToggleLock(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	return d.t(yesNo(locked, "asset.locked", "asset.unlocked"), "Property", id), nil
}

func (d *Dispatcher) enter(ctx context.Context, c *Call) (string, error) {
	id, err := c.ID(0)
	if err != nil {
		return "", err
	}
	ok, err := d.engines.Properties.CanEnter(ctx, c.Actor.ID, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.DeniedMsg("%s", d.t("asset.enter_denied", id))
	}
	return d.t("asset.enter_ok", id), nil
}

func (d *Dispatcher) createProperty(ctx context.Context, c *Call) (string, error) {
	price, err := c.Money(1)
	if err != nil {
		return "", err
	}
	p, err := d.engines.Properties.CreateListing(ctx, c.Actor.ID, c.Rest(2), strings.ToLower(c.Arg(0)), price, nil)
	if err != nil {
		return "", err
	}
	return d.t("asset.created", "Property", p.ID, p.Price), nil
}

// classAndID parses the "<vehicle|property> <id>" prefix shared by key and
// impound commands.
func (c *Call) classAndID() (models.AssetClass, uint, error) {
	class, err := c.AssetClass(0)
	if err != nil {
		return "", 0, err
	}
	id, err := c.ID(1)
	if err != nil {
		return "", 0, err
	}
	return class, id, nil
}

func (d *Dispatcher) giveKey(ctx context.Context, c *Call) (string, error) {
	class, id, err := c.classAndID()
	if err != nil {
		return "", err
	}
	holder, name, err := c.Player(ctx, 2)
	if err != nil {
		return "", err
	}
	if err := d.assets(class).GiveKey(ctx, c.Actor.ID, id, holder, models.KeySpare); err != nil {
		return "", err
	}
	return d.t("asset.key_given", class, id, name), nil
}

func (d *Dispatcher) removeKey(ctx context.Context, c *Call) (string, error) {
	class, id, err := c.classAndID()
	if err != nil {
		return "", err
	}
	holder, name, err := c.Player(ctx, 2)
	if err != nil {
		return "", err
	}
	if err := d.assets(class).RemoveKey(ctx, c.Actor.ID, id, holder); err != nil {
		return "", err
	}
	return d.t("asset.key_removed", class, id, name), nil
}

func (d *Dispatcher) impound(ctx context.Context, c *Call) (string, error) {
	class, id, err := c.classAndID()
	if err != nil {
		return "", err
	}
	if err := d.assets(class).Impound(ctx, c.Actor.ID, id, c.Rest(2)); err != nil {
		return "", err
	}
	return d.t("asset.impounded", capitalize(string(class)), id), nil
}

func (d *Dispatcher) unimpound(ctx context.Context, c *Call) (string, error) {
	class, id, err := c.classAndID()
	if err != nil {
		return "", err
	}
	if err := d.assets(class).Unimpound(ctx, c.Actor.ID, id); err != nil {
		return "", err
	}
	return d.t("asset.unimpounded", capitalize(string(class)), id), nil
}
