// Package app wires the engines, the event subscriptions and the runtime
// bridge into one container.
package app

import (
	"context"
	"fmt"

	"rpworld/backend/internal/api/handler"
	"rpworld/backend/internal/audit"
	"rpworld/backend/internal/catalog"
	"rpworld/backend/internal/command"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/economy"
	"rpworld/backend/internal/events"
	"rpworld/backend/internal/faction"
	"rpworld/backend/internal/gateway"
	"rpworld/backend/internal/job"
	"rpworld/backend/internal/localization"
	"rpworld/backend/internal/lock"
	"rpworld/backend/internal/metrics"
	"rpworld/backend/internal/moderation"
	"rpworld/backend/internal/notify"
	"rpworld/backend/internal/ownership"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/property"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"
	"rpworld/backend/internal/vehicle"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger

	Store *storage.Service
	Redis *redis.Client
	Bus   *events.Bus
	Locks lock.Locker
	Audit *audit.Log
	Text  *localization.Localizer

	Permissions *permission.Registry
	Sessions    *session.Manager
	Moderation  *moderation.Engine
	Vehicles    *vehicle.Service
	Properties  *property.Service
	Factions    *faction.Engine
	Economy     *economy.Service
	Jobs        *job.Service

	Commands *command.Dispatcher
	Hub      *gateway.Hub
	Notifier *notify.StaffNotifier
}

// New builds the container. rdb and bot are optional: without redis locks
// and broadcasts stay in-process, without bot no staff alerts are sent.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, bot notify.Sender, log *zap.Logger) (*App, error) {
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	text, err := loadText(cfg.LocalesDir)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Store: storage.NewStorageService(db), Redis: rdb, Text: text}
	a.Bus = events.NewBus(log.Named("events"))

	var locks lock.Locker = lock.NewKeyedMutex()
	if rdb != nil {
		locks = lock.NewRedisLocker(rdb, config.LockTTL, log.Named("lock"))
	}
	a.Locks = lock.Instrumented(locks, metrics.ObserveLockWait)

	a.Audit = audit.New(a.Store, config.AuditRingSize, log.Named("audit"))
	a.Permissions = permission.NewRegistry(a.Store, a.Audit, a.Bus, a.Locks, log.Named("permission"))

	// The login gate needs moderation, and moderation needs the session directory.
	a.Sessions = session.NewManager(a.Store, session.LoginGateFunc(func(ctx context.Context, id uint) error {
		return a.Moderation.CheckLogin(ctx, id)
	}), a.Permissions, log.Named("session"))
	a.Moderation = moderation.NewEngine(a.Store, a.Permissions, a.Audit, a.Sessions, a.Bus, a.Locks, log.Named("moderation"))

	vehicleAssets := ownership.NewEngine(vehicle.Policy, a.Store, a.Permissions, a.Audit, a.Bus, a.Locks, log.Named("vehicles"))
	propertyAssets := ownership.NewEngine(property.Policy, a.Store, a.Permissions, a.Audit, a.Bus, a.Locks, log.Named("properties"))
	a.Vehicles = vehicle.NewService(vehicleAssets, a.Store, a.Permissions, a.Audit, cat, a.Bus, a.Locks, log.Named("vehicles"))
	a.Properties = property.NewService(propertyAssets, a.Store, a.Permissions, a.Audit, a.Locks, log.Named("properties"))

	a.Factions = faction.NewEngine(a.Store, a.Permissions, a.Audit, a.Bus, a.Locks, log.Named("faction"))
	a.Economy = economy.NewService(a.Store, a.Permissions, a.Audit, a.Bus, a.Locks, log.Named("economy"))
	a.Jobs = job.NewService(a.Store, cat, a.Factions, a.Bus, a.Locks, cfg.PayrollInterval, log.Named("job"))

	a.Commands = command.New(command.Engines{
		Permissions: a.Permissions,
		Moderation:  a.Moderation,
		Vehicles:    a.Vehicles,
		Properties:  a.Properties,
		Factions:    a.Factions,
		Economy:     a.Economy,
		Jobs:        a.Jobs,
	}, a.Sessions, a.Store, text, log.Named("command"))
	a.Commands.SetObserver(metrics.ObserveCommand)

	a.Hub = gateway.NewHub(a.Sessions, a.Commands, a.Moderation, a.Permissions, a.Factions, text, rdb, log.Named("gateway"))
	a.Hub.SetObserver(metrics.ObserveConnections)
	a.Hub.SetVehicles(a.Vehicles)

	a.Sessions.Subscribe(a.Bus)
	a.Hub.Subscribe(a.Bus)
	metrics.Subscribe(a.Bus)
	if bot != nil {
		a.Notifier = notify.NewStaffNotifier(bot, cfg.TelegramStaffChatID, a.Factions, log.Named("notify"))
		a.Notifier.Subscribe(a.Bus)
	}
	return a, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

func loadText(dir string) (*localization.Localizer, error) {
	if dir == "" {
		return localization.New()
	}
	text, err := localization.NewLocalizer(dir)
	if err != nil {
		return nil, fmt.Errorf("load locales %s: %w", dir, err)
	}
	return text, nil
}

// Load rebuilds every in-memory index from the store. It must finish
// before the runtime is served. A failed grant load is only logged: the
// registry then runs with nobody holding any permission.
func (a *App) Load(ctx context.Context) error {
	steps := []struct {
		name     string
		load     func(context.Context) error
		optional bool
	}{
		{name: "permissions", load: a.Permissions.Load, optional: true},
		{name: "moderation", load: a.Moderation.Load},
		{name: "vehicles", load: a.Vehicles.Assets().Load},
		{name: "properties", load: a.Properties.Assets().Load},
		{name: "factions", load: a.Factions.Load},
	}
	for _, s := range steps {
		err := s.load(ctx)
		switch {
		case err == nil:
		case s.optional:
			a.Log.Error("load step failed, continuing", zap.String("step", s.name), zap.Error(err))
		default:
			return fmt.Errorf("load %s: %w", s.name, err)
		}
	}
	a.Log.Info("state loaded", zap.Int("factions", len(a.Factions.List())))
	return nil
}

// Start runs the hub, the payroll loop and the notifier until ctx ends.
func (a *App) Start(ctx context.Context) {
	go a.Hub.Run(ctx)
	go a.Jobs.Run(ctx)
	if a.Notifier != nil {
		go a.Notifier.Run(ctx)
	}
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.Store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	h := handler.NewHandler(a.Hub, a.Config.RuntimeSecret, a.Moderation, a.Sessions, a.Factions, a.Ping, a.Log.Named("http"))
	h.Routes(r)
	return r
}
