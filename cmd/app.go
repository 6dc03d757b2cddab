package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	accountApp "github.com/menofreact/whatsapp-sending-engine/accounts/application"
	accountRepo "github.com/menofreact/whatsapp-sending-engine/accounts/repository"
	"github.com/menofreact/whatsapp-sending-engine/accounts/security"
	coreDB "github.com/menofreact/whatsapp-sending-engine/core/database"
	dispatchApp "github.com/menofreact/whatsapp-sending-engine/dispatch/application"
	dispatchRepo "github.com/menofreact/whatsapp-sending-engine/dispatch/repository"
	"github.com/menofreact/whatsapp-sending-engine/infrastructure/document"
	"github.com/menofreact/whatsapp-sending-engine/infrastructure/valkey"
	"github.com/menofreact/whatsapp-sending-engine/infrastructure/whatsapp/adapter"
	"github.com/menofreact/whatsapp-sending-engine/pkg/msgworker"
	sessionApp "github.com/menofreact/whatsapp-sending-engine/session/application"
	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
	sessionRepo "github.com/menofreact/whatsapp-sending-engine/session/repository"
)

// engine holds every long lived component built from the configuration.
type engine struct {
	db         *gorm.DB
	valkey     *valkey.Client
	accounts   *accountApp.AuthService
	factory    *adapter.Factory
	supervisor *sessionApp.Supervisor
	pool       *msgworker.Pool
	dispatcher *dispatchApp.Dispatcher
	service    *dispatchApp.Service
	scheduler  *dispatchApp.Scheduler
}

// openStores opens the database and creates the tables. Shared with the migrate command.
func openStores(ctx context.Context) (*gorm.DB, *dispatchRepo.ItemGormRepository, *accountRepo.UserGormRepository, error) {
	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	items := dispatchRepo.NewItemGormRepository(db)
	if err := items.InitSchema(ctx); err != nil {
		return nil, nil, nil, err
	}
	users := accountRepo.NewUserGormRepository(db)
	if err := users.InitSchema(ctx); err != nil {
		return nil, nil, nil, err
	}
	return db, items, users, nil
}

func initEngine(ctx context.Context) (*engine, error) {
	db, items, users, err := openStores(ctx)
	if err != nil {
		return nil, err
	}
	e := &engine{db: db}

	if cfg.Database.ValkeyEnabled {
		client, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			// degrade to in-memory counters and local-only websocket fan-out
			logrus.WithError(err).Warn("[VALKEY] Unavailable, continuing without it")
		} else {
			e.valkey = client
			logrus.Infof("[VALKEY] Connected to %s", cfg.Database.ValkeyAddress)
		}
	}

	e.accounts = accountApp.NewAuthService(users, security.NewTokenIssuer(cfg.Security.SecretKey, cfg.Security.TokenTTL))

	adapterCfg := adapter.Config{
		StoragePath: cfg.Paths.Storages,
		Driver:      cfg.Database.Driver,
		LogLevel:    cfg.Whatsapp.LogLevel,
		OS:          cfg.App.OS,
		Platform:    cfg.App.Platform,
		MaxFileSize: cfg.Whatsapp.MaxFileSize,
	}
	if cfg.Database.Driver == "postgres" {
		adapterCfg.PostgresDSN = coreDB.PostgresDSN(cfg)
	}
	e.factory = adapter.NewFactory(adapterCfg)

	var failures sessionDomain.FailureStore = sessionRepo.NewMemoryFailureStore()
	if e.valkey != nil {
		failures = sessionRepo.NewValkeyFailureStore(e.valkey, cfg.Session.FailureCounterTTL)
	}

	e.supervisor = sessionApp.NewSupervisor(e.factory, failures, sessionApp.Options{
		InitTimeout:     cfg.Session.InitTimeout,
		RetryBackoff:    cfg.Session.RetryBackoff,
		ReconnectDelay:  cfg.Session.ReconnectDelay,
		ProbeInterval:   cfg.Session.ProbeInterval,
		MaxInitFailures: cfg.Session.MaxInitFailures,
		QRImageSize:     cfg.Session.QRImageSize,
	})

	e.pool = msgworker.NewPool(cfg.Queue.Workers, cfg.Queue.WorkerQueue)
	e.pool.OnJobEnd = observePoolJob
	e.pool.Start(ctx)

	e.dispatcher = dispatchApp.NewDispatcher(items, e.supervisor, dispatchApp.Options{
		MessageDelay: cfg.Queue.MessageDelay,
		MaxRetries:   cfg.Queue.MaxRetries,
	})
	e.service = dispatchApp.NewService(items, document.NewPDFExtractor(), cfg.Queue.ReportLimit)
	e.scheduler = dispatchApp.NewScheduler(e.dispatcher, cfg.Queue.TickInterval)

	return e, nil
}

// bootstrap runs the one-shot startup work after the server is wired.
func (e *engine) bootstrap(ctx context.Context) {
	if created, err := e.accounts.SeedAdmin(ctx, cfg.Security.AdminUsername, cfg.Security.AdminPassword); err != nil {
		logrus.WithError(err).Error("[ACCOUNTS] Failed to seed admin account")
	} else if created {
		logrus.Infof("[ACCOUNTS] Created admin account %q", cfg.Security.AdminUsername)
	}

	if n, err := e.dispatcher.RecoverStale(ctx); err != nil {
		logrus.WithError(err).Error("[DISPATCH] Failed to recover stale items")
	} else if n > 0 {
		logrus.Warnf("[DISPATCH] Returned %d interrupted items to pending", n)
	}

	e.scheduler.Start(ctx)

	if !cfg.Session.AutoStartOnBoot {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Session.AutoStartDelay):
		}
		started := e.supervisor.AutoStart(ctx, e.bootTenants(ctx))
		logrus.Infof("[SESSION] Auto-started %d sessions", started)
	}()
}

// bootTenants merges active accounts with tenants that already have a paired device on disk.
func (e *engine) bootTenants(ctx context.Context) []string {
	seen := map[string]bool{}
	var out []string

	ids, err := e.accounts.TenantIDs(ctx)
	if err != nil {
		logrus.WithError(err).Error("[SESSION] Failed to list accounts for auto-start")
	}
	for _, id := range append(ids, e.factory.StoredTenants()...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// stop tears components down in dependency order.
func (e *engine) stop() {
	logrus.Info("[APP] Stopping application...")

	e.scheduler.Stop()
	e.dispatcher.Stop()
	e.supervisor.Shutdown()
	e.pool.Stop()

	if e.valkey != nil {
		e.valkey.Close()
	}
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
