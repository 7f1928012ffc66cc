package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"OpportunityScout/internal/config"
	"OpportunityScout/internal/httpapi"
	"OpportunityScout/internal/infrastructure/events"
	"OpportunityScout/internal/infrastructure/parser"
	"OpportunityScout/internal/infrastructure/scheduler"
	"OpportunityScout/internal/infrastructure/storage"
	"OpportunityScout/internal/infrastructure/telegram"
	"OpportunityScout/internal/logging"
	"OpportunityScout/internal/ports"
	"OpportunityScout/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db         *storage.DB
	rdb        *redis.Client
	timers     *scheduler.CronTimers
	supervisor *usecase.Supervisor
	control    *usecase.ControlService
}

// New opens storage, builds the scanners and notifiers and wires the services.
// Nothing is scheduled until Run.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	baseLogger.Info("storage ready", "driver", db.Driver())

	registry, err := parser.NewRegistry(cfg.Platforms, nil, baseLogger.With("component", "scanner"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if len(registry.Platforms()) == 0 {
		baseLogger.Warn("no platforms configured, every scan will fail until platforms are added")
	}

	a := &Application{cfg: cfg, logger: baseLogger, db: db}

	configs := storage.NewConfigRepository(db, baseLogger.With("component", "configs"))
	queue := storage.NewQueueRepository(db)

	engine := usecase.NewEngine(usecase.EngineDeps{
		Configs:          configs,
		Queue:            queue,
		Notifier:         a.notifiers(ctx),
		FeeRate:          cfg.Scoring.FeeRate,
		DefaultPlatforms: cfg.Scoring.DefaultPlatforms,
		Logger:           baseLogger.With("component", "engine"),
	})

	a.timers = scheduler.NewCronTimers(baseLogger)
	daemonLogger := baseLogger.With("component", "daemon")
	a.supervisor = usecase.NewSupervisor(func() *usecase.Daemon {
		return usecase.NewDaemon(usecase.DaemonDeps{
			Configs: configs,
			Engine:  engine,
			Timers:  a.timers,
			Logger:  daemonLogger,
		})
	}, registry, usecase.DaemonOptions{Interval: cfg.Scheduler.IntervalOverride}, daemonLogger)

	a.control = usecase.NewControlService(usecase.ControlDeps{
		Configs: configs,
		Queue:   queue,
		Engine:  engine,
		Scanner: registry,
		Stats:   usecase.NewStatsService(storage.NewStatsRepository(db)),
		Logger:  baseLogger.With("component", "control"),
	})

	return a, nil
}

// notifiers collects the configured sinks. A Redis that cannot be reached at
// startup is logged and skipped.
func (a *Application) notifiers(ctx context.Context) ports.Notifier {
	var sinks usecase.Notifiers

	tg := a.cfg.Notifications.Telegram
	if tg.BotToken != "" && tg.ChatID != "" {
		sinks = append(sinks, telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.BaseURL))
		a.logger.Info("telegram notifications enabled")
	}

	if url := a.cfg.Notifications.Redis.URL; url != "" {
		rdb, err := events.NewRedisClient(ctx, url)
		if err != nil {
			a.logger.Warn("redis notifications disabled", "error", err)
		} else {
			a.rdb = rdb
			sinks = append(sinks, events.NewRedisPublisher(rdb, a.cfg.Notifications.Redis.Channel, a.logger.With("component", "events")))
			a.logger.Info("redis notifications enabled", "channel", a.cfg.Notifications.Redis.Channel)
		}
	}

	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// Run starts the daemon, the expiry job and the control API, and blocks until
// ctx is cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if days := a.cfg.Scheduler.ExpireAfterDays; days > 0 && a.cfg.Scheduler.ExpiryCron != "" {
		if _, err := a.timers.AddSpec(a.cfg.Scheduler.ExpiryCron, func() {
			if _, err := a.control.ExpireQueue(ctx, days); err != nil {
				a.logger.Error("expire queue failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule expiry: %w", err)
		}
	}

	api := httpapi.New(httpapi.Deps{
		Control:         a.control,
		Daemon:          a.supervisor,
		BaseContext:     ctx,
		ExpireAfterDays: a.cfg.Scheduler.ExpireAfterDays,
		Logger:          a.logger.With("component", "http"),
	})

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("control api listening", "addr", a.cfg.HTTP.Addr)
		errCh <- api.Listen(a.cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		if err := api.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.logger.Warn("http shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	}
}

func (a *Application) close() {
	a.supervisor.Stop()
	a.timers.Stop()
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close storage", "error", err)
	}
}
