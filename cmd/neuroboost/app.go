package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neuroboost/progress-engine/config"
	"github.com/neuroboost/progress-engine/internal/application/command"
	"github.com/neuroboost/progress-engine/internal/application/eventhandler"
	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/application/query"
	"github.com/neuroboost/progress-engine/internal/domain/motivation"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/infrastructure/messaging"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/neuroboost/progress-engine/internal/interface/http"
	"github.com/neuroboost/progress-engine/internal/interface/http/handlers"
	"github.com/neuroboost/progress-engine/pkg/circuitbreaker"
	"github.com/neuroboost/progress-engine/pkg/logger"
	"github.com/neuroboost/progress-engine/pkg/retry"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

// store is what every persistence backend provides.
type store interface {
	gamification.UnitOfWork
	Repositories() gamification.Scope
}

// app holds the wired object graph of one process.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	clock  timeutil.Clock
	store  store
	engine *gamification.Engine
	bus    shared.EventBus
	health *handlers.CompositeHealthChecker

	// nil unless Redis is enabled
	summaryCache *redis.SummaryCache

	closers []func() error
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.Format(cfg.Log.Format),
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// newApp connects storage, optional Redis, the event bus and the engine.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    newLogger(cfg),
		clock:  timeutil.NewSystemClock(cfg.Location()),
		health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var locker gamification.Locker
	if cfg.Redis.Enabled {
		client, err := a.openRedis(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		locker = redis.NewUserLock(client, cfg.Redis.LockTTL, cfg.Redis.LockMaxWait)
		a.summaryCache = redis.NewSummaryCache(client, cfg.Redis.CacheTTL).
			WithBreaker(circuitbreaker.CacheBreaker(a.logBreakerChange))

		bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:  client.Redis(),
			Channel: cfg.Redis.EventChannel,
			Local:   messaging.DefaultInMemoryEventBusConfig(),
			Logger:  a.log,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("start event relay: %w", err)
		}
		a.bus = bus
		a.closers = append(a.closers, bus.Close)
	} else {
		busCfg := messaging.DefaultInMemoryEventBusConfig()
		busCfg.Logger = a.log
		bus := messaging.NewInMemoryEventBus(busCfg)
		a.bus = bus
		a.closers = append(a.closers, bus.Close)
	}

	if a.summaryCache != nil {
		if err := eventhandler.NewOnProgressChangedHandler(a.summaryCache, a.log).Register(a.bus); err != nil {
			a.Close()
			return nil, fmt.Errorf("register cache invalidation: %w", err)
		}
	}
	if err := eventhandler.NewAuditLogHandler(a.log).Register(a.bus); err != nil {
		a.Close()
		return nil, fmt.Errorf("register audit log: %w", err)
	}

	engine, err := gamification.NewEngine(gamification.Dependencies{
		UnitOfWork:  a.store,
		Clock:       a.clock,
		Locker:      locker,
		Publisher:   a.bus,
		Invalidator: a.invalidatorOrNil(),
		Logger:      a.log,
	}, gamification.Config{
		RewardOncePerTask: cfg.Rewards.OncePerTask,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	a.log.Info("progress engine ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.Bool("redis", cfg.Redis.Enabled),
		logger.String("timezone", cfg.Location().String()),
		logger.Any("flags", cfg.EnabledFlags()),
	)
	return a, nil
}

func (a *app) logBreakerChange(name string, from, to circuitbreaker.State) {
	a.log.Warn("circuit breaker state changed",
		logger.String("breaker", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.DriverPostgres:
		conn, err := a.connectPostgres(ctx)
		if err != nil {
			return err
		}
		if a.cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return err
			}
			a.log.Info("database schema is up to date", logger.Int("applied", applied))
		}
		a.store = postgres.NewStore(conn)
		a.health.AddCheck("database", handlers.NewPingCheck(conn))

	case config.DriverSQLite:
		path := a.cfg.SQLite.Path
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.store = db
		a.health.AddCheck("database", handlers.NewPingCheck(db))

	case config.DriverMemory:
		a.log.Warn("using in-memory storage, data is lost on exit")
		a.store = memory.NewStore()

	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	return nil
}

// connectPostgres dials with the startup retrier so the service survives a
// database that comes up a few seconds after it.
func (a *app) connectPostgres(ctx context.Context) (*postgres.Connection, error) {
	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = a.cfg.Database.MaxConns
	opts.MinConns = a.cfg.Database.MinConns
	opts.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	opts.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnectionFromURL(ctx, a.cfg.Database.URL, opts)
	}, retry.StartupOptions(retry.WithOnRetry(a.logStartupRetry("database")))...)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		conn.Close()
		return nil
	})
	return conn, nil
}

func (a *app) openRedis(ctx context.Context) (*redis.Client, error) {
	rc := redis.DefaultConfig()
	rc.Addr = a.cfg.Redis.Addr
	rc.Password = a.cfg.Redis.Password
	rc.DB = a.cfg.Redis.DB
	rc.PoolSize = a.cfg.Redis.PoolSize

	client, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Client, error) {
		return redis.NewClient(ctx, rc)
	}, retry.StartupOptions(retry.WithOnRetry(a.logStartupRetry("redis")))...)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.health.AddCheck("redis", handlers.NewPingCheck(client))
	return client, nil
}

// logStartupRetry reports a failed connection attempt before the next one.
func (a *app) logStartupRetry(target string) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		a.log.Warn(target+" not reachable yet",
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err))
	}
}

// summaryCacheOrNil keeps a nil *SummaryCache from becoming a non-nil interface.
func (a *app) summaryCacheOrNil() query.SummaryCache {
	if a.summaryCache == nil {
		return nil
	}
	return a.summaryCache
}

func (a *app) invalidatorOrNil() gamification.Invalidator {
	if a.summaryCache == nil {
		return nil
	}
	return a.summaryCache
}

func (a *app) httpDependencies() httpapi.Dependencies {
	repos := a.store.Repositories()
	return httpapi.Dependencies{
		ToggleTask:    command.NewToggleTaskHandler(a.engine),
		Tasks:         command.NewTaskHandler(a.engine),
		LogFocus:      command.NewLogFocusSessionHandler(a.engine),
		CreditFocus:   command.NewCreditFocusSessionHandler(a.engine),
		Profiles:      command.NewProfileHandler(a.engine),
		Summary:       query.NewGetProgressSummaryHandler(repos, a.summaryCacheOrNil(), a.log),
		Weekly:        query.NewGetWeeklyProgressHandler(repos, a.clock),
		History:       query.NewGetXPHistoryHandler(repos),
		Shield:        query.NewGetShieldHandler(repos, a.clock, motivation.NewSeededPicker(uint64(a.clock.Now().UnixNano()))),
		ListTasks:     query.NewListTasksHandler(repos),
		Logger:        a.log,
		HealthChecker: a.health,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
