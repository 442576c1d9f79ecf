// Package container wires the backend services using go.uber.org/dig.
package container

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/dig"
	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/admin"
	"github.com/MOE349/tenmil-backend-sub001/config"
	"github.com/MOE349/tenmil-backend-sub001/controllers"
	"github.com/MOE349/tenmil-backend-sub001/cronjobs"
	"github.com/MOE349/tenmil-backend-sub001/logging"
	"github.com/MOE349/tenmil-backend-sub001/middleware"
	"github.com/MOE349/tenmil-backend-sub001/routes"
	"github.com/MOE349/tenmil-backend-sub001/scheduler"
	"github.com/MOE349/tenmil-backend-sub001/services"
)

// Container holds the resolved service singletons.
// Callers use the typed getters; they never need to import dig directly.
type Container struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *gorm.DB
	sched       *scheduler.Scheduler
	beat        *scheduler.Beat
	savingPlans *services.SavingPlanService
	events      *services.EventHub
	rateLimiter *middleware.RateLimiter
	router      *gin.Engine
	closers     *closers
}

func (c *Container) Config() *config.Config                   { return c.cfg }
func (c *Container) Logger() *slog.Logger                     { return c.logger }
func (c *Container) DB() *gorm.DB                             { return c.db }
func (c *Container) Scheduler() *scheduler.Scheduler          { return c.sched }
func (c *Container) Beat() *scheduler.Beat                    { return c.beat }
func (c *Container) SavingPlans() *services.SavingPlanService { return c.savingPlans }
func (c *Container) Events() *services.EventHub               { return c.events }
func (c *Container) RateLimiter() *middleware.RateLimiter     { return c.rateLimiter }
func (c *Container) Router() *gin.Engine                      { return c.router }

// closers collects shutdown hooks of the providers
type closers struct {
	fns []func(context.Context) error
}

func (c *closers) add(fn func(context.Context) error) {
	c.fns = append(c.fns, fn)
}

// Close releases connections in reverse order of creation
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers.fns) - 1; i >= 0; i-- {
		if err := c.closers.fns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds and wires all services from cfg
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()
	cl := &closers{}

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *closers { return cl },
		newLogger,
		newDB,
		newScheduler,
		newLocker,
		newRunLog,
		newEventHub,
		newSavingPlanService,
		newBeat,
		newRateLimiter,
		newAuthController,
		newSavingPlanController,
		newSchedulerController,
		newRouter,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		logger *slog.Logger,
		db *gorm.DB,
		sched *scheduler.Scheduler,
		beat *scheduler.Beat,
		savingPlans *services.SavingPlanService,
		events *services.EventHub,
		rateLimiter *middleware.RateLimiter,
		router *gin.Engine,
	) {
		result = &Container{
			cfg:         cfg,
			logger:      logger,
			db:          db,
			sched:       sched,
			beat:        beat,
			savingPlans: savingPlans,
			events:      events,
			rateLimiter: rateLimiter,
			router:      router,
			closers:     cl,
		}
	})
	if err != nil {
		// Release whatever was opened before the failure.
		tmp := &Container{closers: cl}
		_ = tmp.Close(context.Background())
		return nil, err
	}
	return result, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.OutputFile = cfg.LogFile
	lc.JSON = cfg.LogJSON

	logger := logging.New(lc)
	slog.SetDefault(logger)
	return logger, nil
}

func newDB(cfg *config.Config, cl *closers) (*gorm.DB, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	cl.add(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return db, nil
}

func newScheduler(cfg *config.Config, logger *slog.Logger) (*scheduler.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.NewScheduler(loc, logger), nil
}

func newLocker(cfg *config.Config, logger *slog.Logger, cl *closers) cronjobs.Locker {
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		locker, err := services.NewRedisLocker(ctx, cfg.RedisURL)
		if err == nil {
			cl.add(func(context.Context) error { return locker.Close() })
			logger.Info("using redis run lock")
			return locker
		}
		logger.Warn("redis unavailable, using in-process run lock", "error", err)
	}
	return services.NewLocalLocker()
}

func newRunLog(cfg *config.Config, db *gorm.DB, logger *slog.Logger, cl *closers) (services.RunLogStore, error) {
	if cfg.MongoURI == "" {
		return services.NewGormRunLog(db), nil
	}
	runLog, err := services.ConnectMongoRunLog(context.Background(), cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return nil, err
	}
	cl.add(runLog.Close)
	return runLog, nil
}

func newEventHub(logger *slog.Logger, cl *closers) *services.EventHub {
	hub := services.NewEventHub(logger)
	cl.add(func(context.Context) error {
		hub.Shutdown()
		return nil
	})
	return hub
}

func newSavingPlanService(
	cfg *config.Config,
	db *gorm.DB,
	sched *scheduler.Scheduler,
	locker cronjobs.Locker,
	runLog services.RunLogStore,
	events *services.EventHub,
	logger *slog.Logger,
) *services.SavingPlanService {
	return services.NewSavingPlanService(services.SavingPlanServiceConfig{
		DB:        db,
		Scheduler: sched,
		Locker:    locker,
		RunLog:    runLog,
		Publisher: events,
		LockTTL:   cfg.RunLockTTL,
		Logger:    logger,
	})
}

func newBeat(
	cfg *config.Config,
	sched *scheduler.Scheduler,
	savingPlans *services.SavingPlanService,
	runLog services.RunLogStore,
	logger *slog.Logger,
) *scheduler.Beat {
	return scheduler.NewBeat(sched, []scheduler.Syncer{savingPlans}, runLog, cfg.RunLogRetention, logger)
}

func newRateLimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(5, 15*time.Minute, 30*time.Minute)
}

func newAuthController(cfg *config.Config, db *gorm.DB, rl *middleware.RateLimiter, logger *slog.Logger) *admin.AuthController {
	return admin.NewAuthController(db, cfg.JWTSecret, rl, logger)
}

func newSavingPlanController(svc *services.SavingPlanService) *controllers.SavingPlanController {
	return controllers.NewSavingPlanController(svc)
}

func newSchedulerController(sched *scheduler.Scheduler, events *services.EventHub) *controllers.SchedulerController {
	return controllers.NewSchedulerController(sched, events)
}

func newRouter(
	cfg *config.Config,
	db *gorm.DB,
	logger *slog.Logger,
	auth *admin.AuthController,
	rl *middleware.RateLimiter,
	plans *controllers.SavingPlanController,
	sched *controllers.SchedulerController,
) *gin.Engine {
	return routes.NewRouter(routes.Deps{
		DB:          db,
		JWTSecret:   cfg.JWTSecret,
		Production:  cfg.IsProduction(),
		Logger:      logger,
		Auth:        auth,
		RateLimiter: rl,
		SavingPlans: plans,
		Scheduler:   sched,
	})
}
