package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MOE349/tenmil-backend-sub001/config"
	"github.com/MOE349/tenmil-backend-sub001/container"
	"github.com/MOE349/tenmil-backend-sub001/models"
	"github.com/MOE349/tenmil-backend-sub001/scheduler"
)

var (
	servePort    string
	serveNoBeat  bool
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API together with the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "HTTP port (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveNoBeat, "no-beat", false, "Do not run beat tasks in this process")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Run database migrations on startup")
}

func runServe(_ *cobra.Command, _ []string) error {
	c, err := buildContainer(func(cfg *config.Config) {
		if servePort != "" {
			cfg.Port = servePort
		}
	})
	if err != nil {
		return err
	}
	defer closeContainer(c)

	cfg := c.Config()
	logger := c.Logger()

	if serveMigrate {
		if err := migrate(c); err != nil {
			return err
		}
	}

	if err := startScheduling(context.Background(), c, !serveNoBeat); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		c.RateLimiter().StartCleanup(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		// Stop scheduler first
		c.Scheduler().Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server exited")
	return nil
}

// startScheduling registers persisted cron jobs, applies the beat schedule and
// starts the scheduler
func startScheduling(ctx context.Context, c *container.Container, withBeat bool) error {
	logger := c.Logger()

	n, err := c.SavingPlans().SyncSchedules(ctx)
	if err != nil {
		return fmt.Errorf("sync cron jobs: %w", err)
	}
	logger.Info("cron jobs registered", "count", n)

	if withBeat {
		schedule, err := scheduler.LoadBeatSchedule(c.Config().BeatScheduleFile)
		if err != nil {
			return err
		}
		if err := c.Beat().Apply(schedule); err != nil {
			return err
		}
	}

	c.Scheduler().Start()
	return nil
}

func migrate(c *container.Container) error {
	if err := models.MigrateAll(c.DB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	cfg := c.Config()
	if err := models.SeedAdminUser(c.DB(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func closeContainer(c *container.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
