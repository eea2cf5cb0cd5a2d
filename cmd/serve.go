package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/alexander-bruun/vitrine/config"
	"github.com/alexander-bruun/vitrine/filestore"
	"github.com/alexander-bruun/vitrine/handlers"
	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/scheduler"
	"github.com/alexander-bruun/vitrine/utils"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command
func NewServeCmd(version string, dataDirectory *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*dataDirectory)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg, version)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Port to run the server on (default $PORT or 3000)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, version string) error {
	log.Infof("Starting Vitrine %s (%s)", version, cfg.Environment)

	// Initialize console log streaming for /sync/logs
	utils.InitializeConsoleLogger()

	if err := models.Initialize(cfg.DataDirectory); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := models.Close(); err != nil {
			log.Errorf("Failed to close database: %v", err)
		}
	}()

	rt, err := newComponents(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		StrictRouting: true,
		ServerHeader:  "Vitrine",
		AppName:       fmt.Sprintf("Vitrine %s", version),
	})

	services := &handlers.Services{
		Sync:         rt.scheduler,
		Diagnostics:  models.NewRepository(),
		Resolver:     rt.resolver,
		Proxy:        rt.proxy,
		DebugAllowed: cfg.ResolverDebug,
	}
	if local, ok := rt.store.(*filestore.LocalStore); ok {
		services.StorageRoot = local.Root()
	}
	handlers.Initialize(app, services)

	cron := scheduler.NewCronScheduler()
	if cfg.SyncSchedule != "" {
		job := &scheduler.SyncJob{Scheduler: rt.scheduler}
		if err := cron.AddJob(job.Name(), cfg.SyncSchedule, job); err != nil {
			return fmt.Errorf("failed to schedule sync: %w", err)
		}
		cron.Start()
		log.Infof("Scheduled product image sync: %s", cfg.SyncSchedule)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		stopSchedule(cron)
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	stopSchedule(cron)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.scheduler.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Sync batch did not finish before shutdown: %v", err)
	}
	return app.ShutdownWithContext(shutdownCtx)
}

func stopSchedule(cron *scheduler.CronScheduler) {
	if !cron.IsRunning() {
		return
	}
	cron.Stop()
	log.Info("Stopped scheduled product image sync")
}
