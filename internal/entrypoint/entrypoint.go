package entrypoint

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/config"
	"github.com/sahana/importer/internal/database"
	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/database/jobs"
	http_controllers "github.com/sahana/importer/internal/http"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/resources/builtin"
	"github.com/sahana/importer/internal/scheduler"
	"github.com/sahana/importer/internal/tabular"
	"github.com/sahana/importer/internal/tasks"
	"github.com/sahana/importer/internal/transform"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, logger *logging.Logger, onShutdown ShutdownFunc) {
	if err := os.MkdirAll(cfg.Import.UploadDir, 0o755); err != nil {
		logger.Fatal("upload directory is not usable", zap.String("dir", cfg.Import.UploadDir), zap.Error(err))
	}
	if _, err := os.Stat(cfg.Import.StylesheetDir); os.IsNotExist(err) {
		logger.Warn("stylesheet directory does not exist, transformed uploads will fail",
			zap.String("dir", cfg.Import.StylesheetDir))
	}

	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// kill -9 cannot be caught, so SIGINT and SIGTERM are enough
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server", zap.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work before the server so no pass starts mid-shutdown.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}

func Run(cfg *config.Config, version string) {
	logger := logging.NewLog(cfg.Log)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Info("starting importer", zap.String("version", version), zap.String("driver", cfg.Database.Driver))

	db, err := database.NewDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("driver", cfg.Database.Driver))
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database", zap.Error(err))
		}
	}()

	registry := builtin.NewRegistry()
	jobsRepo := jobs.NewRepository(db.DB, registry)
	historyRepo := history.NewRepository(db.DB)
	defaults := tabular.Dialect(cfg.Import.CSVDelimiter, cfg.Import.CSVQuote)

	xslt := transform.NewXSLTProc(cfg.Import.XSLTProcPath)
	if !xslt.Available() {
		logger.Warn("xsltproc not found, transformed uploads will fail", zap.String("path", cfg.Import.XSLTProcPath))
	}

	intake := importers.NewIntake(importers.IntakeConfig{
		Jobs:          jobsRepo,
		Resources:     registry,
		Transformer:   xslt,
		UploadDir:     cfg.Import.UploadDir,
		StylesheetDir: cfg.Import.StylesheetDir,
		Defaults:      defaults,
		Logger:        logger,
	})
	pipeline := importers.NewPipeline(importers.PipelineConfig{
		Jobs:      jobsRepo,
		Resources: registry,
		History:   historyRepo,
		Out:       os.Stdout,
		Logger:    logger,
		Defaults:  defaults,
	})

	routerCfg := http_controllers.RouterConfig{
		Database:  db,
		Jobs:      jobsRepo,
		History:   historyRepo,
		Resources: registry,
		Intake:    intake,
		Runner:    pipeline,
		UploadDir: cfg.Import.UploadDir,
		Version:   version,
		Logger:    logger,
	}

	// Task queue for per-job phase requests made over HTTP.
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskPath := tasks.DBPath(cfg.Database.DSN)
		if cfg.Database.Driver != config.DriverSQLite {
			taskPath = tasks.DBPath("")
		}
		taskClient, err = tasks.NewClient(taskPath, tasks.FromSettings(cfg.Tasks), logger)
		if err != nil {
			logger.Fatal("failed to initialize task queue", zap.Error(err))
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error("error closing task client", zap.Error(err))
			}
		}()

		taskClient.Register(
			tasks.NewProcessJobQueue(pipeline, logger),
			tasks.NewImportJobQueue(pipeline, logger),
			tasks.NewCleanupHistoryQueue(historyRepo, logger),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		routerCfg.TaskQueue = taskClient
	}

	// Driver passes on cron schedules.
	var driver *scheduler.DriverScheduler
	if cfg.Scheduler.Enabled {
		driver = scheduler.NewDriverScheduler(pipeline, historyRepo, scheduler.Config{
			ProcessSchedule: cfg.Scheduler.ProcessSchedule,
			ImportSchedule:  cfg.Scheduler.ImportSchedule,
			RetentionDays:   cfg.Audit.RetentionDays,
		}, logger)
		if err := driver.Start(context.Background()); err != nil {
			logger.Fatal("failed to start scheduler", zap.Error(err))
		}
		for phase, next := range driver.NextRunTimes() {
			logger.Info("scheduled pass", zap.String("phase", phase), zap.Time("next_run", next))
		}
		routerCfg.Scheduler = driver
	} else {
		logger.Info("scheduler disabled, passes run only on request")
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if driver != nil {
			driver.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, logger, onShutdown)
}
