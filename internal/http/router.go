package http

import (
	"github.com/gin-gonic/gin"

	"github.com/sahana/importer/internal/logging"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Version).WithUploadDir(cfg.UploadDir)
	if p, ok := cfg.TaskQueue.(Pinger); ok {
		health.WithTaskStore(p)
	}
	router.GET("/health", health.Status)

	api := router.Group("/api")

	jobsController := NewJobsController(cfg.Jobs, cfg.Intake, cfg.Runner, cfg.TaskQueue, logger)
	api.POST("/jobs", jobsController.Create)
	api.GET("/jobs", jobsController.List)
	api.GET("/jobs/:id", jobsController.Get)
	api.GET("/jobs/:id/lines", jobsController.Lines)
	api.POST("/jobs/:id/process", jobsController.Process)
	api.POST("/jobs/:id/import", jobsController.Import)
	api.POST("/jobs/:id/cancel", jobsController.Cancel)
	api.DELETE("/jobs/:id", jobsController.Delete)
	api.POST("/passes/:phase", jobsController.RunPass)

	if cfg.History != nil {
		historyController := NewHistoryController(cfg.History, logger)
		api.GET("/jobs/:id/events", historyController.JobEvents)
		api.GET("/events", historyController.Events)
	}

	if cfg.Resources != nil {
		resourcesController := NewResourcesController(cfg.Resources)
		api.GET("/resources", resourcesController.List)
	}

	if cfg.TaskQueue != nil {
		tasksController := NewTasksController(cfg.TaskQueue)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
	}

	if cfg.Scheduler != nil {
		schedulerController := NewSchedulerController(cfg.Scheduler)
		api.GET("/scheduler", schedulerController.Status)
		api.POST("/scheduler/:phase", schedulerController.Trigger)
	}

	return router
}
