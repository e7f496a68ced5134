package http

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahana/importer/internal/database"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// Pinger is a backing store the health check can reach. *tasks.Client
// implements it for the task database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db        *database.Database
	version   string
	uploadDir string
	taskStore Pinger
}

func NewHealthController(db *database.Database, version string) *HealthController {
	return &HealthController{
		db:      db,
		version: version,
	}
}

// WithUploadDir adds a check that uploads can be stored in dir.
func (h *HealthController) WithUploadDir(dir string) *HealthController {
	h.uploadDir = dir
	return h
}

// WithTaskStore adds a check of the background task database.
func (h *HealthController) WithTaskStore(p Pinger) *HealthController {
	h.taskStore = p
	return h
}

func (h *HealthController) Status(c *gin.Context) {
	ctx := c.Request.Context()
	checks := make(map[string]string)
	healthy := true
	report := func(name string, err error) {
		if err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if h.db != nil {
		report("database", h.pingDatabase(ctx))
	} else {
		checks["database"] = "not configured"
	}
	if h.uploadDir != "" {
		report("upload_dir", checkWritableDir(h.uploadDir))
	}
	if h.taskStore != nil {
		report("tasks", h.taskStore.Ping(ctx))
	}

	health := HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if !healthy {
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

func (h *HealthController) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// checkWritableDir creates and removes a scratch file in dir.
func checkWritableDir(dir string) error {
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}
