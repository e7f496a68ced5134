package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahana/importer/internal/scheduler"
)

// Scheduler is the cron driver. *scheduler.DriverScheduler implements it.
type Scheduler interface {
	IsRunning() bool
	NextRunTimes() map[string]time.Time
	RunNow(phase string) error
}

type SchedulerController struct {
	scheduler Scheduler
}

func NewSchedulerController(s Scheduler) *SchedulerController {
	return &SchedulerController{scheduler: s}
}

// Status handles GET /api/scheduler.
func (sc *SchedulerController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":  sc.scheduler.IsRunning(),
		"next_run": sc.scheduler.NextRunTimes(),
	})
}

// Trigger handles POST /api/scheduler/:phase. The pass runs in the
// background with the same overlap protection as scheduled runs.
func (sc *SchedulerController) Trigger(c *gin.Context) {
	phase := c.Param("phase")
	if err := sc.scheduler.RunNow(phase); err != nil {
		if errors.Is(err, scheduler.ErrUnknownPhase) {
			respondBadRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"phase": phase, "message": "pass started"})
}
