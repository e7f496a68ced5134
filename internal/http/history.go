package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/logging"
)

type HistoryController struct {
	history *history.Repository
	logger  *logging.Logger
}

func NewHistoryController(repo *history.Repository, logger *logging.Logger) *HistoryController {
	return &HistoryController{history: repo, logger: logger}
}

// JobEvents returns the phase history of one job, oldest first.
// GET /api/jobs/:id/events
func (hc *HistoryController) JobEvents(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	events, err := hc.history.ListForJob(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, hc.logger, err, "list job events")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Events returns paginated events across all jobs, most recent first.
// GET /api/events
func (hc *HistoryController) Events(c *gin.Context) {
	page, limit := parsePage(c)
	offset := (page - 1) * limit

	events, total, err := hc.history.GetEvents(c.Request.Context(), limit, offset)
	if err != nil {
		respondInternalError(c, hc.logger, err, "list events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+len(events)) < total,
		TotalPages: totalPages,
	})
}
