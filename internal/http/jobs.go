package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/payload"
	"github.com/sahana/importer/internal/tabular"
	"github.com/sahana/importer/internal/tasks"
)

// JobsController exposes the job registry and the pipeline phases.
type JobsController struct {
	jobs   *jobs.Repository
	intake *importers.Intake
	runner JobRunner
	queue  TaskQueue
	logger *logging.Logger
}

func NewJobsController(repo *jobs.Repository, intake *importers.Intake, runner JobRunner, queue TaskQueue, logger *logging.Logger) *JobsController {
	return &JobsController{jobs: repo, intake: intake, runner: runner, queue: queue, logger: logger}
}

// JobResponse is a job with its line counts. Terminal jobs take no
// further phase runs.
type JobResponse struct {
	*entities.ImportJob
	Lines    map[entities.LineStatus]int64 `json:"lines"`
	Terminal bool                          `json:"terminal"`
}

// LineResponse is a staged line with its payload decoded.
type LineResponse struct {
	entities.ImportLine
	Data    payload.Payload `json:"data,omitempty"`
	Corrupt bool            `json:"corrupt,omitempty"`
}

// CreateJobForm is the multipart form of POST /api/jobs.
type CreateJobForm struct {
	Module     string `form:"module" binding:"required"`
	Resource   string `form:"resource" binding:"required"`
	Delimiter  string `form:"delimiter"`
	Quote      string `form:"quote"`
	Transform  bool   `form:"transform"`
	Stylesheet string `form:"stylesheet"`
	ColumnMap  string `form:"column_map"` // JSON array of {"header","field"}
}

// Create handles POST /api/jobs.
func (jc *JobsController) Create(c *gin.Context) {
	var form CreateJobForm
	if err := c.ShouldBind(&form); err != nil {
		respondBadRequest(c, "module and resource are required")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file is required")
		return
	}

	var columnMap entities.ColumnMap
	if form.ColumnMap != "" {
		if err := json.Unmarshal([]byte(form.ColumnMap), &columnMap); err != nil {
			respondBadRequest(c, "column_map must be a JSON array of header/field bindings")
			return
		}
	}

	body, err := file.Open()
	if err != nil {
		respondInternalError(c, jc.logger, err, "open upload")
		return
	}
	defer body.Close()

	job, err := jc.intake.CreateJob(c.Request.Context(), importers.Upload{
		Module:     form.Module,
		Resource:   form.Resource,
		FileName:   file.Filename,
		Body:       body,
		Delimiter:  form.Delimiter,
		Quote:      form.Quote,
		Transform:  form.Transform,
		Stylesheet: form.Stylesheet,
		ColumnMap:  columnMap,
	})
	switch {
	case errors.Is(err, importers.ErrUnknownResource), errors.Is(err, jobs.ErrUnknownResource):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "unknown_resource"})
		return
	case errors.Is(err, importers.ErrUnknownField):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "unknown_field"})
		return
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "unsupported_format"})
		return
	case errors.Is(err, importers.ErrInvalidDialect):
		respondBadRequest(c, err.Error())
		return
	case err != nil:
		respondInternalError(c, jc.logger, err, "create job")
		return
	}

	c.JSON(http.StatusCreated, job)
}

// List handles GET /api/jobs, optionally filtered by ?status=.
func (jc *JobsController) List(c *gin.Context) {
	var statuses []entities.JobStatus
	for _, s := range c.QueryArray("status") {
		status := entities.JobStatus(s)
		if !status.Valid() {
			respondBadRequest(c, "invalid status "+strconv.Quote(s))
			return
		}
		statuses = append(statuses, status)
	}

	list, err := jc.jobs.ListJobs(c.Request.Context(), statuses...)
	if err != nil {
		respondInternalError(c, jc.logger, err, "list jobs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list, "total": len(list)})
}

// Get handles GET /api/jobs/:id.
func (jc *JobsController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	job, ok := jc.load(c, id)
	if !ok {
		return
	}
	counts, err := jc.jobs.CountLines(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, jc.logger, err, "count lines")
		return
	}
	c.JSON(http.StatusOK, JobResponse{ImportJob: job, Lines: counts, Terminal: job.Status.IsTerminal()})
}

// Lines handles GET /api/jobs/:id/lines, optionally filtered by ?status=.
func (jc *JobsController) Lines(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := jc.load(c, id); !ok {
		return
	}

	var statuses []entities.LineStatus
	for _, s := range c.QueryArray("status") {
		status := entities.LineStatus(s)
		if !status.Valid() {
			respondBadRequest(c, "invalid status "+strconv.Quote(s))
			return
		}
		statuses = append(statuses, status)
	}

	lines, err := jc.jobs.ListLines(c.Request.Context(), id, statuses...)
	if err != nil {
		respondInternalError(c, jc.logger, err, "list lines")
		return
	}
	out := make([]LineResponse, len(lines))
	for i, line := range lines {
		out[i] = LineResponse{ImportLine: line}
		if p, err := payload.Decode(line.Data); err == nil {
			out[i].Data = p
		} else {
			out[i].Corrupt = true
		}
	}
	c.JSON(http.StatusOK, gin.H{"lines": out, "total": len(out)})
}

// Process handles POST /api/jobs/:id/process.
func (jc *JobsController) Process(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := jc.load(c, id); !ok {
		return
	}
	if jc.queue != nil {
		jc.enqueue(c, tasks.ProcessJobTask{JobID: id}, "process")
		return
	}
	outcome, err := jc.runner.ProcessJob(c.Request.Context(), id)
	jc.respondOutcome(c, outcome, err)
}

// Import handles POST /api/jobs/:id/import.
func (jc *JobsController) Import(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := jc.load(c, id); !ok {
		return
	}
	if jc.queue != nil {
		jc.enqueue(c, tasks.ImportJobTask{JobID: id}, "import")
		return
	}
	outcome, err := jc.runner.ImportJob(c.Request.Context(), id)
	jc.respondOutcome(c, outcome, err)
}

// RunPass handles POST /api/passes/:phase and walks every eligible job inline.
func (jc *JobsController) RunPass(c *gin.Context) {
	var (
		result *importers.PassResult
		err    error
	)
	switch phase := c.Param("phase"); phase {
	case "process":
		result, err = jc.runner.Process(c.Request.Context())
	case "import":
		result, err = jc.runner.Import(c.Request.Context())
	default:
		respondBadRequest(c, "unknown phase "+strconv.Quote(phase))
		return
	}
	if err != nil {
		jc.logger.WithContext(c.Request.Context()).Error("pass finished with errors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"result": result, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/jobs/:id/cancel.
func (jc *JobsController) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	err := jc.jobs.Cancel(c.Request.Context(), id, req.Reason)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		respondNotFound(c, "job")
		return
	case errors.Is(err, jobs.ErrInvalidTransition):
		respondConflict(c, "invalid_transition", err.Error())
		return
	case err != nil:
		respondInternalError(c, jc.logger, err, "cancel job")
		return
	}
	job, _ := jc.jobs.GetJob(c.Request.Context(), id)
	c.JSON(http.StatusOK, job)
}

// Delete handles DELETE /api/jobs/:id. The stored source file goes with it.
func (jc *JobsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	job, ok := jc.load(c, id)
	if !ok {
		return
	}
	if err := jc.jobs.PurgeJob(c.Request.Context(), id); err != nil {
		respondInternalError(c, jc.logger, err, "purge job")
		return
	}
	if err := os.Remove(job.SourceFile); err != nil && !os.IsNotExist(err) {
		jc.logger.WithContext(c.Request.Context()).Warn("could not remove source file",
			zap.String("path", job.SourceFile), zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (jc *JobsController) load(c *gin.Context, id uint) (*entities.ImportJob, bool) {
	job, err := jc.jobs.GetJob(c.Request.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondNotFound(c, "job")
		return nil, false
	}
	if err != nil {
		respondInternalError(c, jc.logger, err, "get job")
		return nil, false
	}
	return job, true
}

func (jc *JobsController) enqueue(c *gin.Context, task backlite.Task, phase string) {
	ids, err := jc.queue.Add(task).Save()
	if err != nil {
		respondInternalError(c, jc.logger, err, "enqueue "+phase)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": ids[0], "phase": phase, "message": "task enqueued"})
}

func (jc *JobsController) respondOutcome(c *gin.Context, outcome *importers.JobOutcome, err error) {
	if err != nil {
		jc.logger.WithContext(c.Request.Context()).Error("job phase failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"outcome": outcome, "error": err.Error()})
		return
	}
	if outcome.Skipped {
		c.JSON(http.StatusConflict, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
