package http

import (
	"context"

	"github.com/mikestefanello/backlite"

	"github.com/sahana/importer/internal/database"
	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/resources"
)

// JobRunner runs pipeline phases inline.
type JobRunner interface {
	Process(ctx context.Context) (*importers.PassResult, error)
	Import(ctx context.Context) (*importers.PassResult, error)
	ProcessJob(ctx context.Context, jobID uint) (*importers.JobOutcome, error)
	ImportJob(ctx context.Context, jobID uint) (*importers.JobOutcome, error)
}

// TaskQueue enqueues background tasks. *tasks.Client implements it.
type TaskQueue interface {
	Add(tasks ...backlite.Task) *backlite.TaskAddOp
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// RouterConfig contains all dependencies needed to create the HTTP router.
type RouterConfig struct {
	Database  *database.Database
	Jobs      *jobs.Repository
	History   *history.Repository
	Resources *resources.Registry
	Intake    *importers.Intake
	Runner    JobRunner

	// TaskQueue is optional. Without it phase requests run inline.
	TaskQueue TaskQueue
	Scheduler Scheduler // optional

	// UploadDir is checked by /health when set.
	UploadDir string

	Version string
	Logger  *logging.Logger
}
