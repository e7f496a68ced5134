package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
)

// JobRunner runs one phase of one import job. A returned error is an
// infrastructure failure; problems with the data are reported in the outcome.
type JobRunner interface {
	ProcessJob(ctx context.Context, jobID uint) (*importers.JobOutcome, error)
	ImportJob(ctx context.Context, jobID uint) (*importers.JobOutcome, error)
}

var errRunnerMissing = errors.New("job runner not configured")

// jobQueueConfig is shared by the job phase queues. Attempts are retried
// only for errors the runner returns, which never include line failures.
func jobQueueConfig(name string) backlite.QueueConfig {
	d := DefaultConfig()
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: d.MaxRetries,
		Backoff:     d.RetryDelay,
		Timeout:     d.TaskTimeout,
		Retention: &backlite.Retention{
			Duration:   d.RetentionDuration,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ProcessJobTask maps and stages one uploaded job.
type ProcessJobTask struct {
	JobID uint `json:"job_id"`
}

func (t ProcessJobTask) Config() backlite.QueueConfig {
	return jobQueueConfig("process_import_job")
}

// ImportJobTask commits the staged lines of one processed job.
type ImportJobTask struct {
	JobID uint `json:"job_id"`
}

func (t ImportJobTask) Config() backlite.QueueConfig {
	return jobQueueConfig("commit_import_job")
}

// ProcessJobProcessor creates a processor function for ProcessJobTask.
func ProcessJobProcessor(runner JobRunner, logger *logging.Logger) backlite.QueueProcessor[ProcessJobTask] {
	return func(ctx context.Context, task ProcessJobTask) error {
		if runner == nil {
			return errRunnerMissing
		}
		outcome, err := runner.ProcessJob(ctx, task.JobID)
		if err != nil {
			return fmt.Errorf("process job %d: %w", task.JobID, err)
		}
		logOutcome(logger, "process", outcome)
		return nil
	}
}

// ImportJobProcessor creates a processor function for ImportJobTask.
func ImportJobProcessor(runner JobRunner, logger *logging.Logger) backlite.QueueProcessor[ImportJobTask] {
	return func(ctx context.Context, task ImportJobTask) error {
		if runner == nil {
			return errRunnerMissing
		}
		outcome, err := runner.ImportJob(ctx, task.JobID)
		if err != nil {
			return fmt.Errorf("import job %d: %w", task.JobID, err)
		}
		logOutcome(logger, "import", outcome)
		return nil
	}
}

func NewProcessJobQueue(runner JobRunner, logger *logging.Logger) backlite.Queue {
	return backlite.NewQueue(ProcessJobProcessor(runner, logger))
}

func NewImportJobQueue(runner JobRunner, logger *logging.Logger) backlite.Queue {
	return backlite.NewQueue(ImportJobProcessor(runner, logger))
}

func logOutcome(logger *logging.Logger, phase string, outcome *importers.JobOutcome) {
	if logger == nil || outcome == nil {
		return
	}
	logger.Info("task finished",
		zap.String("phase", phase),
		zap.Uint("job_id", outcome.JobID),
		zap.String("status", string(outcome.Status)),
		zap.Bool("skipped", outcome.Skipped),
		zap.String("message", outcome.Message))
}

// retentionFor converts whole days into a duration, falling back to 30 days.
func retentionFor(days int) time.Duration {
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
