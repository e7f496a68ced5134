package importers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/tabular"
)

// EventRecorder keeps the history of job phases.
type EventRecorder interface {
	Record(ctx context.Context, jobID uint, phase entities.JobPhase, from, to entities.JobStatus, description string, counters map[string]int, failure error) error
}

// JobOutcome is what a pass did to one job.
type JobOutcome struct {
	JobID    uint               `json:"job_id"`
	Status   entities.JobStatus `json:"status"`
	Valid    int                `json:"valid,omitempty"`
	Invalid  int                `json:"invalid,omitempty"`
	Imported int                `json:"imported,omitempty"`
	Failed   int                `json:"failed,omitempty"`
	Skipped  bool               `json:"skipped,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// PassResult collects the outcomes of one driver pass.
type PassResult struct {
	Jobs []JobOutcome `json:"jobs"`
}

// Pipeline drives jobs through the mapper, the stager and the committer.
// Only one pass or per-job call runs at a time.
type Pipeline struct {
	jobs      *jobs.Repository
	mapper    *Mapper
	stager    *Stager
	committer *Committer
	history   EventRecorder
	out       io.Writer
	logger    *logging.Logger

	mu sync.Mutex
}

type PipelineConfig struct {
	Jobs      *jobs.Repository
	Resources Resources
	History   EventRecorder    // optional
	Out       io.Writer        // per-job operator messages; nil discards
	Logger    *logging.Logger  // nil means no logging
	Defaults  tabular.Options  // CSV delimiter and quote when a job sets none
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		jobs:      cfg.Jobs,
		mapper:    NewMapper(cfg.Jobs, cfg.Resources, cfg.Defaults),
		stager:    NewStager(cfg.Jobs, cfg.Resources, cfg.Defaults),
		committer: NewCommitter(cfg.Jobs, cfg.Resources),
		history:   cfg.History,
		out:       out,
		logger:    logger,
	}
}

// Process runs the mapper and the stager on every job in uploaded or
// processing, oldest first. A failing job does not stop the pass; the
// returned error joins the infrastructure failures encountered.
func (p *Pipeline) Process(ctx context.Context) (*PassResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, err := p.jobs.ListJobs(ctx, entities.JobStatusUploaded, entities.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("list jobs to process: %w", err)
	}
	return p.runPass(ctx, pending, p.processJob)
}

// Import runs the committer on every processed job, oldest first.
func (p *Pipeline) Import(ctx context.Context) (*PassResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, err := p.jobs.ListJobs(ctx, entities.JobStatusProcessed)
	if err != nil {
		return nil, fmt.Errorf("list jobs to import: %w", err)
	}
	return p.runPass(ctx, pending, p.importJob)
}

// ProcessJob maps and stages one job.
func (p *Pipeline) ProcessJob(ctx context.Context, jobID uint) (*JobOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processJob(ctx, jobID)
}

// ImportJob commits one job.
func (p *Pipeline) ImportJob(ctx context.Context, jobID uint) (*JobOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.importJob(ctx, jobID)
}

func (p *Pipeline) runPass(ctx context.Context, pending []entities.ImportJob, run func(context.Context, uint) (*JobOutcome, error)) (*PassResult, error) {
	result := &PassResult{Jobs: make([]JobOutcome, 0, len(pending))}
	var errs []error
	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, err := run(ctx, job.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", job.ID, err))
		}
		if outcome != nil {
			result.Jobs = append(result.Jobs, *outcome)
		}
	}
	return result, errors.Join(errs...)
}

func (p *Pipeline) processJob(ctx context.Context, jobID uint) (*JobOutcome, error) {
	ctx = p.logger.WithValue(ctx, zap.Uint("job_id", jobID), zap.String("phase", "process"))
	log := p.logger.WithContext(ctx)
	outcome := &JobOutcome{JobID: jobID}

	mapped, err := p.mapper.Prepare(ctx, jobID)
	var mismatch *HeaderMismatchError
	switch {
	case errors.As(err, &mismatch):
		fmt.Fprintf(p.out, "Cannot process job #%d. %s\n", jobID, HeaderMismatchReason)
		log.Warn("column headings do not match stored map", zap.String("detail", mismatch.Detail()))
		p.record(ctx, jobID, entities.JobPhaseMap, mapped.From, entities.JobStatusFailed, HeaderMismatchReason, nil, nil)
		outcome.Status = entities.JobStatusFailed
		outcome.Message = HeaderMismatchReason
		return outcome, nil
	case err != nil:
		return p.refused(ctx, outcome, entities.JobPhaseMap, err)
	}
	description := "Column map verified"
	if mapped.Derived {
		description = "Column map derived from header"
	}
	p.record(ctx, jobID, entities.JobPhaseMap, mapped.From, entities.JobStatusProcessing, description, nil, nil)

	staged, err := p.stager.StageRows(ctx, jobID)
	switch {
	case errors.As(err, &mismatch):
		fmt.Fprintf(p.out, "Cannot process job #%d. %s\n", jobID, HeaderMismatchReason)
		p.record(ctx, jobID, entities.JobPhaseStage, entities.JobStatusProcessing, entities.JobStatusFailed, HeaderMismatchReason, nil, nil)
		outcome.Status = entities.JobStatusFailed
		outcome.Message = HeaderMismatchReason
		return outcome, nil
	case err != nil:
		return p.refused(ctx, outcome, entities.JobPhaseStage, err)
	}

	outcome.Status = staged.Status
	outcome.Valid = staged.Valid
	outcome.Invalid = staged.Invalid
	if staged.Status == entities.JobStatusFailed {
		outcome.Message = NoValidLinesReason
	}
	counters := map[string]int{"valid": staged.Valid, "invalid": staged.Invalid}
	p.record(ctx, jobID, entities.JobPhaseStage, entities.JobStatusProcessing, staged.Status,
		fmt.Sprintf("Staged %d lines", staged.Valid+staged.Invalid), counters, nil)
	log.Info("job staged", zap.Int("valid", staged.Valid), zap.Int("invalid", staged.Invalid), zap.String("status", string(staged.Status)))
	return outcome, nil
}

func (p *Pipeline) importJob(ctx context.Context, jobID uint) (*JobOutcome, error) {
	ctx = p.logger.WithValue(ctx, zap.Uint("job_id", jobID), zap.String("phase", "import"))
	outcome := &JobOutcome{JobID: jobID}

	committed, err := p.committer.CommitJob(ctx, jobID)
	if err != nil {
		return p.refused(ctx, outcome, entities.JobPhaseCommit, err)
	}

	outcome.Status = committed.Status
	outcome.Imported = committed.Imported
	outcome.Failed = committed.Failed
	counters := map[string]int{"imported": committed.Imported, "failed": committed.Failed}
	p.record(ctx, jobID, entities.JobPhaseCommit, entities.JobStatusProcessed, committed.Status,
		fmt.Sprintf("Committed %d lines", committed.Imported), counters, nil)
	p.logger.WithContext(ctx).Info("job committed",
		zap.Int("imported", committed.Imported), zap.Int("failed", committed.Failed), zap.String("status", string(committed.Status)))
	return outcome, nil
}

// refused turns a phase error into an outcome. A job that moved on or
// vanished is skipped quietly; anything else is an infrastructure failure
// and is returned.
func (p *Pipeline) refused(ctx context.Context, outcome *JobOutcome, phase entities.JobPhase, err error) (*JobOutcome, error) {
	log := p.logger.WithContext(ctx)
	if errors.Is(err, ErrUnexpectedStatus) || errors.Is(err, ErrAlreadyStaged) || errors.Is(err, jobs.ErrJobNotFound) {
		log.Info("job skipped", zap.Error(err))
		outcome.Skipped = true
		outcome.Message = err.Error()
		if job, getErr := p.jobs.GetJob(ctx, outcome.JobID); getErr == nil {
			outcome.Status = job.Status
		}
		return outcome, nil
	}

	log.Error("job phase failed", zap.Error(err))
	if job, getErr := p.jobs.GetJob(ctx, outcome.JobID); getErr == nil {
		outcome.Status = job.Status
		p.record(ctx, job.ID, phase, job.Status, "", "Phase aborted", nil, err)
	}
	outcome.Message = err.Error()
	return outcome, err
}

func (p *Pipeline) record(ctx context.Context, jobID uint, phase entities.JobPhase, from, to entities.JobStatus, description string, counters map[string]int, failure error) {
	if p.history == nil {
		return
	}
	if err := p.history.Record(ctx, jobID, phase, from, to, description, counters, failure); err != nil {
		p.logger.WithContext(ctx).Warn("failed to record job event", zap.Error(err))
	}
}
