// Package jobs is the Job Registry: durable storage for import jobs and their
// staged lines, and the only place job status changes are applied.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sahana/importer/internal/entities"
)

var (
	ErrJobNotFound       = errors.New("import job not found")
	ErrLineNotFound      = errors.New("import line not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrUnknownResource   = errors.New("unknown target resource")
	ErrColumnMapFrozen   = errors.New("column map already set")
	ErrInvalidLine       = errors.New("inconsistent import line")
)

// Catalog resolves target resources by (module, resource).
type Catalog interface {
	Has(module, resource string) bool
}

type Repository struct {
	db      *gorm.DB
	catalog Catalog
}

// NewRepository returns a registry. A nil catalog accepts any resource name.
func NewRepository(db *gorm.DB, catalog Catalog) *Repository {
	return &Repository{db: db, catalog: catalog}
}

// DB returns the handle the repository writes through.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, catalog: r.catalog}
}

// Transaction runs fn inside one transaction. Inside an existing transaction
// gorm nests it as a savepoint.
func (r *Repository) Transaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// CreateJob stores a new job in status uploaded and returns its id.
func (r *Repository) CreateJob(ctx context.Context, job *entities.ImportJob) (uint, error) {
	if job.Module == "" || job.Resource == "" {
		return 0, fmt.Errorf("%w: module and resource are required", ErrUnknownResource)
	}
	if r.catalog != nil && !r.catalog.Has(job.Module, job.Resource) {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownResource, job.Module, job.Resource)
	}
	if job.SourceFile == "" {
		return 0, errors.New("source file is required")
	}
	if job.SourceFormat == "" {
		job.SourceFormat = entities.SourceFormatCSV
	}
	if job.HasColumnMap() {
		if _, err := job.GetColumnMap(); err != nil {
			return 0, err
		}
	}

	job.ID = 0
	job.Status = entities.JobStatusUploaded
	job.FailureReason = ""
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	return job.ID, nil
}

func (r *Repository) GetJob(ctx context.Context, id uint) (*entities.ImportJob, error) {
	var job entities.ImportJob
	err := r.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs in any of the given statuses ordered by id. With no
// statuses every job is returned.
func (r *Repository) ListJobs(ctx context.Context, statuses ...entities.JobStatus) ([]entities.ImportJob, error) {
	var jobs []entities.ImportJob
	query := r.db.WithContext(ctx).Order("id ASC")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Find(&jobs).Error
	return jobs, err
}

// SetJobStatus moves a job along one allowed edge and replaces its
// failure reason. Any other edge returns ErrInvalidTransition.
func (r *Repository) SetJobStatus(ctx context.Context, id uint, status entities.JobStatus, reason string) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: job %d %s -> %s", ErrInvalidTransition, id, job.Status, status)
	}

	result := r.db.WithContext(ctx).Model(&entities.ImportJob{}).
		Where("id = ? AND status = ?", id, job.Status).
		Updates(map[string]any{"status": status, "failure_reason": reason})
	if result.Error != nil {
		return fmt.Errorf("set status of job %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %d changed status concurrently", ErrInvalidTransition, id)
	}
	return nil
}

// RecordFailure stores reason on the job without touching its status.
func (r *Repository) RecordFailure(ctx context.Context, id uint, reason string) error {
	result := r.db.WithContext(ctx).Model(&entities.ImportJob{}).
		Where("id = ?", id).
		Update("failure_reason", reason)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return nil
}

// SetColumnMap freezes m into the job. A job's map can be set only once.
func (r *Repository) SetColumnMap(ctx context.Context, id uint, m entities.ColumnMap) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.HasColumnMap() {
		return fmt.Errorf("%w: job %d", ErrColumnMapFrozen, id)
	}
	encoded, err := entities.EncodeColumnMap(m)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&entities.ImportJob{}).
		Where("id = ?", id).
		Update("column_map", encoded).Error
}

// Cancel moves a job to failed between phases. Only jobs whose current
// status has an edge to failed can be cancelled.
func (r *Repository) Cancel(ctx context.Context, id uint, reason string) error {
	if reason == "" {
		reason = "cancelled by operator"
	}
	return r.Transaction(ctx, func(repo *Repository) error {
		return repo.SetJobStatus(ctx, id, entities.JobStatusFailed, reason)
	})
}

// PurgeJob deletes a job together with its lines.
func (r *Repository) PurgeJob(ctx context.Context, id uint) error {
	return r.Transaction(ctx, func(repo *Repository) error {
		if _, err := repo.GetJob(ctx, id); err != nil {
			return err
		}
		if err := repo.db.WithContext(ctx).Where("job_id = ?", id).Delete(&entities.ImportLine{}).Error; err != nil {
			return err
		}
		return repo.db.WithContext(ctx).Delete(&entities.ImportJob{}, id).Error
	})
}

// AppendLine stores one staged line. Valid lines must be pending import with
// no errors and invalid lines must be ignored with a reason.
func (r *Repository) AppendLine(ctx context.Context, line *entities.ImportLine) (uint, error) {
	if err := checkLine(line.Valid, line.Status, line.Errors); err != nil {
		return 0, err
	}
	line.ID = 0
	if err := r.db.WithContext(ctx).Create(line).Error; err != nil {
		return 0, fmt.Errorf("append line %d of job %d: %w", line.LineNo, line.JobID, err)
	}
	return line.ID, nil
}

// ListLines returns a job's lines in ascending line number, optionally
// restricted to the given statuses.
func (r *Repository) ListLines(ctx context.Context, jobID uint, statuses ...entities.LineStatus) ([]entities.ImportLine, error) {
	var lines []entities.ImportLine
	query := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("line_no ASC")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Find(&lines).Error
	return lines, err
}

func (r *Repository) GetLine(ctx context.Context, id uint) (*entities.ImportLine, error) {
	var line entities.ImportLine
	err := r.db.WithContext(ctx).First(&line, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrLineNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateLine sets a line's status and errors.
func (r *Repository) UpdateLine(ctx context.Context, id uint, status entities.LineStatus, errText string) error {
	line, err := r.GetLine(ctx, id)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidLine, status)
	}
	if !line.Valid && status != entities.LineStatusIgnore {
		return fmt.Errorf("%w: invalid line %d cannot become %s", ErrInvalidLine, id, status)
	}
	if status == entities.LineStatusImported && errText != "" {
		return fmt.Errorf("%w: imported line %d must have no errors", ErrInvalidLine, id)
	}
	return r.db.WithContext(ctx).Model(&entities.ImportLine{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "errors": errText}).Error
}

// CountLines returns the number of lines a job has in each status.
func (r *Repository) CountLines(ctx context.Context, jobID uint) (map[entities.LineStatus]int64, error) {
	var rows []struct {
		Status entities.LineStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&entities.ImportLine{}).
		Select("status, COUNT(*) AS count").
		Where("job_id = ?", jobID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[entities.LineStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// HasLines reports whether any line has been staged for the job.
func (r *Repository) HasLines(ctx context.Context, jobID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.ImportLine{}).Where("job_id = ?", jobID).Limit(1).Count(&count).Error
	return count > 0, err
}

func checkLine(valid bool, status entities.LineStatus, errText string) error {
	if valid {
		if status != entities.LineStatusImport && status != entities.LineStatusImported {
			return fmt.Errorf("%w: valid line must be import or imported, got %q", ErrInvalidLine, status)
		}
		if errText != "" {
			return fmt.Errorf("%w: valid line must have no errors", ErrInvalidLine)
		}
		return nil
	}
	if status != entities.LineStatusIgnore {
		return fmt.Errorf("%w: invalid line must be ignore, got %q", ErrInvalidLine, status)
	}
	if errText == "" {
		return fmt.Errorf("%w: invalid line must carry errors", ErrInvalidLine)
	}
	return nil
}
