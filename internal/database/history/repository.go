// Package history stores the per-job event trail written by each pipeline phase.
package history

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/sahana/importer/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogEvent saves a job event.
func (r *Repository) LogEvent(ctx context.Context, event *entities.JobEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Status == "" {
		event.Status = entities.JobEventSuccess
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// Record is a shorthand for LogEvent with counters marshalled into Metadata.
func (r *Repository) Record(ctx context.Context, jobID uint, phase entities.JobPhase, from, to entities.JobStatus, description string, counters map[string]int, failure error) error {
	event := &entities.JobEvent{
		JobID:       jobID,
		Phase:       phase,
		FromStatus:  from,
		ToStatus:    to,
		Description: description,
		Status:      entities.JobEventSuccess,
	}
	if len(counters) > 0 {
		b, err := json.Marshal(counters)
		if err != nil {
			return err
		}
		event.Metadata = string(b)
	}
	if failure != nil {
		event.Status = entities.JobEventFailed
		event.ErrorMsg = truncate(failure.Error(), 500)
	}
	return r.LogEvent(ctx, event)
}

// ListForJob returns the events of one job, oldest first.
func (r *Repository) ListForJob(ctx context.Context, jobID uint) ([]entities.JobEvent, error) {
	var events []entities.JobEvent
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC, id ASC").Find(&events).Error
	return events, err
}

// GetEvents retrieves paginated events across all jobs, most recent first.
func (r *Repository) GetEvents(ctx context.Context, limit, offset int) ([]entities.JobEvent, int64, error) {
	var events []entities.JobEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.JobEvent{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// DeleteOldEvents removes events older than retention.
// Returns the number of deleted events.
func (r *Repository) DeleteOldEvents(retention time.Duration) (int64, error) {
	result := r.db.Where("created_at < ?", time.Now().Add(-retention)).Delete(&entities.JobEvent{})
	return result.RowsAffected, result.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
