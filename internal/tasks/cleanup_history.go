package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/logging"
)

// HistoryCleaner provides the ability to delete old job events.
type HistoryCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupHistoryTask removes job events older than the configured retention period.
type CleanupHistoryTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupHistoryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_job_history",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupHistoryProcessor creates a processor function for CleanupHistoryTask.
func CleanupHistoryProcessor(cleaner HistoryCleaner, logger *logging.Logger) backlite.QueueProcessor[CleanupHistoryTask] {
	return func(ctx context.Context, task CleanupHistoryTask) error {
		if cleaner == nil {
			return fmt.Errorf("history cleaner not configured")
		}

		deleted, err := cleaner.DeleteOldEvents(retentionFor(task.RetentionDays))
		if err != nil {
			return fmt.Errorf("cleanup job history: %w", err)
		}

		if logger != nil {
			logger.Info("cleaned up job history", zap.Int64("deleted", deleted), zap.Int("retention_days", task.RetentionDays))
		}
		return nil
	}
}

func NewCleanupHistoryQueue(cleaner HistoryCleaner, logger *logging.Logger) backlite.Queue {
	return backlite.NewQueue(CleanupHistoryProcessor(cleaner, logger))
}
