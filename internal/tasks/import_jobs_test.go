package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
)

type fakeRunner struct {
	processed []uint
	imported  []uint
	err       error
}

func (f *fakeRunner) ProcessJob(_ context.Context, jobID uint) (*importers.JobOutcome, error) {
	f.processed = append(f.processed, jobID)
	if f.err != nil {
		return &importers.JobOutcome{JobID: jobID, Status: entities.JobStatusUploaded}, f.err
	}
	return &importers.JobOutcome{JobID: jobID, Status: entities.JobStatusProcessed}, nil
}

func (f *fakeRunner) ImportJob(_ context.Context, jobID uint) (*importers.JobOutcome, error) {
	f.imported = append(f.imported, jobID)
	if f.err != nil {
		return nil, f.err
	}
	return &importers.JobOutcome{JobID: jobID, Status: entities.JobStatusProcessed, Failed: 1}, nil
}

type fakeCleaner struct {
	retention time.Duration
	err       error
}

func (f *fakeCleaner) DeleteOldEvents(retention time.Duration) (int64, error) {
	f.retention = retention
	return 4, f.err
}

func TestJobTaskConfig(t *testing.T) {
	process := ProcessJobTask{JobID: 1}.Config()
	assert.Equal(t, "process_import_job", process.Name)
	assert.Equal(t, 3, process.MaxAttempts)
	assert.Equal(t, time.Minute, process.Backoff)
	assert.Equal(t, 10*time.Minute, process.Timeout)
	assert.NotNil(t, process.Retention)

	commit := ImportJobTask{JobID: 1}.Config()
	assert.Equal(t, "commit_import_job", commit.Name)
	assert.Equal(t, process.MaxAttempts, commit.MaxAttempts)
}

func TestProcessJobProcessor(t *testing.T) {
	runner := &fakeRunner{}
	process := ProcessJobProcessor(runner, logging.Nop())

	require.NoError(t, process(context.Background(), ProcessJobTask{JobID: 7}))
	assert.Equal(t, []uint{7}, runner.processed)
}

func TestImportJobProcessor_LineFailuresAreNotRetried(t *testing.T) {
	runner := &fakeRunner{}
	commit := ImportJobProcessor(runner, logging.Nop())

	assert.NoError(t, commit(context.Background(), ImportJobTask{JobID: 3}))
	assert.Equal(t, []uint{3}, runner.imported)
}

func TestJobProcessors_InfrastructureErrorsAreReturned(t *testing.T) {
	boom := errors.New("database is locked")
	runner := &fakeRunner{err: boom}

	err := ProcessJobProcessor(runner, nil)(context.Background(), ProcessJobTask{JobID: 2})
	assert.ErrorIs(t, err, boom)

	err = ImportJobProcessor(runner, nil)(context.Background(), ImportJobTask{JobID: 2})
	assert.ErrorIs(t, err, boom)

	err = ProcessJobProcessor(nil, nil)(context.Background(), ProcessJobTask{JobID: 2})
	assert.ErrorIs(t, err, errRunnerMissing)
}

func TestCleanupHistoryProcessor(t *testing.T) {
	cleaner := &fakeCleaner{}
	cleanup := CleanupHistoryProcessor(cleaner, logging.Nop())

	require.NoError(t, cleanup(context.Background(), CleanupHistoryTask{RetentionDays: 7}))
	assert.Equal(t, 7*24*time.Hour, cleaner.retention)

	require.NoError(t, cleanup(context.Background(), CleanupHistoryTask{}))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)

	cleaner.err = errors.New("disk full")
	assert.Error(t, cleanup(context.Background(), CleanupHistoryTask{RetentionDays: 1}))

	assert.Error(t, CleanupHistoryProcessor(nil, nil)(context.Background(), CleanupHistoryTask{}))
	assert.Equal(t, "cleanup_job_history", CleanupHistoryTask{}.Config().Name)
}
