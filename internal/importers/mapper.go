package importers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/resources"
	"github.com/sahana/importer/internal/tabular"
)

// HeaderMismatchError reports a source whose header row no longer matches
// the job's stored column map.
type HeaderMismatchError struct {
	JobID    uint
	Expected []string
	Actual   []string
}

func (e *HeaderMismatchError) Error() string {
	return HeaderMismatchReason
}

// Detail describes the first differing position, for logs.
func (e *HeaderMismatchError) Detail() string {
	for i := 0; i < max(len(e.Expected), len(e.Actual)); i++ {
		want, got := cell(e.Expected, i), cell(e.Actual, i)
		if i >= len(e.Expected) || i >= len(e.Actual) || want != got {
			return fmt.Sprintf("column %d: expected %q, found %q", i+1, want, got)
		}
	}
	return ""
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// DeriveMap binds each header cell to the resource field of the same name.
// Matching is case sensitive and ignores surrounding spaces, but the binding
// keeps the header text as found. Empty and unknown headers bind to
// IgnoreField.
func DeriveMap(header []string, res *resources.Resource) entities.ColumnMap {
	m := make(entities.ColumnMap, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		field := entities.IgnoreField
		if name := strings.TrimSpace(h); name != "" {
			if _, ok := res.Field(name); ok {
				field = name
			}
		}
		m[i] = entities.ColumnBinding{Header: h, Field: field}
	}
	return m
}

// CheckMap rejects a column map that would stage a cell nothing reads: a
// binding to a field res does not have, or two columns bound to one field.
func CheckMap(m entities.ColumnMap, res *resources.Resource) error {
	seen := make(map[string]string, len(m))
	for _, b := range m {
		if b.Field == entities.IgnoreField {
			continue
		}
		if _, ok := res.Field(b.Field); !ok {
			return fmt.Errorf("%w: %s has no field %q (column %q)", ErrUnknownField, res.Key(), b.Field, b.Header)
		}
		if prev, dup := seen[b.Field]; dup {
			return fmt.Errorf("%w: columns %q and %q both bind %q", ErrUnknownField, prev, b.Header, b.Field)
		}
		seen[b.Field] = b.Header
	}
	return nil
}

// VerifyMap compares header against stored position by position. Only a
// leading byte order mark is stripped; header text must otherwise match
// exactly, surrounding spaces included.
func VerifyMap(header []string, stored entities.ColumnMap) error {
	expected := stored.Headers()
	actual := make([]string, len(header))
	for i, h := range header {
		actual[i] = strings.TrimPrefix(h, "\ufeff")
	}

	mismatch := len(expected) != len(actual)
	for i := 0; !mismatch && i < len(expected); i++ {
		mismatch = expected[i] != actual[i]
	}
	if mismatch {
		return &HeaderMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// Mapper establishes or verifies the column map of a job and moves it into
// processing.
type Mapper struct {
	jobs      *jobs.Repository
	resources Resources
	defaults  tabular.Options
}

func NewMapper(repo *jobs.Repository, res Resources, defaults tabular.Options) *Mapper {
	return &Mapper{jobs: repo, resources: res, defaults: defaults}
}

// MapResult describes what Prepare did to a job.
type MapResult struct {
	Job     *entities.ImportJob
	From    entities.JobStatus
	Derived bool
}

// Prepare accepts a job in uploaded or processing. A job without a map gets
// one derived from its header; a job with a map has it verified. On success
// the job is in processing. On a header mismatch the job is moved to failed
// and a *HeaderMismatchError is returned after that change is committed.
// Any other error leaves the job untouched apart from its failure reason.
func (m *Mapper) Prepare(ctx context.Context, jobID uint) (*MapResult, error) {
	var (
		result   *MapResult
		mismatch *HeaderMismatchError
	)

	err := m.jobs.Transaction(ctx, func(repo *jobs.Repository) error {
		job, err := repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != entities.JobStatusUploaded && job.Status != entities.JobStatusProcessing {
			return fmt.Errorf("%w: job %d is %s", ErrUnexpectedStatus, job.ID, job.Status)
		}
		result = &MapResult{Job: job, From: job.Status}

		res, err := lookupResource(m.resources, job)
		if err != nil {
			return err
		}
		table, err := readSource(job, m.defaults)
		if err != nil {
			return err
		}

		if job.Status == entities.JobStatusUploaded {
			if err := repo.SetJobStatus(ctx, job.ID, entities.JobStatusProcessing, ""); err != nil {
				return err
			}
			job.Status = entities.JobStatusProcessing
		}

		if !job.HasColumnMap() {
			cm := DeriveMap(table.Header, res)
			if err := repo.SetColumnMap(ctx, job.ID, cm); err != nil {
				return err
			}
			result.Derived = true
		} else {
			stored, err := job.GetColumnMap()
			if err != nil {
				return err
			}
			if err := VerifyMap(table.Header, stored); err != nil {
				errors.As(err, &mismatch)
				mismatch.JobID = job.ID
				if err := repo.SetJobStatus(ctx, job.ID, entities.JobStatusFailed, HeaderMismatchReason); err != nil {
					return err
				}
				job.Status = entities.JobStatusFailed
				job.FailureReason = HeaderMismatchReason
			}
		}

		result.Job, err = repo.GetJob(ctx, job.ID)
		return err
	})
	if err != nil {
		recordFailure(ctx, m.jobs, jobID, err)
		return result, err
	}
	if mismatch != nil {
		return result, mismatch
	}
	return result, nil
}

// recordFailure stores an infrastructure error on the job. Expected refusals
// (wrong status, missing job) leave no trace.
func recordFailure(ctx context.Context, repo *jobs.Repository, jobID uint, cause error) {
	if errors.Is(cause, ErrUnexpectedStatus) || errors.Is(cause, ErrAlreadyStaged) || errors.Is(cause, jobs.ErrJobNotFound) {
		return
	}
	_ = repo.RecordFailure(ctx, jobID, cause.Error())
}
