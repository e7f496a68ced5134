package importers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/payload"
	"github.com/sahana/importer/internal/resources"
	"github.com/sahana/importer/internal/tabular"
)

// StageResult counts the lines written for a job.
type StageResult struct {
	JobID   uint
	Valid   int
	Invalid int
	Status  entities.JobStatus
}

// Stager validates every data row of a job's source in dry-run mode and
// records the outcome of each as an import line.
type Stager struct {
	jobs      *jobs.Repository
	resources Resources
	defaults  tabular.Options
}

func NewStager(repo *jobs.Repository, res Resources, defaults tabular.Options) *Stager {
	return &Stager{jobs: repo, resources: res, defaults: defaults}
}

// StageRows stages a job in processing. Line numbers count the header as
// line 1. Lines and the resulting job status are written in one
// transaction; on error nothing is written except the failure reason.
func (s *Stager) StageRows(ctx context.Context, jobID uint) (*StageResult, error) {
	result := &StageResult{JobID: jobID}
	var mismatch *HeaderMismatchError

	err := s.jobs.Transaction(ctx, func(repo *jobs.Repository) error {
		job, err := repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != entities.JobStatusProcessing {
			return fmt.Errorf("%w: job %d is %s", ErrUnexpectedStatus, job.ID, job.Status)
		}
		staged, err := repo.HasLines(ctx, job.ID)
		if err != nil {
			return err
		}
		if staged {
			return fmt.Errorf("%w: job %d", ErrAlreadyStaged, job.ID)
		}
		if !job.HasColumnMap() {
			return fmt.Errorf("%w: job %d", ErrNoColumnMap, job.ID)
		}
		columnMap, err := job.GetColumnMap()
		if err != nil {
			return err
		}
		res, err := lookupResource(s.resources, job)
		if err != nil {
			return err
		}
		if err := checkFingerprint(job); err != nil {
			return err
		}
		table, err := readSource(job, s.defaults)
		if err != nil {
			return err
		}

		if err := VerifyMap(table.Header, columnMap); err != nil {
			errors.As(err, &mismatch)
			mismatch.JobID = job.ID
			result.Status = entities.JobStatusFailed
			return repo.SetJobStatus(ctx, job.ID, entities.JobStatusFailed, HeaderMismatchReason)
		}

		for i, row := range table.Rows {
			line, err := stageRow(ctx, repo, res, columnMap, job.ID, i, row)
			if err != nil {
				return err
			}
			if line.Valid {
				result.Valid++
			} else {
				result.Invalid++
			}
		}

		if result.Valid == 0 {
			result.Status = entities.JobStatusFailed
			return repo.SetJobStatus(ctx, job.ID, entities.JobStatusFailed, NoValidLinesReason)
		}
		result.Status = entities.JobStatusProcessed
		return repo.SetJobStatus(ctx, job.ID, entities.JobStatusProcessed, "")
	})
	if err != nil {
		recordFailure(ctx, s.jobs, jobID, err)
		return nil, err
	}
	if mismatch != nil {
		return result, mismatch
	}
	return result, nil
}

// BuildPayload pairs a row with the column map. Missing cells are empty
// text, extra cells are dropped and ignored columns are skipped.
func BuildPayload(columnMap entities.ColumnMap, row []string) payload.Payload {
	cells := tabular.Normalize(row, len(columnMap))
	p := make(payload.Payload, len(columnMap))
	for i, binding := range columnMap {
		if binding.Field == entities.IgnoreField || binding.Field == "" {
			continue
		}
		p[binding.Field] = cells[i]
	}
	return p
}

func stageRow(ctx context.Context, repo *jobs.Repository, res *resources.Resource, columnMap entities.ColumnMap, jobID uint, i int, row []string) (*entities.ImportLine, error) {
	p := BuildPayload(columnMap, row)

	fieldErrs, err := res.Validate(ctx, repo.DB(), p)
	if err != nil {
		return nil, fmt.Errorf("validate line %d: %w", i+2, err)
	}

	line := &entities.ImportLine{
		JobID:  jobID,
		LineNo: i + 2,
		Data:   payload.Encode(p),
		Valid:  len(fieldErrs) == 0,
		Status: entities.LineStatusImport,
	}
	if !line.Valid {
		line.Status = entities.LineStatusIgnore
		line.Errors = invalidFieldsPrefix + joinFields(fieldErrs)
	}

	if _, err := repo.AppendLine(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

func joinFields(errs []resources.FieldError) string {
	return strings.Join(resources.FieldNames(errs), ", ")
}
