package importers

import (
	"context"
	"fmt"

	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/payload"
)

// CommitResult counts what one commit pass did.
type CommitResult struct {
	JobID    uint
	Imported int
	Failed   int
	Status   entities.JobStatus
}

// Committer inserts the pending lines of a processed job into the domain tables.
type Committer struct {
	jobs      *jobs.Repository
	resources Resources
}

func NewCommitter(repo *jobs.Repository, res Resources) *Committer {
	return &Committer{jobs: repo, resources: res}
}

// CommitJob walks the job's import lines in ascending line number. Each line
// runs under its own savepoint so a rejected line leaves no partial writes,
// while the pass as a whole is one transaction. The job becomes imported
// when no line failed and otherwise stays processed for another pass.
func (c *Committer) CommitJob(ctx context.Context, jobID uint) (*CommitResult, error) {
	result := &CommitResult{JobID: jobID}

	err := c.jobs.Transaction(ctx, func(repo *jobs.Repository) error {
		job, err := repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != entities.JobStatusProcessed {
			return fmt.Errorf("%w: job %d is %s", ErrUnexpectedStatus, job.ID, job.Status)
		}
		res, err := lookupResource(c.resources, job)
		if err != nil {
			return err
		}

		lines, err := repo.ListLines(ctx, job.ID, entities.LineStatusImport)
		if err != nil {
			return err
		}

		tx := repo.DB()
		for _, line := range lines {
			p, err := payload.Decode(line.Data)
			if err != nil {
				result.Failed++
				if err := repo.UpdateLine(ctx, line.ID, entities.LineStatusImport, CorruptPayloadText); err != nil {
					return err
				}
				continue
			}

			savepoint := fmt.Sprintf("import_line_%d", line.ID)
			if err := tx.SavePoint(savepoint).Error; err != nil {
				return err
			}

			_, fieldErrs, err := res.Insert(ctx, tx, p)
			if err != nil {
				return fmt.Errorf("commit line %d: %w", line.LineNo, err)
			}
			if len(fieldErrs) > 0 {
				if err := tx.RollbackTo(savepoint).Error; err != nil {
					return err
				}
				result.Failed++
				if err := repo.UpdateLine(ctx, line.ID, entities.LineStatusImport, importFailedPrefix+joinFields(fieldErrs)); err != nil {
					return err
				}
				continue
			}

			result.Imported++
			if err := repo.UpdateLine(ctx, line.ID, entities.LineStatusImported, ""); err != nil {
				return err
			}
		}

		if result.Failed == 0 {
			result.Status = entities.JobStatusImported
			return repo.SetJobStatus(ctx, job.ID, entities.JobStatusImported, "")
		}
		result.Status = entities.JobStatusProcessed
		reason := fmt.Sprintf("%d of %d lines failed to import", result.Failed, len(lines))
		return repo.SetJobStatus(ctx, job.ID, entities.JobStatusProcessed, reason)
	})
	if err != nil {
		recordFailure(ctx, c.jobs, jobID, err)
		return nil, err
	}
	return result, nil
}
