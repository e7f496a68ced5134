// Package importers moves uploaded source files into the domain tables.
//
// # Flow
//
// A job passes through the phases below, each recorded in the job registry:
//
//	Intake    -> job in uploaded, source copied and fingerprinted
//	Mapper    -> column map derived or verified, job in processing
//	Stager    -> one import line per data row, job in processed or failed
//	Committer -> valid lines inserted, job in imported or still processed
//
// The Pipeline drives the mapper, the stager and the committer over every
// eligible job and serialises passes. Line-level problems (invalid fields,
// rejected inserts, unreadable payloads) are written onto the lines and
// never abort a pass; errors returned from a phase are infrastructure
// failures and leave the job where it was.
//
// # Example Usage
//
//	pipeline := importers.NewPipeline(importers.PipelineConfig{
//		Jobs:      jobsRepo,
//		Resources: registry,
//		Out:       os.Stdout,
//	})
//	processed, err := pipeline.Process(ctx)
//	imported, err := pipeline.Import(ctx)
package importers
