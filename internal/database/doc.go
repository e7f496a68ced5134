// Package database provides the data access layer for the importer.
//
// # Architecture
//
// The database layer is organized into sub-packages:
//
//	database/
//	├── database.go      # Connection setup for sqlite, postgres and mysql; migrations
//	├── jobs/            # Import jobs, their staged lines and the job state machine
//	└── history/         # Per-phase job events and their retention
//
// Domain tables written by imports (org_organisation, supply_item, ...) are
// migrated here too but are written only through resource descriptors.
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase(config.DriverSQLite, "./importer.db")
//
//	jobsRepo := jobs.NewRepository(db.DB, builtin.NewRegistry())
//	historyRepo := history.NewRepository(db.DB)
//
//	id, err := jobsRepo.CreateJob(ctx, &entities.ImportJob{...})
//	events, err := historyRepo.ListForJob(ctx, id)
//
// # Interface Implementations
//
//   - history.Repository: implements importers.EventRecorder and the
//     HistoryCleaner interfaces of tasks and scheduler
//
// See internal/interfaces/checks.go for compile-time verification.
package database
