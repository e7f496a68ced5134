package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/http"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/resources"
	"github.com/sahana/importer/internal/scheduler"
	"github.com/sahana/importer/internal/tasks"
	"github.com/sahana/importer/internal/transform"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Catalog implementations
var _ jobs.Catalog = (*resources.Registry)(nil)

// Resources implementations
var _ importers.Resources = (*resources.Registry)(nil)

// EventRecorder implementations
var _ importers.EventRecorder = (*history.Repository)(nil)

// HistoryCleaner implementations
var _ tasks.HistoryCleaner = (*history.Repository)(nil)
var _ scheduler.HistoryCleaner = (*history.Repository)(nil)

// =============================================================================
// Pipeline Drivers
// =============================================================================

// JobRunner implementations
var _ http.JobRunner = (*importers.Pipeline)(nil)
var _ tasks.JobRunner = (*importers.Pipeline)(nil)

// Passes implementations
var _ scheduler.Passes = (*importers.Pipeline)(nil)

// =============================================================================
// Background Work
// =============================================================================

// TaskQueue implementations
var _ http.TaskQueue = (*tasks.Client)(nil)
var _ http.Pinger = (*tasks.Client)(nil)

// Scheduler implementations
var _ http.Scheduler = (*scheduler.DriverScheduler)(nil)

// =============================================================================
// Transformation
// =============================================================================

// Transformer implementations
var _ transform.Transformer = (*transform.XSLTProc)(nil)
var _ transform.Transformer = transform.Identity{}

// Record implementations
var _ resources.Record = (*entities.Organisation)(nil)
var _ resources.Record = (*entities.Office)(nil)
var _ resources.Record = (*entities.ItemCategory)(nil)
var _ resources.Record = (*entities.SupplyItem)(nil)
