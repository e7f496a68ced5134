// Package interfaces documents the extension points of the importer.
//
// # Interface Categories
//
// ## Registry Interfaces
//
//   - Catalog: which module/resource pairs a job may target (internal/database/jobs/repository.go)
//   - Resources: resource descriptor lookup for the pipeline stages (internal/importers/source.go)
//   - EventRecorder: per-phase job history (internal/importers/pipeline.go)
//
// ## Driver Interfaces
//
//   - JobRunner: inline and per-job phase execution (internal/http/config.go, internal/tasks/import_jobs.go)
//   - Passes: one walk over every eligible job (internal/scheduler/driver.go)
//   - TaskQueue: background phase requests (internal/http/config.go)
//   - HistoryCleaner: history retention (internal/tasks/cleanup_history.go, internal/scheduler/driver.go)
//
// ## Transformation Interfaces
//
//   - Transformer: stylesheet application to tabular XML (internal/transform/transform.go)
//
// # Adding a New Target Resource
//
// A resource describes one destination table: its fields, their types and
// constraints, and how a validated row becomes a record.
//
//  1. Add the model in internal/entities/ with a "<module>_<resource>" table name
//     and register it with the migrator in internal/database/database.go.
//
//  2. Describe it in internal/resources/builtin/:
//
//     func Warehouse() *resources.Resource {
//         return &resources.Resource{
//             Module: "inv",
//             Name:   "warehouse",
//             Table:  entities.Warehouse{}.TableName(),
//             Fields: []resources.Field{
//                 {Name: "name", Type: resources.FieldText, Required: true, Unique: true},
//             },
//             Build: func(v resources.Values) resources.Record {
//                 return &entities.Warehouse{Name: v.String("name")}
//             },
//         }
//     }
//
//  3. Register it in builtin.Register. Uploads for inv/warehouse are then
//     accepted by intake, staged and committed without further wiring.
//
//  4. Optionally drop a stylesheet at <stylesheet-dir>/inv/warehouse.xsl for
//     transformed CSV uploads.
//
// # Adding a New Transformer
//
// Implement Transformer and pass it to importers.NewIntake:
//
//	type SaxonTransformer struct{ jar string }
//
//	func (s *SaxonTransformer) Transform(ctx context.Context, doc []byte, stylesheet string, params map[string]string) ([]byte, error)
//
//	var _ transform.Transformer = (*SaxonTransformer)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the current set.
package interfaces
