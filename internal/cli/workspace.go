package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/sahana/importer/internal/config"
	"github.com/sahana/importer/internal/database"
	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/resources"
	"github.com/sahana/importer/internal/resources/builtin"
	"github.com/sahana/importer/internal/tabular"
	"github.com/sahana/importer/internal/transform"
)

// storeFlags are the database and dialect flags shared by commands that
// touch the job registry. Defaults come from the environment.
type storeFlags struct {
	Driver        string
	DSN           string
	UploadDir     string
	StylesheetDir string
	XSLTProcPath  string
	Delimiter     string
	Quote         string
	Verbose       bool
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	env := config.NewConfig()
	fs.StringVar(&f.Driver, "driver", env.Database.Driver, "Database driver: sqlite, postgres or mysql")
	fs.StringVar(&f.DSN, "db", env.Database.DSN, "Database DSN (a file path for sqlite)")
	fs.StringVar(&f.UploadDir, "upload-dir", env.Import.UploadDir, "Directory holding stored source files")
	fs.StringVar(&f.StylesheetDir, "stylesheet-dir", env.Import.StylesheetDir, "Root of <module>/<resource>.xsl stylesheets")
	fs.StringVar(&f.XSLTProcPath, "xsltproc", env.Import.XSLTProcPath, "Path of the xsltproc binary")
	fs.StringVar(&f.Delimiter, "default-delimiter", env.Import.CSVDelimiter, "CSV delimiter for jobs that set none")
	fs.StringVar(&f.Quote, "default-quote", env.Import.CSVQuote, "CSV quote character for jobs that set none")
	fs.BoolVar(&f.Verbose, "verbose", false, "Enable verbose logging")
}

// workspace is an open registry with the pipeline built on top of it.
type workspace struct {
	db       *database.Database
	registry *resources.Registry
	jobs     *jobs.Repository
	history  *history.Repository
	intake   *importers.Intake
	pipeline *importers.Pipeline
}

func openWorkspace(f storeFlags, out io.Writer) (*workspace, error) {
	db, err := database.NewDatabase(f.Driver, f.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logger := logging.Nop()
	if f.Verbose {
		logger = logging.NewLog(config.Log{Level: "debug", Format: "console"})
	}

	registry := builtin.NewRegistry()
	repo := jobs.NewRepository(db.DB, registry)
	hist := history.NewRepository(db.DB)
	defaults := tabular.Dialect(f.Delimiter, f.Quote)

	return &workspace{
		db:       db,
		registry: registry,
		jobs:     repo,
		history:  hist,
		intake: importers.NewIntake(importers.IntakeConfig{
			Jobs:          repo,
			Resources:     registry,
			Transformer:   transform.NewXSLTProc(f.XSLTProcPath),
			UploadDir:     f.UploadDir,
			StylesheetDir: f.StylesheetDir,
			Defaults:      defaults,
			Logger:        logger,
		}),
		pipeline: importers.NewPipeline(importers.PipelineConfig{
			Jobs:      repo,
			Resources: registry,
			History:   hist,
			Out:       out,
			Logger:    logger,
			Defaults:  defaults,
		}),
	}, nil
}

func (w *workspace) Close() error {
	return w.db.Close()
}

func printOutcome(out io.Writer, o importers.JobOutcome) {
	switch {
	case o.Skipped:
		fmt.Fprintf(out, "  job #%d: skipped (%s)\n", o.JobID, o.Message)
	case o.Message != "":
		fmt.Fprintf(out, "  job #%d: %s - %s\n", o.JobID, o.Status, o.Message)
	case o.Imported > 0 || o.Failed > 0:
		fmt.Fprintf(out, "  job #%d: %s, %d imported, %d failed\n", o.JobID, o.Status, o.Imported, o.Failed)
	default:
		fmt.Fprintf(out, "  job #%d: %s, %d valid, %d invalid\n", o.JobID, o.Status, o.Valid, o.Invalid)
	}
}
