package importers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sahana/importer/internal/config"
	"github.com/sahana/importer/internal/database"
	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/resources"
	"github.com/sahana/importer/internal/resources/builtin"
	"github.com/sahana/importer/internal/tabular"
	"github.com/sahana/importer/internal/transform"
)

var stylesheetRoot = filepath.Join("..", "..", "static", "formats", "s3csv")

type testEnv struct {
	db        *gorm.DB
	jobs      *jobs.Repository
	history   *history.Repository
	registry  *resources.Registry
	intake    *Intake
	pipeline  *Pipeline
	out       *bytes.Buffer
	uploadDir string
}

func setupEnv(t *testing.T) *testEnv {
	return setupEnvWith(t, transform.Identity{})
}

func setupEnvWith(t *testing.T, transformer transform.Transformer) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.NewDatabase(config.DriverSQLite, filepath.Join(dir, "importer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := builtin.NewRegistry()
	repo := jobs.NewRepository(db.DB, registry)
	hist := history.NewRepository(db.DB)
	defaults := tabular.Options{Delimiter: ',', Quote: '"'}
	out := &bytes.Buffer{}

	env := &testEnv{
		db:        db.DB,
		jobs:      repo,
		history:   hist,
		registry:  registry,
		out:       out,
		uploadDir: filepath.Join(dir, "uploads"),
	}
	env.intake = NewIntake(IntakeConfig{
		Jobs:          repo,
		Resources:     registry,
		Transformer:   transformer,
		UploadDir:     env.uploadDir,
		StylesheetDir: stylesheetRoot,
		Defaults:      defaults,
	})
	env.pipeline = NewPipeline(PipelineConfig{
		Jobs:      repo,
		Resources: registry,
		History:   hist,
		Out:       out,
		Defaults:  defaults,
	})
	return env
}

func (e *testEnv) upload(t *testing.T, module, resource, fileName, body string, opts ...func(*Upload)) *entities.ImportJob {
	t.Helper()
	up := Upload{
		Module:   module,
		Resource: resource,
		FileName: fileName,
		Body:     strings.NewReader(body),
	}
	for _, opt := range opts {
		opt(&up)
	}
	job, err := e.intake.CreateJob(context.Background(), up)
	require.NoError(t, err)
	return job
}

func (e *testEnv) job(t *testing.T, id uint) *entities.ImportJob {
	t.Helper()
	job, err := e.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (e *testEnv) lines(t *testing.T, id uint) []entities.ImportLine {
	t.Helper()
	lines, err := e.jobs.ListLines(context.Background(), id)
	require.NoError(t, err)
	return lines
}

func (e *testEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func withColumnMap(m entities.ColumnMap) func(*Upload) {
	return func(up *Upload) { up.ColumnMap = m }
}

func TestPipeline_HappyPathCSV(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	job := env.upload(t, "supply", "item_category", "categories.csv", "name,code\nAlpha,A1\nBeta,B2\n")

	processed, err := env.pipeline.Process(ctx)
	require.NoError(t, err)
	require.Len(t, processed.Jobs, 1)
	assert.Equal(t, entities.JobStatusProcessed, processed.Jobs[0].Status)
	assert.Equal(t, 2, processed.Jobs[0].Valid)
	assert.Equal(t, 0, processed.Jobs[0].Invalid)

	imported, err := env.pipeline.Import(ctx)
	require.NoError(t, err)
	require.Len(t, imported.Jobs, 1)
	assert.Equal(t, 2, imported.Jobs[0].Imported)

	assert.Equal(t, entities.JobStatusImported, env.job(t, job.ID).Status)
	for _, line := range env.lines(t, job.ID) {
		assert.Equal(t, entities.LineStatusImported, line.Status)
		assert.True(t, line.Valid)
		assert.Empty(t, line.Errors)
	}
	assert.Equal(t, int64(2), env.count(t, &entities.ItemCategory{}))

	var codes []string
	require.NoError(t, env.db.Model(&entities.ItemCategory{}).Order("code").Pluck("code", &codes).Error)
	assert.Equal(t, []string{"A1", "B2"}, codes)
}

func TestPipeline_HeaderMismatch(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	stored := entities.ColumnMap{{Header: "name", Field: "name"}, {Header: "code", Field: "code"}}
	job := env.upload(t, "supply", "item_category", "categories.csv", "Name,code\nAlpha,A1\n", withColumnMap(stored))

	result, err := env.pipeline.Process(ctx)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, entities.JobStatusFailed, result.Jobs[0].Status)
	assert.Equal(t, HeaderMismatchReason, result.Jobs[0].Message)

	assert.Contains(t, env.out.String(), "Cannot process job #1. Column headings do not match DB!")

	got := env.job(t, job.ID)
	assert.Equal(t, entities.JobStatusFailed, got.Status)
	assert.Equal(t, HeaderMismatchReason, got.FailureReason)
	assert.Empty(t, env.lines(t, job.ID))

	// A failed job is not picked up again.
	env.out.Reset()
	result, err = env.pipeline.Process(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Jobs)
	assert.Empty(t, env.out.String())
}

func TestPipeline_OneInvalidRow(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	job := env.upload(t, "org", "organisation", "orgs.csv", "name,acronym\nAlpha,A1\n,\"\"\n")

	_, err := env.pipeline.Process(ctx)
	require.NoError(t, err)

	lines := env.lines(t, job.ID)
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].LineNo)
	assert.True(t, lines[0].Valid)
	assert.Equal(t, entities.LineStatusImport, lines[0].Status)
	assert.Empty(t, lines[0].Errors)
	assert.Equal(t, 3, lines[1].LineNo)
	assert.False(t, lines[1].Valid)
	assert.Equal(t, entities.LineStatusIgnore, lines[1].Status)
	assert.Equal(t, "Invalid Fields: name", lines[1].Errors)

	_, err = env.pipeline.Import(ctx)
	require.NoError(t, err)

	assert.Equal(t, entities.JobStatusImported, env.job(t, job.ID).Status)
	assert.Equal(t, int64(1), env.count(t, &entities.Organisation{}))
	lines = env.lines(t, job.ID)
	assert.Equal(t, entities.LineStatusImported, lines[0].Status)
	assert.Equal(t, entities.LineStatusIgnore, lines[1].Status)
}

func TestPipeline_CommitTimeReferenceFailure(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.Create(&entities.Organisation{ID: 42, Name: "IFRC"}).Error)
	job := env.upload(t, "org", "office", "offices.csv", "name,code,organisation_id\nHeadquarters,HQ,42\n")

	_, err := env.pipeline.Process(ctx)
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusProcessed, env.job(t, job.ID).Status)

	require.NoError(t, env.db.Delete(&entities.Organisation{}, 42).Error)

	result, err := env.pipeline.Import(ctx)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, 1, result.Jobs[0].Failed)
	assert.Equal(t, entities.JobStatusProcessed, result.Jobs[0].Status)

	lines := env.lines(t, job.ID)
	require.Len(t, lines, 1)
	assert.Equal(t, entities.LineStatusImport, lines[0].Status)
	assert.True(t, lines[0].Valid)
	assert.Equal(t, "Import Failed: organisation_id", lines[0].Errors)
	got := env.job(t, job.ID)
	assert.Equal(t, entities.JobStatusProcessed, got.Status)
	assert.Equal(t, "1 of 1 lines failed to import", got.FailureReason)
	assert.Equal(t, int64(0), env.count(t, &entities.Office{}))

	require.NoError(t, env.db.Create(&entities.Organisation{ID: 42, Name: "IFRC"}).Error)

	result, err = env.pipeline.Import(ctx)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, 1, result.Jobs[0].Imported)

	got = env.job(t, job.ID)
	assert.Equal(t, entities.JobStatusImported, got.Status)
	assert.Empty(t, got.FailureReason)
	lines = env.lines(t, job.ID)
	assert.Equal(t, entities.LineStatusImported, lines[0].Status)
	assert.Empty(t, lines[0].Errors)

	var office entities.Office
	require.NoError(t, env.db.First(&office).Error)
	assert.Equal(t, uint(42), office.OrganisationID)
}

func TestPipeline_CorruptedPayload(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	job := env.upload(t, "supply", "item_category", "categories.csv", "name,code\nAlpha,A1\nBeta,B2\n")

	_, err := env.pipeline.Process(ctx)
	require.NoError(t, err)

	lines := env.lines(t, job.ID)
	require.Len(t, lines, 2)
	truncated := lines[1].Data[:len(lines[1].Data)/2]
	require.NoError(t, env.db.Model(&entities.ImportLine{}).Where("id = ?", lines[1].ID).Update("data", truncated).Error)

	result, err := env.pipeline.Import(ctx)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, 1, result.Jobs[0].Imported)
	assert.Equal(t, 1, result.Jobs[0].Failed)

	assert.Equal(t, entities.JobStatusProcessed, env.job(t, job.ID).Status)
	lines = env.lines(t, job.ID)
	assert.Equal(t, entities.LineStatusImported, lines[0].Status)
	assert.Equal(t, entities.LineStatusImport, lines[1].Status)
	assert.Equal(t, CorruptPayloadText, lines[1].Errors)
	assert.Equal(t, int64(1), env.count(t, &entities.ItemCategory{}))
}

func TestPipeline_XSLTTransformedCSV(t *testing.T) {
	x := transform.NewXSLTProc("")
	if !x.Available() {
		t.Skip("xsltproc not installed")
	}
	env := setupEnvWith(t, x)
	ctx := context.Background()

	job := env.upload(t, "supply", "item", "catalogue.csv",
		"Item Code,Description,Unit of Measure,Weight (kg)\nA1,Alpha,,1.5\nB2,Beta,ea,\n",
		func(up *Upload) {
			up.Transform = true
			up.Stylesheet = "item_ifrc_standard"
		})
	assert.Equal(t, entities.SourceFormatXML, job.SourceFormat)

	_, err := env.pipeline.Process(ctx)
	require.NoError(t, err)
	_, err = env.pipeline.Import(ctx)
	require.NoError(t, err)

	assert.Equal(t, entities.JobStatusImported, env.job(t, job.ID).Status)
	lines := env.lines(t, job.ID)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, entities.LineStatusImported, line.Status)
	}

	var items []entities.SupplyItem
	require.NoError(t, env.db.Order("code").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha", items[0].Name)
	assert.Equal(t, "pc", items[0].UM)
	assert.InDelta(t, 1.5, items[0].Weight, 0.0001)
	assert.Equal(t, "ea", items[1].UM)
}

func TestPipeline_ImportTwiceIsNoop(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	job := env.upload(t, "supply", "item_category", "categories.csv", "name,code\nAlpha,A1\n")

	_, err := env.pipeline.Process(ctx)
	require.NoError(t, err)
	_, err = env.pipeline.Import(ctx)
	require.NoError(t, err)

	result, err := env.pipeline.Import(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Jobs)

	outcome, err := env.pipeline.ImportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, entities.JobStatusImported, outcome.Status)
	assert.Equal(t, int64(1), env.count(t, &entities.ItemCategory{}))
}

func TestPipeline_HeaderOnlyFileFails(t *testing.T) {
	env := setupEnv(t)
	job := env.upload(t, "supply", "item_category", "categories.csv", "name,code\n")

	outcome, err := env.pipeline.ProcessJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, outcome.Status)
	assert.Equal(t, NoValidLinesReason, outcome.Message)

	got := env.job(t, job.ID)
	assert.Equal(t, entities.JobStatusFailed, got.Status)
	assert.Equal(t, NoValidLinesReason, got.FailureReason)
	assert.Empty(t, env.lines(t, job.ID))
}

func TestPipeline_InfrastructureFailureDoesNotStopPass(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	broken := env.upload(t, "supply", "item_category", "broken.csv", "name,code\nAlpha,A1\n")
	healthy := env.upload(t, "supply", "item_category", "healthy.csv", "name,code\nBeta,B2\n")
	require.NoError(t, os.Remove(broken.SourceFile))

	result, err := env.pipeline.Process(ctx)
	require.Error(t, err)
	require.Len(t, result.Jobs, 2)

	got := env.job(t, broken.ID)
	assert.Equal(t, entities.JobStatusUploaded, got.Status)
	assert.NotEmpty(t, got.FailureReason)
	assert.Equal(t, entities.JobStatusProcessed, env.job(t, healthy.ID).Status)
}

func TestPipeline_RecordsHistory(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	job := env.upload(t, "supply", "item_category", "categories.csv", "name,code\nAlpha,A1\n")

	_, err := env.pipeline.Process(ctx)
	require.NoError(t, err)
	_, err = env.pipeline.Import(ctx)
	require.NoError(t, err)

	events, err := env.history.ListForJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, entities.JobPhaseMap, events[0].Phase)
	assert.Equal(t, entities.JobStatusUploaded, events[0].FromStatus)
	assert.Equal(t, entities.JobPhaseStage, events[1].Phase)
	assert.Equal(t, entities.JobStatusProcessed, events[1].ToStatus)
	assert.Equal(t, entities.JobPhaseCommit, events[2].Phase)
	assert.Equal(t, entities.JobStatusImported, events[2].ToStatus)
	for _, e := range events {
		assert.Equal(t, entities.JobEventSuccess, e.Status)
	}
}
