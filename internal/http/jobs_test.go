package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sahana/importer/internal/config"
	"github.com/sahana/importer/internal/database"
	"github.com/sahana/importer/internal/database/history"
	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/resources/builtin"
	"github.com/sahana/importer/internal/tabular"
	"github.com/sahana/importer/internal/tasks"
	"github.com/sahana/importer/internal/transform"
)

type apiEnv struct {
	e    *httpexpect.Expect
	db   *database.Database
	jobs *jobs.Repository
}

func setupAPI(t *testing.T, withQueue bool) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	db, err := database.NewDatabase(config.DriverSQLite, filepath.Join(dir, "importer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := builtin.NewRegistry()
	repo := jobs.NewRepository(db.DB, registry)
	hist := history.NewRepository(db.DB)
	defaults := tabular.Options{Delimiter: ',', Quote: '"'}
	pipeline := importers.NewPipeline(importers.PipelineConfig{
		Jobs:      repo,
		Resources: registry,
		History:   hist,
		Out:       io.Discard,
		Defaults:  defaults,
	})

	cfg := RouterConfig{
		Database:  db,
		Jobs:      repo,
		History:   hist,
		Resources: registry,
		Intake: importers.NewIntake(importers.IntakeConfig{
			Jobs:        repo,
			Resources:   registry,
			Transformer: transform.Identity{},
			UploadDir:   filepath.Join(dir, "uploads"),
			Defaults:    defaults,
		}),
		Runner:  pipeline,
		Version: "test",
		Logger:  logging.Nop(),
	}
	if withQueue {
		client, err := tasks.NewClient(filepath.Join(dir, "tasks.db"), tasks.DefaultConfig(), logging.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		client.Register(tasks.NewProcessJobQueue(pipeline, nil), tasks.NewImportJobQueue(pipeline, nil))
		cfg.TaskQueue = client
	}

	server := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(server.Close)

	return &apiEnv{e: httpexpect.Default(t, server.URL), db: db, jobs: repo}
}

func (a *apiEnv) upload(module, resource, name, body string) *httpexpect.Object {
	return a.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", module).
		WithFormField("resource", resource).
		WithFileBytes("file", name, []byte(body)).
		Expect().
		Status(http.StatusCreated).
		JSON().Object()
}

func TestJobsAPI_UploadProcessImport(t *testing.T) {
	api := setupAPI(t, false)

	job := api.upload("supply", "item_category", "categories.csv", "name,code\nAlpha,A1\n,B2\n")
	job.HasValue("status", "uploaded")
	job.HasValue("module", "supply")
	job.HasValue("source_format", "csv")
	id := job.Value("id").Number().Raw()
	path := "/api/jobs/" + formatID(id)

	api.e.POST(path + "/process").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("status", "processed").
		HasValue("valid", 1).
		HasValue("invalid", 1)

	lines := api.e.GET(path + "/lines").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("lines").Array()
	lines.Length().IsEqual(2)
	lines.Value(0).Object().HasValue("line_no", 2).HasValue("status", "import")
	lines.Value(0).Object().Value("data").Object().HasValue("name", "Alpha")
	lines.Value(1).Object().HasValue("status", "ignore").HasValue("errors", "Invalid Fields: name")

	api.e.GET(path + "/lines").WithQuery("status", "ignore").
		Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("total", 1)

	api.e.POST(path + "/import").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("status", "imported").
		HasValue("imported", 1)

	detail := api.e.GET(path).Expect().Status(http.StatusOK).JSON().Object()
	detail.HasValue("status", "imported")
	detail.HasValue("terminal", true)
	detail.Value("lines").Object().HasValue("imported", 1).HasValue("ignore", 1)

	// A second commit of the same job is refused without side effects.
	api.e.POST(path + "/import").
		Expect().
		Status(http.StatusConflict).
		JSON().Object().HasValue("skipped", true)

	api.e.GET(path + "/events").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("events").Array().Length().IsEqual(3)

	api.e.GET("/api/jobs").WithQuery("status", "imported").
		Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("total", 1)
}

func TestJobsAPI_Passes(t *testing.T) {
	api := setupAPI(t, false)
	api.upload("org", "organisation", "orgs.csv", "name\nIFRC\n")
	api.upload("org", "organisation", "more.csv", "name\nUNHCR\n")

	api.e.POST("/api/passes/process").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("jobs").Array().Length().IsEqual(2)

	api.e.POST("/api/passes/import").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("jobs").Array().Length().IsEqual(2)

	api.e.POST("/api/passes/export").Expect().Status(http.StatusBadRequest)

	var count int64
	require.NoError(t, api.db.DB.Model(&entities.Organisation{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestJobsAPI_UploadRejections(t *testing.T) {
	api := setupAPI(t, false)

	api.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", "supply").
		WithFormField("resource", "kit").
		WithFileBytes("file", "kits.csv", []byte("name\n")).
		Expect().
		Status(http.StatusUnprocessableEntity).
		JSON().Object().HasValue("code", "unknown_resource")

	api.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", "supply").
		WithFormField("resource", "item").
		WithFileBytes("file", "items.pdf", []byte("%PDF")).
		Expect().
		Status(http.StatusUnprocessableEntity).
		JSON().Object().HasValue("code", "unsupported_format")

	api.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", "supply").
		WithFormField("resource", "item").
		Expect().
		Status(http.StatusBadRequest)

	api.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", "supply").
		WithFormField("resource", "item").
		WithFormField("column_map", "{not json").
		WithFileBytes("file", "items.csv", []byte("name\n")).
		Expect().
		Status(http.StatusBadRequest)

	api.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", "org").
		WithFormField("resource", "organisation").
		WithFormField("column_map", `[{"header":"name","field":"name"},{"header":"acronym","field":"acronymm"}]`).
		WithFileBytes("file", "orgs.csv", []byte("name,acronym\nInternational Red Cross,IFRC\n")).
		Expect().
		Status(http.StatusUnprocessableEntity).
		JSON().Object().HasValue("code", "unknown_field")

	api.e.POST("/api/jobs").
		WithMultipart().
		WithFormField("module", "supply").
		WithFormField("resource", "item").
		WithFormField("delimiter", "::").
		WithFileBytes("file", "items.csv", []byte("name\n")).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().Contains("single characters")

	api.e.GET("/api/jobs").
		Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("total", 0)
}

func TestJobsAPI_CancelAndDelete(t *testing.T) {
	api := setupAPI(t, false)
	job := api.upload("supply", "item_category", "categories.csv", "name,code\nAlpha,A1\n")
	path := "/api/jobs/" + formatID(job.Value("id").Number().Raw())

	// uploaded has no edge to failed
	api.e.POST(path + "/cancel").
		Expect().
		Status(http.StatusConflict).
		JSON().Object().HasValue("code", "invalid_transition")

	id := uint(job.Value("id").Number().Raw())
	require.NoError(t, api.jobs.SetJobStatus(context.Background(), id, entities.JobStatusProcessing, ""))

	api.e.POST(path + "/cancel").
		WithJSON(map[string]string{"reason": "wrong file"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("status", "failed").
		HasValue("failure_reason", "wrong file")

	api.e.DELETE(path).Expect().Status(http.StatusNoContent)
	api.e.GET(path).Expect().Status(http.StatusNotFound)
	api.e.DELETE(path).Expect().Status(http.StatusNotFound)
	api.e.GET("/api/jobs/abc").Expect().Status(http.StatusBadRequest)
}

func TestJobsAPI_EnqueuesWithTaskQueue(t *testing.T) {
	api := setupAPI(t, true)
	job := api.upload("supply", "item_category", "categories.csv", "name,code\nAlpha,A1\n")
	path := "/api/jobs/" + formatID(job.Value("id").Number().Raw())

	taskID := api.e.POST(path + "/process").
		Expect().
		Status(http.StatusAccepted).
		JSON().Object().
		HasValue("phase", "process").
		Value("task_id").String().NotEmpty().Raw()

	// Workers are not started, so the task is still waiting.
	api.e.GET("/api/tasks/" + taskID).
		Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("status", "pending")

	api.e.GET(path).Expect().Status(http.StatusOK).JSON().Object().HasValue("status", "uploaded")
}

func TestResourcesAPI(t *testing.T) {
	api := setupAPI(t, false)

	list := api.e.GET("/api/resources").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("resources").Array()
	list.Length().IsEqual(4)

	office := list.Value(0).Object()
	office.HasValue("module", "org").HasValue("name", "office").HasValue("table", "org_office")
	office.Value("fields").Array().Value(2).Object().
		HasValue("name", "organisation_id").
		HasValue("reference", "org_organisation")
}

func TestHealthAPI(t *testing.T) {
	api := setupAPI(t, false)

	api.e.GET("/health").
		Expect().
		Status(http.StatusOK).
		Header("X-Trace-Id").NotEmpty()
}

func formatID(id float64) string {
	return strconv.FormatUint(uint64(id), 10)
}
