package importers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/database/jobs"
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/logging"
	"github.com/sahana/importer/internal/tabular"
	"github.com/sahana/importer/internal/transform"
)

// Upload is a source file handed to intake.
type Upload struct {
	Module   string
	Resource string
	FileName string // original name; its extension selects the format
	Body     io.Reader

	Delimiter string
	Quote     string

	// Transform converts a CSV upload to XML and runs it through the
	// resource's stylesheet before staging. Stylesheet selects a variant
	// such as "item_ifrc_standard"; empty means the resource name.
	Transform  bool
	Stylesheet string

	// ColumnMap pre-binds headers to fields; nil derives it on first process.
	ColumnMap entities.ColumnMap
}

// Intake stores uploads and registers them as jobs.
type Intake struct {
	jobs          *jobs.Repository
	resources     Resources
	transformer   transform.Transformer
	uploadDir     string
	stylesheetDir string
	defaults      tabular.Options
	logger        *logging.Logger
}

type IntakeConfig struct {
	Jobs          *jobs.Repository
	Resources     Resources
	Transformer   transform.Transformer
	UploadDir     string
	StylesheetDir string
	Defaults      tabular.Options
	Logger        *logging.Logger
}

func NewIntake(cfg IntakeConfig) *Intake {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Intake{
		jobs:          cfg.Jobs,
		resources:     cfg.Resources,
		transformer:   cfg.Transformer,
		uploadDir:     cfg.UploadDir,
		stylesheetDir: cfg.StylesheetDir,
		defaults:      cfg.Defaults,
		logger:        logger,
	}
}

// CreateJob copies the upload into the upload directory under a fresh name,
// fingerprints the stored copy and creates a job in uploaded. The caller's
// file is never touched again.
func (in *Intake) CreateJob(ctx context.Context, up Upload) (*entities.ImportJob, error) {
	res, ok := in.resources.Get(up.Module, up.Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownResource, up.Module, up.Resource)
	}
	for name, v := range map[string]string{"delimiter": up.Delimiter, "quote": up.Quote} {
		if _, ok := singleRune(v); v != "" && !ok {
			return nil, fmt.Errorf("%w: %s is %q", ErrInvalidDialect, name, v)
		}
	}
	if up.Delimiter != "" && up.Delimiter == up.Quote {
		return nil, fmt.Errorf("%w: delimiter and quote are both %q", ErrInvalidDialect, up.Delimiter)
	}
	if up.ColumnMap != nil {
		if err := CheckMap(up.ColumnMap, res); err != nil {
			return nil, err
		}
	}
	format, err := tabular.DetectFormat(up.FileName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(in.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(up.FileName))
	stored := filepath.Join(in.uploadDir, uuid.NewString()+ext)
	if err := writeFile(stored, up.Body); err != nil {
		return nil, err
	}
	written := []string{stored}
	cleanup := func() {
		for _, path := range written {
			_ = os.Remove(path)
		}
	}

	source := stored
	if up.Transform {
		if format != entities.SourceFormatCSV {
			cleanup()
			return nil, fmt.Errorf("%w: only csv uploads can be transformed", tabular.ErrUnsupportedFormat)
		}
		source, err = in.transformUpload(ctx, up, stored)
		if err != nil {
			cleanup()
			return nil, err
		}
		written = append(written, source)
		format = entities.SourceFormatXML
	}

	digest, err := Fingerprint(source)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("fingerprint upload: %w", err)
	}

	job := &entities.ImportJob{
		Module:       up.Module,
		Resource:     up.Resource,
		SourceFile:   source,
		SourceFormat: format,
		Delimiter:    up.Delimiter,
		Quote:        up.Quote,
		SourceDigest: digest,
	}
	if up.ColumnMap != nil {
		if job.ColumnMap, err = entities.EncodeColumnMap(up.ColumnMap); err != nil {
			cleanup()
			return nil, err
		}
	}

	if _, err := in.jobs.CreateJob(ctx, job); err != nil {
		cleanup()
		return nil, err
	}

	in.logger.WithContext(ctx).Info("import job created",
		zap.Uint("job_id", job.ID),
		zap.String("resource", job.TableKey()),
		zap.String("source", filepath.Base(up.FileName)),
		zap.String("format", string(format)))
	return job, nil
}

// CreateJobFromFile is CreateJob for a file already on disk.
func (in *Intake) CreateJobFromFile(ctx context.Context, up Upload, path string) (*entities.ImportJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	up.Body = f
	if up.FileName == "" {
		up.FileName = filepath.Base(path)
	}
	return in.CreateJob(ctx, up)
}

func (in *Intake) transformUpload(ctx context.Context, up Upload, csvPath string) (string, error) {
	if in.transformer == nil {
		return "", errors.New("no transformer configured")
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	delimiter, quote := in.defaults.Delimiter, in.defaults.Quote
	if r, ok := singleRune(up.Delimiter); ok {
		delimiter = r
	}
	if r, ok := singleRune(up.Quote); ok {
		quote = r
	}
	if delimiter == 0 {
		delimiter = ','
	}
	if quote == 0 {
		quote = '"'
	}

	doc, err := transform.CSVToXML(f, delimiter, quote)
	if err != nil {
		return "", err
	}

	name := up.Stylesheet
	if name == "" {
		name = up.Resource
	}
	stylesheet := transform.StylesheetPath(in.stylesheetDir, up.Module, name)
	out, err := in.transformer.Transform(ctx, doc, stylesheet, map[string]string{
		"module":   up.Module,
		"resource": up.Resource,
	})
	if err != nil {
		return "", err
	}

	target := strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".xml"
	if err := writeFile(target, strings.NewReader(string(out))); err != nil {
		return "", err
	}
	return target, nil
}

func writeFile(path string, body io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("store upload: %w", err)
	}
	return f.Close()
}
