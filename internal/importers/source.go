package importers

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/resources"
	"github.com/sahana/importer/internal/tabular"
)

var (
	ErrUnexpectedStatus = errors.New("job is not in the expected status")
	ErrAlreadyStaged    = errors.New("job already has staged lines")
	ErrNoColumnMap      = errors.New("job has no column map")
	ErrSourceChanged    = errors.New("source file changed since upload")
	ErrUnknownResource  = errors.New("unknown target resource")
	ErrUnknownField     = errors.New("column map binds an unknown field")
	ErrInvalidDialect   = errors.New("delimiter and quote must be single characters")
)

// Fixed texts recorded on jobs and lines.
const (
	HeaderMismatchReason = "Column headings do not match DB!"
	NoValidLinesReason   = "no valid lines in file"
	CorruptPayloadText   = "Could not unpickle data"
	invalidFieldsPrefix  = "Invalid Fields: "
	importFailedPrefix   = "Import Failed: "
)

// Resources looks up target resource descriptors.
type Resources interface {
	Get(module, name string) (*resources.Resource, bool)
}

func lookupResource(res Resources, job *entities.ImportJob) (*resources.Resource, error) {
	r, ok := res.Get(job.Module, job.Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownResource, job.Module, job.Resource)
	}
	return r, nil
}

// readSource parses a job's source with the job's delimiter and quote,
// falling back to defaults.
func readSource(job *entities.ImportJob, defaults tabular.Options) (*tabular.Table, error) {
	opts := defaults
	opts.Format = job.SourceFormat
	if r, ok := singleRune(job.Delimiter); ok {
		opts.Delimiter = r
	}
	if r, ok := singleRune(job.Quote); ok {
		opts.Quote = r
	}
	table, err := tabular.Open(job.SourceFile, opts)
	if err != nil {
		return nil, fmt.Errorf("read source of job %d: %w", job.ID, err)
	}
	return table, nil
}

func singleRune(s string) (rune, bool) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, true
}

// Fingerprint returns the hex BLAKE2b-256 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checkFingerprint(job *entities.ImportJob) error {
	if job.SourceDigest == "" {
		return nil
	}
	digest, err := Fingerprint(job.SourceFile)
	if err != nil {
		return fmt.Errorf("fingerprint source of job %d: %w", job.ID, err)
	}
	if digest != job.SourceDigest {
		return fmt.Errorf("%w: job %d", ErrSourceChanged, job.ID)
	}
	return nil
}
