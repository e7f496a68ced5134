// Package tabular reads import sources (CSV, XLSX and tabular XML) into a
// header row plus data rows of text cells.
//
// Rows are numbered by data record, not by physical line: blank CSV lines
// and empty sheet rows are dropped, and a quoted CSV field may span several
// lines. The header is record 1, so Rows[i] is staged as line i+2.
package tabular

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sahana/importer/internal/entities"
)

var ErrUnsupportedFormat = errors.New("unsupported source format")

const bom = "\ufeff"

// Options controls how a source is parsed. Zero values mean comma and double quote.
type Options struct {
	Format    entities.SourceFormat
	Delimiter rune
	Quote     rune
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

func (o Options) quote() rune {
	if o.Quote == 0 {
		return '"'
	}
	return o.Quote
}

// Dialect builds CSV options from configured delimiter and quote strings.
// Only the first rune of each is used; empty keeps comma and double quote.
func Dialect(delimiter, quote string) Options {
	o := Options{Delimiter: ',', Quote: '"'}
	for _, r := range delimiter {
		o.Delimiter = r
		break
	}
	for _, r := range quote {
		o.Quote = r
		break
	}
	return o
}

// Table is a parsed source. Rows keep their original widths.
type Table struct {
	Header []string
	Rows   [][]string
}

// Open parses the file at path. The format comes from opts.Format, or from
// the file extension when that is empty.
func Open(path string, opts Options) (*Table, error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	switch format {
	case entities.SourceFormatCSV:
		return ReadCSV(f, opts.delimiter(), opts.quote())
	case entities.SourceFormatXLSX:
		return ReadXLSX(f)
	case entities.SourceFormatXML:
		return ReadXML(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// DetectFormat maps a file extension to a source format.
func DetectFormat(path string) (entities.SourceFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		return entities.SourceFormatCSV, nil
	case ".xlsx":
		return entities.SourceFormatXLSX, nil
	case ".xml":
		return entities.SourceFormatXML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Normalize returns row resized to width: short rows are padded with empty
// strings and long rows are truncated.
func Normalize(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func newTable(records [][]string) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}
	t.Header = cleanHeader(records[0])
	t.Rows = records[1:]
	return t
}

// cleanHeader strips a byte order mark from the first cell. Other header
// text is kept verbatim so it can be compared exactly against a stored map.
func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	copy(out, header)
	if len(out) > 0 {
		out[0] = strings.TrimPrefix(out[0], bom)
	}
	return out
}
