package transform

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/sahana/importer/internal/tabular"
)

// CSVToXML wraps each CSV data row as tabular XML:
//
//	<table><row><col field="HEADER">value</col>...</row></table>
//
// Short rows are padded with empty cells and long rows are truncated, the
// same way rows are staged.
func CSVToXML(r io.Reader, delimiter, quote rune) ([]byte, error) {
	table, err := tabular.ReadCSV(r, delimiter, quote)
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %v", ErrTransform, err)
	}
	return TableToXML(table)
}

// TableToXML renders an already parsed table as tabular XML.
func TableToXML(table *tabular.Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<table>\n")

	for _, row := range table.Rows {
		buf.WriteString("  <row>")
		for i, value := range tabular.Normalize(row, len(table.Header)) {
			buf.WriteString(`<col field="`)
			if err := xml.EscapeText(&buf, []byte(table.Header[i])); err != nil {
				return nil, err
			}
			buf.WriteString(`">`)
			if err := xml.EscapeText(&buf, []byte(value)); err != nil {
				return nil, err
			}
			buf.WriteString("</col>")
		}
		buf.WriteString("</row>\n")
	}

	buf.WriteString("</table>\n")
	return buf.Bytes(), nil
}
