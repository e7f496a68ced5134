package tabular

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadXML reads tabular XML: a root element holding row elements whose
// children carry a field attribute, e.g.
//
//	<table><row><col field="name">Alpha</col></row></table>
//
// The s3xml shape (<s3xml><resource><data field="...">) is read the same way.
// The header is the union of field names in order of first appearance. A
// missing cell is empty text, as is the explicit null NULL or <NULL>.
func ReadXML(r io.Reader) (*Table, error) {
	dec := xml.NewDecoder(r)

	var (
		header  []string
		seen    = map[string]bool{}
		rows    []map[string]string
		row     map[string]string
		depth   int
		field   string
		inCell  bool
		text    strings.Builder
		sawRoot bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				sawRoot = true
			case 2:
				row = map[string]string{}
			case 3:
				field, inCell = attr(el, "field")
				text.Reset()
			}
		case xml.CharData:
			if inCell && depth == 3 {
				text.Write(el)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				if inCell {
					if !seen[field] {
						seen[field] = true
						header = append(header, field)
					}
					row[field] = nullToEmpty(text.String())
				}
				inCell = false
			case 2:
				rows = append(rows, row)
				row = nil
			}
			depth--
		}
	}

	if !sawRoot {
		return nil, errors.New("parse xml: no root element")
	}

	t := &Table{Header: header, Rows: make([][]string, len(rows))}
	for i, values := range rows {
		cells := make([]string, len(header))
		for j, h := range header {
			cells[j] = values[h]
		}
		t.Rows[i] = cells
	}
	return t, nil
}

func attr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func nullToEmpty(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "NULL") || strings.EqualFold(trimmed, "<NULL>") {
		return ""
	}
	return s
}
