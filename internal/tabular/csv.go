package tabular

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadCSV parses RFC 4180 style CSV with the given delimiter and quote
// character. Blank lines are skipped and invalid UTF-8 is replaced.
func ReadCSV(r io.Reader, delimiter, quote rune) (*Table, error) {
	if delimiter == quote || delimiter == '\n' || delimiter == '\r' || quote == '\n' || quote == '\r' {
		return nil, fmt.Errorf("invalid delimiter %q / quote %q", delimiter, quote)
	}

	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(bom)); err == nil && string(prefix) == bom {
		_, _ = br.Discard(len(bom))
	}

	s := &csvScanner{r: br, delim: delimiter, quote: quote, line: 1}
	var records [][]string
	for {
		record, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return newTable(records), nil
}

type csvScanner struct {
	r     *bufio.Reader
	delim rune
	quote rune
	line  int
}

// next returns the following non-blank record or io.EOF.
func (s *csvScanner) next() ([]string, error) {
	for {
		record, blank, err := s.record()
		if err != nil {
			return nil, err
		}
		if !blank {
			return record, nil
		}
	}
}

// record reads one physical record. blank is set for an empty line.
func (s *csvScanner) record() (record []string, blank bool, err error) {
	var field strings.Builder
	startLine := s.line
	read := 0
	quoted := false

	finish := func() {
		record = append(record, strings.ToValidUTF8(field.String(), "\uFFFD"))
		field.Reset()
		quoted = false
	}

	for {
		c, _, err := s.r.ReadRune()
		if errors.Is(err, io.EOF) {
			if read == 0 {
				return nil, false, io.EOF
			}
			finish()
			return record, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		read++

		switch {
		case c == s.quote && field.Len() == 0 && !quoted:
			quoted = true
			if err := s.quotedField(&field, startLine); err != nil {
				return nil, false, err
			}
		case c == s.delim:
			finish()
		case c == '\n' || c == '\r':
			if c == '\r' {
				if next, _, err := s.r.ReadRune(); err == nil && next != '\n' {
					_ = s.r.UnreadRune()
				}
			}
			s.line++
			if read == 1 {
				return nil, true, nil
			}
			finish()
			return record, false, nil
		default:
			field.WriteRune(c)
		}
	}
}

// quotedField consumes up to and including the closing quote. A doubled
// quote inside the field is a literal quote.
func (s *csvScanner) quotedField(field *strings.Builder, startLine int) error {
	for {
		c, _, err := s.r.ReadRune()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("line %d: unterminated quoted field", startLine)
		}
		if err != nil {
			return err
		}
		if c == '\n' {
			s.line++
		}
		if c != s.quote {
			field.WriteRune(c)
			continue
		}
		next, _, err := s.r.ReadRune()
		if err == nil && next == s.quote {
			field.WriteRune(s.quote)
			continue
		}
		if err == nil {
			_ = s.r.UnreadRune()
		}
		return nil
	}
}
