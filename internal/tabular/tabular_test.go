package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sahana/importer/internal/entities"
)

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		delimiter rune
		quote     rune
		header    []string
		rows      [][]string
	}{
		{
			name:      "simple",
			input:     "name,code\nAlpha,A1\nBeta,B2\n",
			delimiter: ',', quote: '"',
			header: []string{"name", "code"},
			rows:   [][]string{{"Alpha", "A1"}, {"Beta", "B2"}},
		},
		{
			name:      "quoted fields with delimiter, newline and escaped quote",
			input:     "name,comments\r\n\"Red Cross, Geneva\",\"said \"\"hi\"\"\nthen left\"\r\n",
			delimiter: ',', quote: '"',
			header: []string{"name", "comments"},
			rows:   [][]string{{"Red Cross, Geneva", "said \"hi\"\nthen left"}},
		},
		{
			name:      "custom delimiter and quote",
			input:     "name;code\n'Alpha; Ltd';A1\n'It''s';B2\n",
			delimiter: ';', quote: '\'',
			header: []string{"name", "code"},
			rows:   [][]string{{"Alpha; Ltd", "A1"}, {"It's", "B2"}},
		},
		{
			name:      "double quote is literal when quote is different",
			input:     "name|code\n\"Alpha\"|A1\n",
			delimiter: '|', quote: '\'',
			header: []string{"name", "code"},
			rows:   [][]string{{"\"Alpha\"", "A1"}},
		},
		{
			name:      "BOM stripped and blank lines skipped",
			input:     "\ufeffname,code\n\nAlpha,A1\n\r\n",
			delimiter: ',', quote: '"',
			header: []string{"name", "code"},
			rows:   [][]string{{"Alpha", "A1"}},
		},
		{
			name:      "ragged rows kept as is",
			input:     "name,code,um\nAlpha\nBeta,B2,pc,extra\n,\n",
			delimiter: ',', quote: '"',
			header: []string{"name", "code", "um"},
			rows:   [][]string{{"Alpha"}, {"Beta", "B2", "pc", "extra"}, {"", ""}},
		},
		{
			name:      "header only",
			input:     "name,code\n",
			delimiter: ',', quote: '"',
			header: []string{"name", "code"},
		},
		{
			name:      "empty header cell and padded header kept verbatim",
			input:     " name ,,code\nA,x,1",
			delimiter: ',', quote: '"',
			header: []string{" name ", "", "code"},
			rows:   [][]string{{"A", "x", "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadCSV(strings.NewReader(tt.input), tt.delimiter, tt.quote)
			require.NoError(t, err)
			assert.Equal(t, tt.header, table.Header)
			assert.Equal(t, tt.rows, table.Rows)
		})
	}
}

func TestReadCSV_InvalidUTF8Replaced(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("name\nCaf\xe9\n"), ',', '"')
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Caf\uFFFD"}}, table.Rows)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name\n\"open"), ',', '"')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadCSV(strings.NewReader("a,b"), ',', ',')
	assert.Error(t, err)
}

func TestReadCSV_Empty(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""), ',', '"')
	require.NoError(t, err)
	assert.Empty(t, table.Header)
	assert.Empty(t, table.Rows)
}

func TestReadXML(t *testing.T) {
	input := `<?xml version="1.0" encoding="utf-8"?>
<table>
  <row><col field="name">Alpha &amp; Co</col><col field="code">A1</col></row>
  <row><col field="code">B2</col><col field="um">NULL</col></row>
  <row><col field="name">&lt;null&gt;</col><col field="code"> C3 </col></row>
</table>`

	table, err := ReadXML(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "code", "um"}, table.Header)
	assert.Equal(t, [][]string{
		{"Alpha & Co", "A1", ""},
		{"", "B2", ""},
		{"", " C3 ", ""},
	}, table.Rows)
}

func TestReadXML_S3XML(t *testing.T) {
	input := `<s3xml>
  <resource name="supply_item">
    <data field="name">Blanket</data>
    <data field="code">HSHEBLAN01</data>
    <reference field="item_category_id" resource="supply_item_category"/>
    <resource name="supply_item_pack"><data field="quantity">1</data></resource>
  </resource>
</s3xml>`

	table, err := ReadXML(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "code", "item_category_id"}, table.Header)
	assert.Equal(t, [][]string{{"Blanket", "HSHEBLAN01", ""}}, table.Rows)
}

func TestReadXML_Malformed(t *testing.T) {
	_, err := ReadXML(strings.NewReader("<table><row>"))
	assert.Error(t, err)

	_, err = ReadXML(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orgs.xlsx")
	writeWorkbook(t, path, [][]any{
		{"name", "code"},
		{"Alpha", "A1"},
		{},
		{"Beta"},
	})

	table, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "code"}, table.Header)
	assert.Equal(t, [][]string{{"Alpha", "A1"}, {"Beta"}}, table.Rows)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "orgs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name;code\nAlpha;A1\n"), 0o600))

	table, err := Open(csvPath, Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Alpha", "A1"}}, table.Rows)

	xmlPath := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<table><row><col field="name">A</col></row></table>`), 0o600))
	table, err = Open(xmlPath, Options{Format: entities.SourceFormatXML})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, table.Header)

	_, err = Open(filepath.Join(dir, "orgs.pdf"), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Open(filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "", ""}, Normalize([]string{"a"}, 3))
	assert.Equal(t, []string{"a", "b"}, Normalize([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{}, Normalize(nil, 0))
}

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestDialect(t *testing.T) {
	assert.Equal(t, Options{Delimiter: ';', Quote: '\''}, Dialect(";", "'"))
	assert.Equal(t, Options{Delimiter: '\t', Quote: '"'}, Dialect("\t", ""))
	assert.Equal(t, Options{Delimiter: ',', Quote: '"'}, Dialect("", ""))
}
