package tabexport

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type failingWriter struct{ calls int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("disk full")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"xlsx": FormatXLSX, ".CSV": FormatCSV, "Xml": FormatXML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormat_ContentType(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Equal(t, "application/xml", FormatXML.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
	assert.Equal(t, "application/octet-stream", Format("pdf").ContentType())
}

func TestExport_EmptyDataSource(t *testing.T) {
	ds := NewDataSet("ds", NewTable("Empty", Column{Name: "a"}))
	for _, format := range []Format{FormatXLSX, FormatCSV, FormatXML} {
		var buf bytes.Buffer
		err := Export(ds, format, &buf)
		assert.ErrorIs(t, err, ErrEmptyDataSource, format)
		assert.Zero(t, buf.Len(), format)
	}
}

func TestExport_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Export(salesDataSet(t), Format("pdf"), &buf)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, buf.Len())
}

func TestExport_WriterErrorIsWrapped(t *testing.T) {
	w := &failingWriter{}
	err := Export(salesDataSet(t), FormatCSV, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write csv output")
	assert.Equal(t, 1, w.calls)
}

func TestExport_MissingTemplateFallsBack(t *testing.T) {
	out, err := ExportBytes(salesDataSet(t), FormatXLSX,
		WithTemplate(filepath.Join(t.TempDir(), "missing.xlsx")))
	require.NoError(t, err)

	f := readBack(t, out)
	assert.Equal(t, []string{"Orders", "Customers"}, f.GetSheetList())
}

func TestExport_CorruptTemplateFallsBack(t *testing.T) {
	out, err := ExportBytes(salesDataSet(t), FormatXLSX,
		WithTemplateReader(strings.NewReader("not a spreadsheet")))
	require.NoError(t, err)

	f := readBack(t, out)
	assert.Equal(t, []string{"Orders", "Customers"}, f.GetSheetList())
}

func TestExport_RequireTemplate(t *testing.T) {
	var buf bytes.Buffer
	err := Export(salesDataSet(t), FormatXLSX, &buf,
		WithTemplate(filepath.Join(t.TempDir(), "missing.xlsx")),
		WithRequireTemplate(true))
	assert.ErrorIs(t, err, ErrTemplateUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, buf.Len())
}

func TestExport_UseTemplateWithoutSource(t *testing.T) {
	_, err := ExportBytes(salesDataSet(t), FormatXLSX, WithUseTemplate(true), WithRequireTemplate(true))
	assert.ErrorIs(t, err, ErrTemplateUnavailable)
}

func TestExport_TemplateFromFile(t *testing.T) {
	tmpl := newTemplate(t, func(f *excelize.File, sheet string) {
		require.NoError(t, f.SetCellValue(sheet, "B2", "##Customers:TABLE##"))
	})
	path := filepath.Join(t.TempDir(), "tmpl.xlsx")
	require.NoError(t, os.WriteFile(path, tmpl, 0o644))

	out, err := ExportBytes(salesDataSet(t), FormatXLSX, WithTemplate(path))
	require.NoError(t, err)

	f := readBack(t, out)
	assert.Equal(t, []string{"Sheet1"}, f.GetSheetList())
	v, err := f.GetCellValue("Sheet1", "C4")
	require.NoError(t, err)
	assert.Equal(t, "Arlington", v)
}

func TestExporter_ReusesTemplateReader(t *testing.T) {
	tmpl := newTemplate(t, func(f *excelize.File, sheet string) {
		require.NoError(t, f.SetCellValue(sheet, "A1", "##Customers:DATA##"))
	})
	e := NewExporter(WithTemplateReader(bytes.NewReader(tmpl)), WithRequireTemplate(true))

	for i := 0; i < 2; i++ {
		out, err := e.ExportBytes(salesDataSet(t), FormatXLSX)
		require.NoError(t, err)
		f := readBack(t, out)
		v, err := f.GetCellValue("Sheet1", "A2")
		require.NoError(t, err)
		assert.Equal(t, "Grace", v)
	}
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")
	require.NoError(t, ExportFile(salesDataSet(t), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Product,Qty,Price\r\nWidget,3,2.5\r\n"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportFile_NoFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.xlsx")
	ds := NewDataSet("ds", NewTable("Empty", Column{Name: "a"}))

	err := ExportFile(ds, path)
	assert.ErrorIs(t, err, ErrEmptyDataSource)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportFile_UnknownExtension(t *testing.T) {
	err := ExportFile(salesDataSet(t), filepath.Join(t.TempDir(), "sales.pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
