package tabexport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func writeCSV(t *testing.T, ds Dataset, opts ...Option) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(opts...).Write(ds, &buf))
	return buf.String()
}

func TestCSVWriter_FirstTable(t *testing.T) {
	out := writeCSV(t, salesDataSet(t), WithTopN(2))
	assert.Equal(t, "Product,Qty,Price\r\nWidget,3,2.5\r\nGadget,1,10\r\n", out)
}

func TestCSVWriter_NamedTableWithoutHeader(t *testing.T) {
	out := writeCSV(t, salesDataSet(t), WithCSVTable("customers"), WithHeader(false))
	assert.Equal(t, "Ada,London\r\nGrace,Arlington\r\n", out)
}

func TestCSVWriter_UnknownTable(t *testing.T) {
	var buf bytes.Buffer
	err := NewCSVWriter(WithCSVTable("Invoices")).Write(salesDataSet(t), &buf)
	assert.Error(t, err)
}

func TestCSVWriter_NoTables(t *testing.T) {
	assert.Empty(t, writeCSV(t, NewDataSet("nothing")))
}

func TestCSVWriter_Quoting(t *testing.T) {
	tbl := NewTable("T", Column{Name: "a"}, Column{Name: "b"})
	rows := [][]any{
		{"ID", "ID"},
		{"ID7", "x,y"},
		{`say "hi"`, "two\nlines"},
		{" lead", "trail\t"},
		{nil, ""},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AddRow(r...))
	}

	out := writeCSV(t, NewDataSet("ds", tbl), WithHeader(false))
	assert.Equal(t, `"ID",ID`+"\r\n"+
		`ID7,"x,y"`+"\r\n"+
		`"say ""hi""","two`+"\n"+`lines"`+"\r\n"+
		`" lead","trail`+"\t"+`"`+"\r\n"+
		",\r\n", out)
}

func TestCSVWriter_LeadingIDOnlyOnFirstLine(t *testing.T) {
	tbl := NewTable("T", Column{Name: "ID"}, Column{Name: "Name"})
	require.NoError(t, tbl.AddRow("ID1", "x"))

	out := writeCSV(t, NewDataSet("ds", tbl))
	assert.Equal(t, "\"ID\",Name\r\nID1,x\r\n", out)
}

func TestCSVWriter_MultiCharacterDelimiter(t *testing.T) {
	tbl := NewTable("T", Column{Name: "a"}, Column{Name: "b"})
	require.NoError(t, tbl.AddRow("1|2", "3||4"))

	out := writeCSV(t, NewDataSet("ds", tbl), WithDelimiter("||"), WithHeader(false))
	assert.Equal(t, "1|2||\"3||4\"\r\n", out)
}

func TestCSVWriter_LocalizedNumbers(t *testing.T) {
	tbl := NewTable("T", Column{Name: "n"}, Column{Name: "f"})
	require.NoError(t, tbl.AddRow(1234567, 0.5))

	out := writeCSV(t, NewDataSet("ds", tbl),
		WithDelimiter(";"), WithHeader(false), WithFormatter(LocalizedFormatter(language.German)))
	assert.Equal(t, "1.234.567;0,5\r\n", out)
}
