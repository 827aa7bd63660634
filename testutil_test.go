package tabexport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// newTemplate builds a template in memory. build receives the workbook and
// the name of its default sheet.
func newTemplate(t *testing.T, build func(f *excelize.File, sheet string)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	build(f, f.GetSheetName(0))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// readBack opens an exported workbook with excelize.
func readBack(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// reopen parses an exported workbook with the package's own reader.
func reopen(t *testing.T, data []byte) (*Workbook, []SharedString) {
	t.Helper()
	wb, strs, err := openWorkbook(data)
	require.NoError(t, err)
	return wb, strs
}

func sharedTexts(strs []SharedString) []string {
	out := make([]string, len(strs))
	for i, s := range strs {
		out[i] = s.Text
	}
	return out
}

// cellAt returns the parsed cell at a reference such as "B3".
func cellAt(t *testing.T, wb *Workbook, sheet, ref string) *Cell {
	t.Helper()
	ws := wb.Sheet(sheet)
	require.NotNil(t, ws, "sheet %q", sheet)
	row := ws.Data.Row(RowNumber(ref))
	if row == nil {
		return nil
	}
	c, _ := row.Cell(ColumnNumber(ColumnNameOf(ref)))
	return c
}

// ordersTable has three columns and five rows with distinct product names.
func ordersTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable("Orders",
		Column{Name: "product", Caption: "Product"},
		Column{Name: "qty", Caption: "Qty"},
		Column{Name: "price", Caption: "Price"},
	)
	rows := [][]any{
		{"Widget", 3, 2.5},
		{"Gadget", 1, 10.0},
		{"Gizmo", 7, 0.75},
		{"Doohickey", 2, 100.0},
		{"Sprocket", 5, 1.25},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AddRow(r...))
	}
	return tbl
}

func customersTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable("Customers",
		Column{Name: "name", Caption: "Name"},
		Column{Name: "city", Caption: "City"},
	)
	require.NoError(t, tbl.AddRow("Ada", "London"))
	require.NoError(t, tbl.AddRow("Grace", "Arlington"))
	return tbl
}

func salesDataSet(t *testing.T) *DataSet {
	t.Helper()
	return NewDataSet("Sales", ordersTable(t), customersTable(t))
}

func exportTemplate(t *testing.T, tmpl []byte, ds Dataset, opts ...Option) []byte {
	t.Helper()
	all := append([]Option{WithTemplateReader(bytes.NewReader(tmpl)), WithRequireTemplate(true)}, opts...)
	out, err := ExportBytes(ds, FormatXLSX, all...)
	require.NoError(t, err)
	return out
}
