package tabexport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func collectRefs(raw string) []formulaRef {
	var refs []formulaRef
	rewriteFormula(raw, func(r formulaRef) int {
		refs = append(refs, r)
		return r.Row
	})
	return refs
}

func TestRewriteFormula_FindsReferences(t *testing.T) {
	refs := collectRefs(`<f>SUM(Data!$B$2:B9)+'My ''Q'' Sheet'!C$3+LOG10(D4)+"A1"&amp;E5</f>`)
	require.Len(t, refs, 5)

	assert.Equal(t, formulaRef{Sheet: "Data", Qualified: true, Col: 2, Row: 2, AbsRow: true}, refs[0])
	assert.Equal(t, formulaRef{Sheet: "Data", Qualified: true, Col: 2, Row: 9, RangeFrom: 2}, refs[1])
	assert.Equal(t, formulaRef{Sheet: "My 'Q' Sheet", Qualified: true, Col: 3, Row: 3, AbsRow: true}, refs[2])
	assert.Equal(t, formulaRef{Col: 4, Row: 4}, refs[3])
	assert.Equal(t, formulaRef{Col: 5, Row: 5}, refs[4])
}

func TestRewriteFormula_SkipsLiteralsAndNames(t *testing.T) {
	raw := `<f>IF(A1=&quot;B2&quot;,"C3",ATAN2(D4,1))</f>`
	out := rewriteFormula(raw, func(r formulaRef) int { return r.Row + 10 })
	assert.Equal(t, `<f>IF(A11=&quot;B2&quot;,"C3",ATAN2(D14,1))</f>`, out)
}

func TestRewriteFormula_SharedRefAttribute(t *testing.T) {
	raw := `<x:f t="shared" ref="D2:D5" si="0">B2*C2</x:f>`
	out := rewriteFormula(raw, func(r formulaRef) int { return r.Row + 1 })
	assert.Equal(t, `<x:f t="shared" ref="D3:D6" si="0">B3*C3</x:f>`, out)
	assert.True(t, isSharedFormula(raw))
	assert.False(t, isSharedFormula(`<f>B2</f>`))

	self := `<f t="shared" si="0"/>`
	assert.Equal(t, self, rewriteFormula(self, func(r formulaRef) int { return r.Row + 1 }))
}

func TestWorkbook_ShiftFormulas(t *testing.T) {
	f := func(ref, text string) *Cell { return &Cell{Ref: ref, Formula: "<f>" + text + "</f>"} }
	data := []*Cell{f("D2", "B2*C2+B3"), f("C3", "SUM(C2:C2)+C1"), f("A5", "Other!A5")}
	other := []*Cell{f("A1", "Data!C3+C3"), f("B1", "SUM(Data!C2:C2)")}
	wb := &Workbook{Sheets: []*Worksheet{
		{Name: "Data", Data: &SheetData{Rows: []*Row{
			{Index: 2, Cells: data[:1]}, {Index: 3, Cells: data[1:2]}, {Index: 5, Cells: data[2:]},
		}}},
		{Name: "Other", Data: &SheetData{Rows: []*Row{{Index: 1, Cells: other}}}},
	}}

	wb.shiftFormulas("Data", 2, 3)

	assert.Equal(t, "<f>B2*C2+B6</f>", data[0].Formula)
	assert.Equal(t, "<f>SUM(C2:C5)+C1</f>", data[1].Formula)
	assert.Equal(t, "<f>Other!A5</f>", data[2].Formula)
	assert.Equal(t, "<f>Data!C6+C3</f>", other[0].Formula)
	assert.Equal(t, "<f>SUM(Data!C2:C5)</f>", other[1].Formula)
}

func TestCopyFormulasDown(t *testing.T) {
	row := &Row{Index: 3, Cells: []*Cell{
		{Ref: "D3", Formula: "<f>B2*$C$1+C$2</f>"},
		{Ref: "E3", Formula: `<f t="shared" si="1"/>`, Value: "4"},
		{Ref: "F3", Value: "1"},
	}}
	copyFormulasDown(row, 1)
	assert.Equal(t, "<f>B3*$C$1+C$2</f>", row.Cells[0].Formula)
	assert.Empty(t, row.Cells[1].Formula)
	assert.Equal(t, "4", row.Cells[1].Value)
	assert.Empty(t, row.Cells[2].Formula)
}

func TestRequestFullCalc(t *testing.T) {
	in := []byte(`<workbook><sheets/><calcPr calcId="191029"/></workbook>`)
	assert.Equal(t, `<workbook><sheets/><calcPr fullCalcOnLoad="1" calcId="191029"/></workbook>`, string(requestFullCalc(in)))

	already := []byte(`<x:calcPr fullCalcOnLoad="1"/>`)
	assert.Equal(t, string(already), string(requestFullCalc(already)))

	none := []byte(`<workbook><sheets/></workbook>`)
	assert.Equal(t, string(none), string(requestFullCalc(none)))
}

func TestTemplateExport_FormulasFollowRows(t *testing.T) {
	tmpl := newTemplate(t, func(f *excelize.File, sheet string) {
		f.SetCellValue(sheet, "A1", "##DATA##")
		require.NoError(t, f.SetCellFormula(sheet, "D1", "B1*C1"))
		f.SetCellValue(sheet, "A3", "Total")
		require.NoError(t, f.SetCellFormula(sheet, "C3", "SUM(C1:C1)"))
	})
	out := exportTemplate(t, tmpl, NewDataSet("Sales", ordersTable(t)))

	f := readBack(t, out)
	for ref, want := range map[string]string{"D1": "B1*C1", "D2": "B2*C2", "D5": "B5*C5", "C7": "SUM(C1:C5)"} {
		got, err := f.GetCellFormula("Sheet1", ref)
		require.NoError(t, err)
		assert.Equal(t, want, got, "formula %s", ref)
	}
	v, err := f.GetCellValue("Sheet1", "A7")
	require.NoError(t, err)
	assert.Equal(t, "Total", v)
}
