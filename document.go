package tabexport

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"

	"github.com/tiendc/go-deepcopy"
)

// CellKind tags how a cell's value is stored.
type CellKind int

const (
	KindNumber       CellKind = iota // numeric value in <v>, no type attribute
	KindSharedString                 // <v> holds a shared-string index
	KindInlineString                 // text held in <is>
	KindBoolean
	KindError
	KindFormulaString
)

// String returns a human-readable name for the CellKind.
func (k CellKind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindSharedString:
		return "SharedString"
	case KindInlineString:
		return "InlineString"
	case KindBoolean:
		return "Boolean"
	case KindError:
		return "Error"
	case KindFormulaString:
		return "FormulaString"
	default:
		return "Unknown"
	}
}

// typeAttr is the value of the cell's t attribute for this kind.
func (k CellKind) typeAttr() string {
	switch k {
	case KindSharedString:
		return "s"
	case KindInlineString:
		return "inlineStr"
	case KindBoolean:
		return "b"
	case KindError:
		return "e"
	case KindFormulaString:
		return "str"
	default:
		return ""
	}
}

// kindFromAttr maps a t attribute to a CellKind. Unknown values report false
// so the caller can keep the attribute verbatim.
func kindFromAttr(t string) (CellKind, bool) {
	switch t {
	case "", "n":
		return KindNumber, true
	case "s":
		return KindSharedString, true
	case "inlineStr":
		return KindInlineString, true
	case "b":
		return KindBoolean, true
	case "e":
		return KindError, true
	case "str":
		return KindFormulaString, true
	default:
		return KindNumber, false
	}
}

// Cell is a single worksheet cell. Style is an opaque style reference that is
// copied verbatim. Formula, Rich and Extra hold raw XML of child elements the
// engine does not interpret.
type Cell struct {
	Ref     string
	Style   string
	Kind    CellKind
	Value   string
	Formula string
	Rich    string
	Extra   string
	Attrs   []xml.Attr
}

// Col returns the 1-based column of the cell.
func (c *Cell) Col() int {
	return ColumnNumber(ColumnNameOf(c.Ref))
}

// SharedIndex returns the shared-string index the cell refers to.
func (c *Cell) SharedIndex() (int, bool) {
	if c.Kind != KindSharedString {
		return 0, false
	}
	idx, err := strconv.Atoi(c.Value)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Text returns the literal text of an inline-string cell.
func (c *Cell) Text() string {
	if c.Kind == KindInlineString {
		return c.Value
	}
	return ""
}

// SetNumber stores an invariant-formatted number.
func (c *Cell) SetNumber(v string) {
	c.reset()
	c.Kind = KindNumber
	c.Value = v
}

// SetShared stores a shared-string index.
func (c *Cell) SetShared(idx int) {
	c.reset()
	c.Kind = KindSharedString
	c.Value = strconv.Itoa(idx)
}

// SetInline stores literal text.
func (c *Cell) SetInline(text string) {
	c.reset()
	c.Kind = KindInlineString
	c.Value = text
}

// Clear drops the value and keeps the style.
func (c *Cell) Clear() {
	c.reset()
	c.Kind = KindNumber
	c.Value = ""
}

func (c *Cell) reset() {
	c.Formula = ""
	c.Rich = ""
	c.Attrs = dropAttr(c.Attrs, "t")
}

// Row is one worksheet row. Index is 1-based. Attrs keeps every row
// attribute except r.
type Row struct {
	Index int
	Attrs []xml.Attr
	Cells []*Cell
}

// Cell returns the cell at the given column and its position, or nil and -1.
func (r *Row) Cell(col int) (*Cell, int) {
	for i, c := range r.Cells {
		if c.Col() == col {
			return c, i
		}
	}
	return nil, -1
}

// RemoveCell deletes the cell at the given column and returns it.
func (r *Row) RemoveCell(col int) *Cell {
	c, i := r.Cell(col)
	if c == nil {
		return nil
	}
	r.Cells = append(r.Cells[:i], r.Cells[i+1:]...)
	return c
}

// SetIndex moves the row and rewrites every cell address to match.
func (r *Row) SetIndex(index int) {
	r.Index = index
	for _, c := range r.Cells {
		c.Ref = ColumnNameOf(c.Ref) + strconv.Itoa(index)
	}
}

// SortCells orders cells by ascending column, as the package format requires.
func (r *Row) SortCells() {
	sort.SliceStable(r.Cells, func(i, j int) bool {
		return r.Cells[i].Col() < r.Cells[j].Col()
	})
}

// Clone returns a deep copy of the row, cells included.
func (r *Row) Clone() (*Row, error) {
	var clone Row
	if err := deepcopy.Copy(&clone, r); err != nil {
		return nil, fmt.Errorf("clone row %d: %w", r.Index, err)
	}
	return &clone, nil
}

// SheetData is the ordered row list of a worksheet, ascending by index.
type SheetData struct {
	Rows []*Row
}

// position returns the slice position of the first row with Index >= index.
func (sd *SheetData) position(index int) int {
	return sort.Search(len(sd.Rows), func(i int) bool { return sd.Rows[i].Index >= index })
}

// Row returns the row with the given index, or nil.
func (sd *SheetData) Row(index int) *Row {
	i := sd.position(index)
	if i < len(sd.Rows) && sd.Rows[i].Index == index {
		return sd.Rows[i]
	}
	return nil
}

// InsertRow places a row at its sorted position. The index must be free.
func (sd *SheetData) InsertRow(row *Row) {
	i := sd.position(row.Index)
	sd.Rows = append(sd.Rows, nil)
	copy(sd.Rows[i+1:], sd.Rows[i:])
	sd.Rows[i] = row
}

// ShiftRows moves every row with Index > after down by n and relabels its cells.
func (sd *SheetData) ShiftRows(after, n int) {
	for i := sd.position(after + 1); i < len(sd.Rows); i++ {
		r := sd.Rows[i]
		r.SetIndex(r.Index + n)
	}
}

// Bounds returns the range covering every cell that holds a value or style.
func (sd *SheetData) Bounds() Dimension {
	var d Dimension
	for _, r := range sd.Rows {
		for _, c := range r.Cells {
			d = d.Include(c.Col(), r.Index)
		}
	}
	return d
}

// EachCell calls fn for every cell until fn returns false.
func (sd *SheetData) EachCell(fn func(*Cell) bool) bool {
	for _, r := range sd.Rows {
		for _, c := range r.Cells {
			if !fn(c) {
				return false
			}
		}
	}
	return true
}

// Worksheet is one sheet of a workbook together with the raw part it was
// read from.
type Worksheet struct {
	Name      string
	Part      string
	Data      *SheetData
	Dimension Dimension
	Merges    []Dimension

	layout *sheetLayout
}

// ShiftRows moves rows below after down by n, keeping the declared
// dimension and merged ranges in step.
func (ws *Worksheet) ShiftRows(after, n int) {
	ws.Data.ShiftRows(after, n)
	ws.Dimension = shiftRange(ws.Dimension, after, n)
	for i, m := range ws.Merges {
		ws.Merges[i] = shiftRange(m, after, n)
	}
}

// RefreshDimension grows the declared dimension to cover every cell.
func (ws *Worksheet) RefreshDimension() {
	ws.Dimension = ws.Dimension.Union(ws.Data.Bounds())
}

func shiftRange(d Dimension, after, n int) Dimension {
	if d.IsEmpty() {
		return d
	}
	if d.FirstRow > after {
		d.FirstRow += n
	}
	if d.LastRow > after {
		d.LastRow += n
	}
	return d
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func dropAttr(attrs []xml.Attr, local string) []xml.Attr {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			continue
		}
		out = append(out, a)
	}
	return out
}
