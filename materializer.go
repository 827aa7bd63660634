package tabexport

// rowMaterializer writes header captions and record values into worksheet
// rows, creating or cloning rows as needed.
type rowMaterializer struct {
	wb   *Workbook
	pool *StringPool
	opts *Options
}

func newRowMaterializer(wb *Workbook, pool *StringPool, opts *Options) *rowMaterializer {
	return &rowMaterializer{wb: wb, pool: pool, opts: opts}
}

// writeHeader puts the caption of each column on row, starting at col.
func (m *rowMaterializer) writeHeader(row *Row, col int, cols []Column, release bool) {
	for i, c := range cols {
		m.setCell(row, col+i, c.Label(), release)
	}
	m.finishRow(row)
}

// writeRecord puts the record's values on row, starting at col.
func (m *rowMaterializer) writeRecord(row *Row, col int, cols []Column, rec Record, release bool) {
	for i, c := range cols {
		m.setCell(row, col+i, rec.Value(c.Name), release)
	}
	m.finishRow(row)
}

// rowAt returns the row with the given index, inserting an empty one when
// the sheet has none. created reports whether the row is new.
func (m *rowMaterializer) rowAt(ws *Worksheet, index int) (row *Row, created bool) {
	if row := ws.Data.Row(index); row != nil {
		return row, false
	}
	row = &Row{Index: index}
	ws.Data.InsertRow(row)
	return row, true
}

// cloneAfter inserts a deep copy of prev directly below it. Every later row
// and merged range moves down by one; merged ranges lying inside prev are
// repeated on the clone. Formulas follow the rows they refer to and the
// clone's own formulas are copied down.
func (m *rowMaterializer) cloneAfter(ws *Worksheet, prev *Row) (*Row, error) {
	ws.ShiftRows(prev.Index, 1)
	m.wb.shiftFormulas(ws.Name, prev.Index, 1)
	clone, err := prev.Clone()
	if err != nil {
		return nil, err
	}
	for _, mr := range ws.Merges {
		if mr.FirstRow == prev.Index && mr.LastRow == prev.Index {
			mr.FirstRow++
			mr.LastRow++
			ws.Merges = append(ws.Merges, mr)
		}
	}
	clone.SetIndex(prev.Index + 1)
	copyFormulasDown(clone, 1)
	ws.Data.InsertRow(clone)
	m.wb.rowsInserted = true
	return clone, nil
}

// setCell stores value at (col, row.Index). The style of an occupying cell
// is kept. When release is set the string the cell held before is dropped
// from the pool once nothing else refers to it.
func (m *rowMaterializer) setCell(row *Row, col int, value any, release bool) {
	c, _ := row.Cell(col)
	if c == nil {
		if value == nil {
			return
		}
		c = &Cell{Ref: Address(col, row.Index)}
		row.Cells = append(row.Cells, c)
	}
	old, hadShared := c.SharedIndex()

	link, isLink := value.(Link)
	switch num, isNum := numericText(value); {
	case value == nil:
		c.Clear()
	case isLink:
		c.setLink(link)
	case isNum:
		c.SetNumber(num)
	default:
		text := cellText(m.opts.formatter(value))
		if m.opts.useSharedStrings {
			c.SetShared(m.pool.Intern(text))
		} else {
			c.SetInline(text)
		}
	}

	if release && hadShared {
		if idx, ok := c.SharedIndex(); !ok || idx != old {
			m.pool.Remove(old, m.wb.EachCell)
		}
	}
}

// finishRow restores column order and drops the spans hint, which no longer
// matches a row whose cells changed.
func (m *rowMaterializer) finishRow(row *Row) {
	row.SortCells()
	row.Attrs = dropAttr(row.Attrs, "spans")
}
