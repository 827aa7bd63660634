package tabexport

import (
	"fmt"
	"strings"
)

// Dataset is the tabular input of an export: an ordered collection of
// named tables. The engines read it only through this interface.
type Dataset interface {
	Name() string
	TableNames() []string
	Columns(table string) []Column
	Rows(table string) []Record
}

// Column describes one exported column. Caption falls back to Name.
type Column struct {
	Name    string
	Caption string
	Type    string
}

// Label returns the caption written in header rows.
func (c Column) Label() string {
	if c.Caption != "" {
		return c.Caption
	}
	return c.Name
}

// Record gives access to one row's values by column name.
type Record interface {
	Value(column string) any
}

// DataSet is an in-memory Dataset.
type DataSet struct {
	name   string
	tables []*Table
}

// NewDataSet creates an empty dataset.
func NewDataSet(name string, tables ...*Table) *DataSet {
	return &DataSet{name: name, tables: tables}
}

// AddTable appends a table.
func (ds *DataSet) AddTable(t *Table) *DataSet {
	ds.tables = append(ds.tables, t)
	return ds
}

// Table returns the named table, matching exactly first and then
// case-insensitively.
func (ds *DataSet) Table(name string) *Table {
	for _, t := range ds.tables {
		if t.Name == name {
			return t
		}
	}
	for _, t := range ds.tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

func (ds *DataSet) Name() string { return ds.name }

func (ds *DataSet) TableNames() []string {
	names := make([]string, len(ds.tables))
	for i, t := range ds.tables {
		names[i] = t.Name
	}
	return names
}

func (ds *DataSet) Columns(table string) []Column {
	if t := ds.Table(table); t != nil {
		return t.Columns
	}
	return nil
}

func (ds *DataSet) Rows(table string) []Record {
	t := ds.Table(table)
	if t == nil {
		return nil
	}
	recs := make([]Record, len(t.rows))
	for i, values := range t.rows {
		recs[i] = tableRecord{table: t, values: values}
	}
	return recs
}

// Table is an in-memory table: ordered columns and positional rows.
type Table struct {
	Name    string
	Columns []Column

	rows     [][]any
	position map[string]int
}

// NewTable creates a table with the given columns.
func NewTable(name string, columns ...Column) *Table {
	t := &Table{Name: name, Columns: columns}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.position = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.position[c.Name] = i
	}
}

// AddRow appends a row. Values are positional and must match the columns.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("table %q: row has %d values, want %d", t.Name, len(values), len(t.Columns))
	}
	t.rows = append(t.rows, values)
	return nil
}

// AddRecord appends a row from a column-name map. Missing columns are nil.
func (t *Table) AddRecord(values map[string]any) {
	row := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		row[i] = values[c.Name]
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

type tableRecord struct {
	table  *Table
	values []any
}

func (r tableRecord) Value(column string) any {
	i, ok := r.table.position[column]
	if !ok || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// resolveTable returns the table name a directive refers to: the named
// table (exact, then case-insensitive) or the first table when name is
// empty. ok is false when no such table exists.
func resolveTable(ds Dataset, name string) (string, bool) {
	names := ds.TableNames()
	if name == "" {
		if len(names) == 0 {
			return "", false
		}
		return names[0], true
	}
	for _, n := range names {
		if n == name {
			return n, true
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// isEmptyDataset reports whether every table of ds has no rows.
func isEmptyDataset(ds Dataset) bool {
	for _, name := range ds.TableNames() {
		if len(ds.Rows(name)) > 0 {
			return false
		}
	}
	return true
}

// limitRows applies the TopN cap. topN <= 0 means no cap.
func limitRows(recs []Record, topN int) []Record {
	if topN > 0 && len(recs) > topN {
		return recs[:topN]
	}
	return recs
}
