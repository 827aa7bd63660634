package tabexport

import (
	"context"
	"database/sql"
	"fmt"
)

// TableFromRows drains rows into a table named name. Column types come
// from the driver's database type names; []byte values become strings.
func TableFromRows(name string, rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), Caption: ct.Name(), Type: ct.DatabaseTypeName()}
	}
	t := NewTable(name, cols...)

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", t.Len()+1, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		t.rows = append(t.rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

// QueryTable runs query against db and returns the result as a table.
func QueryTable(ctx context.Context, db *sql.DB, name, query string, args ...any) (*Table, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query table %q: %w", name, err)
	}
	defer rows.Close()
	return TableFromRows(name, rows)
}
