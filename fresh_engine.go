package tabexport

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// freshEngine writes a new workbook with one sheet per table.
type freshEngine struct {
	opts *Options
}

func (e *freshEngine) export(ds Dataset, w io.Writer) error {
	tables := ds.TableNames()
	names := UniqueSheetNames(tables)

	skeleton, err := newSkeleton(names)
	if err != nil {
		return err
	}
	wb, strs, err := openWorkbook(skeleton)
	if err != nil {
		return fmt.Errorf("open new workbook: %w", err)
	}
	pool := NewStringPool()
	pool.LoadExisting(strs)

	directives := make([]*Directive, 0, len(tables))
	for i, table := range tables {
		ws := wb.Sheet(names[i])
		if ws == nil {
			return fmt.Errorf("new workbook has no sheet %q", names[i])
		}
		directives = append(directives, &Directive{
			Table:    table,
			Contents: ContentsTable,
			Anchor:   CellRef{Sheet: ws.Name, Col: 1, Row: 1},
			Sheet:    ws,
		})
	}
	if err := newDirectiveProcessor(wb, pool, e.opts).run(ds, directives); err != nil {
		return err
	}
	return wb.save(pool, w)
}

// newSkeleton returns an empty workbook package with the given sheets in
// order. With no names the default sheet is kept.
func newSkeleton(names []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if len(names) > 0 {
		if err := f.SetSheetName(f.GetSheetName(0), names[0]); err != nil {
			return nil, fmt.Errorf("name sheet %q: %w", names[0], err)
		}
		for _, name := range names[1:] {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", name, err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write new workbook: %w", err)
	}
	return buf.Bytes(), nil
}
