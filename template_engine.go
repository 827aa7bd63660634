package tabexport

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// templateEngine grafts a dataset into a template workbook at the places
// its directives name.
type templateEngine struct {
	opts *Options
}

func (e *templateEngine) export(ds Dataset, template []byte, w io.Writer) error {
	wb, strs, err := openWorkbook(template)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	pool := NewStringPool()
	pool.LoadExisting(strs)

	directives := newMacroScanner(wb, pool, e.opts).scan()
	e.opts.logger.Debug().Int("directives", len(directives)).Msg("template scanned")

	p := newDirectiveProcessor(wb, pool, e.opts)
	if err := p.run(ds, directives); err != nil {
		return err
	}
	return wb.save(pool, w)
}

// directiveProcessor exports the tables named by directives. Both engines
// drive it; the fresh engine hands it synthetic directives.
type directiveProcessor struct {
	wb   *Workbook
	pool *StringPool
	opts *Options
	mat  *rowMaterializer
	log  zerolog.Logger
}

func newDirectiveProcessor(wb *Workbook, pool *StringPool, opts *Options) *directiveProcessor {
	return &directiveProcessor{
		wb:   wb,
		pool: pool,
		opts: opts,
		mat:  newRowMaterializer(wb, pool, opts),
		log:  opts.logger,
	}
}

// run processes every unprocessed directive in order. Rows inserted for one
// directive push down the anchors of the directives still waiting below its
// first data row on the same sheet. Rows are cloned after the first data
// row, so a directive sharing that row keeps its anchor.
func (p *directiveProcessor) run(ds Dataset, directives []*Directive) error {
	for _, d := range directives {
		if d.Processed {
			continue
		}
		p.warnSharedRow(d, directives)
		firstData, inserted, err := p.process(ds, d)
		if err != nil {
			return err
		}
		d.Processed = true
		if inserted == 0 {
			continue
		}
		for _, o := range directives {
			if !o.Processed && o.Sheet == d.Sheet && o.Anchor.Row > firstData {
				o.Anchor.Row += inserted
			}
		}
	}
	return nil
}

// warnSharedRow logs data directives waiting on the same row as d. Cloning
// d's rows copies their cells too.
func (p *directiveProcessor) warnSharedRow(d *Directive, directives []*Directive) {
	if !d.Template || !d.Contents.hasData() {
		return
	}
	for _, o := range directives {
		if o == d || o.Processed || o.Sheet != d.Sheet || !o.Contents.hasData() || o.Anchor.Row != d.Anchor.Row {
			continue
		}
		p.log.Warn().Str("sheet", d.Sheet.Name).Str("anchor", d.Anchor.CellName()).
			Str("other", o.Anchor.CellName()).Msg("data directives share a row, cloned rows repeat both")
	}
}

// process exports one directive and returns the index of its first data
// row and the number of rows inserted below it.
func (p *directiveProcessor) process(ds Dataset, d *Directive) (firstData, inserted int, err error) {
	log := p.log.With().Str("sheet", d.Sheet.Name).Str("anchor", d.Anchor.CellName()).
		Str("contents", d.Contents.String()).Logger()

	table, ok := resolveTable(ds, d.Table)
	if !ok {
		log.Debug().Str("table", d.Table).Msg("table not in dataset, directive skipped")
		return 0, 0, nil
	}
	cols := ds.Columns(table)
	recs := limitRows(ds.Rows(table), p.opts.topN)
	header := d.Contents.hasHeader(p.opts.generateHeader)
	if len(recs) == 0 && !header {
		log.Debug().Str("table", table).Msg("empty table, directive skipped")
		return 0, 0, nil
	}

	ws := d.Sheet
	firstData = d.Anchor.Row
	if header {
		var row *Row
		if d.Template {
			if row = ws.Data.Row(d.Anchor.Row); row == nil {
				return 0, 0, fmt.Errorf("%w: header row %d on sheet %q", ErrRowNotFound, d.Anchor.Row, ws.Name)
			}
		} else {
			row, _ = p.mat.rowAt(ws, d.Anchor.Row)
		}
		p.mat.writeHeader(row, d.Anchor.Col, cols, d.Template)
		firstData++
	}

	if d.Contents.hasData() && len(recs) > 0 {
		inserted, err = p.writeData(ws, d, firstData, cols, recs)
		if err != nil {
			return 0, 0, err
		}
	}
	ws.RefreshDimension()
	log.Debug().Str("table", table).Int("rows", len(recs)).Int("inserted", inserted).Msg("directive exported")
	return firstData, inserted, nil
}

func (p *directiveProcessor) writeData(ws *Worksheet, d *Directive, firstData int, cols []Column, recs []Record) (int, error) {
	row, created := p.mat.rowAt(ws, firstData)
	if created && d.Template {
		p.wb.rowsInserted = true
	}
	p.mat.writeRecord(row, d.Anchor.Col, cols, recs[0], d.Template && !created)

	inserted := 0
	for _, rec := range recs[1:] {
		var next *Row
		if d.Template {
			clone, err := p.mat.cloneAfter(ws, row)
			if err != nil {
				return inserted, err
			}
			next = clone
			inserted++
		} else {
			next, _ = p.mat.rowAt(ws, row.Index+1)
		}
		p.mat.writeRecord(next, d.Anchor.Col, cols, rec, false)
		row = next
	}
	return inserted, nil
}
