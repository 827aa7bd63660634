package tabexport

import (
	"fmt"
	"strings"
)

// templateCell is a string cell of a template, read without changing it.
type templateCell struct {
	ref  CellRef
	text string
}

type templateSheet struct {
	ws    *Worksheet
	cells []templateCell
}

// inspectTemplate lists the string cells of every worksheet of a template.
func inspectTemplate(data []byte) ([]templateSheet, error) {
	wb, strs, err := openWorkbook(data)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	pool := NewStringPool()
	pool.LoadExisting(strs)
	s := &macroScanner{wb: wb, pool: pool}

	sheets := make([]templateSheet, 0, len(wb.Sheets))
	for _, ws := range wb.Sheets {
		ts := templateSheet{ws: ws}
		for _, row := range ws.Data.Rows {
			for _, c := range row.Cells {
				if text, ok := s.cellText(c); ok {
					ts.cells = append(ts.cells, templateCell{
						ref:  CellRef{Sheet: ws.Name, Col: c.Col(), Row: row.Index},
						text: text,
					})
				}
			}
		}
		sheets = append(sheets, ts)
	}
	return sheets, nil
}

// DescribeTemplate returns a human-readable listing of the directives and
// expression cells found in the template at path.
func DescribeTemplate(path string, opts ...Option) (string, error) {
	allOpts := append([]Option{WithTemplate(path)}, opts...)
	return NewExporter(allOpts...).Describe()
}

// Describe lists the directives and expression cells of the configured
// template, sheet by sheet.
func (e *Exporter) Describe() (string, error) {
	data, err := e.loadTemplate()
	if err != nil {
		return "", err
	}
	sheets, err := inspectTemplate(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Template: ")
	if e.opts.templatePath != "" {
		b.WriteString(e.opts.templatePath)
	} else {
		b.WriteString("<reader>")
	}
	b.WriteByte('\n')

	for _, ts := range sheets {
		fmt.Fprintf(&b, "%s (%s)\n", ts.ws.Name, ts.ws.Dimension)
		var exprs []templateCell
		directives := 0
		for _, tc := range ts.cells {
			if table, contents, ok := ParseDirective(tc.text); ok {
				if directives == 0 {
					b.WriteString("  Directives:\n")
				}
				directives++
				if table == "" {
					table = "<first>"
				}
				fmt.Fprintf(&b, "    %s %s table=%q\n", tc.ref.CellName(), contents, table)
				continue
			}
			if strings.Contains(tc.text, exprBegin) {
				exprs = append(exprs, tc)
			}
		}
		if len(exprs) > 0 {
			b.WriteString("  Expressions:\n")
			for _, tc := range exprs {
				fmt.Fprintf(&b, "    %s: %s\n", tc.ref.CellName(), tc.text)
			}
		}
	}
	return b.String(), nil
}
