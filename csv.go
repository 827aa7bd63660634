package tabexport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CSVWriter writes one table of a dataset as delimited text with CRLF line
// endings.
type CSVWriter struct {
	delimiter string
	header    bool
	table     string
	topN      int
	formatter ValueFormatter
}

// NewCSVWriter creates a writer configured by the exporter options it uses:
// WithDelimiter, WithHeader, WithCSVTable, WithTopN and WithFormatter.
func NewCSVWriter(opts ...Option) *CSVWriter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newCSVWriter(o)
}

func newCSVWriter(o *Options) *CSVWriter {
	return &CSVWriter{
		delimiter: o.delimiter,
		header:    o.generateHeader,
		table:     o.csvTable,
		topN:      o.topN,
		formatter: o.formatter,
	}
}

// Write encodes the selected table. A dataset without tables produces no
// output.
func (cw *CSVWriter) Write(ds Dataset, w io.Writer) error {
	if len(ds.TableNames()) == 0 {
		return nil
	}
	table, ok := resolveTable(ds, cw.table)
	if !ok {
		return fmt.Errorf("csv table %q not in dataset %q", cw.table, ds.Name())
	}
	cols := ds.Columns(table)

	bw := bufio.NewWriter(w)
	first := true
	if cw.header {
		fields := make([]string, len(cols))
		for i, c := range cols {
			fields[i] = c.Label()
		}
		cw.writeLine(bw, fields, first)
		first = false
	}
	for _, rec := range limitRows(ds.Rows(table), cw.topN) {
		fields := make([]string, len(cols))
		for i, c := range cols {
			fields[i] = cw.field(rec.Value(c.Name))
		}
		cw.writeLine(bw, fields, first)
		first = false
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func (cw *CSVWriter) field(v any) string {
	if v == nil {
		return ""
	}
	return cw.formatter(v)
}

func (cw *CSVWriter) writeLine(bw *bufio.Writer, fields []string, firstLine bool) {
	for i, f := range fields {
		if i > 0 {
			bw.WriteString(cw.delimiter)
		}
		if !cw.needsQuotes(f, firstLine && i == 0) {
			bw.WriteString(f)
			continue
		}
		bw.WriteByte('"')
		bw.WriteString(strings.ReplaceAll(f, `"`, `""`))
		bw.WriteByte('"')
	}
	bw.WriteString("\r\n")
}

// needsQuotes reports whether a field must be quoted. A first field starting
// with "ID" is quoted so spreadsheet programs do not read the file as SYLK.
func (cw *CSVWriter) needsQuotes(f string, leading bool) bool {
	if f == "" {
		return false
	}
	if strings.Contains(f, cw.delimiter) || strings.ContainsAny(f, "\"\r\n") {
		return true
	}
	if r, _ := utf8.DecodeRuneInString(f); unicode.IsSpace(r) {
		return true
	}
	if r, _ := utf8.DecodeLastRuneInString(f); unicode.IsSpace(r) {
		return true
	}
	return leading && strings.HasPrefix(f, "ID")
}
