package tabexport

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// XMLWriter writes a dataset as nested elements: one root named after the
// dataset, one element per row named after its table, one child per column.
type XMLWriter struct {
	topN      int
	formatter ValueFormatter
}

// NewXMLWriter creates a writer configured by WithTopN and WithFormatter.
func NewXMLWriter(opts ...Option) *XMLWriter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newXMLWriter(o)
}

func newXMLWriter(o *Options) *XMLWriter {
	return &XMLWriter{topN: o.topN, formatter: o.formatter}
}

// Write encodes every table of ds. Columns whose value is nil are left out
// of their row element.
func (xw *XMLWriter) Write(ds Dataset, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(xml.Header); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	enc := xml.NewEncoder(bw)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: ElementName(ds.Name())}}
	if err := enc.EncodeToken(root); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	for _, table := range ds.TableNames() {
		if err := xw.writeTable(enc, ds, table); err != nil {
			return fmt.Errorf("write xml table %q: %w", table, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	return nil
}

func (xw *XMLWriter) writeTable(enc *xml.Encoder, ds Dataset, table string) error {
	cols := ds.Columns(table)
	names := make([]xml.Name, len(cols))
	for i, c := range cols {
		names[i] = xml.Name{Local: ElementName(c.Label())}
	}
	row := xml.StartElement{Name: xml.Name{Local: ElementName(table)}}

	for _, rec := range limitRows(ds.Rows(table), xw.topN) {
		if err := enc.EncodeToken(row); err != nil {
			return err
		}
		for i, c := range cols {
			v := rec.Value(c.Name)
			if v == nil {
				continue
			}
			text, ok := numericText(v)
			if !ok {
				text = cellText(xw.formatter(v))
			}
			if err := enc.EncodeElement(text, xml.StartElement{Name: names[i]}); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(row.End()); err != nil {
			return err
		}
	}
	return nil
}

// ElementName turns a caption into an XML element name: diacritics are
// dropped, words are capitalised and joined, characters outside letters,
// digits and '_' are removed, and a '_' is prepended when the result would
// not be a valid or unreserved name.
//
//	"Unit Price (USD)" → "UnitPriceUSD"
//	"2024 café sales"  → "_2024CafeSales"
func ElementName(caption string) string {
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(strip, caption)
	if err != nil {
		s = caption
	}
	s = cases.Title(language.Und, cases.NoLower).String(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	first := []rune(name)[0]
	if !unicode.IsLetter(first) && first != '_' {
		return "_" + name
	}
	if strings.HasPrefix(strings.ToLower(name), "xml") {
		return "_" + name
	}
	return name
}
