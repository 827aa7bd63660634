package tabexport

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// span is a byte range [start, end) inside a raw part.
type span struct {
	start, end int64
	ok         bool
}

// sheetLayout remembers where the rewritten elements of a worksheet part
// live so everything else is written back byte for byte.
type sheetLayout struct {
	raw         []byte
	dataPrefix  string
	data        span
	dimPrefix   string
	dim         span
	mergePrefix string
	merge       span
}

// parseWorksheet reads the sheetData, dimension and mergeCells elements of
// a worksheet part. Namespace prefixes are kept as written so the part can be
// spliced back without redeclaring anything.
func parseWorksheet(name, part string, raw []byte) (*Worksheet, error) {
	ws := &Worksheet{
		Name:   name,
		Part:   part,
		Data:   &SheetData{},
		layout: &sheetLayout{raw: raw},
	}
	l := ws.layout

	d := xml.NewDecoder(bytes.NewReader(raw))
	depth := 0
	for {
		start := d.InputOffset()
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse worksheet %q: %w", part, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 2 {
				continue
			}
			switch t.Name.Local {
			case "dimension":
				// A malformed declared range is recomputed from the cells.
				if dim, err := ParseDimension(attrValue(t.Attr, "ref")); err == nil {
					ws.Dimension = dim
				}
				if err := skipElement(d); err != nil {
					return nil, fmt.Errorf("parse worksheet %q dimension: %w", part, err)
				}
				l.dim = span{start: start, end: d.InputOffset(), ok: true}
				l.dimPrefix = t.Name.Space
				depth--
			case "sheetData":
				rows, err := parseSheetData(d)
				if err != nil {
					return nil, fmt.Errorf("parse worksheet %q sheetData: %w", part, err)
				}
				ws.Data.Rows = rows
				l.data = span{start: start, end: d.InputOffset(), ok: true}
				l.dataPrefix = t.Name.Space
				depth--
			case "mergeCells":
				merges, err := parseMergeCells(d)
				if err != nil {
					return nil, fmt.Errorf("parse worksheet %q mergeCells: %w", part, err)
				}
				ws.Merges = merges
				l.merge = span{start: start, end: d.InputOffset(), ok: true}
				l.mergePrefix = t.Name.Space
				depth--
			}
		case xml.EndElement:
			depth--
		}
	}
	if !l.data.ok {
		return nil, fmt.Errorf("parse worksheet %q: no sheetData element", part)
	}
	sort.SliceStable(ws.Data.Rows, func(i, j int) bool {
		return ws.Data.Rows[i].Index < ws.Data.Rows[j].Index
	})
	return ws, nil
}

func parseSheetData(d *xml.Decoder) ([]*Row, error) {
	var rows []*Row
	prev := 0
	for {
		tok, err := d.RawToken()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "row" {
				if err := skipElement(d); err != nil {
					return nil, err
				}
				continue
			}
			row, err := parseRow(d, t, prev+1)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
			prev = row.Index
		case xml.EndElement:
			return rows, nil
		}
	}
}

// parseRow reads one row. Rows and cells without an r attribute take the
// position following their predecessor.
func parseRow(d *xml.Decoder, start xml.StartElement, index int) (*Row, error) {
	row := &Row{Index: index}
	for _, a := range start.Attr {
		if a.Name.Space == "" && a.Name.Local == "r" {
			n, err := strconv.Atoi(a.Value)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w: row index %q", ErrMalformedAddress, a.Value)
			}
			row.Index = n
			continue
		}
		row.Attrs = append(row.Attrs, a)
	}

	col := 0
	for {
		tok, err := d.RawToken()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "c" {
				if err := skipElement(d); err != nil {
					return nil, err
				}
				continue
			}
			cell, err := parseCell(d, t)
			if err != nil {
				return nil, err
			}
			if cell.Ref == "" {
				cell.Ref = Address(col+1, row.Index)
			} else if RowNumber(cell.Ref) != row.Index || cell.Col() == 0 {
				return nil, fmt.Errorf("%w: cell %q in row %d", ErrMalformedAddress, cell.Ref, row.Index)
			}
			col = cell.Col()
			row.Cells = append(row.Cells, cell)
		case xml.EndElement:
			return row, nil
		}
	}
}

func parseCell(d *xml.Decoder, start xml.StartElement) (*Cell, error) {
	c := &Cell{}
	for _, a := range start.Attr {
		if a.Name.Space != "" {
			c.Attrs = append(c.Attrs, a)
			continue
		}
		switch a.Name.Local {
		case "r":
			c.Ref = strings.ToUpper(a.Value)
		case "s":
			c.Style = a.Value
		case "t":
			kind, known := kindFromAttr(a.Value)
			c.Kind = kind
			if !known {
				c.Attrs = append(c.Attrs, a)
			}
		default:
			c.Attrs = append(c.Attrs, a)
		}
	}

	for {
		tok, err := d.RawToken()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "v":
				text, err := readText(d)
				if err != nil {
					return nil, err
				}
				c.Value = text
			case "f":
				raw, _, _, err := captureElement(d, t)
				if err != nil {
					return nil, err
				}
				c.Formula = raw
			case "is":
				raw, text, runs, err := captureElement(d, t)
				if err != nil {
					return nil, err
				}
				c.Value = text
				if runs {
					c.Rich = raw
				}
			default:
				raw, _, _, err := captureElement(d, t)
				if err != nil {
					return nil, err
				}
				c.Extra += raw
			}
		case xml.EndElement:
			return c, nil
		}
	}
}

func parseMergeCells(d *xml.Decoder) ([]Dimension, error) {
	var merges []Dimension
	for {
		tok, err := d.RawToken()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "mergeCell" {
				m, err := ParseDimension(attrValue(t.Attr, "ref"))
				if err != nil {
					return nil, err
				}
				merges = append(merges, m)
			}
			if err := skipElement(d); err != nil {
				return nil, err
			}
		case xml.EndElement:
			return merges, nil
		}
	}
}

// skipElement consumes tokens up to the end of the element just started.
func skipElement(d *xml.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := d.RawToken()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// readText returns the character data of the element just started.
func readText(d *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.RawToken()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	return b.String(), nil
}

// captureElement re-serializes the element just started, prefixes intact.
// text is the concatenation of its <t> children outside phonetic runs, and
// runs reports whether it carries rich-text runs.
func captureElement(d *xml.Decoder, start xml.StartElement) (raw, text string, runs bool, err error) {
	var b, txt strings.Builder
	writeStartElement(&b, start)
	stack := []string{start.Name.Local}
	for len(stack) > 0 {
		tok, err := d.RawToken()
		if err != nil {
			return "", "", false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			writeStartElement(&b, t)
			if t.Name.Local == "r" && len(stack) == 1 {
				runs = true
			}
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			writeEndElement(&b, t.Name)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			escapeText(&b, string(t))
			if stack[len(stack)-1] == "t" && !contains(stack, "rPh") {
				txt.Write(t)
			}
		}
	}
	return b.String(), txt.String(), runs, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func qname(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func writeStartElement(b *strings.Builder, t xml.StartElement) {
	b.WriteByte('<')
	b.WriteString(qname(t.Name.Space, t.Name.Local))
	writeAttrs(b, t.Attr)
	b.WriteByte('>')
}

func writeEndElement(b *strings.Builder, name xml.Name) {
	b.WriteString("</")
	b.WriteString(qname(name.Space, name.Local))
	b.WriteByte('>')
}

func writeAttrs(b *strings.Builder, attrs []xml.Attr) {
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(qname(a.Name.Space, a.Name.Local))
		b.WriteString(`="`)
		escapeText(b, a.Value)
		b.WriteByte('"')
	}
}

func escapeText(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s))
}

// marshal splices the current sheet data, dimension and merged ranges back
// into the raw part.
func (ws *Worksheet) marshal() []byte {
	l := ws.layout
	type patch struct {
		at   span
		data string
	}
	patches := []patch{{at: l.data, data: writeSheetData(l.dataPrefix, ws.Data)}}
	if l.dim.ok {
		patches = append(patches, patch{
			at:   l.dim,
			data: fmt.Sprintf(`<%s ref="%s"/>`, qname(l.dimPrefix, "dimension"), ws.Dimension),
		})
	}
	if l.merge.ok {
		patches = append(patches, patch{at: l.merge, data: writeMergeCells(l.mergePrefix, ws.Merges)})
	}
	sort.Slice(patches, func(i, j int) bool { return patches[i].at.start < patches[j].at.start })

	var out bytes.Buffer
	out.Grow(len(l.raw))
	pos := int64(0)
	for _, p := range patches {
		out.Write(l.raw[pos:p.at.start])
		out.WriteString(p.data)
		pos = p.at.end
	}
	out.Write(l.raw[pos:])
	return out.Bytes()
}

func writeSheetData(prefix string, sd *SheetData) string {
	var b strings.Builder
	if len(sd.Rows) == 0 {
		b.WriteString("<" + qname(prefix, "sheetData") + "/>")
		return b.String()
	}
	b.WriteString("<" + qname(prefix, "sheetData") + ">")
	for _, r := range sd.Rows {
		b.WriteString("<" + qname(prefix, "row") + ` r="` + strconv.Itoa(r.Index) + `"`)
		writeAttrs(&b, r.Attrs)
		if len(r.Cells) == 0 {
			b.WriteString("/>")
			continue
		}
		b.WriteByte('>')
		for _, c := range r.Cells {
			writeCell(&b, prefix, c)
		}
		writeEndElement(&b, xml.Name{Space: prefix, Local: "row"})
	}
	writeEndElement(&b, xml.Name{Space: prefix, Local: "sheetData"})
	return b.String()
}

func writeCell(b *strings.Builder, prefix string, c *Cell) {
	b.WriteString("<" + qname(prefix, "c") + ` r="` + c.Ref + `"`)
	if c.Style != "" {
		b.WriteString(` s="` + c.Style + `"`)
	}
	if t := c.Kind.typeAttr(); t != "" {
		b.WriteString(` t="` + t + `"`)
	}
	writeAttrs(b, c.Attrs)

	inline := c.Kind == KindInlineString
	if c.Formula == "" && c.Value == "" && c.Extra == "" && !inline {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	b.WriteString(qualifyFormula(prefix, c.Formula))
	switch {
	case inline && c.Rich != "":
		b.WriteString(c.Rich)
	case inline:
		b.WriteString("<" + qname(prefix, "is") + "><" + qname(prefix, "t") + ` xml:space="preserve">`)
		escapeText(b, c.Value)
		b.WriteString("</" + qname(prefix, "t") + "></" + qname(prefix, "is") + ">")
	case c.Value != "":
		b.WriteString("<" + qname(prefix, "v") + ">")
		escapeText(b, c.Value)
		b.WriteString("</" + qname(prefix, "v") + ">")
	}
	b.WriteString(c.Extra)
	writeEndElement(b, xml.Name{Space: prefix, Local: "c"})
}

func writeMergeCells(prefix string, merges []Dimension) string {
	if len(merges) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<%s count="%d">`, qname(prefix, "mergeCells"), len(merges))
	for _, m := range merges {
		fmt.Fprintf(&b, `<%s ref="%s"/>`, qname(prefix, "mergeCell"), m)
	}
	writeEndElement(&b, xml.Name{Space: prefix, Local: "mergeCells"})
	return b.String()
}
