package tabexport

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SharedString is one entry of the shared-string table. Raw keeps the
// original <si> markup of entries read from a template so rich text
// survives; new entries carry only Text.
type SharedString struct {
	Text string
	Raw  string
}

// CellVisitor walks every cell of every worksheet, stopping as soon as fn
// returns false. Workbook.EachCell is the usual implementation.
type CellVisitor func(fn func(*Cell) bool)

// StringPool is the deduplicating shared-string table of one export run.
// Indices stay dense: removing an entry renumbers everything above it.
type StringPool struct {
	index   map[string]int
	entries []SharedString
}

// NewStringPool returns an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{index: make(map[string]int)}
}

// LoadExisting replaces the pool content with a template's table, keeping
// every index as it was. The first occurrence of a duplicated text wins
// for later Intern calls.
func (p *StringPool) LoadExisting(entries []SharedString) {
	p.index = make(map[string]int, len(entries))
	p.entries = append(p.entries[:0], entries...)
	for i, e := range p.entries {
		if _, ok := p.index[e.Text]; !ok {
			p.index[e.Text] = i
		}
	}
}

// Intern returns the index of text, appending it when absent.
func (p *StringPool) Intern(text string) int {
	if idx, ok := p.index[text]; ok {
		return idx
	}
	idx := len(p.entries)
	p.entries = append(p.entries, SharedString{Text: text})
	p.index[text] = idx
	return idx
}

// Text returns the text stored at index.
func (p *StringPool) Text(index int) (string, bool) {
	if index < 0 || index >= len(p.entries) {
		return "", false
	}
	return p.entries[index].Text, true
}

// Len returns the number of entries.
func (p *StringPool) Len() int {
	return len(p.entries)
}

// Remove deletes the entry at index when no cell visited by cells still
// refers to it. Every index above it, in the pool and in the cells, moves
// down by one. It reports whether the entry was removed.
func (p *StringPool) Remove(index int, cells CellVisitor) bool {
	if index < 0 || index >= len(p.entries) {
		return false
	}
	referenced := false
	cells(func(c *Cell) bool {
		if i, ok := c.SharedIndex(); ok && i == index {
			referenced = true
			return false
		}
		return true
	})
	if referenced {
		return false
	}

	removed := p.entries[index]
	remap := p.index[removed.Text] == index
	if remap {
		delete(p.index, removed.Text)
	}
	p.entries = append(p.entries[:index], p.entries[index+1:]...)
	for j := index; j < len(p.entries); j++ {
		if p.index[p.entries[j].Text] == j+1 {
			p.index[p.entries[j].Text] = j
		}
	}
	if remap {
		for j := index; j < len(p.entries); j++ {
			if p.entries[j].Text == removed.Text {
				p.index[removed.Text] = j
				break
			}
		}
	}

	cells(func(c *Cell) bool {
		if i, ok := c.SharedIndex(); ok && i > index {
			c.Value = strconv.Itoa(i - 1)
		}
		return true
	})
	return true
}

// Flush returns the entries in ascending index order.
func (p *StringPool) Flush() []SharedString {
	out := make([]SharedString, len(p.entries))
	copy(out, p.entries)
	return out
}

// sstLayout keeps the root element of a shared-string part so entries read
// with their original prefixes can be written back under it.
type sstLayout struct {
	prefix string
	attrs  []xml.Attr
}

func parseSST(raw []byte) (*sstLayout, []SharedString, error) {
	layout := &sstLayout{}
	var entries []SharedString
	d := xml.NewDecoder(bytes.NewReader(raw))
	depth := 0
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse shared strings: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				layout.prefix = t.Name.Space
				for _, a := range t.Attr {
					if a.Name.Space == "" && (a.Name.Local == "count" || a.Name.Local == "uniqueCount") {
						continue
					}
					layout.attrs = append(layout.attrs, a)
				}
			case depth == 2 && t.Name.Local == "si":
				si, text, _, err := captureElement(d, t)
				if err != nil {
					return nil, nil, fmt.Errorf("parse shared strings: %w", err)
				}
				entries = append(entries, SharedString{Text: text, Raw: si})
				depth--
			}
		case xml.EndElement:
			depth--
		}
	}
	return layout, entries, nil
}

func marshalSST(layout *sstLayout, entries []SharedString, refs int) []byte {
	attrs := layout.attrs
	if len(attrs) == 0 {
		attrs = []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: nsMain}}
	}
	q := func(local string) string { return qname(layout.prefix, local) }

	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<" + q("sst"))
	writeAttrs(&b, attrs)
	fmt.Fprintf(&b, ` count="%d" uniqueCount="%d">`, refs, len(entries))
	for _, e := range entries {
		if e.Raw != "" {
			b.WriteString(e.Raw)
			continue
		}
		b.WriteString("<" + q("si") + "><" + q("t") + ` xml:space="preserve">`)
		escapeText(&b, e.Text)
		b.WriteString("</" + q("t") + "></" + q("si") + ">")
	}
	b.WriteString("</" + q("sst") + ">")
	return []byte(b.String())
}
