package tabexport

import (
	"strings"

	"github.com/rs/zerolog"
)

// Contents says which part of a table a directive exports.
type Contents int

const (
	ContentsHeader Contents = iota + 1
	ContentsData
	ContentsTable
)

// String returns the directive keyword for the Contents.
func (c Contents) String() string {
	switch c {
	case ContentsHeader:
		return "HEADER"
	case ContentsData:
		return "DATA"
	case ContentsTable:
		return "TABLE"
	default:
		return "UNKNOWN"
	}
}

func (c Contents) hasHeader(generateHeader bool) bool {
	switch c {
	case ContentsHeader:
		return true
	case ContentsTable:
		return generateHeader
	default:
		return false
	}
}

func (c Contents) hasData() bool {
	return c == ContentsData || c == ContentsTable
}

var directiveKeywords = map[string]Contents{
	"header": ContentsHeader,
	"data":   ContentsData,
	"table":  ContentsTable,
}

// Directive is a placeholder that says where a table, or part of it, goes.
type Directive struct {
	Table     string // "" selects the first table
	Contents  Contents
	Anchor    CellRef
	Sheet     *Worksheet
	Template  bool // rows below the first data row are cloned from it
	Processed bool
}

// directiveToken splits "##[table:]keyword##" into its parts without
// checking the keyword.
func directiveToken(text string) (table, keyword string, ok bool) {
	s := strings.TrimSpace(text)
	if len(s) < 4 || !strings.HasPrefix(s, "##") || !strings.HasSuffix(s, "##") {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(s, "#"), ":")
	switch len(parts) {
	case 1:
		return "", strings.TrimSpace(parts[0]), true
	case 2:
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
	default:
		return "", "", false
	}
}

// ParseDirective recognises ##HEADER##, ##DATA##, ##TABLE## and their
// ##table:KEYWORD## forms, case-insensitively.
func ParseDirective(text string) (table string, contents Contents, ok bool) {
	table, keyword, ok := directiveToken(text)
	if !ok {
		return "", 0, false
	}
	contents, ok = directiveKeywords[strings.ToLower(keyword)]
	if !ok {
		return "", 0, false
	}
	return table, contents, true
}

type scanAction int

const (
	actionDirective scanAction = iota
	actionSubstitute
)

type scanItem struct {
	action scanAction
	row    *Row
	cell   *Cell
	text   string
}

// macroScanner finds directives in a template and applies text
// substitutions. Classification never mutates; all changes happen in a
// second pass so pool renumbering cannot invalidate what was read.
type macroScanner struct {
	wb       *Workbook
	pool     *StringPool
	resolver TextResolver
	shared   bool
	log      zerolog.Logger
}

func newMacroScanner(wb *Workbook, pool *StringPool, opts *Options) *macroScanner {
	return &macroScanner{
		wb:       wb,
		pool:     pool,
		resolver: opts.resolver,
		shared:   opts.useSharedStrings,
		log:      opts.logger,
	}
}

// cellText returns the display text of a string cell.
func (s *macroScanner) cellText(c *Cell) (string, bool) {
	switch c.Kind {
	case KindSharedString:
		idx, ok := c.SharedIndex()
		if !ok {
			return "", false
		}
		return s.pool.Text(idx)
	case KindInlineString:
		return c.Value, true
	default:
		return "", false
	}
}

// scan returns the directives of every worksheet in document order.
func (s *macroScanner) scan() []*Directive {
	var directives []*Directive
	for _, ws := range s.wb.Sheets {
		directives = append(directives, s.scanSheet(ws)...)
	}
	return directives
}

func (s *macroScanner) scanSheet(ws *Worksheet) []*Directive {
	var (
		items      []scanItem
		directives []*Directive
	)
	for _, row := range ws.Data.Rows {
		for _, c := range row.Cells {
			text, ok := s.cellText(c)
			if !ok {
				continue
			}
			if table, contents, ok := ParseDirective(text); ok {
				directives = append(directives, &Directive{
					Table:    table,
					Contents: contents,
					Anchor:   CellRef{Sheet: ws.Name, Col: c.Col(), Row: row.Index},
					Sheet:    ws,
					Template: true,
				})
				items = append(items, scanItem{action: actionDirective, row: row, cell: c})
				continue
			}
			if s.resolver == nil {
				continue
			}
			if out := s.resolver.Resolve(text); out != text {
				items = append(items, scanItem{action: actionSubstitute, row: row, cell: c, text: out})
			}
		}
	}

	for _, it := range items {
		old, hadShared := it.cell.SharedIndex()
		switch it.action {
		case actionDirective:
			it.cell.SetInline("")
		case actionSubstitute:
			s.log.Debug().Str("sheet", ws.Name).Str("cell", it.cell.Ref).Msg("substitute")
			s.setText(it.cell, it.text)
		}
		if hadShared {
			if idx, ok := it.cell.SharedIndex(); !ok || idx != old {
				s.pool.Remove(old, s.wb.EachCell)
			}
		}
	}
	for _, it := range items {
		if it.action == actionDirective {
			it.row.RemoveCell(it.cell.Col())
		}
	}
	return directives
}

func (s *macroScanner) setText(c *Cell, text string) {
	if text == "" {
		c.Clear()
		return
	}
	if num, ok := parseNumericText(text); ok {
		c.SetNumber(num)
		return
	}
	text = cellText(text)
	if s.shared {
		c.SetShared(s.pool.Intern(text))
	} else {
		c.SetInline(text)
	}
}
