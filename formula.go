package tabexport

import (
	"regexp"
	"strconv"
	"strings"
)

// formulaRefRegex matches A1-style references in formulas (e.g. A1, $A$1,
// Sheet1!A1, 'My Sheet'!B$2). Ranges are matched one end at a time.
var formulaRefRegex = regexp.MustCompile(`(?:('(?:[^']|'')+'|[A-Za-z_][A-Za-z0-9_.]*)!)?(\$?)([A-Z]{1,3})(\$?)(\d+)`)

// formulaRef is one cell reference found in a formula.
type formulaRef struct {
	Sheet     string // unquoted sheet name, "" when not qualified
	Qualified bool
	Col       int
	Row       int
	AbsRow    bool
	RangeFrom int // first row when the reference ends a range, else 0
}

// refersTo reports whether the reference points into sheet, given the
// sheet the formula lives on.
func (r formulaRef) refersTo(sheet, home string) bool {
	if r.Qualified {
		return strings.EqualFold(r.Sheet, sheet)
	}
	return home == sheet
}

// rewriteFormula applies fn to every reference of a raw <f> element: its
// text and its ref attribute. fn returns the new row of the reference.
func rewriteFormula(raw string, fn func(formulaRef) int) string {
	end := strings.IndexByte(raw, '>')
	if end < 0 {
		return raw
	}
	start, rest := raw[:end+1], raw[end+1:]
	start = rewriteRefAttr(start, fn)
	if strings.HasSuffix(start, "/>") {
		return start + rest
	}
	closing := strings.LastIndex(rest, "</")
	if closing < 0 {
		return start + rest
	}
	return start + rewriteFormulaText(rest[:closing], fn) + rest[closing:]
}

func rewriteRefAttr(tag string, fn func(formulaRef) int) string {
	const attr = ` ref="`
	i := strings.Index(tag, attr)
	if i < 0 {
		return tag
	}
	from := i + len(attr)
	to := strings.IndexByte(tag[from:], '"')
	if to < 0 {
		return tag
	}
	return tag[:from] + rewriteFormulaText(tag[from:from+to], fn) + tag[from+to:]
}

// rewriteFormulaText rewrites references outside string literals. Literals
// may be written with plain or escaped quotes.
func rewriteFormulaText(text string, fn func(formulaRef) int) string {
	var b strings.Builder
	for text != "" {
		q, qlen := nextQuote(text)
		if q < 0 {
			b.WriteString(rewriteRefs(text, fn))
			break
		}
		b.WriteString(rewriteRefs(text[:q], fn))
		lit := text[q+qlen:]
		e, elen := nextQuote(lit)
		if e < 0 {
			b.WriteString(text[q:])
			break
		}
		b.WriteString(text[q : q+qlen+e+elen])
		text = lit[e+elen:]
	}
	return b.String()
}

func nextQuote(s string) (int, int) {
	plain := strings.IndexByte(s, '"')
	escaped := strings.Index(s, "&quot;")
	switch {
	case escaped >= 0 && (plain < 0 || escaped < plain):
		return escaped, len("&quot;")
	case plain >= 0:
		return plain, 1
	default:
		return -1, 0
	}
}

func rewriteRefs(text string, fn func(formulaRef) int) string {
	matches := formulaRefRegex.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}
	var (
		b        strings.Builder
		last     int
		rangeEnd = -1
		rangeTo  string
		rangeQ   bool
		rangeRow int
	)
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && isNameChar(text[start-1]) {
			continue
		}
		if end < len(text) && (isNameChar(text[end]) || text[end] == '(') {
			continue
		}
		col := ColumnNumber(text[m[6]:m[7]])
		if col < 1 || col > MaxColumns {
			continue
		}
		row := atoiDigits(text[m[10]:m[11]])
		if row < 1 || row > MaxRows {
			continue
		}

		ref := formulaRef{Col: col, Row: row, AbsRow: m[9] > m[8]}
		if m[2] >= 0 {
			ref.Qualified = true
			ref.Sheet = unquoteSheet(text[m[2]:m[3]])
		} else if start == rangeEnd+1 && rangeEnd >= 0 && text[rangeEnd] == ':' {
			ref.Qualified, ref.Sheet, ref.RangeFrom = rangeQ, rangeTo, rangeRow
		}
		rangeEnd, rangeTo, rangeQ, rangeRow = end, ref.Sheet, ref.Qualified, row

		newRow := fn(ref)
		if newRow == row {
			continue
		}
		b.WriteString(text[last:m[10]])
		b.WriteString(strconv.Itoa(newRow))
		last = m[11]
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func isNameChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '.' || c == '$' || c == '!' || c == '\''
}

func unquoteSheet(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func atoiDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
		if n > MaxRows {
			return MaxRows + 1
		}
	}
	return n
}

// isSharedFormula reports whether a raw <f> element takes part in a shared
// formula group.
func isSharedFormula(raw string) bool {
	end := strings.IndexByte(raw, '>')
	return end >= 0 && strings.Contains(raw[:end], ` t="shared"`)
}

// shiftFormulas keeps the formulas of every worksheet in step with n rows
// inserted below row after on sheet. References below after move down, and
// ranges ending on after grow to cover the new rows unless the formula sits
// on row after itself, the row being repeated.
func (wb *Workbook) shiftFormulas(sheet string, after, n int) {
	for _, ws := range wb.Sheets {
		home := ws.Name
		ws.Data.EachCell(func(c *Cell) bool {
			if c.Formula == "" {
				return true
			}
			grow := home != sheet || RowNumber(c.Ref) != after
			c.Formula = rewriteFormula(c.Formula, func(r formulaRef) int {
				if !r.refersTo(sheet, home) {
					return r.Row
				}
				if r.Row > after || (grow && r.RangeFrom > 0 && r.Row == after) {
					return r.Row + n
				}
				return r.Row
			})
			return true
		})
	}
}

// copyFormulasDown gives the cells of a row copied n rows down the formulas
// a spreadsheet program would: relative rows move, anchored rows stay.
// Shared formula groups cannot be repeated and are reduced to their value.
func copyFormulasDown(row *Row, n int) {
	for _, c := range row.Cells {
		if c.Formula == "" {
			continue
		}
		if isSharedFormula(c.Formula) {
			c.Formula = ""
			continue
		}
		c.Formula = rewriteFormula(c.Formula, func(r formulaRef) int {
			if r.AbsRow {
				return r.Row
			}
			return r.Row + n
		})
	}
}

var calcPrRegex = regexp.MustCompile(`<([A-Za-z0-9_]+:)?calcPr\b`)

// requestFullCalc asks spreadsheet programs to recompute every formula when
// the workbook opens. Workbooks without calcPr are returned unchanged.
func requestFullCalc(workbookXML []byte) []byte {
	loc := calcPrRegex.FindIndex(workbookXML)
	if loc == nil {
		return workbookXML
	}
	tagEnd := strings.IndexByte(string(workbookXML[loc[1]:]), '>')
	if tagEnd < 0 || strings.Contains(string(workbookXML[loc[1]:loc[1]+tagEnd]), "fullCalcOnLoad=") {
		return workbookXML
	}
	out := make([]byte, 0, len(workbookXML)+len(` fullCalcOnLoad="1"`))
	out = append(out, workbookXML[:loc[1]]...)
	out = append(out, ` fullCalcOnLoad="1"`...)
	return append(out, workbookXML[loc[1]:]...)
}
