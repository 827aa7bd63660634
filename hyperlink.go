package tabexport

import "strings"

// Link is a value written as a clickable HYPERLINK formula in spreadsheets
// and as its display text in CSV and XML.
type Link struct {
	URL     string
	Display string
}

// NewLink creates a Link. An empty display shows the URL.
func NewLink(url, display string) Link {
	return Link{URL: url, Display: display}
}

// String returns the display text of the link.
func (l Link) String() string {
	if l.Display != "" {
		return l.Display
	}
	return l.URL
}

var formulaEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// formula returns the raw <f> element of the link.
func (l Link) formula() string {
	return "<f>HYPERLINK(" + formulaEscaper.Replace(formulaString(l.URL)) + "," +
		formulaEscaper.Replace(formulaString(l.String())) + ")</f>"
}

// formulaString quotes s as a formula string literal.
func formulaString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// qualifyFormula puts a formula written by the engine into the namespace
// prefix of its worksheet.
func qualifyFormula(prefix, raw string) string {
	if prefix == "" || !strings.HasPrefix(raw, "<f>") {
		return raw
	}
	return "<" + prefix + ":f>" + strings.TrimSuffix(strings.TrimPrefix(raw, "<f>"), "</f>") + "</" + prefix + ":f>"
}

// setLink stores l as a formula whose cached result is the display text.
func (c *Cell) setLink(l Link) {
	c.reset()
	c.Kind = KindFormulaString
	c.Formula = l.formula()
	c.Value = cellText(l.String())
}
