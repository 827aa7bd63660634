package tabexport

import (
	"fmt"
	"strconv"
	"strings"
)

// Worksheet size limits.
const (
	MaxColumns = 16384
	MaxRows    = 1048576
)

// ColumnName converts a 1-based column number to its letter name.
// 1→"A", 26→"Z", 27→"AA", 702→"ZZ", 703→"AAA"
func ColumnName(n int) string {
	if n < 1 {
		return ""
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		digit := (n - 1) % 26
		i--
		buf[i] = byte('A' + digit)
		n = (n - digit - 1) / 26
	}
	return string(buf[i:])
}

// ColumnNumber converts a column name to its 1-based number.
// Lower case is accepted. A name containing anything but letters yields 0.
func ColumnNumber(name string) int {
	if name == "" {
		return 0
	}
	n := 0
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
			n = n*26 + int(ch-'A') + 1
		case ch >= 'a' && ch <= 'z':
			n = n*26 + int(ch-'a') + 1
		default:
			return 0
		}
	}
	return n
}

// RowNumber extracts the trailing decimal run of a cell address.
// "C12"→12, ""→0
func RowNumber(address string) int {
	i := len(address)
	for i > 0 && isDigit(address[i-1]) {
		i--
	}
	if i == len(address) {
		return 0
	}
	n, err := strconv.Atoi(address[i:])
	if err != nil {
		return 0
	}
	return n
}

// ColumnNameOf extracts the leading alphabetic run of a cell address.
// "C12"→"C", ""→"A"
func ColumnNameOf(address string) string {
	if address == "" {
		return "A"
	}
	i := 0
	for i < len(address) && isAlpha(address[i]) {
		i++
	}
	return strings.ToUpper(address[:i])
}

// Address formats a 1-based column and row as "C12".
func Address(col, row int) string {
	return ColumnName(col) + strconv.Itoa(row)
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// CellRef is a parsed cell address. Col and Row are 1-based.
type CellRef struct {
	Sheet string
	Col   int
	Row   int
}

// ParseCellRef parses "A1", "$A$1" or "Sheet1!B5".
func ParseCellRef(s string) (CellRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CellRef{}, fmt.Errorf("%w: empty cell reference", ErrMalformedAddress)
	}

	var sheet string
	cellPart := s
	if idx := strings.LastIndex(s, "!"); idx >= 0 {
		sheet = strings.Trim(s[:idx], "'")
		cellPart = s[idx+1:]
	}
	cellPart = strings.ReplaceAll(cellPart, "$", "")

	i := 0
	for i < len(cellPart) && isAlpha(cellPart[i]) {
		i++
	}
	if i == 0 || i == len(cellPart) {
		return CellRef{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	for j := i; j < len(cellPart); j++ {
		if !isDigit(cellPart[j]) {
			return CellRef{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
		}
	}
	row := RowNumber(cellPart)
	if row < 1 {
		return CellRef{}, fmt.Errorf("%w: invalid row in %q", ErrMalformedAddress, s)
	}
	return CellRef{Sheet: sheet, Col: ColumnNumber(cellPart[:i]), Row: row}, nil
}

// CellName returns the address without the sheet part.
func (c CellRef) CellName() string {
	return Address(c.Col, c.Row)
}

// String formats the reference as "Sheet1!A1" or "A1" when no sheet is set.
func (c CellRef) String() string {
	if c.Sheet != "" {
		return c.Sheet + "!" + c.CellName()
	}
	return c.CellName()
}

// Dimension is the declared rectangular bound of a worksheet's cells.
// The zero value is an empty range.
type Dimension struct {
	FirstCol, FirstRow int
	LastCol, LastRow   int
}

// ParseDimension parses "A1" or "A1:C6". An empty string yields an empty Dimension.
func ParseDimension(s string) (Dimension, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dimension{}, nil
	}
	first, last, found := strings.Cut(s, ":")
	a, err := ParseCellRef(first)
	if err != nil {
		return Dimension{}, fmt.Errorf("parse dimension %q: %w", s, err)
	}
	b := a
	if found {
		if b, err = ParseCellRef(last); err != nil {
			return Dimension{}, fmt.Errorf("parse dimension %q: %w", s, err)
		}
	}
	return Dimension{
		FirstCol: min(a.Col, b.Col),
		FirstRow: min(a.Row, b.Row),
		LastCol:  max(a.Col, b.Col),
		LastRow:  max(a.Row, b.Row),
	}, nil
}

// IsEmpty reports whether the range covers no cell.
func (d Dimension) IsEmpty() bool {
	return d.FirstCol < 1 || d.FirstRow < 1
}

// Include returns the smallest range covering d and the given cell.
func (d Dimension) Include(col, row int) Dimension {
	return d.Union(Dimension{FirstCol: col, FirstRow: row, LastCol: col, LastRow: row})
}

// Union returns the smallest range covering both d and o.
func (d Dimension) Union(o Dimension) Dimension {
	if d.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return d
	}
	return Dimension{
		FirstCol: min(d.FirstCol, o.FirstCol),
		FirstRow: min(d.FirstRow, o.FirstRow),
		LastCol:  max(d.LastCol, o.LastCol),
		LastRow:  max(d.LastRow, o.LastRow),
	}
}

// String formats the range as "A1:C6", or "A1" for a single cell.
func (d Dimension) String() string {
	if d.IsEmpty() {
		return "A1"
	}
	start := Address(d.FirstCol, d.FirstRow)
	end := Address(d.LastCol, d.LastRow)
	if start == end {
		return start
	}
	return start + ":" + end
}

// maxSheetNameLen is the spreadsheet limit on worksheet names.
const maxSheetNameLen = 31

// SafeSheetName sanitizes a string for use as a worksheet name.
// It replaces forbidden characters ([]*?/\:) with underscore and truncates to 31 chars.
func SafeSheetName(name string) string {
	forbidden := []rune{'/', '\\', ':', '*', '?', '[', ']'}
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		for _, f := range forbidden {
			if r == f {
				runes[i] = '_'
				break
			}
		}
	}
	if len(runes) > maxSheetNameLen {
		runes = runes[:maxSheetNameLen]
	}
	name = strings.Trim(string(runes), "'")
	if name == "" {
		return "Sheet"
	}
	return name
}

// UniqueSheetNames sanitizes every name and appends a numeric suffix to
// names that collide (case-insensitively) with an earlier one.
func UniqueSheetNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		base := SafeSheetName(name)
		candidate := base
		for n := 1; seen[strings.ToLower(candidate)]; n++ {
			suffix := strconv.Itoa(n)
			r := []rune(base)
			if len(r)+len(suffix) > maxSheetNameLen {
				r = r[:maxSheetNameLen-len(suffix)]
			}
			candidate = string(r) + suffix
		}
		seen[strings.ToLower(candidate)] = true
		out = append(out, candidate)
	}
	return out
}
