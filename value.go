package tabexport

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxCellTextLength is the spreadsheet limit on characters in one cell.
const MaxCellTextLength = 32767

// ValueFormatter turns a non-numeric value into the text written to a cell
// or field. It is applied just before the value is written.
type ValueFormatter func(value any) string

// numericText reports whether v belongs to the integer or floating-point
// family and returns its invariant representation.
func numericText(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return formatFloat(float64(n), 32)
	case float64:
		return formatFloat(n, 64)
	default:
		return "", false
	}
}

func formatFloat(f float64, bits int) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, bits), true
}

// parseNumericText reports whether s reads as an integer or a double and
// returns its canonical form.
func parseNumericText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return formatFloat(f, 64)
	}
	return "", false
}

// FormatValue is the default ValueFormatter. Numbers use invariant
// formatting, times use ISO 8601.
func FormatValue(v any) string {
	if s, ok := numericText(v); ok {
		return s
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format("2006-01-02T15:04:05")
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

// LocalizedFormatter formats numbers with the grouping and decimal
// separators of the given language and falls back to FormatValue for
// everything else. It shapes CSV fields; spreadsheet numeric cells and XML
// elements keep the invariant form.
func LocalizedFormatter(tag language.Tag) ValueFormatter {
	p := message.NewPrinter(tag)
	return func(v any) string {
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return p.Sprintf("%d", n)
		case float32, float64:
			if _, ok := numericText(n); !ok {
				return FormatValue(v)
			}
			return p.Sprintf("%v", n)
		}
		return FormatValue(v)
	}
}

// cellText strips characters that cannot appear in XML and caps the text
// at MaxCellTextLength characters.
func cellText(s string) string {
	valid := true
	n := 0
	for _, r := range s {
		if !isXMLChar(r) {
			valid = false
		}
		n++
	}
	if valid && n <= MaxCellTextLength {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	n = 0
	for _, r := range s {
		if !isXMLChar(r) {
			continue
		}
		if n == MaxCellTextLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}
