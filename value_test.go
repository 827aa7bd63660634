package tabexport

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

type stringer struct{}

func (stringer) String() string { return "custom" }

func TestNumericText(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{42, "42", true},
		{int8(-3), "-3", true},
		{uint64(math.MaxUint64), "18446744073709551615", true},
		{2.5, "2.5", true},
		{float32(0.1), "0.1", true},
		{1e21, "1000000000000000000000", true},
		{math.NaN(), "", false},
		{math.Inf(1), "", false},
		{"12", "", false},
		{true, "", false},
	}
	for _, tt := range tests {
		got, ok := numericText(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestParseNumericText(t *testing.T) {
	for in, want := range map[string]string{"42": "42", " 7 ": "7", "2.50": "2.5", "-0.125": "-0.125"} {
		got, ok := parseNumericText(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "12 units", "NaN", "Inf"} {
		_, ok := parseNumericText(in)
		assert.False(t, ok, in)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "text", FormatValue("text"))
	assert.Equal(t, "raw", FormatValue([]byte("raw")))
	assert.Equal(t, "false", FormatValue(false))
	assert.Equal(t, "10", FormatValue(10.0))
	assert.Equal(t, "2024-03-09", FormatValue(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-09T14:05:00", FormatValue(time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)))
	assert.Equal(t, "custom", FormatValue(stringer{}))
	assert.Equal(t, "boom", FormatValue(errors.New("boom")))
	assert.Equal(t, "[1 2]", FormatValue([]int{1, 2}))
}

func TestLocalizedFormatter(t *testing.T) {
	en := LocalizedFormatter(language.English)
	de := LocalizedFormatter(language.German)

	assert.Equal(t, "1,234,567", en(1234567))
	assert.Equal(t, "1.234.567", de(1234567))
	assert.Equal(t, "0,5", de(0.5))
	assert.Equal(t, "text", de("text"))
	assert.Equal(t, "NaN", de(math.NaN()))
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "plain", cellText("plain"))
	assert.Equal(t, "a\tb\nc", cellText("a\tb\nc"))
	assert.Equal(t, "bell", cellText("be\x07ll"))
	assert.Equal(t, "ok", cellText("o\ufffek"))

	long := strings.Repeat("é", MaxCellTextLength+5)
	got := cellText(long)
	assert.Equal(t, MaxCellTextLength, len([]rune(got)))
}
