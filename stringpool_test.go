package tabexport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cellsVisitor walks a fixed cell list.
func cellsVisitor(cells ...*Cell) CellVisitor {
	return func(fn func(*Cell) bool) {
		for _, c := range cells {
			if !fn(c) {
				return
			}
		}
	}
}

func sharedCell(ref string, idx int) *Cell {
	c := &Cell{Ref: ref}
	c.SetShared(idx)
	return c
}

func TestStringPool_InternDeduplicates(t *testing.T) {
	p := NewStringPool()
	a := p.Intern("alpha")
	b := p.Intern("beta")
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, a, p.Intern("alpha"))
	assert.Equal(t, 2, p.Len())

	text, ok := p.Text(1)
	require.True(t, ok)
	assert.Equal(t, "beta", text)
	_, ok = p.Text(5)
	assert.False(t, ok)
}

func TestStringPool_LoadExistingKeepsIndices(t *testing.T) {
	p := NewStringPool()
	p.LoadExisting([]SharedString{{Text: "x"}, {Text: "y"}, {Text: "x"}})
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 0, p.Intern("x"))
	assert.Equal(t, 1, p.Intern("y"))
	assert.Equal(t, 3, p.Intern("z"))
}

func TestStringPool_RemoveReferencedIsNoop(t *testing.T) {
	p := NewStringPool()
	p.Intern("a")
	p.Intern("b")
	c := sharedCell("A1", 1)

	assert.False(t, p.Remove(1, cellsVisitor(c)))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "1", c.Value)
}

func TestStringPool_RemoveCompactsAndRenumbers(t *testing.T) {
	p := NewStringPool()
	for _, s := range []string{"a", "b", "c", "d"} {
		p.Intern(s)
	}
	cA := sharedCell("A1", 0)
	cC := sharedCell("A2", 2)
	cD := sharedCell("A3", 3)
	inline := &Cell{Ref: "A4"}
	inline.SetInline("3")

	require.True(t, p.Remove(1, cellsVisitor(cA, cC, cD, inline)))

	assert.Equal(t, []SharedString{{Text: "a"}, {Text: "c"}, {Text: "d"}}, p.Flush())
	assert.Equal(t, "0", cA.Value)
	assert.Equal(t, "1", cC.Value)
	assert.Equal(t, "2", cD.Value)
	assert.Equal(t, "3", inline.Value)

	// The cached index map follows the renumbering.
	assert.Equal(t, 1, p.Intern("c"))
	assert.Equal(t, 2, p.Intern("d"))
	assert.Equal(t, 3, p.Intern("b"))
}

func TestStringPool_RemoveKeepsLaterDuplicateReachable(t *testing.T) {
	p := NewStringPool()
	p.LoadExisting([]SharedString{{Text: "dup"}, {Text: "other"}, {Text: "dup"}})
	c := sharedCell("A1", 2)

	require.True(t, p.Remove(0, cellsVisitor(c)))
	assert.Equal(t, "1", c.Value)
	assert.Equal(t, 1, p.Intern("dup"))
	assert.Equal(t, 2, p.Len())
}

func TestStringPool_RemoveOutOfRange(t *testing.T) {
	p := NewStringPool()
	p.Intern("a")
	assert.False(t, p.Remove(-1, cellsVisitor()))
	assert.False(t, p.Remove(1, cellsVisitor()))
}

func TestStringPool_FlushIsACopy(t *testing.T) {
	p := NewStringPool()
	p.Intern("a")
	out := p.Flush()
	out[0].Text = "changed"
	text, _ := p.Text(0)
	assert.Equal(t, "a", text)
}

func TestParseSST_RoundTrip(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<x:sst xmlns:x="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="3" uniqueCount="2">` +
		`<x:si><x:t>plain</x:t></x:si>` +
		`<x:si><x:r><x:t>rich </x:t></x:r><x:r><x:rPr><x:b/></x:rPr><x:t>text</x:t></x:r><x:rPh><x:t>ignored</x:t></x:rPh></x:si>` +
		`</x:sst>`)

	layout, entries, err := parseSST(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "plain", entries[0].Text)
	assert.Equal(t, "rich text", entries[1].Text)
	assert.Equal(t, "x", layout.prefix)

	out := string(marshalSST(layout, append(entries, SharedString{Text: "new & <odd>"}), 4))
	assert.Contains(t, out, `<x:sst xmlns:x="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="4" uniqueCount="3">`)
	assert.Contains(t, out, entries[1].Raw)
	assert.Contains(t, out, `<x:si><x:t xml:space="preserve">new &amp; &lt;odd&gt;</x:t></x:si>`)

	_, again, err := parseSST([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "rich text", "new & <odd>"}, []string{again[0].Text, again[1].Text, again[2].Text})
}
