package font

import (
	"image"
	"image/draw"
	"slices"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// WidthClass describes how many cells a glyph occupies.
type WidthClass uint8

const (
	// NextToWide marks the right half of a wide pair.
	NextToWide WidthClass = iota
	// Half occupies a single cell.
	Half
	// Wide occupies two cells and owns the left one.
	Wide
)

// Default substitution code points for missing glyphs.
const (
	SubstituteHalf = '�' // REPLACEMENT CHARACTER
	SubstituteWide = '〓' // GETA MARK
)

// Glyph is a fixed-size monochrome bitmap. Each entry of Rows is one pixel
// row; the leftmost pixel sits in bit 31. Wide glyphs use twice the cell
// width, so the right half starts at column cellWidth.
type Glyph struct {
	Rows  []uint32
	Width WidthClass
}

// Set reports whether the pixel at (row, col) is foreground.
func (g Glyph) Set(row, col int) bool {
	if row < 0 || row >= len(g.Rows) || col < 0 || col > 31 {
		return false
	}
	return g.Rows[row]&(1<<uint(31-col)) != 0
}

// Table maps code points to glyph bitmaps. It rasterises lazily from a
// font.Face and memoises the result; after warm-up it behaves as an
// immutable lookup. The emulator is single-threaded, so the cache needs
// no locking.
type Table struct {
	face    font.Face
	cellW   int
	cellH   int
	ascent  int
	subHalf rune
	subWide rune
	cache   map[rune]Glyph
}

// NewTable builds a glyph table over face. Substitution glyphs default to
// U+FFFD (half) and U+3013 (wide) when zero runes are given.
func NewTable(face font.Face, subHalf, subWide rune) *Table {
	if subHalf == 0 {
		subHalf = SubstituteHalf
	}
	if subWide == 0 {
		subWide = SubstituteWide
	}
	m := face.Metrics()
	adv, ok := face.GlyphAdvance('M')
	if !ok {
		adv = m.Height
	}
	t := &Table{
		face:    face,
		cellW:   adv.Ceil(),
		cellH:   m.Ascent.Ceil() + m.Descent.Ceil(),
		ascent:  m.Ascent.Ceil(),
		subHalf: subHalf,
		subWide: subWide,
		cache:   make(map[rune]Glyph),
	}
	return t
}

// Default returns a table over the built-in basicfont face.
func Default() *Table {
	return NewTable(basicfont.Face7x13, 0, 0)
}

// CellWidth returns the pixel width of one cell.
func (t *Table) CellWidth() int { return t.cellW }

// CellHeight returns the pixel height of one cell.
func (t *Table) CellHeight() int { return t.cellH }

// Lookup resolves a code point to its bitmap and width class. Missing
// glyphs fall back to the substitution glyph of the matching width; if the
// substitution glyph itself is missing a builtin box pattern is used.
func (t *Table) Lookup(r rune) Glyph {
	if g, ok := t.cache[r]; ok {
		return g
	}
	class := ClassOf(r)
	g, ok := t.rasterise(r, class)
	if !ok {
		sub := t.subHalf
		if class == Wide {
			sub = t.subWide
		}
		if g, ok = t.rasterise(sub, class); !ok {
			g = t.boxGlyph(class)
		}
	}
	t.cache[r] = g
	return g
}

// rasterise draws r through the face into a bit-per-pixel row set.
func (t *Table) rasterise(r rune, class WidthClass) (Glyph, bool) {
	dot := fixed.P(0, t.ascent)
	dr, mask, maskp, _, ok := t.face.Glyph(dot, r)
	if !ok {
		return Glyph{}, false
	}

	pw := t.cellW
	if class == Wide {
		pw *= 2
	}
	alpha := image.NewAlpha(image.Rect(0, 0, pw, t.cellH))
	draw.DrawMask(alpha, dr, image.White, image.Point{}, mask, maskp, draw.Over)

	g := Glyph{Rows: make([]uint32, t.cellH), Width: class}
	for y := 0; y < t.cellH; y++ {
		for x := 0; x < pw; x++ {
			if alpha.AlphaAt(x, y).A >= 0x80 {
				g.Rows[y] |= 1 << uint(31-x)
			}
		}
	}
	// Some faces (basicfont among them) draw U+FFFD for runes they lack
	// and still report success; such a result counts as a missing glyph.
	if r != SubstituteHalf {
		if rep, ok := t.rasterise(SubstituteHalf, class); ok && slices.Equal(g.Rows, rep.Rows) {
			return Glyph{}, false
		}
	}
	return g, true
}

// boxGlyph is the last-resort bitmap: a hollow rectangle covering the cell.
func (t *Table) boxGlyph(class WidthClass) Glyph {
	pw := t.cellW
	if class == Wide {
		pw *= 2
	}
	g := Glyph{Rows: make([]uint32, t.cellH), Width: class}
	full := uint32(0)
	for x := 0; x < pw; x++ {
		full |= 1 << uint(31-x)
	}
	edge := uint32(1<<31) | 1<<uint(31-(pw-1))
	for y := 0; y < t.cellH; y++ {
		if y == 0 || y == t.cellH-1 {
			g.Rows[y] = full
		} else {
			g.Rows[y] = edge
		}
	}
	return g
}
