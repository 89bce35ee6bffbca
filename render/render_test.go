package render

import (
	"testing"

	"github.com/kmsterm/kmsterm/font"
	"github.com/kmsterm/kmsterm/grid"
	"github.com/kmsterm/kmsterm/parser"
)

// fakeSink is an in-memory pixel sink recording committed rectangles.
type fakeSink struct {
	w, h, bpp int
	buf       []byte
	commits   [][4]int
}

func newFakeSink(w, h int) *fakeSink {
	return &fakeSink{w: w, h: h, bpp: 4, buf: make([]byte, w*h*4)}
}

func (s *fakeSink) Width() int         { return s.w }
func (s *fakeSink) Height() int        { return s.h }
func (s *fakeSink) Stride() int        { return s.w * s.bpp }
func (s *fakeSink) BytesPerPixel() int { return s.bpp }
func (s *fakeSink) Buffer() []byte     { return s.buf }
func (s *fakeSink) Commit(x1, y1, x2, y2 int) {
	s.commits = append(s.commits, [4]int{x1, y1, x2, y2})
}

func (s *fakeSink) pixel(x, y int) uint32 {
	off := y*s.Stride() + x*s.bpp
	return uint32(s.buf[off]) | uint32(s.buf[off+1])<<8 | uint32(s.buf[off+2])<<16
}

func newEnv(cols, lines int) (*parser.Terminal, *Renderer, *fakeSink, *font.Table) {
	tab := font.Default()
	sink := newFakeSink(cols*tab.CellWidth(), lines*tab.CellHeight())
	g := grid.NewGrid(cols, lines, tab)
	term := parser.New(g)
	return term, New(sink, g), sink, tab
}

// glyphPixel finds one foreground pixel of a glyph's cell, in cell-local
// coordinates.
func glyphPixel(tab *font.Table, r rune) (int, int, bool) {
	g := tab.Lookup(r)
	for y := 0; y < tab.CellHeight(); y++ {
		for x := 0; x < tab.CellWidth(); x++ {
			if g.Set(y, x) {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

func TestDrawPlainGlyph(t *testing.T) {
	term, rend, sink, tab := newEnv(8, 4)
	// Park the cursor away from the glyph so the overlay doesn't recolor it.
	term.Parse([]byte("X\x1b[4;8H"))
	rend.Refresh()

	gx, gy, ok := glyphPixel(tab, 'X')
	if !ok {
		t.Fatalf("no foreground pixel in 'X'")
	}
	fg := term.Grid.Palette(grid.DefaultFg)
	bg := term.Grid.Palette(grid.DefaultBg)
	if got := sink.pixel(gx, gy); got != fg {
		t.Errorf("glyph pixel = %06x, want fg %06x", got, fg)
	}
	// A corner pixel of the last cell is background.
	if got := sink.pixel(sink.w-1, 0); got != bg {
		t.Errorf("background pixel = %06x, want %06x", got, bg)
	}
}

func TestBoldUsesBrightPalette(t *testing.T) {
	term, rend, sink, tab := newEnv(8, 4)
	term.Parse([]byte("\x1b[31;1mX\x1b[4;8H"))
	rend.Refresh()

	gx, gy, ok := glyphPixel(tab, 'X')
	if !ok {
		t.Fatalf("no foreground pixel in 'X'")
	}
	want := term.Grid.Palette(9) // bright red
	if got := sink.pixel(gx, gy); got != want {
		t.Errorf("bold pixel = %06x, want palette[9] %06x", got, want)
	}
}

func TestBlinkBrightensBackground(t *testing.T) {
	term, rend, sink, _ := newEnv(8, 4)
	term.Parse([]byte("\x1b[44;5m \x1b[4;8H"))
	rend.Refresh()

	want := term.Grid.Palette(12)
	if got := sink.pixel(0, 0); got != want {
		t.Errorf("blink bg pixel = %06x, want palette[12] %06x", got, want)
	}
}

func TestReverseSwapsColors(t *testing.T) {
	term, rend, sink, _ := newEnv(8, 4)
	term.Parse([]byte("\x1b[31;42;7m \x1b[4;8H"))
	rend.Refresh()

	// Reversed: the space's background renders in the foreground color.
	want := term.Grid.Palette(1)
	if got := sink.pixel(0, 0); got != want {
		t.Errorf("reverse pixel = %06x, want fg-as-bg %06x", got, want)
	}
}

func TestUnderlineForcesLastRow(t *testing.T) {
	term, rend, sink, tab := newEnv(8, 4)
	term.Parse([]byte("\x1b[4m \x1b[4;8H"))
	rend.Refresh()

	fg := term.Grid.Palette(grid.DefaultFg)
	if got := sink.pixel(0, tab.CellHeight()-1); got != fg {
		t.Errorf("underline row pixel = %06x, want fg %06x", got, fg)
	}
	bg := term.Grid.Palette(grid.DefaultBg)
	if got := sink.pixel(0, 0); got != bg {
		t.Errorf("top row of underlined space = %06x, want bg %06x", got, bg)
	}
}

func TestCursorOverlay(t *testing.T) {
	term, rend, sink, _ := newEnv(8, 4)
	rend.Refresh()

	// Cursor at (0,0) on a blank cell paints the active cursor color.
	want := term.Grid.Palette(ActiveCursorColor)
	if got := sink.pixel(0, 0); got != want {
		t.Errorf("cursor pixel = %06x, want active %06x", got, want)
	}

	rend.SetVisible(false)
	rend.Refresh()
	want = term.Grid.Palette(PassiveCursorColor)
	if got := sink.pixel(0, 0); got != want {
		t.Errorf("backgrounded cursor pixel = %06x, want passive %06x", got, want)
	}
}

func TestCursorHiddenWhenDECTCEMReset(t *testing.T) {
	term, rend, sink, _ := newEnv(8, 4)
	term.Parse([]byte("\x1b[?25l"))
	rend.Refresh()

	bg := term.Grid.Palette(grid.DefaultBg)
	if got := sink.pixel(0, 0); got != bg {
		t.Errorf("hidden cursor still drawn: %06x", got)
	}
}

func TestDirtyLineLifecycle(t *testing.T) {
	term, rend, sink, _ := newEnv(8, 4)
	term.Parse([]byte("\x1b[3;1Hy"))
	if !term.Grid.LineDirty(2) {
		t.Fatalf("written line not dirty")
	}
	rend.Refresh()

	// The cursor line stays dirty for the next refresh; others clear.
	if !term.Grid.LineDirty(2) {
		t.Errorf("cursor line must stay dirty")
	}
	if term.Grid.LineDirty(0) {
		t.Errorf("non-cursor line still dirty after refresh")
	}

	sink.commits = nil
	term.Parse([]byte("\x1b[1;1Hz"))
	rend.Refresh()
	// Exactly two lines repainted: the old cursor line and line 0.
	if len(sink.commits) != 2 {
		t.Errorf("commits = %v, want 2 line rects", sink.commits)
	}
}

func TestCommitRectCoversLine(t *testing.T) {
	term, rend, sink, tab := newEnv(8, 4)
	term.Parse([]byte("\x1b[2;1Hw\x1b[4;8H"))
	sink.commits = nil
	rend.Refresh()

	found := false
	for _, c := range sink.commits {
		if c[1] == tab.CellHeight() && c[3] == 2*tab.CellHeight() &&
			c[0] == 0 && c[2] == 8*tab.CellWidth() {
			found = true
		}
	}
	if !found {
		t.Errorf("no commit rect for line 1: %v", sink.commits)
	}
}

func TestWideGlyphSpansTwoCells(t *testing.T) {
	term, rend, sink, tab := newEnv(8, 4)
	term.Parse([]byte("\xe3\x81\x82\x1b[4;8H")) // あ
	rend.Refresh()

	// The fallback wide bitmap has foreground pixels on both halves.
	fg := term.Grid.Palette(grid.DefaultFg)
	leftHit, rightHit := false, false
	for y := 0; y < tab.CellHeight(); y++ {
		for x := 0; x < tab.CellWidth(); x++ {
			if sink.pixel(x, y) == fg {
				leftHit = true
			}
			if sink.pixel(x+tab.CellWidth(), y) == fg {
				rightHit = true
			}
		}
	}
	if !leftHit || !rightHit {
		t.Errorf("wide glyph halves: left=%v right=%v", leftHit, rightHit)
	}
}
