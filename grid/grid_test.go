package grid

import (
	"testing"

	"github.com/kmsterm/kmsterm/font"
)

func newTestGrid(cols, lines int) *Grid {
	return NewGrid(cols, lines, font.Default())
}

func TestWriteChar(t *testing.T) {
	g := newTestGrid(80, 24)
	g.WriteChar('A')

	c := g.Cell(0, 0)
	if c.Code != 'A' {
		t.Fatalf("cell code = %q, want 'A'", c.Code)
	}
	x, y := g.Cursor()
	if x != 1 || y != 0 {
		t.Fatalf("cursor = (%d,%d), want (1,0)", x, y)
	}
	if !g.LineDirty(0) {
		t.Errorf("line 0 not dirty after write")
	}
}

func TestWriteCharWide(t *testing.T) {
	g := newTestGrid(80, 24)
	g.WriteChar('あ')

	left := g.Cell(0, 0)
	right := g.Cell(1, 0)
	if left.Width != font.Wide {
		t.Fatalf("left width = %v, want Wide", left.Width)
	}
	if right.Width != font.NextToWide {
		t.Fatalf("right width = %v, want NextToWide", right.Width)
	}
	if left.Code != right.Code {
		t.Errorf("pair code mismatch: %q vs %q", left.Code, right.Code)
	}
	if x, _ := g.Cursor(); x != 2 {
		t.Errorf("cursor x = %d, want 2", x)
	}
}

func TestAutoWrapPending(t *testing.T) {
	g := newTestGrid(80, 24)
	for i := 0; i < 80; i++ {
		g.WriteChar('A')
	}
	x, y := g.Cursor()
	if x != 79 || y != 0 {
		t.Fatalf("cursor = (%d,%d), want (79,0) with wrap pending", x, y)
	}
	if !g.WrapPending() {
		t.Fatalf("wrap not pending after filling row")
	}
	g.WriteChar('B')
	x, y = g.Cursor()
	if x != 1 || y != 1 {
		t.Fatalf("cursor = (%d,%d) after wrap, want (1,1)", x, y)
	}
	if g.Cell(0, 1).Code != 'B' {
		t.Errorf("wrapped char not at column 0 of next row")
	}
}

func TestNoAutoWrapOverwritesLastCell(t *testing.T) {
	g := newTestGrid(80, 24)
	g.ClearMode(ModeAutoWrap)
	for i := 0; i < 85; i++ {
		g.WriteChar('A')
	}
	x, y := g.Cursor()
	if x != 79 || y != 0 {
		t.Fatalf("cursor = (%d,%d), want (79,0)", x, y)
	}
	for i := 0; i < 80; i++ {
		if g.Cell(i, 0).Code != 'A' {
			t.Fatalf("cell %d = %q, want 'A'", i, g.Cell(i, 0).Code)
		}
	}
	if g.Cell(0, 1).Code != ' ' {
		t.Errorf("second row written despite auto-wrap off")
	}
}

func TestWideWrapAtLastColumn(t *testing.T) {
	g := newTestGrid(80, 24)
	g.SetCursor(79, 0)
	g.WriteChar('あ')

	if g.Cell(0, 1).Width != font.Wide || g.Cell(1, 1).Width != font.NextToWide {
		t.Fatalf("wide pair not placed at columns 0,1 of next row")
	}
	if x, y := g.Cursor(); x != 2 || y != 1 {
		t.Errorf("cursor = (%d,%d), want (2,1)", x, y)
	}
}

func TestOverwriteDissolvesPair(t *testing.T) {
	g := newTestGrid(80, 24)
	g.WriteChar('あ')
	g.SetCursor(1, 0)
	g.WriteChar('x')

	if got := g.Cell(0, 0).Width; got == font.Wide {
		t.Fatalf("left half still Wide after partner overwritten")
	}
	if g.Cell(1, 0).Code != 'x' {
		t.Errorf("overwrite lost")
	}
}

func TestScrollRegionLineFeed(t *testing.T) {
	g := newTestGrid(80, 24)
	g.SetScrollRegion(2, 20)
	g.SetCursor(0, 20)
	g.WriteChar('Z')
	g.LineFeed()

	// Cursor stays on the bottom margin and content shifted up.
	if _, y := g.Cursor(); y != 20 {
		t.Fatalf("cursor y = %d, want 20", y)
	}
	if g.Cell(0, 19).Code != 'Z' {
		t.Errorf("row did not scroll into line 19")
	}
	top, bottom := g.ScrollRegion()
	if top != 2 || bottom != 20 {
		t.Errorf("region = {%d,%d}, want {2,20}", top, bottom)
	}
	// Rows outside the region keep their content through the scroll.
	if g.Cell(0, 21).Code != ' ' {
		t.Errorf("content leaked below scroll region")
	}
}

func TestScrollDown(t *testing.T) {
	g := newTestGrid(10, 5)
	g.SetCursor(0, 0)
	g.WriteChar('T')
	g.ScrollDown(1)
	if g.Cell(0, 1).Code != 'T' {
		t.Fatalf("row 0 did not move to row 1")
	}
	if g.Cell(0, 0).Code != ' ' {
		t.Errorf("vacated top row not blank")
	}
}

func TestEraseDisplayKeepsBackground(t *testing.T) {
	g := newTestGrid(10, 5)
	g.SetBg(4)
	g.SetAttr(AttrBold)
	g.SetFg(1)
	g.EraseDisplay(EraseAll)

	c := g.Cell(3, 3)
	if c.Bg != 4 {
		t.Errorf("erase bg = %d, want current bg 4", c.Bg)
	}
	if c.Fg != DefaultFg || c.Attr != 0 {
		t.Errorf("erase must reset fg/attributes, got fg=%d attr=%v", c.Fg, c.Attr)
	}
	for y := 0; y < 5; y++ {
		if !g.LineDirty(y) {
			t.Errorf("line %d not dirty after full erase", y)
		}
	}
}

func TestEraseLineDirections(t *testing.T) {
	g := newTestGrid(10, 2)
	for i := 0; i < 10; i++ {
		g.WriteChar('X')
	}
	g.SetCursor(5, 0)

	g.EraseLine(EraseToEnd)
	if g.Cell(4, 0).Code != 'X' || g.Cell(5, 0).Code != ' ' {
		t.Fatalf("erase-to-end boundary wrong")
	}

	g.SetCursor(2, 0)
	g.EraseLine(EraseToStart)
	if g.Cell(2, 0).Code != ' ' || g.Cell(3, 0).Code != 'X' {
		t.Fatalf("erase-to-start boundary wrong")
	}
}

func TestSaveRestoreState(t *testing.T) {
	g := newTestGrid(80, 24)
	// Setting DECOM homes the cursor, so it is set before positioning.
	g.SetMode(ModeOrigin)
	g.SetCursor(10, 5)
	g.SetAttr(AttrUnderline)
	g.SaveState()

	g.ClearMode(ModeOrigin)
	g.SetAttr(0)
	g.SetCursor(0, 0)

	g.RestoreState()
	x, y := g.Cursor()
	if x != 10 || y != 5 {
		t.Errorf("cursor = (%d,%d), want (10,5)", x, y)
	}
	if g.Attr() != AttrUnderline {
		t.Errorf("attribute not restored")
	}
	if g.Mode()&ModeOrigin == 0 {
		t.Errorf("mode not restored")
	}
}

func TestOriginModeCursor(t *testing.T) {
	g := newTestGrid(80, 24)
	g.SetScrollRegion(2, 20)
	g.SetMode(ModeOrigin)

	g.SetCursor(9, 4)
	x, y := g.Cursor()
	if x != 9 || y != 6 {
		t.Fatalf("origin cursor = (%d,%d), want (9,6)", x, y)
	}

	// Clamped to the region bottom.
	g.SetCursor(0, 100)
	if _, y := g.Cursor(); y != 20 {
		t.Errorf("cursor y = %d, want clamp at 20", y)
	}
}

func TestTabstops(t *testing.T) {
	g := newTestGrid(40, 4)
	g.TabForward()
	if x, _ := g.Cursor(); x != 8 {
		t.Fatalf("first tab: x = %d, want 8", x)
	}
	g.TabForward()
	if x, _ := g.Cursor(); x != 16 {
		t.Fatalf("second tab: x = %d, want 16", x)
	}
	g.TabBack()
	if x, _ := g.Cursor(); x != 8 {
		t.Fatalf("tab back: x = %d, want 8", x)
	}

	g.SetCursor(12, 0)
	g.SetTabstop()
	g.SetCursor(9, 0)
	g.TabForward()
	if x, _ := g.Cursor(); x != 12 {
		t.Fatalf("custom tabstop: x = %d, want 12", x)
	}

	g.ClearTabstop(true)
	g.SetCursor(0, 0)
	g.TabForward()
	if x, _ := g.Cursor(); x != 39 {
		t.Errorf("after TBC 3 tab should hit last column, x = %d", x)
	}
}

func TestInsertDeleteChars(t *testing.T) {
	g := newTestGrid(10, 2)
	for _, r := range "ABCDEFGHIJ" {
		g.WriteChar(r)
	}
	g.SetCursor(2, 0)
	g.DeleteChars(3)
	if g.Cell(2, 0).Code != 'F' {
		t.Fatalf("after DCH cell 2 = %q, want 'F'", g.Cell(2, 0).Code)
	}
	if g.Cell(9, 0).Code != ' ' {
		t.Errorf("tail not blanked after DCH")
	}

	g.InsertChars(2)
	if g.Cell(2, 0).Code != ' ' || g.Cell(4, 0).Code != 'F' {
		t.Errorf("ICH did not shift right")
	}
}

func TestInsertDeleteLines(t *testing.T) {
	g := newTestGrid(10, 6)
	for y := 0; y < 6; y++ {
		g.SetCursor(0, y)
		g.WriteChar(rune('0' + y))
	}
	g.SetCursor(0, 1)
	g.DeleteLines(2)
	if g.Cell(0, 1).Code != '3' {
		t.Fatalf("after DL row 1 = %q, want '3'", g.Cell(0, 1).Code)
	}
	if g.Cell(0, 5).Code != ' ' {
		t.Errorf("bottom rows not blanked after DL")
	}

	g.SetCursor(0, 1)
	g.InsertLines(1)
	if g.Cell(0, 1).Code != ' ' || g.Cell(0, 2).Code != '3' {
		t.Errorf("IL did not shift rows down")
	}
}

func TestPalette(t *testing.T) {
	g := newTestGrid(4, 2)
	if g.Palette(1) != 0xAA0000 {
		t.Fatalf("palette[1] = %06x, want aa0000", g.Palette(1))
	}
	if g.Palette(196) != 0xFF0000 {
		t.Fatalf("palette[196] = %06x, want ff0000", g.Palette(196))
	}
	if g.Palette(232) != 0x080808 {
		t.Fatalf("palette[232] = %06x, want 080808", g.Palette(232))
	}

	g.SetPalette(1, 0x123456)
	if g.Palette(1) != 0x123456 {
		t.Errorf("SetPalette did not stick")
	}
	// Index wraps modulo palette size.
	if g.Palette(257) != g.Palette(1) {
		t.Errorf("palette index did not wrap")
	}
	if !g.LineDirty(0) || !g.LineDirty(1) {
		t.Errorf("palette change must dirty the screen")
	}
}

func TestAlignmentFill(t *testing.T) {
	g := newTestGrid(10, 4)
	g.SetScrollRegion(1, 2)
	g.AlignmentFill()
	if g.Cell(9, 3).Code != 'E' {
		t.Fatalf("DECALN cell = %q, want 'E'", g.Cell(9, 3).Code)
	}
	if top, bottom := g.ScrollRegion(); top != 0 || bottom != 3 {
		t.Errorf("DECALN must reset margins")
	}
	if x, y := g.Cursor(); x != 0 || y != 0 {
		t.Errorf("DECALN must home the cursor")
	}
}

func TestResize(t *testing.T) {
	g := newTestGrid(20, 10)
	g.WriteChar('R')
	g.SetCursor(19, 9)
	g.Resize(10, 5)
	if g.Cols() != 10 || g.Lines() != 5 {
		t.Fatalf("resize geometry wrong")
	}
	if g.Cell(0, 0).Code != 'R' {
		t.Errorf("content lost on resize")
	}
	x, y := g.Cursor()
	if x != 9 || y != 4 {
		t.Errorf("cursor not clamped on resize: (%d,%d)", x, y)
	}
}

func TestScrollRegionValidity(t *testing.T) {
	g := newTestGrid(80, 24)

	// Inverted and out-of-range margins reset to the full screen.
	g.SetScrollRegion(10, 5)
	if top, bottom := g.ScrollRegion(); top != 0 || bottom != 23 {
		t.Errorf("inverted margins gave {%d,%d}", top, bottom)
	}
	g.SetScrollRegion(-3, 100)
	top, bottom := g.ScrollRegion()
	if top != 0 || bottom != 23 {
		t.Errorf("clamped margins gave {%d,%d}", top, bottom)
	}
	if !(0 <= top && top <= bottom && bottom < 24) {
		t.Fatalf("region invariant broken: {%d,%d}", top, bottom)
	}
}

func TestCursorClampInvariant(t *testing.T) {
	g := newTestGrid(80, 24)
	g.MoveCursor(-100, -100)
	x, y := g.Cursor()
	if x != 0 || y != 0 {
		t.Fatalf("cursor = (%d,%d), want (0,0)", x, y)
	}
	g.MoveCursor(1000, 1000)
	x, y = g.Cursor()
	if x != 79 || y != 23 {
		t.Fatalf("cursor = (%d,%d), want (79,23)", x, y)
	}
}
