package grid

import (
	"github.com/kmsterm/kmsterm/font"
)

// Attr represents text attributes
type Attr uint8

const (
	AttrBold Attr = 1 << iota
	AttrUnderline
	AttrBlink
	AttrReverse
)

// Mode represents terminal modes
type Mode uint8

const (
	ModeOrigin        Mode = 1 << iota // DECOM
	ModeCursorVisible                  // DECTCEM
	ModeAutoWrap                       // DECAWM
)

// Tabstop is the hardware tab interval.
const Tabstop = 8

// Pos is a cursor position (0-based).
type Pos struct {
	X, Y int
}

// Margin is a scroll region (0-based, inclusive).
type Margin struct {
	Top, Bottom int
}

// SavedState is the DECSC/DECRC snapshot.
type SavedState struct {
	Cursor Pos
	Mode   Mode
	Attr   Attr
}

// Cell represents a single terminal cell. Code doubles as the glyph table
// index; the rasteriser resolves it at draw time. A Wide cell at column c
// is paired with a NextToWide cell at c+1 carrying the same code point.
type Cell struct {
	Code  rune
	Fg    uint8
	Bg    uint8
	Attr  Attr
	Width font.WidthClass
}

// Grid represents the terminal cell matrix with per-line dirty tracking.
// It has no locking of its own.
type Grid struct {
	cols  int
	lines int
	cells []Cell

	lineDirty []bool
	tabstop   []bool

	cursor Pos
	scroll Margin
	mode   Mode
	wrap   bool
	saved  SavedState

	fg   uint8
	bg   uint8
	attr Attr

	defaultFg uint8
	defaultBg uint8

	palette [Colors]uint32

	table *font.Table
}

// NewGrid creates a grid with the given dimensions. The cell matrix, dirty
// and tabstop arrays are allocated here and never reallocated except by
// Resize.
func NewGrid(cols, lines int, table *font.Table) *Grid {
	g := &Grid{
		cols:      cols,
		lines:     lines,
		cells:     make([]Cell, cols*lines),
		lineDirty: make([]bool, lines),
		tabstop:   make([]bool, cols),
		table:     table,
		defaultFg: DefaultFg,
		defaultBg: DefaultBg,
	}
	g.Reset()
	return g
}

func (g *Grid) index(x, y int) int {
	return y*g.cols + x
}

// Cols returns the grid width in cells.
func (g *Grid) Cols() int { return g.cols }

// Lines returns the grid height in cells.
func (g *Grid) Lines() int { return g.lines }

// Cursor returns the cursor position.
func (g *Grid) Cursor() (x, y int) { return g.cursor.X, g.cursor.Y }

// Mode returns the current mode bits.
func (g *Grid) Mode() Mode { return g.mode }

// SetMode sets mode bits.
func (g *Grid) SetMode(m Mode) {
	g.mode |= m
	if m&ModeOrigin != 0 {
		g.setCursor(0, 0)
	}
	if m&ModeCursorVisible != 0 {
		g.lineDirty[g.cursor.Y] = true
	}
}

// ClearMode clears mode bits.
func (g *Grid) ClearMode(m Mode) {
	g.mode &^= m
	if m&ModeOrigin != 0 {
		g.setCursor(0, 0)
	}
	if m&ModeCursorVisible != 0 {
		g.lineDirty[g.cursor.Y] = true
	}
}

// Attr returns the current write attribute.
func (g *Grid) Attr() Attr { return g.attr }

// SetAttr replaces the current write attribute.
func (g *Grid) SetAttr(a Attr) { g.attr = a }

// Colors returns the current fg/bg palette indices.
func (g *Grid) Colors() (fg, bg uint8) { return g.fg, g.bg }

// SetFg sets the current foreground palette index.
func (g *Grid) SetFg(fg uint8) { g.fg = fg }

// SetBg sets the current background palette index.
func (g *Grid) SetBg(bg uint8) { g.bg = bg }

// DefaultColors returns the configured default color pair.
func (g *Grid) DefaultColors() (fg, bg uint8) { return g.defaultFg, g.defaultBg }

// SetDefaultColors overrides the default color pair. The current pair
// follows when it still holds the old defaults.
func (g *Grid) SetDefaultColors(fg, bg uint8) {
	if g.fg == g.defaultFg {
		g.fg = fg
	}
	if g.bg == g.defaultBg {
		g.bg = bg
	}
	g.defaultFg = fg
	g.defaultBg = bg
}

// Cell returns a copy of the cell at (x, y).
func (g *Grid) Cell(x, y int) Cell {
	if x < 0 || x >= g.cols || y < 0 || y >= g.lines {
		return g.defaultCell()
	}
	return g.cells[g.index(x, y)]
}

// ScrollRegion returns the scroll margin (0-based, inclusive).
func (g *Grid) ScrollRegion() (top, bottom int) {
	return g.scroll.Top, g.scroll.Bottom
}

// WrapPending reports whether the next printable triggers an auto-wrap.
func (g *Grid) WrapPending() bool { return g.wrap }

// LineDirty reports whether a line needs re-rasterising.
func (g *Grid) LineDirty(y int) bool {
	if y < 0 || y >= g.lines {
		return false
	}
	return g.lineDirty[y]
}

// MarkLineDirty flags a single line for redraw.
func (g *Grid) MarkLineDirty(y int) {
	if y >= 0 && y < g.lines {
		g.lineDirty[y] = true
	}
}

// ClearLineDirty resets a line's dirty flag after it has been drawn.
func (g *Grid) ClearLineDirty(y int) {
	if y >= 0 && y < g.lines {
		g.lineDirty[y] = false
	}
}

// MarkAllDirty flags the whole grid for redraw.
func (g *Grid) MarkAllDirty() {
	for i := range g.lineDirty {
		g.lineDirty[i] = true
	}
}

// defaultCell is the erase fill: space in the current background with the
// default foreground and no attributes (xterm-style erase).
func (g *Grid) defaultCell() Cell {
	return Cell{Code: ' ', Fg: g.defaultFg, Bg: g.bg, Attr: 0, Width: font.Half}
}

// dissolvePair rewrites the partner of a wide pair touched at (x, y) so
// that partial overwrites never leave a Wide cell without its right half.
func (g *Grid) dissolvePair(x, y int) {
	if x < 0 || x >= g.cols {
		return
	}
	switch g.cells[g.index(x, y)].Width {
	case font.Wide:
		if x+1 < g.cols {
			g.cells[g.index(x+1, y)] = g.defaultCell()
		}
	case font.NextToWide:
		if x > 0 {
			g.cells[g.index(x-1, y)] = g.defaultCell()
		}
	}
}

// fillCells erases [x1, x2) on row y with the default cell, dissolving any
// wide pair that straddles either boundary.
func (g *Grid) fillCells(y, x1, x2 int) {
	if y < 0 || y >= g.lines {
		return
	}
	if x1 < 0 {
		x1 = 0
	}
	if x2 > g.cols {
		x2 = g.cols
	}
	if x1 >= x2 {
		return
	}
	g.dissolvePair(x1, y)
	g.dissolvePair(x2-1, y)
	for x := x1; x < x2; x++ {
		g.cells[g.index(x, y)] = g.defaultCell()
	}
	g.lineDirty[y] = true
}

// WriteChar writes a code point at the cursor, handling auto-wrap and wide
// pairs, and advances the cursor. Zero-width code points are dropped.
func (g *Grid) WriteChar(r rune) {
	w := font.RuneWidth(r)
	if w == 0 {
		return
	}

	if g.mode&ModeAutoWrap != 0 && ((g.wrap && g.cursor.X == g.cols-1) || g.cursor.X+w > g.cols) {
		g.carriageReturn()
		g.lineFeed()
	}
	g.wrap = false

	x, y := g.cursor.X, g.cursor.Y
	if x+w > g.cols {
		// Auto-wrap off: pin to the rightmost cell(s) and overwrite.
		x = g.cols - w
		g.cursor.X = x
	}

	cell := Cell{Code: r, Fg: g.fg, Bg: g.bg, Attr: g.attr, Width: font.Half}
	g.dissolvePair(x, y)
	if w == 2 {
		g.dissolvePair(x+1, y)
		cell.Width = font.Wide
		g.cells[g.index(x, y)] = cell
		right := cell
		right.Width = font.NextToWide
		g.cells[g.index(x+1, y)] = right
	} else {
		g.cells[g.index(x, y)] = cell
	}
	g.lineDirty[y] = true

	if x+w >= g.cols {
		g.cursor.X = g.cols - 1
		g.wrap = true
	} else {
		g.cursor.X = x + w
	}
}

// CarriageReturn moves the cursor to column 0.
func (g *Grid) CarriageReturn() {
	g.carriageReturn()
}

func (g *Grid) carriageReturn() {
	g.cursor.X = 0
	g.wrap = false
}

// LineFeed moves the cursor down one line, scrolling the region when the
// cursor sits on its bottom margin.
func (g *Grid) LineFeed() {
	g.lineFeed()
}

func (g *Grid) lineFeed() {
	g.wrap = false
	if g.cursor.Y == g.scroll.Bottom {
		g.ScrollUp(1)
		return
	}
	if g.cursor.Y < g.lines-1 {
		g.cursor.Y++
	}
}

// ReverseIndex moves the cursor up one line, scrolling the region down when
// the cursor sits on its top margin.
func (g *Grid) ReverseIndex() {
	g.wrap = false
	if g.cursor.Y == g.scroll.Top {
		g.ScrollDown(1)
		return
	}
	if g.cursor.Y > 0 {
		g.cursor.Y--
	}
}

// Backspace moves the cursor back one column.
func (g *Grid) Backspace() {
	g.wrap = false
	if g.cursor.X > 0 {
		g.cursor.X--
	}
}

// MoveCursor moves the cursor by a delta, clamped to the grid; with origin
// mode set the vertical clamp is the scroll region.
func (g *Grid) MoveCursor(dx, dy int) {
	g.wrap = false
	x := g.cursor.X + dx
	y := g.cursor.Y + dy

	minY, maxY := 0, g.lines-1
	if g.mode&ModeOrigin != 0 {
		minY, maxY = g.scroll.Top, g.scroll.Bottom
	}
	g.cursor.X = clamp(x, 0, g.cols-1)
	g.cursor.Y = clamp(y, minY, maxY)
}

// SetCursor places the cursor at an absolute 0-based position. Origin mode
// remaps y=0 to the scroll top and clamps to the region bottom.
func (g *Grid) SetCursor(x, y int) {
	g.setCursor(x, y)
}

func (g *Grid) setCursor(x, y int) {
	g.wrap = false
	minY, maxY := 0, g.lines-1
	if g.mode&ModeOrigin != 0 {
		y += g.scroll.Top
		minY, maxY = g.scroll.Top, g.scroll.Bottom
	}
	g.cursor.X = clamp(x, 0, g.cols-1)
	g.cursor.Y = clamp(y, minY, maxY)
}

// ScrollUp shifts the scroll region up by n rows, filling vacated rows
// with default cells.
func (g *Grid) ScrollUp(n int) {
	g.scrollRows(g.scroll.Top, g.scroll.Bottom, n)
}

// ScrollDown shifts the scroll region down by n rows.
func (g *Grid) ScrollDown(n int) {
	g.scrollRows(g.scroll.Top, g.scroll.Bottom, -n)
}

// scrollRows shifts rows inside [top, bottom] by n (positive = up).
func (g *Grid) scrollRows(top, bottom, n int) {
	if n == 0 || top > bottom {
		return
	}
	size := bottom - top + 1
	if n > size {
		n = size
	} else if n < -size {
		n = -size
	}

	if n > 0 {
		for y := top; y <= bottom-n; y++ {
			copy(g.cells[g.index(0, y):g.index(0, y)+g.cols],
				g.cells[g.index(0, y+n):g.index(0, y+n)+g.cols])
		}
		for y := bottom - n + 1; y <= bottom; y++ {
			g.fillCells(y, 0, g.cols)
		}
	} else {
		n = -n
		for y := bottom; y >= top+n; y-- {
			copy(g.cells[g.index(0, y):g.index(0, y)+g.cols],
				g.cells[g.index(0, y-n):g.index(0, y-n)+g.cols])
		}
		for y := top; y < top+n; y++ {
			g.fillCells(y, 0, g.cols)
		}
	}
	for y := top; y <= bottom; y++ {
		g.lineDirty[y] = true
	}
}

// EraseDir selects the extent of an erase operation.
type EraseDir int

const (
	EraseToEnd EraseDir = iota
	EraseToStart
	EraseAll
)

// EraseLine erases part of the cursor line.
func (g *Grid) EraseLine(dir EraseDir) {
	switch dir {
	case EraseToEnd:
		g.fillCells(g.cursor.Y, g.cursor.X, g.cols)
	case EraseToStart:
		g.fillCells(g.cursor.Y, 0, g.cursor.X+1)
	case EraseAll:
		g.fillCells(g.cursor.Y, 0, g.cols)
	}
}

// EraseDisplay erases part of the screen relative to the cursor.
func (g *Grid) EraseDisplay(dir EraseDir) {
	switch dir {
	case EraseToEnd:
		g.fillCells(g.cursor.Y, g.cursor.X, g.cols)
		for y := g.cursor.Y + 1; y < g.lines; y++ {
			g.fillCells(y, 0, g.cols)
		}
	case EraseToStart:
		for y := 0; y < g.cursor.Y; y++ {
			g.fillCells(y, 0, g.cols)
		}
		g.fillCells(g.cursor.Y, 0, g.cursor.X+1)
	case EraseAll:
		for y := 0; y < g.lines; y++ {
			g.fillCells(y, 0, g.cols)
		}
	}
}

// EraseChars erases n cells at the cursor without moving it.
func (g *Grid) EraseChars(n int) {
	if n < 1 {
		n = 1
	}
	g.fillCells(g.cursor.Y, g.cursor.X, g.cursor.X+n)
}

// InsertChars inserts n blank cells at the cursor, shifting the tail of
// the line right.
func (g *Grid) InsertChars(n int) {
	if n < 1 {
		n = 1
	}
	if n > g.cols-g.cursor.X {
		n = g.cols - g.cursor.X
	}
	y := g.cursor.Y
	g.dissolvePair(g.cursor.X, y)
	for x := g.cols - 1; x >= g.cursor.X+n; x-- {
		g.cells[g.index(x, y)] = g.cells[g.index(x-n, y)]
	}
	g.fillCells(y, g.cursor.X, g.cursor.X+n)
	// A wide cell shifted onto the last column lost its right half.
	if g.cells[g.index(g.cols-1, y)].Width == font.Wide {
		g.cells[g.index(g.cols-1, y)] = g.defaultCell()
	}
	g.lineDirty[y] = true
}

// DeleteChars deletes n cells at the cursor, shifting the tail of the line
// left.
func (g *Grid) DeleteChars(n int) {
	if n < 1 {
		n = 1
	}
	if n > g.cols-g.cursor.X {
		n = g.cols - g.cursor.X
	}
	y := g.cursor.Y
	g.dissolvePair(g.cursor.X, y)
	for x := g.cursor.X; x < g.cols-n; x++ {
		g.cells[g.index(x, y)] = g.cells[g.index(x+n, y)]
	}
	g.fillCells(y, g.cols-n, g.cols)
	// The shift may land the right half of a split pair at the cursor.
	if g.cells[g.index(g.cursor.X, y)].Width == font.NextToWide {
		g.cells[g.index(g.cursor.X, y)] = g.defaultCell()
	}
	g.lineDirty[y] = true
}

// InsertLines inserts n blank lines at the cursor. Outside the scroll
// region this is a no-op.
func (g *Grid) InsertLines(n int) {
	if g.cursor.Y < g.scroll.Top || g.cursor.Y > g.scroll.Bottom {
		return
	}
	if n < 1 {
		n = 1
	}
	g.scrollRows(g.cursor.Y, g.scroll.Bottom, -n)
}

// DeleteLines deletes n lines at the cursor. Outside the scroll region
// this is a no-op.
func (g *Grid) DeleteLines(n int) {
	if g.cursor.Y < g.scroll.Top || g.cursor.Y > g.scroll.Bottom {
		return
	}
	if n < 1 {
		n = 1
	}
	g.scrollRows(g.cursor.Y, g.scroll.Bottom, n)
}

// SetScrollRegion sets the scroll margin (0-based, inclusive) and homes
// the cursor. Invalid margins reset to the full screen.
func (g *Grid) SetScrollRegion(top, bottom int) {
	top = clamp(top, 0, g.lines-1)
	bottom = clamp(bottom, 0, g.lines-1)
	if top >= bottom {
		top, bottom = 0, g.lines-1
	}
	g.scroll.Top = top
	g.scroll.Bottom = bottom
	g.setCursor(0, 0)
}

// SaveState snapshots cursor, mode, and attribute for DECRC.
func (g *Grid) SaveState() {
	g.saved = SavedState{Cursor: g.cursor, Mode: g.mode, Attr: g.attr}
}

// RestoreState restores the DECSC snapshot, clamping the cursor to the
// current grid.
func (g *Grid) RestoreState() {
	g.mode = g.saved.Mode
	g.attr = g.saved.Attr
	g.cursor.X = clamp(g.saved.Cursor.X, 0, g.cols-1)
	g.cursor.Y = clamp(g.saved.Cursor.Y, 0, g.lines-1)
	g.wrap = false
	g.lineDirty[g.cursor.Y] = true
}

// SetTabstop sets a tabstop at the cursor column.
func (g *Grid) SetTabstop() {
	g.tabstop[g.cursor.X] = true
}

// ClearTabstop clears the tabstop at the cursor column, or all of them.
func (g *Grid) ClearTabstop(all bool) {
	if all {
		for i := range g.tabstop {
			g.tabstop[i] = false
		}
		return
	}
	g.tabstop[g.cursor.X] = false
}

// TabForward moves the cursor to the next tabstop, or the last column.
func (g *Grid) TabForward() {
	g.wrap = false
	for x := g.cursor.X + 1; x < g.cols; x++ {
		if g.tabstop[x] {
			g.cursor.X = x
			return
		}
	}
	g.cursor.X = g.cols - 1
}

// TabBack moves the cursor to the previous tabstop, or column 0.
func (g *Grid) TabBack() {
	g.wrap = false
	for x := g.cursor.X - 1; x >= 0; x-- {
		if g.tabstop[x] {
			g.cursor.X = x
			return
		}
	}
	g.cursor.X = 0
}

// Reset restores power-on state: cleared cells, home cursor, full scroll
// region, default modes and colors, hardware tabstops, default palette.
func (g *Grid) Reset() {
	g.mode = ModeCursorVisible | ModeAutoWrap
	g.attr = 0
	g.fg = g.defaultFg
	g.bg = g.defaultBg
	g.cursor = Pos{}
	g.saved = SavedState{Mode: ModeCursorVisible | ModeAutoWrap}
	g.wrap = false
	g.scroll = Margin{Top: 0, Bottom: g.lines - 1}
	for i := range g.tabstop {
		g.tabstop[i] = i%Tabstop == 0
	}
	g.palette = DefaultPalette()
	for y := 0; y < g.lines; y++ {
		g.fillCells(y, 0, g.cols)
	}
}

// AlignmentFill implements DECALN: every cell becomes 'E' in default
// colors, margins reset, cursor homes.
func (g *Grid) AlignmentFill() {
	g.scroll = Margin{Top: 0, Bottom: g.lines - 1}
	g.cursor = Pos{}
	g.wrap = false
	e := Cell{Code: 'E', Fg: g.defaultFg, Bg: g.defaultBg, Width: font.Half}
	for i := range g.cells {
		g.cells[i] = e
	}
	g.MarkAllDirty()
}

// Resize reallocates the grid for a new geometry, preserving overlapping
// content and clamping cursor and margins.
func (g *Grid) Resize(cols, lines int) {
	if cols < 1 || lines < 1 || (cols == g.cols && lines == g.lines) {
		return
	}
	cells := make([]Cell, cols*lines)
	blank := g.defaultCell()
	for i := range cells {
		cells[i] = blank
	}
	for y := 0; y < minInt(lines, g.lines); y++ {
		copy(cells[y*cols:y*cols+minInt(cols, g.cols)],
			g.cells[y*g.cols:y*g.cols+minInt(cols, g.cols)])
	}
	g.cells = cells
	g.cols = cols
	g.lines = lines
	g.lineDirty = make([]bool, lines)
	g.tabstop = make([]bool, cols)
	for i := range g.tabstop {
		g.tabstop[i] = i%Tabstop == 0
	}
	g.scroll = Margin{Top: 0, Bottom: lines - 1}
	g.cursor.X = clamp(g.cursor.X, 0, cols-1)
	g.cursor.Y = clamp(g.cursor.Y, 0, lines-1)
	g.wrap = false
	g.MarkAllDirty()
}

// GlyphTable returns the glyph table backing this grid.
func (g *Grid) GlyphTable() *font.Table { return g.table }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
