package render

import (
	"github.com/kmsterm/kmsterm/font"
	"github.com/kmsterm/kmsterm/grid"
)

// Sink is the display collaborator: a linear pixel buffer the rasteriser
// writes into, with a commit hook publishing dirty rectangles. Pixels are
// little-endian 0x00RRGGBB packed as BytesPerPixel bytes.
type Sink interface {
	Width() int
	Height() int
	Stride() int
	BytesPerPixel() int
	Buffer() []byte
	Commit(x1, y1, x2, y2 int)
}

// Cursor palette indices (conf-adjustable).
const (
	ActiveCursorColor  = 2
	PassiveCursorColor = 1
)

// Renderer translates dirty grid lines into pixels in the sink buffer.
type Renderer struct {
	sink  Sink
	grid  *grid.Grid
	table *font.Table
	cellW int
	cellH int

	visible       bool // terminal owns the foreground console
	activeCursor  uint8
	passiveCursor uint8
}

// New creates a renderer for a grid over a pixel sink.
func New(sink Sink, g *grid.Grid) *Renderer {
	t := g.GlyphTable()
	return &Renderer{
		sink:          sink,
		grid:          g,
		table:         t,
		cellW:         t.CellWidth(),
		cellH:         t.CellHeight(),
		visible:       true,
		activeCursor:  ActiveCursorColor,
		passiveCursor: PassiveCursorColor,
	}
}

// SetVisible records whether the virtual console is in the foreground;
// a backgrounded terminal draws the passive cursor color.
func (r *Renderer) SetVisible(v bool) {
	r.visible = v
}

// SetCursorColors overrides the cursor palette pair.
func (r *Renderer) SetCursorColors(active, passive uint8) {
	r.activeCursor = active
	r.passiveCursor = passive
}

// Refresh flushes all dirty lines to the sink. The cursor line is always
// re-rendered so the overlay tracks cursor movement.
func (r *Renderer) Refresh() {
	_, cy := r.grid.Cursor()
	r.grid.MarkLineDirty(cy)
	for y := 0; y < r.grid.Lines(); y++ {
		if r.grid.LineDirty(y) {
			r.DrawLine(y)
		}
	}
}

// DrawLine rasterises one grid row into the sink buffer and commits its
// pixel span. The dirty flag is cleared unless the visible cursor sits on
// the row.
func (r *Renderer) DrawLine(y int) {
	buf := r.sink.Buffer()
	stride := r.sink.Stride()
	bpp := r.sink.BytesPerPixel()
	cols := r.grid.Cols()
	cx, cy := r.grid.Cursor()
	cursorOn := r.grid.Mode()&grid.ModeCursorVisible != 0 && cy == y

	for col := 0; col < cols; col++ {
		cell := r.grid.Cell(col, y)
		fg, bg := cell.Fg, cell.Bg

		if cell.Attr&grid.AttrReverse != 0 {
			fg, bg = bg, fg
		}
		if cursorOn && onCursor(cell, col, cx) {
			_, dbg := r.grid.DefaultColors()
			fg = dbg
			if r.visible {
				bg = r.activeCursor
			} else {
				bg = r.passiveCursor
			}
		}
		if cell.Attr&grid.AttrBold != 0 && fg < grid.BrightInc {
			fg += grid.BrightInc
		}
		if cell.Attr&grid.AttrBlink != 0 && bg < grid.BrightInc {
			bg += grid.BrightInc
		}

		glyph := r.table.Lookup(cell.Code)
		fgc := r.grid.Palette(int(fg))
		bgc := r.grid.Palette(int(bg))

		for h := 0; h < r.cellH; h++ {
			py := y*r.cellH + h
			if py >= r.sink.Height() {
				break
			}
			underline := cell.Attr&grid.AttrUnderline != 0 && h == r.cellH-1
			base := py * stride
			for w := 0; w < r.cellW; w++ {
				px := col*r.cellW + w
				if px >= r.sink.Width() {
					break
				}
				bit := w
				if cell.Width == font.NextToWide {
					bit = w + r.cellW
				}
				c := bgc
				if underline || glyph.Set(h, bit) {
					c = fgc
				}
				putPixel(buf[base+px*bpp:], c, bpp)
			}
		}
	}

	r.sink.Commit(0, y*r.cellH, cols*r.cellW, (y+1)*r.cellH)
	if !cursorOn {
		r.grid.ClearLineDirty(y)
	}
}

// onCursor reports whether the cell at col renders as part of the cursor,
// covering both halves of a wide pair.
func onCursor(cell grid.Cell, col, cx int) bool {
	if col == cx {
		return true
	}
	if cell.Width == font.Wide && col+1 == cx {
		return true
	}
	if cell.Width == font.NextToWide && col-1 == cx {
		return true
	}
	return false
}

// putPixel writes one little-endian 0x00RRGGBB pixel.
func putPixel(p []byte, c uint32, bpp int) {
	p[0] = byte(c)
	p[1] = byte(c >> 8)
	p[2] = byte(c >> 16)
	if bpp == 4 {
		p[3] = 0
	}
}
