package grid

// Colors is the palette size.
const Colors = 256

// Default palette indices (conf-adjustable at the config layer).
const (
	DefaultFg = 7
	DefaultBg = 0
)

// BrightInc is added to a base color index when BOLD brightens the
// foreground or BLINK brightens the background.
const BrightInc = 8

// ansiColors are the 16 base entries of the xterm 256-color palette,
// packed 0x00RRGGBB.
var ansiColors = [16]uint32{
	0x000000, 0xAA0000, 0x00AA00, 0xAA5500,
	0x0000AA, 0xAA00AA, 0x00AAAA, 0xAAAAAA,
	0x555555, 0xFF5555, 0x55FF55, 0xFFFF55,
	0x5555FF, 0xFF55FF, 0x55FFFF, 0xFFFFFF,
}

// DefaultPalette returns the xterm 256-color palette: 16 ANSI colors, a
// 6x6x6 color cube, and a 24-step grayscale ramp.
func DefaultPalette() [Colors]uint32 {
	var p [Colors]uint32
	copy(p[:16], ansiColors[:])

	levels := [6]uint32{0x00, 0x5F, 0x87, 0xAF, 0xD7, 0xFF}
	for i := 16; i < 232; i++ {
		n := i - 16
		r := levels[n/36]
		g := levels[n/6%6]
		b := levels[n%6]
		p[i] = r<<16 | g<<8 | b
	}
	for i := 232; i < 256; i++ {
		v := uint32(8 + 10*(i-232))
		p[i] = v<<16 | v<<8 | v
	}
	return p
}

// Palette returns the color for a palette index. Out-of-range indices wrap
// modulo the palette size.
func (g *Grid) Palette(i int) uint32 {
	return g.palette[i&(Colors-1)]
}

// SetPalette redefines one palette entry (OSC 4) and flags the whole
// screen for redraw so cells holding the index repaint.
func (g *Grid) SetPalette(i int, rgb uint32) {
	g.palette[i&(Colors-1)] = rgb & 0x00FFFFFF
	g.MarkAllDirty()
}
