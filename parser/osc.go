package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// oscGWRept is the vendor extension reporting terminal geometry.
const oscGWRept = 8900

// executeOSC parses the accumulated "Ps;Pt" string and dispatches it.
// Unknown commands and malformed payloads are dropped.
func (t *Terminal) executeOSC() {
	s := string(t.buf)
	t.clearBuf()

	cmd := s
	rest := ""
	if i := strings.IndexByte(s, ';'); i >= 0 {
		cmd, rest = s[:i], s[i+1:]
	}
	ps, err := strconv.Atoi(cmd)
	if err != nil {
		return
	}

	switch ps {
	case 0, 2: // set title
		t.title = rest
	case 4: // redefine palette entry: "n;rgb:RR/GG/BB"
		t.setPaletteEntry(rest)
	case oscGWRept:
		tab := t.Grid.GlyphTable()
		t.putReply(fmt.Sprintf("\x1b]%d;0;0;%d;%d;%d;%d\x1b\\",
			oscGWRept, tab.CellWidth(), tab.CellHeight(), t.Grid.Cols(), t.Grid.Lines()))
	}
}

// setPaletteEntry applies OSC 4. The index wraps modulo the palette size;
// unparseable color specs are ignored.
func (t *Terminal) setPaletteEntry(arg string) {
	i := strings.IndexByte(arg, ';')
	if i < 0 {
		return
	}
	n, err := strconv.Atoi(arg[:i])
	if err != nil {
		return
	}
	rgb, ok := parseColorSpec(arg[i+1:])
	if !ok {
		return
	}
	t.Grid.SetPalette(n, rgb)
}

// parseColorSpec accepts the xterm "rgb:RR/GG/BB" form and "#RRGGBB".
func parseColorSpec(spec string) (uint32, bool) {
	if c, ok := strings.CutPrefix(spec, "rgb:"); ok {
		parts := strings.Split(c, "/")
		if len(parts) != 3 {
			return 0, false
		}
		var rgb uint32
		for _, p := range parts {
			if len(p) != 2 {
				return 0, false
			}
			v, err := strconv.ParseUint(p, 16, 8)
			if err != nil {
				return 0, false
			}
			rgb = rgb<<8 | uint32(v)
		}
		return rgb, true
	}
	if c, ok := strings.CutPrefix(spec, "#"); ok && len(c) == 6 {
		v, err := strconv.ParseUint(c, 16, 32)
		if err != nil {
			return 0, false
		}
		return uint32(v), true
	}
	return 0, false
}
