package parser

import (
	"fmt"

	"github.com/kmsterm/kmsterm/grid"
)

// deviceAttributes is the DA1/DECID reply: VT102 class.
const deviceAttributes = "\x1b[?6c"

// maxParams bounds a CSI parameter list.
const maxParams = 16

// args is a bounded CSI parameter list with a per-parameter explicit bit,
// so defaulted and explicit zeros can be told apart.
type args struct {
	v   [maxParams]int
	set [maxParams]bool
	n   int
}

// get returns parameter i, or def when it was not given.
func (a *args) get(i, def int) int {
	if i < a.n && a.set[i] {
		return a.v[i]
	}
	return def
}

// num returns parameter i treating both "missing" and "zero" as def, the
// rule for count-valued parameters.
func (a *args) num(i, def int) int {
	if i < a.n && a.set[i] && a.v[i] > 0 {
		return a.v[i]
	}
	return def
}

// parseArgs splits the buffered sequence into a private-mode introducer
// and up to maxParams semicolon-separated decimals. Malformed parameters
// read as 0; colon subparameters keep their leading value.
func parseArgs(buf []byte) (private byte, a args) {
	if len(buf) > 0 && (buf[0] == '?' || buf[0] == '>' || buf[0] == '=') {
		private = buf[0]
		buf = buf[1:]
	}
	if len(buf) == 0 {
		return private, a
	}
	start := 0
	flush := func(part []byte) {
		if a.n >= maxParams {
			return
		}
		v, explicit := 0, false
		for _, c := range part {
			if c == ':' {
				break
			}
			if c < '0' || c > '9' {
				v, explicit = 0, false
				break
			}
			v = v*10 + int(c-'0')
			explicit = true
		}
		a.v[a.n] = v
		a.set[a.n] = explicit
		a.n++
	}
	for i, c := range buf {
		if c == ';' {
			flush(buf[start:i])
			start = i + 1
		}
	}
	flush(buf[start:])
	return private, a
}

// executeCSI dispatches a complete control sequence on its final byte.
// Unknown finals are silently ignored.
func (t *Terminal) executeCSI(final byte) {
	private, a := parseArgs(t.buf)
	g := t.Grid

	if private != 0 {
		switch final {
		case 'h':
			t.setPrivateModes(&a, true)
		case 'l':
			t.setPrivateModes(&a, false)
		}
		return
	}

	switch final {
	case '@': // ICH
		g.InsertChars(a.num(0, 1))
	case 'A': // CUU
		g.MoveCursor(0, -a.num(0, 1))
	case 'B', 'e': // CUD, VPR
		g.MoveCursor(0, a.num(0, 1))
	case 'C', 'a': // CUF, HPR
		g.MoveCursor(a.num(0, 1), 0)
	case 'D': // CUB
		g.MoveCursor(-a.num(0, 1), 0)
	case 'E': // CNL
		g.CarriageReturn()
		g.MoveCursor(0, a.num(0, 1))
	case 'F': // CPL
		g.CarriageReturn()
		g.MoveCursor(0, -a.num(0, 1))
	case 'G', '`': // CHA, HPA
		x, _ := g.Cursor()
		g.MoveCursor(a.num(0, 1)-1-x, 0)
	case 'H', 'f': // CUP, HVP
		g.SetCursor(a.num(1, 1)-1, a.num(0, 1)-1)
	case 'J': // ED
		switch a.get(0, 0) {
		case 0:
			g.EraseDisplay(grid.EraseToEnd)
		case 1:
			g.EraseDisplay(grid.EraseToStart)
		case 2, 3:
			g.EraseDisplay(grid.EraseAll)
		}
	case 'K': // EL
		switch a.get(0, 0) {
		case 0:
			g.EraseLine(grid.EraseToEnd)
		case 1:
			g.EraseLine(grid.EraseToStart)
		case 2:
			g.EraseLine(grid.EraseAll)
		}
	case 'L': // IL
		g.InsertLines(a.num(0, 1))
	case 'M': // DL
		g.DeleteLines(a.num(0, 1))
	case 'P': // DCH
		g.DeleteChars(a.num(0, 1))
	case 'S': // SU
		g.ScrollUp(a.num(0, 1))
	case 'T': // SD
		g.ScrollDown(a.num(0, 1))
	case 'X': // ECH
		g.EraseChars(a.num(0, 1))
	case 'Z': // CBT
		for i := a.num(0, 1); i > 0; i-- {
			g.TabBack()
		}
	case 'c': // DA1
		if a.get(0, 0) == 0 {
			t.putReply(deviceAttributes)
		}
	case 'd': // VPA
		x, _ := g.Cursor()
		g.SetCursor(x, a.num(0, 1)-1)
	case 'g': // TBC
		switch a.get(0, 0) {
		case 0:
			g.ClearTabstop(false)
		case 3:
			g.ClearTabstop(true)
		}
	case 'h', 'l': // SM/RM without a private introducer: nothing we track
	case 'm': // SGR
		t.executeSGR(&a)
	case 'n': // DSR
		t.deviceStatus(&a)
	case 'r': // DECSTBM
		g.SetScrollRegion(a.num(0, 1)-1, a.num(1, g.Lines())-1)
	case 's': // SCOSC
		g.SaveState()
	case 'u': // SCORC
		g.RestoreState()
	}
}

// setPrivateModes handles DECSET/DECRST.
func (t *Terminal) setPrivateModes(a *args, set bool) {
	for i := 0; i < a.n; i++ {
		var m grid.Mode
		switch a.get(i, 0) {
		case 6: // DECOM
			m = grid.ModeOrigin
		case 7: // DECAWM
			m = grid.ModeAutoWrap
		case 25: // DECTCEM
			m = grid.ModeCursorVisible
		default:
			continue
		}
		if set {
			t.Grid.SetMode(m)
		} else {
			t.Grid.ClearMode(m)
		}
	}
}

// executeSGR applies attribute and color selections.
func (t *Terminal) executeSGR(a *args) {
	g := t.Grid
	if a.n == 0 {
		t.sgrReset()
		return
	}
	for i := 0; i < a.n; i++ {
		p := a.get(i, 0)
		switch {
		case p == 0:
			t.sgrReset()
		case p == 1:
			g.SetAttr(g.Attr() | grid.AttrBold)
		case p == 4:
			g.SetAttr(g.Attr() | grid.AttrUnderline)
		case p == 5:
			g.SetAttr(g.Attr() | grid.AttrBlink)
		case p == 7:
			g.SetAttr(g.Attr() | grid.AttrReverse)
		case p == 22:
			g.SetAttr(g.Attr() &^ grid.AttrBold)
		case p == 24:
			g.SetAttr(g.Attr() &^ grid.AttrUnderline)
		case p == 25:
			g.SetAttr(g.Attr() &^ grid.AttrBlink)
		case p == 27:
			g.SetAttr(g.Attr() &^ grid.AttrReverse)
		case p >= 30 && p <= 37:
			g.SetFg(uint8(p - 30))
		case p == 38:
			idx, skip, ok := extendedColor(a, i)
			if ok {
				g.SetFg(idx)
			}
			i += skip
		case p == 39:
			fg, _ := g.DefaultColors()
			g.SetFg(fg)
		case p >= 40 && p <= 47:
			g.SetBg(uint8(p - 40))
		case p == 48:
			idx, skip, ok := extendedColor(a, i)
			if ok {
				g.SetBg(idx)
			}
			i += skip
		case p == 49:
			_, bg := g.DefaultColors()
			g.SetBg(bg)
		case p >= 90 && p <= 97:
			g.SetFg(uint8(p - 90 + grid.BrightInc))
		case p >= 100 && p <= 107:
			g.SetBg(uint8(p - 100 + grid.BrightInc))
		}
	}
}

// extendedColor parses the tail of SGR 38/48: ";5;n" selects a palette
// index, ";2;r;g;b" (truecolor) is consumed but not applied.
func extendedColor(a *args, i int) (idx uint8, skip int, ok bool) {
	switch a.get(i+1, -1) {
	case 5:
		if i+2 < a.n {
			return uint8(a.get(i+2, 0) & 0xFF), 2, true
		}
		return 0, a.n - i - 1, false
	case 2:
		return 0, minIntP(4, a.n-i-1), false
	}
	return 0, 0, false
}

func (t *Terminal) sgrReset() {
	fg, bg := t.Grid.DefaultColors()
	t.Grid.SetFg(fg)
	t.Grid.SetBg(bg)
	t.Grid.SetAttr(0)
}

// deviceStatus answers DSR queries on the reply stream.
func (t *Terminal) deviceStatus(a *args) {
	switch a.get(0, 0) {
	case 5: // operating status: OK
		t.putReply("\x1b[0n")
	case 6: // cursor position, origin-relative under DECOM
		x, y := t.Grid.Cursor()
		if t.Grid.Mode()&grid.ModeOrigin != 0 {
			top, _ := t.Grid.ScrollRegion()
			y -= top
		}
		t.putReply(fmt.Sprintf("\x1b[%d;%dR", y+1, x+1))
	}
}

func minIntP(a, b int) int {
	if a < b {
		return a
	}
	return b
}
