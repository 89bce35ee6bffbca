package parser

import (
	"sync"

	"github.com/kmsterm/kmsterm/grid"
)

// BufSize bounds the escape-sequence accumulator; sequences that outgrow
// it are discarded and the parser returns to ground.
const BufSize = 1024

// State represents the current state of the escape parser
type State int

const (
	StateGround State = iota
	StateEscape
	StateCSI
	StateOSC
	StateDCS
	StateDSCS
	StateSixel
	StateCharset
	StateHash
)

// Encoding selects the character decoder.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingEUCJP
)

// Terminal interprets the byte stream from the child process, applying
// control functions to the grid and queueing reply bytes for the child.
// All Terminal entry points are serialised by a single mutex. The mutex
// does not cover direct use of Grid, which the renderer reads unlocked.
type Terminal struct {
	Grid *grid.Grid

	mu      sync.Mutex
	state   State
	buf     []byte
	decoder Decoder
	c1      bool // 8-bit C1 controls are recognisable in this encoding

	// Charset designations G0..G3, GL selection, pending single shift.
	charsets  [4]byte
	gl        int
	ss        int
	designate int

	oscEsc     bool // saw ESC inside OSC, expecting ST backslash
	discardEsc bool // saw ESC inside DCS/SIXEL discard

	title string
	reply []byte
}

// New creates a terminal over an existing grid, decoding UTF-8.
func New(g *grid.Grid) *Terminal {
	t := &Terminal{
		Grid:     g,
		state:    StateGround,
		buf:      make([]byte, 0, BufSize),
		decoder:  NewUTF8Decoder(),
		c1:       true,
		charsets: [4]byte{'B', 'B', 'B', 'B'},
		ss:       -1,
	}
	return t
}

// SetEncoding switches the character decoder. 8-bit C1 recognition is
// disabled for EUC-JP, whose lead bytes overlap the C1 range.
func (t *Terminal) SetEncoding(e Encoding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e {
	case EncodingEUCJP:
		t.decoder = NewEUCJPDecoder()
		t.c1 = false
	default:
		t.decoder = NewUTF8Decoder()
		t.c1 = true
	}
}

// Parse feeds input-from-child bytes through the state machine in arrival
// order. Partial escape and multibyte sequences survive between calls.
func (t *Terminal) Parse(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range data {
		t.processByte(b)
	}
}

// DrainReply returns queued output-to-child bytes (DSR, DA, GWREPT) and
// clears the queue.
func (t *Terminal) DrainReply() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.reply) == 0 {
		return nil
	}
	out := t.reply
	t.reply = nil
	return out
}

// Resize adjusts the grid geometry. Unsupported sizes are ignored by the
// grid; the driver decides whether to call this at all.
func (t *Terminal) Resize(cols, lines int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Grid.Resize(cols, lines)
}

// Title returns the last title set via OSC 0/2.
func (t *Terminal) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

func (t *Terminal) putReply(s string) {
	t.reply = append(t.reply, s...)
}

func (t *Terminal) processByte(b byte) {
	switch t.state {
	case StateGround:
		t.processGround(b)
	case StateEscape:
		t.processEscape(b)
	case StateCSI:
		t.processCSI(b)
	case StateOSC:
		t.processOSC(b)
	case StateDCS:
		t.processDCS(b)
	case StateDSCS, StateSixel:
		t.processDiscard(b)
	case StateCharset:
		t.charsets[t.designate] = b
		t.state = StateGround
	case StateHash:
		if b == '8' { // DECALN
			t.Grid.AlignmentFill()
		}
		t.state = StateGround
	}
}

// processGround handles bytes in ground state
func (t *Terminal) processGround(b byte) {
	if !t.decoder.Pending() {
		if b < 0x20 || b == 0x7F {
			t.control(b)
			return
		}
		if t.c1 && b >= 0x80 && b <= 0x9F {
			if t.c1Control(b) {
				return
			}
		}
	}

	r, ok, again := t.decoder.Feed(b)
	if ok {
		t.putChar(r)
	}
	if again {
		t.processGround(b)
	}
}

// control dispatches 7-bit control functions.
func (t *Terminal) control(b byte) {
	switch b {
	case 0x07: // BEL
	case 0x08: // BS
		t.Grid.Backspace()
	case 0x09: // HT
		t.Grid.TabForward()
	case 0x0A, 0x0B, 0x0C: // LF, VT, FF
		t.Grid.LineFeed()
	case 0x0D: // CR
		t.Grid.CarriageReturn()
	case 0x0E: // SO: select G1 into GL
		t.gl = 1
	case 0x0F: // SI: select G0 into GL
		t.gl = 0
	case 0x18, 0x1A: // CAN, SUB
		t.decoder.Reset()
	case 0x1B: // ESC
		t.state = StateEscape
	}
}

// c1Control maps 8-bit C1 bytes to their ESC-prefixed equivalents.
// It reports whether the byte was consumed.
func (t *Terminal) c1Control(b byte) bool {
	switch b {
	case 0x84: // IND
		t.Grid.LineFeed()
	case 0x85: // NEL
		t.Grid.CarriageReturn()
		t.Grid.LineFeed()
	case 0x88: // HTS
		t.Grid.SetTabstop()
	case 0x8D: // RI
		t.Grid.ReverseIndex()
	case 0x8E: // SS2
		t.ss = 2
	case 0x8F: // SS3
		t.ss = 3
	case 0x90: // DCS
		t.clearBuf()
		t.state = StateDCS
	case 0x9B: // CSI
		t.clearBuf()
		t.state = StateCSI
	case 0x9C: // ST outside any string: ignore
	case 0x9D: // OSC
		t.clearBuf()
		t.oscEsc = false
		t.state = StateOSC
	default:
		return false
	}
	return true
}

// putChar routes a decoded code point through the active charset and into
// the grid.
func (t *Terminal) putChar(r rune) {
	set := t.charsets[t.gl]
	if t.ss >= 0 {
		set = t.charsets[t.ss]
		t.ss = -1
	}
	t.Grid.WriteChar(translate(set, r))
}

// processEscape handles bytes in escape state
func (t *Terminal) processEscape(b byte) {
	switch b {
	case '[':
		t.clearBuf()
		t.state = StateCSI
	case ']':
		t.clearBuf()
		t.oscEsc = false
		t.state = StateOSC
	case 'P':
		t.clearBuf()
		t.state = StateDCS
	case '(', ')', '*', '+':
		t.designate = int(b - '(')
		t.state = StateCharset
	case '#':
		t.state = StateHash
	case '7': // DECSC
		t.Grid.SaveState()
		t.state = StateGround
	case '8': // DECRC
		t.Grid.RestoreState()
		t.state = StateGround
	case 'D': // IND
		t.Grid.LineFeed()
		t.state = StateGround
	case 'E': // NEL
		t.Grid.CarriageReturn()
		t.Grid.LineFeed()
		t.state = StateGround
	case 'H': // HTS
		t.Grid.SetTabstop()
		t.state = StateGround
	case 'M': // RI
		t.Grid.ReverseIndex()
		t.state = StateGround
	case 'Z': // DECID
		t.putReply(deviceAttributes)
		t.state = StateGround
	case 'c': // RIS
		t.fullReset()
		t.state = StateGround
	default:
		// Unknown finals (keypad modes and friends) are silently ignored.
		t.state = StateGround
	}
}

// processCSI handles bytes in CSI state
func (t *Terminal) processCSI(b byte) {
	switch {
	case b >= 0x20 && b <= 0x3F:
		if !t.push(b) {
			t.state = StateGround
		}
	case b >= 0x40 && b <= 0x7E:
		t.executeCSI(b)
		t.state = StateGround
	case b == 0x1B:
		t.state = StateEscape
	case b == 0x18 || b == 0x1A: // CAN, SUB
		t.state = StateGround
	default:
		t.state = StateGround
	}
}

// processOSC accumulates until BEL, ST, or ESC backslash.
func (t *Terminal) processOSC(b byte) {
	if t.oscEsc {
		t.oscEsc = false
		if b == '\\' {
			t.executeOSC()
			t.state = StateGround
			return
		}
		// Aborted string: the ESC starts a fresh sequence.
		t.state = StateEscape
		t.processEscape(b)
		return
	}
	switch b {
	case 0x07, 0x9C:
		t.executeOSC()
		t.state = StateGround
	case 0x1B:
		t.oscEsc = true
	default:
		if !t.push(b) {
			t.state = StateGround
		}
	}
}

// processDCS routes a device control string: sixel data and DRCS glyph
// definitions are accepted and discarded, anything else is skipped to ST.
func (t *Terminal) processDCS(b byte) {
	switch {
	case b == 'q':
		t.discardEsc = false
		t.state = StateSixel
	case b == '{':
		t.discardEsc = false
		t.state = StateDSCS
	case b >= 0x40 && b <= 0x7E:
		t.discardEsc = false
		t.state = StateSixel
	case b == 0x1B:
		t.state = StateEscape
	case b == 0x18 || b == 0x1A:
		t.state = StateGround
	default:
		if !t.push(b) {
			t.state = StateGround
		}
	}
}

// processDiscard swallows string data until ST (or CAN/SUB).
func (t *Terminal) processDiscard(b byte) {
	if t.discardEsc {
		t.discardEsc = false
		if b == '\\' {
			t.state = StateGround
		}
		return
	}
	switch b {
	case 0x9C, 0x18, 0x1A:
		t.state = StateGround
	case 0x1B:
		t.discardEsc = true
	}
}

// push appends to the sequence buffer, reporting false on overflow.
func (t *Terminal) push(b byte) bool {
	if len(t.buf) >= BufSize {
		t.clearBuf()
		return false
	}
	t.buf = append(t.buf, b)
	return true
}

func (t *Terminal) clearBuf() {
	t.buf = t.buf[:0]
}

// fullReset implements RIS: grid, charsets, decoder, and title. Queued
// replies are kept.
func (t *Terminal) fullReset() {
	t.Grid.Reset()
	t.charsets = [4]byte{'B', 'B', 'B', 'B'}
	t.gl = 0
	t.ss = -1
	t.decoder.Reset()
	t.title = ""
}
