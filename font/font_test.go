package font

import "testing"

func TestRuneWidth(t *testing.T) {
	cases := []struct {
		r    rune
		want int
	}{
		{'A', 1},
		{' ', 1},
		{'~', 1},
		{'あ', 2},
		{'漢', 2},
		{'〓', 2},
		{0x00, 0},
		{0x0301, 0}, // combining acute
	}
	for _, c := range cases {
		if got := RuneWidth(c.r); got != c.want {
			t.Errorf("RuneWidth(%q) = %d, want %d", c.r, got, c.want)
		}
	}
}

func TestClassOf(t *testing.T) {
	if ClassOf('A') != Half {
		t.Errorf("'A' should be Half")
	}
	if ClassOf('あ') != Wide {
		t.Errorf("'あ' should be Wide")
	}
}

func TestTableMetrics(t *testing.T) {
	tab := Default()
	if tab.CellWidth() != 7 {
		t.Errorf("cell width = %d, want 7", tab.CellWidth())
	}
	if tab.CellHeight() != 13 {
		t.Errorf("cell height = %d, want 13", tab.CellHeight())
	}
}

func TestLookupASCII(t *testing.T) {
	tab := Default()
	g := tab.Lookup('A')
	if g.Width != Half {
		t.Fatalf("'A' width class = %v, want Half", g.Width)
	}
	if len(g.Rows) != tab.CellHeight() {
		t.Fatalf("'A' has %d rows, want %d", len(g.Rows), tab.CellHeight())
	}
	any := false
	for y := 0; y < tab.CellHeight(); y++ {
		for x := 0; x < tab.CellWidth(); x++ {
			if g.Set(y, x) {
				any = true
			}
		}
	}
	if !any {
		t.Errorf("'A' rasterised to an empty bitmap")
	}

	// Space must rasterise to no pixels.
	sp := tab.Lookup(' ')
	for y := 0; y < tab.CellHeight(); y++ {
		if sp.Rows[y] != 0 {
			t.Errorf("space has pixels in row %d", y)
		}
	}
}

func TestLookupMissingGlyph(t *testing.T) {
	tab := Default()

	// basicfont has no CJK coverage: a wide rune must fall back to a
	// wide substitution bitmap, never an empty one.
	g := tab.Lookup('漢')
	if g.Width != Wide {
		t.Fatalf("wide fallback has class %v, want Wide", g.Width)
	}
	any := false
	for y := range g.Rows {
		if g.Rows[y] != 0 {
			any = true
		}
	}
	if !any {
		t.Errorf("wide fallback bitmap is empty")
	}

	// Missing half-width glyph falls back too.
	h := tab.Lookup(rune(0x0530))
	if h.Width != Half {
		t.Fatalf("half fallback has class %v, want Half", h.Width)
	}
}

func TestLookupMemoised(t *testing.T) {
	tab := Default()
	a := tab.Lookup('Q')
	b := tab.Lookup('Q')
	for y := range a.Rows {
		if a.Rows[y] != b.Rows[y] {
			t.Fatalf("repeated lookups disagree at row %d", y)
		}
	}
}
