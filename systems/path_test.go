package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func gridPathPoints(g *NavGrid, cells []int) []r3.Vec {
	pts := make([]r3.Vec, len(cells))
	for i := range cells {
		// Reverse: search results run goal to start.
		x, y := g.Coords(cells[len(cells)-1-i])
		pts[i] = g.CellToWorld(x, y)
	}
	return pts
}

func TestSimplifyStraightLine(t *testing.T) {
	pts := []r3.Vec{{X: 0}, {X: 1}, {X: 2}, {X: 3}, {X: 4}}
	got := Simplify(pts)
	if len(got) != 2 || got[0] != pts[0] || got[1] != pts[4] {
		t.Errorf("Simplify(straight) = %v, want endpoints only", got)
	}
	if len(pts) != 5 {
		t.Error("Simplify modified its input")
	}
}

func TestSimplifyKeepsCorners(t *testing.T) {
	pts := []r3.Vec{
		{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 2, Z: 0},
		{X: 3, Z: 1}, {X: 4, Z: 2},
		{X: 4, Z: 3}, {X: 4, Z: 4},
	}
	got := Simplify(pts)
	want := []r3.Vec{{X: 0}, {X: 2}, {X: 4, Z: 2}, {X: 4, Z: 4}}
	if len(got) != len(want) {
		t.Fatalf("Simplify = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSimplifyDropsDuplicates(t *testing.T) {
	pts := []r3.Vec{{X: 0}, {X: 1}, {X: 1}, {X: 1, Z: 1}, {X: 1, Z: 2}}
	got := Simplify(pts)
	want := []r3.Vec{{X: 0}, {X: 1}, {X: 1, Z: 2}}
	if len(got) != len(want) {
		t.Fatalf("Simplify = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSimplifyShort(t *testing.T) {
	for _, pts := range [][]r3.Vec{nil, {{X: 1}}, {{X: 1}, {X: 2}}} {
		got := Simplify(pts)
		if len(got) != len(pts) {
			t.Errorf("Simplify(%v) = %v, want unchanged", pts, got)
		}
	}
}

// TestSimplifyIdempotent runs real search results through Simplify twice.
func TestSimplifyIdempotent(t *testing.T) {
	g := newOpenGrid(20, 20)
	for y := 3; y < 17; y++ {
		g.SetCell(8, y, Cell{Walkable: false})
	}
	for x := 8; x < 16; x++ {
		g.SetCell(x, 12, Cell{Walkable: false})
	}
	pf := NewPathfinder(0)

	pairs := [][4]int{{0, 0, 19, 19}, {2, 10, 15, 14}, {19, 0, 0, 18}, {4, 4, 12, 4}}
	for _, p := range pairs {
		cells := pf.FindCellPath(nil, g, p[0], p[1], p[2], p[3])
		if len(cells) == 0 {
			t.Fatalf("no path for %v", p)
		}
		once := Simplify(gridPathPoints(g, cells))
		twice := Simplify(once)
		if len(once) != len(twice) {
			t.Fatalf("%v: once %d points, twice %d points", p, len(once), len(twice))
		}
		for i := range once {
			if once[i] != twice[i] {
				t.Errorf("%v: point %d changed on second pass: %v -> %v", p, i, once[i], twice[i])
			}
		}
	}
}

func TestLineHasCrossed(t *testing.T) {
	l := Line{Point: r3.Vec{X: 5}, Dir: r3.Vec{X: 1}}

	tests := []struct {
		p    r3.Vec
		want bool
	}{
		{r3.Vec{X: 4}, false},
		{r3.Vec{X: 5}, false},
		{r3.Vec{X: 5.01, Z: 100}, true},
		{r3.Vec{X: 9, Y: -3}, true},
	}
	for _, tt := range tests {
		if got := l.HasCrossed(tt.p); got != tt.want {
			t.Errorf("HasCrossed(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if (Line{Point: r3.Vec{}}).HasCrossed(r3.Vec{X: 1}) {
		t.Error("directionless line should never be crossed")
	}
}

func TestNewPathTurnBoundaries(t *testing.T) {
	start := r3.Vec{}
	wps := []r3.Vec{{X: 10}, {X: 10, Z: 1}}
	p := NewPath(start, wps, 3)

	if len(p.TurnBoundaries) != 2 {
		t.Fatalf("boundaries = %d, want 2", len(p.TurnBoundaries))
	}
	first := p.TurnBoundaries[0]
	if first.Point != (r3.Vec{X: 7}) {
		t.Errorf("first boundary point = %v, want (7,0,0)", first.Point)
	}
	if math.Abs(first.Dir.X-1) > 1e-12 || first.Dir.Z != 0 {
		t.Errorf("first boundary dir = %v, want +X", first.Dir)
	}
	// Final boundary sits on the waypoint itself.
	last := p.TurnBoundaries[1]
	if last.Point != wps[1] {
		t.Errorf("last boundary point = %v, want %v", last.Point, wps[1])
	}

	// Short segments clamp the boundary to their midpoint.
	short := NewPath(start, []r3.Vec{{X: 2}, {X: 2, Z: 5}}, 3)
	if short.TurnBoundaries[0].Point != (r3.Vec{X: 1}) {
		t.Errorf("clamped boundary = %v, want (1,0,0)", short.TurnBoundaries[0].Point)
	}
}

func TestFailedPath(t *testing.T) {
	p := FailedPath()
	if !p.Failed || p.Len() != 0 {
		t.Errorf("FailedPath = %+v", p)
	}
	var nilPath *Path
	if nilPath.Len() != 0 {
		t.Error("nil path Len should be 0")
	}
}

func TestSlerpEndpoints(t *testing.T) {
	a := LookRotation(r3.Vec{Z: 1})
	b := LookRotation(r3.Vec{X: 1})

	if got := Forward(Slerp(a, b, 0)); math.Abs(got.Z-1) > 1e-9 {
		t.Errorf("Slerp t=0 forward = %v, want +Z", got)
	}
	if got := Forward(Slerp(a, b, 1)); math.Abs(got.X-1) > 1e-9 {
		t.Errorf("Slerp t=1 forward = %v, want +X", got)
	}
	mid := Forward(Slerp(a, b, 0.5))
	if math.Abs(mid.X-mid.Z) > 1e-9 || mid.X <= 0 {
		t.Errorf("Slerp t=0.5 forward = %v, want 45 degrees", mid)
	}
}
