package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Cell is one navigation grid cell.
type Cell struct {
	Walkable bool
	Cost     int32   // Blurred movement penalty added on entry, >= 0
	Height   float64 // Ground height relative to the grid origin
}

// NavGrid stores a dense navigation grid on the XZ plane.
// Cells are indexed y*width+x where y runs along world Z.
// A grid is immutable once built; replace it wholesale via the path pipeline.
type NavGrid struct {
	cells    []Cell
	cellSize float64
	width    int
	height   int
	origin   r3.Vec // World-space centre of the grid
}

// NewNavGrid creates a uniform walkable grid with zero cost and height.
func NewNavGrid(width, height int, cellSize float64, origin r3.Vec) *NavGrid {
	cells := make([]Cell, width*height)
	for i := range cells {
		cells[i].Walkable = true
	}
	return &NavGrid{
		cells:    cells,
		cellSize: cellSize,
		width:    width,
		height:   height,
		origin:   origin,
	}
}

// Width returns the grid width in cells (world X).
func (g *NavGrid) Width() int { return g.width }

// Height returns the grid height in cells (world Z).
func (g *NavGrid) Height() int { return g.height }

// CellSize returns the edge length of a cell in world units.
func (g *NavGrid) CellSize() float64 { return g.cellSize }

// Origin returns the world-space centre of the grid.
func (g *NavGrid) Origin() r3.Vec { return g.origin }

// Len returns the number of cells.
func (g *NavGrid) Len() int { return len(g.cells) }

// Index returns the flat index of (x, y). Bounds are not checked.
func (g *NavGrid) Index(x, y int) int { return y*g.width + x }

// Coords returns the cell coordinates of a flat index.
func (g *NavGrid) Coords(i int) (x, y int) { return i % g.width, i / g.width }

// InBounds reports whether (x, y) is inside the grid.
func (g *NavGrid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// CellAt returns the cell at (x, y). Bounds are not checked.
func (g *NavGrid) CellAt(x, y int) Cell { return g.cells[y*g.width+x] }

// SetCell overwrites a cell. Only for use while building a grid.
func (g *NavGrid) SetCell(x, y int, c Cell) { g.cells[y*g.width+x] = c }

// Walkable reports whether (x, y) is in bounds and walkable.
func (g *NavGrid) Walkable(x, y int) bool {
	return g.InBounds(x, y) && g.cells[y*g.width+x].Walkable
}

// WorldToCell maps a world position to the cell containing it.
// Returns (-1, -1) for positions outside the grid.
func (g *NavGrid) WorldToCell(p r3.Vec) (x, y int) {
	if g == nil || g.width == 0 {
		return -1, -1
	}
	fx := (p.X-g.origin.X)/g.cellSize + float64(g.width)/2
	fz := (p.Z-g.origin.Z)/g.cellSize + float64(g.height)/2
	if fx < 0 || fz < 0 {
		return -1, -1
	}
	x, y = int(fx), int(fz)
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return -1, -1
	}
	return x, y
}

// CellToWorld returns the world-space centre of (x, y) resting on the ground.
func (g *NavGrid) CellToWorld(x, y int) r3.Vec {
	p := g.cellCenterXZ(x, y)
	p.Y = g.origin.Y + g.cells[y*g.width+x].Height
	return p
}

// cellCenterXZ returns the cell centre at the origin height.
func (g *NavGrid) cellCenterXZ(x, y int) r3.Vec {
	return r3.Vec{
		X: g.origin.X + (float64(x)-float64(g.width)/2+0.5)*g.cellSize,
		Y: g.origin.Y,
		Z: g.origin.Z + (float64(y)-float64(g.height)/2+0.5)*g.cellSize,
	}
}

// HeightAt returns the ground height under p, and false when p is off the grid.
func (g *NavGrid) HeightAt(p r3.Vec) (float64, bool) {
	x, y := g.WorldToCell(p)
	if x < 0 {
		return 0, false
	}
	return g.origin.Y + g.cells[y*g.width+x].Height, true
}

// Bounds returns the world-space XZ extent of the grid.
func (g *NavGrid) Bounds() (lo, hi r3.Vec) {
	halfW := float64(g.width) * g.cellSize / 2
	halfH := float64(g.height) * g.cellSize / 2
	lo = r3.Vec{X: g.origin.X - halfW, Y: g.origin.Y, Z: g.origin.Z - halfH}
	hi = r3.Vec{X: g.origin.X + halfW, Y: g.origin.Y, Z: g.origin.Z + halfH}
	return lo, hi
}

// WalkableCount returns the number of walkable cells.
func (g *NavGrid) WalkableCount() int {
	n := 0
	for i := range g.cells {
		if g.cells[i].Walkable {
			n++
		}
	}
	return n
}

// Dispose releases cell storage. Safe on nil or already-disposed grids.
func (g *NavGrid) Dispose() {
	if g == nil {
		return
	}
	g.cells = nil
	g.width, g.height = 0, 0
}

// Disposed reports whether Dispose has been called.
func (g *NavGrid) Disposed() bool {
	return g == nil || g.cells == nil
}

func cellsFor(size, cellSize float64) int {
	return max(1, int(math.Ceil(size/cellSize)))
}
