package systems

import "gonum.org/v1/gonum/spatial/r3"

// Step costs for 8-connected movement.
const (
	StraightCost int32 = 10
	DiagonalCost int32 = 14
)

// DefaultMaxOpenNodes bounds the open set of a single search.
const DefaultMaxOpenNodes = 10000

// NodeCost is the search record for one grid cell.
type NodeCost struct {
	Index  int   // Flat cell index
	G      int32 // Cost from start
	H      int32 // Octile estimate to goal
	Origin int   // Predecessor index, -1 for the start cell
}

// F returns G + H.
func (n NodeCost) F() int32 { return n.G + n.H }

// nodeLess orders by f, then prefers the node closer to the goal.
func nodeLess(a, b NodeCost) bool {
	fa, fb := a.F(), b.F()
	if fa != fb {
		return fa < fb
	}
	return a.H < b.H
}

// neighborStep is one of the 8 cell offsets.
type neighborStep struct {
	dx, dy int
	cost   int32
}

var neighborSteps = [8]neighborStep{
	{-1, 0, StraightCost},
	{1, 0, StraightCost},
	{0, -1, StraightCost},
	{0, 1, StraightCost},
	{-1, -1, DiagonalCost},
	{1, -1, DiagonalCost},
	{-1, 1, DiagonalCost},
	{1, 1, DiagonalCost},
}

// Heuristic returns the octile distance between two cells in step-cost units.
func Heuristic(ax, ay, bx, by int) int32 {
	dx := ax - bx
	if dx < 0 {
		dx = -dx
	}
	dy := ay - by
	if dy < 0 {
		dy = -dy
	}
	lo, hi := dx, dy
	if lo > hi {
		lo, hi = hi, lo
	}
	return DiagonalCost*int32(lo) + StraightCost*int32(hi-lo)
}

// Pathfinder runs A* searches over a NavGrid.
// A Pathfinder owns its open and closed sets and must not be shared between
// goroutines; the grid it reads may be.
type Pathfinder struct {
	open   *PriorityQueue[int, NodeCost]
	closed *VisitedMap[int, NodeCost]

	// PreventCornerCutting rejects diagonal steps past an unwalkable orthogonal cell.
	PreventCornerCutting bool

	lastCost int32
	expanded int
}

// NewPathfinder creates a pathfinder whose open set holds at most maxOpen nodes.
func NewPathfinder(maxOpen int) *Pathfinder {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenNodes
	}
	return &Pathfinder{
		open:     NewPriorityQueue[int, NodeCost](maxOpen, nodeLess),
		closed:   NewVisitedMap[int, NodeCost](maxOpen),
		lastCost: -1,
	}
}

// TotalCost returns the g cost of the last successful search, or -1.
func (p *Pathfinder) TotalCost() int32 { return p.lastCost }

// Expanded returns the number of nodes closed by the last search.
func (p *Pathfinder) Expanded() int { return p.expanded }

// FindPath searches from the cell containing start to the cell containing end.
// It returns flat cell indices ordered goal first, start last, or nil when no
// route exists.
func (p *Pathfinder) FindPath(grid *NavGrid, start, end r3.Vec) []int {
	return p.FindPathInto(nil, grid, start, end)
}

// FindPathInto is FindPath appending into dst[:0].
func (p *Pathfinder) FindPathInto(dst []int, grid *NavGrid, start, end r3.Vec) []int {
	sx, sy := grid.WorldToCell(start)
	ex, ey := grid.WorldToCell(end)
	return p.FindCellPath(dst, grid, sx, sy, ex, ey)
}

// FindCellPath is FindPathInto for cell coordinates.
func (p *Pathfinder) FindCellPath(dst []int, grid *NavGrid, sx, sy, ex, ey int) []int {
	dst = dst[:0]
	p.lastCost = -1
	p.expanded = 0

	if !grid.InBounds(sx, sy) || !grid.InBounds(ex, ey) {
		return dst
	}
	if !grid.CellAt(ex, ey).Walkable {
		return dst
	}

	p.open.Reset()
	p.closed.Reset()

	startIdx := grid.Index(sx, sy)
	goalIdx := grid.Index(ex, ey)
	p.open.Push(startIdx, NodeCost{
		Index:  startIdx,
		H:      Heuristic(sx, sy, ex, ey),
		Origin: -1,
	})

	for p.open.Len() > 0 {
		_, cur, _ := p.open.Pop()
		p.closed.Put(cur.Index, cur)
		p.expanded++

		if cur.Index == goalIdx {
			p.lastCost = cur.G
			return p.reconstruct(dst, goalIdx)
		}

		cx, cy := grid.Coords(cur.Index)
		for _, step := range neighborSteps {
			nx, ny := cx+step.dx, cy+step.dy
			if !grid.InBounds(nx, ny) {
				continue
			}
			ni := grid.Index(nx, ny)
			cell := grid.cells[ni]
			if !cell.Walkable || p.closed.Has(ni) {
				continue
			}
			if p.PreventCornerCutting && step.dx != 0 && step.dy != 0 {
				if !grid.Walkable(cx+step.dx, cy) || !grid.Walkable(cx, cy+step.dy) {
					continue
				}
			}

			g := cur.G + step.cost + cell.Cost
			if i := p.open.IndexOf(ni); i >= 0 {
				_, existing := p.open.At(i)
				if existing.G <= g {
					continue
				}
				existing.G = g
				existing.Origin = cur.Index
				p.open.Set(i, existing)
				continue
			}

			node := NodeCost{Index: ni, G: g, H: Heuristic(nx, ny, ex, ey), Origin: cur.Index}
			if !p.open.Push(ni, node) {
				// Open set overflow fails the whole search.
				return dst[:0]
			}
		}
	}

	return dst
}

// reconstruct walks predecessors from the goal back to the start.
func (p *Pathfinder) reconstruct(dst []int, goal int) []int {
	for idx := goal; idx >= 0; {
		dst = append(dst, idx)
		rec, ok := p.closed.Get(idx)
		if !ok {
			break
		}
		idx = rec.Origin
	}
	return dst
}
