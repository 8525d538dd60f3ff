package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// FormationSlot is one unit's destination within a group move.
type FormationSlot struct {
	Pos   r3.Vec
	Valid bool // On the grid and walkable
}

// FormationSlots lays n units out in a square block centred on target,
// spacing world units apart, row-major from the low corner. Each slot is
// snapped to its cell centre. Slots that fall off the grid or on unwalkable
// cells are returned with Valid unset.
func FormationSlots(dst []FormationSlot, grid *NavGrid, target r3.Vec, n int, spacing float64) []FormationSlot {
	dst = dst[:0]
	if n <= 0 {
		return dst
	}
	width := int(math.Ceil(math.Sqrt(float64(n))))
	centre := (width - 1) / 2

	for i := 0; i < n; i++ {
		dx := float64(i%width-centre) * spacing
		dz := float64(i/width-centre) * spacing
		raw := r3.Vec{X: target.X + dx, Y: target.Y, Z: target.Z + dz}

		slot := FormationSlot{Pos: raw}
		if x, y := grid.WorldToCell(raw); x >= 0 {
			slot.Pos = grid.CellToWorld(x, y)
			slot.Valid = grid.Walkable(x, y)
		}
		dst = append(dst, slot)
	}
	return dst
}
