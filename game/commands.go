package game

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
	"github.com/pthm-cable/legion/systems"
)

// MoveResult reports what a move command did.
type MoveResult struct {
	Requested int // Agents given a new path request
	Skipped   int // Live agents left alone
}

// SetSelection replaces the selection with the live agents among handles.
func (s *Simulation) SetSelection(handles []components.Handle) int {
	s.ClearSelection()
	n := 0
	for _, h := range handles {
		if i, ok := s.agents.Resolve(h); ok && !s.agents.Selected[i] {
			s.agents.Selected[i] = true
			n++
		}
	}
	return n
}

// ClearSelection deselects every agent.
func (s *Simulation) ClearSelection() {
	clear(s.agents.Selected[:s.agents.HighWater()])
}

// SelectInBounds selects live agents whose XZ position lies inside the
// rectangle spanned by a and b, inclusive. Corners may be given in any order.
func (s *Simulation) SelectInBounds(a, b r3.Vec) int {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minZ, maxZ := math.Min(a.Z, b.Z), math.Max(a.Z, b.Z)

	s.ClearSelection()
	st := s.agents
	n := 0
	for i := 0; i < st.HighWater(); i++ {
		if !st.AliveAt(i) {
			continue
		}
		p := st.Position[i]
		if p.X >= minX && p.X <= maxX && p.Z >= minZ && p.Z <= maxZ {
			st.Selected[i] = true
			n++
		}
	}
	return n
}

// Selected returns handles of the selected agents in slot order.
func (s *Simulation) Selected() []components.Handle {
	var out []components.Handle
	st := s.agents
	for i := 0; i < st.HighWater(); i++ {
		if st.AliveAt(i) && st.Selected[i] {
			out = append(out, st.Handle(i))
		}
	}
	return out
}

// MoveSelected issues a move command for the current selection.
func (s *Simulation) MoveSelected(target r3.Vec) MoveResult {
	return s.SubmitMoveCommand(s.Selected(), target)
}

// SubmitMoveCommand lays the live agents among handles out in a formation
// around target and requests a path for each one whose destination changes.
// Agents whose slot is off the grid, unwalkable or in their own cell are
// skipped. Requested agents switch to Move at once and only give way to
// neighbours until their path is merged.
func (s *Simulation) SubmitMoveCommand(handles []components.Handle, target r3.Vec) MoveResult {
	var res MoveResult
	st := s.agents
	grid := s.pipeline.Grid()

	live := make([]int, 0, len(handles))
	for _, h := range handles {
		if i, ok := st.Resolve(h); ok {
			live = append(live, i)
		}
	}

	spacing := float64(s.cfg.Formation.Spacing) * grid.CellSize()
	s.slots = systems.FormationSlots(s.slots, grid, target, len(live), spacing)

	for k, i := range live {
		slot := s.slots[k]
		if !slot.Valid || s.sameCell(grid, st.Position[i], slot.Pos) {
			res.Skipped++
			continue
		}
		if distSq(st.Destination(i), slot.Pos) <= s.cfg.Formation.RepathThreshold {
			res.Skipped++
			continue
		}

		st.Seq[i]++
		st.Target[i] = slot.Pos
		st.ClearPath(i)
		st.setState(i, components.UnitMove)

		h := st.Handle(i)
		req := s.pipeline.Submit(h, st.Position[i], slot.Pos)
		s.tracker.add(h, st.Seq[i], slot.Pos, req, s.tick)
		s.trips.Start(uint64(h), s.tick)
		res.Requested++
	}

	s.collector.RecordMoveCommand(res.Requested, res.Skipped)
	s.logger.Debug("move command",
		"agents", len(live),
		"requested", res.Requested,
		"skipped", res.Skipped,
		"target", target,
	)
	return res
}

func (s *Simulation) sameCell(grid *systems.NavGrid, a, b r3.Vec) bool {
	ax, ay := grid.WorldToCell(a)
	bx, by := grid.WorldToCell(b)
	return ax >= 0 && ax == bx && ay == by
}

func distSq(a, b r3.Vec) float64 {
	return r3.Norm2(r3.Sub(a, b))
}
