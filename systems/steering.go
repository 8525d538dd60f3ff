package systems

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
)

// SteeringParams holds the tunables read by the steering kernels.
type SteeringParams struct {
	MoveSpeed        float64
	RotationSpeed    float64
	DirectionLerp    float64
	SeparationRadius float64
	SeparationWeight float64
	NoiseMagnitude   float64
	ReachDistSq      float64
	LookAhead        float64
	IdleDamping      float64
}

// SteeringFrame is the per-tick view the kernels operate on. Agent columns
// are indexed by slot and have equal length; Desired, Next, NextRot and
// Arrived are scratch owned by the caller and never read across ticks.
//
// Every kernel takes an index range and writes only the slots in it, so
// disjoint ranges may run concurrently.
type SteeringFrame struct {
	Alive     []bool
	State     []components.UnitState
	Position  []r3.Vec
	Rotation  []quat.Number
	Velocity  []r3.Vec
	PathStart []int32
	PathLen   []int32
	Cursor    []int32
	RNG       []rand.PCG

	Waypoints []r3.Vec // Shared pool addressed by PathStart
	Bounds    []Line   // Turn boundaries parallel to Waypoints

	Desired []r3.Vec
	Next    []r3.Vec
	NextRot []quat.Number
	Arrived []bool

	Grid   *NavGrid
	Hash   *SpatialHash
	Params SteeringParams
	DT     float64
}

// Len returns the number of slots in the frame.
func (f *SteeringFrame) Len() int { return len(f.Alive) }

// following reports whether slot i is moving along a path.
func (f *SteeringFrame) following(i int) bool {
	return f.Alive[i] && f.State[i] == components.UnitMove && f.PathLen[i] > 0
}

// steered reports whether slot i takes part in steering: alive and not Idle.
// It includes Move agents still waiting for their path.
func (f *SteeringFrame) steered(i int) bool {
	return f.Alive[i] && f.State[i] != components.UnitIdle
}

// AdvanceWaypoints moves each follower's cursor past waypoints it has reached
// or whose turn boundary it has crossed. Followers that run out of waypoints
// lose their path and are flagged in Arrived.
func AdvanceWaypoints(f *SteeringFrame, i0, i1 int) {
	for i := i0; i < i1; i++ {
		f.Arrived[i] = false
		if !f.following(i) {
			continue
		}
		pos := f.Position[i]
		start := int(f.PathStart[i])
		n := f.PathLen[i]
		c := f.Cursor[i]
		for c < n {
			k := start + int(c)
			if distSqXZ(pos, f.Waypoints[k]) >= f.Params.ReachDistSq && !f.Bounds[k].HasCrossed(pos) {
				break
			}
			c++
		}
		if c >= n {
			f.Cursor[i] = 0
			f.PathLen[i] = 0
			f.Arrived[i] = true
			continue
		}
		f.Cursor[i] = c
	}
}

// DesiredDirections steers each follower toward a point LookAhead ahead of
// its projection onto the current path segment.
func DesiredDirections(f *SteeringFrame, i0, i1 int) {
	for i := i0; i < i1; i++ {
		if !f.following(i) {
			f.Desired[i] = r3.Vec{}
			continue
		}
		pos := f.Position[i]
		k := int(f.PathStart[i] + f.Cursor[i])
		target := f.Waypoints[k]

		if f.Cursor[i] > 0 {
			a := f.Waypoints[k-1]
			seg := r3.Vec{X: target.X - a.X, Z: target.Z - a.Z}
			segLen := math.Hypot(seg.X, seg.Z)
			if segLen > epsilon {
				dir := r3.Scale(1/segLen, seg)
				along := (pos.X-a.X)*dir.X + (pos.Z-a.Z)*dir.Z
				along = math.Max(0, math.Min(segLen, along+f.Params.LookAhead))
				target = r3.Add(a, r3.Scale(along, dir))
			}
		}

		d := flatDir(pos, target)
		if isZero(d) {
			d = flatDir(pos, f.Waypoints[k])
		}
		f.Desired[i] = d
	}
}

// Separation adds a push away from nearby agents to the desired direction of
// every non-Idle agent, including those waiting for a path. Idle agents are
// not pushed but still count as neighbours. scratch is reused between calls.
func Separation(f *SteeringFrame, i0, i1 int, scratch []Neighbor) []Neighbor {
	radius := f.Params.SeparationRadius
	if radius <= 0 || f.Params.SeparationWeight == 0 {
		return scratch
	}
	for i := i0; i < i1; i++ {
		if !f.steered(i) {
			continue
		}
		scratch = f.Hash.QueryRadiusInto(scratch[:0], f.Position[i], radius, i)
		if len(scratch) == 0 {
			continue
		}
		var away r3.Vec
		for _, n := range scratch {
			away = r3.Sub(away, n.Delta)
		}
		away = r3.Scale(1/float64(len(scratch)), away)
		push := r3.Scale(f.Params.SeparationWeight, normalizeSafe(flatten(away)))
		f.Desired[i] = r3.Add(f.Desired[i], push)
	}
	return scratch
}

// Integrate computes next position, velocity and rotation. Only Velocity is
// written in place; positions and rotations go to Next and NextRot.
func Integrate(f *SteeringFrame, i0, i1 int) {
	p := &f.Params
	dt := f.DT
	for i := i0; i < i1; i++ {
		if !f.Alive[i] {
			continue
		}
		pos := f.Position[i]
		rot := f.Rotation[i]
		desired := f.Desired[i]

		if !f.steered(i) || isZero(desired) {
			decay := math.Max(0, 1-p.IdleDamping*dt)
			f.Velocity[i] = r3.Scale(decay, f.Velocity[i])
			f.Next[i] = pos
			f.NextRot[i] = rot
			continue
		}

		if p.NoiseMagnitude > 0 {
			desired = r3.Add(desired, r3.Scale(p.NoiseMagnitude, randomUnitXZ(&f.RNG[i])))
		}
		heading := normalizeSafe(f.Velocity[i])
		heading = lerpVec(heading, desired, p.DirectionLerp*dt)
		heading = normalizeSafe(flatten(heading))
		if isZero(heading) {
			heading = normalizeSafe(flatten(desired))
		}

		next := r3.Add(pos, r3.Scale(p.MoveSpeed*dt, heading))
		if f.Grid != nil {
			if h, ok := f.Grid.HeightAt(next); ok {
				next.Y = h
			}
		}

		f.Velocity[i] = r3.Scale(p.MoveSpeed, heading)
		f.Next[i] = next
		f.NextRot[i] = Slerp(rot, LookRotation(heading), p.RotationSpeed*dt)
	}
}

// Commit copies the integrated pose back into the agent columns.
func Commit(f *SteeringFrame, i0, i1 int) {
	for i := i0; i < i1; i++ {
		if !f.Alive[i] {
			continue
		}
		f.Position[i] = f.Next[i]
		f.Rotation[i] = f.NextRot[i]
	}
}

// randomUnitXZ draws a uniformly distributed unit vector on the XZ plane.
func randomUnitXZ(src *rand.PCG) r3.Vec {
	a := float64(src.Uint64()>>11) / (1 << 53) * 2 * math.Pi
	return r3.Vec{X: math.Cos(a), Z: math.Sin(a)}
}
