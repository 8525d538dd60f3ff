package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// collinearDot is the direction agreement above which an interior waypoint is dropped.
const collinearDot = 0.99

// Line is a turn boundary on the XZ plane: the line through Point
// perpendicular to Dir. An agent has crossed it once it is on the Dir side.
type Line struct {
	Point r3.Vec
	Dir   r3.Vec // Unit XZ direction of travel into Point
}

// HasCrossed reports whether p lies past the boundary.
// A boundary with no direction is never crossed.
func (l Line) HasCrossed(p r3.Vec) bool {
	dx, dz := p.X-l.Point.X, p.Z-l.Point.Z
	return dx*l.Dir.X+dz*l.Dir.Z > 0
}

// Path is an immutable, simplified route in world space.
type Path struct {
	Waypoints      []r3.Vec
	TurnBoundaries []Line // One per waypoint
	Failed         bool
}

// FailedPath returns the result for a search that found no route.
func FailedPath() *Path {
	return &Path{Failed: true}
}

// NewPath builds turn boundaries for waypoints reached from start.
// Each boundary sits turnDist before its waypoint along the incoming segment,
// clamped to half the segment; the final boundary sits on the last waypoint.
func NewPath(start r3.Vec, waypoints []r3.Vec, turnDist float64) *Path {
	p := &Path{
		Waypoints:      waypoints,
		TurnBoundaries: make([]Line, len(waypoints)),
	}
	prev := start
	for i, wp := range waypoints {
		dir := flatDir(prev, wp)
		point := wp
		if i < len(waypoints)-1 && turnDist > 0 {
			seg := flatDist(prev, wp)
			d := math.Min(turnDist, seg*0.5)
			point = r3.Sub(wp, r3.Scale(d, dir))
		}
		p.TurnBoundaries[i] = Line{Point: point, Dir: dir}
		prev = wp
	}
	return p
}

// Len returns the number of waypoints.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Waypoints)
}

// Simplify removes interior points whose incoming and outgoing XZ directions
// agree (dot >= 0.99), and points that duplicate their predecessor.
// The first and last points are always kept. The input is not modified.
func Simplify(points []r3.Vec) []r3.Vec {
	if len(points) <= 2 {
		return append([]r3.Vec(nil), points...)
	}

	out := make([]r3.Vec, 0, len(points))
	out = append(out, points[0])
	for i := 1; i < len(points)-1; i++ {
		last := out[len(out)-1]
		cur := points[i]
		if flatDist(last, cur) == 0 {
			continue
		}
		in := flatDir(last, cur)
		outDir := flatDir(cur, points[i+1])
		if r3.Dot(in, outDir) < collinearDot {
			out = append(out, cur)
		}
	}
	out = append(out, points[len(points)-1])
	return out
}

// flatDir returns the unit XZ direction from a to b, or zero.
func flatDir(a, b r3.Vec) r3.Vec {
	return normalizeSafe(r3.Vec{X: b.X - a.X, Z: b.Z - a.Z})
}

// flatDist returns the XZ distance between a and b.
func flatDist(a, b r3.Vec) float64 {
	return math.Hypot(b.X-a.X, b.Z-a.Z)
}
