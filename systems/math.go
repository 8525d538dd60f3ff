package systems

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// epsilon below which a vector is treated as zero.
const epsilon = 1e-9

// IdentityRotation is the rotation facing +Z.
var IdentityRotation = quat.Number{Real: 1}

var upAxis = r3.Vec{Y: 1}

// normalizeSafe returns v scaled to unit length, or zero for a near-zero v.
// r3.Unit returns NaN components for the zero vector.
func normalizeSafe(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < epsilon {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// isZero reports whether v has near-zero length.
func isZero(v r3.Vec) bool {
	return r3.Norm2(v) < epsilon*epsilon
}

// flatten drops the Y component.
func flatten(v r3.Vec) r3.Vec {
	v.Y = 0
	return v
}

// distSqXZ returns the squared XZ distance between a and b.
func distSqXZ(a, b r3.Vec) float64 {
	dx, dz := b.X-a.X, b.Z-a.Z
	return dx*dx + dz*dz
}

// lerpVec interpolates from a toward b by t clamped to [0, 1].
func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	t = clamp01(t)
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// clamp01 clamps v to the [0, 1] range.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LookRotation returns the yaw rotation that faces dir on the XZ plane.
// A zero direction yields the identity.
func LookRotation(dir r3.Vec) quat.Number {
	if dir.X == 0 && dir.Z == 0 {
		return IdentityRotation
	}
	yaw := math.Atan2(dir.X, dir.Z)
	return quat.Number(r3.NewRotation(yaw, upAxis))
}

// Forward returns the unit +Z axis rotated by q.
func Forward(q quat.Number) r3.Vec {
	return r3.Rotation(q).Rotate(r3.Vec{Z: 1})
}

// Slerp spherically interpolates between unit quaternions a and b by t in [0, 1].
func Slerp(a, b quat.Number, t float64) quat.Number {
	t = clamp01(t)
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}

	var out quat.Number
	if dot > 0.9995 {
		// Nearly parallel: normalised lerp avoids dividing by sin(~0).
		out = quat.Add(a, quat.Scale(t, quat.Sub(b, a)))
	} else {
		theta := math.Acos(dot)
		sinTheta := math.Sin(theta)
		wa := math.Sin((1-t)*theta) / sinTheta
		wb := math.Sin(t*theta) / sinTheta
		out = quat.Add(quat.Scale(wa, a), quat.Scale(wb, b))
	}

	n := quat.Abs(out)
	if n < epsilon {
		return IdentityRotation
	}
	return quat.Scale(1/n, out)
}
