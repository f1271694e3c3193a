package bounds

import (
	"math"

	"github.com/nova3d/spatial/vecmath"
)

// OBB is an oriented bounding box: a center, a unit-quaternion orientation,
// and half-extents along the orientation's local axes. The three local
// axes are cached once, by NewOBB, rather than recomputed from the
// quaternion on every query; assigning Orientation directly afterwards
// does not refresh them.
type OBB struct {
	Center      vecmath.Vector3
	Orientation vecmath.Quaternion
	HalfExtents vecmath.Vector3

	axisX, axisY, axisZ vecmath.Vector3
}

// NewOBB builds an OBB, caching its local axes from orientation.
func NewOBB(center vecmath.Vector3, orientation vecmath.Quaternion, halfExtents vecmath.Vector3) OBB {
	o := OBB{Center: center, Orientation: orientation.Normalize(), HalfExtents: halfExtents}
	o.axisX, o.axisY, o.axisZ = o.Orientation.Axes()
	return o
}

// FromAABB builds an axis-aligned OBB matching a.
func FromAABB(a AABB) OBB {
	return NewOBB(a.Center(), vecmath.IdentityQuaternion(), a.HalfExtents())
}

// axis returns local axis i (0=X, 1=Y, 2=Z).
func (o OBB) axis(i int) vecmath.Vector3 {
	switch i {
	case 0:
		return o.axisX
	case 1:
		return o.axisY
	default:
		return o.axisZ
	}
}

func (o OBB) halfExtent(i int) float64 {
	switch i {
	case 0:
		return o.HalfExtents.X
	case 1:
		return o.HalfExtents.Y
	default:
		return o.HalfExtents.Z
	}
}

// Radius returns the radius of the OBB's bounding sphere.
func (o OBB) Radius() float64 {
	return o.HalfExtents.Length()
}

// ContainsPoint reports whether p lies within o.
func (o OBB) ContainsPoint(p vecmath.Vector3) bool {
	d := p.Sub(o.Center)
	for i := 0; i < 3; i++ {
		if math.Abs(d.Dot(o.axis(i))) > o.halfExtent(i) {
			return false
		}
	}
	return true
}

// ClosestPoint returns the point on (or in) o closest to p.
func (o OBB) ClosestPoint(p vecmath.Vector3) vecmath.Vector3 {
	d := p.Sub(o.Center)
	result := o.Center
	for i := 0; i < 3; i++ {
		axis := o.axis(i)
		dist := vecmath.Clamp(d.Dot(axis), -o.halfExtent(i), o.halfExtent(i))
		result = result.Add(axis.Scale(dist))
	}
	return result
}

// IntersectsSphere reports whether o and s overlap.
func (o OBB) IntersectsSphere(s Sphere) bool {
	return o.ClosestPoint(s.Center).DistanceSquared(s.Center) <= s.Radius*s.Radius
}

// projectRadius returns the OBB's projected half-width onto axis.
func (o OBB) projectRadius(axis vecmath.Vector3) float64 {
	return math.Abs(o.axisX.Dot(axis))*o.HalfExtents.X +
		math.Abs(o.axisY.Dot(axis))*o.HalfExtents.Y +
		math.Abs(o.axisZ.Dot(axis))*o.HalfExtents.Z
}

// separatedOnAxis reports whether axis separates o and other. A
// near-zero axis (from a degenerate cross product of near-parallel
// source axes) is skipped rather than treated as a separating axis —
// it carries no discriminating information.
func separatedOnAxis(o, other OBB, centerDelta, axis vecmath.Vector3) bool {
	length := axis.Length()
	if length < 1e-6 {
		return false
	}
	axis = axis.Scale(1.0 / length)

	distance := math.Abs(centerDelta.Dot(axis))
	return distance > o.projectRadius(axis)+other.projectRadius(axis)
}

// IntersectsOBB tests overlap via the Separating Axis Theorem across all
// 15 candidate axes: each box's 3 local axes, plus the 9 pairwise cross
// products.
func (o OBB) IntersectsOBB(other OBB) bool {
	centerDelta := other.Center.Sub(o.Center)

	for i := 0; i < 3; i++ {
		if separatedOnAxis(o, other, centerDelta, o.axis(i)) {
			return false
		}
	}
	for j := 0; j < 3; j++ {
		if separatedOnAxis(o, other, centerDelta, other.axis(j)) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cross := o.axis(i).Cross(other.axis(j))
			if separatedOnAxis(o, other, centerDelta, cross) {
				return false
			}
		}
	}
	return true
}

// Penetration finds the minimum-overlap axis among the same 15 SAT
// candidates IntersectsOBB tests, and returns it (pointing from o
// toward other) along with the overlap depth along that axis.
// intersects is false, with axis and depth zeroed, if any candidate
// axis separates the two boxes.
func (o OBB) Penetration(other OBB) (axis vecmath.Vector3, depth float64, intersects bool) {
	centerDelta := other.Center.Sub(o.Center)

	var candidates [15]vecmath.Vector3
	n := 0
	for i := 0; i < 3; i++ {
		candidates[n] = o.axis(i)
		n++
	}
	for j := 0; j < 3; j++ {
		candidates[n] = other.axis(j)
		n++
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			candidates[n] = o.axis(i).Cross(other.axis(j))
			n++
		}
	}

	minDepth := math.Inf(1)
	var minAxis vecmath.Vector3
	found := false

	for _, raw := range candidates {
		length := raw.Length()
		if length < 1e-6 {
			continue
		}
		a := raw.Scale(1.0 / length)

		distance := centerDelta.Dot(a)
		overlap := o.projectRadius(a) + other.projectRadius(a) - math.Abs(distance)
		if overlap <= 0 {
			return vecmath.Vector3{}, 0, false
		}
		if overlap < minDepth {
			minDepth = overlap
			if distance < 0 {
				a = a.Scale(-1)
			}
			minAxis = a
			found = true
		}
	}

	if !found {
		return vecmath.Vector3{}, 0, false
	}
	return minAxis, minDepth, true
}

// Support returns the vertex of o farthest along direction: for each
// local axis, sign(dot(axis, direction)) picks which face of that axis
// the vertex sits on, scaled by the axis's half-extent.
func (o OBB) Support(direction vecmath.Vector3) vecmath.Vector3 {
	offset := vecmath.Vector3{}
	for i := 0; i < 3; i++ {
		axis := o.axis(i)
		sign := 1.0
		if axis.Dot(direction) < 0 {
			sign = -1.0
		}
		offset = offset.Add(axis.Scale(o.halfExtent(i) * sign))
	}
	return o.Center.Add(offset)
}

// IntersectsAABB tests overlap by treating a as an axis-aligned OBB.
func (o OBB) IntersectsAABB(a AABB) bool {
	return o.IntersectsOBB(FromAABB(a))
}

// Corners returns the 8 corner points of o.
func (o OBB) Corners() [8]vecmath.Vector3 {
	var corners [8]vecmath.Vector3
	for i := 0; i < 8; i++ {
		p := o.Center
		signs := [3]float64{-1, -1, -1}
		if i&1 != 0 {
			signs[0] = 1
		}
		if i&2 != 0 {
			signs[1] = 1
		}
		if i&4 != 0 {
			signs[2] = 1
		}
		p = p.Add(o.axisX.Scale(signs[0] * o.HalfExtents.X))
		p = p.Add(o.axisY.Scale(signs[1] * o.HalfExtents.Y))
		p = p.Add(o.axisZ.Scale(signs[2] * o.HalfExtents.Z))
		corners[i] = p
	}
	return corners
}

// Bounds returns the AABB tightly enclosing o.
func (o OBB) Bounds() AABB {
	corners := o.Corners()
	return FromPoints(corners[:])
}

// IntersectRay transforms the ray into the OBB's local frame and runs the
// slab test there — equivalent to an AABB test against an axis-aligned box.
func (o OBB) IntersectRay(r Ray) (bool, float64) {
	p := o.Center.Sub(r.Origin)

	tMin := math.Inf(-1)
	tMax := math.Inf(1)

	for i := 0; i < 3; i++ {
		axis := o.axis(i)
		halfExtent := o.halfExtent(i)

		e := axis.Dot(p)
		f := axis.Dot(r.Direction)

		if math.Abs(f) > 1e-6 {
			t1 := (e + halfExtent) / f
			t2 := (e - halfExtent) / f
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			if t1 > tMin {
				tMin = t1
			}
			if t2 < tMax {
				tMax = t2
			}
			if tMin > tMax || tMax < 0 {
				return false, 0
			}
		} else if -e-halfExtent > 0 || -e+halfExtent < 0 {
			return false, 0
		}
	}

	if tMin > 0 {
		return true, tMin
	}
	return true, tMax
}
