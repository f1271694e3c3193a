// Package bounds provides the geometric primitives the spatial indices
// query against: AABB, OBB, Sphere, Plane, Ray and Frustum.
package bounds

import (
	"math"

	"github.com/nova3d/spatial/vecmath"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max vecmath.Vector3
}

// NewAABB builds an AABB from its corners, swapping components so Min <= Max.
func NewAABB(min, max vecmath.Vector3) AABB {
	return AABB{Min: vecmath.Min(min, max), Max: vecmath.Max(min, max)}
}

// FromPoints builds the smallest AABB enclosing all points. Returns the
// zero AABB for an empty slice.
func FromPoints(points []vecmath.Vector3) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	result := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		result.Min = vecmath.Min(result.Min, p)
		result.Max = vecmath.Max(result.Max, p)
	}
	return result
}

// Center returns the AABB's midpoint.
func (a AABB) Center() vecmath.Vector3 {
	return vecmath.Vector3{
		X: (a.Min.X + a.Max.X) / 2,
		Y: (a.Min.Y + a.Max.Y) / 2,
		Z: (a.Min.Z + a.Max.Z) / 2,
	}
}

// HalfExtents returns half the size along each axis.
func (a AABB) HalfExtents() vecmath.Vector3 {
	return vecmath.Vector3{
		X: (a.Max.X - a.Min.X) / 2,
		Y: (a.Max.Y - a.Min.Y) / 2,
		Z: (a.Max.Z - a.Min.Z) / 2,
	}
}

// Size returns the full extent along each axis.
func (a AABB) Size() vecmath.Vector3 {
	return a.Max.Sub(a.Min)
}

// SurfaceArea returns the box's surface area, used directly by the BVH's
// SAH cost function.
func (a AABB) SurfaceArea() float64 {
	s := a.Size()
	return 2 * (s.X*s.Y + s.Y*s.Z + s.Z*s.X)
}

// Volume returns the box's volume.
func (a AABB) Volume() float64 {
	s := a.Size()
	return s.X * s.Y * s.Z
}

// ContainsPoint reports whether p lies within a, inclusive of the boundary.
func (a AABB) ContainsPoint(p vecmath.Vector3) bool {
	return p.X >= a.Min.X && p.X <= a.Max.X &&
		p.Y >= a.Min.Y && p.Y <= a.Max.Y &&
		p.Z >= a.Min.Z && p.Z <= a.Max.Z
}

// ContainsAABB reports whether other is fully enclosed by a.
func (a AABB) ContainsAABB(other AABB) bool {
	return a.Min.X <= other.Min.X && a.Max.X >= other.Max.X &&
		a.Min.Y <= other.Min.Y && a.Max.Y >= other.Max.Y &&
		a.Min.Z <= other.Min.Z && a.Max.Z >= other.Max.Z
}

// IntersectsAABB reports whether a and other overlap.
func (a AABB) IntersectsAABB(other AABB) bool {
	return a.Min.X <= other.Max.X && a.Max.X >= other.Min.X &&
		a.Min.Y <= other.Max.Y && a.Max.Y >= other.Min.Y &&
		a.Min.Z <= other.Max.Z && a.Max.Z >= other.Min.Z
}

// IntersectsSphere reports whether a and s overlap.
func (a AABB) IntersectsSphere(s Sphere) bool {
	closest := vecmath.Vector3{
		X: vecmath.Clamp(s.Center.X, a.Min.X, a.Max.X),
		Y: vecmath.Clamp(s.Center.Y, a.Min.Y, a.Max.Y),
		Z: vecmath.Clamp(s.Center.Z, a.Min.Z, a.Max.Z),
	}
	return closest.DistanceSquared(s.Center) <= s.Radius*s.Radius
}

// Expand returns a grown by amount on every side. Negative amount shrinks.
func (a AABB) Expand(amount float64) AABB {
	d := vecmath.Vector3{X: amount, Y: amount, Z: amount}
	return AABB{Min: a.Min.Sub(d), Max: a.Max.Add(d)}
}

// Union returns the smallest AABB enclosing both a and other.
func (a AABB) Union(other AABB) AABB {
	return AABB{Min: vecmath.Min(a.Min, other.Min), Max: vecmath.Max(a.Max, other.Max)}
}

// ClosestPoint returns the point on (or in) a closest to p.
func (a AABB) ClosestPoint(p vecmath.Vector3) vecmath.Vector3 {
	return vecmath.Vector3{
		X: vecmath.Clamp(p.X, a.Min.X, a.Max.X),
		Y: vecmath.Clamp(p.Y, a.Min.Y, a.Max.Y),
		Z: vecmath.Clamp(p.Z, a.Min.Z, a.Max.Z),
	}
}

// DistanceSquared returns the squared distance from p to the closest
// point of a (zero if p is inside).
func (a AABB) DistanceSquared(p vecmath.Vector3) float64 {
	return a.ClosestPoint(p).DistanceSquared(p)
}

// corners returns the 8 corner points of a.
func (a AABB) corners() [8]vecmath.Vector3 {
	return [8]vecmath.Vector3{
		{X: a.Min.X, Y: a.Min.Y, Z: a.Min.Z},
		{X: a.Max.X, Y: a.Min.Y, Z: a.Min.Z},
		{X: a.Min.X, Y: a.Max.Y, Z: a.Min.Z},
		{X: a.Max.X, Y: a.Max.Y, Z: a.Min.Z},
		{X: a.Min.X, Y: a.Min.Y, Z: a.Max.Z},
		{X: a.Max.X, Y: a.Min.Y, Z: a.Max.Z},
		{X: a.Min.X, Y: a.Max.Y, Z: a.Max.Z},
		{X: a.Max.X, Y: a.Max.Y, Z: a.Max.Z},
	}
}

// Transform returns the AABB enclosing a after applying m, using the
// Arvo method: each output extent is accumulated from the absolute values
// of m's rotation row dotted with a's half-extents, rather than
// transforming and re-bounding all 8 corners — O(1) instead of O(8).
func (a AABB) Transform(m vecmath.Matrix4x4) AABB {
	center := a.Center()
	half := a.HalfExtents()

	newCenter := m.TransformPointAffine(center)

	var newHalf vecmath.Vector3
	row := [3][4]float64{
		{m.M[0], m.M[1], m.M[2], m.M[3]},
		{m.M[4], m.M[5], m.M[6], m.M[7]},
		{m.M[8], m.M[9], m.M[10], m.M[11]},
	}
	extents := [3]float64{half.X, half.Y, half.Z}
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = math.Abs(row[i][0])*extents[0] + math.Abs(row[i][1])*extents[1] + math.Abs(row[i][2])*extents[2]
	}
	newHalf = vecmath.Vector3{X: out[0], Y: out[1], Z: out[2]}

	return AABB{Min: newCenter.Sub(newHalf), Max: newCenter.Add(newHalf)}
}

// TransformExact transforms all 8 corners by m and rebounds them —
// exact but O(8), used where transform skew makes the Arvo approximation
// too loose (e.g. validating a loose-octree rebuild).
func (a AABB) TransformExact(m vecmath.Matrix4x4) AABB {
	corners := a.corners()
	transformed := make([]vecmath.Vector3, len(corners))
	for i, c := range corners {
		transformed[i] = m.TransformPoint(c)
	}
	return FromPoints(transformed)
}

// IntersectRay performs the slab test, returning (hit, tEntry). tEntry is
// the distance along the ray to the first intersection point; callers
// that need an entry point compute ray.At(tEntry) themselves.
func (a AABB) IntersectRay(r Ray) (bool, float64) {
	tMin := math.Inf(-1)
	tMax := math.Inf(1)

	origin := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dir := [3]float64{r.Direction.X, r.Direction.Y, r.Direction.Z}
	bmin := [3]float64{a.Min.X, a.Min.Y, a.Min.Z}
	bmax := [3]float64{a.Max.X, a.Max.Y, a.Max.Z}

	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-12 {
			if origin[i] < bmin[i] || origin[i] > bmax[i] {
				return false, 0
			}
			continue
		}
		invD := 1.0 / dir[i]
		t1 := (bmin[i] - origin[i]) * invD
		t2 := (bmax[i] - origin[i]) * invD
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return false, 0
		}
	}

	if tMax < 0 {
		return false, 0
	}
	if tMin < 0 {
		return true, 0
	}
	return true, tMin
}

// BatchIntersectRay tests up to 4 AABBs against the same ray at once,
// intended for SIMD-friendly SoA layouts in the BVH traversal hot path
// (spec §4.5 "batch-of-4 ray intent"). Returns a hit mask and entry
// distances; Go has no portable SIMD intrinsic, so this stays a scalar
// loop that the compiler can auto-vectorize, grouped to keep the call
// site shape identical to a true SIMD implementation.
func BatchIntersectRay(boxes [4]AABB, r Ray) (hitMask [4]bool, tEntry [4]float64) {
	for i, b := range boxes {
		hitMask[i], tEntry[i] = b.IntersectRay(r)
	}
	return hitMask, tEntry
}
