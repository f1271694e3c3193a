package bounds

import (
	"math"

	"github.com/nova3d/spatial/vecmath"
)

// Sphere is a bounding sphere.
type Sphere struct {
	Center vecmath.Vector3
	Radius float64
}

// SphereFromPoints builds the sphere centered on the points' centroid
// with radius equal to the farthest point's distance — a cheap,
// non-minimal bound.
func SphereFromPoints(points []vecmath.Vector3) Sphere {
	if len(points) == 0 {
		return Sphere{}
	}
	center := vecmath.Zero
	for _, p := range points {
		center = center.Add(p)
	}
	center = center.Scale(1.0 / float64(len(points)))

	maxDistSq := 0.0
	for _, p := range points {
		if d := center.DistanceSquared(p); d > maxDistSq {
			maxDistSq = d
		}
	}
	return Sphere{Center: center, Radius: math.Sqrt(maxDistSq)}
}

// ContainsPoint reports whether p lies within s.
func (s Sphere) ContainsPoint(p vecmath.Vector3) bool {
	return s.Center.DistanceSquared(p) <= s.Radius*s.Radius
}

// IntersectsSphere reports whether s and other overlap.
func (s Sphere) IntersectsSphere(other Sphere) bool {
	r := s.Radius + other.Radius
	return s.Center.DistanceSquared(other.Center) <= r*r
}

// IntersectsAABB reports whether s and a overlap.
func (s Sphere) IntersectsAABB(a AABB) bool {
	return a.IntersectsSphere(s)
}

// Bounds returns the AABB tightly enclosing s.
func (s Sphere) Bounds() AABB {
	r := vecmath.Vector3{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return AABB{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// IntersectRay performs the analytic ray-sphere test, returning the
// nearest non-negative hit distance.
func (s Sphere) IntersectRay(r Ray) (bool, float64) {
	oc := r.Origin.Sub(s.Center)

	a := r.Direction.LengthSquared()
	b := 2.0 * oc.Dot(r.Direction)
	c := oc.LengthSquared() - s.Radius*s.Radius

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return false, 0
	}

	sqrtDisc := math.Sqrt(discriminant)
	t := (-b - sqrtDisc) / (2.0 * a)
	if t < 0 {
		t = (-b + sqrtDisc) / (2.0 * a)
	}
	return t >= 0, t
}
