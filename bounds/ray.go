package bounds

import "github.com/nova3d/spatial/vecmath"

// Ray is a ray in 3D space. Direction must be normalized — callers
// construct via NewRay rather than building the struct literal directly.
type Ray struct {
	Origin    vecmath.Vector3
	Direction vecmath.Vector3
}

// NewRay builds a ray, normalizing direction.
func NewRay(origin, direction vecmath.Vector3) Ray {
	return Ray{Origin: origin, Direction: direction.Normalized()}
}

// At returns the point along the ray at distance t.
func (r Ray) At(t float64) vecmath.Vector3 {
	return r.Origin.Add(r.Direction.Scale(t))
}
