package bounds

import "github.com/nova3d/spatial/vecmath"

// Plane is a plane in Hessian normal form: Normal.Dot(p) + Distance == 0
// for any point p on the plane. Normal is expected to be unit length.
type Plane struct {
	Normal   vecmath.Vector3
	Distance float64
}

// NormalizePlane scales a plane so Normal is unit length, preserving the
// signed-distance semantics of Plane.SignedDistance.
func NormalizePlane(p Plane) Plane {
	length := p.Normal.Length()
	if length < 1e-12 {
		return p
	}
	return Plane{Normal: p.Normal.Scale(1.0 / length), Distance: p.Distance / length}
}

// SignedDistance returns the signed distance from p to the plane: positive
// on the side the normal points toward.
func (pl Plane) SignedDistance(p vecmath.Vector3) float64 {
	return pl.Normal.Dot(p) + pl.Distance
}
