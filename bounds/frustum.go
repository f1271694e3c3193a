package bounds

import "github.com/nova3d/spatial/vecmath"

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum is a camera's view volume as 6 inward-facing planes, extracted
// from a combined projection*view matrix via the Gribb/Hartmann method —
// cheaper than rebuilding planes from FOV/near/far/position/orientation
// by hand, and exact for any projection (perspective or orthographic).
type Frustum struct {
	Planes [6]Plane

	// lastFailingPlane caches which plane rejected the previous query.
	// Consecutive queries (e.g. sweeping an octree) tend to fail the same
	// plane repeatedly, so testing it first shortcuts the common case.
	lastFailingPlane int
}

// FrustumFromMatrix extracts the 6 frustum planes from a combined
// projection*view matrix.
func FrustumFromMatrix(m vecmath.Matrix4x4) *Frustum {
	r0 := m.Row(0)
	r1 := m.Row(1)
	r2 := m.Row(2)
	r3 := m.Row(3)

	add := func(a, b [4]float64) [4]float64 {
		return [4]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
	}
	sub := func(a, b [4]float64) [4]float64 {
		return [4]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
	}
	toPlane := func(v [4]float64) Plane {
		return NormalizePlane(Plane{Normal: vecmath.Vector3{X: v[0], Y: v[1], Z: v[2]}, Distance: v[3]})
	}

	f := &Frustum{}
	f.Planes[FrustumLeft] = toPlane(add(r3, r0))
	f.Planes[FrustumRight] = toPlane(sub(r3, r0))
	f.Planes[FrustumBottom] = toPlane(add(r3, r1))
	f.Planes[FrustumTop] = toPlane(sub(r3, r1))
	f.Planes[FrustumNear] = toPlane(add(r3, r2))
	f.Planes[FrustumFar] = toPlane(sub(r3, r2))
	return f
}

// ContainsPoint reports whether p is inside all 6 planes.
func (f *Frustum) ContainsPoint(p vecmath.Vector3) bool {
	for i := 0; i < 6; i++ {
		if f.Planes[i].SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsSphere reports whether s intersects or is inside the frustum.
func (f *Frustum) IntersectsSphere(s Sphere) bool {
	for i := 0; i < 6; i++ {
		if f.Planes[i].SignedDistance(s.Center) < -s.Radius {
			f.lastFailingPlane = i
			return false
		}
	}
	return true
}

// Classification is the three-way result of testing a volume against a
// plane or a full frustum.
type Classification int

const (
	Outside Classification = iota
	Inside
	Intersect
)

func (c Classification) String() string {
	switch c {
	case Outside:
		return "Outside"
	case Inside:
		return "Inside"
	case Intersect:
		return "Intersect"
	default:
		return "Unknown"
	}
}

// AllPlanes is a mask with every frustum plane still in play — the
// starting point for ClassifyAABBMasked.
const AllPlanes = uint32(1)<<6 - 1

// ClassifyAABB reports whether a lies entirely outside the frustum,
// entirely inside all 6 planes, or straddles at least one of them. For
// each plane, the p-vertex (the corner farthest along the plane's
// normal) failing means a is fully outside that plane, and therefore
// the whole frustum; the n-vertex (the opposite corner) failing while
// the p-vertex passes means a straddles that plane.
func (f *Frustum) ClassifyAABB(a AABB) Classification {
	result, _ := f.ClassifyAABBMasked(a, AllPlanes)
	return result
}

// ClassifyAABBMasked is ClassifyAABB restricted to the planes set in
// planeMask (bit i = Frustum*** plane constant i), and additionally
// returns a pruned mask with the bits for planes a is fully inside
// cleared. A caller descending a tree passes the pruned mask to a
// node's children: once a is fully inside a plane, nothing under it
// needs that plane tested again.
func (f *Frustum) ClassifyAABBMasked(a AABB, planeMask uint32) (result Classification, prunedMask uint32) {
	prunedMask = planeMask
	straddles := false

	for i := 0; i < 6; i++ {
		bit := uint32(1) << uint(i)
		if planeMask&bit == 0 {
			continue
		}

		n := f.Planes[i].Normal
		pVertex := a.Min
		nVertex := a.Max
		if n.X >= 0 {
			pVertex.X, nVertex.X = a.Max.X, a.Min.X
		}
		if n.Y >= 0 {
			pVertex.Y, nVertex.Y = a.Max.Y, a.Min.Y
		}
		if n.Z >= 0 {
			pVertex.Z, nVertex.Z = a.Max.Z, a.Min.Z
		}

		if f.Planes[i].SignedDistance(pVertex) < 0 {
			f.lastFailingPlane = i
			return Outside, prunedMask
		}
		if f.Planes[i].SignedDistance(nVertex) >= 0 {
			prunedMask &^= bit
		} else {
			straddles = true
		}
	}

	if straddles {
		return Intersect, prunedMask
	}
	return Inside, prunedMask
}

// IntersectsAABB reports whether a intersects or is inside the frustum,
// using the n-vertex/p-vertex test: for each plane, only the single
// corner farthest along the plane's normal (the "p-vertex") needs
// testing, rather than all 8 — if even the p-vertex fails, the whole
// box is outside that plane. lastFailingPlane is tried first since
// spatially coherent queries (sweeping a tree) tend to fail the same
// plane repeatedly.
func (f *Frustum) IntersectsAABB(a AABB) bool {
	testPlane := func(idx int) bool {
		n := f.Planes[idx].Normal
		p := a.Min
		if n.X >= 0 {
			p.X = a.Max.X
		}
		if n.Y >= 0 {
			p.Y = a.Max.Y
		}
		if n.Z >= 0 {
			p.Z = a.Max.Z
		}
		return f.Planes[idx].SignedDistance(p) >= 0
	}

	if !testPlane(f.lastFailingPlane) {
		return false
	}
	for i := 0; i < 6; i++ {
		if i == f.lastFailingPlane {
			continue
		}
		if !testPlane(i) {
			f.lastFailingPlane = i
			return false
		}
	}
	return true
}

// IntersectsOBB reports whether o intersects or is inside the frustum.
func (f *Frustum) IntersectsOBB(o OBB) bool {
	corners := o.Corners()
	for i := 0; i < 6; i++ {
		inside := false
		for _, c := range corners {
			if f.Planes[i].SignedDistance(c) >= 0 {
				inside = true
				break
			}
		}
		if !inside {
			f.lastFailingPlane = i
			return false
		}
	}
	return true
}
