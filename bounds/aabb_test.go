package bounds

import (
	"math"
	"testing"

	"github.com/nova3d/spatial/vecmath"
)

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestNewAABBOrdersMinMax(t *testing.T) {
	a := NewAABB(vecmath.Vector3{X: 5, Y: -1, Z: 3}, vecmath.Vector3{X: 1, Y: 4, Z: -2})
	want := AABB{Min: vecmath.Vector3{X: 1, Y: -1, Z: -2}, Max: vecmath.Vector3{X: 5, Y: 4, Z: 3}}
	if a != want {
		t.Errorf("NewAABB = %v, want %v", a, want)
	}
}

func TestFromPoints(t *testing.T) {
	pts := []vecmath.Vector3{{X: 1, Y: 2, Z: 3}, {X: -1, Y: 5, Z: 0}, {X: 4, Y: -2, Z: 1}}
	a := FromPoints(pts)
	want := AABB{Min: vecmath.Vector3{X: -1, Y: -2, Z: 0}, Max: vecmath.Vector3{X: 4, Y: 5, Z: 3}}
	if a != want {
		t.Errorf("FromPoints = %v, want %v", a, want)
	}

	if got := FromPoints(nil); got != (AABB{}) {
		t.Errorf("FromPoints(nil) = %v, want zero value", got)
	}
}

func TestAABBCenterAndExtents(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: -2, Y: -2, Z: -2}, Max: vecmath.Vector3{X: 2, Y: 4, Z: 6}}
	if got := a.Center(); got != (vecmath.Vector3{X: 0, Y: 1, Z: 2}) {
		t.Errorf("Center = %v, want {0 1 2}", got)
	}
	if got := a.HalfExtents(); got != (vecmath.Vector3{X: 2, Y: 3, Z: 4}) {
		t.Errorf("HalfExtents = %v, want {2 3 4}", got)
	}
	if got := a.Size(); got != (vecmath.Vector3{X: 4, Y: 6, Z: 8}) {
		t.Errorf("Size = %v, want {4 6 8}", got)
	}
}

func TestAABBSurfaceAreaAndVolume(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{}, Max: vecmath.Vector3{X: 2, Y: 3, Z: 4}}
	if got := a.Volume(); got != 24 {
		t.Errorf("Volume = %v, want 24", got)
	}
	want := 2 * (2*3 + 3*4 + 4*2)
	if got := a.SurfaceArea(); got != float64(want) {
		t.Errorf("SurfaceArea = %v, want %v", got, want)
	}
}

func TestAABBContainsAndIntersects(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: 0, Y: 0, Z: 0}, Max: vecmath.Vector3{X: 10, Y: 10, Z: 10}}

	if !a.ContainsPoint(vecmath.Vector3{X: 5, Y: 5, Z: 5}) {
		t.Error("ContainsPoint(inside) = false, want true")
	}
	if a.ContainsPoint(vecmath.Vector3{X: 11, Y: 5, Z: 5}) {
		t.Error("ContainsPoint(outside) = true, want false")
	}

	inner := AABB{Min: vecmath.Vector3{X: 2, Y: 2, Z: 2}, Max: vecmath.Vector3{X: 8, Y: 8, Z: 8}}
	if !a.ContainsAABB(inner) {
		t.Error("ContainsAABB(inner) = false, want true")
	}

	overlapping := AABB{Min: vecmath.Vector3{X: 5, Y: 5, Z: 5}, Max: vecmath.Vector3{X: 15, Y: 15, Z: 15}}
	if !a.IntersectsAABB(overlapping) {
		t.Error("IntersectsAABB(overlapping) = false, want true")
	}

	disjoint := AABB{Min: vecmath.Vector3{X: 20, Y: 20, Z: 20}, Max: vecmath.Vector3{X: 30, Y: 30, Z: 30}}
	if a.IntersectsAABB(disjoint) {
		t.Error("IntersectsAABB(disjoint) = true, want false")
	}
}

func TestAABBIntersectsSphere(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: 0, Y: 0, Z: 0}, Max: vecmath.Vector3{X: 10, Y: 10, Z: 10}}

	inside := Sphere{Center: vecmath.Vector3{X: 5, Y: 5, Z: 5}, Radius: 1}
	if !a.IntersectsSphere(inside) {
		t.Error("IntersectsSphere(inside) = false, want true")
	}

	touching := Sphere{Center: vecmath.Vector3{X: 15, Y: 5, Z: 5}, Radius: 5}
	if !a.IntersectsSphere(touching) {
		t.Error("IntersectsSphere(touching) = false, want true")
	}

	away := Sphere{Center: vecmath.Vector3{X: 100, Y: 100, Z: 100}, Radius: 1}
	if a.IntersectsSphere(away) {
		t.Error("IntersectsSphere(away) = true, want false")
	}
}

func TestAABBExpandAndUnion(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: 0, Y: 0, Z: 0}, Max: vecmath.Vector3{X: 10, Y: 10, Z: 10}}
	expanded := a.Expand(1)
	want := AABB{Min: vecmath.Vector3{X: -1, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 11, Y: 11, Z: 11}}
	if expanded != want {
		t.Errorf("Expand(1) = %v, want %v", expanded, want)
	}

	other := AABB{Min: vecmath.Vector3{X: 5, Y: -5, Z: 0}, Max: vecmath.Vector3{X: 20, Y: 5, Z: 10}}
	union := a.Union(other)
	wantUnion := AABB{Min: vecmath.Vector3{X: 0, Y: -5, Z: 0}, Max: vecmath.Vector3{X: 20, Y: 10, Z: 10}}
	if union != wantUnion {
		t.Errorf("Union = %v, want %v", union, wantUnion)
	}
}

func TestAABBDistanceSquared(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: 0, Y: 0, Z: 0}, Max: vecmath.Vector3{X: 10, Y: 10, Z: 10}}

	if got := a.DistanceSquared(vecmath.Vector3{X: 5, Y: 5, Z: 5}); got != 0 {
		t.Errorf("DistanceSquared(inside) = %v, want 0", got)
	}
	if got := a.DistanceSquared(vecmath.Vector3{X: 13, Y: 0, Z: 0}); got != 9 {
		t.Errorf("DistanceSquared = %v, want 9", got)
	}
}

func TestAABBIntersectRay(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: -1, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 1, Y: 1, Z: 1}}

	hit, tEntry := a.IntersectRay(NewRay(vecmath.Vector3{X: -5, Y: 0, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0}))
	if !hit {
		t.Fatal("IntersectRay = false, want true")
	}
	if absDiff(tEntry, 4) > 1e-9 {
		t.Errorf("tEntry = %v, want 4", tEntry)
	}

	hit, _ = a.IntersectRay(NewRay(vecmath.Vector3{X: -5, Y: 5, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0}))
	if hit {
		t.Error("IntersectRay(miss) = true, want false")
	}

	hit, tEntry = a.IntersectRay(NewRay(vecmath.Vector3{X: 0, Y: 0, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0}))
	if !hit || tEntry != 0 {
		t.Errorf("IntersectRay(origin inside) = (%v, %v), want (true, 0)", hit, tEntry)
	}
}

func TestAABBTransform(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: -1, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 1, Y: 1, Z: 1}}
	translate := vecmath.Identity()
	translate.M[3] = 10
	translate.M[7] = 0
	translate.M[11] = 0

	got := a.Transform(translate)
	want := AABB{Min: vecmath.Vector3{X: 9, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 11, Y: 1, Z: 1}}
	if got != want {
		t.Errorf("Transform = %v, want %v", got, want)
	}
}

func TestBatchIntersectRay(t *testing.T) {
	boxes := [4]AABB{
		{Min: vecmath.Vector3{X: -1, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 1, Y: 1, Z: 1}},
		{Min: vecmath.Vector3{X: 9, Y: -1, Z: -1}, Max: vecmath.Vector3{X: 11, Y: 1, Z: 1}},
		{Min: vecmath.Vector3{X: 100, Y: 100, Z: 100}, Max: vecmath.Vector3{X: 101, Y: 101, Z: 101}},
		{Min: vecmath.Vector3{X: -20, Y: -1, Z: -1}, Max: vecmath.Vector3{X: -18, Y: 1, Z: 1}},
	}
	ray := NewRay(vecmath.Vector3{X: -5, Y: 0, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0})

	hitMask, tEntry := BatchIntersectRay(boxes, ray)
	wantMask := [4]bool{true, true, false, false}
	if hitMask != wantMask {
		t.Errorf("hitMask = %v, want %v", hitMask, wantMask)
	}
	if absDiff(tEntry[0], 4) > 1e-9 {
		t.Errorf("tEntry[0] = %v, want 4", tEntry[0])
	}
	if absDiff(tEntry[1], 14) > 1e-9 {
		t.Errorf("tEntry[1] = %v, want 14", tEntry[1])
	}
}

func TestSphereIntersectRay(t *testing.T) {
	s := Sphere{Center: vecmath.Vector3{X: 0, Y: 0, Z: 0}, Radius: 1}
	ray := NewRay(vecmath.Vector3{X: -5, Y: 0, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0})

	hit, tEntry := s.IntersectRay(ray)
	if !hit {
		t.Fatal("IntersectRay = false, want true")
	}
	if absDiff(tEntry, 4) > 1e-9 {
		t.Errorf("tEntry = %v, want 4", tEntry)
	}

	miss := NewRay(vecmath.Vector3{X: -5, Y: 5, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0})
	if hit, _ := s.IntersectRay(miss); hit {
		t.Error("IntersectRay(miss) = true, want false")
	}
}

func TestSphereFromPoints(t *testing.T) {
	pts := []vecmath.Vector3{{X: 0, Y: 0, Z: 0}, {X: 4, Y: 0, Z: 0}}
	s := SphereFromPoints(pts)
	if s.Center != (vecmath.Vector3{X: 2, Y: 0, Z: 0}) {
		t.Errorf("Center = %v, want {2 0 0}", s.Center)
	}
	if absDiff(s.Radius, 2) > 1e-9 {
		t.Errorf("Radius = %v, want 2", s.Radius)
	}
}

func TestPlaneSignedDistance(t *testing.T) {
	p := NormalizePlane(Plane{Normal: vecmath.Vector3{X: 0, Y: 1, Z: 0}, Distance: -5})
	if got := p.SignedDistance(vecmath.Vector3{X: 0, Y: 10, Z: 0}); absDiff(got, 5) > 1e-9 {
		t.Errorf("SignedDistance = %v, want 5", got)
	}
	if got := p.SignedDistance(vecmath.Vector3{X: 0, Y: 0, Z: 0}); absDiff(got, -5) > 1e-9 {
		t.Errorf("SignedDistance = %v, want -5", got)
	}
}

// TestFrustumCull matches the 90-degree-fov, aspect-1, near-1, far-100,
// looking-down-negative-Z scenario: an object on the forward axis must
// be visible, one far behind the camera must be culled.
func TestFrustumCull(t *testing.T) {
	proj := vecmath.Perspective(math.Pi/2, 1, 1, 100)
	view := vecmath.LookAt(vecmath.Vector3{X: 0, Y: 0, Z: 0}, vecmath.Vector3{X: 0, Y: 0, Z: -1}, vecmath.Vector3{X: 0, Y: 1, Z: 0})
	f := FrustumFromMatrix(proj.Multiply(view))

	inFront := Sphere{Center: vecmath.Vector3{X: 0, Y: 0, Z: -10}, Radius: 1}
	if !f.IntersectsSphere(inFront) {
		t.Error("object in front of camera culled, want visible")
	}

	behind := Sphere{Center: vecmath.Vector3{X: 0, Y: 0, Z: 10}, Radius: 1}
	if f.IntersectsSphere(behind) {
		t.Error("object behind camera visible, want culled")
	}

	tooFar := Sphere{Center: vecmath.Vector3{X: 0, Y: 0, Z: -200}, Radius: 1}
	if f.IntersectsSphere(tooFar) {
		t.Error("object beyond far plane visible, want culled")
	}
}

// TestFrustumClassifyAABB extends the 90-degree-fov, aspect-1, near-1,
// far-100, looking-down-negative-Z scenario with the three-way
// Outside|Inside|Intersect classification: a box straddling the near
// plane must classify as Intersect, not just fail the boolean test.
func TestFrustumClassifyAABB(t *testing.T) {
	proj := vecmath.Perspective(math.Pi/2, 1, 1, 100)
	view := vecmath.LookAt(vecmath.Vector3{X: 0, Y: 0, Z: 0}, vecmath.Vector3{X: 0, Y: 0, Z: -1}, vecmath.Vector3{X: 0, Y: 1, Z: 0})
	f := FrustumFromMatrix(proj.Multiply(view))

	wellInside := AABB{Min: vecmath.Vector3{X: -0.1, Y: -0.1, Z: -10.1}, Max: vecmath.Vector3{X: 0.1, Y: 0.1, Z: -9.9}}
	if got := f.ClassifyAABB(wellInside); got != Inside {
		t.Errorf("ClassifyAABB(well inside) = %v, want Inside", got)
	}

	behindCamera := AABB{Min: vecmath.Vector3{X: -0.1, Y: -0.1, Z: 9.9}, Max: vecmath.Vector3{X: 0.1, Y: 0.1, Z: 10.1}}
	if got := f.ClassifyAABB(behindCamera); got != Outside {
		t.Errorf("ClassifyAABB(behind camera) = %v, want Outside", got)
	}

	straddlesNear := AABB{Min: vecmath.Vector3{X: -0.1, Y: -0.1, Z: -3}, Max: vecmath.Vector3{X: 0.1, Y: 0.1, Z: 0.5}}
	if got := f.ClassifyAABB(straddlesNear); got != Intersect {
		t.Errorf("ClassifyAABB(straddles near plane) = %v, want Intersect", got)
	}
}

// TestFrustumClassifyAABBMaskedPrunesInsidePlanes checks the plane-mask
// variant: a box fully inside the near plane clears that plane's bit
// from the pruned mask, while a box straddling it keeps the bit set so
// descendants still test it.
func TestFrustumClassifyAABBMaskedPrunesInsidePlanes(t *testing.T) {
	proj := vecmath.Perspective(math.Pi/2, 1, 1, 100)
	view := vecmath.LookAt(vecmath.Vector3{X: 0, Y: 0, Z: 0}, vecmath.Vector3{X: 0, Y: 0, Z: -1}, vecmath.Vector3{X: 0, Y: 1, Z: 0})
	f := FrustumFromMatrix(proj.Multiply(view))
	nearBit := uint32(1) << uint(FrustumNear)

	wellInside := AABB{Min: vecmath.Vector3{X: -0.1, Y: -0.1, Z: -10.1}, Max: vecmath.Vector3{X: 0.1, Y: 0.1, Z: -9.9}}
	if class, pruned := f.ClassifyAABBMasked(wellInside, AllPlanes); class != Inside || pruned&nearBit != 0 {
		t.Errorf("ClassifyAABBMasked(well inside) = (%v, %b), want (Inside, near bit cleared)", class, pruned)
	}

	straddlesNear := AABB{Min: vecmath.Vector3{X: -0.1, Y: -0.1, Z: -3}, Max: vecmath.Vector3{X: 0.1, Y: 0.1, Z: 0.5}}
	if class, pruned := f.ClassifyAABBMasked(straddlesNear, AllPlanes); class != Intersect || pruned&nearBit == 0 {
		t.Errorf("ClassifyAABBMasked(straddles near) = (%v, %b), want (Intersect, near bit set)", class, pruned)
	}
}

func TestFrustumContainsPoint(t *testing.T) {
	proj := vecmath.Perspective(math.Pi/2, 1, 1, 100)
	view := vecmath.LookAt(vecmath.Vector3{X: 0, Y: 0, Z: 0}, vecmath.Vector3{X: 0, Y: 0, Z: -1}, vecmath.Vector3{X: 0, Y: 1, Z: 0})
	f := FrustumFromMatrix(proj.Multiply(view))

	if !f.ContainsPoint(vecmath.Vector3{X: 0, Y: 0, Z: -10}) {
		t.Error("ContainsPoint(forward) = false, want true")
	}
	if f.ContainsPoint(vecmath.Vector3{X: 0, Y: 0, Z: 10}) {
		t.Error("ContainsPoint(behind) = true, want false")
	}
}
