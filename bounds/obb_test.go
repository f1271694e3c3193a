package bounds

import (
	"testing"

	"github.com/nova3d/spatial/vecmath"
)

func TestFromAABBMatchesAABBExtents(t *testing.T) {
	a := AABB{Min: vecmath.Vector3{X: -1, Y: -2, Z: -3}, Max: vecmath.Vector3{X: 1, Y: 2, Z: 3}}
	o := FromAABB(a)

	if o.Center != a.Center() {
		t.Errorf("Center = %v, want %v", o.Center, a.Center())
	}
	if o.HalfExtents != a.HalfExtents() {
		t.Errorf("HalfExtents = %v, want %v", o.HalfExtents, a.HalfExtents())
	}
}

func TestOBBContainsPoint(t *testing.T) {
	o := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})

	if !o.ContainsPoint(vecmath.Vector3{X: 0.5, Y: 0.5, Z: 0.5}) {
		t.Error("ContainsPoint(inside) = false, want true")
	}
	if o.ContainsPoint(vecmath.Vector3{X: 2, Y: 0, Z: 0}) {
		t.Error("ContainsPoint(outside) = true, want false")
	}
}

func TestOBBIntersectsOBBAxisAligned(t *testing.T) {
	a := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	overlapping := NewOBB(vecmath.Vector3{X: 1.5, Y: 0, Z: 0}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	disjoint := NewOBB(vecmath.Vector3{X: 10, Y: 0, Z: 0}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})

	if !a.IntersectsOBB(overlapping) {
		t.Error("IntersectsOBB(overlapping) = false, want true")
	}
	if a.IntersectsOBB(disjoint) {
		t.Error("IntersectsOBB(disjoint) = true, want false")
	}
}

func TestOBBIntersectsAABB(t *testing.T) {
	o := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	box := AABB{Min: vecmath.Vector3{X: 0.5, Y: 0.5, Z: 0.5}, Max: vecmath.Vector3{X: 5, Y: 5, Z: 5}}
	if !o.IntersectsAABB(box) {
		t.Error("IntersectsAABB(overlapping) = false, want true")
	}
}

func TestOBBIntersectRay(t *testing.T) {
	o := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	ray := NewRay(vecmath.Vector3{X: -5, Y: 0, Z: 0}, vecmath.Vector3{X: 1, Y: 0, Z: 0})

	hit, tEntry := o.IntersectRay(ray)
	if !hit {
		t.Fatal("IntersectRay = false, want true")
	}
	if absDiff(tEntry, 4) > 1e-9 {
		t.Errorf("tEntry = %v, want 4", tEntry)
	}
}

func TestOBBPenetrationOverlapping(t *testing.T) {
	a := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	b := NewOBB(vecmath.Vector3{X: 1.5, Y: 0, Z: 0}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})

	axis, depth, intersects := a.Penetration(b)
	if !intersects {
		t.Fatal("Penetration(overlapping) intersects = false, want true")
	}
	if absDiff(depth, 0.5) > 1e-9 {
		t.Errorf("depth = %v, want 0.5", depth)
	}
	want := vecmath.Vector3{X: 1, Y: 0, Z: 0}
	if absDiff(axis.X, want.X) > 1e-9 || absDiff(axis.Y, want.Y) > 1e-9 || absDiff(axis.Z, want.Z) > 1e-9 {
		t.Errorf("axis = %v, want %v (pointing from a toward b)", axis, want)
	}
}

func TestOBBPenetrationDisjointReportsNoIntersection(t *testing.T) {
	a := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	b := NewOBB(vecmath.Vector3{X: 10, Y: 0, Z: 0}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})

	_, _, intersects := a.Penetration(b)
	if intersects {
		t.Error("Penetration(disjoint) intersects = true, want false")
	}
}

func TestOBBSupportReturnsFarthestVertex(t *testing.T) {
	o := NewOBB(vecmath.Vector3{}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})

	got := o.Support(vecmath.Vector3{X: 1, Y: 0, Z: 0})
	want := vecmath.Vector3{X: 1, Y: 1, Z: 1}
	if got != want {
		t.Errorf("Support(+X) = %v, want %v", got, want)
	}

	got = o.Support(vecmath.Vector3{X: -1, Y: 0, Z: 0})
	want = vecmath.Vector3{X: -1, Y: 1, Z: 1}
	if got != want {
		t.Errorf("Support(-X) = %v, want %v", got, want)
	}
}

func TestOBBBoundsEnclosesCorners(t *testing.T) {
	o := NewOBB(vecmath.Vector3{X: 1, Y: 2, Z: 3}, vecmath.IdentityQuaternion(), vecmath.Vector3{X: 1, Y: 1, Z: 1})
	b := o.Bounds()
	for _, c := range o.Corners() {
		if !b.ContainsPoint(c) {
			t.Errorf("Bounds() does not contain corner %v", c)
		}
	}
}
