package vecmath

import "math"

// Matrix4x4 is a 4x4 transform matrix stored row-major (M[row*4+col])
// and applied to column vectors, so translation sits in M[3], M[7], M[11].
type Matrix4x4 struct {
	M [16]float64
}

// Identity returns the identity matrix.
func Identity() Matrix4x4 {
	return Matrix4x4{M: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Multiply returns m * other.
func (m Matrix4x4) Multiply(other Matrix4x4) Matrix4x4 {
	var result Matrix4x4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += m.M[i*4+k] * other.M[k*4+j]
			}
			if math.Abs(sum) < 1e-10 {
				sum = 0
			}
			result.M[i*4+j] = sum
		}
	}
	return result
}

// TransformPoint applies the full projective transform, dividing by w.
func (m Matrix4x4) TransformPoint(p Vector3) Vector3 {
	x := m.M[0]*p.X + m.M[1]*p.Y + m.M[2]*p.Z + m.M[3]
	y := m.M[4]*p.X + m.M[5]*p.Y + m.M[6]*p.Z + m.M[7]
	z := m.M[8]*p.X + m.M[9]*p.Y + m.M[10]*p.Z + m.M[11]
	w := m.M[12]*p.X + m.M[13]*p.Y + m.M[14]*p.Z + m.M[15]

	if math.Abs(w) > 1e-10 {
		return Vector3{x / w, y / w, z / w}
	}
	return Vector3{x, y, z}
}

// TransformPointAffine skips the w-divide, valid whenever the matrix's
// bottom row is (0,0,0,1) — the common case for model-to-world transforms,
// and the fast path the AABB transform (§4.1, Arvo-style accumulation) relies on.
func (m Matrix4x4) TransformPointAffine(p Vector3) Vector3 {
	return Vector3{
		X: m.M[0]*p.X + m.M[1]*p.Y + m.M[2]*p.Z + m.M[3],
		Y: m.M[4]*p.X + m.M[5]*p.Y + m.M[6]*p.Z + m.M[7],
		Z: m.M[8]*p.X + m.M[9]*p.Y + m.M[10]*p.Z + m.M[11],
	}
}

// TransformDirection applies only the rotation/scale block, ignoring translation.
func (m Matrix4x4) TransformDirection(d Vector3) Vector3 {
	return Vector3{
		X: m.M[0]*d.X + m.M[1]*d.Y + m.M[2]*d.Z,
		Y: m.M[4]*d.X + m.M[5]*d.Y + m.M[6]*d.Z,
		Z: m.M[8]*d.X + m.M[9]*d.Y + m.M[10]*d.Z,
	}
}

// Compose builds a transform matrix from position, rotation and scale.
func Compose(pos Vector3, rot Quaternion, scale Vector3) Matrix4x4 {
	rotM := rot.ToMatrix()

	var result Matrix4x4
	result.M[0] = rotM.M[0] * scale.X
	result.M[1] = rotM.M[1] * scale.X
	result.M[2] = rotM.M[2] * scale.X
	result.M[3] = pos.X

	result.M[4] = rotM.M[4] * scale.Y
	result.M[5] = rotM.M[5] * scale.Y
	result.M[6] = rotM.M[6] * scale.Y
	result.M[7] = pos.Y

	result.M[8] = rotM.M[8] * scale.Z
	result.M[9] = rotM.M[9] * scale.Z
	result.M[10] = rotM.M[10] * scale.Z
	result.M[11] = pos.Z

	result.M[15] = 1
	return result
}

// Invert returns the matrix inverse via the adjugate method, or the
// identity matrix if m is singular (determinant near zero).
func (m Matrix4x4) Invert() Matrix4x4 {
	var inv Matrix4x4

	inv.M[0] = m.M[5]*m.M[10]*m.M[15] - m.M[5]*m.M[11]*m.M[14] - m.M[9]*m.M[6]*m.M[15] +
		m.M[9]*m.M[7]*m.M[14] + m.M[13]*m.M[6]*m.M[11] - m.M[13]*m.M[7]*m.M[10]
	inv.M[4] = -m.M[4]*m.M[10]*m.M[15] + m.M[4]*m.M[11]*m.M[14] + m.M[8]*m.M[6]*m.M[15] -
		m.M[8]*m.M[7]*m.M[14] - m.M[12]*m.M[6]*m.M[11] + m.M[12]*m.M[7]*m.M[10]
	inv.M[8] = m.M[4]*m.M[9]*m.M[15] - m.M[4]*m.M[11]*m.M[13] - m.M[8]*m.M[5]*m.M[15] +
		m.M[8]*m.M[7]*m.M[13] + m.M[12]*m.M[5]*m.M[11] - m.M[12]*m.M[7]*m.M[9]
	inv.M[12] = -m.M[4]*m.M[9]*m.M[14] + m.M[4]*m.M[10]*m.M[13] + m.M[8]*m.M[5]*m.M[14] -
		m.M[8]*m.M[6]*m.M[13] - m.M[12]*m.M[5]*m.M[10] + m.M[12]*m.M[6]*m.M[9]

	inv.M[1] = -m.M[1]*m.M[10]*m.M[15] + m.M[1]*m.M[11]*m.M[14] + m.M[9]*m.M[2]*m.M[15] -
		m.M[9]*m.M[3]*m.M[14] - m.M[13]*m.M[2]*m.M[11] + m.M[13]*m.M[3]*m.M[10]
	inv.M[5] = m.M[0]*m.M[10]*m.M[15] - m.M[0]*m.M[11]*m.M[14] - m.M[8]*m.M[2]*m.M[15] +
		m.M[8]*m.M[3]*m.M[14] + m.M[12]*m.M[2]*m.M[11] - m.M[12]*m.M[3]*m.M[10]
	inv.M[9] = -m.M[0]*m.M[9]*m.M[15] + m.M[0]*m.M[11]*m.M[13] + m.M[8]*m.M[1]*m.M[15] -
		m.M[8]*m.M[3]*m.M[13] - m.M[12]*m.M[1]*m.M[11] + m.M[12]*m.M[3]*m.M[9]
	inv.M[13] = m.M[0]*m.M[9]*m.M[14] - m.M[0]*m.M[10]*m.M[13] - m.M[8]*m.M[1]*m.M[14] +
		m.M[8]*m.M[2]*m.M[13] + m.M[12]*m.M[1]*m.M[10] - m.M[12]*m.M[2]*m.M[9]

	inv.M[2] = m.M[1]*m.M[6]*m.M[15] - m.M[1]*m.M[7]*m.M[14] - m.M[5]*m.M[2]*m.M[15] +
		m.M[5]*m.M[3]*m.M[14] + m.M[13]*m.M[2]*m.M[7] - m.M[13]*m.M[3]*m.M[6]
	inv.M[6] = -m.M[0]*m.M[6]*m.M[15] + m.M[0]*m.M[7]*m.M[14] + m.M[4]*m.M[2]*m.M[15] -
		m.M[4]*m.M[3]*m.M[14] - m.M[12]*m.M[2]*m.M[7] + m.M[12]*m.M[3]*m.M[6]
	inv.M[10] = m.M[0]*m.M[5]*m.M[15] - m.M[0]*m.M[7]*m.M[13] - m.M[4]*m.M[1]*m.M[15] +
		m.M[4]*m.M[3]*m.M[13] + m.M[12]*m.M[1]*m.M[7] - m.M[12]*m.M[3]*m.M[5]
	inv.M[14] = -m.M[0]*m.M[5]*m.M[14] + m.M[0]*m.M[6]*m.M[13] + m.M[4]*m.M[1]*m.M[14] -
		m.M[4]*m.M[2]*m.M[13] - m.M[12]*m.M[1]*m.M[6] + m.M[12]*m.M[2]*m.M[5]

	inv.M[3] = -m.M[1]*m.M[6]*m.M[11] + m.M[1]*m.M[7]*m.M[10] + m.M[5]*m.M[2]*m.M[11] -
		m.M[5]*m.M[3]*m.M[10] - m.M[9]*m.M[2]*m.M[7] + m.M[9]*m.M[3]*m.M[6]
	inv.M[7] = m.M[0]*m.M[6]*m.M[11] - m.M[0]*m.M[7]*m.M[10] - m.M[4]*m.M[2]*m.M[11] +
		m.M[4]*m.M[3]*m.M[10] + m.M[8]*m.M[2]*m.M[7] - m.M[8]*m.M[3]*m.M[6]
	inv.M[11] = -m.M[0]*m.M[5]*m.M[11] + m.M[0]*m.M[7]*m.M[9] + m.M[4]*m.M[1]*m.M[11] -
		m.M[4]*m.M[3]*m.M[9] - m.M[8]*m.M[1]*m.M[7] + m.M[8]*m.M[3]*m.M[5]
	inv.M[15] = m.M[0]*m.M[5]*m.M[10] - m.M[0]*m.M[6]*m.M[9] - m.M[4]*m.M[1]*m.M[10] +
		m.M[4]*m.M[2]*m.M[9] + m.M[8]*m.M[1]*m.M[6] - m.M[8]*m.M[2]*m.M[5]

	det := m.M[0]*inv.M[0] + m.M[1]*inv.M[4] + m.M[2]*inv.M[8] + m.M[3]*inv.M[12]
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	for i := range inv.M {
		inv.M[i] *= invDet
	}
	return inv
}

// Transpose returns the matrix transpose.
func (m Matrix4x4) Transpose() Matrix4x4 {
	var t Matrix4x4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t.M[j*4+i] = m.M[i*4+j]
		}
	}
	return t
}

// Row returns row i (0-indexed) as a 4-vector.
func (m Matrix4x4) Row(i int) [4]float64 {
	return [4]float64{m.M[i*4], m.M[i*4+1], m.M[i*4+2], m.M[i*4+3]}
}

// Perspective builds a right-handed perspective projection matrix from
// vertical field-of-view (radians), aspect ratio, and near/far planes —
// the Gribb/Hartmann frustum extraction in bounds.Frustum consumes
// P·V matrices built this way.
func Perspective(fovY, aspect, near, far float64) Matrix4x4 {
	f := 1.0 / math.Tan(fovY/2.0)
	var m Matrix4x4
	m.M[0] = f / aspect
	m.M[5] = f
	m.M[10] = (far + near) / (near - far)
	m.M[11] = (2 * far * near) / (near - far)
	m.M[14] = -1
	return m
}

// Orthographic builds an orthographic projection matrix.
func Orthographic(left, right, bottom, top, near, far float64) Matrix4x4 {
	var m Matrix4x4
	m.M[0] = 2.0 / (right - left)
	m.M[5] = 2.0 / (top - bottom)
	m.M[10] = -2.0 / (far - near)
	m.M[3] = -(right + left) / (right - left)
	m.M[7] = -(top + bottom) / (top - bottom)
	m.M[11] = -(far + near) / (far - near)
	m.M[15] = 1.0
	return m
}

// LookAt builds a right-handed view matrix.
func LookAt(eye, target, up Vector3) Matrix4x4 {
	forward := target.Sub(eye).Normalized()
	right := forward.Cross(up).Normalized()
	trueUp := right.Cross(forward)

	return Matrix4x4{M: [16]float64{
		right.X, right.Y, right.Z, -right.Dot(eye),
		trueUp.X, trueUp.Y, trueUp.Z, -trueUp.Dot(eye),
		-forward.X, -forward.Y, -forward.Z, forward.Dot(eye),
		0, 0, 0, 1,
	}}
}
