package vecmath

import "math"

// Quaternion represents a rotation, avoiding gimbal lock. Orientation in
// OBB and transform records is always stored as a unit Quaternion.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion returns the quaternion representing no rotation.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// QuaternionFromEuler builds a quaternion from pitch/yaw/roll radians.
func QuaternionFromEuler(pitch, yaw, roll float64) Quaternion {
	cy := math.Cos(yaw * 0.5)
	sy := math.Sin(yaw * 0.5)
	cp := math.Cos(pitch * 0.5)
	sp := math.Sin(pitch * 0.5)
	cr := math.Cos(roll * 0.5)
	sr := math.Sin(roll * 0.5)

	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// ToEuler converts the quaternion back to pitch/yaw/roll radians.
func (q Quaternion) ToEuler() (pitch, yaw, roll float64) {
	sinrCosp := 2 * (q.W*q.X + q.Y*q.Z)
	cosrCosp := 1 - 2*(q.X*q.X+q.Y*q.Y)
	roll = math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	yaw = math.Atan2(sinyCosp, cosyCosp)

	return pitch, yaw, roll
}

// Normalize returns q scaled to unit length, or identity if q is near zero.
func (q Quaternion) Normalize() Quaternion {
	length := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if length < 1e-10 {
		return IdentityQuaternion()
	}
	return Quaternion{W: q.W / length, X: q.X / length, Y: q.Y / length, Z: q.Z / length}
}

// Multiply combines rotations: q * other.
func (q Quaternion) Multiply(other Quaternion) Quaternion {
	return Quaternion{
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
	}
}

// Conjugate returns the inverse rotation for a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Slerp spherically interpolates between q and other by t in [0,1].
func (q Quaternion) Slerp(other Quaternion, t float64) Quaternion {
	t = Clamp(t, 0, 1)

	dot := q.W*other.W + q.X*other.X + q.Y*other.Y + q.Z*other.Z
	if dot < 0 {
		other = Quaternion{W: -other.W, X: -other.X, Y: -other.Y, Z: -other.Z}
		dot = -dot
	}

	if dot > 0.9995 {
		return Quaternion{
			W: q.W + t*(other.W-q.W),
			X: q.X + t*(other.X-q.X),
			Y: q.Y + t*(other.Y-q.Y),
			Z: q.Z + t*(other.Z-q.Z),
		}.Normalize()
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta

	return Quaternion{
		W: q.W*wa + other.W*wb,
		X: q.X*wa + other.X*wb,
		Y: q.Y*wa + other.Y*wb,
		Z: q.Z*wa + other.Z*wb,
	}
}

// ToMatrix converts the quaternion to a rotation matrix. The three local
// axes an OBB caches are the first three columns of this matrix.
func (q Quaternion) ToMatrix() Matrix4x4 {
	xx := q.X * q.X
	yy := q.Y * q.Y
	zz := q.Z * q.Z
	xy := q.X * q.Y
	xz := q.X * q.Z
	yz := q.Y * q.Z
	wx := q.W * q.X
	wy := q.W * q.Y
	wz := q.W * q.Z

	return Matrix4x4{M: [16]float64{
		1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy), 0,
		2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx), 0,
		2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy), 0,
		0, 0, 0, 1,
	}}
}

// Axes returns the quaternion's local right/up/forward unit axes, which
// NewOBB caches on the OBB rather than recomputing them per query.
func (q Quaternion) Axes() (right, up, forward Vector3) {
	m := q.ToMatrix()
	right = Vector3{m.M[0], m.M[4], m.M[8]}
	up = Vector3{m.M[1], m.M[5], m.M[9]}
	forward = Vector3{m.M[2], m.M[6], m.M[10]}
	return right, up, forward
}

// RotateVector rotates v by this quaternion via q * v * q^-1.
func (q Quaternion) RotateVector(v Vector3) Vector3 {
	vecQuat := Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	result := q.Multiply(vecQuat).Multiply(q.Conjugate())
	return Vector3{result.X, result.Y, result.Z}
}

// QuaternionFromAxisAngle builds a quaternion rotating by angle radians
// around axis. A near-zero axis returns identity.
func QuaternionFromAxisAngle(axis Vector3, angle float64) Quaternion {
	if axis.Length() < 1e-10 {
		return IdentityQuaternion()
	}
	axis = axis.Normalized()
	halfAngle := angle * 0.5
	s := math.Sin(halfAngle)

	return Quaternion{
		W: math.Cos(halfAngle),
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
	}
}
