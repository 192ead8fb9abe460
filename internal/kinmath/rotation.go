package kinmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/num/quat"
)

// OrthonormalityTolerance bounds max|R·Rᵀ − I| for a valid rotation matrix.
const OrthonormalityTolerance = 128 * epsilon

// RotationMatrix is a proper orthonormal 3x3 matrix R_AB. The zero value is
// not a rotation; start from IdentityRotation or a constructor.
type RotationMatrix struct {
	m mgl64.Mat3
}

// IdentityRotation returns R = I.
func IdentityRotation() RotationMatrix {
	return RotationMatrix{m: mgl64.Ident3()}
}

// NewRotationMatrix validates m and wraps it.
func NewRotationMatrix(m mgl64.Mat3) (RotationMatrix, error) {
	if err := ValidateRotation(m); err != nil {
		return RotationMatrix{}, err
	}
	return RotationMatrix{m: m}, nil
}

// MustRotation is NewRotationMatrix for inputs known to be valid.
func MustRotation(m mgl64.Mat3) RotationMatrix {
	r, err := NewRotationMatrix(m)
	if err != nil {
		panic(err)
	}
	return r
}

// ValidateRotation reports why m is not a proper rotation matrix, or nil.
func ValidateRotation(m mgl64.Mat3) error {
	for _, x := range m {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrNonFiniteRotation
		}
	}
	if measure := MeasureOfOrthonormality(m); measure > OrthonormalityTolerance {
		return fmt.Errorf("%w: measure of orthonormality error %s (near-zero is good);"+
			" use ProjectToClosestRotation to compute the closest proper rotation",
			ErrNotOrthonormal, formatFloat(measure))
	}
	if m.Det() < 0 {
		return ErrImproperRotation
	}
	return nil
}

// MeasureOfOrthonormality returns max|m·mᵀ − I| over all elements.
func MeasureOfOrthonormality(m mgl64.Mat3) float64 {
	d := m.Mul3(m.Transpose()).Sub(mgl64.Ident3())
	measure := 0.0
	for _, x := range d {
		measure = math.Max(measure, math.Abs(x))
	}
	return measure
}

// MakeXRotation returns the right-handed rotation by theta about x.
func MakeXRotation(theta float64) RotationMatrix {
	s, c := math.Sincos(theta)
	return RotationMatrix{m: mgl64.Mat3FromRows(
		mgl64.Vec3{1, 0, 0},
		mgl64.Vec3{0, c, -s},
		mgl64.Vec3{0, s, c},
	)}
}

// MakeYRotation returns the right-handed rotation by theta about y.
func MakeYRotation(theta float64) RotationMatrix {
	s, c := math.Sincos(theta)
	return RotationMatrix{m: mgl64.Mat3FromRows(
		mgl64.Vec3{c, 0, s},
		mgl64.Vec3{0, 1, 0},
		mgl64.Vec3{-s, 0, c},
	)}
}

// MakeZRotation returns the right-handed rotation by theta about z.
func MakeZRotation(theta float64) RotationMatrix {
	s, c := math.Sincos(theta)
	return RotationMatrix{m: mgl64.Mat3FromRows(
		mgl64.Vec3{c, -s, 0},
		mgl64.Vec3{s, c, 0},
		mgl64.Vec3{0, 0, 1},
	)}
}

// RotationFromAxisAngle builds R = I + sinθ[k]ₓ + (1 − cosθ)[k]ₓ² for a unit axis k.
func RotationFromAxisAngle(axis mgl64.Vec3, theta float64) (RotationMatrix, error) {
	if _, err := CheckUnitVector(axis, "RotationFromAxisAngle"); err != nil {
		return RotationMatrix{}, err
	}
	return MakeAxisRotation(axis, theta), nil
}

// MakeAxisRotation is RotationFromAxisAngle without the unit check; callers
// guarantee |k| = 1, for example joints that normalize their axis once.
func MakeAxisRotation(k mgl64.Vec3, theta float64) RotationMatrix {
	s, c := math.Sincos(theta)
	K := Skew(k)
	return RotationMatrix{m: mgl64.Ident3().Add(K.Mul(s)).Add(K.Mul3(K).Mul(1 - c))}
}

// RotationFromQuaternion converts q (any non-zero magnitude) to a rotation.
func RotationFromQuaternion(q quat.Number) (RotationMatrix, error) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	normSq := w*w + x*x + y*y + z*z
	if math.IsNaN(normSq) || math.IsInf(normSq, 0) {
		return RotationMatrix{}, fmt.Errorf("RotationFromQuaternion(): %w", ErrNonFiniteVector)
	}
	if normSq == 0 {
		return RotationMatrix{}, fmt.Errorf("RotationFromQuaternion(): zero quaternion: %w", ErrVectorTooSmall)
	}
	return NewRotationMatrix(quaternionMatrix(w, x, y, z, 2/normSq))
}

// MakeQuaternionRotation is RotationFromQuaternion without validation; q must
// be finite and non-zero.
func MakeQuaternionRotation(q quat.Number) RotationMatrix {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return RotationMatrix{m: quaternionMatrix(w, x, y, z, 2/(w*w+x*x+y*y+z*z))}
}

func quaternionMatrix(w, x, y, z, s float64) mgl64.Mat3 {
	return mgl64.Mat3FromRows(
		mgl64.Vec3{1 - s*(y*y+z*z), s * (x*y - w*z), s * (x*z + w*y)},
		mgl64.Vec3{s * (x*y + w*z), 1 - s*(x*x+z*z), s * (y*z - w*x)},
		mgl64.Vec3{s * (x*z - w*y), s * (y*z + w*x), 1 - s*(x*x+y*y)},
	)
}

// Matrix returns the underlying 3x3 matrix.
func (r RotationMatrix) Matrix() mgl64.Mat3 { return r.m }

// Col returns column i, the i-th basis vector of B expressed in A.
func (r RotationMatrix) Col(i int) mgl64.Vec3 { return r.m.Col(i) }

// Transpose returns R_BA = R_ABᵀ.
func (r RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{m: r.m.Transpose()}
}

// Inverse is Transpose.
func (r RotationMatrix) Inverse() RotationMatrix { return r.Transpose() }

// Mul composes R_AC = R_AB·R_BC.
func (r RotationMatrix) Mul(other RotationMatrix) RotationMatrix {
	return RotationMatrix{m: r.m.Mul3(other.m)}
}

// MulVec re-expresses v_B as v_A = R_AB·v_B.
func (r RotationMatrix) MulVec(v mgl64.Vec3) mgl64.Vec3 {
	return r.m.Mul3x1(v)
}

// InvMulVec re-expresses v_A as v_B = R_ABᵀ·v_A.
func (r RotationMatrix) InvMulVec(v mgl64.Vec3) mgl64.Vec3 {
	return r.m.Transpose().Mul3x1(v)
}

// IsExactlyIdentity reports R == I with no tolerance.
func (r RotationMatrix) IsExactlyIdentity() bool {
	return r.m == mgl64.Ident3()
}

// IsNearlyEqualTo reports max|R − other| ≤ tol.
func (r RotationMatrix) IsNearlyEqualTo(other RotationMatrix, tol float64) bool {
	for i := range r.m {
		if math.Abs(r.m[i]-other.m[i]) > tol {
			return false
		}
	}
	return true
}

// IsValid reports whether R still passes ValidateRotation.
func (r RotationMatrix) IsValid() bool {
	return ValidateRotation(r.m) == nil
}

// ToQuaternion returns the unit quaternion for R with a non-negative real part.
func (r RotationMatrix) ToQuaternion() quat.Number {
	m := r.m
	m00, m11, m22 := m.At(0, 0), m.At(1, 1), m.At(2, 2)
	var q quat.Number
	switch tr := m00 + m11 + m22; {
	case tr > 0:
		s := 0.5 / math.Sqrt(tr+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (m.At(2, 1) - m.At(1, 2)) * s,
			Jmag: (m.At(0, 2) - m.At(2, 0)) * s,
			Kmag: (m.At(1, 0) - m.At(0, 1)) * s,
		}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{
			Real: (m.At(2, 1) - m.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (m.At(0, 1) + m.At(1, 0)) / s,
			Kmag: (m.At(0, 2) + m.At(2, 0)) / s,
		}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{
			Real: (m.At(0, 2) - m.At(2, 0)) / s,
			Imag: (m.At(0, 1) + m.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (m.At(1, 2) + m.At(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{
			Real: (m.At(1, 0) - m.At(0, 1)) / s,
			Imag: (m.At(0, 2) + m.At(2, 0)) / s,
			Jmag: (m.At(1, 2) + m.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}
	q = quat.Scale(1/quat.Abs(q), q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

func (r RotationMatrix) String() string {
	return fmt.Sprintf("[%g %g %g; %g %g %g; %g %g %g]",
		r.m.At(0, 0), r.m.At(0, 1), r.m.At(0, 2),
		r.m.At(1, 0), r.m.At(1, 1), r.m.At(1, 2),
		r.m.At(2, 0), r.m.At(2, 1), r.m.At(2, 2))
}
