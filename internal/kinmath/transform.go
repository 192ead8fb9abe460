package kinmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// RigidTransform is the pose X_AB of frame B in frame A: the rotation R_AB
// and the position p_AoBo_A. It performs no renormalization.
type RigidTransform struct {
	R RotationMatrix
	P mgl64.Vec3
}

// IdentityTransform returns X = (I, 0).
func IdentityTransform() RigidTransform {
	return RigidTransform{R: IdentityRotation()}
}

// NewRigidTransform pairs an already validated rotation with a translation.
func NewRigidTransform(r RotationMatrix, p mgl64.Vec3) RigidTransform {
	return RigidTransform{R: r, P: p}
}

// TranslationTransform returns X = (I, p).
func TranslationTransform(p mgl64.Vec3) RigidTransform {
	return RigidTransform{R: IdentityRotation(), P: p}
}

// Rotation returns R_AB.
func (x RigidTransform) Rotation() RotationMatrix { return x.R }

// Translation returns p_AoBo_A.
func (x RigidTransform) Translation() mgl64.Vec3 { return x.P }

// Mul composes X_AC = X_AB·X_BC.
func (x RigidTransform) Mul(other RigidTransform) RigidTransform {
	return RigidTransform{
		R: x.R.Mul(other.R),
		P: x.P.Add(x.R.MulVec(other.P)),
	}
}

// Inverse returns X_BA.
func (x RigidTransform) Inverse() RigidTransform {
	rInv := x.R.Transpose()
	return RigidTransform{R: rInv, P: rInv.MulVec(x.P).Mul(-1)}
}

// TransformPoint maps p_BoQ_B to p_AoQ_A.
func (x RigidTransform) TransformPoint(p mgl64.Vec3) mgl64.Vec3 {
	return x.P.Add(x.R.MulVec(p))
}

// RotateVector re-expresses a free vector from B to A.
func (x RigidTransform) RotateVector(v mgl64.Vec3) mgl64.Vec3 {
	return x.R.MulVec(v)
}

// Mat4 returns the homogeneous 4x4 form.
func (x RigidTransform) Mat4() mgl64.Mat4 {
	r := x.R.m
	return mgl64.Mat4FromRows(
		mgl64.Vec4{r.At(0, 0), r.At(0, 1), r.At(0, 2), x.P[0]},
		mgl64.Vec4{r.At(1, 0), r.At(1, 1), r.At(1, 2), x.P[1]},
		mgl64.Vec4{r.At(2, 0), r.At(2, 1), r.At(2, 2), x.P[2]},
		mgl64.Vec4{0, 0, 0, 1},
	)
}

// IsExactlyIdentity reports X == (I, 0) with no tolerance.
func (x RigidTransform) IsExactlyIdentity() bool {
	return x.R.IsExactlyIdentity() && x.P == mgl64.Vec3{}
}

// IsNearlyEqualTo compares rotation and translation elementwise within tol.
func (x RigidTransform) IsNearlyEqualTo(other RigidTransform, tol float64) bool {
	if !x.R.IsNearlyEqualTo(other.R, tol) {
		return false
	}
	for i := range x.P {
		if math.Abs(x.P[i]-other.P[i]) > tol {
			return false
		}
	}
	return true
}

func (x RigidTransform) String() string {
	return fmt.Sprintf("{R: %v, p: %s}", x.R, formatVec(x.P))
}
