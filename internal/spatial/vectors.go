// Package spatial implements six-component spatial vectors and the inertias
// that act on them.
//
// Every quantity here is a pair of 3-vectors (rotational, translational)
// measured at a point and expressed in a frame the caller keeps track of. The
// Shift operations move the reference point on the same rigid body; ReExpress
// changes the expressed-in frame. Nothing in this package knows about bodies
// or trees.
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
)

// Velocity is a spatial velocity V = [ω; v].
type Velocity struct {
	Rotational    mgl64.Vec3
	Translational mgl64.Vec3
}

// Acceleration is a spatial acceleration A = [α; a].
type Acceleration struct {
	Rotational    mgl64.Vec3
	Translational mgl64.Vec3
}

// Force is a spatial force F = [τ; f].
type Force struct {
	Rotational    mgl64.Vec3
	Translational mgl64.Vec3
}

// Shift moves V_WP to V_WQ for a point Q rigidly fixed to the same body,
// with p = p_PQ expressed in the same frame as V.
func (V Velocity) Shift(p mgl64.Vec3) Velocity {
	return Velocity{
		Rotational:    V.Rotational,
		Translational: V.Translational.Add(V.Rotational.Cross(p)),
	}
}

// ComposeWithMovingFrameVelocity returns V_WB given V_WP (the receiver), the
// offset p_PoBo and V_PB, all expressed in the same frame.
func (V Velocity) ComposeWithMovingFrameVelocity(p_PoBo mgl64.Vec3, V_PB Velocity) Velocity {
	return V.Shift(p_PoBo).Add(V_PB)
}

func (V Velocity) Add(o Velocity) Velocity {
	return Velocity{V.Rotational.Add(o.Rotational), V.Translational.Add(o.Translational)}
}

func (V Velocity) Sub(o Velocity) Velocity {
	return Velocity{V.Rotational.Sub(o.Rotational), V.Translational.Sub(o.Translational)}
}

func (V Velocity) Neg() Velocity {
	return Velocity{V.Rotational.Mul(-1), V.Translational.Mul(-1)}
}

func (V Velocity) Scale(s float64) Velocity {
	return Velocity{V.Rotational.Mul(s), V.Translational.Mul(s)}
}

// ReExpress maps V_E to V_A using R_AE.
func (V Velocity) ReExpress(R_AE kinmath.RotationMatrix) Velocity {
	return Velocity{R_AE.MulVec(V.Rotational), R_AE.MulVec(V.Translational)}
}

// Dot is the power F·V.
func (V Velocity) Dot(F Force) float64 {
	return V.Rotational.Dot(F.Rotational) + V.Translational.Dot(F.Translational)
}

// Coeffs returns [ω; v].
func (V Velocity) Coeffs() [6]float64 { return coeffs(V.Rotational, V.Translational) }

// IsApprox compares all six components within tol.
func (V Velocity) IsApprox(o Velocity, tol float64) bool {
	return near(V.Rotational, o.Rotational, tol) && near(V.Translational, o.Translational, tol)
}

// VelocityFromSlice reads [ω; v] from the first six entries of s.
func VelocityFromSlice(s []float64) Velocity {
	return Velocity{
		Rotational:    mgl64.Vec3{s[0], s[1], s[2]},
		Translational: mgl64.Vec3{s[3], s[4], s[5]},
	}
}

// Shift moves A_WP to A_WQ for a point Q fixed on the body whose angular
// velocity is w: [α; a + α×p + ω×(ω×p)].
func (A Acceleration) Shift(p, w mgl64.Vec3) Acceleration {
	return Acceleration{
		Rotational: A.Rotational,
		Translational: A.Translational.
			Add(A.Rotational.Cross(p)).
			Add(w.Cross(w.Cross(p))),
	}
}

// ComposeWithMovingFrameAcceleration returns A_WB given A_WP (the receiver),
// p_PoBo, ω_WP, V_PB and A_PB, all expressed in the same frame.
func (A Acceleration) ComposeWithMovingFrameAcceleration(
	p_PoBo, w_WP mgl64.Vec3, V_PB Velocity, A_PB Acceleration,
) Acceleration {
	shifted := A.Shift(p_PoBo, w_WP)
	return Acceleration{
		Rotational: shifted.Rotational.
			Add(A_PB.Rotational).
			Add(w_WP.Cross(V_PB.Rotational)),
		Translational: shifted.Translational.
			Add(A_PB.Translational).
			Add(w_WP.Cross(V_PB.Translational).Mul(2)),
	}
}

func (A Acceleration) Add(o Acceleration) Acceleration {
	return Acceleration{A.Rotational.Add(o.Rotational), A.Translational.Add(o.Translational)}
}

func (A Acceleration) Sub(o Acceleration) Acceleration {
	return Acceleration{A.Rotational.Sub(o.Rotational), A.Translational.Sub(o.Translational)}
}

// ReExpress maps A_E to A_A using R_AE.
func (A Acceleration) ReExpress(R_AE kinmath.RotationMatrix) Acceleration {
	return Acceleration{R_AE.MulVec(A.Rotational), R_AE.MulVec(A.Translational)}
}

func (A Acceleration) Coeffs() [6]float64 { return coeffs(A.Rotational, A.Translational) }

func (A Acceleration) IsApprox(o Acceleration, tol float64) bool {
	return near(A.Rotational, o.Rotational, tol) && near(A.Translational, o.Translational, tol)
}

// Shift moves F applied at P to the equivalent force at Q, p = p_PQ:
// [τ − p×f; f].
func (F Force) Shift(p mgl64.Vec3) Force {
	return Force{
		Rotational:    F.Rotational.Sub(p.Cross(F.Translational)),
		Translational: F.Translational,
	}
}

func (F Force) Add(o Force) Force {
	return Force{F.Rotational.Add(o.Rotational), F.Translational.Add(o.Translational)}
}

func (F Force) Sub(o Force) Force {
	return Force{F.Rotational.Sub(o.Rotational), F.Translational.Sub(o.Translational)}
}

func (F Force) Neg() Force {
	return Force{F.Rotational.Mul(-1), F.Translational.Mul(-1)}
}

func (F Force) Scale(s float64) Force {
	return Force{F.Rotational.Mul(s), F.Translational.Mul(s)}
}

// ReExpress maps F_E to F_A using R_AE.
func (F Force) ReExpress(R_AE kinmath.RotationMatrix) Force {
	return Force{R_AE.MulVec(F.Rotational), R_AE.MulVec(F.Translational)}
}

// Dot is the power F·V.
func (F Force) Dot(V Velocity) float64 { return V.Dot(F) }

func (F Force) Coeffs() [6]float64 { return coeffs(F.Rotational, F.Translational) }

func (F Force) IsApprox(o Force, tol float64) bool {
	return near(F.Rotational, o.Rotational, tol) && near(F.Translational, o.Translational, tol)
}

func coeffs(r, t mgl64.Vec3) [6]float64 {
	return [6]float64{r[0], r[1], r[2], t[0], t[1], t[2]}
}

func near(a, b mgl64.Vec3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
