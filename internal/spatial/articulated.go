package spatial

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/kinmath"
)

// ArticulatedInertia is a symmetric 6x6 inertia about a point,
//
//	P = [ A   B ]
//	    [ Bᵀ  C ]
//
// acting on [α; a]. Unlike Inertia it need not come from a single rigid body,
// so it is stored as raw blocks.
type ArticulatedInertia struct {
	A, B, C mgl64.Mat3
}

// FromInertia embeds a rigid spatial inertia.
func FromInertia(M Inertia) ArticulatedInertia {
	return ArticulatedInertia{
		A: M.RotationalInertia(),
		B: kinmath.Skew(M.Com).Mul(M.Mass),
		C: mgl64.Ident3().Mul(M.Mass),
	}
}

func (P ArticulatedInertia) Add(o ArticulatedInertia) ArticulatedInertia {
	return ArticulatedInertia{A: P.A.Add(o.A), B: P.B.Add(o.B), C: P.C.Add(o.C)}
}

// Shift moves P taken about point P to point Q with p = p_PQ, so that
// Vᵀ·P·V is invariant under V_Q = V_P.Shift(p).
func (P ArticulatedInertia) Shift(p mgl64.Vec3) ArticulatedInertia {
	S := kinmath.Skew(p)
	// Φ⁻ᵀ·P·Φ⁻¹ with Φ⁻¹ = [I 0; [p]ₓ I].
	BS := P.B.Mul3(S)
	CS := P.C.Mul3(S)
	return ArticulatedInertia{
		A: P.A.Add(BS).Sub(S.Mul3(P.B.Transpose())).Sub(S.Mul3(CS)),
		B: P.B.Sub(S.Mul3(P.C)),
		C: P.C,
	}.symmetrized()
}

// ReExpress maps P_E to P_A using R_AE.
func (P ArticulatedInertia) ReExpress(R_AE kinmath.RotationMatrix) ArticulatedInertia {
	R := R_AE.Matrix()
	Rt := R.Transpose()
	return ArticulatedInertia{
		A: R.Mul3(P.A).Mul3(Rt),
		B: R.Mul3(P.B).Mul3(Rt),
		C: R.Mul3(P.C).Mul3(Rt),
	}
}

// MulAcceleration returns P·A.
func (P ArticulatedInertia) MulAcceleration(A Acceleration) Force {
	return Force{
		Rotational:    P.A.Mul3x1(A.Rotational).Add(P.B.Mul3x1(A.Translational)),
		Translational: P.B.Transpose().Mul3x1(A.Rotational).Add(P.C.Mul3x1(A.Translational)),
	}
}

// MulVelocity returns P·V.
func (P ArticulatedInertia) MulVelocity(V Velocity) Force {
	return P.MulAcceleration(Acceleration(V))
}

// MulHinge returns the columns of U = P·H.
func (P ArticulatedInertia) MulHinge(H Matrix6xN) []Force {
	U := make([]Force, len(H))
	for i, h := range H {
		U[i] = P.MulVelocity(h)
	}
	return U
}

// Project returns the n×n matrix Hᵀ·P·H.
func (P ArticulatedInertia) Project(H Matrix6xN) *mat.SymDense {
	return H.TransposeMulForces(P.MulHinge(H))
}

// SubOuter returns P − U·W·Uᵀ for symmetric W.
func (P ArticulatedInertia) SubOuter(U []Force, W mat.Symmetric) ArticulatedInertia {
	for i := range U {
		for j := range U {
			w := W.At(i, j)
			if w == 0 {
				continue
			}
			ti, fi := U[i].Rotational.Mul(w), U[i].Translational.Mul(w)
			P.A = P.A.Sub(ti.OuterProd3(U[j].Rotational))
			P.B = P.B.Sub(ti.OuterProd3(U[j].Translational))
			P.C = P.C.Sub(fi.OuterProd3(U[j].Translational))
		}
	}
	return P.symmetrized()
}

// Dense returns the 6x6 matrix.
func (P ArticulatedInertia) Dense() *mat.SymDense {
	d := mat.NewSymDense(6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if j >= i {
				d.SetSym(i, j, P.A.At(i, j))
				d.SetSym(3+i, 3+j, P.C.At(i, j))
			}
			d.SetSym(i, 3+j, P.B.At(i, j))
		}
	}
	return d
}

func (P ArticulatedInertia) symmetrized() ArticulatedInertia {
	P.A = P.A.Add(P.A.Transpose()).Mul(0.5)
	P.C = P.C.Add(P.C.Transpose()).Mul(0.5)
	return P
}
