package spatial

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/kinmath"
)

// Matrix6xN is a 6×n matrix stored as n spatial velocity columns. Joints use
// it for the hinge matrix H whose column i is the spatial velocity produced by
// a unit rate of generalized velocity i.
type Matrix6xN []Velocity

// Shift moves every column to a new point, p = p_PQ.
func (H Matrix6xN) Shift(p mgl64.Vec3) Matrix6xN {
	out := make(Matrix6xN, len(H))
	for i, h := range H {
		out[i] = h.Shift(p)
	}
	return out
}

// ReExpress maps every column with R_AE.
func (H Matrix6xN) ReExpress(R_AE kinmath.RotationMatrix) Matrix6xN {
	out := make(Matrix6xN, len(H))
	for i, h := range H {
		out[i] = h.ReExpress(R_AE)
	}
	return out
}

// MulVec returns H·v.
func (H Matrix6xN) MulVec(v []float64) Velocity {
	var V Velocity
	for i, h := range H {
		V = V.Add(h.Scale(v[i]))
	}
	return V
}

// MulAcceleration returns H·vdot as an acceleration.
func (H Matrix6xN) MulAcceleration(vdot []float64) Acceleration {
	return Acceleration(H.MulVec(vdot))
}

// TransposeMulForce returns Hᵀ·F, the generalized force F produces.
func (H Matrix6xN) TransposeMulForce(F Force) []float64 {
	out := make([]float64, len(H))
	for i, h := range H {
		out[i] = h.Dot(F)
	}
	return out
}

// TransposeMulForces returns Hᵀ·U for U = P·H with P symmetric.
func (H Matrix6xN) TransposeMulForces(U []Force) *mat.SymDense {
	n := len(H)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d.SetSym(i, j, 0.5*(H[i].Dot(U[j])+H[j].Dot(U[i])))
		}
	}
	return d
}
