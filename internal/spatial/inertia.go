package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/kinmath"
)

var (
	ErrNonPositiveMass  = errors.New("spatial: mass must be positive and finite")
	ErrInvalidInertia   = errors.New("spatial: spatial inertia is not physically valid")
	ErrNonFiniteInertia = errors.New("spatial: spatial inertia contains a NaN or infinity")
)

// Inertia is the spatial inertia M_SP of a body S about a point P: its mass,
// the position p_PScm of its center of mass, and its unit inertia G_SP
// (rotational inertia about P per unit mass). Storing the unit inertia keeps
// the distribution intact when the mass is changed or is zero.
type Inertia struct {
	Mass float64
	Com  mgl64.Vec3
	G    mgl64.Mat3
}

// NewInertia builds M_SP from mass, p_PScm and the unit inertia about P.
func NewInertia(mass float64, p_PScm mgl64.Vec3, G_SP mgl64.Mat3) Inertia {
	return Inertia{Mass: mass, Com: p_PScm, G: G_SP}
}

// MakeFromCentralInertia builds M_SP from mass, p_PScm and the rotational
// inertia I_SScm about the center of mass.
func MakeFromCentralInertia(mass float64, p_PScm mgl64.Vec3, I_SScm mgl64.Mat3) (Inertia, error) {
	if !(mass > 0) || math.IsInf(mass, 0) {
		return Inertia{}, fmt.Errorf("%w: got %g", ErrNonPositiveMass, mass)
	}
	G := I_SScm.Mul(1 / mass).Add(UnitInertiaPointMass(p_PScm))
	return Inertia{Mass: mass, Com: p_PScm, G: G}, nil
}

// UnitInertiaPointMass is the unit inertia about O of a particle at p_OQ:
// |p|²·I − p·pᵀ.
func UnitInertiaPointMass(p mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Ident3().Mul(p.Dot(p)).Sub(p.OuterProd3(p))
}

// UnitInertiaSolidBox is the central unit inertia of a uniform box with the
// given side lengths along its own axes.
func UnitInertiaSolidBox(lx, ly, lz float64) mgl64.Mat3 {
	x2, y2, z2 := lx*lx, ly*ly, lz*lz
	return mgl64.Diag3(mgl64.Vec3{(y2 + z2) / 12, (x2 + z2) / 12, (x2 + y2) / 12})
}

// UnitInertiaSolidCube is UnitInertiaSolidBox with equal sides.
func UnitInertiaSolidCube(length float64) mgl64.Mat3 {
	return UnitInertiaSolidBox(length, length, length)
}

// UnitInertiaSolidSphere is the central unit inertia of a uniform sphere.
func UnitInertiaSolidSphere(radius float64) mgl64.Mat3 {
	return mgl64.Ident3().Mul(0.4 * radius * radius)
}

// UnitInertiaRod is the central unit inertia of a thin uniform rod along the
// unit vector axis.
func UnitInertiaRod(length float64, axis mgl64.Vec3) mgl64.Mat3 {
	kinmath.WarnIfNotUnitVector(axis, "UnitInertiaRod")
	return mgl64.Ident3().Sub(axis.OuterProd3(axis)).Mul(length * length / 12)
}

// ShiftFromCenterOfMass moves a central unit inertia G_SScm to the point Q at
// p_ScmQ.
func ShiftFromCenterOfMass(G_SScm mgl64.Mat3, p_ScmQ mgl64.Vec3) mgl64.Mat3 {
	return G_SScm.Add(UnitInertiaPointMass(p_ScmQ))
}

// RotationalInertia returns I_SP = m·G_SP.
func (M Inertia) RotationalInertia() mgl64.Mat3 { return M.G.Mul(M.Mass) }

// CentralUnitInertia returns G_SScm.
func (M Inertia) CentralUnitInertia() mgl64.Mat3 {
	return M.G.Sub(UnitInertiaPointMass(M.Com))
}

// WithMass returns the same distribution scaled to a new total mass.
func (M Inertia) WithMass(mass float64) Inertia {
	M.Mass = mass
	return M
}

// Shift moves M_SP to M_SQ with p = p_PQ.
func (M Inertia) Shift(p mgl64.Vec3) Inertia {
	p_QScm := M.Com.Sub(p)
	G := M.G.Sub(UnitInertiaPointMass(M.Com)).Add(UnitInertiaPointMass(p_QScm))
	return Inertia{Mass: M.Mass, Com: p_QScm, G: G}
}

// ReExpress maps M_E to M_A using R_AE.
func (M Inertia) ReExpress(R_AE kinmath.RotationMatrix) Inertia {
	R := R_AE.Matrix()
	return Inertia{
		Mass: M.Mass,
		Com:  R.Mul3x1(M.Com),
		G:    R.Mul3(M.G).Mul3(R.Transpose()),
	}
}

// Add combines two inertias taken about the same point in the same frame.
func (M Inertia) Add(o Inertia) Inertia {
	total := M.Mass + o.Mass
	if total == 0 {
		return Inertia{Com: M.Com, G: M.G}
	}
	a, b := M.Mass/total, o.Mass/total
	return Inertia{
		Mass: total,
		Com:  M.Com.Mul(a).Add(o.Com.Mul(b)),
		G:    M.G.Mul(a).Add(o.G.Mul(b)),
	}
}

// MulAcceleration returns the spatial force M·A.
func (M Inertia) MulAcceleration(A Acceleration) Force {
	mc := M.Com.Mul(M.Mass)
	return Force{
		Rotational:    M.RotationalInertia().Mul3x1(A.Rotational).Add(mc.Cross(A.Translational)),
		Translational: A.Translational.Mul(M.Mass).Add(A.Rotational.Cross(mc)),
	}
}

// MulVelocity returns the spatial momentum M·V.
func (M Inertia) MulVelocity(V Velocity) Force {
	return M.MulAcceleration(Acceleration(V))
}

// BiasForce returns the velocity-product force [ω×(I·ω); m·ω×(ω×c)] for a
// body spinning at ω.
func (M Inertia) BiasForce(w mgl64.Vec3) Force {
	mc := M.Com.Mul(M.Mass)
	return Force{
		Rotational:    w.Cross(M.RotationalInertia().Mul3x1(w)),
		Translational: w.Cross(w.Cross(mc)),
	}
}

// KineticEnergy returns ½·Vᵀ·M·V.
func (M Inertia) KineticEnergy(V Velocity) float64 {
	return 0.5 * V.Dot(M.MulVelocity(V))
}

// Validate reports non-finite entries, negative mass, or a central inertia
// that breaks the principal moment triangle inequality.
func (M Inertia) Validate() error {
	finite := !math.IsNaN(M.Mass) && !math.IsInf(M.Mass, 0) && kinmath.IsFiniteVec(M.Com)
	for _, x := range M.G {
		finite = finite && !math.IsNaN(x) && !math.IsInf(x, 0)
	}
	if !finite {
		return ErrNonFiniteInertia
	}
	if M.Mass < 0 {
		return fmt.Errorf("%w: negative mass %g", ErrInvalidInertia, M.Mass)
	}

	Gc := M.CentralUnitInertia()
	sym := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			sym.SetSym(i, j, 0.5*(Gc.At(i, j)+Gc.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return fmt.Errorf("%w: eigen decomposition failed", ErrInvalidInertia)
	}
	l := eig.Values(nil)
	tol := 1e-14 * math.Max(1, math.Abs(l[2]))
	if l[0] < -tol || l[0]+l[1] < l[2]-tol {
		return fmt.Errorf("%w: principal unit moments %v", ErrInvalidInertia, l)
	}
	return nil
}

// IsPhysicallyValid reports Validate() == nil.
func (M Inertia) IsPhysicallyValid() bool { return M.Validate() == nil }
