package spatial

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/mbdyn/internal/kinmath"
)

// A planar test motion: body origin o(t) = (sin t, t², 0), body rotating
// about z by θ(t) = 0.3t + 0.2t², and a point Q fixed in the body at p_BoQ_B.
var (
	t0     = 0.7
	p_BoQB = mgl64.Vec3{0.5, -0.2, 0.8}
)

func theta(t float64) (th, thDot, thDDot float64) {
	return 0.3*t + 0.2*t*t, 0.3 + 0.4*t, 0.4
}

func dadd(a, b dual.Number) dual.Number { return dual.Number{Real: a.Real + b.Real, Emag: a.Emag + b.Emag} }
func dsub(a, b dual.Number) dual.Number { return dual.Number{Real: a.Real - b.Real, Emag: a.Emag - b.Emag} }
func dconst(x float64) dual.Number      { return dual.Number{Real: x} }

// rotateZ applies Rz(th) to p with dual arithmetic.
func rotateZ(th dual.Number, p [3]dual.Number) [3]dual.Number {
	c, s := dual.Cos(th), dual.Sin(th)
	return [3]dual.Number{
		dsub(dual.Mul(c, p[0]), dual.Mul(s, p[1])),
		dadd(dual.Mul(s, p[0]), dual.Mul(c, p[1])),
		p[2],
	}
}

func TestVelocityShiftRoundTrip(t *testing.T) {
	V := Velocity{mgl64.Vec3{0.3, -1.2, 2}, mgl64.Vec3{4, 0.5, -0.7}}
	p := mgl64.Vec3{1.5, -2.5, 0.25}
	assert.True(t, V.Shift(p).Shift(p.Mul(-1)).IsApprox(V, 1e-14))
	assert.Equal(t, V, V.Shift(mgl64.Vec3{}))
}

func TestForceShiftPreservesPower(t *testing.T) {
	V := Velocity{mgl64.Vec3{0.3, -1.2, 2}, mgl64.Vec3{4, 0.5, -0.7}}
	F := Force{mgl64.Vec3{-1, 2, 0.5}, mgl64.Vec3{3, 0, -2}}
	p := mgl64.Vec3{0.4, 1.1, -0.9}
	assert.InDelta(t, V.Dot(F), V.Shift(p).Dot(F.Shift(p)), 1e-13)
	assert.True(t, F.Shift(p).Shift(p.Mul(-1)).IsApprox(F, 1e-14))
}

func TestVelocityShiftMatchesFiniteDifference(t *testing.T) {
	position := func(t float64) mgl64.Vec3 {
		th, _, _ := theta(t)
		o := mgl64.Vec3{math.Sin(t), t * t, 0}
		return o.Add(kinmath.MakeZRotation(th).MulVec(p_BoQB))
	}

	th, thDot, _ := theta(t0)
	V_WBo := Velocity{
		Rotational:    mgl64.Vec3{0, 0, thDot},
		Translational: mgl64.Vec3{math.Cos(t0), 2 * t0, 0},
	}
	p_BoQ_W := kinmath.MakeZRotation(th).MulVec(p_BoQB)
	V_WQ := V_WBo.Shift(p_BoQ_W)

	for i := 0; i < 3; i++ {
		i := i
		want := fd.Derivative(func(t float64) float64 { return position(t)[i] }, t0,
			&fd.Settings{Formula: fd.Central})
		assert.InDelta(t, want, V_WQ.Translational[i], 1e-7, "component %d", i)
	}
}

func TestAccelerationShiftMatchesDualDerivative(t *testing.T) {
	// v_Q(t) = ȯ + θ̇ẑ × Rz(θ)·p; its dual part at t0 is the acceleration of Q.
	tt := dual.Number{Real: t0, Emag: 1}
	th := dadd(dual.Scale(0.3, tt), dual.Scale(0.2, dual.Mul(tt, tt)))
	thDot := dadd(dconst(0.3), dual.Scale(0.4, tt))
	p := rotateZ(th, [3]dual.Number{dconst(p_BoQB[0]), dconst(p_BoQB[1]), dconst(p_BoQB[2])})
	vQ := [3]dual.Number{
		dsub(dual.Cos(tt), dual.Mul(thDot, p[1])),
		dadd(dual.Scale(2, tt), dual.Mul(thDot, p[0])),
		dconst(0),
	}

	thR, thDotR, thDDotR := theta(t0)
	A_WBo := Acceleration{
		Rotational:    mgl64.Vec3{0, 0, thDDotR},
		Translational: mgl64.Vec3{-math.Sin(t0), 2, 0},
	}
	p_BoQ_W := kinmath.MakeZRotation(thR).MulVec(p_BoQB)
	A_WQ := A_WBo.Shift(p_BoQ_W, mgl64.Vec3{0, 0, thDotR})

	for i := 0; i < 3; i++ {
		assert.InDelta(t, vQ[i].Emag, A_WQ.Translational[i], 1e-13, "component %d", i)
	}
	assert.Equal(t, A_WBo.Rotational, A_WQ.Rotational)
}

func TestComposeWithMovingFrameAcceleration(t *testing.T) {
	// Frame P spins about z at the world origin; Bo slides along a curve fixed
	// in P: p_PoBo_P(t) = (t, t², 0.3t).
	tt := dual.Number{Real: t0, Emag: 1}
	th := dadd(dual.Scale(0.3, tt), dual.Scale(0.2, dual.Mul(tt, tt)))
	thDot := dadd(dconst(0.3), dual.Scale(0.4, tt))
	pW := rotateZ(th, [3]dual.Number{tt, dual.Mul(tt, tt), dual.Scale(0.3, tt)})
	pDotW := rotateZ(th, [3]dual.Number{dconst(1), dual.Scale(2, tt), dconst(0.3)})
	// v_WBo = θ̇ẑ × p_W + Rz·ṗ_P
	v := [3]dual.Number{
		dsub(pDotW[0], dual.Mul(thDot, pW[1])),
		dadd(pDotW[1], dual.Mul(thDot, pW[0])),
		pDotW[2],
	}

	thR, thDotR, thDDotR := theta(t0)
	R := kinmath.MakeZRotation(thR)
	w_WP := mgl64.Vec3{0, 0, thDotR}
	A_WP := Acceleration{Rotational: mgl64.Vec3{0, 0, thDDotR}}
	V_PB := Velocity{Translational: R.MulVec(mgl64.Vec3{1, 2 * t0, 0.3})}
	A_PB := Acceleration{Translational: R.MulVec(mgl64.Vec3{0, 2, 0})}
	p_PoBo_W := R.MulVec(mgl64.Vec3{t0, t0 * t0, 0.3 * t0})

	A_WB := A_WP.ComposeWithMovingFrameAcceleration(p_PoBo_W, w_WP, V_PB, A_PB)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, v[i].Emag, A_WB.Translational[i], 1e-13, "component %d", i)
	}

	V_WB := Velocity{Rotational: w_WP}.ComposeWithMovingFrameVelocity(p_PoBo_W, V_PB)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, v[i].Real, V_WB.Translational[i], 1e-14)
	}
}

func TestReExpressRoundTrip(t *testing.T) {
	R := kinmath.MakeXRotation(0.4).Mul(kinmath.MakeYRotation(-1.3))
	A := Acceleration{mgl64.Vec3{1, 2, 3}, mgl64.Vec3{-4, 5, 0.5}}
	require.True(t, A.ReExpress(R).ReExpress(R.Inverse()).IsApprox(A, 1e-14))

	V := VelocityFromSlice([]float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, [6]float64{1, 2, 3, 4, 5, 6}, V.Coeffs())
	assert.Equal(t, Velocity{}, V.Add(V.Neg()))
}
