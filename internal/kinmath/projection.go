package kinmath

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

var errSVDFailed = errors.New("kinmath: singular value decomposition did not converge")

// ProjectToClosestRotation returns the proper rotation nearest m in the
// Frobenius norm. The quality factor is the smallest singular value of m,
// negated when m would have projected onto a reflection; values near 1 mean m
// was already nearly a rotation.
func ProjectToClosestRotation(m mgl64.Mat3) (RotationMatrix, float64, error) {
	for _, x := range m {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return RotationMatrix{}, 0, fmt.Errorf("ProjectToClosestRotation(): %w", ErrNonFiniteRotation)
		}
	}

	a := toDense(m)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return RotationMatrix{}, 0, errSVDFailed
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	sign := 1.0
	if mat.Det(&uvt) < 0 {
		sign = -1
	}

	// R = U·diag(1, 1, sign)·Vᵀ; singular values come sorted descending so
	// the flipped direction is the weakest one.
	d := mat.NewDiagDense(3, []float64{1, 1, sign})
	var ud, r mat.Dense
	ud.Mul(&u, d)
	r.Mul(&ud, v.T())

	return RotationMatrix{m: fromDense(&r)}, sign * sigma[2], nil
}

// ProjectWithAxisConstraint returns θ in [angleLB, angleUB] maximizing
// trace(R(axis, θ)ᵀ·m), the rotation about axis closest to m. Either bound may
// be infinite.
func ProjectWithAxisConstraint(m mgl64.Mat3, axis mgl64.Vec3, angleLB, angleUB float64) (float64, error) {
	if math.IsNaN(angleLB) || math.IsNaN(angleUB) || angleUB < angleLB {
		return 0, fmt.Errorf("%w: [%s, %s]", ErrInvalidAngleBounds, formatFloat(angleLB), formatFloat(angleUB))
	}
	n := axis.Len()
	if n == 0 {
		return 0, ErrZeroAxis
	}
	if err := CheckVectorFinite(axis, "ProjectWithAxisConstraint"); err != nil {
		return 0, err
	}

	A := Skew(axis.Mul(1 / n))
	// trace(Rᵀm) = trace(m) + a·sinθ − b·cosθ = c + √(a²+b²)·sin(θ + α).
	a := trace(A.Transpose().Mul3(m))
	b := trace(m.Transpose().Mul3(A).Mul3(A))
	alpha := math.Atan2(-b, a)

	// Maxima of sin(θ + α) sit at θ = (2k + ½)π − α.
	peak := func(k float64) float64 { return (2*k+0.5)*math.Pi - alpha }
	lbInf, ubInf := math.IsInf(angleLB, -1), math.IsInf(angleUB, 1)
	switch {
	case lbInf && ubInf:
		return math.Pi/2 - alpha, nil
	case ubInf:
		return peak(math.Ceil((angleLB + alpha - math.Pi/2) / (2 * math.Pi))), nil
	case lbInf:
		return peak(math.Floor((angleUB + alpha - math.Pi/2) / (2 * math.Pi))), nil
	}

	if theta := peak(math.Floor((angleUB + alpha - math.Pi/2) / (2 * math.Pi))); theta >= angleLB {
		return theta, nil
	}
	// No interior maximum; the objective is monotone toward one end.
	if math.Sin(angleLB+alpha) >= math.Sin(angleUB+alpha) {
		return angleLB, nil
	}
	return angleUB, nil
}

func trace(m mgl64.Mat3) float64 {
	return m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
}

func toDense(m mgl64.Mat3) *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, m.At(i, j))
		}
	}
	return d
}

func fromDense(d mat.Matrix) mgl64.Mat3 {
	var m mgl64.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, d.At(i, j))
		}
	}
	return m
}
