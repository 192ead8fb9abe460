package control

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/multibody"
)

var ErrRiccatiNotConverged = errors.New("control: riccati recursion did not converge")

const (
	maxRiccatiIterations = 200000
	riccatiTolerance     = 1e-10
)

// LQR is the state feedback u = U0 − K·(x − x*). Row k of K drives the
// generalized force Inputs[k]; the other entries of u keep U0.
type LQR struct {
	K      *mat.Dense
	Target dynamo.State
	U0     dynamo.Control
	Inputs []int
}

func (l *LQR) Compute(x dynamo.State, t float64) dynamo.Control {
	u := append(dynamo.Control(nil), l.U0...)
	dx := mat.NewVecDense(len(x), x.Sub(l.Target))
	var y mat.VecDense
	y.MulVec(l.K, dx)
	for k, i := range l.Inputs {
		u[i] -= y.AtVec(k)
	}
	return u
}

// DesignLQR returns the gain K minimizing Σ δxᵀ·Q·δx + δuᵀ·R·δu for the
// forward Euler discretization x⁺ = (I + A·dt)·x + B·dt·u.
func DesignLQR(A, B, Q, R mat.Matrix, dt float64) (*mat.Dense, error) {
	n, _ := A.Dims()
	var Ad, Bd mat.Dense
	Ad.Scale(dt, A)
	for i := 0; i < n; i++ {
		Ad.Set(i, i, Ad.At(i, i)+1)
	}
	Bd.Scale(dt, B)

	P := mat.DenseCopyOf(Q)
	for iter := 0; iter < maxRiccatiIterations; iter++ {
		var BtP, S, BtPA mat.Dense
		BtP.Mul(Bd.T(), P)
		S.Mul(&BtP, &Bd)
		S.Add(&S, R)
		BtPA.Mul(&BtP, &Ad)

		K := new(mat.Dense)
		if err := K.Solve(&S, &BtPA); err != nil {
			return nil, fmt.Errorf("control: input weight is singular: %w", err)
		}

		// P⁺ = Q + Adᵀ·P·(Ad − Bd·K)
		var BK, closed, PA, next mat.Dense
		BK.Mul(&Bd, K)
		closed.Sub(&Ad, &BK)
		PA.Mul(P, &closed)
		next.Mul(Ad.T(), &PA)
		next.Add(&next, Q)

		var diff mat.Dense
		diff.Sub(&next, P)
		P = &next
		if mat.Norm(&diff, 1) <= riccatiTolerance*math.Max(1, mat.Norm(P, 1)) {
			return K, nil
		}
	}
	return nil, ErrRiccatiNotConverged
}

// NewPlantLQR designs an LQR holding sys at target = [q*; 0]. The feedforward
// U0 cancels gravity at q* on the actuated velocities. The gain comes from
// the plant linearized there with weights Q = qWeight·I and R = rWeight·I.
// Only the generalized forces listed in inputs are actuated; nil actuates
// every velocity.
func NewPlantLQR(sys *multibody.System, target dynamo.State, inputs []int, qWeight, rWeight, dt float64) (*LQR, error) {
	plant := sys.Plant()
	ns, nv := plant.NumStates(), plant.NumVelocities()
	if len(target) != ns {
		return nil, fmt.Errorf("%w: target has %d entries, plant has %d states", dynamo.ErrDimensionMismatch, len(target), ns)
	}
	if qWeight <= 0 || rWeight <= 0 {
		return nil, fmt.Errorf("%w: LQR weights must be positive", dynamo.ErrParameterBounds)
	}
	if inputs == nil {
		inputs = make([]int, nv)
		for i := range inputs {
			inputs[i] = i
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: LQR needs at least one input", dynamo.ErrDimensionMismatch)
	}
	actuated := make([]bool, nv)
	for _, i := range inputs {
		if i < 0 || i >= nv {
			return nil, fmt.Errorf("%w: input %d out of range [0, %d)", dynamo.ErrDimensionMismatch, i, nv)
		}
		actuated[i] = true
	}

	ctx := sys.Context().Clone()
	if err := ctx.SetPositionsAndVelocities(target); err != nil {
		return nil, err
	}
	u0 := plant.CalcGravityGeneralizedForces(ctx)
	for i := range u0 {
		if actuated[i] {
			u0[i] = -u0[i]
		} else {
			u0[i] = 0
		}
	}
	if err := ctx.SetAppliedGeneralizedForces(u0); err != nil {
		return nil, err
	}
	A, B, err := plant.Linearize(ctx)
	if err != nil {
		return nil, err
	}

	Bu := mat.NewDense(ns, len(inputs), nil)
	for k, i := range inputs {
		Bu.SetCol(k, mat.Col(nil, i, B))
	}
	K, err := DesignLQR(A, Bu, scaledIdentity(ns, qWeight), scaledIdentity(len(inputs), rWeight), dt)
	if err != nil {
		return nil, err
	}
	return &LQR{K: K, Target: target.Clone(), U0: u0, Inputs: inputs}, nil
}

func scaledIdentity(n int, s float64) *mat.DiagDense {
	d := make([]float64, n)
	for i := range d {
		d[i] = s
	}
	return mat.NewDiagDense(n, d)
}
