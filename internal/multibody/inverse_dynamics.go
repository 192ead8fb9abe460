package multibody

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/spatial"
)

// inverseDynamics is the recursive Newton-Euler pass. It returns
//
//	τ_id = M(q)·v̇ + C(q, v)·v − τ_app − Σ J_WBᵀ·F_app_Bo_W
//
// for the kinematics pk and vk, body inertias indexed by body and the applied
// forces (nil for none).
func (p *Plant) inverseDynamics(pk *positionKinematics, vk *velocityKinematics,
	inertia []spatial.Inertia, vdot []float64, forces *MultibodyForces,
) []float64 {
	n := len(p.nodes)
	A_WB := make([]spatial.Acceleration, n)
	for i := 1; i < n; i++ {
		nd := &p.nodes[i]
		jb := nd.joint.base()
		A := rigidShift(A_WB[nd.parent], pk.p_PoBo_W[i]).Add(biasAcceleration(pk, vk, i, nd.parent))
		if jb.nv > 0 {
			A = A.Add(pk.H_PB_W[i].MulAcceleration(vdot[jb.vStart : jb.vStart+jb.nv]))
		}
		A_WB[i] = A
	}

	tau := make([]float64, p.nv)
	F_BMo := make([]spatial.Force, n)
	for i := n - 1; i >= 1; i-- {
		nd := &p.nodes[i]
		M_W := inertia[nd.body.index].ReExpress(pk.X_WB[i].R)
		F := M_W.MulAcceleration(A_WB[i]).Add(M_W.BiasForce(vk.V_WB[i].Rotational))
		if forces != nil {
			F = F.Sub(forces.Body[nd.body.index])
		}
		for _, c := range nd.children {
			F = F.Add(F_BMo[c].Shift(pk.p_PoBo_W[c].Mul(-1)))
		}
		F_BMo[i] = F

		jb := nd.joint.base()
		for k, t := range pk.H_PB_W[i].TransposeMulForce(F) {
			if forces != nil {
				t -= forces.Generalized[jb.vStart+k]
			}
			tau[jb.vStart+k] = t
		}
	}
	return tau
}

func (p *Plant) zeroVelocityKinematics(pk *positionKinematics) *velocityKinematics {
	return p.calcVelocityKinematics(pk, make([]float64, p.nv))
}

// CalcInverseDynamics returns the generalized forces that produce vdot at the
// state in ctx when forces are applied as well:
// M·v̇ + C·v − τ_app − Σ J_WBᵀ·F_app_Bo_W. forces may be nil.
func (p *Plant) CalcInverseDynamics(ctx *Context, vdot []float64, forces *MultibodyForces) ([]float64, error) {
	ctx.checkPlant(p)
	if len(vdot) != p.nv {
		return nil, fmt.Errorf("%w: %d accelerations, plant has %d velocities", ErrDimension, len(vdot), p.nv)
	}
	if forces != nil {
		if err := forces.checkSize(p); err != nil {
			return nil, err
		}
	}
	return p.inverseDynamics(p.evalPositionKinematics(ctx), p.evalVelocityKinematics(ctx),
		ctx.inertia, vdot, forces), nil
}

// CalcMassMatrixViaInverseDynamics builds M(q) one column at a time from
// inverse dynamics at zero velocity with no applied forces.
func (p *Plant) CalcMassMatrixViaInverseDynamics(ctx *Context) *mat.SymDense {
	pk := p.evalPositionKinematics(ctx)
	vk := p.zeroVelocityKinematics(pk)
	nv := p.nv
	cols := make([][]float64, nv)
	vdot := make([]float64, nv)
	for j := 0; j < nv; j++ {
		vdot[j] = 1
		cols[j] = p.inverseDynamics(pk, vk, ctx.inertia, vdot, nil)
		vdot[j] = 0
	}
	if nv == 0 {
		return &mat.SymDense{}
	}
	M := mat.NewSymDense(nv, nil)
	for i := 0; i < nv; i++ {
		for j := i; j < nv; j++ {
			M.SetSym(i, j, 0.5*(cols[j][i]+cols[i][j]))
		}
	}
	return M
}

// CalcBiasTerm returns C(q, v)·v, the Coriolis, centrifugal and gyroscopic
// generalized forces.
func (p *Plant) CalcBiasTerm(ctx *Context) []float64 {
	return p.inverseDynamics(p.evalPositionKinematics(ctx), p.evalVelocityKinematics(ctx),
		ctx.inertia, make([]float64, p.nv), nil)
}

// CalcGravityGeneralizedForces returns τ_g(q), the generalized forces of the
// plant's UniformGravity.
func (p *Plant) CalcGravityGeneralizedForces(ctx *Context) []float64 {
	pk := p.evalPositionKinematics(ctx)
	forces := NewMultibodyForces(p)
	p.gravity.CalcForces(ctx, forces)
	tau := p.inverseDynamics(pk, p.zeroVelocityKinematics(pk), ctx.inertia, make([]float64, p.nv), forces)
	for i := range tau {
		tau[i] = -tau[i]
	}
	return tau
}
