package multibody

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// EvalForwardDynamics returns v̇ for the state, parameters and applied inputs
// in ctx. The result is cached until ctx changes. A model without velocities
// yields an empty slice.
func (p *Plant) EvalForwardDynamics(ctx *Context) ([]float64, error) {
	res, err := p.evalForwardDynamics(ctx)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), res.vdot...), nil
}

// EvalBodySpatialAccelerationInWorld returns A_WB for body b.
func (p *Plant) EvalBodySpatialAccelerationInWorld(ctx *Context, b *Body) (spatial.Acceleration, error) {
	return b.EvalSpatialAccelerationInWorld(ctx)
}

// EvalBodyPoses returns X_WB for every body, indexed by body index.
func (p *Plant) EvalBodyPoses(ctx *Context) []kinmath.RigidTransform {
	pk := p.evalPositionKinematics(ctx)
	out := make([]kinmath.RigidTransform, len(p.bodies))
	for i, b := range p.bodies {
		out[i] = pk.X_WB[b.node]
	}
	return out
}

// EvalBodySpatialVelocities returns V_WB for every body, indexed by body
// index.
func (p *Plant) EvalBodySpatialVelocities(ctx *Context) []spatial.Velocity {
	vk := p.evalVelocityKinematics(ctx)
	out := make([]spatial.Velocity, len(p.bodies))
	for i, b := range p.bodies {
		out[i] = vk.V_WB[b.node]
	}
	return out
}

// EvalBodySpatialAccelerations returns A_WB for every body, indexed by body
// index.
func (p *Plant) EvalBodySpatialAccelerations(ctx *Context) ([]spatial.Acceleration, error) {
	res, err := p.evalForwardDynamics(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]spatial.Acceleration, len(p.bodies))
	for i, b := range p.bodies {
		out[i] = res.A_WB[b.node]
	}
	return out, nil
}

func (p *Plant) mapVelocityToQDot(q, v []float64) []float64 {
	qdot := make([]float64, p.nq)
	for _, n := range p.nodes[1:] {
		jb := n.joint.base()
		n.joint.mapVelocityToQDot(q[jb.qStart:jb.qStart+jb.nq], v[jb.vStart:jb.vStart+jb.nv], qdot[jb.qStart:jb.qStart+jb.nq])
	}
	return qdot
}

// MapVelocityToQDot returns q̇ = N(q)·v for the positions in ctx.
func (p *Plant) MapVelocityToQDot(ctx *Context, v []float64) ([]float64, error) {
	ctx.checkPlant(p)
	if len(v) != p.nv {
		return nil, fmt.Errorf("%w: %d velocities, plant has %d", ErrDimension, len(v), p.nv)
	}
	return p.mapVelocityToQDot(ctx.q, v), nil
}

// MapQDotToVelocity returns v = N⁺(q)·q̇ for the positions in ctx.
func (p *Plant) MapQDotToVelocity(ctx *Context, qdot []float64) ([]float64, error) {
	ctx.checkPlant(p)
	if len(qdot) != p.nq {
		return nil, fmt.Errorf("%w: %d position rates, plant has %d positions", ErrDimension, len(qdot), p.nq)
	}
	v := make([]float64, p.nv)
	for _, n := range p.nodes[1:] {
		jb := n.joint.base()
		n.joint.mapQDotToVelocity(ctx.q[jb.qStart:jb.qStart+jb.nq], qdot[jb.qStart:jb.qStart+jb.nq], v[jb.vStart:jb.vStart+jb.nv])
	}
	return v, nil
}

// EvalTimeDerivatives returns ẋ = [N(q)·v; v̇].
func (p *Plant) EvalTimeDerivatives(ctx *Context) (dynamo.State, error) {
	vdot, err := p.EvalForwardDynamics(ctx)
	if err != nil {
		return nil, err
	}
	xdot := make(dynamo.State, 0, p.nq+p.nv)
	xdot = append(xdot, p.mapVelocityToQDot(ctx.q, ctx.v)...)
	return append(xdot, vdot...), nil
}

// CalcImplicitTimeDerivativesResidual returns [q̇ − N(q)·v; τ_id(v̇)] for a
// proposed ẋ = [q̇; v̇]. It is zero when ẋ matches the dynamics.
func (p *Plant) CalcImplicitTimeDerivativesResidual(ctx *Context, xdot []float64) ([]float64, error) {
	ctx.checkPlant(p)
	if len(xdot) != p.nq+p.nv {
		return nil, fmt.Errorf("%w: state derivative has %d entries, plant has %d", ErrDimension, len(xdot), p.nq+p.nv)
	}
	residual := make([]float64, 0, p.nq+p.nv)
	for i, qd := range p.mapVelocityToQDot(ctx.q, ctx.v) {
		residual = append(residual, xdot[i]-qd)
	}
	tau := p.inverseDynamics(p.evalPositionKinematics(ctx), p.evalVelocityKinematics(ctx),
		ctx.inertia, xdot[p.nq:], p.calcAppliedForces(ctx))
	return append(residual, tau...), nil
}

// CalcRelativeTransform returns X_AB.
func (p *Plant) CalcRelativeTransform(ctx *Context, frameA, frameB *Frame) kinmath.RigidTransform {
	return frameB.CalcPose(ctx, frameA)
}

// CalcRelativeRotationMatrix returns R_AB.
func (p *Plant) CalcRelativeRotationMatrix(ctx *Context, frameA, frameB *Frame) kinmath.RotationMatrix {
	return frameB.CalcRotationMatrix(ctx, frameA)
}

func (p *Plant) freeJointOf(b *Body) (*FreeJoint, error) {
	if err := p.owns(b); err != nil {
		return nil, err
	}
	j, ok := p.InboardJoint(b).(*FreeJoint)
	if !ok || j.ParentBody().index != WorldIndex {
		return nil, fmt.Errorf("%w: body %q is not a free body of the world", ErrJointType, b.name)
	}
	return j, nil
}

// SetFreeBodyPose sets the free joint of b so that its pose in W is X_WB.
func (p *Plant) SetFreeBodyPose(ctx *Context, b *Body, X_WB kinmath.RigidTransform) error {
	j, err := p.freeJointOf(b)
	if err != nil {
		return err
	}
	X_WF := j.frameF.X_BF
	X_BM := j.frameM.X_BF
	return j.SetPose(ctx, X_WF.Inverse().Mul(X_WB).Mul(X_BM))
}

// SetFreeBodySpatialVelocity sets the free joint of b so that V_WB, measured
// at Bo and expressed in W, is V_WB. It uses the pose already in ctx.
func (p *Plant) SetFreeBodySpatialVelocity(ctx *Context, b *Body, V_WB spatial.Velocity) error {
	j, err := p.freeJointOf(b)
	if err != nil {
		return err
	}
	R_WB := b.EvalPoseInWorld(ctx).R
	V_WM := V_WB.Shift(R_WB.MulVec(j.frameM.X_BF.P))
	R_FW := j.frameF.X_BF.R.Inverse()
	return j.SetSpatialVelocity(ctx, V_WM.ReExpress(R_FW))
}

// Linearize returns the continuous linearization ẋ ≈ A·δx + B·δu about the
// state and applied generalized forces in ctx, with x = [q; v] and u = τ.
// Both Jacobians use central differences on a private copy of ctx.
func (p *Plant) Linearize(ctx *Context) (A, B *mat.Dense, err error) {
	ctx.checkPlant(p)
	ns, nu := p.nq+p.nv, p.nv
	if ns == 0 {
		return nil, nil, fmt.Errorf("%w: plant has no state", ErrDimension)
	}
	work := ctx.Clone()
	x0 := ctx.PositionsAndVelocities()
	u0 := ctx.AppliedGeneralizedForces()

	var evalErr error
	derivative := func(y []float64) {
		xdot, e := p.EvalTimeDerivatives(work)
		if e != nil {
			if evalErr == nil {
				evalErr = e
			}
			return
		}
		copy(y, xdot)
	}

	A = mat.NewDense(ns, ns, nil)
	fd.Jacobian(A, func(y, x []float64) {
		if e := work.SetPositionsAndVelocities(x); e != nil {
			evalErr = e
			return
		}
		derivative(y)
	}, x0, &fd.JacobianSettings{Formula: fd.Central})
	if evalErr != nil {
		return nil, nil, evalErr
	}

	if err := work.SetPositionsAndVelocities(x0); err != nil {
		return nil, nil, err
	}
	B = mat.NewDense(ns, nu, nil)
	fd.Jacobian(B, func(y, u []float64) {
		if e := work.SetAppliedGeneralizedForces(u); e != nil {
			evalErr = e
			return
		}
		derivative(y)
	}, u0, &fd.JacobianSettings{Formula: fd.Central})
	if evalErr != nil {
		return nil, nil, evalErr
	}
	return A, B, nil
}
