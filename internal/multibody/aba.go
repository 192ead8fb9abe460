package multibody

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/spatial"
)

// articulatedInertias is the configuration dependent half of the articulated
// body algorithm. Per body node, about Bo and expressed in W:
//
//	P⁺ = P − U·D⁻¹·Uᵀ,  U = P·H,  D = Hᵀ·P·H
//
// where P sums the body's own inertia and the shifted P⁺ of its children.
type articulatedInertias struct {
	rev   revision
	M_W   []spatial.Inertia
	Pplus []spatial.ArticulatedInertia
	U     [][]spatial.Force
	Dinv  []*mat.SymDense
	err   error
}

// forwardDynamics is the state and input dependent half: v̇ and the body
// accelerations A_WB.
type forwardDynamics struct {
	rev  revision
	vdot []float64
	A_WB []spatial.Acceleration
	err  error
}

func (p *Plant) evalArticulatedInertias(ctx *Context) *articulatedInertias {
	if abi := ctx.articulated; abi != nil && abi.rev == ctx.rev.inertias() {
		return abi
	}
	abi := p.calcArticulatedInertias(ctx.inertia, p.evalPositionKinematics(ctx))
	abi.rev = ctx.rev.inertias()
	ctx.articulated = abi
	return abi
}

func (p *Plant) evalForwardDynamics(ctx *Context) (*forwardDynamics, error) {
	ctx.checkPlant(p)
	if fd := ctx.forwardCache; fd != nil && fd.rev == ctx.rev {
		return fd, fd.err
	}
	fd := p.calcForwardDynamics(ctx)
	fd.rev = ctx.rev
	ctx.forwardCache = fd
	if fd.err != nil {
		p.logger.Debug("forward dynamics failed", slog.Any("error", fd.err))
	}
	return fd, fd.err
}

func (p *Plant) calcArticulatedInertias(inertia []spatial.Inertia, pk *positionKinematics) *articulatedInertias {
	n := len(p.nodes)
	abi := &articulatedInertias{
		M_W:   make([]spatial.Inertia, n),
		Pplus: make([]spatial.ArticulatedInertia, n),
		U:     make([][]spatial.Force, n),
		Dinv:  make([]*mat.SymDense, n),
	}
	// Composite rigid body inertia of each subtree. Its hinge projection is
	// the scale the hinge inertia D is measured against.
	composite := make([]spatial.ArticulatedInertia, n)

	for i := n - 1; i >= 1; i-- {
		nd := &p.nodes[i]
		M_W := inertia[nd.body.index].ReExpress(pk.X_WB[i].R)
		abi.M_W[i] = M_W

		P := spatial.FromInertia(M_W)
		K := P
		for _, c := range nd.children {
			p_CoBo_W := pk.p_PoBo_W[c].Mul(-1)
			P = P.Add(abi.Pplus[c].Shift(p_CoBo_W))
			K = K.Add(composite[c].Shift(p_CoBo_W))
		}
		composite[i] = K

		H := pk.H_PB_W[i]
		if len(H) == 0 {
			abi.Pplus[i] = P
			continue
		}

		U := P.MulHinge(H)
		D := H.TransposeMulForces(U)
		var chol mat.Cholesky
		if !chol.Factorize(D) || !p.pivotsAboveTolerance(&chol, K.Project(H)) {
			abi.err = &SingularHingeInertiaError{NodeIndex: i}
			return abi
		}
		Dinv := new(mat.SymDense)
		if err := chol.InverseTo(Dinv); err != nil {
			abi.err = &SingularHingeInertiaError{NodeIndex: i}
			return abi
		}
		abi.U[i] = U
		abi.Dinv[i] = Dinv
		abi.Pplus[i] = P.SubOuter(U, Dinv)
	}
	return abi
}

// pivotsAboveTolerance reports whether every squared Cholesky pivot of D
// exceeds hingeTol times the matching diagonal entry of the composite rigid
// body hinge inertia. A pivot at round-off level of the subtree inertia
// means the articulated inertia along that axis cancelled away.
func (p *Plant) pivotsAboveTolerance(chol *mat.Cholesky, composite *mat.SymDense) bool {
	U := chol.RawU()
	for i := 0; i < composite.SymmetricDim(); i++ {
		l := U.At(i, i)
		if !(l*l > p.hingeTol*composite.At(i, i)) {
			return false
		}
	}
	return true
}

func (p *Plant) calcForwardDynamics(ctx *Context) *forwardDynamics {
	n := len(p.nodes)
	fd := &forwardDynamics{
		vdot: make([]float64, p.nv),
		A_WB: make([]spatial.Acceleration, n),
	}
	if p.nv == 0 {
		return fd
	}

	abi := p.evalArticulatedInertias(ctx)
	if abi.err != nil {
		fd.err = abi.err
		return fd
	}
	pk := p.evalPositionKinematics(ctx)
	vk := p.evalVelocityKinematics(ctx)
	forces := p.calcAppliedForces(ctx)

	Ab := make([]spatial.Acceleration, n)
	Zplus := make([]spatial.Force, n)
	u := make([][]float64, n)

	// Tip to base: articulated forces.
	for i := n - 1; i >= 1; i-- {
		nd := &p.nodes[i]
		Ab[i] = biasAcceleration(pk, vk, i, nd.parent)

		w_WB := vk.V_WB[i].Rotational
		Z := abi.M_W[i].BiasForce(w_WB).Sub(forces.Body[nd.body.index])
		for _, c := range nd.children {
			Z = Z.Add(Zplus[c].Shift(pk.p_PoBo_W[c].Mul(-1)))
		}

		Zp := Z.Add(abi.Pplus[i].MulAcceleration(Ab[i]))
		H := pk.H_PB_W[i]
		if len(H) > 0 {
			vStart := nd.joint.base().vStart
			ui := H.TransposeMulForce(Z)
			for k := range ui {
				ui[k] = forces.Generalized[vStart+k] - ui[k]
			}
			u[i] = ui
			g := symMulVec(abi.Dinv[i], ui)
			for k, Uk := range abi.U[i] {
				Zp = Zp.Add(Uk.Scale(g[k]))
			}
		}
		Zplus[i] = Zp
	}

	// Base to tip: accelerations.
	for i := 1; i < n; i++ {
		nd := &p.nodes[i]
		Ap := rigidShift(fd.A_WB[nd.parent], pk.p_PoBo_W[i]).Add(Ab[i])
		H := pk.H_PB_W[i]
		if len(H) == 0 {
			fd.A_WB[i] = Ap
			continue
		}
		rhs := make([]float64, len(H))
		for k, Uk := range abi.U[i] {
			rhs[k] = u[i][k] - Uk.Dot(spatial.Velocity(Ap))
		}
		vdot := symMulVec(abi.Dinv[i], rhs)
		copy(fd.vdot[nd.joint.base().vStart:], vdot)
		fd.A_WB[i] = Ap.Add(H.MulAcceleration(vdot))
	}
	return fd
}

func symMulVec(a *mat.SymDense, x []float64) []float64 {
	var y mat.VecDense
	y.MulVec(a, mat.NewVecDense(len(x), x))
	return y.RawVector().Data
}
