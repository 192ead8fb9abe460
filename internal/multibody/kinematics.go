package multibody

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// positionKinematics holds, per body node, the pose of the body in W and the
// across-joint quantities the dynamics passes need. Vectors are expressed in
// W; P is the parent body, F and M the joint frames.
type positionKinematics struct {
	rev      revision
	X_WB     []kinmath.RigidTransform
	p_PoBo_W []mgl64.Vec3
	p_MoBo_W []mgl64.Vec3
	// H_PB_W maps the joint velocities to V_PB_W, measured at Bo.
	H_PB_W []spatial.Matrix6xN
}

type velocityKinematics struct {
	rev    revision
	V_WB   []spatial.Velocity
	V_PB_W []spatial.Velocity
}

func (p *Plant) evalPositionKinematics(ctx *Context) *positionKinematics {
	ctx.checkPlant(p)
	if pk := ctx.position; pk != nil && pk.rev == ctx.rev.positions() {
		return pk
	}
	pk := p.calcPositionKinematics(ctx.q)
	pk.rev = ctx.rev.positions()
	ctx.position = pk
	return pk
}

func (p *Plant) evalVelocityKinematics(ctx *Context) *velocityKinematics {
	ctx.checkPlant(p)
	if vk := ctx.velocity; vk != nil && vk.rev == ctx.rev.velocities() {
		return vk
	}
	vk := p.calcVelocityKinematics(p.evalPositionKinematics(ctx), ctx.v)
	vk.rev = ctx.rev.velocities()
	ctx.velocity = vk
	return vk
}

func (p *Plant) calcPositionKinematics(q []float64) *positionKinematics {
	n := len(p.nodes)
	pk := &positionKinematics{
		X_WB:     make([]kinmath.RigidTransform, n),
		p_PoBo_W: make([]mgl64.Vec3, n),
		p_MoBo_W: make([]mgl64.Vec3, n),
		H_PB_W:   make([]spatial.Matrix6xN, n),
	}
	pk.X_WB[0] = kinmath.IdentityTransform()

	for i := 1; i < n; i++ {
		nd := &p.nodes[i]
		j := nd.joint
		jb := j.base()
		qj := q[jb.qStart : jb.qStart+jb.nq]

		X_PF := jb.frameF.X_BF
		X_BM := jb.frameM.X_BF
		X_PB := X_PF.Mul(j.poseFM(qj)).Mul(X_BM.Inverse())

		X_WP := pk.X_WB[nd.parent]
		X_WB := X_WP.Mul(X_PB)
		R_WF := X_WP.R.Mul(X_PF.R)
		p_MoBo_W := X_WB.R.MulVec(X_BM.P.Mul(-1))

		pk.X_WB[i] = X_WB
		pk.p_PoBo_W[i] = X_WB.P.Sub(X_WP.P)
		pk.p_MoBo_W[i] = p_MoBo_W
		pk.H_PB_W[i] = j.hingeFM(qj).ReExpress(R_WF).Shift(p_MoBo_W)
	}
	return pk
}

func (p *Plant) calcVelocityKinematics(pk *positionKinematics, v []float64) *velocityKinematics {
	n := len(p.nodes)
	vk := &velocityKinematics{
		V_WB:   make([]spatial.Velocity, n),
		V_PB_W: make([]spatial.Velocity, n),
	}
	for i := 1; i < n; i++ {
		nd := &p.nodes[i]
		jb := nd.joint.base()
		V_PB_W := pk.H_PB_W[i].MulVec(v[jb.vStart : jb.vStart+jb.nv])
		vk.V_PB_W[i] = V_PB_W
		vk.V_WB[i] = vk.V_WB[nd.parent].ComposeWithMovingFrameVelocity(pk.p_PoBo_W[i], V_PB_W)
	}
	return vk
}

// biasAcceleration returns Ab, the part of A_WB that does not depend on the
// parent's acceleration or on v̇:
//
//	Ab = [ω_WP×ω_PB; ω_WP×(ω_WP×p_PoBo) + 2ω_WP×v_PB + ω_PB×(ω_PB×p_MoBo)]
//
// so that A_WB = [α_WP; a_WP + α_WP×p_PoBo] + Ab + H_PB·v̇.
func biasAcceleration(pk *positionKinematics, vk *velocityKinematics, i, parent int) spatial.Acceleration {
	w_WP := vk.V_WB[parent].Rotational
	V_PB := vk.V_PB_W[i]
	p := pk.p_PoBo_W[i]
	pm := pk.p_MoBo_W[i]
	return spatial.Acceleration{
		Rotational: w_WP.Cross(V_PB.Rotational),
		Translational: w_WP.Cross(w_WP.Cross(p)).
			Add(w_WP.Cross(V_PB.Translational).Mul(2)).
			Add(V_PB.Rotational.Cross(V_PB.Rotational.Cross(pm))),
	}
}

// rigidShift moves A_WP to the parent point coincident with Bo, omitting the
// centripetal term carried by biasAcceleration.
func rigidShift(A_WP spatial.Acceleration, p_PoBo_W mgl64.Vec3) spatial.Acceleration {
	return A_WP.Shift(p_PoBo_W, mgl64.Vec3{})
}
