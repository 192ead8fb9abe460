package multibody

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/spatial"
)

// MultibodyForces is a set of applied forces: one generalized force per
// velocity and one spatial force per body, applied at the body origin and
// expressed in W.
type MultibodyForces struct {
	Generalized []float64
	Body        []spatial.Force
}

func NewMultibodyForces(p *Plant) *MultibodyForces {
	return &MultibodyForces{
		Generalized: make([]float64, p.nv),
		Body:        make([]spatial.Force, len(p.bodies)),
	}
}

func (f *MultibodyForces) SetZero() {
	clear(f.Generalized)
	clear(f.Body)
}

// AddInForces accumulates o into f.
func (f *MultibodyForces) AddInForces(o *MultibodyForces) {
	for i := range f.Generalized {
		f.Generalized[i] += o.Generalized[i]
	}
	for i := range f.Body {
		f.Body[i] = f.Body[i].Add(o.Body[i])
	}
}

func (f *MultibodyForces) checkSize(p *Plant) error {
	if len(f.Generalized) != p.nv || len(f.Body) != len(p.bodies) {
		return fmt.Errorf("%w: forces sized for %d velocities and %d bodies, plant has %d and %d",
			ErrDimension, len(f.Generalized), len(f.Body), p.nv, len(p.bodies))
	}
	return nil
}

// ForceElement produces state dependent forces. CalcForces adds its
// contribution to forces; it may read ctx through the plant's Eval methods.
type ForceElement interface {
	Name() string
	CalcForces(ctx *Context, forces *MultibodyForces)
	CalcPotentialEnergy(ctx *Context) float64
}

// planted is implemented by force elements that refer to plant elements and
// must be checked against the plant they are added to.
type planted interface {
	checkPlant(p *Plant) error
}

// UniformGravity applies m·g at every body's center of mass.
type UniformGravity struct {
	G mgl64.Vec3
}

func NewUniformGravity(g mgl64.Vec3) *UniformGravity { return &UniformGravity{G: g} }

func (u *UniformGravity) Name() string { return "uniform_gravity" }

func (u *UniformGravity) CalcForces(ctx *Context, forces *MultibodyForces) {
	pk := ctx.plant.evalPositionKinematics(ctx)
	for _, b := range ctx.plant.bodies[1:] {
		M := ctx.inertia[b.index]
		if M.Mass == 0 {
			continue
		}
		p_BoBcm_W := pk.X_WB[b.node].R.MulVec(M.Com)
		f := u.G.Mul(M.Mass)
		forces.Body[b.index] = forces.Body[b.index].Add(spatial.Force{
			Rotational:    p_BoBcm_W.Cross(f),
			Translational: f,
		})
	}
}

// CalcPotentialEnergy returns −Σ m·g·p_WBcm.
func (u *UniformGravity) CalcPotentialEnergy(ctx *Context) float64 {
	pk := ctx.plant.evalPositionKinematics(ctx)
	pe := 0.0
	for _, b := range ctx.plant.bodies[1:] {
		M := ctx.inertia[b.index]
		p_WBcm := pk.X_WB[b.node].TransformPoint(M.Com)
		pe -= M.Mass * u.G.Dot(p_WBcm)
	}
	return pe
}

// RevoluteSpring is a torsional spring τ = −k·(θ − θ₀) on a revolute joint.
type RevoluteSpring struct {
	Joint     *RevoluteJoint
	Nominal   float64
	Stiffness float64
}

func NewRevoluteSpring(j *RevoluteJoint, nominal, stiffness float64) *RevoluteSpring {
	return &RevoluteSpring{Joint: j, Nominal: nominal, Stiffness: stiffness}
}

func (s *RevoluteSpring) Name() string { return s.Joint.Name() + "_spring" }

func (s *RevoluteSpring) checkPlant(p *Plant) error {
	if s.Joint == nil || s.Joint.frameF.plant != p {
		return ErrWrongPlant
	}
	if s.Stiffness < 0 {
		return fmt.Errorf("%w: spring stiffness %g", ErrInvalidParameter, s.Stiffness)
	}
	return nil
}

func (s *RevoluteSpring) CalcForces(ctx *Context, forces *MultibodyForces) {
	forces.Generalized[s.Joint.vStart] -= s.Stiffness * (s.Joint.Angle(ctx) - s.Nominal)
}

func (s *RevoluteSpring) CalcPotentialEnergy(ctx *Context) float64 {
	d := s.Joint.Angle(ctx) - s.Nominal
	return 0.5 * s.Stiffness * d * d
}

// CalcForceElementsContribution returns the forces of every force element
// plus joint damping, for the state in ctx. Applied inputs stored in ctx are
// not included.
func (p *Plant) CalcForceElementsContribution(ctx *Context) *MultibodyForces {
	ctx.checkPlant(p)
	forces := NewMultibodyForces(p)
	for _, fe := range p.forceElements {
		fe.CalcForces(ctx, forces)
	}
	for _, n := range p.nodes[1:] {
		jb := n.joint.base()
		if jb.damping == 0 {
			continue
		}
		for k := 0; k < jb.nv; k++ {
			forces.Generalized[jb.vStart+k] -= jb.damping * ctx.v[jb.vStart+k]
		}
	}
	return forces
}

// calcAppliedForces adds the context inputs to the force element forces.
func (p *Plant) calcAppliedForces(ctx *Context) *MultibodyForces {
	forces := p.CalcForceElementsContribution(ctx)
	for i, t := range ctx.tau {
		forces.Generalized[i] += t
	}
	for i, F := range ctx.applied {
		forces.Body[i] = forces.Body[i].Add(F)
	}
	return forces
}

// CalcPotentialEnergy sums the potential energy of every force element.
func (p *Plant) CalcPotentialEnergy(ctx *Context) float64 {
	ctx.checkPlant(p)
	pe := 0.0
	for _, fe := range p.forceElements {
		pe += fe.CalcPotentialEnergy(ctx)
	}
	return pe
}

// CalcKineticEnergy returns Σ ½·V_WBᵀ·M_B·V_WB.
func (p *Plant) CalcKineticEnergy(ctx *Context) float64 {
	pk := p.evalPositionKinematics(ctx)
	vk := p.evalVelocityKinematics(ctx)
	ke := 0.0
	for i := 1; i < len(p.nodes); i++ {
		M_W := ctx.inertia[p.nodes[i].body.index].ReExpress(pk.X_WB[i].R)
		ke += M_W.KineticEnergy(vk.V_WB[i])
	}
	return ke
}
