package multibody

import (
	"fmt"
	"math"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

type BodyIndex int

// WorldIndex is the index of the world body, which is also body node 0.
const WorldIndex BodyIndex = 0

// Body is a rigid body. Its default spatial inertia M_BBo_B is about the body
// origin and expressed in the body frame; a context may override it.
type Body struct {
	plant          *Plant
	index          BodyIndex
	name           string
	defaultInertia spatial.Inertia
	frame          *Frame
	node           int
}

func (b *Body) Index() BodyIndex { return b.index }
func (b *Body) Name() string     { return b.name }

// NodeIndex is the body's position in the parent-before-child ordering
// computed by Finalize.
func (b *Body) NodeIndex() int { return b.node }

func (b *Body) BodyFrame() *Frame { return b.frame }

func (b *Body) DefaultMass() float64 { return b.defaultInertia.Mass }

func (b *Body) DefaultSpatialInertia() spatial.Inertia { return b.defaultInertia }

// Mass returns the mass stored in ctx.
func (b *Body) Mass(ctx *Context) float64 {
	return b.SpatialInertia(ctx).Mass
}

// SpatialInertia returns M_BBo_B stored in ctx.
func (b *Body) SpatialInertia(ctx *Context) spatial.Inertia {
	ctx.checkPlant(b.plant)
	return ctx.inertia[b.index]
}

// SetMass changes the mass in ctx and keeps the center of mass and the unit
// inertia. Zero is accepted; forward dynamics reports the singularity.
func (b *Body) SetMass(ctx *Context, mass float64) error {
	if math.IsNaN(mass) || math.IsInf(mass, 0) {
		return fmt.Errorf("%w: body %q mass %g", ErrNonFinite, b.name, mass)
	}
	return b.SetSpatialInertia(ctx, b.SpatialInertia(ctx).WithMass(mass))
}

// SetSpatialInertia replaces M_BBo_B in ctx after validating it.
func (b *Body) SetSpatialInertia(ctx *Context, M_BBo_B spatial.Inertia) error {
	ctx.checkPlant(b.plant)
	if b.index == WorldIndex {
		return fmt.Errorf("%w: the world body has no inertia", ErrTopology)
	}
	if err := M_BBo_B.Validate(); err != nil {
		return fmt.Errorf("body %q: %w", b.name, err)
	}
	ctx.inertia[b.index] = M_BBo_B
	ctx.bumpParams()
	return nil
}

// EvalPoseInWorld returns X_WB.
func (b *Body) EvalPoseInWorld(ctx *Context) kinmath.RigidTransform {
	return b.plant.evalPositionKinematics(ctx).X_WB[b.node]
}

// EvalSpatialVelocityInWorld returns V_WB, measured at Bo and expressed in W.
func (b *Body) EvalSpatialVelocityInWorld(ctx *Context) spatial.Velocity {
	return b.plant.evalVelocityKinematics(ctx).V_WB[b.node]
}

// EvalSpatialAccelerationInWorld returns A_WB, measured at Bo and expressed in
// W. It runs forward dynamics and fails with it.
func (b *Body) EvalSpatialAccelerationInWorld(ctx *Context) (spatial.Acceleration, error) {
	fd, err := b.plant.evalForwardDynamics(ctx)
	if err != nil {
		return spatial.Acceleration{}, err
	}
	return fd.A_WB[b.node], nil
}
