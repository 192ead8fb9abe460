package models

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// PendulumParams describe a point mass on a massless rod swinging about the
// world y axis. Damping is viscous, in N·m·s/rad.
type PendulumParams struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func DefaultPendulumParams() PendulumParams {
	return PendulumParams{
		Mass:    DefaultMass,
		Length:  DefaultLength,
		Damping: 0.1,
		Gravity: DefaultGravity,
	}
}

func (p *PendulumParams) fields() paramSet {
	return paramSet{"mass": &p.Mass, "length": &p.Length, "damping": &p.Damping, "gravity": &p.Gravity}
}

func (p *PendulumParams) GetParams() map[string]float64 { return p.fields().values() }

func (p *PendulumParams) SetParam(name string, value float64) error {
	return p.fields().set("pendulum", name, value)
}

func (p PendulumParams) validate() error {
	if err := positive("pendulum", "mass", p.Mass); err != nil {
		return err
	}
	if err := positive("pendulum", "length", p.Length); err != nil {
		return err
	}
	return nonNegative("pendulum", "damping", p.Damping)
}

// AngularAcceleration is the closed-form θ̈ for angle theta from the downward
// vertical, rate omega and joint torque tau.
func (p PendulumParams) AngularAcceleration(theta, omega, tau float64) float64 {
	mlSq := p.Mass * p.Length * p.Length
	return (tau - p.Damping*omega - p.Mass*p.Gravity*p.Length*math.Sin(theta)) / mlSq
}

// Energy is the closed-form kinetic plus potential energy, zero at the pivot
// height.
func (p PendulumParams) Energy(theta, omega float64) float64 {
	ke := 0.5 * p.Mass * p.Length * p.Length * omega * omega
	return ke - p.Mass*p.Gravity*p.Length*math.Cos(theta)
}

// Pendulum is a finalized one-joint plant. State x = [θ; θ̇].
type Pendulum struct {
	*multibody.Plant
	Params PendulumParams
	Bob    *multibody.Body
	Pin    *multibody.RevoluteJoint
}

func NewPendulum(params PendulumParams, opts ...multibody.Option) (*Pendulum, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	if err := plant.SetGravity(down(params.Gravity)); err != nil {
		return nil, err
	}
	bob, err := plant.AddRigidBody("bob", pointMassAt(params.Mass, mgl64.Vec3{0, 0, -params.Length}))
	if err != nil {
		return nil, err
	}
	pin, err := plant.AddRevoluteJoint("pin", plant.WorldBody(), bob, mgl64.Vec3{0, 1, 0},
		multibody.WithDamping(params.Damping))
	if err != nil {
		return nil, err
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return &Pendulum{Plant: plant, Params: params, Bob: bob, Pin: pin}, nil
}

func pointMassAt(mass float64, p mgl64.Vec3) spatial.Inertia {
	return spatial.NewInertia(mass, p, spatial.UnitInertiaPointMass(p))
}
