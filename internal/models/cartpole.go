package models

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// CartPoleParams describe a cart on a rail along x carrying a pole with a
// point mass at its tip. θ = 0 hangs down; θ = π is upright.
type CartPoleParams struct {
	CartMass   float64
	PoleMass   float64
	PoleLength float64
	Gravity    float64
}

func DefaultCartPoleParams() CartPoleParams {
	return CartPoleParams{
		CartMass:   10,
		PoleMass:   1,
		PoleLength: 0.5,
		Gravity:    DefaultGravity,
	}
}

func (c *CartPoleParams) fields() paramSet {
	return paramSet{
		"cart_mass":   &c.CartMass,
		"pole_mass":   &c.PoleMass,
		"pole_length": &c.PoleLength,
		"gravity":     &c.Gravity,
	}
}

func (c *CartPoleParams) GetParams() map[string]float64 { return c.fields().values() }

func (c *CartPoleParams) SetParam(name string, value float64) error {
	return c.fields().set("cartpole", name, value)
}

func (c CartPoleParams) validate() error {
	if err := positive("cartpole", "cart_mass", c.CartMass); err != nil {
		return err
	}
	if err := positive("cartpole", "pole_mass", c.PoleMass); err != nil {
		return err
	}
	return positive("cartpole", "pole_length", c.PoleLength)
}

// Accelerations returns the closed-form ẍ and θ̈ for a cart force f and a
// pole torque tau.
func (c CartPoleParams) Accelerations(theta, omega, f, tau float64) (xdd, thdd float64) {
	mc, mp, l, g := c.CartMass, c.PoleMass, c.PoleLength, c.Gravity
	s, co := math.Sin(theta), math.Cos(theta)

	// (mc+mp)·ẍ − mp·l·cosθ·θ̈ = f − mp·l·sinθ·θ̇²
	// −mp·l·cosθ·ẍ + mp·l²·θ̈ = tau − mp·g·l·sinθ
	a11, a12, a22 := mc+mp, -mp*l*co, mp*l*l
	b1 := f - mp*l*s*omega*omega
	b2 := tau - mp*g*l*s
	det := a11*a22 - a12*a12
	xdd = (a22*b1 - a12*b2) / det
	thdd = (a11*b2 - a12*b1) / det
	return xdd, thdd
}

// UprightLinearization returns the nonzero entries of the state matrix
// linearized about the upright pose at rest: ∂ẍ/∂θ and ∂θ̈/∂θ.
func (c CartPoleParams) UprightLinearization() (dxddDTheta, dthddDTheta float64) {
	mc, mp, l, g := c.CartMass, c.PoleMass, c.PoleLength, c.Gravity
	return -mp * g / mc, (mc + mp) * g / (mc * l)
}

type CartPole struct {
	*multibody.Plant
	Params CartPoleParams
	Cart   *multibody.Body
	Pole   *multibody.Body
	Slider *multibody.PrismaticJoint
	Hinge  *multibody.RevoluteJoint
}

func NewCartPole(params CartPoleParams, opts ...multibody.Option) (*CartPole, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	if err := plant.SetGravity(down(params.Gravity)); err != nil {
		return nil, err
	}
	cart, err := plant.AddRigidBody("cart", spatial.NewInertia(params.CartMass, mgl64.Vec3{},
		spatial.UnitInertiaSolidBox(0.6, 0.3, 0.2)))
	if err != nil {
		return nil, err
	}
	pole, err := plant.AddRigidBody("pole", pointMassAt(params.PoleMass, mgl64.Vec3{0, 0, -params.PoleLength}))
	if err != nil {
		return nil, err
	}
	slider, err := plant.AddPrismaticJoint("slider", plant.WorldBody(), cart, mgl64.Vec3{1, 0, 0})
	if err != nil {
		return nil, err
	}
	hinge, err := plant.AddRevoluteJoint("hinge", cart, pole, mgl64.Vec3{0, 1, 0})
	if err != nil {
		return nil, err
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return &CartPole{Plant: plant, Params: params, Cart: cart, Pole: pole, Slider: slider, Hinge: hinge}, nil
}
