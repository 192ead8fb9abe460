package models

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/multibody"
)

// DoublePendulumParams describe two point masses on massless rods, both
// swinging about y.
type DoublePendulumParams struct {
	M1, M2  float64
	L1, L2  float64
	Gravity float64
}

func DefaultDoublePendulumParams() DoublePendulumParams {
	return DoublePendulumParams{
		M1: DefaultMass, M2: DefaultMass,
		L1: DefaultLength, L2: DefaultLength,
		Gravity: DefaultGravity,
	}
}

func (d *DoublePendulumParams) fields() paramSet {
	return paramSet{"m1": &d.M1, "m2": &d.M2, "l1": &d.L1, "l2": &d.L2, "gravity": &d.Gravity}
}

func (d *DoublePendulumParams) GetParams() map[string]float64 { return d.fields().values() }

func (d *DoublePendulumParams) SetParam(name string, value float64) error {
	return d.fields().set("double_pendulum", name, value)
}

func (d DoublePendulumParams) validate() error {
	for name, v := range map[string]float64{"m1": d.M1, "m2": d.M2, "l1": d.L1, "l2": d.L2} {
		if err := positive("double_pendulum", name, v); err != nil {
			return err
		}
	}
	return nil
}

// AbsoluteAccelerations returns the closed-form angular accelerations of
// both rods for absolute angles theta1, theta2 from the downward vertical.
func (d DoublePendulumParams) AbsoluteAccelerations(theta1, theta2, omega1, omega2 float64) (alpha1, alpha2 float64) {
	m1, m2, l1, l2, g := d.M1, d.M2, d.L1, d.L2, d.Gravity

	delta := theta2 - theta1
	sinD, cosD := math.Sin(delta), math.Cos(delta)

	den1 := (m1+m2)*l1 - m2*l1*cosD*cosD
	den2 := (l2 / l1) * den1

	alpha1 = (m2*l1*omega1*omega1*sinD*cosD +
		m2*g*math.Sin(theta2)*cosD +
		m2*l2*omega2*omega2*sinD -
		(m1+m2)*g*math.Sin(theta1)) / den1

	alpha2 = (-m2*l2*omega2*omega2*sinD*cosD +
		(m1+m2)*g*math.Sin(theta1)*cosD -
		(m1+m2)*l1*omega1*omega1*sinD -
		(m1+m2)*g*math.Sin(theta2)) / den2

	return alpha1, alpha2
}

// Energy is the closed-form total energy for absolute angles.
func (d DoublePendulumParams) Energy(theta1, theta2, omega1, omega2 float64) float64 {
	m1, m2, l1, l2, g := d.M1, d.M2, d.L1, d.L2, d.Gravity

	v1sq := l1 * l1 * omega1 * omega1
	v2sq := l1*l1*omega1*omega1 + l2*l2*omega2*omega2 +
		2*l1*l2*omega1*omega2*math.Cos(theta1-theta2)

	ke := 0.5*m1*v1sq + 0.5*m2*v2sq
	y1 := -l1 * math.Cos(theta1)
	y2 := y1 - l2*math.Cos(theta2)
	pe := m1*g*y1 + m2*g*y2

	return ke + pe
}

// DoublePendulum has a shoulder on the world and an elbow at the end of the
// upper rod. The elbow angle is relative: θ2 = q0 + q1.
type DoublePendulum struct {
	*multibody.Plant
	Params   DoublePendulumParams
	Upper    *multibody.Body
	Lower    *multibody.Body
	Shoulder *multibody.RevoluteJoint
	Elbow    *multibody.RevoluteJoint
}

func NewDoublePendulum(params DoublePendulumParams, opts ...multibody.Option) (*DoublePendulum, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	if err := plant.SetGravity(down(params.Gravity)); err != nil {
		return nil, err
	}
	y := mgl64.Vec3{0, 1, 0}
	upper, err := plant.AddRigidBody("upper", pointMassAt(params.M1, mgl64.Vec3{0, 0, -params.L1}))
	if err != nil {
		return nil, err
	}
	lower, err := plant.AddRigidBody("lower", pointMassAt(params.M2, mgl64.Vec3{0, 0, -params.L2}))
	if err != nil {
		return nil, err
	}
	shoulder, err := plant.AddRevoluteJoint("shoulder", plant.WorldBody(), upper, y)
	if err != nil {
		return nil, err
	}
	elbow, err := plant.AddRevoluteJoint("elbow", upper, lower, y,
		multibody.WithParentOffset(kinmath.TranslationTransform(mgl64.Vec3{0, 0, -params.L1})))
	if err != nil {
		return nil, err
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return &DoublePendulum{
		Plant: plant, Params: params,
		Upper: upper, Lower: lower,
		Shoulder: shoulder, Elbow: elbow,
	}, nil
}
