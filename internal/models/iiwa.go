package models

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// IiwaParams configure the KUKA LBR iiwa 14 arm. A floating arm gets a free
// joint between the world and its base link.
type IiwaParams struct {
	Floating bool
	Gravity  float64
	Damping  float64
}

func DefaultIiwaParams() IiwaParams {
	return IiwaParams{Gravity: DefaultGravity}
}

func (p *IiwaParams) GetParams() map[string]float64 {
	floating := 0.0
	if p.Floating {
		floating = 1
	}
	return map[string]float64{"floating": floating, "gravity": p.Gravity, "damping": p.Damping}
}

func (p *IiwaParams) SetParam(name string, value float64) error {
	if name == "floating" {
		p.Floating = value != 0
		return nil
	}
	return paramSet{"gravity": &p.Gravity, "damping": &p.Damping}.set("iiwa", name, value)
}

type iiwaLink struct {
	mass    float64
	com     mgl64.Vec3
	inertia mgl64.Vec3
	xyz     mgl64.Vec3 // joint origin in the previous link
	rpy     mgl64.Vec3
}

var iiwaLinks = [8]iiwaLink{
	{mass: 5, com: mgl64.Vec3{-0.1, 0, 0.07}, inertia: mgl64.Vec3{0.05, 0.06, 0.03}},
	{mass: 5.76, com: mgl64.Vec3{0, -0.03, 0.12}, inertia: mgl64.Vec3{0.033, 0.0333, 0.0123},
		xyz: mgl64.Vec3{0, 0, 0.1575}},
	{mass: 6.35, com: mgl64.Vec3{0.0003, 0.059, 0.042}, inertia: mgl64.Vec3{0.0305, 0.0304, 0.011},
		xyz: mgl64.Vec3{0, 0, 0.2025}, rpy: mgl64.Vec3{math.Pi / 2, 0, math.Pi}},
	{mass: 3.5, com: mgl64.Vec3{0, 0.03, 0.13}, inertia: mgl64.Vec3{0.025, 0.0238, 0.0076},
		xyz: mgl64.Vec3{0, 0.2045, 0}, rpy: mgl64.Vec3{math.Pi / 2, 0, math.Pi}},
	{mass: 3.5, com: mgl64.Vec3{0, 0.067, 0.034}, inertia: mgl64.Vec3{0.017, 0.0164, 0.006},
		xyz: mgl64.Vec3{0, 0, 0.2155}, rpy: mgl64.Vec3{math.Pi / 2, 0, 0}},
	{mass: 3.5, com: mgl64.Vec3{0.0001, 0.021, 0.076}, inertia: mgl64.Vec3{0.01, 0.0087, 0.00449},
		xyz: mgl64.Vec3{0, 0.1845, 0}, rpy: mgl64.Vec3{-math.Pi / 2, math.Pi, 0}},
	{mass: 1.8, com: mgl64.Vec3{0, 0.0006, 0.0004}, inertia: mgl64.Vec3{0.0049, 0.0047, 0.0036},
		xyz: mgl64.Vec3{0, 0, 0.2155}, rpy: mgl64.Vec3{math.Pi / 2, 0, 0}},
	{mass: 1.2, com: mgl64.Vec3{0, 0, 0.02}, inertia: mgl64.Vec3{0.001, 0.001, 0.001},
		xyz: mgl64.Vec3{0, 0.081, 0}, rpy: mgl64.Vec3{-math.Pi / 2, math.Pi, 0}},
}

// rollPitchYaw returns Rz(yaw)·Ry(pitch)·Rx(roll).
func rollPitchYaw(rpy mgl64.Vec3) kinmath.RotationMatrix {
	R := kinmath.MakeZRotation(rpy[2]).Mul(kinmath.MakeYRotation(rpy[1])).Mul(kinmath.MakeXRotation(rpy[0]))
	return kinmath.MustRotation(R.Matrix())
}

// Iiwa is a seven joint arm; every joint is revolute about its own z axis.
type Iiwa struct {
	*multibody.Plant
	Params IiwaParams
	Links  [8]*multibody.Body
	Joints [7]*multibody.RevoluteJoint
}

func NewIiwa(params IiwaParams, opts ...multibody.Option) (*Iiwa, error) {
	if err := nonNegative("iiwa", "damping", params.Damping); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	if err := plant.SetGravity(down(params.Gravity)); err != nil {
		return nil, err
	}
	arm := &Iiwa{Plant: plant, Params: params}
	for i, l := range iiwaLinks {
		M, err := spatial.MakeFromCentralInertia(l.mass, l.com, mgl64.Diag3(l.inertia))
		if err != nil {
			return nil, fmt.Errorf("iiwa link %d: %w", i, err)
		}
		if arm.Links[i], err = plant.AddRigidBody(fmt.Sprintf("iiwa_link_%d", i), M); err != nil {
			return nil, err
		}
		if i == 0 {
			continue
		}
		X_PF := kinmath.NewRigidTransform(rollPitchYaw(l.rpy), l.xyz)
		j, err := plant.AddRevoluteJoint(fmt.Sprintf("iiwa_joint_%d", i), arm.Links[i-1], arm.Links[i],
			mgl64.Vec3{0, 0, 1}, multibody.WithParentOffset(X_PF), multibody.WithDamping(params.Damping))
		if err != nil {
			return nil, err
		}
		arm.Joints[i-1] = j
	}
	if !params.Floating {
		if _, err := plant.WeldFrames(plant.WorldFrame(), arm.Links[0].BodyFrame(), kinmath.IdentityTransform()); err != nil {
			return nil, err
		}
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return arm, nil
}

// SetJointAngles sets the seven arm joints. A floating base keeps its pose.
func (a *Iiwa) SetJointAngles(ctx *multibody.Context, q [7]float64) error {
	for i, j := range a.Joints {
		if err := j.SetAngle(ctx, q[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetJointRates sets the seven arm joint rates.
func (a *Iiwa) SetJointRates(ctx *multibody.Context, v [7]float64) error {
	for i, j := range a.Joints {
		if err := j.SetAngularRate(ctx, v[i]); err != nil {
			return err
		}
	}
	return nil
}
