package models

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

type ChainJoint string

const (
	ChainRevolute  ChainJoint = "revolute"
	ChainPrismatic ChainJoint = "prismatic"
)

// ChainParams describe a serial chain of cubes. Revolute chains turn about z,
// prismatic chains slide along x. Each joint sits Length along x from the
// previous one.
type ChainParams struct {
	Joint   ChainJoint
	Masses  []float64
	Length  float64
	Gravity float64
}

func DefaultChainParams() ChainParams {
	return ChainParams{Joint: ChainPrismatic, Masses: []float64{1, 1, 1}, Length: 3, Gravity: DefaultGravity}
}

func (c *ChainParams) GetParams() map[string]float64 {
	revolute := 0.0
	if c.Joint == ChainRevolute {
		revolute = 1
	}
	out := map[string]float64{
		"links": float64(len(c.Masses)), "length": c.Length, "gravity": c.Gravity, "revolute": revolute,
	}
	for i, m := range c.Masses {
		out[fmt.Sprintf("mass%d", i)] = m
	}
	return out
}

// SetParam accepts "links" to resize the chain (new links get mass 1),
// "revolute" (nonzero selects revolute joints) and "massN" for the N-th link.
func (c *ChainParams) SetParam(name string, value float64) error {
	if name == "revolute" {
		c.Joint = ChainPrismatic
		if value != 0 {
			c.Joint = ChainRevolute
		}
		return nil
	}
	if name == "links" {
		n := int(value)
		if n < 1 || float64(n) != value {
			return fmt.Errorf("%w: chain.links must be a positive integer, got %g", dynamo.ErrParameterBounds, value)
		}
		for len(c.Masses) < n {
			c.Masses = append(c.Masses, DefaultMass)
		}
		c.Masses = c.Masses[:n]
		return nil
	}
	fields := paramSet{"length": &c.Length, "gravity": &c.Gravity}
	for i := range c.Masses {
		fields[fmt.Sprintf("mass%d", i)] = &c.Masses[i]
	}
	return fields.set("chain", name, value)
}

// CubicalLinkInertia is the spatial inertia about its inboard corner of a
// solid cube whose center lies Length/2 along x.
func CubicalLinkInertia(mass, length float64) spatial.Inertia {
	p_BoBcm := mgl64.Vec3{length / 2, 0, 0}
	G := spatial.ShiftFromCenterOfMass(spatial.UnitInertiaSolidCube(length), p_BoBcm.Mul(-1))
	return spatial.NewInertia(mass, p_BoBcm, G)
}

// Chain is a serial chain used to probe ill-conditioned articulated
// inertias. Masses may be zero.
type Chain struct {
	*multibody.Plant
	Params ChainParams
	Links  []*multibody.Body
	Joints []multibody.Joint
}

func NewChain(params ChainParams, opts ...multibody.Option) (*Chain, error) {
	if len(params.Masses) == 0 {
		return nil, fmt.Errorf("%w: chain needs at least one link", dynamo.ErrParameterBounds)
	}
	if err := positive("chain", "length", params.Length); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	if err := plant.SetGravity(down(params.Gravity)); err != nil {
		return nil, err
	}
	c := &Chain{Plant: plant, Params: params}
	parent := plant.WorldBody()
	for i, m := range params.Masses {
		if err := nonNegative("chain", fmt.Sprintf("mass%d", i), m); err != nil {
			return nil, err
		}
		link, err := plant.AddRigidBody(fmt.Sprintf("link%d", i), CubicalLinkInertia(m, params.Length))
		if err != nil {
			return nil, err
		}
		var offset []multibody.JointOption
		if i > 0 {
			offset = append(offset, multibody.WithParentOffset(
				kinmath.TranslationTransform(mgl64.Vec3{params.Length, 0, 0})))
		}
		name := fmt.Sprintf("joint%d", i)
		var j multibody.Joint
		switch params.Joint {
		case ChainRevolute:
			j, err = plant.AddRevoluteJoint(name, parent, link, mgl64.Vec3{0, 0, 1}, offset...)
		case ChainPrismatic:
			j, err = plant.AddPrismaticJoint(name, parent, link, mgl64.Vec3{1, 0, 0}, offset...)
		default:
			return nil, fmt.Errorf("%w: chain joint %q", multibody.ErrJointType, params.Joint)
		}
		if err != nil {
			return nil, err
		}
		c.Links = append(c.Links, link)
		c.Joints = append(c.Joints, j)
		parent = link
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}
