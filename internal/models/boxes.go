package models

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

// WeldedBoxesParams describe two equal cubes, the first welded to the world
// and the second welded to the first one cube length along x.
type WeldedBoxesParams struct {
	Length float64
	Mass   float64
}

func DefaultWeldedBoxesParams() WeldedBoxesParams {
	return WeldedBoxesParams{Length: 1.5, Mass: 2}
}

func (w *WeldedBoxesParams) fields() paramSet {
	return paramSet{"length": &w.Length, "mass": &w.Mass}
}

func (w *WeldedBoxesParams) GetParams() map[string]float64 { return w.fields().values() }

func (w *WeldedBoxesParams) SetParam(name string, value float64) error {
	return w.fields().set("welded_boxes", name, value)
}

// WeldedBoxes has no degrees of freedom.
type WeldedBoxes struct {
	*multibody.Plant
	Params WeldedBoxesParams
	BoxA   *multibody.Body
	BoxB   *multibody.Body
}

func NewWeldedBoxes(params WeldedBoxesParams, opts ...multibody.Option) (*WeldedBoxes, error) {
	if err := positive("welded_boxes", "length", params.Length); err != nil {
		return nil, err
	}
	if err := positive("welded_boxes", "mass", params.Mass); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	M := spatial.NewInertia(params.Mass, mgl64.Vec3{}, spatial.UnitInertiaSolidCube(params.Length))
	boxA, err := plant.AddRigidBody("boxA", M)
	if err != nil {
		return nil, err
	}
	boxB, err := plant.AddRigidBody("boxB", M)
	if err != nil {
		return nil, err
	}
	if _, err := plant.WeldFrames(plant.WorldFrame(), boxA.BodyFrame(), kinmath.IdentityTransform()); err != nil {
		return nil, err
	}
	X_AB := kinmath.TranslationTransform(mgl64.Vec3{params.Length, 0, 0})
	if _, err := plant.WeldFrames(boxA.BodyFrame(), boxB.BodyFrame(), X_AB); err != nil {
		return nil, err
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return &WeldedBoxes{Plant: plant, Params: params, BoxA: boxA, BoxB: boxB}, nil
}

// InclinedPlaneParams describe a box-shaped block released above a plane
// tilted by Slope radians about the world y axis. The plane only fixes the
// block's initial orientation; there is no contact.
type InclinedPlaneParams struct {
	Gravity   float64
	Mass      float64
	LengthX   float64
	LengthY   float64
	LengthZ   float64
	Slope     float64
	PlaneMass float64
}

func DefaultInclinedPlaneParams() InclinedPlaneParams {
	return InclinedPlaneParams{
		Gravity:   9.8,
		Mass:      0.1,
		LengthX:   0.4,
		LengthY:   0.2,
		LengthZ:   0.04,
		Slope:     15 * math.Pi / 180,
		PlaneMass: 10,
	}
}

func (p *InclinedPlaneParams) fields() paramSet {
	return paramSet{
		"gravity":    &p.Gravity,
		"mass":       &p.Mass,
		"length_x":   &p.LengthX,
		"length_y":   &p.LengthY,
		"length_z":   &p.LengthZ,
		"slope":      &p.Slope,
		"plane_mass": &p.PlaneMass,
	}
}

func (p *InclinedPlaneParams) GetParams() map[string]float64 { return p.fields().values() }

func (p *InclinedPlaneParams) SetParam(name string, value float64) error {
	return p.fields().set("inclined_plane", name, value)
}

func (p InclinedPlaneParams) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"mass", p.Mass}, {"length_x", p.LengthX}, {"length_y", p.LengthY}, {"length_z", p.LengthZ}, {"plane_mass", p.PlaneMass}} {
		if err := positive("inclined_plane", f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// BlockStart is the default block origin in W.
var BlockStart = mgl64.Vec3{-1, 0, 1.2}

// InclinedPlaneBlock is a free block over a plane welded to the world. The
// block's free joint is offset so that its default pose is the release pose.
type InclinedPlaneBlock struct {
	*multibody.Plant
	Params InclinedPlaneParams
	Plane  *multibody.Body
	Block  *multibody.Body
	Free   *multibody.FreeJoint
}

func NewInclinedPlaneBlock(params InclinedPlaneParams, opts ...multibody.Option) (*InclinedPlaneBlock, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	plant := multibody.NewPlant(opts...)
	if err := plant.SetGravity(down(params.Gravity)); err != nil {
		return nil, err
	}
	R_WP := kinmath.MakeYRotation(params.Slope)
	plane, err := plant.AddRigidBody("plane", spatial.NewInertia(params.PlaneMass, mgl64.Vec3{},
		spatial.UnitInertiaSolidBox(20, 1, 0.1)))
	if err != nil {
		return nil, err
	}
	block, err := plant.AddRigidBody("block", spatial.NewInertia(params.Mass, mgl64.Vec3{},
		spatial.UnitInertiaSolidBox(params.LengthX, params.LengthY, params.LengthZ)))
	if err != nil {
		return nil, err
	}
	if _, err := plant.WeldFrames(plant.WorldFrame(), plane.BodyFrame(), kinmath.NewRigidTransform(R_WP, mgl64.Vec3{})); err != nil {
		return nil, err
	}
	free, err := plant.AddFreeJoint("block_free", plant.WorldBody(), block,
		multibody.WithParentOffset(kinmath.NewRigidTransform(R_WP, BlockStart)))
	if err != nil {
		return nil, err
	}
	if err := plant.Finalize(); err != nil {
		return nil, err
	}
	return &InclinedPlaneBlock{Plant: plant, Params: params, Plane: plane, Block: block, Free: free}, nil
}
