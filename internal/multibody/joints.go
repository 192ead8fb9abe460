package multibody

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

type JointIndex int

// Joint connects a frame F on the parent body to a frame M on the child body
// and grants the child NumVelocities degrees of freedom relative to the
// parent. The set of implementations is closed: WeldJoint, RevoluteJoint,
// PrismaticJoint and FreeJoint.
type Joint interface {
	Index() JointIndex
	Name() string
	Kind() string
	FrameOnParent() *Frame
	FrameOnChild() *Frame
	ParentBody() *Body
	ChildBody() *Body
	NumPositions() int
	NumVelocities() int
	// PositionStart and VelocityStart are offsets into q and v, valid after
	// Finalize.
	PositionStart() int
	VelocityStart() int
	Damping() float64

	base() *jointBase
	// poseFM, hingeFM and the maps below receive only this joint's slice
	// of q and v.
	poseFM(q []float64) kinmath.RigidTransform
	hingeFM(q []float64) spatial.Matrix6xN
	mapVelocityToQDot(q, v, qdot []float64)
	mapQDotToVelocity(q, qdot, v []float64)
	defaultPositions(q []float64)
	validatePositions(q []float64) error
}

type jointBase struct {
	index   JointIndex
	name    string
	kind    string
	frameF  *Frame
	frameM  *Frame
	damping float64
	nq, nv  int
	qStart  int
	vStart  int
}

func (j *jointBase) Index() JointIndex     { return j.index }
func (j *jointBase) Name() string          { return j.name }
func (j *jointBase) Kind() string          { return j.kind }
func (j *jointBase) FrameOnParent() *Frame { return j.frameF }
func (j *jointBase) FrameOnChild() *Frame  { return j.frameM }
func (j *jointBase) ParentBody() *Body     { return j.frameF.body }
func (j *jointBase) ChildBody() *Body      { return j.frameM.body }
func (j *jointBase) NumPositions() int     { return j.nq }
func (j *jointBase) NumVelocities() int    { return j.nv }
func (j *jointBase) PositionStart() int    { return j.qStart }
func (j *jointBase) VelocityStart() int    { return j.vStart }
func (j *jointBase) Damping() float64      { return j.damping }
func (j *jointBase) base() *jointBase      { return j }

func (j *jointBase) validatePositions(q []float64) error {
	for _, x := range q {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: joint %q positions %v", ErrNonFinite, j.name, q)
		}
	}
	return nil
}

// positions returns the joint's slice of ctx.q; mutations must go through
// the context so the version is bumped.
func (j *jointBase) positions(ctx *Context) []float64 {
	ctx.checkPlant(j.frameF.plant)
	return ctx.q[j.qStart : j.qStart+j.nq]
}

func (j *jointBase) velocities(ctx *Context) []float64 {
	ctx.checkPlant(j.frameF.plant)
	return ctx.v[j.vStart : j.vStart+j.nv]
}

// JointOption customizes a joint while it is added to the plant.
type JointOption func(*jointSpec)

type jointSpec struct {
	X_PF, X_BM *kinmath.RigidTransform
	damping    float64
}

// WithParentOffset places the joint frame F at X_PF in the parent body
// instead of at the parent body origin.
func WithParentOffset(X_PF kinmath.RigidTransform) JointOption {
	return func(s *jointSpec) { s.X_PF = &X_PF }
}

// WithChildOffset places the joint frame M at X_BM in the child body.
func WithChildOffset(X_BM kinmath.RigidTransform) JointOption {
	return func(s *jointSpec) { s.X_BM = &X_BM }
}

// WithDamping adds viscous damping τ = −d·v on every joint velocity.
func WithDamping(d float64) JointOption {
	return func(s *jointSpec) { s.damping = d }
}

// WeldJoint fixes X_FM.
type WeldJoint struct {
	jointBase
	X_FM kinmath.RigidTransform
}

func (j *WeldJoint) poseFM([]float64) kinmath.RigidTransform { return j.X_FM }
func (j *WeldJoint) hingeFM([]float64) spatial.Matrix6xN      { return nil }
func (j *WeldJoint) mapVelocityToQDot(_, _, _ []float64)      {}
func (j *WeldJoint) mapQDotToVelocity(_, _, _ []float64)      {}
func (j *WeldJoint) defaultPositions([]float64)               {}

// RevoluteJoint rotates M about a unit axis fixed in both F and M, with the
// origins Fo and Mo coincident. q = θ, v = θ̇.
type RevoluteJoint struct {
	jointBase
	axis mgl64.Vec3
}

// Axis returns the unit rotation axis, expressed in F.
func (j *RevoluteJoint) Axis() mgl64.Vec3 { return j.axis }

func (j *RevoluteJoint) poseFM(q []float64) kinmath.RigidTransform {
	return kinmath.RigidTransform{R: kinmath.MakeAxisRotation(j.axis, q[0])}
}

func (j *RevoluteJoint) hingeFM([]float64) spatial.Matrix6xN {
	return spatial.Matrix6xN{{Rotational: j.axis}}
}

func (j *RevoluteJoint) mapVelocityToQDot(_, v, qdot []float64) { qdot[0] = v[0] }
func (j *RevoluteJoint) mapQDotToVelocity(_, qdot, v []float64) { v[0] = qdot[0] }
func (j *RevoluteJoint) defaultPositions(q []float64)           { q[0] = 0 }

func (j *RevoluteJoint) Angle(ctx *Context) float64 { return j.positions(ctx)[0] }

func (j *RevoluteJoint) SetAngle(ctx *Context, theta float64) error {
	return ctx.setJointPositions(j, []float64{theta})
}

func (j *RevoluteJoint) AngularRate(ctx *Context) float64 { return j.velocities(ctx)[0] }

func (j *RevoluteJoint) SetAngularRate(ctx *Context, thetaDot float64) error {
	return ctx.setJointVelocities(j, []float64{thetaDot})
}

// PrismaticJoint translates Mo along a unit axis fixed in F, with R_FM = I.
// q = d, v = ḋ.
type PrismaticJoint struct {
	jointBase
	axis mgl64.Vec3
}

func (j *PrismaticJoint) Axis() mgl64.Vec3 { return j.axis }

func (j *PrismaticJoint) poseFM(q []float64) kinmath.RigidTransform {
	return kinmath.TranslationTransform(j.axis.Mul(q[0]))
}

func (j *PrismaticJoint) hingeFM([]float64) spatial.Matrix6xN {
	return spatial.Matrix6xN{{Translational: j.axis}}
}

func (j *PrismaticJoint) mapVelocityToQDot(_, v, qdot []float64) { qdot[0] = v[0] }
func (j *PrismaticJoint) mapQDotToVelocity(_, qdot, v []float64) { v[0] = qdot[0] }
func (j *PrismaticJoint) defaultPositions(q []float64)           { q[0] = 0 }

func (j *PrismaticJoint) Translation(ctx *Context) float64 { return j.positions(ctx)[0] }

func (j *PrismaticJoint) SetTranslation(ctx *Context, d float64) error {
	return ctx.setJointPositions(j, []float64{d})
}

func (j *PrismaticJoint) TranslationRate(ctx *Context) float64 { return j.velocities(ctx)[0] }

func (j *PrismaticJoint) SetTranslationRate(ctx *Context, dDot float64) error {
	return ctx.setJointVelocities(j, []float64{dDot})
}

// FreeJoint grants all six degrees of freedom. q = [qw qx qy qz px py pz]
// holds the quaternion of R_FM and p_FoMo_F; v = [ω_FM_F; v_FMo_F].
type FreeJoint struct {
	jointBase
}

func quaternionOf(q []float64) quat.Number {
	return quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
}

func (j *FreeJoint) poseFM(q []float64) kinmath.RigidTransform {
	return kinmath.RigidTransform{
		R: kinmath.MakeQuaternionRotation(quaternionOf(q)),
		P: mgl64.Vec3{q[4], q[5], q[6]},
	}
}

var freeHinge = spatial.Matrix6xN{
	{Rotational: mgl64.Vec3{1, 0, 0}},
	{Rotational: mgl64.Vec3{0, 1, 0}},
	{Rotational: mgl64.Vec3{0, 0, 1}},
	{Translational: mgl64.Vec3{1, 0, 0}},
	{Translational: mgl64.Vec3{0, 1, 0}},
	{Translational: mgl64.Vec3{0, 0, 1}},
}

func (j *FreeJoint) hingeFM([]float64) spatial.Matrix6xN { return freeHinge }

// mapVelocityToQDot uses q̇_quat = ½·(0, ω)⊗q, ω expressed in F.
func (j *FreeJoint) mapVelocityToQDot(q, v, qdot []float64) {
	w := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	d := quat.Scale(0.5, quat.Mul(w, quaternionOf(q)))
	qdot[0], qdot[1], qdot[2], qdot[3] = d.Real, d.Imag, d.Jmag, d.Kmag
	qdot[4], qdot[5], qdot[6] = v[3], v[4], v[5]
}

// mapQDotToVelocity inverts the map above: (0, ω) = 2·q̇⊗q⁻¹. Any
// component of q̇ along q (a change of quaternion norm) is discarded.
func (j *FreeJoint) mapQDotToVelocity(q, qdot, v []float64) {
	w := quat.Scale(2, quat.Mul(quaternionOf(qdot), quat.Inv(quaternionOf(q))))
	v[0], v[1], v[2] = w.Imag, w.Jmag, w.Kmag
	v[3], v[4], v[5] = qdot[4], qdot[5], qdot[6]
}

func (j *FreeJoint) defaultPositions(q []float64) {
	copy(q, []float64{1, 0, 0, 0, 0, 0, 0})
}

func (j *FreeJoint) validatePositions(q []float64) error {
	if err := j.jointBase.validatePositions(q); err != nil {
		return err
	}
	if quat.Abs(quaternionOf(q)) == 0 {
		return fmt.Errorf("%w: joint %q has a zero quaternion", kinmath.ErrVectorTooSmall, j.name)
	}
	return nil
}

// Pose returns X_FM.
func (j *FreeJoint) Pose(ctx *Context) kinmath.RigidTransform {
	return j.poseFM(j.positions(ctx))
}

// SetPose stores X_FM as a unit quaternion with non-negative scalar part.
func (j *FreeJoint) SetPose(ctx *Context, X_FM kinmath.RigidTransform) error {
	qr := X_FM.R.ToQuaternion()
	p := X_FM.P
	return ctx.setJointPositions(j, []float64{qr.Real, qr.Imag, qr.Jmag, qr.Kmag, p[0], p[1], p[2]})
}

// SpatialVelocity returns V_FM_F, measured at Mo.
func (j *FreeJoint) SpatialVelocity(ctx *Context) spatial.Velocity {
	return spatial.VelocityFromSlice(j.velocities(ctx))
}

func (j *FreeJoint) SetSpatialVelocity(ctx *Context, V_FM_F spatial.Velocity) error {
	c := V_FM_F.Coeffs()
	return ctx.setJointVelocities(j, c[:])
}
