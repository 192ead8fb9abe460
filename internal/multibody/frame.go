package multibody

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

type FrameIndex int

// Frame is a frame F fixed in a body B at pose X_BF.
type Frame struct {
	plant *Plant
	index FrameIndex
	name  string
	body  *Body
	X_BF  kinmath.RigidTransform
}

func (f *Frame) Index() FrameIndex { return f.index }
func (f *Frame) Name() string      { return f.name }
func (f *Frame) Body() *Body       { return f.body }

// FixedPoseInBody returns X_BF.
func (f *Frame) FixedPoseInBody() kinmath.RigidTransform { return f.X_BF }

func (f *Frame) isBodyFrame() bool { return f.body.frame == f }

// CalcPoseInWorld returns X_WF.
func (f *Frame) CalcPoseInWorld(ctx *Context) kinmath.RigidTransform {
	X_WB := f.body.EvalPoseInWorld(ctx)
	if f.isBodyFrame() {
		return X_WB
	}
	return X_WB.Mul(f.X_BF)
}

// CalcPose returns X_MF, the pose of f in frame measuredIn.
func (f *Frame) CalcPose(ctx *Context, measuredIn *Frame) kinmath.RigidTransform {
	return measuredIn.CalcPoseInWorld(ctx).Inverse().Mul(f.CalcPoseInWorld(ctx))
}

// CalcRotationMatrixInWorld returns R_WF.
func (f *Frame) CalcRotationMatrixInWorld(ctx *Context) kinmath.RotationMatrix {
	return f.body.EvalPoseInWorld(ctx).R.Mul(f.X_BF.R)
}

// CalcRotationMatrix returns R_MF.
func (f *Frame) CalcRotationMatrix(ctx *Context, measuredIn *Frame) kinmath.RotationMatrix {
	return measuredIn.CalcRotationMatrixInWorld(ctx).Inverse().Mul(f.CalcRotationMatrixInWorld(ctx))
}

// p_BoFo_W returns the offset of the frame origin from the body origin,
// expressed in W.
func (f *Frame) p_BoFo_W(ctx *Context) mgl64.Vec3 {
	return f.body.EvalPoseInWorld(ctx).R.MulVec(f.X_BF.P)
}

// CalcSpatialVelocityInWorld returns V_WF, measured at Fo and expressed in W.
func (f *Frame) CalcSpatialVelocityInWorld(ctx *Context) spatial.Velocity {
	V_WB := f.body.EvalSpatialVelocityInWorld(ctx)
	if f.isBodyFrame() {
		return V_WB
	}
	return V_WB.Shift(f.p_BoFo_W(ctx))
}

// CalcSpatialVelocity returns V_MF_E: the velocity of f measured in frame
// measuredIn at Fo, expressed in frame expressedIn.
func (f *Frame) CalcSpatialVelocity(ctx *Context, measuredIn, expressedIn *Frame) spatial.Velocity {
	X_WM := measuredIn.CalcPoseInWorld(ctx)
	p_MoFo_W := f.CalcPoseInWorld(ctx).P.Sub(X_WM.P)
	V_WMf := measuredIn.CalcSpatialVelocityInWorld(ctx).Shift(p_MoFo_W)
	V_MF_W := f.CalcSpatialVelocityInWorld(ctx).Sub(V_WMf)
	return V_MF_W.ReExpress(expressedIn.CalcRotationMatrixInWorld(ctx).Inverse())
}

// CalcSpatialAccelerationInWorld returns A_WF, measured at Fo and expressed in
// W. It runs forward dynamics and fails with it.
func (f *Frame) CalcSpatialAccelerationInWorld(ctx *Context) (spatial.Acceleration, error) {
	A_WB, err := f.body.EvalSpatialAccelerationInWorld(ctx)
	if err != nil || f.isBodyFrame() {
		return A_WB, err
	}
	w_WB := f.body.EvalSpatialVelocityInWorld(ctx).Rotational
	return A_WB.Shift(f.p_BoFo_W(ctx), w_WB), nil
}
