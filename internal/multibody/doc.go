// Package multibody computes the forward dynamics of a tree of rigid bodies
// connected by joints.
//
// A [Plant] is built by adding bodies, frames, joints and force elements and
// is then frozen with [Plant.Finalize]. All state lives in a [Context]: the
// generalized positions q and velocities v, per-body spatial inertias, and
// applied forces. The plant evaluates kinematics and dynamics against a
// context and caches the results there until the context changes.
//
//	plant := multibody.NewPlant()
//	link, _ := plant.AddRigidBody("link", M_BBo_B)
//	pin, _ := plant.AddRevoluteJoint("pin", plant.WorldBody(), link, mgl64.Vec3{0, 1, 0})
//	_ = plant.Finalize()
//	ctx, _ := plant.CreateDefaultContext()
//	_ = pin.SetAngle(ctx, 0.3)
//	vdot, err := plant.EvalForwardDynamics(ctx)
//
// # Articulated Body Algorithm
//
// Forward dynamics runs the O(n) articulated body algorithm. Bodies are
// visited in the breadth-first order Finalize assigns (World is node 0). A
// hinge inertia that is not numerically positive definite relative to the
// inertia of the subtree it carries is reported as a
// [*SingularHingeInertiaError] naming the body node.
//
// # Frames and notation
//
// Quantities follow the monogram notation of package kinmath. Spatial
// velocities, accelerations and forces of a body are measured at the body
// origin Bo and expressed in the world frame W unless the name says
// otherwise.
//
// # Concurrency
//
// A finalized Plant is read-only. A Context, and the [System] that wraps one,
// must not be shared between goroutines; use [Context.Clone].
package multibody
