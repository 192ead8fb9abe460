package multibody_test

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/models"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

func unitBox() spatial.Inertia {
	return spatial.NewInertia(1, mgl64.Vec3{}, spatial.UnitInertiaSolidCube(1))
}

var _ = Describe("Plant construction", func() {
	var plant *multibody.Plant

	BeforeEach(func() {
		plant = multibody.NewPlant()
	})

	It("starts with the world body and frame", func() {
		Expect(plant.NumBodies()).To(Equal(1))
		Expect(plant.WorldBody().Index()).To(Equal(multibody.WorldIndex))
		Expect(plant.WorldFrame().Body()).To(BeIdenticalTo(plant.WorldBody()))
		Expect(plant.IsFinalized()).To(BeFalse())
	})

	It("rejects duplicate names across bodies and joints", func() {
		a, err := plant.AddRigidBody("a", unitBox())
		Expect(err).NotTo(HaveOccurred())
		_, err = plant.AddRigidBody("a", unitBox())
		Expect(err).To(MatchError(multibody.ErrDuplicateName))
		_, err = plant.AddRevoluteJoint("a", plant.WorldBody(), a, mgl64.Vec3{0, 0, 1})
		Expect(err).To(MatchError(multibody.ErrDuplicateName))
	})

	It("rejects invalid inertias and axes", func() {
		_, err := plant.AddRigidBody("bad", spatial.NewInertia(-1, mgl64.Vec3{}, mgl64.Ident3()))
		Expect(err).To(MatchError(spatial.ErrInvalidInertia))

		a, err := plant.AddRigidBody("a", unitBox())
		Expect(err).NotTo(HaveOccurred())
		_, err = plant.AddPrismaticJoint("slide", plant.WorldBody(), a, mgl64.Vec3{})
		Expect(err).To(MatchError(kinmath.ErrZeroAxis))
		_, err = plant.AddRevoluteJoint("pin", plant.WorldBody(), a, mgl64.Vec3{0, 0, 1}, multibody.WithDamping(-1))
		Expect(err).To(MatchError(multibody.ErrInvalidParameter))
	})

	It("normalizes joint axes", func() {
		a, err := plant.AddRigidBody("a", unitBox())
		Expect(err).NotTo(HaveOccurred())
		pin, err := plant.AddRevoluteJoint("pin", plant.WorldBody(), a, mgl64.Vec3{0, 0, 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(pin.Axis()).To(Equal(mgl64.Vec3{0, 0, 1}))
	})

	It("rejects a body with two inboard joints", func() {
		a, _ := plant.AddRigidBody("a", unitBox())
		b, _ := plant.AddRigidBody("b", unitBox())
		_, err := plant.AddRevoluteJoint("j1", plant.WorldBody(), a, mgl64.Vec3{0, 0, 1})
		Expect(err).NotTo(HaveOccurred())
		_, err = plant.AddRevoluteJoint("j2", b, a, mgl64.Vec3{0, 0, 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(plant.Finalize()).To(MatchError(multibody.ErrTopology))
	})

	It("rejects the world as a child", func() {
		a, _ := plant.AddRigidBody("a", unitBox())
		_, err := plant.AddRevoluteJoint("j", a, plant.WorldBody(), mgl64.Vec3{0, 0, 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(plant.Finalize()).To(MatchError(multibody.ErrTopology))
	})

	It("rejects a loop that never reaches the world", func() {
		a, _ := plant.AddRigidBody("a", unitBox())
		b, _ := plant.AddRigidBody("b", unitBox())
		_, err := plant.AddRevoluteJoint("ab", a, b, mgl64.Vec3{0, 0, 1})
		Expect(err).NotTo(HaveOccurred())
		_, err = plant.AddRevoluteJoint("ba", b, a, mgl64.Vec3{0, 0, 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(plant.Finalize()).To(MatchError(multibody.ErrTopology))
	})

	It("floats bodies without an inboard joint and orders nodes breadth first", func() {
		a, _ := plant.AddRigidBody("a", unitBox())
		b, _ := plant.AddRigidBody("b", unitBox())
		c, _ := plant.AddRigidBody("c", unitBox())
		_, err := plant.AddRevoluteJoint("bc", b, c, mgl64.Vec3{0, 0, 1})
		Expect(err).NotTo(HaveOccurred())
		_, err = plant.AddPrismaticJoint("wb", plant.WorldBody(), b, mgl64.Vec3{1, 0, 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(plant.Finalize()).To(Succeed())

		Expect(plant.NumPositions()).To(Equal(9))
		Expect(plant.NumVelocities()).To(Equal(8))
		free, ok := plant.InboardJoint(a).(*multibody.FreeJoint)
		Expect(ok).To(BeTrue())
		Expect(free.Name()).To(Equal("$world_a"))

		Expect(b.NodeIndex()).To(BeNumerically("<", c.NodeIndex()))
		joints := plant.Joints()
		Expect(joints).To(HaveLen(3))
		for i, j := range joints {
			Expect(j.ChildBody().NodeIndex()).To(Equal(i + 1))
		}
		Expect(plant.InboardJoint(plant.WorldBody())).To(BeNil())
	})

	It("freezes the topology once finalized", func() {
		Expect(plant.Finalize()).To(Succeed())
		_, err := plant.AddRigidBody("late", unitBox())
		Expect(err).To(MatchError(multibody.ErrFinalized))
		Expect(plant.SetGravity(mgl64.Vec3{})).To(MatchError(multibody.ErrFinalized))
		Expect(plant.Finalize()).To(MatchError(multibody.ErrFinalized))
	})

	It("needs Finalize before a context", func() {
		_, err := plant.CreateDefaultContext()
		Expect(err).To(MatchError(multibody.ErrNotFinalized))
	})

	It("looks elements up by name", func() {
		a, _ := plant.AddRigidBody("a", unitBox())
		_, err := plant.AddRevoluteJoint("pin", plant.WorldBody(), a, mgl64.Vec3{0, 0, 1},
			multibody.WithParentOffset(kinmath.TranslationTransform(mgl64.Vec3{0, 0, 1})))
		Expect(err).NotTo(HaveOccurred())
		Expect(plant.Finalize()).To(Succeed())

		got, ok := plant.BodyByName("a")
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(a))
		F, ok := plant.FrameByName("pin_parent")
		Expect(ok).To(BeTrue())
		Expect(F.Body()).To(BeIdenticalTo(plant.WorldBody()))
		_, ok = plant.JointByName("missing")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Contexts", func() {
	var pend *models.Pendulum

	BeforeEach(func() {
		var err error
		pend, err = models.NewPendulum(models.DefaultPendulumParams())
		Expect(err).NotTo(HaveOccurred())
	})

	It("do not interfere with each other", func() {
		c1, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		c2, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(pend.Pin.SetAngle(c1, 1)).To(Succeed())
		Expect(pend.Bob.SetMass(c2, 5)).To(Succeed())

		vdot1, err := pend.EvalForwardDynamics(c1)
		Expect(err).NotTo(HaveOccurred())
		vdot2, err := pend.EvalForwardDynamics(c2)
		Expect(err).NotTo(HaveOccurred())
		Expect(vdot1[0]).To(BeNumerically("<", -1))
		Expect(vdot2[0]).To(BeNumerically("~", 0, 1e-15))
		Expect(pend.Bob.Mass(c1)).To(Equal(1.0))
		Expect(pend.Bob.DefaultMass()).To(Equal(1.0))
	})

	It("panic when handed to another plant", func() {
		other, err := models.NewPendulum(models.DefaultPendulumParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err := other.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(func() { _, _ = pend.EvalForwardDynamics(ctx) }).To(PanicWith(multibody.ErrWrongPlant))
	})

	It("reject wrong sizes and non-finite values without changing", func() {
		ctx, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.SetPositionsAndVelocities([]float64{0.5, 0.1})).To(Succeed())
		version := ctx.Version()

		Expect(ctx.SetPositions([]float64{1, 2})).To(MatchError(multibody.ErrDimension))
		Expect(ctx.SetVelocities([]float64{math.NaN()})).To(MatchError(multibody.ErrNonFinite))
		Expect(ctx.SetPositionsAndVelocities([]float64{2, math.Inf(1)})).To(MatchError(multibody.ErrNonFinite))
		Expect(ctx.SetAppliedGeneralizedForces(nil)).To(MatchError(multibody.ErrDimension))
		Expect(pend.Bob.SetMass(ctx, math.NaN())).To(MatchError(multibody.ErrNonFinite))
		Expect(pend.WorldBody().SetSpatialInertia(ctx, unitBox())).To(MatchError(multibody.ErrTopology))

		Expect(ctx.PositionsAndVelocities()).To(Equal([]float64{0.5, 0.1}))
		Expect(ctx.Version()).To(Equal(version))
	})

	It("return copies", func() {
		ctx, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		q := ctx.Positions()
		q[0] = 3
		Expect(ctx.Positions()).To(Equal([]float64{0}))
		vdot, err := pend.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
		vdot[0] = 42
		again, err := pend.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again[0]).NotTo(Equal(42.0))
	})
})

var _ = Describe("Free bodies", func() {
	var (
		block *models.InclinedPlaneBlock
		ctx   *multibody.Context
	)

	BeforeEach(func() {
		var err error
		block, err = models.NewInclinedPlaneBlock(models.DefaultInclinedPlaneParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err = block.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
	})

	It("place the body at a requested world pose", func() {
		R, err := kinmath.RotationFromAxisAngle(mgl64.Vec3{0, 0.6, 0.8}, 2.5)
		Expect(err).NotTo(HaveOccurred())
		X_WB := kinmath.NewRigidTransform(R, mgl64.Vec3{1, 2, 3})
		Expect(block.SetFreeBodyPose(ctx, block.Block, X_WB)).To(Succeed())
		Expect(block.Block.EvalPoseInWorld(ctx).IsNearlyEqualTo(X_WB, 1e-14)).To(BeTrue())

		V_WB := spatial.Velocity{Rotational: mgl64.Vec3{1, -2, 0.5}, Translational: mgl64.Vec3{0.3, 0, -1}}
		Expect(block.SetFreeBodySpatialVelocity(ctx, block.Block, V_WB)).To(Succeed())
		Expect(block.Block.EvalSpatialVelocityInWorld(ctx).IsApprox(V_WB, 1e-14)).To(BeTrue())
	})

	It("refuse bodies that are not free", func() {
		Expect(block.SetFreeBodyPose(ctx, block.Plane, kinmath.IdentityTransform())).To(MatchError(multibody.ErrJointType))
	})

	It("map quaternion rates to angular velocity and back", func() {
		R, err := kinmath.RotationFromAxisAngle(mgl64.Vec3{1, 0, 0}, 0.4)
		Expect(err).NotTo(HaveOccurred())
		Expect(block.Free.SetPose(ctx, kinmath.NewRigidTransform(R, mgl64.Vec3{}))).To(Succeed())
		v := []float64{0.3, -0.7, 1.1, 2, 0, -1}

		qdot, err := block.MapVelocityToQDot(ctx, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(qdot).To(HaveLen(7))
		// A unit quaternion stays unit length: q·q̇ = 0.
		q := ctx.Positions()
		Expect(floats.Dot(q[:4], qdot[:4])).To(BeNumerically("~", 0, 1e-15))

		back, err := block.MapQDotToVelocity(ctx, qdot)
		Expect(err).NotTo(HaveOccurred())
		Expect(floats.EqualApprox(back, v, 1e-14)).To(BeTrue())

		_, err = block.MapVelocityToQDot(ctx, v[:2])
		Expect(err).To(MatchError(multibody.ErrDimension))
	})

	It("reject a zero quaternion", func() {
		q := ctx.Positions()
		q[0], q[1], q[2], q[3] = 0, 0, 0, 0
		Expect(ctx.SetPositions(q)).To(MatchError(kinmath.ErrVectorTooSmall))
	})

	It("accept an unnormalized quaternion as the same rotation", func() {
		q := ctx.Positions()
		before := block.Block.EvalPoseInWorld(ctx)
		for i := 0; i < 4; i++ {
			q[i] *= 3
		}
		Expect(ctx.SetPositions(q)).To(Succeed())
		Expect(block.Block.EvalPoseInWorld(ctx).IsNearlyEqualTo(before, 1e-15)).To(BeTrue())
	})
})
