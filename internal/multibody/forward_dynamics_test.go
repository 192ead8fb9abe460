package multibody_test

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/models"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

const eps = 0x1p-52

type armState struct {
	q, v [7]float64
}

var armStates = []armState{
	{},
	{q: [7]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}},
	{q: [7]float64{-0.3, 1.1, 0.4, -1.6, 2.0, -0.2, 0.9}, v: [7]float64{0.5, -0.4, 0.3, -0.2, 0.1, 0.6, -0.7}},
	{q: [7]float64{math.Pi / 2, -math.Pi / 4, 0, math.Pi / 3, 0, -math.Pi / 6, 0}, v: [7]float64{-1, 1, -1, 1, -1, 1, -1}},
	{q: [7]float64{2.9, -2.0, 2.9, -2.0, 2.9, -2.0, 3.0}, v: [7]float64{1.5, 1.2, 0.9, 0.6, 0.3, 0.2, 0.1}},
}

// massMatrixSolution is v̇ = M⁻¹·(τ_app − (C·v − τ_elements)), computed from
// inverse dynamics and a dense Cholesky solve, plus the condition number of M.
func massMatrixSolution(plant *multibody.Plant, ctx *multibody.Context) ([]float64, float64) {
	nv := plant.NumVelocities()
	rhs, err := plant.CalcInverseDynamics(ctx, make([]float64, nv), plant.CalcForceElementsContribution(ctx))
	Expect(err).NotTo(HaveOccurred())
	floats.Scale(-1, rhs)
	floats.Add(rhs, ctx.AppliedGeneralizedForces())

	var chol mat.Cholesky
	Expect(chol.Factorize(plant.CalcMassMatrixViaInverseDynamics(ctx))).To(BeTrue())
	var x mat.VecDense
	Expect(chol.SolveVecTo(&x, mat.NewVecDense(nv, rhs))).To(Succeed())
	return x.RawVector().Data, chol.Cond()
}

func expectMatchesMassMatrixSolution(plant *multibody.Plant, ctx *multibody.Context) {
	vdot, err := plant.EvalForwardDynamics(ctx)
	Expect(err).NotTo(HaveOccurred())
	want, kappa := massMatrixSolution(plant, ctx)
	scale := math.Max(1, floats.Norm(want, math.Inf(1)))
	Expect(floats.Distance(vdot, want, math.Inf(1))).To(BeNumerically("<=", 10*kappa*eps*scale))
}

func expectSingularAt(plant *multibody.Plant, ctx *multibody.Context, node int) {
	_, err := plant.EvalForwardDynamics(ctx)
	var singular *multibody.SingularHingeInertiaError
	Expect(errors.As(err, &singular)).To(BeTrue())
	Expect(singular.NodeIndex).To(Equal(node))
	Expect(err).To(MatchError(fmt.Sprintf(
		"Encountered singular articulated body hinge inertia for body node index %d. "+
			"Please ensure that this body has non-zero inertia along all axes of motion.", node)))
}

// expectSmallResidual checks the implicit residual of the explicit time
// derivatives, relative to the size of the gravity forces.
func expectSmallResidual(plant *multibody.Plant, ctx *multibody.Context) {
	xdot, err := plant.EvalTimeDerivatives(ctx)
	Expect(err).NotTo(HaveOccurred())
	residual, err := plant.CalcImplicitTimeDerivativesResidual(ctx, xdot)
	Expect(err).NotTo(HaveOccurred())
	scale := math.Max(1, floats.Norm(plant.CalcGravityGeneralizedForces(ctx), math.Inf(1)))
	Expect(floats.Norm(residual, math.Inf(1))).To(BeNumerically("<=", 4e-13*scale))
}

func newChain(joint models.ChainJoint, masses ...float64) (*models.Chain, *multibody.Context) {
	c, err := models.NewChain(models.ChainParams{Joint: joint, Masses: masses, Length: 3})
	Expect(err).NotTo(HaveOccurred())
	ctx, err := c.CreateDefaultContext()
	Expect(err).NotTo(HaveOccurred())
	return c, ctx
}

var _ = Describe("Forward dynamics", func() {
	Describe("an anchored iiwa arm", func() {
		var (
			arm *models.Iiwa
			ctx *multibody.Context
		)

		BeforeEach(func() {
			params := models.DefaultIiwaParams()
			params.Damping = 0.5
			var err error
			arm, err = models.NewIiwa(params)
			Expect(err).NotTo(HaveOccurred())
			ctx, err = arm.CreateDefaultContext()
			Expect(err).NotTo(HaveOccurred())
		})

		It("matches the mass matrix solution in every configuration", func() {
			for _, s := range armStates {
				Expect(arm.SetJointAngles(ctx, s.q)).To(Succeed())
				Expect(arm.SetJointRates(ctx, s.v)).To(Succeed())
				expectMatchesMassMatrixSolution(arm.Plant, ctx)
			}
		})

		It("matches with applied joint torques and a spatial force on the tool link", func() {
			s := armStates[2]
			Expect(arm.SetJointAngles(ctx, s.q)).To(Succeed())
			Expect(arm.SetJointRates(ctx, s.v)).To(Succeed())
			Expect(ctx.SetAppliedGeneralizedForces([]float64{3, -1, 2, 0.5, -0.4, 0.1, 0.2})).To(Succeed())
			F := spatial.Force{Rotational: mgl64.Vec3{0.1, 0, -0.2}, Translational: mgl64.Vec3{0, 5, 1}}
			Expect(ctx.SetAppliedSpatialForce(arm.Links[7], F)).To(Succeed())

			vdot, err := arm.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
			// The same inputs make inverse dynamics vanish.
			forces := arm.CalcForceElementsContribution(ctx)
			floats.Add(forces.Generalized, ctx.AppliedGeneralizedForces())
			tool := arm.Links[7].Index()
			forces.Body[tool] = forces.Body[tool].Add(F)
			tau, err := arm.CalcInverseDynamics(ctx, vdot, forces)
			Expect(err).NotTo(HaveOccurred())
			Expect(floats.Norm(tau, math.Inf(1))).To(BeNumerically("<", 1e-11))
		})

		It("satisfies the implicit residual", func() {
			for _, s := range armStates {
				Expect(arm.SetJointAngles(ctx, s.q)).To(Succeed())
				Expect(arm.SetJointRates(ctx, s.v)).To(Succeed())
				expectSmallResidual(arm.Plant, ctx)
			}
		})

		It("rejects a residual of the wrong size", func() {
			_, err := arm.CalcImplicitTimeDerivativesResidual(ctx, make([]float64, 3))
			Expect(err).To(MatchError(multibody.ErrDimension))
		})
	})

	Describe("a floating iiwa arm", func() {
		It("matches the mass matrix solution with a moving base", func() {
			params := models.DefaultIiwaParams()
			params.Floating = true
			arm, err := models.NewIiwa(params)
			Expect(err).NotTo(HaveOccurred())
			ctx, err := arm.CreateDefaultContext()
			Expect(err).NotTo(HaveOccurred())

			R, err := kinmath.RotationFromAxisAngle(mgl64.Vec3{1, 2, 3}.Normalize(), 0.8)
			Expect(err).NotTo(HaveOccurred())
			base := arm.Links[0]
			Expect(arm.SetFreeBodyPose(ctx, base, kinmath.NewRigidTransform(R, mgl64.Vec3{0.3, -0.2, 1}))).To(Succeed())
			Expect(arm.SetFreeBodySpatialVelocity(ctx, base, spatial.Velocity{
				Rotational:    mgl64.Vec3{0.2, -0.1, 0.4},
				Translational: mgl64.Vec3{1, 0, -0.5},
			})).To(Succeed())

			for _, s := range armStates {
				Expect(arm.SetJointAngles(ctx, s.q)).To(Succeed())
				Expect(arm.SetJointRates(ctx, s.v)).To(Succeed())
				expectMatchesMassMatrixSolution(arm.Plant, ctx)
				expectSmallResidual(arm.Plant, ctx)
			}
		})
	})

	Describe("singular hinge inertias", func() {
		It("reports a massless prismatic link", func() {
			c, ctx := newChain(models.ChainPrismatic, 0)
			expectSingularAt(c.Plant, ctx, 1)

			Expect(c.Links[0].SetMass(ctx, 1e-33)).To(Succeed())
			_, err := c.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports a massless revolute link", func() {
			c, ctx := newChain(models.ChainRevolute, 0)
			expectSingularAt(c.Plant, ctx, 1)

			Expect(c.Links[0].SetMass(ctx, 1e-33)).To(Succeed())
			_, err := c.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports a light prismatic link carrying a heavy one", func() {
			c, ctx := newChain(models.ChainPrismatic, 1e-9, 1e9)
			expectSingularAt(c.Plant, ctx, 1)

			Expect(c.Links[0].SetMass(ctx, 1e-3)).To(Succeed())
			_, err := c.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Links[0].SetMass(ctx, 1e9)).To(Succeed())
			Expect(c.Links[1].SetMass(ctx, 1e-9)).To(Succeed())
			_, err = c.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports a massless outboard revolute link", func() {
			c, ctx := newChain(models.ChainRevolute, 1, 0)
			Expect(ctx.SetPositions([]float64{math.Pi / 6, math.Pi / 4})).To(Succeed())
			expectSingularAt(c.Plant, ctx, 2)

			Expect(c.Links[1].SetMass(ctx, 1e-33)).To(Succeed())
			_, err := c.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Links[1].SetMass(ctx, 1e-9)).To(Succeed())
			_, err = c.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails the time derivatives and accelerations the same way", func() {
			c, ctx := newChain(models.ChainRevolute, 0)
			_, err := c.EvalTimeDerivatives(ctx)
			Expect(err).To(HaveOccurred())
			_, err = c.Links[0].EvalSpatialAccelerationInWorld(ctx)
			Expect(err).To(HaveOccurred())
			_, err = c.EvalBodySpatialAccelerations(ctx)
			Expect(err).To(HaveOccurred())
		})

		It("honours a looser hinge tolerance", func() {
			c, err := models.NewChain(models.ChainParams{
				Joint: models.ChainPrismatic, Masses: []float64{1e-3, 1e9}, Length: 3,
			}, multibody.WithHingeInertiaTolerance(1e-3))
			Expect(err).NotTo(HaveOccurred())
			ctx, err := c.CreateDefaultContext()
			Expect(err).NotTo(HaveOccurred())
			expectSingularAt(c.Plant, ctx, 1)
		})
	})

	Describe("welded boxes", func() {
		It("have an empty acceleration and rest in place", func() {
			w, err := models.NewWeldedBoxes(models.DefaultWeldedBoxesParams())
			Expect(err).NotTo(HaveOccurred())
			ctx, err := w.CreateDefaultContext()
			Expect(err).NotTo(HaveOccurred())

			vdot, err := w.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(vdot).To(BeEmpty())

			A, err := w.BoxB.EvalSpatialAccelerationInWorld(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(A).To(Equal(spatial.Acceleration{}))

			X_WB := w.BoxB.EvalPoseInWorld(ctx)
			Expect(X_WB.P).To(Equal(mgl64.Vec3{1.5, 0, 0}))
			Expect(X_WB.R.IsExactlyIdentity()).To(BeTrue())

			M := w.CalcMassMatrixViaInverseDynamics(ctx)
			Expect(M.SymmetricDim()).To(Equal(0))
		})
	})

	Describe("a block above an inclined plane", func() {
		It("falls freely from its release pose", func() {
			b, err := models.NewInclinedPlaneBlock(models.DefaultInclinedPlaneParams())
			Expect(err).NotTo(HaveOccurred())
			ctx, err := b.CreateDefaultContext()
			Expect(err).NotTo(HaveOccurred())
			Expect(b.NumPositions()).To(Equal(7))
			Expect(b.NumVelocities()).To(Equal(6))

			A, err := b.Block.EvalSpatialAccelerationInWorld(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(A.Rotational.Len()).To(BeNumerically("<", 1e-14))
			Expect(A.Translational.Sub(mgl64.Vec3{0, 0, -9.8}).Len()).To(BeNumerically("<", 1e-14))

			expectSmallResidual(b.Plant, ctx)
		})
	})
})
