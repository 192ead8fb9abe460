package multibody_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mbdyn/internal/models"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/spatial"
)

var _ = Describe("Frame kinematics", func() {
	const tol = 64 * eps

	var (
		arm *models.Iiwa
		ctx *multibody.Context
		// H is fixed on link 6 away from its origin.
		H *multibody.Frame
	)

	BeforeEach(func() {
		var err error
		arm, err = models.NewIiwa(models.DefaultIiwaParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err = arm.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		s := armStates[3]
		Expect(arm.SetJointAngles(ctx, s.q)).To(Succeed())
		Expect(arm.SetJointRates(ctx, s.v)).To(Succeed())

		var ok bool
		H, ok = arm.FrameByName("iiwa_joint_7_parent")
		Expect(ok).To(BeTrue())
		Expect(H.Body()).To(BeIdenticalTo(arm.Links[6]))
	})

	It("returns body values exactly for body frames", func() {
		for _, link := range arm.Links {
			F := link.BodyFrame()
			Expect(F.CalcPoseInWorld(ctx)).To(Equal(link.EvalPoseInWorld(ctx)))
			Expect(F.CalcSpatialVelocityInWorld(ctx)).To(Equal(link.EvalSpatialVelocityInWorld(ctx)))
			A, err := F.CalcSpatialAccelerationInWorld(ctx)
			Expect(err).NotTo(HaveOccurred())
			A_WB, err := link.EvalSpatialAccelerationInWorld(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(A).To(Equal(A_WB))
		}
	})

	It("composes poses through an intermediate frame", func() {
		E := arm.Links[2].BodyFrame()
		X_WE := E.CalcPoseInWorld(ctx)
		X_EH := H.CalcPose(ctx, E)
		Expect(H.CalcPoseInWorld(ctx).IsNearlyEqualTo(X_WE.Mul(X_EH), tol)).To(BeTrue())
		Expect(arm.CalcRelativeTransform(ctx, E, H).IsNearlyEqualTo(X_EH, 0)).To(BeTrue())
		Expect(arm.CalcRelativeRotationMatrix(ctx, E, H).IsNearlyEqualTo(X_EH.R, tol)).To(BeTrue())
	})

	It("shifts the body velocity and acceleration to a fixed frame", func() {
		B := arm.Links[6]
		p_BoHo_W := H.CalcPoseInWorld(ctx).P.Sub(B.EvalPoseInWorld(ctx).P)
		V_WB := B.EvalSpatialVelocityInWorld(ctx)
		Expect(H.CalcSpatialVelocityInWorld(ctx).IsApprox(V_WB.Shift(p_BoHo_W), tol)).To(BeTrue())

		A_WB, err := B.EvalSpatialAccelerationInWorld(ctx)
		Expect(err).NotTo(HaveOccurred())
		A_WH, err := H.CalcSpatialAccelerationInWorld(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(A_WH.IsApprox(A_WB.Shift(p_BoHo_W, V_WB.Rotational), 1e-12)).To(BeTrue())
	})

	It("measures velocity relative to a moving frame", func() {
		E := arm.Links[2].BodyFrame()
		L3 := arm.Links[3].BodyFrame()
		R_EW := E.CalcRotationMatrixInWorld(ctx).Inverse()

		V_WL3_E := L3.CalcSpatialVelocityInWorld(ctx).ReExpress(R_EW)
		V_WH_E := H.CalcSpatialVelocityInWorld(ctx).ReExpress(R_EW)
		p_HL3_E := R_EW.MulVec(L3.CalcPoseInWorld(ctx).P.Sub(H.CalcPoseInWorld(ctx).P))
		want := V_WL3_E.Sub(V_WH_E.Shift(p_HL3_E))

		Expect(L3.CalcSpatialVelocity(ctx, H, E).IsApprox(want, 1e-13)).To(BeTrue())
		Expect(L3.CalcSpatialVelocity(ctx, L3, E)).To(Equal(spatial.Velocity{}))
	})

	It("agrees across body pose outputs", func() {
		poses := arm.EvalBodyPoses(ctx)
		velocities := arm.EvalBodySpatialVelocities(ctx)
		accelerations, err := arm.EvalBodySpatialAccelerations(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(poses).To(HaveLen(arm.NumBodies()))
		for _, link := range arm.Links {
			Expect(poses[link.Index()]).To(Equal(link.EvalPoseInWorld(ctx)))
			Expect(velocities[link.Index()]).To(Equal(link.EvalSpatialVelocityInWorld(ctx)))
			A, err := arm.EvalBodySpatialAccelerationInWorld(ctx, link)
			Expect(err).NotTo(HaveOccurred())
			Expect(accelerations[link.Index()]).To(Equal(A))
		}
		Expect(poses[multibody.WorldIndex].IsExactlyIdentity()).To(BeTrue())
	})
})
