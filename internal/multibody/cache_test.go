package multibody

import (
	"github.com/go-gl/mathgl/mgl64"
	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mbdyn/internal/kinmath"
	"github.com/san-kum/mbdyn/internal/spatial"
)

func twoLinkPlant() (*Plant, *RevoluteJoint, *RevoluteJoint, *Body) {
	p := NewPlant()
	rod := spatial.NewInertia(1, mgl64.Vec3{0.5, 0, 0}, spatial.UnitInertiaRod(1, mgl64.Vec3{1, 0, 0}).
		Add(spatial.UnitInertiaPointMass(mgl64.Vec3{0.5, 0, 0})))
	a, err := p.AddRigidBody("a", rod)
	Expect(err).NotTo(HaveOccurred())
	b, err := p.AddRigidBody("b", rod)
	Expect(err).NotTo(HaveOccurred())
	j1, err := p.AddRevoluteJoint("j1", p.WorldBody(), a, mgl64.Vec3{0, 1, 0})
	Expect(err).NotTo(HaveOccurred())
	j2, err := p.AddRevoluteJoint("j2", a, b, mgl64.Vec3{0, 1, 0},
		WithParentOffset(kinmath.TranslationTransform(mgl64.Vec3{1, 0, 0})))
	Expect(err).NotTo(HaveOccurred())
	Expect(p.Finalize()).To(Succeed())
	return p, j1, j2, b
}

var _ = g.Describe("Context caches", func() {
	var (
		plant  *Plant
		j1, j2 *RevoluteJoint
		tip    *Body
		ctx    *Context
	)

	g.BeforeEach(func() {
		plant, j1, j2, tip = twoLinkPlant()
		var err error
		ctx, err = plant.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(j1.SetAngle(ctx, 0.3)).To(Succeed())
		Expect(j2.SetAngularRate(ctx, -1)).To(Succeed())
		_, err = plant.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	g.It("reuses every cache while nothing changes", func() {
		pk, vk, abi, fd := ctx.position, ctx.velocity, ctx.articulated, ctx.forwardCache
		_, err := plant.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
		_ = tip.EvalPoseInWorld(ctx)
		Expect(ctx.position).To(BeIdenticalTo(pk))
		Expect(ctx.velocity).To(BeIdenticalTo(vk))
		Expect(ctx.articulated).To(BeIdenticalTo(abi))
		Expect(ctx.forwardCache).To(BeIdenticalTo(fd))
	})

	g.It("keeps position results when only velocities change", func() {
		pk, abi := ctx.position, ctx.articulated
		Expect(j2.SetAngularRate(ctx, 2)).To(Succeed())
		_, err := plant.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.position).To(BeIdenticalTo(pk))
		Expect(ctx.articulated).To(BeIdenticalTo(abi))
	})

	g.It("keeps kinematics when only inputs change", func() {
		pk, vk, abi, fd := ctx.position, ctx.velocity, ctx.articulated, ctx.forwardCache
		Expect(ctx.SetAppliedGeneralizedForces([]float64{1, 0})).To(Succeed())
		_, err := plant.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.position).To(BeIdenticalTo(pk))
		Expect(ctx.velocity).To(BeIdenticalTo(vk))
		Expect(ctx.articulated).To(BeIdenticalTo(abi))
		Expect(ctx.forwardCache).NotTo(BeIdenticalTo(fd))
	})

	g.It("recomputes articulated inertias but not kinematics when a mass changes", func() {
		pk, vk, abi := ctx.position, ctx.velocity, ctx.articulated
		Expect(tip.SetMass(ctx, 3)).To(Succeed())
		_, err := plant.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.position).To(BeIdenticalTo(pk))
		Expect(ctx.velocity).To(BeIdenticalTo(vk))
		Expect(ctx.articulated).NotTo(BeIdenticalTo(abi))
	})

	g.It("recomputes everything when positions change", func() {
		pk, vk := ctx.position, ctx.velocity
		Expect(j2.SetAngle(ctx, 1)).To(Succeed())
		_ = tip.EvalSpatialVelocityInWorld(ctx)
		Expect(ctx.position).NotTo(BeIdenticalTo(pk))
		Expect(ctx.velocity).NotTo(BeIdenticalTo(vk))
	})

	g.It("bumps the version on every mutation and not on reads", func() {
		v0 := ctx.Version()
		_, _ = plant.EvalForwardDynamics(ctx)
		_ = ctx.Positions()
		Expect(ctx.Version()).To(Equal(v0))

		Expect(ctx.SetVelocities([]float64{0, 0})).To(Succeed())
		Expect(ctx.Version()).To(BeNumerically(">", v0))
		v1 := ctx.Version()
		ctx.ClearAppliedForces()
		Expect(ctx.Version()).To(BeNumerically(">", v1))
	})

	g.It("leaves clones without caches", func() {
		c := ctx.Clone()
		Expect(c.position).To(BeNil())
		Expect(c.forwardCache).To(BeNil())
		Expect(c.Version()).To(Equal(ctx.Version()))
	})

	g.It("caches a singular result until the inertia changes", func() {
		Expect(tip.SetMass(ctx, 0)).To(Succeed())
		_, err := plant.EvalForwardDynamics(ctx)
		Expect(err).To(HaveOccurred())
		fd := ctx.forwardCache
		_, err2 := plant.EvalForwardDynamics(ctx)
		Expect(err2).To(BeIdenticalTo(err))
		Expect(ctx.forwardCache).To(BeIdenticalTo(fd))

		Expect(tip.SetMass(ctx, 1)).To(Succeed())
		_, err = plant.EvalForwardDynamics(ctx)
		Expect(err).NotTo(HaveOccurred())
	})
})
