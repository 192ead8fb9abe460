package multibody_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/integrators"
	"github.com/san-kum/mbdyn/internal/models"
	"github.com/san-kum/mbdyn/internal/multibody"
)

var _ = Describe("Linearize", func() {
	It("recovers the cart-pole about the upright pose", func() {
		params := models.DefaultCartPoleParams()
		cp, err := models.NewCartPole(params)
		Expect(err).NotTo(HaveOccurred())
		ctx, err := cp.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.SetPositions([]float64{0, math.Pi})).To(Succeed())

		A, B, err := cp.Linearize(ctx)
		Expect(err).NotTo(HaveOccurred())
		mc, mp, l := params.CartMass, params.PoleMass, params.PoleLength
		dx, dth := params.UprightLinearization()
		wantA := mat.NewDense(4, 4, []float64{
			0, 0, 1, 0,
			0, 0, 0, 1,
			0, dx, 0, 0,
			0, dth, 0, 0,
		})
		wantB := mat.NewDense(4, 2, []float64{
			0, 0,
			0, 0,
			1 / mc, -1 / (mc * l),
			-1 / (mc * l), (mc + mp) / (mc * mp * l * l),
		})
		Expect(mat.EqualApprox(A, wantA, 1e-6)).To(BeTrue(), "A = %v", mat.Formatted(A))
		Expect(mat.EqualApprox(B, wantB, 1e-6)).To(BeTrue(), "B = %v", mat.Formatted(B))

		// The source context is untouched.
		Expect(ctx.Positions()).To(Equal([]float64{0, math.Pi}))
	})

	It("refuses a plant without state", func() {
		w, err := models.NewWeldedBoxes(models.DefaultWeldedBoxesParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err := w.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		_, _, err = w.Linearize(ctx)
		Expect(err).To(MatchError(multibody.ErrDimension))
	})
})

var _ = Describe("BatchForwardDynamics", func() {
	It("matches serial evaluation", func() {
		arm, err := models.NewIiwa(models.DefaultIiwaParams())
		Expect(err).NotTo(HaveOccurred())
		template, err := arm.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())

		states := make([][]float64, 64)
		for i := range states {
			x := make([]float64, 14)
			for k := range x {
				x[k] = math.Sin(float64(7*i + 3*k))
			}
			states[i] = x
		}
		got, err := multibody.BatchForwardDynamics(template, states)
		Expect(err).NotTo(HaveOccurred())

		ctx := template.Clone()
		for i, x := range states {
			Expect(ctx.SetPositionsAndVelocities(x)).To(Succeed())
			want, err := arm.EvalForwardDynamics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got[i]).To(Equal(want))
		}
	})

	It("reports the first failing state", func() {
		pend, err := models.NewPendulum(models.DefaultPendulumParams())
		Expect(err).NotTo(HaveOccurred())
		template, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		_, err = multibody.BatchForwardDynamics(template, [][]float64{{0, 0}, {1}, {0, math.NaN()}})
		Expect(err).To(MatchError(multibody.ErrDimension))
		Expect(err.Error()).To(HavePrefix("state 1:"))
	})
})

var _ = Describe("System", func() {
	It("conserves the energy of an undamped pendulum under RK4", func() {
		params := models.DefaultPendulumParams()
		params.Damping = 0
		pend, err := models.NewPendulum(params)
		Expect(err).NotTo(HaveOccurred())
		ctx, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())

		sys := multibody.NewSystem(ctx)
		Expect(sys.StateDim()).To(Equal(2))
		Expect(sys.ControlDim()).To(Equal(1))
		sim := dynamo.New(sys, integrators.NewRK4(), nil)
		res, err := sim.Run(context.Background(), dynamo.State{1, 0}, dynamo.Config{Dt: 1e-3, Duration: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.EnergyDrift).To(BeNumerically("<", 1e-9))
		Expect(sys.Energy(dynamo.State{1, 0})).To(BeNumerically("~", params.Energy(1, 0), 1e-12))
	})

	It("passes a free body's quaternion rates to symplectic integrators", func() {
		block, err := models.NewInclinedPlaneBlock(models.DefaultInclinedPlaneParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err := block.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		sys := multibody.NewSystem(ctx)
		Expect(sys.NumPositions()).To(Equal(7))

		x0 := dynamo.State(ctx.PositionsAndVelocities())
		x0[7+2] = 1 // ω_z
		x, err := integrators.NewVerlet().Step(sys, x0, nil, 0, 0.01)
		Expect(err).NotTo(HaveOccurred())
		// The quaternion turns about z and stays close to unit length.
		Expect(floats.Norm(x[:4], 2)).To(BeNumerically("~", 1, 1e-4))
		Expect(x[3]).To(BeNumerically(">", 0))
	})

	It("keeps the context's forces when no control is given", func() {
		pend, err := models.NewPendulum(models.DefaultPendulumParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.SetAppliedGeneralizedForces([]float64{2})).To(Succeed())
		sys := multibody.NewSystem(ctx)

		xdot, err := sys.Derive(dynamo.State{0, 0}, nil, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(xdot[1]).To(BeNumerically("~", 2, 1e-14))
		xdot, err = sys.Derive(dynamo.State{0, 0}, dynamo.Control{-1}, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(xdot[1]).To(BeNumerically("~", -1, 1e-14))

		_, err = sys.Derive(dynamo.State{0}, nil, 0)
		Expect(err).To(MatchError(multibody.ErrDimension))
	})

	It("runs an ensemble on cloned systems", func() {
		pend, err := models.NewPendulum(models.DefaultPendulumParams())
		Expect(err).NotTo(HaveOccurred())
		ctx, err := pend.CreateDefaultContext()
		Expect(err).NotTo(HaveOccurred())
		sim := dynamo.New(multibody.NewSystem(ctx), integrators.NewRK4(), nil)

		initial := []dynamo.State{{0.1, 0}, {0.2, 0}, {0.3, 0}, {0.4, 0}}
		results, err := dynamo.NewEnsemble(sim, 0).Run(context.Background(), initial, dynamo.Config{Dt: 0.01, Duration: 1})
		Expect(err).NotTo(HaveOccurred())

		single := dynamo.New(multibody.NewSystem(ctx), integrators.NewRK4(), nil)
		for i, r := range results {
			want, err := single.Run(context.Background(), initial[i], dynamo.Config{Dt: 0.01, Duration: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.States[len(r.States)-1]).To(Equal(want.States[len(want.States)-1]))
		}
	})
})
