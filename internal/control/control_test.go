package control

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/integrators"
	"github.com/san-kum/mbdyn/internal/models"
	"github.com/san-kum/mbdyn/internal/multibody"
)

func run(t *testing.T, sys *multibody.System, ctrl dynamo.Controller, x0 dynamo.State, duration float64) *dynamo.Result {
	t.Helper()
	cfg := dynamo.DefaultConfig()
	cfg.Dt = 0.01
	cfg.Duration = duration
	res, err := dynamo.New(sys, integrators.NewRK4(), ctrl).Run(context.Background(), x0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return res
}

func pendulumSystem(t *testing.T) *multibody.System {
	t.Helper()
	p, err := models.NewPendulum(models.DefaultPendulumParams())
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := p.CreateDefaultContext()
	if err != nil {
		t.Fatal(err)
	}
	return multibody.NewSystem(ctx)
}

func TestPIDReachesTarget(t *testing.T) {
	sys := pendulumSystem(t)
	pid, err := NewPID(sys, 50, 0, 10, []float64{0.3}, true)
	if err != nil {
		t.Fatal(err)
	}

	res := run(t, sys, pid, dynamo.State{0, 0}, 5)
	final := res.States[len(res.States)-1]
	if math.Abs(final[0]-0.3) > 1e-3 {
		t.Errorf("expected angle 0.3, got %f", final[0])
	}
}

func TestPIDSign(t *testing.T) {
	sys := pendulumSystem(t)
	pid, err := NewPID(sys, 10, 0.1, 5, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	u := pid.Compute(dynamo.State{1.0, 0.0}, 0)
	if len(u) != 1 {
		t.Fatalf("expected 1 control, got %d", len(u))
	}
	if u[0] >= 0 {
		t.Error("PID should output negative control for positive error")
	}
}

func TestPIDGravityCompensationHoldsArm(t *testing.T) {
	arm, err := models.NewIiwa(models.DefaultIiwaParams())
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := arm.CreateDefaultContext()
	if err != nil {
		t.Fatal(err)
	}
	if err := arm.SetJointAngles(ctx, [7]float64{0.1, -0.4, 0.7, -1.2, 0.3, 0.9, -0.5}); err != nil {
		t.Fatal(err)
	}
	sys := multibody.NewSystem(ctx)
	pid, err := NewPID(sys, 0, 0, 0, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	x0 := dynamo.State(ctx.PositionsAndVelocities())
	res := run(t, sys, pid, x0, 1)
	final := res.States[len(res.States)-1]
	if !floats.EqualApprox(final, x0, 1e-8) {
		t.Errorf("arm drifted under gravity compensation: %v", final.Sub(x0))
	}
}

func TestPIDRejectsFreeJoints(t *testing.T) {
	params := models.DefaultIiwaParams()
	params.Floating = true
	arm, err := models.NewIiwa(params)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := arm.CreateDefaultContext()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPID(multibody.NewSystem(ctx), 1, 0, 1, nil, false); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestPIDParams(t *testing.T) {
	pid, err := NewPID(pendulumSystem(t), 1, 2, 3, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := pid.SetParam("target0", 0.7); err != nil {
		t.Fatal(err)
	}
	if err := pid.SetParam("kd", 4); err != nil {
		t.Fatal(err)
	}
	params := pid.GetParams()
	if params["target0"] != 0.7 || params["kd"] != 4 || params["kp"] != 1 {
		t.Errorf("unexpected params %v", params)
	}
	if err := pid.SetParam("target1", 1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestPIDCloneHasOwnIntegral(t *testing.T) {
	pid, err := NewPID(pendulumSystem(t), 0, 1, 0, []float64{1}, false)
	if err != nil {
		t.Fatal(err)
	}
	clone := pid.CloneController()

	pid.Compute(dynamo.State{0, 0}, 0)
	pid.Compute(dynamo.State{0, 0}, 1)
	if got := clone.Compute(dynamo.State{0, 0}, 2)[0]; got != 0 {
		t.Errorf("clone shares integral state, got %f", got)
	}
}

func TestLQRZeroAtTarget(t *testing.T) {
	lqr := &LQR{
		K:      mat.NewDense(1, 2, []float64{1.0, 2.0}),
		Target: dynamo.State{0.5, 0},
		U0:     dynamo.Control{0.25},
		Inputs: []int{0},
	}
	if u := lqr.Compute(dynamo.State{0.5, 0}, 0); u[0] != 0.25 {
		t.Errorf("expected feedforward at target, got %f", u[0])
	}
	if u := lqr.Compute(dynamo.State{1.5, 0}, 0); u[0] != -0.75 {
		t.Errorf("expected -0.75, got %f", u[0])
	}
}

func TestDesignLQRScalar(t *testing.T) {
	// For x⁺ = x + u the Riccati fixed point with Q = R = 1 is the golden
	// ratio, giving K = P/(1+P).
	K, err := DesignLQR(mat.NewDense(1, 1, []float64{0}), mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 1, []float64{1}), 1)
	if err != nil {
		t.Fatal(err)
	}
	phi := (1 + math.Sqrt(5)) / 2
	if want := phi / (1 + phi); math.Abs(K.At(0, 0)-want) > 1e-9 {
		t.Errorf("expected gain %f, got %f", want, K.At(0, 0))
	}
}

func TestLQRBalancesCartPole(t *testing.T) {
	cp, err := models.NewCartPole(models.DefaultCartPoleParams())
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := cp.CreateDefaultContext()
	if err != nil {
		t.Fatal(err)
	}
	sys := multibody.NewSystem(ctx)

	// Only the cart is pushed.
	lqr, err := NewPlantLQR(sys, dynamo.State{0, math.Pi, 0, 0}, []int{0}, 1, 1, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if u := lqr.Compute(dynamo.State{0, math.Pi, 0, 0}, 0); math.Abs(u[1]) > 0 {
		t.Errorf("pole hinge must stay unactuated, got %f", u[1])
	}

	res := run(t, sys, lqr, dynamo.State{0, math.Pi + 0.05, 0, 0}, 8)
	for i, x := range res.States {
		if math.Abs(x[1]-math.Pi) > 0.2 {
			t.Fatalf("pole fell at t=%.2f: theta=%f", res.Times[i], x[1])
		}
	}
	if final := res.States[len(res.States)-1]; math.Abs(final[1]-math.Pi) > 1e-2 {
		t.Errorf("expected upright pole, got theta=%f", final[1])
	}
}

func TestPlantLQRRejectsBadInputs(t *testing.T) {
	sys := pendulumSystem(t)
	if _, err := NewPlantLQR(sys, dynamo.State{0, 0}, []int{3}, 1, 1, 0.01); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := NewPlantLQR(sys, dynamo.State{0}, nil, 1, 1, 0.01); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := NewPlantLQR(sys, dynamo.State{0, 0}, nil, 0, 1, 0.01); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}
