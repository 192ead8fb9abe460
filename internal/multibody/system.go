package multibody

import (
	"fmt"
	"math"

	"github.com/san-kum/mbdyn/internal/dynamo"
)

// System drives a plant through the dynamo integrators. The state is
// x = [q; v] and the control u holds the applied generalized forces. Each
// System owns a private Context, so it is not safe for concurrent use;
// Ensemble runs call CloneSystem.
type System struct {
	plant *Plant
	ctx   *Context
}

var (
	_ dynamo.SecondOrderSystem = (*System)(nil)
	_ dynamo.SystemCloner      = (*System)(nil)
	_ dynamo.Hamiltonian       = (*System)(nil)
)

// NewSystem copies ctx; parameters and applied spatial forces set there are
// kept for every evaluation.
func NewSystem(ctx *Context) *System {
	return &System{plant: ctx.plant, ctx: ctx.Clone()}
}

func (s *System) Plant() *Plant     { return s.plant }
func (s *System) Context() *Context { return s.ctx }
func (s *System) StateDim() int     { return s.plant.nq + s.plant.nv }
func (s *System) ControlDim() int   { return s.plant.nv }
func (s *System) NumPositions() int { return s.plant.nq }

// Derive returns [N(q)·v; v̇] at x with τ = u. An empty u keeps the
// generalized forces already in the context.
func (s *System) Derive(x dynamo.State, u dynamo.Control, _ float64) (dynamo.State, error) {
	if err := s.ctx.SetPositionsAndVelocities(x); err != nil {
		return nil, err
	}
	if len(u) > 0 {
		if err := s.ctx.SetAppliedGeneralizedForces(u); err != nil {
			return nil, err
		}
	}
	return s.plant.EvalTimeDerivatives(s.ctx)
}

func (s *System) MapVelocityToQDot(q, v []float64) ([]float64, error) {
	if len(q) != s.plant.nq || len(v) != s.plant.nv {
		return nil, fmt.Errorf("%w: got %d positions and %d velocities, plant has %d and %d",
			ErrDimension, len(q), len(v), s.plant.nq, s.plant.nv)
	}
	return s.plant.mapVelocityToQDot(q, v), nil
}

// Energy returns kinetic plus potential energy at x, or NaN when x is not a
// valid state.
func (s *System) Energy(x dynamo.State) float64 {
	if err := s.ctx.SetPositionsAndVelocities(x); err != nil {
		return math.NaN()
	}
	return s.plant.CalcKineticEnergy(s.ctx) + s.plant.CalcPotentialEnergy(s.ctx)
}

func (s *System) CloneSystem() dynamo.System {
	return &System{plant: s.plant, ctx: s.ctx.Clone()}
}

// BatchForwardDynamics evaluates v̇ for many states x = [q; v] in parallel.
// Every worker clones template, so its parameters and applied forces hold for
// all states. The first failing state, by index, is reported.
func BatchForwardDynamics(template *Context, states [][]float64) ([][]float64, error) {
	out := make([][]float64, len(states))
	errs := make([]error, len(states))
	dynamo.ParallelFor(len(states), 8, func(start, end int) {
		ctx := template.Clone()
		for i := start; i < end; i++ {
			if err := ctx.SetPositionsAndVelocities(states[i]); err != nil {
				errs[i] = err
				continue
			}
			out[i], errs[i] = template.plant.EvalForwardDynamics(ctx)
		}
	})
	for i, err := range errs {
		if err != nil {
			return out, fmt.Errorf("state %d: %w", i, err)
		}
	}
	return out, nil
}
