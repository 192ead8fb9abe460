package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mbdyn/internal/dynamo"
)

// LyapunovExponent estimates the largest Lyapunov exponent by integrating a
// reference and a perturbed trajectory side by side, renormalizing their
// separation to d0 after every step:
//
//	λ ≈ Σ ln(|δx_k| / d0) / T
//
// For a second order system the first velocity is perturbed so that position
// constraints such as unit quaternions stay intact. A positive value
// indicates chaos.
func LyapunovExponent(sys dynamo.System, integ dynamo.Integrator, x0 dynamo.State, dt, duration, d0 float64) (float64, error) {
	if len(x0) == 0 {
		return 0, nil
	}
	if d0 <= 0 || dt <= 0 || duration <= 0 {
		return 0, fmt.Errorf("%w: perturbation, dt and duration must be positive", dynamo.ErrParameterBounds)
	}
	perturbed := 0
	if so, ok := sys.(dynamo.SecondOrderSystem); ok && so.NumPositions() < len(x0) {
		perturbed = so.NumPositions()
	}

	x := x0.Clone()
	xp := x0.Clone()
	xp[perturbed] += d0
	u := make(dynamo.Control, sys.ControlDim())

	sumLog := 0.0
	t := 0.0
	steps := int(math.Round(duration / dt))
	for k := 0; k < steps; k++ {
		var err error
		if x, err = integ.Step(sys, x, u, t, dt); err != nil {
			return 0, &dynamo.SimulationError{Step: k, Time: t, State: x0, Wrapped: err}
		}
		if xp, err = integ.Step(sys, xp, u, t, dt); err != nil {
			return 0, &dynamo.SimulationError{Step: k, Time: t, State: x0, Wrapped: err}
		}
		t += dt

		sep := floats.Distance(xp, x, 2)
		if sep == 0 || math.IsNaN(sep) {
			continue
		}
		sumLog += math.Log(sep / d0)
		scale := d0 / sep
		for i := range xp {
			xp[i] = x[i] + (xp[i]-x[i])*scale
		}
	}
	return sumLog / t, nil
}
