package integrators

import "github.com/san-kum/mbdyn/internal/dynamo"

// split returns the number of positions in x and the q̇ map. Systems that do
// not declare their structure are treated as x = [q; v] with q̇ = v.
func split(sys dynamo.System, n int) (int, func(q, v []float64) ([]float64, error)) {
	if so, ok := sys.(dynamo.SecondOrderSystem); ok {
		return so.NumPositions(), so.MapVelocityToQDot
	}
	return n / 2, func(_, v []float64) ([]float64, error) { return v, nil }
}

// Verlet is velocity Verlet over x = [q; v].
type Verlet struct {
	scratch dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) CloneIntegrator() dynamo.Integrator { return NewVerlet() }

func (v *Verlet) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) (dynamo.State, error) {
	n := len(x)
	nq, qdot := split(sys, n)
	if len(v.scratch) != n {
		v.scratch = make(dynamo.State, n)
	}

	dx, err := sys.Derive(x, u, t)
	if err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	vMid := make([]float64, n-nq)
	for i := range vMid {
		vMid[i] = x[nq+i] + 0.5*dt*dx[nq+i]
	}
	rate, err := qdot(x[:nq], vMid)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nq; i++ {
		result[i] = x[i] + dt*rate[i]
	}

	copy(v.scratch, result[:nq])
	copy(v.scratch[nq:], x[nq:])
	dxNew, err := sys.Derive(v.scratch, u, t+dt)
	if err != nil {
		return nil, err
	}

	halfDt := 0.5 * dt
	for i := nq; i < n; i++ {
		result[i] = x[i] + (dx[i]+dxNew[i])*halfDt
	}

	return result, nil
}

// Leapfrog is kick-drift-kick over x = [q; v].
type Leapfrog struct {
	scratch dynamo.State
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) CloneIntegrator() dynamo.Integrator { return NewLeapfrog() }

func (l *Leapfrog) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) (dynamo.State, error) {
	n := len(x)
	nq, qdot := split(sys, n)
	if len(l.scratch) != n {
		l.scratch = make(dynamo.State, n)
	}

	dx, err := sys.Derive(x, u, t)
	if err != nil {
		return nil, err
	}
	halfDt := dt * 0.5

	for i := nq; i < n; i++ {
		l.scratch[i] = x[i] + dx[i]*halfDt
	}
	rate, err := qdot(x[:nq], l.scratch[nq:])
	if err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	for i := 0; i < nq; i++ {
		result[i] = x[i] + rate[i]*dt
		l.scratch[i] = result[i]
	}

	dxNew, err := sys.Derive(l.scratch, u, t+dt)
	if err != nil {
		return nil, err
	}

	for i := nq; i < n; i++ {
		result[i] = l.scratch[i] + dxNew[i]*halfDt
	}

	return result, nil
}
