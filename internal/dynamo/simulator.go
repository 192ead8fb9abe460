package dynamo

import (
	"context"
	"fmt"
	"math"
)

type Simulator struct {
	sys        System
	integrator Integrator
	controller Controller
	metrics    []Metric
	observers  []Observer
}

// New builds a simulator. A nil controller applies zero input.
func New(sys System, integrator Integrator, controller Controller) *Simulator {
	if controller == nil {
		controller = ZeroControl{Dim: sys.ControlDim()}
	}
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		controller: controller,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run integrates from x0 for cfg.Duration. A failed derivative evaluation or
// an invalid state stops the run; the partial result is returned together
// with a *SimulationError.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != s.sys.StateDim() {
		return nil, fmt.Errorf("%w: state has %d entries, system expects %d",
			ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		States:   make([]State, 0, steps+1),
		Controls: make([]Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	initialEnergy := s.computeEnergy(x)

	var runErr error
	for i := 0; t < cfg.Duration-1e-12*cfg.Dt && (cfg.Adaptive || i < steps); i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		u := s.controller.Compute(x, t)

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		var newX State
		var stepErr error
		h := math.Min(dt, cfg.Duration-t)
		if cfg.Adaptive {
			newX, h, dt, stepErr = s.adaptiveStep(x, u, t, h, cfg)
		} else {
			newX, stepErr = s.integrator.Step(s.sys, x, u, t, h)
		}

		if stepErr == nil && cfg.ValidateState && !newX.IsValid() {
			stepErr = ErrInvalidState
		}
		if stepErr != nil {
			runErr = &SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: stepErr}
			result.Errors = append(result.Errors, runErr)
			break
		}

		x = newX
		t += h
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	finalEnergy := s.computeEnergy(x)
	if initialEnergy != 0 {
		result.EnergyDrift = math.Abs(finalEnergy-initialEnergy) / math.Abs(initialEnergy)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, runErr
}

func (s *Simulator) computeEnergy(x State) float64 {
	if h, ok := s.sys.(Hamiltonian); ok {
		return h.Energy(x)
	}
	return 0
}

// adaptiveStep returns the new state, the step actually taken and the
// suggested next step.
func (s *Simulator) adaptiveStep(x State, u Control, t, dt float64, cfg Config) (State, float64, float64, error) {
	if adaptive, ok := s.integrator.(AdaptiveIntegrator); ok {
		newX, next, err := adaptive.StepAdaptive(s.sys, x, u, t, dt, cfg.Tolerance)
		if err != nil {
			return nil, 0, 0, err
		}
		if cfg.MaxDt > 0 {
			next = math.Min(next, cfg.MaxDt)
		}
		return newX, dt, next, nil
	}

	// Step doubling: compare one full step against two half steps.
	for {
		x1, err := s.integrator.Step(s.sys, x, u, t, dt)
		if err != nil {
			return nil, 0, 0, err
		}
		xHalf, err := s.integrator.Step(s.sys, x, u, t, dt/2)
		if err != nil {
			return nil, 0, 0, err
		}
		x2, err := s.integrator.Step(s.sys, xHalf, u, t+dt/2, dt/2)
		if err != nil {
			return nil, 0, 0, err
		}

		errNorm := x1.Sub(x2).Norm()
		if errNorm > cfg.Tolerance {
			if dt/2 < cfg.MinDt {
				return nil, 0, 0, ErrStepTooSmall
			}
			dt /= 2
			continue
		}

		next := dt
		if errNorm < cfg.Tolerance/10 && dt < cfg.MaxDt {
			next = math.Min(dt*2, cfg.MaxDt)
		}
		return x2, dt, next, nil
	}
}

// RunWithCallback steps until the duration elapses or callback returns false.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 State, cfg Config, callback func(State, Control, float64) bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	for i := 0; t < cfg.Duration; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		u := s.controller.Compute(x, t)

		if !callback(x, u, t) {
			return nil
		}

		next, err := s.integrator.Step(s.sys, x, u, t, dt)
		if err == nil && cfg.ValidateState && !next.IsValid() {
			err = ErrInvalidState
		}
		if err != nil {
			return &SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		}
		x = next
		t += dt
	}

	return nil
}
