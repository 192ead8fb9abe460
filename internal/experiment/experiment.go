package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/mbdyn/internal/config"
	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/multibody"
)

// Experiment is one configured run: a plant, its initial context and the
// simulator that integrates it.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	logger    *slog.Logger
	plant     *multibody.Plant
	context   *multibody.Context
	system    *multibody.System
	simulator *dynamo.Simulator
}

func New(cfg *config.Config, registry *Registry, logger *slog.Logger) *Experiment {
	if logger == nil {
		logger = slog.Default()
	}
	return &Experiment{cfg: cfg, registry: registry, logger: logger}
}

// Setup builds the plant and initial context from the config, then the
// integrator, controller and default metrics.
func (e *Experiment) Setup() error {
	cfg := e.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := []multibody.Option{multibody.WithLogger(e.logger)}
	if cfg.HingeInertiaTolerance > 0 {
		opts = append(opts, multibody.WithHingeInertiaTolerance(cfg.HingeInertiaTolerance))
	}
	plant, err := e.registry.BuildModel(cfg.Model, cfg.ModelParams(), opts...)
	if err != nil {
		return fmt.Errorf("model %s: %w", cfg.Model, err)
	}
	ctx, err := plant.CreateDefaultContext()
	if err != nil {
		return err
	}
	if len(cfg.InitState.Q) > 0 {
		if err := ctx.SetPositions(cfg.InitState.Q); err != nil {
			return fmt.Errorf("init_state.q: %w", err)
		}
	}
	if len(cfg.InitState.V) > 0 {
		if err := ctx.SetVelocities(cfg.InitState.V); err != nil {
			return fmt.Errorf("init_state.v: %w", err)
		}
	}
	if len(cfg.Forces) > 0 {
		if err := ctx.SetAppliedGeneralizedForces(cfg.Forces); err != nil {
			return fmt.Errorf("forces: %w", err)
		}
	}
	sys := multibody.NewSystem(ctx)

	integrator, err := e.registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}
	controller, err := e.registry.GetController(cfg.Controller, sys, cfg.ControllerParams, cfg.Dt)
	if err != nil {
		return fmt.Errorf("controller %s: %w", cfg.Controller, err)
	}
	switch {
	case controller == nil && len(cfg.Forces) > 0:
		controller = dynamo.ConstantControl(cfg.Forces)
	case controller != nil && len(cfg.Forces) > 0:
		controller = &biased{Controller: controller, bias: cfg.Forces}
	}

	e.plant, e.context, e.system = plant, ctx, sys
	e.simulator = dynamo.New(sys, integrator, controller)
	for _, m := range e.registry.DefaultMetrics(sys) {
		e.simulator.AddMetric(m)
	}

	e.logger.Info("experiment ready",
		slog.String("model", cfg.Model),
		slog.String("integrator", cfg.Integrator),
		slog.String("controller", cfg.Controller),
		slog.Int("positions", plant.NumPositions()),
		slog.Int("velocities", plant.NumVelocities()))
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	result, err := e.simulator.Run(ctx, e.InitialState(), e.cfg.Sim())
	if err != nil {
		e.logger.Warn("run stopped", slog.Any("error", err))
		return result, err
	}
	e.logger.Debug("run finished",
		slog.Int("steps", result.StepsTaken),
		slog.Float64("energy_drift", result.EnergyDrift))
	return result, nil
}

// InitialState is x0 = [q; v] of the configured context.
func (e *Experiment) InitialState() dynamo.State {
	return dynamo.State(e.context.PositionsAndVelocities())
}

func (e *Experiment) Plant() *multibody.Plant      { return e.plant }
func (e *Experiment) Context() *multibody.Context  { return e.context }
func (e *Experiment) System() *multibody.System    { return e.system }
func (e *Experiment) Simulator() *dynamo.Simulator { return e.simulator }
func (e *Experiment) Config() *config.Config       { return e.cfg }

// biased adds constant generalized forces to a controller's output.
type biased struct {
	dynamo.Controller
	bias dynamo.Control
}

func (b *biased) Compute(x dynamo.State, t float64) dynamo.Control {
	u := b.Controller.Compute(x, t)
	for i := range u {
		u[i] += b.bias[i]
	}
	return u
}

func (b *biased) CloneController() dynamo.Controller {
	inner := b.Controller
	if c, ok := inner.(dynamo.ControllerCloner); ok {
		inner = c.CloneController()
	}
	return &biased{Controller: inner, bias: b.bias}
}
