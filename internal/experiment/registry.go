package experiment

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/mbdyn/internal/control"
	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/integrators"
	"github.com/san-kum/mbdyn/internal/metrics"
	"github.com/san-kum/mbdyn/internal/models"
	"github.com/san-kum/mbdyn/internal/multibody"
)

var ErrUnknown = errors.New("experiment: unknown component")

// ModelBuilder builds a finalized plant from parameter overrides.
type ModelBuilder func(params map[string]float64, opts ...multibody.Option) (*multibody.Plant, error)

// ControllerBuilder builds a controller for sys. Default targets are the
// positions in sys's context; dt is the run's step.
type ControllerBuilder func(sys *multibody.System, params map[string]float64, dt float64) (dynamo.Controller, error)

type Registry struct {
	models      map[string]ModelBuilder
	integrators map[string]func() dynamo.Integrator
	controllers map[string]ControllerBuilder
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]ModelBuilder),
		integrators: make(map[string]func() dynamo.Integrator),
		controllers: make(map[string]ControllerBuilder),
	}

	r.models["pendulum"] = modelBuilder(models.DefaultPendulumParams,
		func(p models.PendulumParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewPendulum(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})
	r.models["double_pendulum"] = modelBuilder(models.DefaultDoublePendulumParams,
		func(p models.DoublePendulumParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewDoublePendulum(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})
	r.models["cartpole"] = modelBuilder(models.DefaultCartPoleParams,
		func(p models.CartPoleParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewCartPole(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})
	r.models["iiwa"] = modelBuilder(models.DefaultIiwaParams,
		func(p models.IiwaParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewIiwa(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})
	r.models["welded_boxes"] = modelBuilder(models.DefaultWeldedBoxesParams,
		func(p models.WeldedBoxesParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewWeldedBoxes(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})
	r.models["inclined_plane"] = modelBuilder(models.DefaultInclinedPlaneParams,
		func(p models.InclinedPlaneParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewInclinedPlaneBlock(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})
	r.models["chain"] = modelBuilder(models.DefaultChainParams,
		func(p models.ChainParams, opts ...multibody.Option) (*multibody.Plant, error) {
			m, err := models.NewChain(p, opts...)
			if err != nil {
				return nil, err
			}
			return m.Plant, nil
		})

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }
	r.integrators["verlet"] = func() dynamo.Integrator { return integrators.NewVerlet() }
	r.integrators["leapfrog"] = func() dynamo.Integrator { return integrators.NewLeapfrog() }

	r.controllers["pid"] = buildPID
	r.controllers["lqr"] = buildLQR

	return r
}

func modelBuilder[P any, PP interface {
	*P
	dynamo.Configurable
}](defaults func() P, build func(P, ...multibody.Option) (*multibody.Plant, error)) ModelBuilder {
	return func(values map[string]float64, opts ...multibody.Option) (*multibody.Plant, error) {
		params := defaults()
		if err := models.ApplyParams(PP(&params), values); err != nil {
			return nil, err
		}
		return build(params, opts...)
	}
}

func (r *Registry) BuildModel(name string, params map[string]float64, opts ...multibody.Option) (*multibody.Plant, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ErrUnknown, name)
	}
	return fn(params, opts...)
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: integrator %q", ErrUnknown, name)
	}
	return fn(), nil
}

// GetController returns nil for "" and "none".
func (r *Registry) GetController(name string, sys *multibody.System, params map[string]float64, dt float64) (dynamo.Controller, error) {
	if name == "" || name == "none" {
		return nil, nil
	}
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%w: controller %q", ErrUnknown, name)
	}
	return fn(sys, params, dt)
}

func (r *Registry) ListModels() []string      { return sortedNames(r.models) }
func (r *Registry) ListIntegrators() []string { return sortedNames(r.integrators) }
func (r *Registry) ListControllers() []string { return append(sortedNames(r.controllers), "none") }

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics(sys *multibody.System) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewEnergy(sys),
		metrics.NewEnergyDrift(sys),
		metrics.NewStability(sys, 100.0),
		metrics.NewControlEffort(),
	}
}

// parseControllerParams fills scalars by name and indexed slices from keys of
// the form <prefix><i>. Any other key is an error.
func parseControllerParams(controller string, params map[string]float64, scalars map[string]*float64, indexed map[string][]float64) error {
	for _, name := range sortedNames(params) {
		value := params[name]
		if dst, ok := scalars[name]; ok {
			*dst = value
			continue
		}
		matched := false
		for prefix, dst := range indexed {
			i, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
			if strings.HasPrefix(name, prefix) && err == nil && i >= 0 && i < len(dst) {
				dst[i] = value
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: %s has no parameter %q", dynamo.ErrParameterBounds, controller, name)
		}
	}
	return nil
}

func buildPID(sys *multibody.System, params map[string]float64, _ float64) (dynamo.Controller, error) {
	kp, ki, kd, gravity := 10.0, 0.0, 2.0, 1.0
	target := sys.Context().Positions()
	err := parseControllerParams("pid", params,
		map[string]*float64{"kp": &kp, "ki": &ki, "kd": &kd, "gravity_comp": &gravity},
		map[string][]float64{"target": target})
	if err != nil {
		return nil, err
	}
	pid, err := control.NewPID(sys, kp, ki, kd, target, gravity != 0)
	if err != nil {
		return nil, err
	}
	return pid, nil
}

func buildLQR(sys *multibody.System, params map[string]float64, dt float64) (dynamo.Controller, error) {
	plant := sys.Plant()
	qWeight, rWeight := 1.0, 1.0
	targetQ := sys.Context().Positions()
	actuate := make([]float64, plant.NumVelocities())
	err := parseControllerParams("lqr", params,
		map[string]*float64{"q_weight": &qWeight, "r_weight": &rWeight},
		map[string][]float64{"target": targetQ, "input": actuate})
	if err != nil {
		return nil, err
	}

	var inputs []int
	for i, a := range actuate {
		if a != 0 {
			inputs = append(inputs, i)
		}
	}
	target := append(dynamo.State(targetQ), make([]float64, plant.NumVelocities())...)
	lqr, err := control.NewPlantLQR(sys, target, inputs, qWeight, rWeight, dt)
	if err != nil {
		return nil, err
	}
	return lqr, nil
}
