package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mbdyn/internal/config"
	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/experiment"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Steps       []*config.Config `yaml:"steps"`
}

// LoadScenario reads a scenario from a YAML file. Every step starts from the
// default config, so steps only name what they change.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Name        string      `yaml:"name"`
		Description string      `yaml:"description"`
		Steps       []yaml.Node `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}

	scenario := &Scenario{Name: raw.Name, Description: raw.Description}
	for i := range raw.Steps {
		cfg := config.DefaultConfig()
		cfg.InitState = config.InitStateConfig{}
		if err := raw.Steps[i].Decode(cfg); err != nil {
			return nil, fmt.Errorf("scenario %s step %d: %w", path, i+1, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %s step %d: %w", path, i+1, err)
		}
		scenario.Steps = append(scenario.Steps, cfg)
	}
	return scenario, nil
}

// RunScenario executes the steps in order and stops at the first failure.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, logger *slog.Logger) ([]*dynamo.Result, error) {
	results := make([]*dynamo.Result, 0, len(scenario.Steps))
	for i, step := range scenario.Steps {
		logger.Info("scenario step", slog.Int("step", i+1), slog.Int("of", len(scenario.Steps)), slog.String("model", step.Model))

		exp := experiment.New(step, registry, logger)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// ParameterSweep runs Base once per value of a model parameter spread evenly
// over [Min, Max].
type ParameterSweep struct {
	Base     *config.Config
	Param    string
	Min      float64
	Max      float64
	NumSteps int
}

type SweepResult struct {
	ParamValue  float64
	FinalState  dynamo.State
	MaxEnergy   float64
	MinEnergy   float64
	EnergyDrift float64
}

func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry, logger *slog.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("%w: sweep needs at least one step", dynamo.ErrParameterBounds)
	}
	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.Max - sweep.Min) / float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	for i := 0; i < sweep.NumSteps; i++ {
		value := sweep.Min + float64(i)*paramStep
		cfg := sweep.Base.Clone()
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[sweep.Param] = value

		exp := experiment.New(cfg, registry, logger)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, value, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, value, err)
		}

		sr := SweepResult{
			ParamValue:  value,
			FinalState:  result.States[len(result.States)-1],
			MinEnergy:   math.Inf(1),
			MaxEnergy:   math.Inf(-1),
			EnergyDrift: result.EnergyDrift,
		}
		for _, x := range result.States {
			e := exp.System().Energy(x)
			sr.MinEnergy = math.Min(sr.MinEnergy, e)
			sr.MaxEnergy = math.Max(sr.MaxEnergy, e)
		}
		results = append(results, sr)
		logger.Debug("sweep point", slog.String(sweep.Param, fmt.Sprint(value)), slog.Int("index", i))
	}
	return results, nil
}

// MonteCarloConfig perturbs the generalized velocities of Base uniformly
// by up to ±Perturbation. Positions are left alone so unit quaternions stay
// valid.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
	// Bound on |x| below which a final state counts as stable.
	Bound float64
}

type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalState dynamo.State
	Stable     bool
}

// RunMonteCarlo runs every trial concurrently on clones of one plant.
func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, registry *experiment.Registry, logger *slog.Logger) ([]MonteCarloResult, error) {
	if mc.NumTrials < 1 {
		return nil, fmt.Errorf("%w: monte carlo needs at least one trial", dynamo.ErrParameterBounds)
	}
	exp := experiment.New(mc.Base.Clone(), registry, logger)
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	bound := mc.Bound
	if bound <= 0 {
		bound = 1e6
	}

	rng := rand.New(rand.NewSource(mc.Seed))
	base := exp.InitialState()
	nq := exp.Plant().NumPositions()
	initial := make([]dynamo.State, mc.NumTrials)
	for trial := range initial {
		x := base.Clone()
		for i := nq; i < len(x); i++ {
			x[i] += (rng.Float64() - 0.5) * 2 * mc.Perturbation
		}
		initial[trial] = x
	}

	runs, err := dynamo.NewEnsemble(exp.Simulator(), mc.Seed).Run(ctx, initial, mc.Base.Sim())
	results := make([]MonteCarloResult, 0, len(runs))
	for trial, result := range runs {
		if result == nil {
			continue
		}
		final := result.States[len(result.States)-1]
		stable := len(result.Errors) == 0
		for _, v := range final {
			if math.Abs(v) > bound {
				stable = false
				break
			}
		}
		results = append(results, MonteCarloResult{
			TrialID:    trial,
			InitState:  initial[trial],
			FinalState: final,
			Stable:     stable,
		})
	}
	return results, err
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}

// GridSearch tries every combination of controller parameter values on Base
// and keeps the one with the smallest Metric. Combinations that fail to set
// up or run are skipped.
type GridSearch struct {
	Base   *config.Config
	Grid   map[string][]float64
	Metric string
}

func (g *GridSearch) Search(ctx context.Context, registry *experiment.Registry, logger *slog.Logger) (map[string]float64, float64, error) {
	names := make([]string, 0, len(g.Grid))
	for name := range g.Grid {
		names = append(names, name)
	}
	sort.Strings(names)

	best := math.Inf(1)
	var bestParams map[string]float64
	var lastErr error

	var search func(depth int, current map[string]float64) error
	search = func(depth int, current map[string]float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth == len(names) {
			cfg := g.Base.Clone()
			if cfg.ControllerParams == nil {
				cfg.ControllerParams = make(map[string]float64)
			}
			for k, v := range current {
				cfg.ControllerParams[k] = v
			}
			exp := experiment.New(cfg, registry, logger)
			if err := exp.Setup(); err != nil {
				lastErr = err
				return nil
			}
			result, err := exp.Run(ctx)
			if err != nil {
				lastErr = err
				return nil
			}
			val, ok := result.Metrics[g.Metric]
			if !ok {
				return fmt.Errorf("%w: metric %q", experiment.ErrUnknown, g.Metric)
			}
			if val < best {
				best = val
				bestParams = make(map[string]float64, len(current))
				for k, v := range current {
					bestParams[k] = v
				}
			}
			return nil
		}

		for _, val := range g.Grid[names[depth]] {
			next := make(map[string]float64, len(current)+1)
			for k, v := range current {
				next[k] = v
			}
			next[names[depth]] = val
			if err := search(depth+1, next); err != nil {
				return err
			}
		}
		return nil
	}

	if err := search(0, map[string]float64{}); err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		if lastErr == nil {
			return nil, 0, fmt.Errorf("%w: empty grid", dynamo.ErrParameterBounds)
		}
		return nil, 0, fmt.Errorf("no grid point ran: %w", lastErr)
	}
	return bestParams, best, nil
}
