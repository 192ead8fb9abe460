package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mbdyn/internal/dynamo"
)

const (
	DefaultDt       = 0.01
	DefaultDuration = 10.0
)

// Config is one simulation run. Zero-length InitState slices keep the
// model's default positions or velocities.
type Config struct {
	Model      string  `yaml:"model"`
	Integrator string  `yaml:"integrator"`
	Dt         float64 `yaml:"dt"`
	Duration   float64 `yaml:"duration"`
	Adaptive   bool    `yaml:"adaptive,omitempty"`
	Tolerance  float64 `yaml:"tolerance,omitempty"`
	// Gravity overrides the model's gravity magnitude, along -z.
	Gravity *float64 `yaml:"gravity,omitempty"`
	// HingeInertiaTolerance of zero keeps the plant default.
	HingeInertiaTolerance float64            `yaml:"hinge_inertia_tolerance,omitempty"`
	Params                map[string]float64 `yaml:"params,omitempty"`
	InitState             InitStateConfig    `yaml:"init_state"`
	// Forces are constant applied generalized forces, one per velocity.
	Forces []float64 `yaml:"forces,omitempty"`
	// Controller of "" or "none" leaves the plant passive.
	Controller       string             `yaml:"controller,omitempty"`
	ControllerParams map[string]float64 `yaml:"controller_params,omitempty"`
}

type InitStateConfig struct {
	Q []float64 `yaml:"q,omitempty,flow"`
	V []float64 `yaml:"v,omitempty,flow"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "pendulum",
		Integrator: "rk4",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		InitState:  InitStateConfig{Q: []float64{0.5}},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// A file that names its own state must not inherit the default one.
	cfg.InitState = InitStateConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", dynamo.ErrParameterBounds)
	}
	if c.Integrator == "" {
		return fmt.Errorf("%w: integrator is required", dynamo.ErrParameterBounds)
	}
	if c.HingeInertiaTolerance < 0 {
		return fmt.Errorf("%w: hinge_inertia_tolerance must not be negative, got %g",
			dynamo.ErrParameterBounds, c.HingeInertiaTolerance)
	}
	return c.Sim().Validate()
}

// Sim returns the integration settings.
func (c *Config) Sim() dynamo.Config {
	sc := dynamo.DefaultConfig()
	sc.Dt = c.Dt
	sc.Duration = c.Duration
	sc.Adaptive = c.Adaptive
	if c.Tolerance > 0 {
		sc.Tolerance = c.Tolerance
	}
	return sc
}

// ModelParams merges Params with the Gravity override.
func (c *Config) ModelParams() map[string]float64 {
	out := make(map[string]float64, len(c.Params)+1)
	for k, v := range c.Params {
		out[k] = v
	}
	if c.Gravity != nil {
		out["gravity"] = *c.Gravity
	}
	return out
}

// Clone returns a deep copy, so presets can be edited by callers.
func (c *Config) Clone() *Config {
	out := *c
	if c.Gravity != nil {
		g := *c.Gravity
		out.Gravity = &g
	}
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	if c.ControllerParams != nil {
		out.ControllerParams = make(map[string]float64, len(c.ControllerParams))
		for k, v := range c.ControllerParams {
			out.ControllerParams[k] = v
		}
	}
	out.InitState.Q = append([]float64(nil), c.InitState.Q...)
	out.InitState.V = append([]float64(nil), c.InitState.V...)
	out.Forces = append([]float64(nil), c.Forces...)
	return &out
}
