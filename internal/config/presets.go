package config

import (
	"math"
	"sort"
)

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"small": {
			Model: "pendulum", Integrator: "rk4", Dt: 0.01, Duration: 20.0,
			InitState: InitStateConfig{Q: []float64{0.2}},
		},
		"large": {
			Model: "pendulum", Integrator: "rk4", Dt: 0.01, Duration: 20.0,
			InitState: InitStateConfig{Q: []float64{2.5}},
		},
		"spinning": {
			Model: "pendulum", Integrator: "rk4", Dt: 0.01, Duration: 30.0,
			Params:    map[string]float64{"damping": 0},
			InitState: InitStateConfig{Q: []float64{0.1}, V: []float64{8.0}},
		},
	},
	"double_pendulum": {
		"symmetric": {
			Model: "double_pendulum", Integrator: "rk4", Dt: 0.005, Duration: 30.0,
			InitState: InitStateConfig{Q: []float64{1.5, 0}},
		},
		"chaos": {
			Model: "double_pendulum", Integrator: "rk45", Dt: 0.005, Duration: 60.0, Adaptive: true, Tolerance: 1e-9,
			InitState: InitStateConfig{Q: []float64{3.0, 0}},
		},
		"gentle": {
			Model: "double_pendulum", Integrator: "verlet", Dt: 0.01, Duration: 30.0,
			InitState: InitStateConfig{Q: []float64{0.3, 0}},
		},
	},
	"cartpole": {
		"hanging": {
			Model: "cartpole", Integrator: "rk4", Dt: 0.01, Duration: 10.0,
			InitState: InitStateConfig{Q: []float64{0, 0.1}},
		},
		"upright": {
			Model: "cartpole", Integrator: "rk4", Dt: 0.01, Duration: 10.0,
			InitState: InitStateConfig{Q: []float64{0, math.Pi - 0.05}},
		},
		"push": {
			Model: "cartpole", Integrator: "rk4", Dt: 0.01, Duration: 5.0,
			Forces: []float64{5, 0},
		},
		"balance": {
			Model: "cartpole", Integrator: "rk4", Dt: 0.01, Duration: 10.0,
			InitState:        InitStateConfig{Q: []float64{0, math.Pi - 0.1}},
			Controller:       "lqr",
			ControllerParams: map[string]float64{"target1": math.Pi, "input0": 1},
		},
	},
	"iiwa": {
		"droop": {
			Model: "iiwa", Integrator: "rk4", Dt: 0.001, Duration: 2.0,
			Params:    map[string]float64{"damping": 0.5},
			InitState: InitStateConfig{Q: []float64{0, 0.6, 0, -1.2, 0, 0.6, 0}},
		},
		"zero_g": {
			Model: "iiwa", Integrator: "rk4", Dt: 0.001, Duration: 2.0,
			Gravity:   ptr(0),
			InitState: InitStateConfig{V: []float64{0.5, -0.5, 0.5, -0.5, 0.5, -0.5, 0.5}},
		},
		"hold": {
			Model: "iiwa", Integrator: "rk4", Dt: 0.001, Duration: 3.0,
			Controller: "pid",
			ControllerParams: map[string]float64{
				"kp": 100, "kd": 20, "gravity_comp": 1, "target1": 0.6, "target3": -1.2,
			},
		},
		"floating": {
			Model: "iiwa", Integrator: "rk4", Dt: 0.001, Duration: 1.0,
			Params: map[string]float64{"floating": 1},
		},
	},
	"welded_boxes": {
		"static": {Model: "welded_boxes", Integrator: "euler", Dt: 0.01, Duration: 1.0},
	},
	"inclined_plane": {
		"drop": {Model: "inclined_plane", Integrator: "rk4", Dt: 0.001, Duration: 0.4},
		"tumble": {
			Model: "inclined_plane", Integrator: "rk4", Dt: 0.001, Duration: 0.4,
			InitState: InitStateConfig{V: []float64{0.3, 4, 0.2, 0, 0, 1}},
		},
	},
	"chain": {
		"heavy_tip": {
			Model: "chain", Integrator: "rk4", Dt: 0.01, Duration: 5.0,
			Params: map[string]float64{"revolute": 1, "mass2": 1e3},
			Forces: []float64{1, 0, 0},
		},
		"slider": {
			Model: "chain", Integrator: "euler", Dt: 0.01, Duration: 5.0,
			Forces: []float64{3, 0, -1},
		},
	},
}

func ptr(x float64) *float64 { return &x }

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
