package models

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/mbdyn/internal/dynamo"
)

const (
	DefaultMass    = 1.0
	DefaultLength  = 1.0
	DefaultGravity = 9.81
)

var ErrUnknownParam = errors.New("models: unknown parameter")

// paramSet maps parameter names to the fields of a params struct so builders
// can be configured from a map the way the CLI and config files do.
type paramSet map[string]*float64

func (s paramSet) values() map[string]float64 {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = *v
	}
	return out
}

func (s paramSet) set(model, name string, value float64) error {
	field, ok := s[name]
	if !ok {
		return fmt.Errorf("%w: %s has no parameter %q (known: %v)", ErrUnknownParam, model, name, s.names())
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s.%s = %g", dynamo.ErrParameterBounds, model, name, value)
	}
	*field = value
	return nil
}

func (s paramSet) names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ApplyParams sets every entry of values on c.
func ApplyParams(c dynamo.Configurable, values map[string]float64) error {
	for _, name := range sortedKeys(values) {
		if err := c.SetParam(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func positive(model, name string, v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%w: %s.%s must be positive, got %g", dynamo.ErrParameterBounds, model, name, v)
	}
	return nil
}

func nonNegative(model, name string, v float64) error {
	if !(v >= 0) {
		return fmt.Errorf("%w: %s.%s must not be negative, got %g", dynamo.ErrParameterBounds, model, name, v)
	}
	return nil
}

func down(g float64) mgl64.Vec3 { return mgl64.Vec3{0, 0, -g} }
