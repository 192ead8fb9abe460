package control

import (
	"fmt"
	"sort"

	"github.com/san-kum/mbdyn/internal/dynamo"
	"github.com/san-kum/mbdyn/internal/multibody"
)

// PID tracks joint position targets:
//
//	u = Kp·e + Ki·∫e dt − Kd·v,  e = q* − q
//
// With gravity compensation −τ_g(q) is added. The plant's velocities must be
// its position rates (nq == nv).
type PID struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Target []float64

	plant    *multibody.Plant
	ctx      *multibody.Context
	integral []float64
	prevT    float64
	first    bool
}

var (
	_ dynamo.Configurable     = (*PID)(nil)
	_ dynamo.ControllerCloner = (*PID)(nil)
)

// NewPID builds a PID for sys. A nil target holds q = 0.
func NewPID(sys *multibody.System, kp, ki, kd float64, target []float64, gravityCompensation bool) (*PID, error) {
	plant := sys.Plant()
	nq, nv := plant.NumPositions(), plant.NumVelocities()
	if nq != nv {
		return nil, fmt.Errorf("%w: PID needs one position per velocity, plant has %d and %d",
			dynamo.ErrDimensionMismatch, nq, nv)
	}
	if target == nil {
		target = make([]float64, nq)
	}
	if len(target) != nq {
		return nil, fmt.Errorf("%w: %d targets for %d positions", dynamo.ErrDimensionMismatch, len(target), nq)
	}
	p := &PID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		Target:   append([]float64(nil), target...),
		plant:    plant,
		integral: make([]float64, nq),
		first:    true,
	}
	if gravityCompensation {
		p.ctx = sys.Context().Clone()
	}
	return p, nil
}

func (p *PID) Compute(x dynamo.State, t float64) dynamo.Control {
	nq := len(p.integral)
	q, v := x[:nq], x[nq:]

	dt := 0.0
	if !p.first {
		dt = t - p.prevT
	}
	p.first = false
	p.prevT = t

	u := make(dynamo.Control, nq)
	for i := range u {
		e := p.Target[i] - q[i]
		if dt > 0 {
			p.integral[i] += e * dt
		}
		u[i] = p.Kp*e + p.Ki*p.integral[i] - p.Kd*v[i]
	}

	if p.ctx != nil && p.ctx.SetPositions(q) == nil {
		for i, g := range p.plant.CalcGravityGeneralizedForces(p.ctx) {
			u[i] -= g
		}
	}
	return u
}

// CloneController returns a PID with the same gains and a fresh integral.
func (p *PID) CloneController() dynamo.Controller {
	c := *p
	c.Target = append([]float64(nil), p.Target...)
	c.integral = make([]float64, len(p.integral))
	c.first = true
	if p.ctx != nil {
		c.ctx = p.ctx.Clone()
	}
	return &c
}

func (p *PID) GetParams() map[string]float64 {
	params := map[string]float64{"kp": p.Kp, "ki": p.Ki, "kd": p.Kd}
	for i, q := range p.Target {
		params[fmt.Sprintf("target%d", i)] = q
	}
	return params
}

func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "kp":
		p.Kp = value
	case "ki":
		p.Ki = value
	case "kd":
		p.Kd = value
	default:
		var i int
		if _, err := fmt.Sscanf(name, "target%d", &i); err != nil || i < 0 || i >= len(p.Target) {
			names := make([]string, 0)
			for k := range p.GetParams() {
				names = append(names, k)
			}
			sort.Strings(names)
			return fmt.Errorf("%w: PID has no parameter %q (known: %v)", dynamo.ErrParameterBounds, name, names)
		}
		p.Target[i] = value
	}
	return nil
}
