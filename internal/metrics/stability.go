package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mbdyn/internal/dynamo"
)

// Stability is the fraction of observed states whose generalized velocities
// all stay within threshold. For a system that is not second order the whole
// state is checked.
type Stability struct {
	name       string
	threshold  float64
	nq         int
	violations int
	samples    int
}

func NewStability(sys dynamo.System, threshold float64) *Stability {
	s := &Stability{name: "stability", threshold: threshold}
	if so, ok := sys.(dynamo.SecondOrderSystem); ok {
		s.nq = so.NumPositions()
	}
	return s
}

func (s *Stability) Name() string { return s.name }

func (s *Stability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	v := x[min(s.nq, len(x)):]
	if len(v) == 0 {
		return
	}
	if n := floats.Norm(v, math.Inf(1)); n > s.threshold || math.IsNaN(n) {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
