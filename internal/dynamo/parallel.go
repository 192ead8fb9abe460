package dynamo

import (
	"context"
	"runtime"
	"sync"
)

// SystemCloner is implemented by systems that carry mutable evaluation state
// and therefore need one copy per goroutine.
type SystemCloner interface {
	CloneSystem() System
}

// IntegratorCloner is implemented by integrators that keep scratch buffers
// between steps.
type IntegratorCloner interface {
	CloneIntegrator() Integrator
}

// ControllerCloner is implemented by controllers that keep state between
// calls to Compute.
type ControllerCloner interface {
	CloneController() Controller
}

type Ensemble struct {
	base      *Simulator
	seedStart int64
}

func NewEnsemble(s *Simulator, seedStart int64) *Ensemble {
	return &Ensemble{base: s, seedStart: seedStart}
}

// Run simulates every initial state concurrently, one Simulator per run.
func (e *Ensemble) Run(ctx context.Context, initial []State, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(initial))
	errs := make([]error, len(initial))

	var wg sync.WaitGroup
	for i := range initial {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			sys := e.base.sys
			if c, ok := sys.(SystemCloner); ok {
				sys = c.CloneSystem()
			}
			integrator := e.base.integrator
			if c, ok := integrator.(IntegratorCloner); ok {
				integrator = c.CloneIntegrator()
			}
			controller := e.base.controller
			if c, ok := controller.(ControllerCloner); ok {
				controller = c.CloneController()
			}
			// Metrics hold running sums and are not shared across runs.
			s := New(sys, integrator, controller)
			results[idx], errs[idx] = s.Run(ctx, initial[idx], cfgCopy)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// ParallelFor executes fn over [0, n) split into contiguous chunks of at
// least minChunk, one goroutine per chunk.
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	numWorkers := runtime.GOMAXPROCS(0)
	if minChunk < 1 {
		minChunk = 1
	}
	if n <= minChunk || numWorkers <= 1 {
		fn(0, n)
		return
	}

	workers := numWorkers
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers < 1 {
		workers = 1
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}
