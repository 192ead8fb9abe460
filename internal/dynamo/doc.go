// Package dynamo provides the time-stepping contracts the multibody plant is
// driven through.
//
// The package defines the fundamental interfaces and types for numerical
// integration of ordinary differential equations x' = f(x, u, t):
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems, with a fallible derivative
//   - [Integrator]: numerical integrator interface
//   - [Controller]: source of the applied input u at each step
//   - [Simulator]: orchestrates simulation runs
//
// # Example
//
//	plant, _ := models.NewPendulum(models.DefaultPendulumParams())
//	ctx, _ := plant.CreateDefaultContext()
//	sim := dynamo.New(multibody.NewSystem(ctx), integrators.NewRK4(), nil)
//	result, err := sim.Run(ctx, x0, cfg)
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe. For parallel simulations,
// use the [Ensemble] type or [ParallelFor] with one System per worker.
package dynamo
