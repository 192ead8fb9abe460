// Package control provides feedback controllers for multibody systems.
//
// Controllers implement the [dynamo.Controller] interface and return applied
// generalized forces, one per velocity of the plant:
//
//   - [PID]: joint-space PID with optional gravity compensation
//   - [LQR]: linear quadratic regulator about an equilibrium, designed with
//     [NewPlantLQR] from the plant's linearization
//
// # Usage
//
//	sys := multibody.NewSystem(ctx)
//	pid, _ := control.NewPID(sys, 50, 0, 10, target, true)
//	sim := dynamo.New(sys, integrators.NewRK4(), pid)
//
// [PID] implements [dynamo.Configurable] for live tuning.
package control
