package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoublePendulumMatchesClosedForm(t *testing.T) {
	params := DefaultDoublePendulumParams()
	params.M1, params.M2 = 1.3, 0.6
	params.L1, params.L2 = 0.9, 1.4
	d, err := NewDoublePendulum(params)
	require.NoError(t, err)
	ctx, err := d.CreateDefaultContext()
	require.NoError(t, err)

	cases := []struct{ theta1, theta2, omega1, omega2 float64 }{
		{0.2, 0.2, 0, 0},
		{math.Pi / 2, 0, 0, 0},
		{0.7, -0.4, 1.1, -2.3},
		{-2.5, 1.9, -0.3, 0.8},
	}
	for _, tc := range cases {
		// Joint coordinates are relative at the elbow.
		require.NoError(t, ctx.SetPositionsAndVelocities([]float64{
			tc.theta1, tc.theta2 - tc.theta1, tc.omega1, tc.omega2 - tc.omega1,
		}))
		vdot, err := d.EvalForwardDynamics(ctx)
		require.NoError(t, err)

		alpha1, alpha2 := params.AbsoluteAccelerations(tc.theta1, tc.theta2, tc.omega1, tc.omega2)
		assert.InDelta(t, alpha1, vdot[0], 1e-11, "%+v", tc)
		assert.InDelta(t, alpha2-alpha1, vdot[1], 1e-11, "%+v", tc)

		energy := d.CalcKineticEnergy(ctx) + d.CalcPotentialEnergy(ctx)
		assert.InDelta(t, params.Energy(tc.theta1, tc.theta2, tc.omega1, tc.omega2), energy, 1e-12)
	}
}

func TestDoublePendulumLowerBodyPose(t *testing.T) {
	params := DefaultDoublePendulumParams()
	d, err := NewDoublePendulum(params)
	require.NoError(t, err)
	ctx, err := d.CreateDefaultContext()
	require.NoError(t, err)

	require.NoError(t, d.Shoulder.SetAngle(ctx, math.Pi/2))
	X_WL := d.Lower.EvalPoseInWorld(ctx)
	// The elbow sits at the end of the upper rod, swung to -x.
	assert.InDelta(t, -params.L1, X_WL.P[0], 1e-15)
	assert.InDelta(t, 0, X_WL.P[2], 1e-15)
}
