package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/multibody"
)

var iiwaPose = [7]float64{0.1, -0.4, 0.7, -1.2, 0.3, 0.9, -0.5}

func newIiwaContext(t *testing.T, params IiwaParams) (*Iiwa, *multibody.Context) {
	t.Helper()
	arm, err := NewIiwa(params)
	require.NoError(t, err)
	ctx, err := arm.CreateDefaultContext()
	require.NoError(t, err)
	require.NoError(t, arm.SetJointAngles(ctx, iiwaPose))
	return arm, ctx
}

func TestRollPitchYawIsValidRotation(t *testing.T) {
	for _, l := range iiwaLinks {
		R := rollPitchYaw(l.rpy)
		assert.True(t, R.IsValid())
		assert.InDelta(t, 1.0, R.Matrix().Det(), 1e-14)
	}
}

func TestIiwaDimensions(t *testing.T) {
	anchored, err := NewIiwa(DefaultIiwaParams())
	require.NoError(t, err)
	assert.Equal(t, 7, anchored.NumPositions())
	assert.Equal(t, 7, anchored.NumVelocities())

	params := DefaultIiwaParams()
	params.Floating = true
	floating, err := NewIiwa(params)
	require.NoError(t, err)
	assert.Equal(t, 14, floating.NumPositions())
	assert.Equal(t, 13, floating.NumVelocities())
	_, ok := floating.JointByName("$world_iiwa_link_0")
	assert.True(t, ok)
}

func TestIiwaMassMatrixIsPositiveDefinite(t *testing.T) {
	arm, ctx := newIiwaContext(t, DefaultIiwaParams())
	M := arm.CalcMassMatrixViaInverseDynamics(ctx)
	var chol mat.Cholesky
	require.True(t, chol.Factorize(M))
	assert.Less(t, chol.Cond(), 1e6)
}

func TestIiwaGravityCompensationHolds(t *testing.T) {
	arm, ctx := newIiwaContext(t, DefaultIiwaParams())
	tauG := arm.CalcGravityGeneralizedForces(ctx)
	floats.Scale(-1, tauG)
	require.NoError(t, ctx.SetAppliedGeneralizedForces(tauG))

	vdot, err := arm.EvalForwardDynamics(ctx)
	require.NoError(t, err)
	assert.Less(t, floats.Norm(vdot, 2), 1e-11)
}

func TestIiwaInverseDynamicsInvertsForwardDynamics(t *testing.T) {
	params := DefaultIiwaParams()
	params.Damping = 0.5
	arm, ctx := newIiwaContext(t, params)
	require.NoError(t, arm.SetJointRates(ctx, [7]float64{0.3, -0.2, 0.5, 0.1, -0.6, 0.4, 0.2}))
	tau := []float64{1, -2, 0.5, 3, -0.7, 0.2, 0.05}
	require.NoError(t, ctx.SetAppliedGeneralizedForces(tau))

	vdot, err := arm.EvalForwardDynamics(ctx)
	require.NoError(t, err)
	got, err := arm.CalcInverseDynamics(ctx, vdot, arm.CalcForceElementsContribution(ctx))
	require.NoError(t, err)
	assert.InDeltaSlice(t, tau, got, 1e-10)
}
