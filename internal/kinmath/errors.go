package kinmath

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
)

// Validation errors for rotation and vector inputs.
var (
	// ErrNonFiniteRotation indicates a rotation matrix with a NaN or infinite element.
	ErrNonFiniteRotation = errors.New("kinmath: rotation matrix contains an element that is infinity or NaN")

	// ErrNotOrthonormal indicates RᵀR deviates from identity beyond tolerance.
	ErrNotOrthonormal = errors.New("kinmath: rotation matrix is not orthonormal")

	// ErrImproperRotation indicates a negative determinant (left-handed basis).
	ErrImproperRotation = errors.New("kinmath: rotation matrix determinant is negative, a basis may be left-handed")

	// ErrNotUnitVector indicates a vector whose magnitude deviates from 1.
	ErrNotUnitVector = errors.New("kinmath: not a unit vector")

	// ErrNonFiniteVector indicates a vector with a NaN or infinite element.
	ErrNonFiniteVector = errors.New("kinmath: vector contains a NaN or infinity")

	// ErrVectorTooSmall indicates a vector too short to define a direction.
	ErrVectorTooSmall = errors.New("kinmath: vector magnitude below required minimum")

	// ErrInvalidAngleBounds indicates angle_ub < angle_lb or a NaN bound.
	ErrInvalidAngleBounds = errors.New("kinmath: angle upper bound is smaller than the lower bound")

	// ErrZeroAxis indicates a zero axis where a direction is required.
	ErrZeroAxis = errors.New("kinmath: axis cannot be the zero vector")
)

// UnitVectorError reports a failed unit-vector check with the offending
// magnitude and its deviation from 1.
type UnitVectorError struct {
	Function  string
	Vector    mgl64.Vec3
	Norm      float64
	Deviation float64
	Tolerance float64
	NonFinite bool
}

func (e *UnitVectorError) Error() string {
	if e.NonFinite {
		return fmt.Sprintf("%s(): The unit_vector argument %s is not a unit vector"+
			" because it contains a NaN or infinity element.",
			e.Function, formatVec(e.Vector))
	}
	return fmt.Sprintf("%s(): The unit_vector argument %s is not a unit vector.\n"+
		"|unit_vector| = %s\n"+
		"||unit_vector| - 1| = %s is greater than %s.",
		e.Function, formatVec(e.Vector), formatFloat(e.Norm),
		formatFloat(e.Deviation), formatFloat(e.Tolerance))
}

func (e *UnitVectorError) Is(target error) bool {
	if target == ErrNotUnitVector {
		return true
	}
	return e.NonFinite && target == ErrNonFiniteVector
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func formatVec(v mgl64.Vec3) string {
	return formatFloat(v[0]) + " " + formatFloat(v[1]) + " " + formatFloat(v[2])
}
