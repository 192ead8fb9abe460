package multibody

import (
	"errors"
	"fmt"
)

var (
	ErrFinalized        = errors.New("multibody: plant is finalized, topology can no longer change")
	ErrNotFinalized     = errors.New("multibody: plant must be finalized first")
	ErrDuplicateName    = errors.New("multibody: name already in use")
	ErrTopology         = errors.New("multibody: invalid tree topology")
	ErrWrongPlant       = errors.New("multibody: element belongs to a different plant")
	ErrDimension        = errors.New("multibody: vector has the wrong size")
	ErrNonFinite        = errors.New("multibody: value is NaN or infinite")
	ErrJointType        = errors.New("multibody: operation does not apply to this joint type")
	ErrInvalidParameter = errors.New("multibody: parameter out of valid bounds")
)

// SingularHingeInertiaError reports a hinge inertia D = Hᵀ·P·H that lost
// positive definiteness while factorizing the articulated inertias.
type SingularHingeInertiaError struct {
	NodeIndex int
}

func (e *SingularHingeInertiaError) Error() string {
	return fmt.Sprintf("Encountered singular articulated body hinge inertia for body node index %d. "+
		"Please ensure that this body has non-zero inertia along all axes of motion.", e.NodeIndex)
}
