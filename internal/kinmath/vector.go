package kinmath

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// UnitVectorTolerance is the allowed |‖u‖ − 1| for a unit vector.
const UnitVectorTolerance = 4 * epsilon

const epsilon = 0x1p-52

var (
	logger atomic.Pointer[slog.Logger]
	warned sync.Map
)

// SetLogger replaces the logger used for non-fatal validation warnings.
// A nil logger restores slog.Default().
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func warnLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Skew returns the cross-product matrix [v]ₓ so that [v]ₓ·w = v × w.
func Skew(v mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3FromRows(
		mgl64.Vec3{0, -v[2], v[1]},
		mgl64.Vec3{v[2], 0, -v[0]},
		mgl64.Vec3{-v[1], v[0], 0},
	)
}

// IsFiniteVec reports whether every element of v is finite.
func IsFiniteVec(v mgl64.Vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// CheckVectorFinite fails when v contains a NaN or infinity.
func CheckVectorFinite(v mgl64.Vec3, functionName string) error {
	if !IsFiniteVec(v) {
		return fmt.Errorf("%s() was passed an invalid vector argument %s: %w",
			functionName, formatVec(v), ErrNonFiniteVector)
	}
	return nil
}

// CheckVectorMagnitude fails when v is non-finite or shorter than minMagnitude.
func CheckVectorMagnitude(v mgl64.Vec3, functionName string, minMagnitude float64) error {
	if err := CheckVectorFinite(v, functionName); err != nil {
		return err
	}
	if n := v.Len(); n < minMagnitude {
		return fmt.Errorf("%s(): the vector %s with magnitude %s is smaller than the required minimum %s;"+
			" pass a normalized vector if its direction is meaningful: %w",
			functionName, formatVec(v), formatFloat(n), formatFloat(minMagnitude), ErrVectorTooSmall)
	}
	return nil
}

// CheckUnitVector returns ‖v‖² and fails when |‖v‖ − 1| exceeds
// UnitVectorTolerance or v is not finite.
func CheckUnitVector(v mgl64.Vec3, functionName string) (float64, error) {
	normSq := v.Dot(v)
	if err := unitVectorError(v, normSq, functionName); err != nil {
		return normSq, err
	}
	return normSq, nil
}

// WarnIfNotUnitVector performs the CheckUnitVector test but only logs. The
// first offence per function name is logged; later ones are silent.
func WarnIfNotUnitVector(v mgl64.Vec3, functionName string) float64 {
	normSq := v.Dot(v)
	err := unitVectorError(v, normSq, functionName)
	if err == nil {
		return normSq
	}
	if _, seen := warned.LoadOrStore(functionName, struct{}{}); !seen {
		warnLogger().Warn(err.Error(),
			slog.String("function", functionName),
			slog.Float64("norm_squared", normSq))
	}
	return normSq
}

func unitVectorError(v mgl64.Vec3, normSq float64, functionName string) *UnitVectorError {
	if !IsFiniteVec(v) {
		return &UnitVectorError{
			Function:  functionName,
			Vector:    v,
			Norm:      math.Sqrt(normSq),
			Deviation: math.NaN(),
			Tolerance: UnitVectorTolerance,
			NonFinite: true,
		}
	}
	norm := math.Sqrt(normSq)
	deviation := math.Abs(norm - 1)
	if deviation <= UnitVectorTolerance {
		return nil
	}
	return &UnitVectorError{
		Function:  functionName,
		Vector:    v,
		Norm:      norm,
		Deviation: deviation,
		Tolerance: UnitVectorTolerance,
	}
}
