// Package kinmath provides the rigid rotation and pose layer used by the
// multibody tree.
//
// The package defines validated value types built on [mgl64] vectors and
// matrices:
//
//   - [RotationMatrix]: proper orthonormal 3x3 matrix, validated on construction
//   - [RigidTransform]: pose X_AB = (R_AB, p_AoBo_A)
//
// and the validation helpers they share ([CheckUnitVector],
// [WarnIfNotUnitVector], [CheckVectorFinite], [CheckVectorMagnitude]).
//
// # Notation
//
// Variable names follow the monogram convention used throughout the
// module: R_AB rotates vectors expressed in B into A, p_AoBo_A is the position
// of Bo from Ao expressed in A, and X_AB = (R_AB, p_AoBo_A).
//
//	X_WB := X_WA.Mul(X_AB)
//	p_WoQ_W := X_WB.TransformPoint(p_BoQ_B)
//
// # Repair
//
// Nothing in this package renormalizes silently. A nearly orthonormal matrix
// fails validation; use [ProjectToClosestRotation] to repair it explicitly.
package kinmath
