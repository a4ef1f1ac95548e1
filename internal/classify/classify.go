// Package classify assigns each correlated record to exactly one geometric
// category: non-interior-point, non-reflexive, or reflexive.
//
// Classification is a pure function of the combinatorial fields already on
// the record: no I/O, no randomness, deterministic on re-runs.
package classify

import "polyconv/internal/record"

// HasInteriorPoint reports whether a lattice polytope with an interior
// point exists for the record. Records without one carry no polytope data
// at all.
func HasInteriorPoint(info *record.PolytopeInfo) bool {
	return info.VertexCount > 0
}

// IsReflexive reports whether the dual polytope is itself a lattice
// polytope, indicated by a nonzero dual point count.
func IsReflexive(info *record.PolytopeInfo) bool {
	return info.DualPointCount > 0
}

// Classify returns the class of the record. The interior-point test runs
// first: a record without an interior point is never tested for
// reflexivity, so the test order must not change.
func Classify(info *record.PolytopeInfo) record.Class {
	if !HasInteriorPoint(info) {
		return record.NonInteriorPoint
	}
	if !IsReflexive(info) {
		return record.NonReflexive
	}
	return record.Reflexive
}
