// Package record defines the typed records flowing through the conversion
// pipeline and the parsers that produce them from the legacy text streams.
//
// # Record Types
//
//   - WeightSystem: one weight system, keyed, parsed from the weight-system stream
//   - PolytopeInfo: combinatorial data for the polytope of a weight system
//   - Correlated: a WeightSystem joined with its PolytopeInfo by key
//
// Records are immutable once parsed; the pipeline owns each Correlated
// record exclusively while it is in flight.
package record

// Class is the geometric category of a correlated record.
//
// The three variants are mutually exclusive and exhaustive: every record
// that survives correlation lands in exactly one of them.
type Class uint8

const (
	// NonInteriorPoint marks weight systems whose polytope has no
	// interior lattice point.
	NonInteriorPoint Class = iota
	// NonReflexive marks weight systems with an interior point whose
	// polytope is not reflexive.
	NonReflexive
	// Reflexive marks weight systems defining a reflexive polytope.
	Reflexive

	// NumClasses is the number of Class variants.
	NumClasses = 3
)

// String returns the canonical name of the class.
func (c Class) String() string {
	switch c {
	case NonInteriorPoint:
		return "non-ip"
	case NonReflexive:
		return "non-reflexive"
	case Reflexive:
		return "reflexive"
	default:
		return "unknown"
	}
}

// WeightSystem is one parsed line of the weight-system stream: an ordered
// sequence of positive integer weights defining a graded polynomial ring.
type WeightSystem struct {
	Key     uint64
	Weights []int32
	Line    int
}

// Dimension returns the number of weights.
func (w *WeightSystem) Dimension() int { return len(w.Weights) }

// Degree returns the total degree implied by the weights.
func (w *WeightSystem) Degree() int64 {
	var d int64
	for _, v := range w.Weights {
		d += int64(v)
	}
	return d
}

// PolytopeInfo is one parsed line of the polytope-info stream.
//
// A zero VertexCount means no lattice polytope with an interior point
// exists for the weight system; a zero DualPointCount means the polytope
// is not reflexive. HodgeNumbers are present only for reflexive records.
type PolytopeInfo struct {
	Key            uint64
	VertexCount    int32
	FacetCount     int32
	PointCount     int32
	DualPointCount int32
	HodgeNumbers   []int32
	Line           int
}

// Quantities holds the derived numeric fields computed by the enricher.
type Quantities struct {
	H22                 int32
	EulerCharacteristic int32
}

// Correlated combines one WeightSystem with its PolytopeInfo. Class is
// assigned by the classifier; Derived stays nil unless enrichment is
// enabled and succeeded for this record.
type Correlated struct {
	WeightSystem *WeightSystem
	Info         *PolytopeInfo
	Class        Class
	Derived      *Quantities
}
