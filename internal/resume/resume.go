// Package resume makes repeated conversion runs idempotent: keys already
// present in a prior output partition are skipped instead of re-emitted.
//
// Membership sets are roaring bitmaps rather than sorted slices; with key
// counts in the tens of millions the compressed bitmaps keep the resident
// set small while membership stays effectively constant time.
package resume

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"polyconv/internal/pqcol"
	"polyconv/internal/record"
)

// Filter holds the already-converted key set of each output partition.
// The zero value is not usable; call NewFilter.
type Filter struct {
	sets [record.NumClasses]*roaring64.Bitmap
	dims [record.NumClasses]int
}

// NewFilter returns a Filter with empty key sets: every key is new.
func NewFilter() *Filter {
	f := &Filter{}
	for i := range f.sets {
		f.sets[i] = roaring64.New()
	}
	return f
}

// Load reads the key column of a prior output file for the given class.
// An empty path is a no-op, meaning start fresh for that partition.
func (f *Filter) Load(class record.Class, path string) error {
	if path == "" {
		return nil
	}

	keys, meta, err := pqcol.ReadKeys(path)
	if err != nil {
		return fmt.Errorf("failed to load %s resume state: %w", class, err)
	}

	wantIP := class != record.NonInteriorPoint
	wantReflexive := class == record.Reflexive
	if meta.IP != wantIP || meta.Reflexive != wantReflexive {
		return fmt.Errorf("prior %s output %s describes a different partition", class, path)
	}

	f.sets[class] = keys
	f.dims[class] = meta.Dimension

	return nil
}

// Contains reports whether key was already written to the partition of
// the given class in a prior run.
func (f *Filter) Contains(class record.Class, key uint64) bool {
	return f.sets[class].Contains(key)
}

// Len returns the number of resume keys loaded for a class.
func (f *Filter) Len(class record.Class) uint64 {
	return f.sets[class].GetCardinality()
}

// CheckDimension verifies that every loaded prior output was produced for
// the given dimension. Called once the current run's dimension is known.
func (f *Filter) CheckDimension(dim int) error {
	for class, d := range f.dims {
		if d != 0 && d != dim {
			return fmt.Errorf("prior %s output has dimension %d, input has %d", record.Class(class), d, dim)
		}
	}
	return nil
}
