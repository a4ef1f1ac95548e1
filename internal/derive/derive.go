// Package derive computes the optional derived quantities for reflexive
// six-dimensional weight systems: the hodge number h22 and the euler
// characteristic of the associated Calabi-Yau fourfold.
//
// Enrichment is flag-gated and skippable: disabling it changes nothing
// else in the pipeline. A per-record failure leaves the record intact with
// Derived unset; the base classification stays valid.
package derive

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"polyconv/internal/record"
)

// DeriveError reports a record whose derived quantities could not be
// computed. Recoverable: the record is written without the derived
// columns.
type DeriveError struct {
	Key    uint64
	Reason string
}

func (e *DeriveError) Error() string {
	return fmt.Sprintf("derived quantities for key %d: %s", e.Key, e.Reason)
}

// h22 computes the remaining hodge number of a Calabi-Yau fourfold from
// h11, h12 and h13.
func h22(h11, h12, h13 int64) int64 {
	return 44 + 4*h11 + 4*h13 - 2*h12
}

// eulerCharacteristic computes the euler characteristic of a Calabi-Yau
// fourfold from h11, h12 and h13.
func eulerCharacteristic(h11, h12, h13 int64) int64 {
	return 48 + 6*(h11-h12+h13)
}

// Options configure the enricher.
type Options struct {
	// Workers is the number of goroutines used by EnrichBatch. At 1 the
	// batch is enriched sequentially on the calling goroutine.
	Workers int
}

// DefaultOptions are the defaults used by New.
var DefaultOptions = Options{
	Workers: 1,
}

// Enricher attaches derived quantities to correlated records.
type Enricher struct {
	workers int
}

// New creates an Enricher.
func New(optFns ...func(o *Options)) *Enricher {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Enricher{workers: opts.Workers}
}

// Enrich computes and attaches the derived quantities for rec. Records
// that are not reflexive or do not carry the three hodge numbers of a
// six-dimensional weight system pass through untouched with no error.
func (e *Enricher) Enrich(rec *record.Correlated) error {
	if rec.Class != record.Reflexive {
		return nil
	}
	h := rec.Info.HodgeNumbers
	if len(h) != 3 {
		return nil
	}

	h11, h12, h13 := int64(h[0]), int64(h[1]), int64(h[2])

	v22 := h22(h11, h12, h13)
	chi := eulerCharacteristic(h11, h12, h13)

	if v22 < math.MinInt32 || v22 > math.MaxInt32 || chi < math.MinInt32 || chi > math.MaxInt32 {
		return &DeriveError{Key: rec.WeightSystem.Key, Reason: "result overflows int32"}
	}

	rec.Derived = &record.Quantities{
		H22:                 int32(v22),
		EulerCharacteristic: int32(chi),
	}

	return nil
}

// EnrichBatch enriches recs, fanning out across the configured workers.
// Each record's result lands at its input index, so the caller observes a
// deterministic order regardless of worker count. The returned slice holds
// the per-record error, nil where enrichment succeeded or did not apply.
func (e *Enricher) EnrichBatch(ctx context.Context, recs []*record.Correlated) []error {
	errs := make([]error, len(recs))

	if e.workers == 1 || len(recs) < 2 {
		for i, rec := range recs {
			errs[i] = e.Enrich(rec)
		}
		return errs
	}

	g, _ := errgroup.WithContext(ctx)
	chunk := (len(recs) + e.workers - 1) / e.workers
	for start := 0; start < len(recs); start += chunk {
		start, end := start, min(start+chunk, len(recs))
		g.Go(func() error {
			for i := start; i < end; i++ {
				errs[i] = e.Enrich(recs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
