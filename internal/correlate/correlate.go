// Package correlate joins the weight-system stream with the polytope-info
// stream by key using a streaming merge-join.
//
// Both inputs are produced pre-sorted by key, so neither file is ever held
// in memory: the correlator keeps at most one read-ahead polytope-info
// record. The weight-system stream drives the join.
package correlate

import (
	"errors"
	"fmt"
	"io"

	"polyconv/internal/record"
)

var (
	// ErrDuplicateKey indicates the same key twice in one input stream.
	// Fatal: a duplicated or concatenated input would make every
	// downstream classification unreliable.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrOutOfOrderKey indicates a key smaller than its predecessor in
	// the same stream. Treated exactly like a duplicate: the sorted-input
	// contract is broken and the merge-join cannot continue.
	ErrOutOfOrderKey = errors.New("out-of-order key")
)

// MinDimension is the smallest weight count the pipeline accepts. Below
// four weights the reflexive schema has no hodge columns to carry.
const MinDimension = 4

// GapError reports a weight-system key with no matching polytope-info
// record. Recoverable: the record is skipped and counted.
type GapError struct {
	Key uint64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("no polytope info for weight system %d", e.Key)
}

// WeightSystemSource yields weight-system records in key order.
type WeightSystemSource interface {
	Next() (*record.WeightSystem, error)
}

// PolytopeInfoSource yields polytope-info records in key order.
type PolytopeInfoSource interface {
	Next() (*record.PolytopeInfo, error)
}

// Correlator merge-joins the two sorted record streams.
type Correlator struct {
	ws   WeightSystemSource
	info PolytopeInfoSource

	dim int

	pendingWS   *record.WeightSystem
	pendingInfo *record.PolytopeInfo
	wsDone      bool

	lastWS       uint64
	haveLastWS   bool
	lastInfo     uint64
	haveLastInfo bool

	dangling uint64
}

// New creates a Correlator over the two sources.
func New(ws WeightSystemSource, info PolytopeInfoSource) *Correlator {
	return &Correlator{ws: ws, info: info}
}

// Dimension returns the weight count fixed by the first accepted
// weight-system record, or 0 before one was seen.
func (c *Correlator) Dimension() int { return c.dim }

// Dangling returns the number of polytope-info records whose key no
// weight-system record asked for.
func (c *Correlator) Dangling() uint64 { return c.dangling }

// Next returns the next correlated record.
//
// Errors:
//   - io.EOF: weight-system stream exhausted
//   - *GapError: weight system skipped, no matching info record (recoverable)
//   - *record.MalformedRecordError: bad line in either stream (recoverable)
//   - ErrDuplicateKey / ErrOutOfOrderKey (wrapped): ordering contract broken (fatal)
//   - anything else: underlying read failure (fatal)
//
// After a recoverable error Next may be called again; no record is lost
// except the ones the error names.
func (c *Correlator) Next() (*record.Correlated, error) {
	if c.wsDone {
		return nil, c.drainInfo()
	}

	ws := c.pendingWS
	c.pendingWS = nil

	if ws == nil {
		var err error
		ws, err = c.ws.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.wsDone = true
				return nil, c.drainInfo()
			}
			return nil, err
		}

		if c.haveLastWS {
			if ws.Key == c.lastWS {
				return nil, fmt.Errorf("weight-system stream, key %d at line %d: %w", ws.Key, ws.Line, ErrDuplicateKey)
			}
			if ws.Key < c.lastWS {
				return nil, fmt.Errorf("weight-system stream, key %d after %d at line %d: %w", ws.Key, c.lastWS, ws.Line, ErrOutOfOrderKey)
			}
		}
		c.lastWS, c.haveLastWS = ws.Key, true

		if c.dim == 0 {
			if ws.Dimension() < MinDimension {
				return nil, &record.MalformedRecordError{
					Line:   ws.Line,
					Reason: fmt.Sprintf("want at least %d weights, got %d", MinDimension, ws.Dimension()),
				}
			}
			c.dim = ws.Dimension()
		} else if ws.Dimension() != c.dim {
			return nil, &record.MalformedRecordError{
				Line:   ws.Line,
				Reason: fmt.Sprintf("want %d weights, got %d", c.dim, ws.Dimension()),
			}
		}
	}

	for {
		info := c.pendingInfo
		c.pendingInfo = nil

		if info == nil {
			var err error
			info, err = c.info.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					// Info stream exhausted: every remaining weight
					// system is a gap.
					return nil, &GapError{Key: ws.Key}
				}
				// Recoverable info-side errors must not cost us the
				// weight system in hand.
				c.pendingWS = ws
				return nil, err
			}

			if c.haveLastInfo {
				if info.Key == c.lastInfo {
					return nil, fmt.Errorf("polytope-info stream, key %d at line %d: %w", info.Key, info.Line, ErrDuplicateKey)
				}
				if info.Key < c.lastInfo {
					return nil, fmt.Errorf("polytope-info stream, key %d after %d at line %d: %w", info.Key, c.lastInfo, info.Line, ErrOutOfOrderKey)
				}
			}
			c.lastInfo, c.haveLastInfo = info.Key, true
		}

		switch {
		case info.Key < ws.Key:
			// Info record no weight system asked for. Counted, skipped.
			c.dangling++

		case info.Key > ws.Key:
			c.pendingInfo = info
			return nil, &GapError{Key: ws.Key}

		default:
			if info.DualPointCount > 0 && len(info.HodgeNumbers) != c.dim-3 {
				return nil, &record.MalformedRecordError{
					Line:   info.Line,
					Reason: fmt.Sprintf("want %d hodge numbers for a reflexive record, got %d", c.dim-3, len(info.HodgeNumbers)),
				}
			}
			return &record.Correlated{WeightSystem: ws, Info: info}, nil
		}
	}
}

// drainInfo consumes trailing polytope-info records once the weight-system
// stream is exhausted, so they still show up in the dangling count and the
// ordering contract stays checked to the end. Returns io.EOF when both
// streams are done; recoverable info-side errors surface to the caller and
// draining continues on the next call.
func (c *Correlator) drainInfo() error {
	if c.pendingInfo != nil {
		c.pendingInfo = nil
		c.dangling++
	}

	for {
		info, err := c.info.Next()
		if err != nil {
			return err
		}

		if c.haveLastInfo {
			if info.Key == c.lastInfo {
				return fmt.Errorf("polytope-info stream, key %d at line %d: %w", info.Key, info.Line, ErrDuplicateKey)
			}
			if info.Key < c.lastInfo {
				return fmt.Errorf("polytope-info stream, key %d after %d at line %d: %w", info.Key, c.lastInfo, info.Line, ErrOutOfOrderKey)
			}
		}
		c.lastInfo, c.haveLastInfo = info.Key, true

		c.dangling++
	}
}
