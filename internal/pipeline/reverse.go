package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"polyconv/internal/correlate"
	"polyconv/internal/pqcol"
	"polyconv/internal/record"
	"polyconv/internal/textio"
)

// ReverseConfig configures one back-conversion of the three partition
// files into the two text streams.
type ReverseConfig struct {
	// Inputs names the three partition files of a previous conversion.
	// All three are required; each file's ip/reflexive metadata must match
	// its slot.
	Inputs pqcol.Paths

	// WeightSystemPath and PolytopeInfoPath are the text outputs. Either
	// may be empty to skip that stream, but not both. The compressor is
	// chosen by extension, as on the input side.
	WeightSystemPath string
	PolytopeInfoPath string

	// Limit caps the number of records written. 0 means unlimited.
	Limit uint64

	// Logger receives the summary. nil uses slog.Default.
	Logger *slog.Logger
}

// ReverseStats are the counters of one back-conversion.
type ReverseStats struct {
	NonIP        uint64
	NonReflexive uint64
	Reflexive    uint64

	Written      uint64
	LimitReached bool
	Elapsed      time.Duration
}

// LogSummary reports the counters through the logger.
func (s *ReverseStats) LogSummary(logger *slog.Logger, err error) {
	attrs := []any{
		"non_ip", s.NonIP,
		"non_reflexive", s.NonReflexive,
		"reflexive", s.Reflexive,
		"written", s.Written,
		"limit_reached", s.LimitReached,
		"elapsed", s.Elapsed.String(),
	}
	if err != nil {
		logger.Error("back-conversion aborted", append(attrs, "error", err)...)
		return
	}
	logger.Info("back-conversion finished", attrs...)
}

// Reverse converts the three partition files back into the sorted text
// streams. Rows are merged by key across the partitions, so the outputs
// come out in the same order the forward conversion consumed them.
func Reverse(ctx context.Context, cfg ReverseConfig) (*ReverseStats, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	stats := &ReverseStats{}

	if cfg.Inputs.NonIP == "" || cfg.Inputs.NonReflexive == "" || cfg.Inputs.Reflexive == "" {
		return stats, errors.New("all three partition inputs are required")
	}
	if cfg.WeightSystemPath == "" && cfg.PolytopeInfoPath == "" {
		return stats, errors.New("at least one text output is required")
	}

	err := reverse(ctx, cfg, stats)
	stats.Elapsed = time.Since(start)
	stats.LogSummary(logger, err)

	return stats, err
}

func reverse(ctx context.Context, cfg ReverseConfig, stats *ReverseStats) error {
	var cursors [record.NumClasses]*partitionCursor
	for class := record.Class(0); class < record.NumClasses; class++ {
		cur, err := openCursor(cfg.Inputs.Path(class), class)
		if err != nil {
			return err
		}
		defer cur.rdr.Close()
		cursors[class] = cur
	}

	dim := cursors[0].rdr.Meta().Dimension
	for _, cur := range cursors[1:] {
		if d := cur.rdr.Meta().Dimension; d != dim {
			return fmt.Errorf("partition dimensions disagree: %d vs %d", dim, d)
		}
	}

	var wsOut, infoOut *textio.Writer
	if cfg.WeightSystemPath != "" {
		w, err := textio.Create(cfg.WeightSystemPath)
		if err != nil {
			return err
		}
		defer w.Close()
		wsOut = w
	}
	if cfg.PolytopeInfoPath != "" {
		w, err := textio.Create(cfg.PolytopeInfoPath)
		if err != nil {
			return err
		}
		defer w.Close()
		infoOut = w
	}

	var (
		lastKey uint64
		haveKey bool
		line    []byte
	)

	for {
		if cfg.Limit > 0 && stats.Written >= cfg.Limit {
			stats.LimitReached = true
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Pick the cursor holding the smallest pending key.
		var next *partitionCursor
		for _, cur := range cursors {
			if cur.row == nil {
				continue
			}
			if next == nil || cur.row.Key < next.row.Key {
				next = cur
			}
		}
		if next == nil {
			break
		}

		row := next.row
		if haveKey && row.Key <= lastKey {
			if row.Key == lastKey {
				return fmt.Errorf("partitions overlap at key %d: %w", row.Key, correlate.ErrDuplicateKey)
			}
			return fmt.Errorf("key %d after %d: %w", row.Key, lastKey, correlate.ErrOutOfOrderKey)
		}
		lastKey, haveKey = row.Key, true

		if wsOut != nil {
			line = appendWeightSystemLine(line[:0], row)
			if err := wsOut.WriteLine(line); err != nil {
				return err
			}
		}
		if infoOut != nil {
			line = appendPolytopeInfoLine(line[:0], next.class, row)
			if err := infoOut.WriteLine(line); err != nil {
				return err
			}
		}

		switch next.class {
		case record.NonInteriorPoint:
			stats.NonIP++
		case record.NonReflexive:
			stats.NonReflexive++
		default:
			stats.Reflexive++
		}
		stats.Written++

		if err := next.advance(); err != nil {
			return err
		}
	}

	if wsOut != nil {
		if err := wsOut.Close(); err != nil {
			return err
		}
	}
	if infoOut != nil {
		if err := infoOut.Close(); err != nil {
			return err
		}
	}
	return nil
}

// partitionCursor holds one read-ahead row per partition.
type partitionCursor struct {
	rdr   *pqcol.PartitionReader
	class record.Class
	row   *pqcol.Row
}

func openCursor(path string, class record.Class) (*partitionCursor, error) {
	rdr, err := pqcol.OpenPartition(path)
	if err != nil {
		return nil, err
	}
	if rdr.Class() != class {
		_ = rdr.Close()
		return nil, fmt.Errorf("%s: file metadata declares class %s, want %s", path, rdr.Class(), class)
	}

	cur := &partitionCursor{rdr: rdr, class: class}
	if err := cur.advance(); err != nil {
		_ = rdr.Close()
		return nil, err
	}
	return cur, nil
}

func (c *partitionCursor) advance() error {
	row, err := c.rdr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.row = nil
			return nil
		}
		return err
	}
	c.row = row
	return nil
}

func appendWeightSystemLine(buf []byte, row *pqcol.Row) []byte {
	buf = strconv.AppendUint(buf, row.Key, 10)
	for _, w := range row.Weights {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(w), 10)
	}
	return buf
}

func appendPolytopeInfoLine(buf []byte, class record.Class, row *pqcol.Row) []byte {
	buf = strconv.AppendUint(buf, row.Key, 10)
	for _, v := range []int32{row.VertexCount, row.FacetCount, row.PointCount, row.DualPointCount} {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	if class == record.Reflexive {
		for _, h := range row.HodgeNumbers {
			buf = append(buf, ' ')
			buf = strconv.AppendInt(buf, int64(h), 10)
		}
	}
	return buf
}
