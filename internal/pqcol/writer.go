package pqcol

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"

	"polyconv/internal/record"
)

// Options configure the partition writers.
type Options struct {
	// RowGroupSize is the number of buffered rows flushed as one row
	// group. Deliberately conservative: oversized row groups break
	// downstream viewers that stream-preview columnar files.
	RowGroupSize int

	// ZstdLevel is the zstd compression level of the output.
	ZstdLevel int
}

// DefaultOptions are the defaults used by the writer constructors.
var DefaultOptions = Options{
	RowGroupSize: 1 << 20,
	ZstdLevel:    5,
}

// PartitionWriter buffers correlated records for one partition and flushes
// them as bounded row groups. Records appear in the output in append
// order; no reordering happens across flush boundaries.
type PartitionWriter struct {
	class        record.Class
	dim          int
	derived      bool
	rowGroupSize int

	f *os.File
	w *file.Writer

	keys    []int64
	weights [][]int32

	vertexCounts    []int32
	facetCounts     []int32
	pointCounts     []int32
	dualPointCounts []int32
	hodge           [][]int32

	h22Vals   []int32
	h22Def    []int16
	eulerVals []int32
	eulerDef  []int16

	written uint64
}

// NewPartitionWriter opens path and prepares a writer for the given class
// and dimension. includeDerived requests the optional enrichment columns;
// they are only materialized on the reflexive partition of six-dimensional
// weight systems, matching what the enricher produces.
func NewPartitionWriter(path string, class record.Class, dim int, includeDerived bool, optFns ...func(o *Options)) (*PartitionWriter, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RowGroupSize < 1 {
		opts.RowGroupSize = DefaultOptions.RowGroupSize
	}

	derived := includeDerived && class == record.Reflexive && dim == 6

	sc, err := PartitionSchema(class, dim, derived)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}

	props := parquet.NewWriterProperties(
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithCompressionLevel(opts.ZstdLevel),
	)

	w := file.NewParquetWriter(f, sc, file.WithWriterProps(props))

	for _, kv := range [][2]string{
		{MetaIP, strconv.FormatBool(class != record.NonInteriorPoint)},
		{MetaReflexive, strconv.FormatBool(class == record.Reflexive)},
		{MetaDimension, strconv.Itoa(dim)},
	} {
		if err := w.AppendKeyValueMetadata(kv[0], kv[1]); err != nil {
			_ = w.Close()
			_ = f.Close()
			return nil, fmt.Errorf("failed to append file metadata: %w", err)
		}
	}

	pw := &PartitionWriter{
		class:        class,
		dim:          dim,
		derived:      derived,
		rowGroupSize: opts.RowGroupSize,
		f:            f,
		w:            w,
		weights:      make([][]int32, dim),
	}
	if class == record.Reflexive {
		pw.hodge = make([][]int32, dim-3)
	}

	return pw, nil
}

// Class returns the partition's classification.
func (pw *PartitionWriter) Class() record.Class { return pw.class }

// Written returns the number of rows flushed to the file so far. Buffered
// rows count only after Flush or Close.
func (pw *PartitionWriter) Written() uint64 { return pw.written }

// Buffered returns the number of rows pending in the buffer.
func (pw *PartitionWriter) Buffered() int { return len(pw.keys) }

// Append buffers one record, flushing a row group when the buffer reaches
// the configured size.
func (pw *PartitionWriter) Append(rec *record.Correlated) error {
	if rec.WeightSystem.Dimension() != pw.dim {
		return fmt.Errorf("dimension mismatch: partition has %d, record has %d", pw.dim, rec.WeightSystem.Dimension())
	}

	pw.keys = append(pw.keys, int64(rec.WeightSystem.Key))
	for i, wv := range rec.WeightSystem.Weights {
		pw.weights[i] = append(pw.weights[i], wv)
	}

	switch pw.class {
	case record.NonReflexive:
		pw.vertexCounts = append(pw.vertexCounts, rec.Info.VertexCount)
		pw.facetCounts = append(pw.facetCounts, rec.Info.FacetCount)
		pw.pointCounts = append(pw.pointCounts, rec.Info.PointCount)

	case record.Reflexive:
		pw.vertexCounts = append(pw.vertexCounts, rec.Info.VertexCount)
		pw.facetCounts = append(pw.facetCounts, rec.Info.FacetCount)
		pw.pointCounts = append(pw.pointCounts, rec.Info.PointCount)
		pw.dualPointCounts = append(pw.dualPointCounts, rec.Info.DualPointCount)
		for i := range pw.hodge {
			pw.hodge[i] = append(pw.hodge[i], rec.Info.HodgeNumbers[i])
		}
		if pw.derived {
			if rec.Derived != nil {
				pw.h22Vals = append(pw.h22Vals, rec.Derived.H22)
				pw.h22Def = append(pw.h22Def, 1)
				pw.eulerVals = append(pw.eulerVals, rec.Derived.EulerCharacteristic)
				pw.eulerDef = append(pw.eulerDef, 1)
			} else {
				pw.h22Def = append(pw.h22Def, 0)
				pw.eulerDef = append(pw.eulerDef, 0)
			}
		}
	}

	if len(pw.keys) >= pw.rowGroupSize {
		return pw.Flush()
	}
	return nil
}

// WriteInt32Column writes the next column of a row group as one batch.
// defLevels may be nil for required columns.
func WriteInt32Column(rg file.SerialRowGroupWriter, values []int32, defLevels []int16) error {
	cw, err := rg.NextColumn()
	if err != nil {
		return fmt.Errorf("failed to open column writer: %w", err)
	}
	iw, ok := cw.(*file.Int32ColumnChunkWriter)
	if !ok {
		return errors.New("column writer is not int32")
	}
	if _, err := iw.WriteBatch(values, defLevels, nil); err != nil {
		return fmt.Errorf("failed to write column: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to close column writer: %w", err)
	}
	return nil
}

// WriteRepeatedInt32Column writes the next column of a row group with
// explicit definition and repetition levels, for repeated fields.
func WriteRepeatedInt32Column(rg file.SerialRowGroupWriter, values []int32, defLevels, repLevels []int16) error {
	cw, err := rg.NextColumn()
	if err != nil {
		return fmt.Errorf("failed to open column writer: %w", err)
	}
	iw, ok := cw.(*file.Int32ColumnChunkWriter)
	if !ok {
		return errors.New("column writer is not int32")
	}
	if _, err := iw.WriteBatch(values, defLevels, repLevels); err != nil {
		return fmt.Errorf("failed to write column: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to close column writer: %w", err)
	}
	return nil
}

// Flush writes all buffered rows as one row group and resets the buffer.
// A no-op on an empty buffer.
func (pw *PartitionWriter) Flush() error {
	n := len(pw.keys)
	if n == 0 {
		return nil
	}

	rg := pw.w.AppendRowGroup()

	cw, err := rg.NextColumn()
	if err != nil {
		return fmt.Errorf("failed to open key column writer: %w", err)
	}
	kw, ok := cw.(*file.Int64ColumnChunkWriter)
	if !ok {
		return errors.New("key column writer is not int64")
	}
	if _, err := kw.WriteBatch(pw.keys, nil, nil); err != nil {
		return fmt.Errorf("failed to write key column: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to close key column writer: %w", err)
	}

	for i := range pw.weights {
		if err := WriteInt32Column(rg, pw.weights[i], nil); err != nil {
			return err
		}
	}

	switch pw.class {
	case record.NonReflexive:
		for _, col := range [][]int32{pw.vertexCounts, pw.facetCounts, pw.pointCounts} {
			if err := WriteInt32Column(rg, col, nil); err != nil {
				return err
			}
		}

	case record.Reflexive:
		for _, col := range [][]int32{pw.vertexCounts, pw.facetCounts, pw.pointCounts, pw.dualPointCounts} {
			if err := WriteInt32Column(rg, col, nil); err != nil {
				return err
			}
		}
		for i := range pw.hodge {
			if err := WriteInt32Column(rg, pw.hodge[i], nil); err != nil {
				return err
			}
		}
		if pw.derived {
			if err := WriteInt32Column(rg, pw.h22Vals, pw.h22Def); err != nil {
				return err
			}
			if err := WriteInt32Column(rg, pw.eulerVals, pw.eulerDef); err != nil {
				return err
			}
		}
	}

	if err := rg.Close(); err != nil {
		return fmt.Errorf("failed to close row group: %w", err)
	}

	pw.written += uint64(n)
	pw.reset()

	return nil
}

func (pw *PartitionWriter) reset() {
	pw.keys = pw.keys[:0]
	for i := range pw.weights {
		pw.weights[i] = pw.weights[i][:0]
	}
	pw.vertexCounts = pw.vertexCounts[:0]
	pw.facetCounts = pw.facetCounts[:0]
	pw.pointCounts = pw.pointCounts[:0]
	pw.dualPointCounts = pw.dualPointCounts[:0]
	for i := range pw.hodge {
		pw.hodge[i] = pw.hodge[i][:0]
	}
	pw.h22Vals = pw.h22Vals[:0]
	pw.h22Def = pw.h22Def[:0]
	pw.eulerVals = pw.eulerVals[:0]
	pw.eulerDef = pw.eulerDef[:0]
}

// Close flushes any remaining buffered rows and finalizes the file.
func (pw *PartitionWriter) Close() error {
	flushErr := pw.Flush()

	if err := pw.w.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("failed to finalize output: %w", err)
	}
	if err := pw.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) && flushErr == nil {
		flushErr = fmt.Errorf("failed to close output: %w", err)
	}

	return flushErr
}

// Paths names the three partition files of one conversion run.
type Paths struct {
	NonIP        string
	NonReflexive string
	Reflexive    string
}

// Path returns the file for a class.
func (p Paths) Path(class record.Class) string {
	switch class {
	case record.NonInteriorPoint:
		return p.NonIP
	case record.NonReflexive:
		return p.NonReflexive
	default:
		return p.Reflexive
	}
}

// Writer maintains one open PartitionWriter per classification and routes
// records by their class.
type Writer struct {
	parts [record.NumClasses]*PartitionWriter
}

// NewWriter opens the three partition files.
func NewWriter(paths Paths, dim int, includeDerived bool, optFns ...func(o *Options)) (*Writer, error) {
	w := &Writer{}
	for class := record.Class(0); class < record.NumClasses; class++ {
		pw, err := NewPartitionWriter(paths.Path(class), class, dim, includeDerived, optFns...)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to open %s partition: %w", class, err)
		}
		w.parts[class] = pw
	}
	return w, nil
}

// Append routes rec to the partition its class selects.
func (w *Writer) Append(rec *record.Correlated) error {
	return w.parts[rec.Class].Append(rec)
}

// Written returns the number of rows flushed for a class.
func (w *Writer) Written(class record.Class) uint64 {
	return w.parts[class].Written()
}

// Close flushes and finalizes all partitions, returning the first error
// after attempting every one. Safe to call with partially opened parts.
func (w *Writer) Close() error {
	var first error
	for _, pw := range w.parts {
		if pw == nil {
			continue
		}
		if err := pw.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
