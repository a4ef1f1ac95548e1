package pqcol

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/parquet/file"

	"polyconv/internal/record"
)

// Row is one fully materialized record of a partition file. Fields beyond
// what the partition's class carries are zero.
type Row struct {
	Key            uint64
	Weights        []int32
	VertexCount    int32
	FacetCount     int32
	PointCount     int32
	DualPointCount int32
	HodgeNumbers   []int32
}

// PartitionReader streams the rows of one partition file in order. It
// loads one row group of the required columns at a time; optional derived
// columns are left untouched.
type PartitionReader struct {
	rdr   *file.Reader
	meta  FileMeta
	class record.Class
	dim   int

	// Number of int32 columns following the key column.
	int32Cols int

	group int
	pos   int
	n     int
	keys  []int64
	cols  [][]int32
}

// OpenPartition opens a partition file for row-wise reading. The class is
// taken from the file's own ip/reflexive metadata.
func OpenPartition(path string) (*PartitionReader, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open partition: %w", err)
	}

	r, err := newPartitionReader(rdr)
	if err != nil {
		_ = rdr.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func newPartitionReader(rdr *file.Reader) (*PartitionReader, error) {
	meta, err := readMeta(rdr)
	if err != nil {
		return nil, err
	}

	var class record.Class
	switch {
	case !meta.IP && !meta.Reflexive:
		class = record.NonInteriorPoint
	case meta.IP && !meta.Reflexive:
		class = record.NonReflexive
	case meta.IP && meta.Reflexive:
		class = record.Reflexive
	default:
		return nil, fmt.Errorf("invalid ip/reflexive metadata combination")
	}

	dim := meta.Dimension
	if dim < 1 {
		return nil, fmt.Errorf("invalid dimension %d in file metadata", dim)
	}

	int32Cols := dim
	switch class {
	case record.NonReflexive:
		int32Cols += 3
	case record.Reflexive:
		int32Cols += 4 + dim - 3
	}

	sc := rdr.MetaData().Schema
	if sc.NumColumns() < 1+int32Cols {
		return nil, fmt.Errorf("want at least %d columns, got %d", 1+int32Cols, sc.NumColumns())
	}
	if sc.Column(0).Name() != ColKey {
		return nil, fmt.Errorf("first column is %q, want %q", sc.Column(0).Name(), ColKey)
	}

	return &PartitionReader{
		rdr:       rdr,
		meta:      meta,
		class:     class,
		dim:       dim,
		int32Cols: int32Cols,
	}, nil
}

// Meta returns the file's self-description.
func (r *PartitionReader) Meta() FileMeta { return r.meta }

// Class returns the classification the file's metadata declares.
func (r *PartitionReader) Class() record.Class { return r.class }

// Next returns the next row, or io.EOF after the last one.
func (r *PartitionReader) Next() (*Row, error) {
	for r.pos >= r.n {
		if r.group >= r.rdr.NumRowGroups() {
			return nil, io.EOF
		}
		if err := r.loadGroup(r.group); err != nil {
			return nil, err
		}
		r.group++
	}

	row := &Row{
		Key:     uint64(r.keys[r.pos]),
		Weights: make([]int32, r.dim),
	}
	for i := 0; i < r.dim; i++ {
		row.Weights[i] = r.cols[i][r.pos]
	}

	switch r.class {
	case record.NonReflexive:
		row.VertexCount = r.cols[r.dim][r.pos]
		row.FacetCount = r.cols[r.dim+1][r.pos]
		row.PointCount = r.cols[r.dim+2][r.pos]

	case record.Reflexive:
		row.VertexCount = r.cols[r.dim][r.pos]
		row.FacetCount = r.cols[r.dim+1][r.pos]
		row.PointCount = r.cols[r.dim+2][r.pos]
		row.DualPointCount = r.cols[r.dim+3][r.pos]
		row.HodgeNumbers = make([]int32, r.dim-3)
		for i := range row.HodgeNumbers {
			row.HodgeNumbers[i] = r.cols[r.dim+4+i][r.pos]
		}
	}

	r.pos++
	return row, nil
}

// loadGroup materializes the required columns of one row group.
func (r *PartitionReader) loadGroup(g int) error {
	n := int(r.rdr.MetaData().RowGroup(g).NumRows())
	rg := r.rdr.RowGroup(g)

	if cap(r.keys) < n {
		r.keys = make([]int64, n)
	}
	r.keys = r.keys[:n]
	if r.cols == nil {
		r.cols = make([][]int32, r.int32Cols)
	}

	col, err := rg.Column(0)
	if err != nil {
		return fmt.Errorf("failed to open key column of row group %d: %w", g, err)
	}
	kr, ok := col.(*file.Int64ColumnChunkReader)
	if !ok {
		return fmt.Errorf("key column is not int64")
	}
	if err := readInt64Full(kr, r.keys); err != nil {
		return fmt.Errorf("failed to read key column: %w", err)
	}

	for c := 0; c < r.int32Cols; c++ {
		if cap(r.cols[c]) < n {
			r.cols[c] = make([]int32, n)
		}
		r.cols[c] = r.cols[c][:n]

		col, err := rg.Column(1 + c)
		if err != nil {
			return fmt.Errorf("failed to open column %d of row group %d: %w", 1+c, g, err)
		}
		cr, ok := col.(*file.Int32ColumnChunkReader)
		if !ok {
			return fmt.Errorf("column %d is not int32", 1+c)
		}
		if err := readInt32Full(cr, r.cols[c]); err != nil {
			return fmt.Errorf("failed to read column %d: %w", 1+c, err)
		}
	}

	r.pos = 0
	r.n = n
	return nil
}

func readInt64Full(cr *file.Int64ColumnChunkReader, dest []int64) error {
	pos := 0
	for pos < len(dest) {
		_, n, err := cr.ReadBatch(int64(len(dest)-pos), dest[pos:], nil, nil)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("short column: want %d values, got %d", len(dest), pos)
		}
		pos += n
	}
	return nil
}

func readInt32Full(cr *file.Int32ColumnChunkReader, dest []int32) error {
	pos := 0
	for pos < len(dest) {
		_, n, err := cr.ReadBatch(int64(len(dest)-pos), dest[pos:], nil, nil)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("short column: want %d values, got %d", len(dest), pos)
		}
		pos += n
	}
	return nil
}

// Close releases the underlying file.
func (r *PartitionReader) Close() error { return r.rdr.Close() }
