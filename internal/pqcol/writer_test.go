package pqcol

import (
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyconv/internal/record"
)

func nonIPRecord(key uint64, weights ...int32) *record.Correlated {
	return &record.Correlated{
		WeightSystem: &record.WeightSystem{Key: key, Weights: weights},
		Info:         &record.PolytopeInfo{Key: key},
		Class:        record.NonInteriorPoint,
	}
}

func reflexiveRecord(key uint64, weights, hodge []int32, derived *record.Quantities) *record.Correlated {
	return &record.Correlated{
		WeightSystem: &record.WeightSystem{Key: key, Weights: weights},
		Info: &record.PolytopeInfo{
			Key: key, VertexCount: 5, FacetCount: 5, PointCount: 21, DualPointCount: 26,
			HodgeNumbers: hodge,
		},
		Class:   record.Reflexive,
		Derived: derived,
	}
}

// readInt32Column reads one int32 column across all row groups, returning
// the values and, for optional columns, the definition levels.
func readInt32Column(t *testing.T, rdr *file.Reader, col int, optional bool) ([]int32, []int16) {
	t.Helper()

	var values []int32
	var defLevels []int16

	buf := make([]int32, 64)
	defBuf := make([]int16, 64)

	for g := 0; g < rdr.NumRowGroups(); g++ {
		cr, err := rdr.RowGroup(g).Column(col)
		require.NoError(t, err)
		ir, ok := cr.(*file.Int32ColumnChunkReader)
		require.True(t, ok, "column %d is not int32", col)

		for ir.HasNext() {
			var dst []int16
			if optional {
				dst = defBuf
			}
			total, n, err := ir.ReadBatch(int64(len(buf)), buf, dst, nil)
			require.NoError(t, err)
			if total == 0 && n == 0 {
				break
			}
			values = append(values, buf[:n]...)
			if optional {
				defLevels = append(defLevels, defBuf[:total]...)
			}
		}
	}

	return values, defLevels
}

func readInt64Column(t *testing.T, rdr *file.Reader, col int) []int64 {
	t.Helper()

	var values []int64
	buf := make([]int64, 64)

	for g := 0; g < rdr.NumRowGroups(); g++ {
		cr, err := rdr.RowGroup(g).Column(col)
		require.NoError(t, err)
		ir, ok := cr.(*file.Int64ColumnChunkReader)
		require.True(t, ok, "column %d is not int64", col)

		for ir.HasNext() {
			_, n, err := ir.ReadBatch(int64(len(buf)), buf, nil, nil)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			values = append(values, buf[:n]...)
		}
	}

	return values
}

func TestPartitionWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflexive.parquet")

	pw, err := NewPartitionWriter(path, record.Reflexive, 4, false)
	require.NoError(t, err)

	recs := []*record.Correlated{
		reflexiveRecord(1, []int32{1, 1, 1, 1}, []int32{1}, nil),
		reflexiveRecord(2, []int32{1, 1, 2, 4}, []int32{9}, nil),
		reflexiveRecord(5, []int32{1, 2, 3, 6}, []int32{7}, nil),
	}
	for _, rec := range recs {
		require.NoError(t, pw.Append(rec))
	}
	require.NoError(t, pw.Close())
	assert.Equal(t, uint64(3), pw.Written())

	rdr, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer rdr.Close()

	sc := rdr.MetaData().Schema
	assert.Equal(t, ColKey, sc.Column(0).Name())
	assert.Equal(t, "weight0", sc.Column(1).Name())
	assert.Equal(t, "h11", sc.Column(sc.NumColumns()-1).Name())

	// Keys come back unchanged and in append order.
	assert.Equal(t, []int64{1, 2, 5}, readInt64Column(t, rdr, 0))

	w0, _ := readInt32Column(t, rdr, 1, false)
	assert.Equal(t, []int32{1, 1, 1}, w0)
	w3, _ := readInt32Column(t, rdr, 4, false)
	assert.Equal(t, []int32{1, 4, 6}, w3)

	hodge, _ := readInt32Column(t, rdr, sc.NumColumns()-1, false)
	assert.Equal(t, []int32{1, 9, 7}, hodge)
}

func TestPartitionWriterRowGroupBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "non-ip.parquet")

	pw, err := NewPartitionWriter(path, record.NonInteriorPoint, 4, false, func(o *Options) {
		o.RowGroupSize = 2
	})
	require.NoError(t, err)

	for key := uint64(1); key <= 5; key++ {
		require.NoError(t, pw.Append(nonIPRecord(key, 1, 1, 2, 4)))
	}
	require.NoError(t, pw.Close())

	rdr, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer rdr.Close()

	// 5 rows at 2 per group: 2 + 2 + 1.
	assert.Equal(t, 3, rdr.NumRowGroups())
	assert.Equal(t, int64(5), rdr.NumRows())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, readInt64Column(t, rdr, 0))
}

func TestPartitionWriterDerivedColumnsNullable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflexive6.parquet")

	pw, err := NewPartitionWriter(path, record.Reflexive, 6, true)
	require.NoError(t, err)

	six := []int32{1, 1, 1, 1, 1, 1}
	require.NoError(t, pw.Append(reflexiveRecord(1, six, []int32{1, 0, 426}, &record.Quantities{H22: 1752, EulerCharacteristic: 2610})))
	require.NoError(t, pw.Append(reflexiveRecord(2, six, []int32{2, 0, 100}, nil)))
	require.NoError(t, pw.Close())

	rdr, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer rdr.Close()

	sc := rdr.MetaData().Schema
	h22Idx := sc.NumColumns() - 2
	assert.Equal(t, ColH22, sc.Column(h22Idx).Name())
	assert.Equal(t, ColEuler, sc.Column(h22Idx+1).Name())

	h22, def := readInt32Column(t, rdr, h22Idx, true)
	assert.Equal(t, []int32{1752}, h22)
	assert.Equal(t, []int16{1, 0}, def)

	euler, def := readInt32Column(t, rdr, h22Idx+1, true)
	assert.Equal(t, []int32{2610}, euler)
	assert.Equal(t, []int16{1, 0}, def)
}

func TestWriterRoutesByClass(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{
		NonIP:        filepath.Join(dir, "non-ip.parquet"),
		NonReflexive: filepath.Join(dir, "non-reflexive.parquet"),
		Reflexive:    filepath.Join(dir, "reflexive.parquet"),
	}

	w, err := NewWriter(paths, 4, false)
	require.NoError(t, err)

	require.NoError(t, w.Append(nonIPRecord(1, 1, 1, 2, 4)))
	require.NoError(t, w.Append(reflexiveRecord(2, []int32{1, 1, 1, 1}, []int32{1}, nil)))
	require.NoError(t, w.Close())

	assert.Equal(t, uint64(1), w.Written(record.NonInteriorPoint))
	assert.Equal(t, uint64(0), w.Written(record.NonReflexive))
	assert.Equal(t, uint64(1), w.Written(record.Reflexive))

	keys, meta, err := ReadKeys(paths.Reflexive)
	require.NoError(t, err)
	assert.True(t, keys.Contains(2))
	assert.False(t, keys.Contains(1))
	assert.Equal(t, FileMeta{IP: true, Reflexive: true, Dimension: 4}, meta)

	_, meta, err = ReadKeys(paths.NonIP)
	require.NoError(t, err)
	assert.Equal(t, FileMeta{IP: false, Reflexive: false, Dimension: 4}, meta)
}
