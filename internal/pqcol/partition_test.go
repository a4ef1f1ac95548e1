package pqcol

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyconv/internal/record"
)

func TestPartitionReaderReflexive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflexive.parquet")

	pw, err := NewPartitionWriter(path, record.Reflexive, 4, false)
	require.NoError(t, err)
	require.NoError(t, pw.Append(reflexiveRecord(2, []int32{1, 1, 2, 4}, []int32{9}, nil)))
	require.NoError(t, pw.Append(reflexiveRecord(7, []int32{1, 2, 3, 6}, []int32{7}, nil)))
	require.NoError(t, pw.Close())

	pr, err := OpenPartition(path)
	require.NoError(t, err)
	defer pr.Close()

	assert.Equal(t, record.Reflexive, pr.Class())
	assert.Equal(t, FileMeta{IP: true, Reflexive: true, Dimension: 4}, pr.Meta())

	row, err := pr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), row.Key)
	assert.Equal(t, []int32{1, 1, 2, 4}, row.Weights)
	assert.Equal(t, int32(5), row.VertexCount)
	assert.Equal(t, int32(26), row.DualPointCount)
	assert.Equal(t, []int32{9}, row.HodgeNumbers)

	row, err = pr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), row.Key)
	assert.Equal(t, []int32{7}, row.HodgeNumbers)

	_, err = pr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPartitionReaderNonIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "non-ip.parquet")

	pw, err := NewPartitionWriter(path, record.NonInteriorPoint, 4, false, func(o *Options) {
		o.RowGroupSize = 2
	})
	require.NoError(t, err)
	for key := uint64(1); key <= 5; key++ {
		require.NoError(t, pw.Append(nonIPRecord(key, 1, 1, 2, 4)))
	}
	require.NoError(t, pw.Close())

	pr, err := OpenPartition(path)
	require.NoError(t, err)
	defer pr.Close()

	assert.Equal(t, record.NonInteriorPoint, pr.Class())

	// Rows keep their order across the row group boundary.
	var keys []uint64
	for {
		row, err := pr.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		keys = append(keys, row.Key)
		assert.Zero(t, row.VertexCount)
		assert.Nil(t, row.HodgeNumbers)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, keys)
}

func TestPartitionReaderSkipsDerivedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflexive6.parquet")

	six := []int32{1, 1, 1, 1, 1, 1}
	pw, err := NewPartitionWriter(path, record.Reflexive, 6, true)
	require.NoError(t, err)
	require.NoError(t, pw.Append(reflexiveRecord(1, six, []int32{1, 0, 426}, &record.Quantities{H22: 1752, EulerCharacteristic: 2610})))
	require.NoError(t, pw.Close())

	pr, err := OpenPartition(path)
	require.NoError(t, err)
	defer pr.Close()

	row, err := pr.Next()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0, 426}, row.HodgeNumbers)

	_, err = pr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPartitionReaderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	pw, err := NewPartitionWriter(path, record.NonReflexive, 4, false)
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	pr, err := OpenPartition(path)
	require.NoError(t, err)
	defer pr.Close()

	assert.Equal(t, record.NonReflexive, pr.Class())
	_, err = pr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
