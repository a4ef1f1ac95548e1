package pqcol

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/apache/arrow-go/v18/parquet/file"
)

// FileMeta is the self-description a partition file carries in its
// key-value metadata.
type FileMeta struct {
	IP        bool
	Reflexive bool
	Dimension int
}

// readMeta extracts the partition metadata from an open reader.
func readMeta(rdr *file.Reader) (FileMeta, error) {
	kv := rdr.MetaData().KeyValueMetadata()

	var meta FileMeta
	for _, field := range []struct {
		key  string
		dest func(string) error
	}{
		{MetaIP, func(v string) (err error) { meta.IP, err = strconv.ParseBool(v); return }},
		{MetaReflexive, func(v string) (err error) { meta.Reflexive, err = strconv.ParseBool(v); return }},
		{MetaDimension, func(v string) (err error) { meta.Dimension, err = strconv.Atoi(v); return }},
	} {
		v := kv.FindValue(field.key)
		if v == nil {
			return FileMeta{}, fmt.Errorf("missing %q file metadata", field.key)
		}
		if err := field.dest(*v); err != nil {
			return FileMeta{}, fmt.Errorf("invalid %q file metadata: %w", field.key, err)
		}
	}

	return meta, nil
}

// ReadKeys materializes only the key column of a prior partition file into
// a bitmap, without touching the remaining columns. Used by the resume
// filter to decide which keys were already converted.
func ReadKeys(path string) (*roaring64.Bitmap, FileMeta, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, FileMeta{}, fmt.Errorf("failed to open prior output: %w", err)
	}
	defer rdr.Close()

	meta, err := readMeta(rdr)
	if err != nil {
		return nil, FileMeta{}, err
	}

	sc := rdr.MetaData().Schema
	if sc.NumColumns() == 0 || sc.Column(0).Name() != ColKey {
		return nil, FileMeta{}, fmt.Errorf("prior output has no %s column", ColKey)
	}

	keys := roaring64.New()
	buf := make([]int64, 8192)

	for g := 0; g < rdr.NumRowGroups(); g++ {
		rg := rdr.RowGroup(g)
		col, err := rg.Column(0)
		if err != nil {
			return nil, FileMeta{}, fmt.Errorf("failed to open key column of row group %d: %w", g, err)
		}
		kr, ok := col.(*file.Int64ColumnChunkReader)
		if !ok {
			return nil, FileMeta{}, errors.New("key column is not int64")
		}
		for kr.HasNext() {
			_, n, err := kr.ReadBatch(int64(len(buf)), buf, nil, nil)
			if err != nil {
				return nil, FileMeta{}, fmt.Errorf("failed to read key column: %w", err)
			}
			if n == 0 {
				break
			}
			for _, k := range buf[:n] {
				keys.Add(uint64(k))
			}
		}
	}

	return keys, meta, nil
}
