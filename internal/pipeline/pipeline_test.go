package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyconv/internal/correlate"
	"polyconv/internal/pqcol"
)

const (
	wsInput = `# weight systems, sorted by key
1 1 1 2 4
2 1 1 1 3
`
	infoInput = `1 0 0 0 0
2 5 5 21 26 9
`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(64)}))
}

func writeInputs(t *testing.T, dir, ws, info string) (string, string) {
	t.Helper()
	wsPath := filepath.Join(dir, "ws.txt")
	infoPath := filepath.Join(dir, "info.txt")
	require.NoError(t, os.WriteFile(wsPath, []byte(ws), 0o644))
	require.NoError(t, os.WriteFile(infoPath, []byte(info), 0o644))
	return wsPath, infoPath
}

func outputPaths(dir, prefix string) pqcol.Paths {
	return pqcol.Paths{
		NonIP:        filepath.Join(dir, prefix+"non-ip.parquet"),
		NonReflexive: filepath.Join(dir, prefix+"non-reflexive.parquet"),
		Reflexive:    filepath.Join(dir, prefix+"reflexive.parquet"),
	}
}

func TestRunScenario(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir, wsInput, infoInput)

	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          outputPaths(dir, ""),
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.WeightSystemsRead)
	assert.Equal(t, uint64(2), stats.PolytopeInfosRead)
	assert.Equal(t, uint64(2), stats.Correlated)
	assert.Equal(t, uint64(1), stats.NonIP)
	assert.Equal(t, uint64(0), stats.NonReflexive)
	assert.Equal(t, uint64(1), stats.Reflexive)
	assert.Zero(t, stats.Gaps)
	assert.Zero(t, stats.Malformed)
	assert.Equal(t, uint64(2), stats.Written)
	assert.False(t, stats.LimitReached)

	keys, meta, err := pqcol.ReadKeys(outputPaths(dir, "").Reflexive)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), keys.GetCardinality())
	assert.True(t, keys.Contains(2))
	assert.Equal(t, 4, meta.Dimension)
}

func TestRunGzipInputMatchesPlain(t *testing.T) {
	dir := t.TempDir()
	_, infoPath := writeInputs(t, dir, wsInput, infoInput)

	wsGz := filepath.Join(dir, "ws.txt.gz")
	f, err := os.Create(wsGz)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(wsInput))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsGz,
		PolytopeInfoPath: infoPath,
		Outputs:          outputPaths(dir, "gz-"),
		Logger:           discardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Correlated)
	assert.Equal(t, uint64(2), stats.Written)
}

func TestRunLimit(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir, wsInput, infoInput)

	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          outputPaths(dir, ""),
		Limit:            1,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	assert.True(t, stats.LimitReached)
	assert.Equal(t, uint64(1), stats.Correlated)
	// The buffered record is flushed despite the early stop.
	assert.Equal(t, uint64(1), stats.Written)

	keys, _, err := pqcol.ReadKeys(outputPaths(dir, "").NonIP)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), keys.GetCardinality())
}

func TestRunGapCounted(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir,
		"1 1 1 2 4\n2 1 1 1 3\n3 1 2 3 6\n",
		"1 0 0 0 0\n3 0 0 0 0\n",
	)

	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          outputPaths(dir, ""),
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.Gaps)
	assert.Equal(t, uint64(2), stats.Correlated)
	assert.Equal(t, uint64(2), stats.Written)
}

func TestRunDuplicateKeyAborts(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir,
		"1 1 1 2 4\n1 1 1 1 3\n",
		"1 0 0 0 0\n2 0 0 0 0\n",
	)

	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          outputPaths(dir, ""),
		Logger:           discardLogger(),
	})
	require.ErrorIs(t, err, correlate.ErrDuplicateKey)

	// The record processed before the abort was still flushed.
	assert.Equal(t, uint64(1), stats.Correlated)
	assert.Equal(t, uint64(1), stats.Written)
}

func TestRunMalformedTolerance(t *testing.T) {
	ws := "1 1 1 2 4\ngarbage line\n3 1 2 3 6\n"
	info := "1 0 0 0 0\n3 0 0 0 0\n"

	t.Run("above limit aborts", func(t *testing.T) {
		dir := t.TempDir()
		wsPath, infoPath := writeInputs(t, dir, ws, info)

		_, err := Run(context.Background(), Config{
			WeightSystemPath: wsPath,
			PolytopeInfoPath: infoPath,
			Outputs:          outputPaths(dir, ""),
			Logger:           discardLogger(),
		})
		assert.ErrorIs(t, err, ErrMalformedLimit)
	})

	t.Run("within limit skips and counts", func(t *testing.T) {
		dir := t.TempDir()
		wsPath, infoPath := writeInputs(t, dir, ws, info)

		stats, err := Run(context.Background(), Config{
			WeightSystemPath: wsPath,
			PolytopeInfoPath: infoPath,
			Outputs:          outputPaths(dir, ""),
			MalformedLimit:   1,
			Logger:           discardLogger(),
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), stats.Malformed)
		assert.Equal(t, uint64(2), stats.Written)
	})
}

func TestRunResumeIdempotent(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir, wsInput, infoInput)

	first := outputPaths(dir, "first-")
	firstStats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          first,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), firstStats.Written)

	second := outputPaths(dir, "second-")
	secondStats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          second,
		Priors:           first,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	assert.Zero(t, secondStats.Written)
	assert.Equal(t, firstStats.Written, secondStats.ResumeSkipped)

	// A fully resumed run still leaves three valid, empty partition files.
	for _, path := range []string{second.NonIP, second.NonReflexive, second.Reflexive} {
		keys, meta, err := pqcol.ReadKeys(path)
		require.NoError(t, err, path)
		assert.Zero(t, keys.GetCardinality(), path)
		assert.Equal(t, 4, meta.Dimension, path)
	}
}

func TestRunAllGapsWritesEmptyPartitions(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir, wsInput, "5 0 0 0 0\n")

	outs := outputPaths(dir, "")
	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          outs,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.Gaps)
	assert.Zero(t, stats.Written)
	assert.Equal(t, uint64(1), stats.DanglingInfos)

	for _, path := range []string{outs.NonIP, outs.NonReflexive, outs.Reflexive} {
		keys, _, err := pqcol.ReadKeys(path)
		require.NoError(t, err, path)
		assert.Zero(t, keys.GetCardinality(), path)
	}
}

func TestRunWithDerivedQuantities(t *testing.T) {
	dir := t.TempDir()
	wsPath, infoPath := writeInputs(t, dir,
		"1 1 1 1 1 1 1\n2 1 1 1 1 1 2\n",
		"1 7 7 9 9 1 0 426\n2 0 0 0 0\n",
	)

	stats, err := Run(context.Background(), Config{
		WeightSystemPath: wsPath,
		PolytopeInfoPath: infoPath,
		Outputs:          outputPaths(dir, ""),
		IncludeDerived:   true,
		EnrichWorkers:    4,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.Correlated)
	assert.Equal(t, uint64(1), stats.Reflexive)
	assert.Zero(t, stats.DeriveFailures)
	assert.Equal(t, uint64(2), stats.Written)

	_, meta, err := pqcol.ReadKeys(outputPaths(dir, "").Reflexive)
	require.NoError(t, err)
	assert.Equal(t, 6, meta.Dimension)
}
