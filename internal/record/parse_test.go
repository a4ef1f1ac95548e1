package record

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeightSystem(t *testing.T) {
	ws, err := ParseWeightSystem("7 1 1 2 3", 4)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), ws.Key)
	assert.Equal(t, []int32{1, 1, 2, 3}, ws.Weights)
	assert.Equal(t, 4, ws.Dimension())
	assert.Equal(t, int64(7), ws.Degree())
	assert.Equal(t, 4, ws.Line)
}

func TestParseWeightSystemMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"key only", "12"},
		{"bad key", "x 1 2 3"},
		{"non-numeric weight", "1 2 y 3"},
		{"zero weight", "1 1 0 2"},
		{"negative weight", "1 1 -2 2"},
		{"weight overflow", "1 1 99999999999 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWeightSystem(tt.line, 9)

			var malformed *MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, 9, malformed.Line)
		})
	}
}

func TestParsePolytopeInfo(t *testing.T) {
	tests := []struct {
		name string
		line string
		want PolytopeInfo
	}{
		{
			name: "non-ip",
			line: "3 0 0 0 0",
			want: PolytopeInfo{Key: 3},
		},
		{
			name: "non-reflexive",
			line: "5 6 9 27 0",
			want: PolytopeInfo{Key: 5, VertexCount: 6, FacetCount: 9, PointCount: 27, DualPointCount: 0},
		},
		{
			name: "reflexive",
			line: "8 5 5 21 26 1 101",
			want: PolytopeInfo{Key: 8, VertexCount: 5, FacetCount: 5, PointCount: 21, DualPointCount: 26, HodgeNumbers: []int32{1, 101}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParsePolytopeInfo(tt.line, 1)
			require.NoError(t, err)

			tt.want.Line = 1
			assert.Equal(t, &tt.want, info)
		})
	}
}

func TestParsePolytopeInfoMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "1 2 3"},
		{"bad key", "k 0 0 0 0"},
		{"negative count", "1 -4 0 0 0"},
		{"counts without vertices", "1 0 9 0 0"},
		{"hodge without vertices", "1 0 0 0 0 1 101"},
		{"hodge without dual", "1 6 9 27 0 1 101"},
		{"reflexive without hodge", "1 5 5 21 26"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolytopeInfo(tt.line, 2)

			var malformed *MalformedRecordError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

// stringSource is a slice-backed LineSource for tests.
type stringSource struct {
	lines []string
	pos   int
}

func (s *stringSource) Next() (string, int, bool) {
	if s.pos >= len(s.lines) {
		return "", 0, false
	}
	s.pos++
	return s.lines[s.pos-1], s.pos, true
}

func (s *stringSource) Err() error { return nil }

func TestWeightSystemScannerSkipsCommentsAndBlanks(t *testing.T) {
	src := &stringSource{lines: []string{
		"# header comment",
		"",
		"1 1 1 1 1",
		"   ",
		"2 1 1 2 4",
	}}

	sc := NewWeightSystemScanner(src)

	first, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Key)
	assert.Equal(t, 3, first.Line)

	second, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Key)

	_, err = sc.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(2), sc.Read())
}

func TestPolytopeInfoScannerRecoversAfterMalformedLine(t *testing.T) {
	src := &stringSource{lines: []string{
		"1 0 0 0 0",
		"not a record",
		"2 6 9 27 0",
	}}

	sc := NewPolytopeInfoScanner(src)

	_, err := sc.Next()
	require.NoError(t, err)

	_, err = sc.Next()
	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Line)

	info, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Key)
	assert.Equal(t, uint64(2), sc.Read())
}
