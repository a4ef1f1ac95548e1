// Package palp converts PALP-style classification output into a single
// columnar file. Unlike the ipws pipeline there is no correlation,
// classification or resume step: every parsed polytope maps to one output
// row.
package palp

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/schema"

	"polyconv/internal/pqcol"
	"polyconv/internal/record"
	"polyconv/internal/textio"
)

// header is one parsed PALP block header:
//
//	<rows> <cols> M:<points> <vertices> N:<dual_points> <facets> H:<h11>,<h12>[,...] [<euler>]
type header struct {
	rows           int
	cols           int
	pointCount     int32
	vertexCount    int32
	dualPointCount int32
	facetCount     int32
	hodgeNumbers   []int32
	euler          int32
}

var headerRE = regexp.MustCompile(
	`^\s*([0-9]+)\s+([0-9]+)\s+M:\s*([0-9]+)\s+([0-9]+)\s+N:\s*([0-9]+)\s+([0-9]+)\s+H:\s*([0-9]+(?:,[0-9]+)*)\s+\[(-?[0-9]+)\]`)

func parseHeader(line string, lineNo int) (*header, error) {
	m := headerRE.FindStringSubmatch(line)
	if m == nil {
		return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("invalid header %q", strings.TrimSpace(line))}
	}

	ints := make([]int64, 0, 7)
	for _, s := range []string{m[1], m[2], m[3], m[4], m[5], m[6], m[8]} {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("invalid header field %q", s)}
		}
		ints = append(ints, v)
	}

	var hodge []int32
	for _, s := range strings.Split(m[7], ",") {
		h, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("invalid hodge number %q", s)}
		}
		hodge = append(hodge, int32(h))
	}

	return &header{
		rows:           int(ints[0]),
		cols:           int(ints[1]),
		pointCount:     int32(ints[2]),
		vertexCount:    int32(ints[3]),
		dualPointCount: int32(ints[4]),
		facetCount:     int32(ints[5]),
		hodgeNumbers:   hodge,
		euler:          int32(ints[6]),
	}, nil
}

// polytopes accumulates the parsed blocks column-wise.
type polytopes struct {
	dim int

	// coords holds all vertex coordinates flattened vertex-major; row i
	// contributes vertexCounts[i]*dim consecutive values.
	coords []int32

	vertexCounts    []int32
	facetCounts     []int32
	pointCounts     []int32
	dualPointCounts []int32
	hodge           [][]int32
	euler           []int32
}

func (p *polytopes) rows() int { return len(p.vertexCounts) }

// parseCoordinates reads the rows x cols coordinate matrix following a
// header. PALP prints vertices column-wise, one coordinate row per line.
func parseCoordinates(h *header, src record.LineSource) ([][]int32, error) {
	coords := make([][]int32, h.rows)
	for i := range coords {
		line, lineNo, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("incomplete input: coordinate rows missing")
		}
		fields := strings.Fields(line)
		if len(fields) != h.cols {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("want %d coordinates, got %d", h.cols, len(fields))}
		}
		row := make([]int32, h.cols)
		for j, f := range fields {
			v, err := strconv.ParseInt(f, 10, 32)
			if err != nil {
				return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("non-numeric coordinate %q", f)}
			}
			row[j] = int32(v)
		}
		coords[i] = row
	}
	return coords, nil
}

// parse consumes the whole PALP stream. Lines whose first non-space byte
// is not a digit are skipped, matching how PALP interleaves prose with
// blocks.
func parse(src record.LineSource) (*polytopes, error) {
	ret := &polytopes{}

	for {
		line, lineNo, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return nil, err
			}
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] < '0' || trimmed[0] > '9' {
			continue
		}

		h, err := parseHeader(line, lineNo)
		if err != nil {
			return nil, err
		}

		coords, err := parseCoordinates(h, src)
		if err != nil {
			return nil, err
		}

		if h.rows >= h.cols {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: "vertices must be specified column-wise"}
		}
		dim := h.rows
		vertexCount := h.cols

		if ret.dim == 0 {
			if dim < 3 {
				return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("polytope dimension %d too small", dim)}
			}
			ret.dim = dim
			ret.hodge = make([][]int32, dim-2)
		} else if ret.dim != dim {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("varying dimension: want %d, got %d", ret.dim, dim)}
		}

		if len(h.hodgeNumbers) != dim-2 {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("want %d hodge numbers, got %d", dim-2, len(h.hodgeNumbers))}
		}
		if int(h.vertexCount) != vertexCount {
			return nil, &record.MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("header names %d vertices, matrix has %d", h.vertexCount, vertexCount)}
		}

		ret.vertexCounts = append(ret.vertexCounts, h.vertexCount)
		ret.facetCounts = append(ret.facetCounts, h.facetCount)
		ret.pointCounts = append(ret.pointCounts, h.pointCount)
		ret.dualPointCounts = append(ret.dualPointCounts, h.dualPointCount)
		ret.euler = append(ret.euler, h.euler)
		for i, hn := range h.hodgeNumbers {
			ret.hodge[i] = append(ret.hodge[i], hn)
		}

		// Flatten vertex-major: all coordinates of vertex 0, then 1, ...
		for v := 0; v < vertexCount; v++ {
			for i := 0; i < dim; i++ {
				ret.coords = append(ret.coords, coords[i][v])
			}
		}
	}

	if ret.dim == 0 {
		return nil, errors.New("no polytopes read")
	}
	return ret, nil
}

// verticesField builds the nested list-of-lists node for the vertex
// coordinates: one outer list entry per vertex, one inner list entry per
// coordinate. Level layout follows the parquet LIST spec, so the maximum
// repetition and definition levels are both 2.
func verticesField() (schema.Node, error) {
	innerElement := schema.NewInt32Node("element", parquet.Repetitions.Required, -1)

	innerList, err := schema.NewGroupNode("list", parquet.Repetitions.Repeated, schema.FieldList{innerElement}, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to build vertices field: %w", err)
	}
	outerElement, err := schema.NewGroupNodeLogical("element", parquet.Repetitions.Required, schema.FieldList{innerList}, schema.NewListLogicalType(), -1)
	if err != nil {
		return nil, fmt.Errorf("failed to build vertices field: %w", err)
	}
	outerList, err := schema.NewGroupNode("list", parquet.Repetitions.Repeated, schema.FieldList{outerElement}, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to build vertices field: %w", err)
	}
	vertices, err := schema.NewGroupNodeLogical("vertices", parquet.Repetitions.Required, schema.FieldList{outerList}, schema.NewListLogicalType(), -1)
	if err != nil {
		return nil, fmt.Errorf("failed to build vertices field: %w", err)
	}
	return vertices, nil
}

func buildSchema(dim int) (*schema.GroupNode, error) {
	vertices, err := verticesField()
	if err != nil {
		return nil, err
	}

	fields := make(schema.FieldList, 0, dim+4)
	fields = append(fields,
		vertices,
		schema.NewInt32Node(pqcol.ColVertexCount, parquet.Repetitions.Required, -1),
		schema.NewInt32Node(pqcol.ColFacetCount, parquet.Repetitions.Required, -1),
		schema.NewInt32Node(pqcol.ColPointCount, parquet.Repetitions.Required, -1),
		schema.NewInt32Node(pqcol.ColDualPointCount, parquet.Repetitions.Required, -1),
	)
	for i := 0; i < dim-2; i++ {
		fields = append(fields, schema.NewInt32Node(pqcol.HodgeColumn(i), parquet.Repetitions.Required, -1))
	}
	fields = append(fields, schema.NewInt32Node(pqcol.ColEuler, parquet.Repetitions.Required, -1))

	node, err := schema.NewGroupNode("schema", parquet.Repetitions.Required, fields, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}
	return node, nil
}

func writeParquet(p *polytopes, path string, opts pqcol.Options) error {
	sc, err := buildSchema(p.dim)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithCompressionLevel(opts.ZstdLevel),
	)
	w := file.NewParquetWriter(f, sc, file.WithWriterProps(props))

	rowCount := p.rows()
	coordEnd := 0

	for start := 0; start < rowCount; start += opts.RowGroupSize {
		end := min(start+opts.RowGroupSize, rowCount)

		rg := w.AppendRowGroup()

		// Repetition level 0 starts a row, 1 starts a vertex within the
		// row, 2 continues a vertex. All values are defined at level 2.
		coordStart := coordEnd
		var repLevels []int16
		for _, count := range p.vertexCounts[start:end] {
			coordEnd += int(count) * p.dim
			for v := 0; v < int(count); v++ {
				for i := 0; i < p.dim; i++ {
					switch {
					case v == 0 && i == 0:
						repLevels = append(repLevels, 0)
					case i == 0:
						repLevels = append(repLevels, 1)
					default:
						repLevels = append(repLevels, 2)
					}
				}
			}
		}
		defLevels := make([]int16, coordEnd-coordStart)
		for i := range defLevels {
			defLevels[i] = 2
		}

		if err := pqcol.WriteRepeatedInt32Column(rg, p.coords[coordStart:coordEnd], defLevels, repLevels); err != nil {
			return err
		}

		for _, col := range [][]int32{p.vertexCounts, p.facetCounts, p.pointCounts, p.dualPointCounts} {
			if err := pqcol.WriteInt32Column(rg, col[start:end], nil); err != nil {
				return err
			}
		}
		for i := range p.hodge {
			if err := pqcol.WriteInt32Column(rg, p.hodge[i][start:end], nil); err != nil {
				return err
			}
		}
		if err := pqcol.WriteInt32Column(rg, p.euler[start:end], nil); err != nil {
			return err
		}

		if err := rg.Close(); err != nil {
			return fmt.Errorf("failed to close row group: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize output: %w", err)
	}
	return nil
}

// Convert parses the PALP text file at inPath and writes it as one
// columnar file at outPath. Returns the number of polytopes converted.
func Convert(inPath, outPath string, optFns ...func(o *pqcol.Options)) (uint64, error) {
	opts := pqcol.DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RowGroupSize < 1 {
		opts.RowGroupSize = pqcol.DefaultOptions.RowGroupSize
	}

	src, err := textio.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	p, err := parse(src)
	if err != nil {
		return 0, err
	}

	if err := writeParquet(p, outPath, opts); err != nil {
		return 0, err
	}

	return uint64(p.rows()), nil
}
