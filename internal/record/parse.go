package record

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseWeightSystem parses one line of the weight-system stream:
//
//	<key> <w1> <w2> ... <wd>
//
// The key is an unsigned 64-bit integer; every weight must be a positive
// 32-bit integer. Malformed lines yield a *MalformedRecordError.
func ParseWeightSystem(line string, lineNo int) (*WeightSystem, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, &MalformedRecordError{Line: lineNo, Reason: "want a key and at least one weight"}
	}

	key, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("invalid key %q", fields[0])}
	}

	weights := make([]int32, 0, len(fields)-1)
	for _, f := range fields[1:] {
		w, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("non-numeric weight %q", f)}
		}
		if w <= 0 {
			return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("non-positive weight %d", w)}
		}
		weights = append(weights, int32(w))
	}

	return &WeightSystem{Key: key, Weights: weights, Line: lineNo}, nil
}

// ParsePolytopeInfo parses one line of the polytope-info stream:
//
//	<key> <vertex_count> <facet_count> <point_count> <dual_point_count> [h11 h12 ...]
//
// Consistency rules:
//   - vertex_count == 0 forces all other counts to 0 and forbids hodge numbers
//   - dual_point_count == 0 forbids hodge numbers
//   - dual_point_count > 0 requires at least one hodge number
func ParsePolytopeInfo(line string, lineNo int) (*PolytopeInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("want at least 5 fields, got %d", len(fields))}
	}

	key, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("invalid key %q", fields[0])}
	}

	counts := make([]int32, 4)
	for i, f := range fields[1:5] {
		v, err := strconv.ParseUint(f, 10, 31)
		if err != nil {
			return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("non-numeric count %q", f)}
		}
		counts[i] = int32(v)
	}

	var hodge []int32
	if len(fields) > 5 {
		hodge = make([]int32, 0, len(fields)-5)
		for _, f := range fields[5:] {
			h, err := strconv.ParseUint(f, 10, 31)
			if err != nil {
				return nil, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("non-numeric hodge number %q", f)}
			}
			hodge = append(hodge, int32(h))
		}
	}

	info := &PolytopeInfo{
		Key:            key,
		VertexCount:    counts[0],
		FacetCount:     counts[1],
		PointCount:     counts[2],
		DualPointCount: counts[3],
		HodgeNumbers:   hodge,
		Line:           lineNo,
	}

	switch {
	case info.VertexCount == 0 && (info.FacetCount != 0 || info.PointCount != 0 || info.DualPointCount != 0):
		return nil, &MalformedRecordError{Line: lineNo, Reason: "counts present without vertices"}
	case info.VertexCount == 0 && len(info.HodgeNumbers) > 0:
		return nil, &MalformedRecordError{Line: lineNo, Reason: "hodge numbers present without vertices"}
	case info.DualPointCount == 0 && len(info.HodgeNumbers) > 0:
		return nil, &MalformedRecordError{Line: lineNo, Reason: "hodge numbers present for a non-reflexive record"}
	case info.DualPointCount > 0 && len(info.HodgeNumbers) == 0:
		return nil, &MalformedRecordError{Line: lineNo, Reason: "reflexive record without hodge numbers"}
	}

	return info, nil
}

// LineSource yields input lines with their 1-based line numbers.
// *textio.Reader satisfies it.
type LineSource interface {
	// Next returns the next line. ok is false at end of input or on a
	// read failure; Err distinguishes the two.
	Next() (line string, lineNo int, ok bool)
	Err() error
}

// skipLine reports whether a line holds no record: blank, or a comment
// starting with '#'.
func skipLine(line string) bool {
	s := strings.TrimSpace(line)
	return s == "" || s[0] == '#'
}

// WeightSystemScanner reads the weight-system stream record by record,
// skipping blank and comment lines.
type WeightSystemScanner struct {
	src  LineSource
	read uint64
}

// NewWeightSystemScanner returns a scanner over src.
func NewWeightSystemScanner(src LineSource) *WeightSystemScanner {
	return &WeightSystemScanner{src: src}
}

// Next returns the next record, io.EOF at end of input, a
// *MalformedRecordError for a bad line (the scanner stays usable), or the
// underlying read error.
func (s *WeightSystemScanner) Next() (*WeightSystem, error) {
	for {
		line, lineNo, ok := s.src.Next()
		if !ok {
			if err := s.src.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if skipLine(line) {
			continue
		}
		ws, err := ParseWeightSystem(line, lineNo)
		if err != nil {
			return nil, err
		}
		s.read++
		return ws, nil
	}
}

// Read returns the number of records successfully parsed so far.
func (s *WeightSystemScanner) Read() uint64 { return s.read }

// PolytopeInfoScanner reads the polytope-info stream record by record,
// skipping blank and comment lines.
type PolytopeInfoScanner struct {
	src  LineSource
	read uint64
}

// NewPolytopeInfoScanner returns a scanner over src.
func NewPolytopeInfoScanner(src LineSource) *PolytopeInfoScanner {
	return &PolytopeInfoScanner{src: src}
}

// Next returns the next record, io.EOF at end of input, a
// *MalformedRecordError for a bad line, or the underlying read error.
func (s *PolytopeInfoScanner) Next() (*PolytopeInfo, error) {
	for {
		line, lineNo, ok := s.src.Next()
		if !ok {
			if err := s.src.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if skipLine(line) {
			continue
		}
		info, err := ParsePolytopeInfo(line, lineNo)
		if err != nil {
			return nil, err
		}
		s.read++
		return info, nil
	}
}

// Read returns the number of records successfully parsed so far.
func (s *PolytopeInfoScanner) Read() uint64 { return s.read }
