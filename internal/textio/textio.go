// Package textio reads and writes the legacy line-oriented text files,
// transparently compressing and decompressing gzip, zstd and lz4 based on
// the file extension.
package textio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// maxLineSize bounds a single input line. Weight-system and polytope-info
// lines are short; this leaves generous headroom.
const maxLineSize = 1 << 20

// Reader yields lines from an optionally compressed text file.
// It is not safe for concurrent use.
type Reader struct {
	sc      *bufio.Scanner
	closers []io.Closer
	line    int
	err     error
}

// Open opens path for line-by-line reading. The decompressor is selected
// by extension: .gz, .zst and .lz4 are recognized, anything else is read
// as plain text.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	r := &Reader{closers: []io.Closer{f}}

	var src io.Reader = f
	switch filepath.Ext(path) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip input: %w", err)
		}
		r.closers = append(r.closers, gz)
		src = gz
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open zstd input: %w", err)
		}
		rc := dec.IOReadCloser()
		r.closers = append(r.closers, rc)
		src = rc
	case ".lz4":
		src = lz4.NewReader(f)
	}

	r.sc = bufio.NewScanner(src)
	r.sc.Buffer(make([]byte, 64*1024), maxLineSize)

	return r, nil
}

// Next returns the next line and its 1-based line number. ok is false at
// end of input or on a read failure; check Err to distinguish.
func (r *Reader) Next() (string, int, bool) {
	if r.err != nil {
		return "", 0, false
	}
	if !r.sc.Scan() {
		r.err = r.sc.Err()
		return "", 0, false
	}
	r.line++
	return r.sc.Text(), r.line, true
}

// Err returns the first read error, or nil on clean end of input.
func (r *Reader) Err() error { return r.err }

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int { return r.line }

// Close releases the underlying file and decompressor.
func (r *Reader) Close() error {
	var first error
	// Close in reverse: decompressor before file.
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Writer writes lines to an optionally compressed text file, choosing the
// compressor by extension the same way Open does.
// It is not safe for concurrent use.
type Writer struct {
	bw      *bufio.Writer
	closers []io.Closer
}

// Create creates path for line-by-line writing, truncating any existing
// file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}

	w := &Writer{closers: []io.Closer{f}}

	var dst io.Writer = f
	switch filepath.Ext(path) {
	case ".gz":
		gz := gzip.NewWriter(f)
		w.closers = append(w.closers, gz)
		dst = gz
	case ".zst":
		enc, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open zstd output: %w", err)
		}
		w.closers = append(w.closers, enc)
		dst = enc
	case ".lz4":
		lw := lz4.NewWriter(f)
		w.closers = append(w.closers, lw)
		dst = lw
	}

	w.bw = bufio.NewWriter(dst)
	return w, nil
}

// WriteLine writes one line, appending the newline.
func (w *Writer) WriteLine(line []byte) error {
	if _, err := w.bw.Write(line); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// Close flushes buffered lines and releases the compressor and file.
func (w *Writer) Close() error {
	first := w.bw.Flush()
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
