package data

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// ErrMalformedDataset marks a historical dataset that cannot be trained on.
var ErrMalformedDataset = errors.New("malformed dataset")

// Frame is a rectangular table of raw cells with a header row.
type Frame struct {
	Header []string
	Rows   [][]string
}

// LoadCSV reads a historical dataset from a CSV file.
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()
	f, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ReadCSV parses a CSV stream whose first record is the header. Rows with a
// different number of fields than the header fail the whole read.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = 0
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no header row", ErrMalformedDataset)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	f := &Frame{Header: header}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}
		f.Rows = append(f.Rows, rec)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that the frame is non-empty, rectangular and has unique
// column names.
func (f *Frame) Validate() error {
	if len(f.Header) == 0 {
		return fmt.Errorf("%w: no columns", ErrMalformedDataset)
	}
	if len(f.Rows) == 0 {
		return fmt.Errorf("%w: no data rows", ErrMalformedDataset)
	}
	seen := make(map[string]bool, len(f.Header))
	for _, h := range f.Header {
		if seen[h] {
			return fmt.Errorf("%w: duplicate column %q", ErrMalformedDataset, h)
		}
		seen[h] = true
	}
	for i, row := range f.Rows {
		if len(row) != len(f.Header) {
			return fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformedDataset, i+1, len(row), len(f.Header))
		}
	}
	return nil
}

// Index returns the position of a column.
func (f *Frame) Index(name string) (int, bool) {
	i := slices.Index(f.Header, name)
	return i, i >= 0
}

// Column returns a copy of the named column's cells.
func (f *Frame) Column(name string) ([]string, bool) {
	j, ok := f.Index(name)
	if !ok {
		return nil, false
	}
	col := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		col[i] = row[j]
	}
	return col, true
}

// SetColumn replaces the cells of an existing column.
func (f *Frame) SetColumn(name string, col []string) error {
	j, ok := f.Index(name)
	if !ok {
		return fmt.Errorf("%w: no column %q", ErrMalformedDataset, name)
	}
	if len(col) != len(f.Rows) {
		return fmt.Errorf("%w: column %q has %d cells, frame has %d rows", ErrMalformedDataset, name, len(col), len(f.Rows))
	}
	for i := range f.Rows {
		f.Rows[i][j] = col[i]
	}
	return nil
}

// Record returns row i as a field → value map.
func (f *Frame) Record(i int) map[string]string {
	rec := make(map[string]string, len(f.Header))
	for j, h := range f.Header {
		rec[h] = f.Rows[i][j]
	}
	return rec
}

// Clone deep-copies the frame so imputation never touches the caller's rows.
func (f *Frame) Clone() *Frame {
	out := &Frame{Header: slices.Clone(f.Header), Rows: make([][]string, len(f.Rows))}
	for i, row := range f.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	return out
}

// Sample is one encoded training row.
type Sample struct {
	Row int
	X   []float64
	Y   int
}

// Stream sends the frame's rows, encoded by fn, on the returned channel.
// Encoding stops at the first error, which is delivered on errc. Close done
// to stop early.
func (f *Frame) Stream(fn func(row int, rec map[string]string) (Sample, error), done <-chan struct{}) (<-chan Sample, <-chan error) {
	out := make(chan Sample)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for i := range f.Rows {
			s, err := fn(i, f.Record(i))
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- s:
			case <-done:
				return
			}
		}
	}()
	return out, errc
}
