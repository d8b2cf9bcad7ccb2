package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Frame is an in-memory table parsed from a CSV payload: a header row plus
// string cells, column-addressable. Numeric interpretation happens lazily in
// NumericColumn so mixed files still parse.
type Frame struct {
	Columns []string
	rows    [][]string
	byName  map[string]int
}

func ParseCSV(content []byte) (*Frame, error) {
	return parse(bytes.NewReader(content))
}

func parse(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv payload")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	byName := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		columns[i] = name
		byName[name] = i
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, record)
	}

	return &Frame{Columns: columns, rows: rows, byName: byName}, nil
}

func (f *Frame) RowCount() int { return len(f.rows) }

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// Column returns the raw string cells of one column. Rows shorter than the
// header contribute empty cells.
func (f *Frame) Column(name string) ([]string, bool) {
	idx, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	values := make([]string, len(f.rows))
	for i, row := range f.rows {
		if idx < len(row) {
			values[i] = strings.TrimSpace(row[idx])
		}
	}
	return values, true
}

// NumericColumn parses a column as float64, skipping empty cells. It fails on
// the first non-empty cell that is not a number.
func (f *Frame) NumericColumn(name string) ([]float64, error) {
	raw, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]float64, 0, len(raw))
	for i, cell := range raw {
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %q is not numeric", name, i+2, cell)
		}
		values = append(values, v)
	}
	return values, nil
}

// numericColumns returns the names of columns whose non-empty cells all parse
// as numbers, in header order. Columns with no data at all are excluded.
func (f *Frame) numericColumns() []string {
	var names []string
	for _, name := range f.Columns {
		values, err := f.NumericColumn(name)
		if err != nil || len(values) == 0 {
			continue
		}
		names = append(names, name)
	}
	return names
}
