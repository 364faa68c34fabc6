// Package dataset loads raw credit records into tables, partitions them into
// training and evaluation sets and carries the processed numeric bundle
// between the prepare and train stages.
package dataset

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// Table is a rectangular set of string cells with named columns. Rows share
// backing arrays with the table they were selected from; treat them as
// read-only.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable validates that every row has one cell per column.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, eris.Errorf("dataset: row %d has %d fields, header has %d", i+1, len(row), len(columns))
		}
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]string, error) {
	idx, ok := t.Index(name)
	if !ok {
		return nil, eris.Errorf("dataset: column %q not found", name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Rename changes a column name in place. Renaming an absent column is a no-op
// and reports false.
func (t *Table) Rename(from, to string) bool {
	idx, ok := t.Index(from)
	if !ok {
		return false
	}
	t.Columns[idx] = to
	return true
}

// Drop returns a new table without the named columns. Absent names are
// ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	var keep []int
	var cols []string
	for i, c := range t.Columns {
		if _, ok := drop[c]; ok {
			continue
		}
		keep = append(keep, i)
		cols = append(cols, c)
	}
	if len(keep) == len(t.Columns) {
		return t
	}
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]string, len(keep))
		for j, k := range keep {
			out[j] = row[k]
		}
		rows[i] = out
	}
	return &Table{Columns: cols, Rows: rows}
}

// Subset returns the rows at the given indices, in index order.
func (t *Table) Subset(indices []int) *Table {
	rows := make([][]string, len(indices))
	for i, idx := range indices {
		rows[i] = t.Rows[idx]
	}
	return &Table{Columns: t.Columns, Rows: rows}
}

// WithColumn returns a new table with one extra column appended after all
// existing columns.
func (t *Table) WithColumn(name string, values []string) (*Table, error) {
	if _, ok := t.Index(name); ok {
		return nil, eris.Errorf("dataset: column %q already exists", name)
	}
	if len(values) != len(t.Rows) {
		return nil, eris.Errorf("dataset: column %q has %d values, table has %d rows", name, len(values), len(t.Rows))
	}
	cols := make([]string, len(t.Columns), len(t.Columns)+1)
	copy(cols, t.Columns)
	cols = append(cols, name)

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]string, len(row), len(row)+1)
		copy(out, row)
		rows[i] = append(out, values[i])
	}
	return &Table{Columns: cols, Rows: rows}, nil
}

// WriteCSV writes the header and all rows as comma-delimited text.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return eris.Wrap(err, "dataset: write rows")
	}
	return nil
}
