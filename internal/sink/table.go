// Package sink builds result tables and persists them addressed by job ID.
package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// Table is the final tabular result of a job. Every row has exactly
// len(Columns) values, in column order.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Columns returns the core columns followed by the requested ones in request
// order, skipping core names and repeats.
func Columns(requested []string) []string {
	cols := append([]string(nil), models.CoreColumns...)
	seen := make(map[string]bool, len(cols)+len(requested))
	for _, c := range cols {
		seen[c] = true
	}
	for _, c := range requested {
		if seen[c] {
			continue
		}
		seen[c] = true
		cols = append(cols, c)
	}
	return cols
}

// BuildTable lays records out under Columns(requested). Missing values are
// empty strings.
func BuildTable(records []models.Record, requested []string) *Table {
	t := &Table{Columns: Columns(requested), Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		row := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = r.Field(c)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteCSV writes a header line followed by one line per row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(t.Columns))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the encoded table.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV decodes a table written by WriteCSV.
func ReadCSV(r io.Reader) (*Table, error) {
	lines, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("reading csv: missing header")
	}
	return &Table{Columns: lines[0], Rows: lines[1:]}, nil
}
