package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one row of a column-mapped CSV or Socrata page. Column lookup
// is case-insensitive; missing columns read as "".
type Record struct {
	fields []string
	cols   map[string]int
}

// Get returns the trimmed value of a column, or "" when absent.
func (r Record) Get(col string) string {
	idx, ok := r.cols[strings.ToLower(col)]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func columnMap(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, col := range header {
		if i == 0 {
			// Strip a UTF-8 BOM from exports saved as utf-8-sig.
			col = strings.TrimPrefix(col, "\uFEFF")
		}
		cols[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return cols
}

// CSVFile reads a header-mapped CSV file row by row.
type CSVFile struct {
	f    *os.File
	r    *csv.Reader
	cols map[string]int
}

// OpenCSV opens path and reads its header row.
func OpenCSV(path string) (*CSVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	return &CSVFile{f: f, r: r, cols: columnMap(header)}, nil
}

// Next returns the next row, io.EOF at end of input, or a row-scoped parse
// error the caller should count and skip.
func (c *CSVFile) Next() (Record, error) {
	fields, err := c.r.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, err
	}
	return Record{fields: fields, cols: c.cols}, nil
}

// Close closes the underlying file.
func (c *CSVFile) Close() error {
	return c.f.Close()
}
