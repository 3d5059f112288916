package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"carprep/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads one brand file in comma-separated form.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "csv_file",
		Label:      "CSV File",
		Extensions: []string{".csv"},
	}
}

func (s *csvFileSource) Read(ctx context.Context, path string) (*etl.Dataset, error) {
	headers, rows, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	return buildDataset(ctx, headers, rows, false)
}

func readCSVFile(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	// Strict quoting, and FieldsPerRecord stays 0: every row must match
	// the header width.

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}
	return stripBOM(records[0]), records[1:], nil
}
