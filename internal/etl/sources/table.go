package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"carprep/internal/etl"
)

// buildDataset turns a header row plus data rows into records. Known
// numeric columns become float64; all other columns stay text. When
// padShort is set, rows shorter than the header are padded with missing
// cells (spreadsheet readers drop trailing empties) and empty rows are
// skipped; rows longer than the header are always malformed.
func buildDataset(ctx context.Context, headers []string, rows [][]string, padShort bool) (*etl.Dataset, error) {
	names := make([]string, len(headers))
	seen := make(map[string]bool, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate header column %q", h)
		}
		seen[h] = true
		names[i] = h
	}

	ds := etl.NewDataset(names...)
	ds.Records = make([]etl.Record, 0, len(rows))
	for i, row := range rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := i + 2 // 1-based, after the header
		if padShort && len(row) == 0 {
			continue // blank sheet row; the CSV reader skips blank lines too
		}
		if len(row) > len(names) || (!padShort && len(row) != len(names)) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(names), len(row))
		}

		rec := etl.NewRecord()
		for j, name := range names {
			raw := ""
			if j < len(row) {
				raw = row[j]
			}
			v, err := parseCell(name, raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			rec.Data[name] = v
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

// parseCell returns nil for missing markers, float64 for numeric columns
// and the trimmed text otherwise.
func parseCell(column, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if isMissing(s) {
		return nil, nil
	}
	if !etl.NumericColumns[column] {
		return s, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("column %q: %q is not a number", column, s)
	}
	return f, nil
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}

func stripBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	return headers
}
