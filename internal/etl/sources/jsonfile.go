package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"carprep/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads a brand file holding a JSON array of flat objects, one per listing.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "json_file",
		Label:      "JSON File",
		Extensions: []string{".json"},
	}
}

func (s *jsonFileSource) Read(ctx context.Context, path string) (*etl.Dataset, error) {
	objects, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}
	headers, rows, err := toRows(objects)
	if err != nil {
		return nil, err
	}
	return buildDataset(ctx, headers, rows, false)
}

func readJSONFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var objects []map[string]any
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("empty json array")
	}
	return objects, nil
}

// toRows flattens objects into a header plus text rows. The header is the
// sorted union of keys; a key absent from an object is a missing cell.
func toRows(objects []map[string]any) ([]string, [][]string, error) {
	keys := make(map[string]bool)
	for _, obj := range objects {
		for k := range obj {
			keys[k] = true
		}
	}
	headers := make([]string, 0, len(keys))
	for k := range keys {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	rows := make([][]string, len(objects))
	for i, obj := range objects {
		row := make([]string, len(headers))
		for j, h := range headers {
			switch v := obj[h].(type) {
			case nil:
				row[j] = ""
			case string:
				row[j] = v
			case float64:
				row[j] = strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				row[j] = strconv.FormatBool(v)
			default:
				return nil, nil, fmt.Errorf("object %d: field %q is not a scalar", i, h)
			}
		}
		rows[i] = row
	}
	return headers, rows, nil
}
