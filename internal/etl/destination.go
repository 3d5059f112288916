package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"carprep/internal/dbclient"
)

// ── Destination ────────────────────────────────────────────
// A Destination persists the final dataset. The CSV file is the primary
// output; table destinations mirror it into a database.

// Destination writes a dataset to a target and returns the rows written.
type Destination interface {
	Name() string
	Write(ctx context.Context, ds *Dataset) (int, error)
}

// ── CSV File Destination ───────────────────────────────────

// CSVFileWriter writes the dataset as a delimited file. The file is built
// under a temporary name in the same directory and renamed over Path, so
// readers see either the previous output or the complete new one.
type CSVFileWriter struct {
	Path      string
	Delimiter rune // defaults to ','
}

func (w *CSVFileWriter) Name() string { return w.Path }

func (w *CSVFileWriter) Write(ctx context.Context, ds *Dataset) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := w.write(ds)
	if err != nil {
		return 0, &WriteError{Target: w.Path, Err: err}
	}
	return n, nil
}

func (w *CSVFileWriter) write(ds *Dataset) (int, error) {
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.Path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	writer := csv.NewWriter(tmp)
	if w.Delimiter != 0 {
		writer.Comma = w.Delimiter
	}

	names := ds.Schema.FieldNames()
	if err := writer.Write(names); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(names))
	for i, r := range ds.Records {
		for j, name := range names {
			row[j] = FormatValue(r.Data[name])
		}
		if err := writer.Write(row); err != nil {
			return 0, fmt.Errorf("write record %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	// CreateTemp opens 0600; the output is meant to be shared.
	if err := tmp.Chmod(0644); err != nil {
		return 0, fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, w.Path); err != nil {
		return 0, fmt.Errorf("replace output: %w", err)
	}
	committed = true
	return ds.Len(), nil
}

// ── Table Destination ──────────────────────────────────────

// TableWriter replaces a database table with the dataset contents.
type TableWriter struct {
	Conn  dbclient.Connector
	Table string
	Label string // e.g. "postgres"
}

func (w *TableWriter) Name() string {
	if w.Label == "" {
		return w.Table
	}
	return w.Label + ":" + w.Table
}

func (w *TableWriter) Write(ctx context.Context, ds *Dataset) (int, error) {
	cols := make([]dbclient.ColumnInfo, len(ds.Schema.Fields))
	for i, f := range ds.Schema.Fields {
		cols[i] = dbclient.ColumnInfo{Name: f.Name, Type: f.Type}
	}
	rows := make([][]any, len(ds.Records))
	for i, r := range ds.Records {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = r.Data[c.Name]
		}
		rows[i] = row
	}

	n, err := w.Conn.ReplaceTable(ctx, w.Table, cols, rows)
	if err != nil {
		return n, &WriteError{Target: w.Name(), Err: err}
	}
	return n, nil
}
