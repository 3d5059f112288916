package etl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is one brand file selected for loading.
type SourceFile struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Brand  string `json:"brand"`
	Source Source `json:"-"`
}

// SourceCount is the number of rows loaded from one source.
type SourceCount struct {
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Rows  int    `json:"rows"`
}

// BrandFromPath derives the brand from a file name: the base name with its
// extension stripped, case preserved ("audi.csv" → "audi").
func BrandFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DiscoverSources lists the brand files in dir that have a registered
// source, excluding outputPath. The result is sorted by file name so brand
// order does not depend on directory enumeration.
func DiscoverSources(dir, outputPath string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Source: dir, Err: fmt.Errorf("read directory: %w", err)}
	}

	outAbs := ""
	if outputPath != "" {
		if abs, err := filepath.Abs(outputPath); err == nil {
			outAbs = abs
		}
	}

	var files []SourceFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue // hidden files and our own temp files
		}
		path := filepath.Join(dir, name)
		if abs, err := filepath.Abs(path); err == nil && abs == outAbs {
			continue
		}
		src, err := SourceForPath(path)
		if err != nil {
			continue
		}
		files = append(files, SourceFile{Path: path, Name: name, Brand: BrandFromPath(name), Source: src})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// CheckSourceColumns verifies a parsed source carries every required
// column. Either tax column satisfies the tax requirement.
func CheckSourceColumns(name string, schema *Schema) error {
	for _, col := range RequiredColumns {
		if col == ColTax && (schema.Has(ColTax) || schema.Has(ColTaxPound)) {
			continue
		}
		if !schema.Has(col) {
			return &SchemaError{Source: name, Field: col}
		}
	}
	return nil
}

// Loader reads brand files and concatenates them into one dataset.
type Loader struct {
	Emitter EventEmitter
	Logger  *slog.Logger
}

// Load parses every file in order, stamps its brand and concatenates the
// results. The first failing file aborts the load; no partial dataset is
// returned.
func (l *Loader) Load(ctx context.Context, files []SourceFile) (*Dataset, []SourceCount, error) {
	if len(files) == 0 {
		return nil, nil, &LoadError{Err: ErrNoSources}
	}
	emitter := emitterOrNop(l.Emitter)
	logger := loggerOrDefault(l.Logger)

	combined := NewDataset()
	counts := make([]SourceCount, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		src := f.Source
		if src == nil {
			var err error
			if src, err = SourceForPath(f.Path); err != nil {
				return nil, nil, &LoadError{Source: f.Name, Err: err}
			}
		}

		part, err := src.Read(ctx, f.Path)
		if err != nil {
			return nil, nil, &LoadError{Source: f.Name, Err: err}
		}
		if err := CheckSourceColumns(f.Name, part.Schema); err != nil {
			return nil, nil, err
		}

		part.Schema = part.Schema.With(ColBrand)
		for _, r := range part.Records {
			r.Data[ColBrand] = f.Brand
		}
		combined.Append(part)

		count := SourceCount{Name: f.Name, Brand: f.Brand, Rows: part.Len()}
		counts = append(counts, count)
		logger.Info("loaded source", slog.String("source", f.Name), slog.Int("rows", count.Rows))
		emitter.Emit(ctx, EventSourceLoaded, count)
	}

	logger.Info("combined raw data", slog.Int("rows", combined.Len()), slog.Int("sources", len(counts)))
	return combined, counts, nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
