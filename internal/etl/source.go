package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source parses one brand file into a Dataset.
// Implementations live in etl/sources/, one file per format.

// SourceSpec describes a source format and the file extensions it handles.
type SourceSpec struct {
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Extensions []string `json:"extensions"` // lower-case, with leading dot
}

// Source is the interface every tabular file format must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Read parses the whole file at path. The returned dataset has one
	// record per data row and no brand column.
	Read(ctx context.Context, path string) (*Dataset, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{} // extension → source
)

// RegisterSource registers a source for each of its extensions.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, ext := range s.Spec().Extensions {
		registry[strings.ToLower(ext)] = s
	}
}

// SourceForPath returns the registered source for a file's extension.
func SourceForPath(path string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ext := strings.ToLower(filepath.Ext(path))
	s, ok := registry[ext]
	if !ok {
		return nil, fmt.Errorf("unknown source type for %q", filepath.Base(path))
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	seen := make(map[string]bool)
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		spec := s.Spec()
		if seen[spec.Type] {
			continue
		}
		seen[spec.Type] = true
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
