package etl

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"carprep/internal/stats"
)

// ── Stage ──────────────────────────────────────────────────
// Stages transform a whole dataset between loader and destination.
// Each one returns a new Dataset and leaves its input untouched, so a
// stage can be applied twice and compared with a single application.

// Stage processes a complete dataset.
type Stage interface {
	Name() string
	Apply(ctx context.Context, ds *Dataset) (*Dataset, error)
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc struct {
	Label string
	Fn    func(ctx context.Context, ds *Dataset) (*Dataset, error)
}

func (f StageFunc) Name() string { return f.Label }

func (f StageFunc) Apply(ctx context.Context, ds *Dataset) (*Dataset, error) { return f.Fn(ctx, ds) }

// ── Reconcile ──────────────────────────────────────────────

// ReconcileStage merges an alternate-named column into its canonical
// column. Canonical values win; the alternate fills only missing cells and
// is then dropped. Without the alternate column the stage is a no-op.
type ReconcileStage struct {
	Canonical string
	Alternate string

	// Merged is the number of cells filled from the alternate column.
	Merged int
}

// NewTaxReconcileStage merges "tax(£)" into "tax".
func NewTaxReconcileStage() *ReconcileStage {
	return &ReconcileStage{Canonical: ColTax, Alternate: ColTaxPound}
}

func (t *ReconcileStage) Name() string { return "reconcile" }

func (t *ReconcileStage) Apply(_ context.Context, ds *Dataset) (*Dataset, error) {
	t.Merged = 0
	if !t.present(ds) {
		return ds.Clone(), nil
	}

	out := &Dataset{
		Schema:  ds.Schema.With(t.Canonical).Without(t.Alternate),
		Records: make([]Record, len(ds.Records)),
	}
	for i, r := range ds.Records {
		r = r.Clone()
		if _, ok := r.Get(t.Canonical); !ok {
			if alt, ok := r.Get(t.Alternate); ok {
				r.Data[t.Canonical] = alt
				t.Merged++
			} else {
				r.Data[t.Canonical] = nil
			}
		}
		delete(r.Data, t.Alternate)
		out.Records[i] = r
	}
	return out, nil
}

func (t *ReconcileStage) present(ds *Dataset) bool {
	if ds.Schema.Has(t.Alternate) {
		return true
	}
	for _, r := range ds.Records {
		if _, ok := r.Data[t.Alternate]; ok {
			return true
		}
	}
	return false
}

// RequireColumns fails with a SchemaError for the first required column
// missing from the dataset schema.
func RequireColumns(ds *Dataset, columns []string) error {
	for _, col := range columns {
		if !ds.Schema.Has(col) {
			return &SchemaError{Field: col}
		}
	}
	return nil
}

// ── Dedupe ─────────────────────────────────────────────────

// DedupeStage drops records equal to an earlier record in every schema
// field. The first occurrence is kept.
type DedupeStage struct {
	// Removed is the count dropped by the last Apply.
	Removed int
}

func (t *DedupeStage) Name() string { return "dedupe" }

func (t *DedupeStage) Apply(_ context.Context, ds *Dataset) (*Dataset, error) {
	names := ds.Schema.FieldNames()
	seen := make(map[string]struct{}, len(ds.Records))
	out := &Dataset{Schema: ds.Schema.Clone(), Records: make([]Record, 0, len(ds.Records))}

	for _, r := range ds.Records {
		key := recordKey(r, names)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Records = append(out.Records, r.Clone())
	}
	t.Removed = ds.Len() - out.Len()
	return out, nil
}

// recordKey encodes every field with a type tag so that a missing value,
// the text "1" and the number 1 never collide.
func recordKey(r Record, names []string) string {
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		v, ok := r.Get(name)
		if !ok {
			b.WriteString("n:")
			continue
		}
		switch x := v.(type) {
		case float64:
			b.WriteString("f:")
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		case string:
			b.WriteString("s:")
			b.WriteString(strconv.Quote(x))
		default:
			fmt.Fprintf(&b, "%T:%v", v, v)
		}
	}
	return b.String()
}

// ── Impute ─────────────────────────────────────────────────

// ImputeFallback decides what happens when a field has no observed values.
type ImputeFallback string

const (
	FallbackFail ImputeFallback = "fail" // return an ImputeError
	FallbackZero ImputeFallback = "zero" // fill with 0
)

// ImputeStage fills missing values of the listed fields with the field's
// median. Medians are computed from the input before any fill.
type ImputeStage struct {
	Fields   []string
	Fallback ImputeFallback
	Logger   *slog.Logger

	// Medians and Filled describe the last Apply.
	Medians map[string]float64
	Filled  map[string]int
}

// NewImputeStage imputes tax and mpg.
func NewImputeStage(fallback ImputeFallback, logger *slog.Logger) *ImputeStage {
	return &ImputeStage{Fields: []string{ColTax, ColMPG}, Fallback: fallback, Logger: logger}
}

func (t *ImputeStage) Name() string { return "impute" }

func (t *ImputeStage) Apply(_ context.Context, ds *Dataset) (*Dataset, error) {
	t.Medians = make(map[string]float64, len(t.Fields))
	t.Filled = make(map[string]int, len(t.Fields))

	for _, field := range t.Fields {
		m, err := t.median(ds, field)
		if err != nil {
			return nil, err
		}
		t.Medians[field] = m
	}

	out := &Dataset{Schema: ds.Schema.Clone(), Records: make([]Record, len(ds.Records))}
	for _, field := range t.Fields {
		if !out.Schema.Has(field) {
			out.Schema = out.Schema.With(field)
		}
	}
	for i, r := range ds.Records {
		r = r.Clone()
		for _, field := range t.Fields {
			if _, ok := r.Number(field); !ok {
				r.Data[field] = t.Medians[field]
				t.Filled[field]++
			}
		}
		out.Records[i] = r
	}
	return out, nil
}

func (t *ImputeStage) median(ds *Dataset, field string) (float64, error) {
	values := make([]float64, 0, len(ds.Records))
	for _, r := range ds.Records {
		if v, ok := r.Number(field); ok {
			values = append(values, v)
		}
	}
	if m, ok := stats.Median(stats.Observed(values)); ok {
		return m, nil
	}
	if t.Fallback == FallbackZero {
		loggerOrDefault(t.Logger).Warn("no observed values, filling with zero", slog.String("field", field))
		return 0, nil
	}
	return 0, &ImputeError{Field: field}
}

// ── Compute ────────────────────────────────────────────────

// CarAgeStage derives car_age = ReferenceYear - year and drops year.
// Ages are not bounds-checked.
type CarAgeStage struct {
	ReferenceYear int
	Logger        *slog.Logger
}

func (t *CarAgeStage) Name() string { return "car_age" }

func (t *CarAgeStage) Apply(_ context.Context, ds *Dataset) (*Dataset, error) {
	if !ds.Schema.Has(ColYear) {
		return nil, &SchemaError{Field: ColYear}
	}
	logger := loggerOrDefault(t.Logger)
	ref := float64(t.ReferenceYear)

	out := &Dataset{
		Schema:  ds.Schema.Without(ColYear).With(ColCarAge),
		Records: make([]Record, len(ds.Records)),
	}
	negative := 0
	for i, r := range ds.Records {
		r = r.Clone()
		if year, ok := r.Number(ColYear); ok {
			age := ref - year
			if age < 0 {
				negative++
			}
			r.Data[ColCarAge] = age
		} else {
			r.Data[ColCarAge] = nil
		}
		delete(r.Data, ColYear)
		out.Records[i] = r
	}
	if negative > 0 {
		logger.Debug("records with a model year after the reference year",
			slog.Int("count", negative), slog.Int("reference_year", t.ReferenceYear))
	}
	return out, nil
}

// ── Select ─────────────────────────────────────────────────

// SelectStage keeps only the specified fields, in the given order.
type SelectStage struct {
	Fields []string
}

func (t *SelectStage) Name() string { return "select" }

func (t *SelectStage) Apply(_ context.Context, ds *Dataset) (*Dataset, error) {
	out := NewDataset(t.Fields...)
	out.Records = make([]Record, len(ds.Records))
	for i, r := range ds.Records {
		filtered := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			filtered[f] = r.Data[f]
		}
		out.Records[i] = Record{Data: filtered}
	}
	return out, nil
}

// ── Helpers ────────────────────────────────────────────────

func toFloatSafe(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FormatValue renders a cell the way the output file stores it.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(n) {
			return ""
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}
