package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ── Job ────────────────────────────────────────────────────
// Orchestrates: load → reconcile → dedupe → impute → car_age → select → write.

// Job holds the configuration for one pipeline run.
type Job struct {
	SourceDir      string         `json:"sourceDir"`
	OutputPath     string         `json:"outputPath"`
	ReferenceYear  int            `json:"referenceYear"`
	ImputeFallback ImputeFallback `json:"imputeFallback"`
	PreviewRows    int            `json:"previewRows"`
}

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RunResult is the outcome of running the pipeline once.
type RunResult struct {
	RunID             string             `json:"runId"`
	Status            string             `json:"status"`
	Sources           []SourceCount      `json:"sources"`
	RowsRead          int                `json:"rowsRead"`
	TaxMerged         int                `json:"taxMerged"`
	DuplicatesRemoved int                `json:"duplicatesRemoved"`
	Medians           map[string]float64 `json:"medians,omitempty"`
	Imputed           map[string]int     `json:"imputed,omitempty"`
	RowsWritten       int                `json:"rowsWritten"`
	Mirrored          map[string]int     `json:"mirrored,omitempty"`
	Preview           []Record           `json:"preview,omitempty"`
	StartedAt         time.Time          `json:"startedAt"`
	FinishedAt        time.Time          `json:"finishedAt"`
	Duration          time.Duration      `json:"duration"`
	Error             string             `json:"error,omitempty"`
}

// RunLog is a historical record of a pipeline run.
type RunLog struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	Status            string    `json:"status"`
	SourceCount       int       `json:"sourceCount"`
	RowsRead          int       `json:"rowsRead"`
	DuplicatesRemoved int       `json:"duplicatesRemoved"`
	RowsWritten       int       `json:"rowsWritten"`
	OutputPath        string    `json:"outputPath"`
	Error             string    `json:"error,omitempty"`
}

// Log summarizes the result for persistence.
func (r *RunResult) Log(outputPath string) *RunLog {
	return &RunLog{
		ID:                r.RunID,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		Status:            r.Status,
		SourceCount:       len(r.Sources),
		RowsRead:          r.RowsRead,
		DuplicatesRemoved: r.DuplicatesRemoved,
		RowsWritten:       r.RowsWritten,
		OutputPath:        outputPath,
		Error:             r.Error,
	}
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs the pipeline. Dest receives the cleaned dataset; Mirrors, if
// any, receive a copy after Dest succeeded.
type Engine struct {
	Dest    Destination
	Mirrors []Destination
	Emitter EventEmitter
	Logger  *slog.Logger
}

// Run executes a job end-to-end. Any failure aborts the run; nothing is
// written unless every stage before the writer succeeded.
func (e *Engine) Run(ctx context.Context, job *Job) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.New().String(), StartedAt: start}
	logger := loggerOrDefault(e.Logger).With(slog.String("run_id", result.RunID))
	emitter := emitterOrNop(e.Emitter)

	fail := func(err error) (*RunResult, error) {
		result.Status = StatusError
		result.Error = err.Error()
		result.FinishedAt = time.Now()
		result.Duration = result.FinishedAt.Sub(start)
		emitter.Emit(ctx, EventFailed, result)
		return result, err
	}

	// 1. Discover + load sources.
	files, err := DiscoverSources(job.SourceDir, job.OutputPath)
	if err != nil {
		return fail(err)
	}
	loader := &Loader{Emitter: e.Emitter, Logger: logger.With(slog.String("component", "loader"))}
	ds, counts, err := loader.Load(ctx, files)
	if err != nil {
		return fail(err)
	}
	result.Sources = counts
	result.RowsRead = ds.Len()

	// 2. Build the stage chain fresh for this run.
	stageLogger := logger.With(slog.String("component", "stages"))
	reconcile := NewTaxReconcileStage()
	dedupe := &DedupeStage{}
	impute := NewImputeStage(job.ImputeFallback, stageLogger)
	stages := []Stage{
		reconcile,
		StageFunc{Label: "require", Fn: func(_ context.Context, ds *Dataset) (*Dataset, error) {
			return ds, RequireColumns(ds, RequiredColumns)
		}},
		// Extra source columns go before dedupe so duplicates are judged
		// on the columns that reach the output.
		&SelectStage{Fields: WorkingColumns()},
		dedupe,
		impute,
		&CarAgeStage{ReferenceYear: job.ReferenceYear, Logger: stageLogger},
		&SelectStage{Fields: OutputColumns},
	}

	// 3. Transform.
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		ds, err = s.Apply(ctx, ds)
		if err != nil {
			return fail(fmt.Errorf("%s: %w", s.Name(), err))
		}
		stageLogger.Debug("stage done", slog.String("stage", s.Name()), slog.Int("rows", ds.Len()))
		emitter.Emit(ctx, EventStageDone, map[string]any{"stage": s.Name(), "rows": ds.Len()})
	}
	result.TaxMerged = reconcile.Merged
	result.DuplicatesRemoved = dedupe.Removed
	result.Medians = impute.Medians
	result.Imputed = impute.Filled
	if reconcile.Merged > 0 {
		stageLogger.Info("merged alternate tax column", slog.Int("cells", reconcile.Merged))
	}
	stageLogger.Info("removed duplicate rows", slog.Int("count", dedupe.Removed))
	for _, f := range impute.Fields {
		stageLogger.Info("filled missing values with median",
			slog.String("field", f), slog.Float64("median", impute.Medians[f]), slog.Int("filled", impute.Filled[f]))
	}

	// 4. Write.
	if e.Dest == nil {
		return fail(&WriteError{Target: job.OutputPath, Err: errors.New("no destination configured")})
	}
	written, err := e.Dest.Write(ctx, ds)
	if err != nil {
		return fail(err)
	}
	result.RowsWritten = written

	for _, m := range e.Mirrors {
		n, err := m.Write(ctx, ds)
		if err != nil {
			return fail(err)
		}
		if result.Mirrored == nil {
			result.Mirrored = make(map[string]int)
		}
		result.Mirrored[m.Name()] = n
		logger.Info("mirrored dataset", slog.String("target", m.Name()), slog.Int("rows", n))
	}

	// 5. Report.
	result.Preview = ds.Head(job.PreviewRows)
	result.Status = StatusSuccess
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(start)
	logger.Info("preprocessing complete",
		slog.String("output", e.Dest.Name()), slog.Int("rows", written), slog.Duration("duration", result.Duration))
	if job.PreviewRows > 0 {
		logger.Info("preview\n" + FormatPreview(ds, job.PreviewRows))
	}
	emitter.Emit(ctx, EventCompleted, result)
	return result, nil
}
