package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"carprep/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: guarded runs and watch mode
// ─────────────────────────────────────────────────────────────

// EventWatchTriggered is emitted when a file change or the schedule starts a run.
const EventWatchTriggered = "pipeline:watch-triggered"

// RunLogStore persists run history. *storage.RunStore implements it.
type RunLogStore interface {
	CreateRunLog(log *etl.RunLog) error
}

// MetricsSink records run outcomes. *metrics.Recorder implements it.
type MetricsSink interface {
	Observe(res *etl.RunResult)
	WriteTextfile(path string) error
}

// Options configures a PipelineService. Engine and Job are required.
type Options struct {
	Engine          *etl.Engine
	Job             etl.Job
	Runs            RunLogStore
	Metrics         MetricsSink
	MetricsTextfile string
	Schedule        string        // cron expression; empty disables
	Debounce        time.Duration // quiet period after file changes
	Emitter         EventEmitter
	Logger          *slog.Logger
}

// PipelineService wraps the engine with run bookkeeping and watch mode.
type PipelineService struct {
	opts    Options
	logger  *slog.Logger
	emitter EventEmitter
	guard   runGuard

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewPipelineService creates a PipelineService ready for use.
func NewPipelineService(opts Options) *PipelineService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = &LogEmitter{Logger: logger}
	}
	return &PipelineService{
		opts:    opts,
		logger:  logger.With(slog.String("component", "service")),
		emitter: emitter,
	}
}

// ── Run ────────────────────────────────────────────────────

// RunOnce executes the pipeline synchronously. A run already in flight
// makes it return etl.ErrAlreadyRunning.
func (s *PipelineService) RunOnce(ctx context.Context) (*etl.RunResult, error) {
	if s.opts.Engine == nil {
		return nil, errors.New("pipeline service: no engine configured")
	}
	if !s.guard.TryAcquire() {
		return nil, etl.ErrAlreadyRunning
	}
	result, err := s.run(ctx)
	if s.guard.Release() {
		go s.trigger(ctx, "deferred change")
	}
	return result, err
}

// run executes the engine and records the outcome. The caller holds the guard.
func (s *PipelineService) run(ctx context.Context) (*etl.RunResult, error) {
	job := s.opts.Job
	result, runErr := s.opts.Engine.Run(ctx, &job)
	if result == nil {
		return nil, runErr
	}

	if s.opts.Runs != nil {
		if err := s.opts.Runs.CreateRunLog(result.Log(job.OutputPath)); err != nil {
			s.logger.Warn("failed to save run log", slog.String("run_id", result.RunID), slog.Any("error", err))
		}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.Observe(result)
		if s.opts.MetricsTextfile != "" {
			if err := s.opts.Metrics.WriteTextfile(s.opts.MetricsTextfile); err != nil {
				s.logger.Warn("failed to write metrics", slog.String("path", s.opts.MetricsTextfile), slog.Any("error", err))
			}
		}
	}
	return result, runErr
}

// ── Watch ──────────────────────────────────────────────────

// Watch runs the pipeline once, then again whenever a source file in the
// source directory changes (after Debounce of quiet) or the schedule fires.
// It blocks until ctx is cancelled or Stop is called, then waits for the
// in-flight run.
func (s *PipelineService) Watch(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.startWatchers(watchCtx, cancel); err != nil {
		return err
	}
	defer s.stopWatchers()

	s.trigger(watchCtx, "startup")

	<-watchCtx.Done()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer waitCancel()
	s.WaitRunning(waitCtx)
	return nil
}

func (s *PipelineService) startWatchers(ctx context.Context, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		return errors.New("pipeline service: already watching")
	}

	if s.opts.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.opts.Schedule, func() { s.trigger(ctx, "schedule") }); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", s.opts.Schedule, err)
		}
		c.Start()
		s.cronSched = c
		s.logger.Info("scheduled runs", slog.String("schedule", s.opts.Schedule))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.stopLocked()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.opts.Job.SourceDir); err != nil {
		watcher.Close()
		s.stopLocked()
		return fmt.Errorf("watch %q: %w", s.opts.Job.SourceDir, err)
	}
	s.watcher = watcher
	s.watchCancel = cancel

	go s.watchLoop(ctx, watcher)
	s.logger.Info("watching source directory", slog.String("dir", s.opts.Job.SourceDir))
	return nil
}

func (s *PipelineService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !s.relevant(event) {
				continue
			}
			s.logger.Debug("source changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.opts.Debounce, func() { s.trigger(ctx, "file change") })
			timerMu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}

// relevant reports whether a filesystem event touches a brand file.
func (s *PipelineService) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if out, err := filepath.Abs(s.opts.Job.OutputPath); err == nil {
		if abs, err := filepath.Abs(event.Name); err == nil && abs == out {
			return false
		}
	}
	_, err := etl.SourceForPath(event.Name)
	return err == nil
}

// trigger runs the pipeline for a watch event. A trigger that arrives while
// a run is in flight is marked pending on the guard and replayed once that
// run releases it.
func (s *PipelineService) trigger(ctx context.Context, reason string) {
	if s.opts.Engine == nil {
		return
	}
	for ctx.Err() == nil {
		if !s.guard.AcquireOrDefer() {
			s.logger.Debug("run deferred, previous run still in progress", slog.String("reason", reason))
			return
		}
		s.emitter.Emit(ctx, EventWatchTriggered, reason)
		res, err := s.run(ctx)
		if err != nil {
			attrs := []any{slog.String("reason", reason), slog.Any("error", err)}
			if res != nil {
				attrs = append(attrs, slog.String("run_id", res.RunID))
			}
			s.logger.Error("pipeline run failed", attrs...)
		}
		if !s.guard.Release() {
			return
		}
		reason = "deferred change"
	}
}

// WaitRunning blocks until the in-flight run finishes or ctx is cancelled.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.guard.Wait(ctx)
}

// Stop ends watch mode. It is safe to call more than once.
func (s *PipelineService) Stop() {
	s.stopWatchers()
}

func (s *PipelineService) stopWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *PipelineService) stopLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
